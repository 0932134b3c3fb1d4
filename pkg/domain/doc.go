/*
Package domain contains the core types shared by every fetpipe component.

It defines what flows between pipeline stages (Inputs and Outputs), the records kept about
each stage execution, lifecycle events, and the error taxonomy of the execution layer.
The package is free of I/O so that stages, engine and adapters can all depend on it.

# Error Taxonomy

  - StagingError: a required input is missing or a destination is not writable. Fatal.
  - UnsupportedModeError: the configured pre-command names no known container engine. Fatal.
  - ArtifactNotProducedError: the verification loop ran out of attempts. Terminal for the stage.
  - UnknownPortError: a pipeline edge references a port nobody declared. Raised at assembly.
*/
package domain
