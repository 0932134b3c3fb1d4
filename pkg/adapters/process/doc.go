// Package process builds and runs the command lines of external imaging tools.
//
// It has three parts:
//
//   - Invocation and Build turn a structured argument list into an exact command line for
//     one of three execution modes: direct (local entry point), docker, or singularity.
//   - Runner executes a Command once, forwarding its output and reporting the exit status.
//   - Loop re-runs a Command until its expected artifacts exist on disk or a try budget is
//     spent. Exit codes are diagnostics only: the tools run inside containers with their own
//     partial-completion behaviour, so the filesystem is the source of truth.
package process
