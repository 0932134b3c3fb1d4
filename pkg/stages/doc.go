/*
Package stages adapts external imaging tools to pipeline nodes.

Every stage declares its ports (an input schema and the names of its outputs) and implements
Execute, which the engine calls with concrete paths. Container-backed stages share one routine:

	validate inputs -> lock the staging root -> stage inputs -> build the command
	-> run it until the expected artifacts exist -> report the output paths

The environment a stage runs in (verification loop, work directory, run ID, node name,
locker, logger) is injected through the context with WithEnv.
*/
package stages
