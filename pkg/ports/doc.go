/*
Package ports defines the driven ports (interfaces) of fetpipe.

These interfaces decouple the pipeline engine and the stage adapters from concrete
backends, so that run records and staging locks can live in memory, on disk or in Redis.

# Key Interfaces

  - RunStore: persists the per-node records of every pipeline run (the run ledger).
  - DistributedLocker: guards a staging root against concurrent use by another process.
*/
package ports
