/*
Package observability exposes Prometheus metrics for pipeline runs.

Metrics observes every tool attempt of the verification loop and every node transition
of the engine. Handler serves the metrics together with a liveness endpoint.
*/
package observability
