// Package server exposes the workflow catalog over HTTP.
//
// Routes:
//
//	POST /v1/workflows/{name}/runs   start a run
//	POST /v1/runs/{run_id}/resume    resume a suspended run from its checkpoint
//	GET  /v1/workflows               list workflows
//	GET  /healthz                    liveness
//	GET  /metrics                    Prometheus metrics
//
// Terminated runs are answered with 200, suspended runs with 202. Failed
// runs map their error kind to a status code; see StatusFor.
package server
