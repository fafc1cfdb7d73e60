// Package syncapi exposes the sync runner over HTTP.
//
// Routes:
//   - GET  /health       liveness and whether a run is in progress
//   - GET  /sync/report  report of the last run of this process
//   - POST /sync         run now, or wait for the run already in flight
//
// A Service never runs two passes at once; callers arriving while a pass is
// running receive that pass's report.
package syncapi
