// Package api assembles every feature's handlers onto one HTTP server,
// owns the public authentication endpoints and the dashboard, and runs
// the separate health/metrics listener.
package api
