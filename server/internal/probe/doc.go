// Package probe exposes the relay's liveness over the standard gRPC health
// protocol (grpc.health.v1.Health), for orchestrators that prefer gRPC
// probes to HTTP ones.
//
// The probe listens on server.grpc_port and is disabled when that is 0.
// Calls pass through the same auth.Verifier as the admin HTTP API.
// Shutdown marks every service NOT_SERVING before stopping the server.
package probe
