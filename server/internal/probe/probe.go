package probe

import (
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/obsidianstack/roomrelay/server/internal/auth"
)

// ServiceName is the health service name reported alongside the overall ("")
// status.
const ServiceName = "roomrelay.Relay"

// Probe serves the standard gRPC health service.
type Probe struct {
	srv    *grpc.Server
	health *health.Server
}

// New creates a Probe whose calls are authenticated by v. Both the overall
// status and ServiceName start as SERVING.
func New(v *auth.Verifier) *Probe {
	srv := grpc.NewServer(
		grpc.UnaryInterceptor(v.UnaryInterceptor()),
		grpc.StreamInterceptor(v.StreamInterceptor()),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	p := &Probe{srv: srv, health: hs}
	p.SetServing(true)
	return p
}

// Serve accepts connections on lis until Shutdown is called.
func (p *Probe) Serve(lis net.Listener) error {
	slog.Info("probe: gRPC health listening", "addr", lis.Addr().String())
	return p.srv.Serve(lis)
}

// SetServing flips the reported status of both the overall and the named
// service.
func (p *Probe) SetServing(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	p.health.SetServingStatus("", st)
	p.health.SetServingStatus(ServiceName, st)
}

// Shutdown reports NOT_SERVING to watchers, then stops the server after
// in-flight calls complete.
func (p *Probe) Shutdown() {
	p.health.Shutdown()
	p.srv.GracefulStop()
	slog.Info("probe: stopped")
}
