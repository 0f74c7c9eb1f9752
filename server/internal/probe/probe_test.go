package probe_test

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/obsidianstack/roomrelay/server/internal/auth"
	"github.com/obsidianstack/roomrelay/server/internal/probe"
)

// startProbe serves p over an in-memory listener and returns a connected
// health client.
func startProbe(t *testing.T, p *probe.Probe) healthpb.HealthClient {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	go p.Serve(lis) //nolint:errcheck
	t.Cleanup(p.Shutdown)

	conn, err := grpc.Dial("bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	) //nolint:staticcheck
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return healthpb.NewHealthClient(conn)
}

func check(ctx context.Context, client healthpb.HealthClient, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return 0, err
	}
	return resp.GetStatus(), nil
}

func TestProbe_ReportsServing(t *testing.T) {
	client := startProbe(t, probe.New(auth.NewVerifier(auth.ModeNone, "", "", nil)))

	for _, svc := range []string{"", probe.ServiceName} {
		st, err := check(context.Background(), client, svc)
		if err != nil {
			t.Fatalf("Check(%q): %v", svc, err)
		}
		if st != healthpb.HealthCheckResponse_SERVING {
			t.Errorf("Check(%q): got %v, want SERVING", svc, st)
		}
	}
}

func TestProbe_UnknownService(t *testing.T) {
	client := startProbe(t, probe.New(auth.NewVerifier(auth.ModeNone, "", "", nil)))

	_, err := check(context.Background(), client, "nope")
	if code := status.Code(err); code != codes.NotFound {
		t.Errorf("code: got %v, want NotFound", code)
	}
}

func TestProbe_SetServingFalse(t *testing.T) {
	p := probe.New(auth.NewVerifier(auth.ModeNone, "", "", nil))
	client := startProbe(t, p)

	p.SetServing(false)

	st, err := check(context.Background(), client, "")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if st != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("got %v, want NOT_SERVING", st)
	}
}

func TestProbe_RequiresAPIKey(t *testing.T) {
	client := startProbe(t, probe.New(auth.NewVerifier(auth.ModeAPIKey, "x-api-key", "secret", nil)))

	_, err := check(context.Background(), client, "")
	if code := status.Code(err); code != codes.Unauthenticated {
		t.Fatalf("without key: got %v, want Unauthenticated", code)
	}

	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-api-key", "secret")
	st, err := check(ctx, client, "")
	if err != nil {
		t.Fatalf("with key: %v", err)
	}
	if st != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("with key: got %v, want SERVING", st)
	}
}
