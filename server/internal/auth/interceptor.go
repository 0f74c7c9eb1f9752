package auth

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// UnaryInterceptor returns a gRPC UnaryServerInterceptor that applies v to
// every incoming call.
//
// In apikey mode the key is read from the metadata entry named by the
// verifier's header. In jwt mode the token is read from the "authorization"
// entry as "Bearer <token>". A missing or rejected credential returns
// codes.Unauthenticated.
func (v *Verifier) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		ctx, err := v.authorize(ctx)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamInterceptor is the streaming counterpart of UnaryInterceptor.
func (v *Verifier) StreamInterceptor() grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if _, err := v.authorize(ss.Context()); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}

func (v *Verifier) authorize(ctx context.Context) (context.Context, error) {
	if !v.Enabled() {
		return ctx, nil
	}

	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing metadata")
	}

	subject, err := v.Check(first(md.Get(v.header)), first(md.Get("authorization")))
	if err != nil {
		msg := "invalid credentials"
		if errors.Is(err, ErrMissingCredentials) {
			msg = "missing credentials"
		}
		return nil, status.Error(codes.Unauthenticated, msg)
	}
	return WithSubject(ctx, subject), nil
}

func first(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}
