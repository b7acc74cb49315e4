package auth

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// UnaryServerInterceptor authenticates every call from its "authorization"
// metadata and checks the scopes that scopesFor lists for the method.
func UnaryServerInterceptor(v *JWTValidator, scopesFor func(fullMethod string) []string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		var header string
		if vals := md.Get("authorization"); len(vals) > 0 {
			header = vals[0]
		}
		p, err := v.Principal(header)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "unauthorized")
		}
		for _, s := range scopesFor(info.FullMethod) {
			if !p.Has(s) {
				return nil, status.Error(codes.PermissionDenied, "forbidden")
			}
		}
		return handler(WithPrincipal(ctx, p), req)
	}
}
