package rpc

import (
	"context"
	"crypto/subtle"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// sharedSecretMetadataKey carries the caller's shared secret on every
// outgoing/incoming call, the unary analogue of grpc_security.go's stream
// interceptor (every RPC here is unary, so there is no per-stream handshake
// to hook).
const sharedSecretMetadataKey = "x-journal-shared-secret"

// UnaryServerAuth rejects any call whose x-journal-shared-secret metadata
// does not match secret, using a constant-time comparison exactly as
// grpc_security.go's newSharedSecretStreamInterceptor does.
func UnaryServerAuth(secret string) grpc.UnaryServerInterceptor {
	normalized := strings.TrimSpace(secret)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if normalized == "" {
			return nil, status.Error(codes.Unauthenticated, "shared secret not configured")
		}
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}
		candidate := extractSharedSecret(md)
		if candidate == "" {
			return nil, status.Error(codes.Unauthenticated, "missing shared secret")
		}
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(normalized)) != 1 {
			return nil, status.Error(codes.Unauthenticated, "invalid shared secret")
		}
		return handler(ctx, req)
	}
}

func extractSharedSecret(md metadata.MD) string {
	for _, value := range md.Get(sharedSecretMetadataKey) {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	for _, value := range md.Get("authorization") {
		if strings.HasPrefix(strings.ToLower(value), "bearer ") {
			if token := strings.TrimSpace(value[7:]); token != "" {
				return token
			}
		}
	}
	return ""
}

// UnaryClientAuth attaches the shared secret to every outgoing call, the
// client-side counterpart of UnaryServerAuth.
func UnaryClientAuth(secret string) grpc.UnaryClientInterceptor {
	normalized := strings.TrimSpace(secret)
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, sharedSecretMetadataKey, normalized)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}
