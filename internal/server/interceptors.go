package server

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// metadataRequestID carries the request id in gRPC metadata, mirroring
// HeaderRequestID on HTTP.
const metadataRequestID = "x-request-id"

// LoggingInterceptor tags every unary RPC with a request id, echoes it in the
// response header metadata, and logs the outcome. Caller mistakes log at
// warn, server failures at error.
func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		id := incomingRequestID(ctx)
		_ = grpc.SetHeader(ctx, metadata.Pairs(metadataRequestID, id))

		start := time.Now()
		resp, err := handler(ctx, req)
		attrs := []any{
			"method", info.FullMethod,
			"duration", time.Since(start),
			"request_id", id,
		}

		switch code := status.Code(err); code {
		case codes.OK:
			logger.Debug("rpc completed", attrs...)
		case codes.InvalidArgument, codes.NotFound, codes.Unauthenticated, codes.PermissionDenied, codes.Canceled:
			logger.Warn("rpc rejected", append(attrs, "code", code.String(), "error", err)...)
		default:
			logger.Error("rpc failed", append(attrs, "code", code.String(), "error", err)...)
		}
		return resp, err
	}
}

// incomingRequestID returns the caller's request id when it is a UUID, or a
// fresh one.
func incomingRequestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get(metadataRequestID); len(vals) > 0 {
			if _, err := uuid.Parse(vals[0]); err == nil {
				return vals[0]
			}
		}
	}
	return uuid.NewString()
}

// RecoveryInterceptor turns a handler panic into codes.Internal and logs the
// stack.
func RecoveryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered in gRPC handler",
					"method", info.FullMethod,
					"panic", fmt.Sprintf("%v", r),
					"stack", string(debug.Stack()),
				)
				err = status.Errorf(codes.Internal, "internal server error")
			}
		}()
		return handler(ctx, req)
	}
}

// checkBearer validates an Authorization value against token and returns
// the rejection reason, or "" when it matches.
func checkBearer(auth, token string) string {
	if auth == "" {
		return "missing authorization header"
	}
	provided, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return "invalid authorization scheme"
	}
	if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
		return "invalid token"
	}
	return ""
}

// AuthInterceptor requires a Bearer token in the "authorization" metadata.
// An empty token disables auth. Health is always exempt.
func AuthInterceptor(token string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if token == "" || info.FullMethod == healthMethod {
			return handler(ctx, req)
		}
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}
		var auth string
		if vals := md.Get("authorization"); len(vals) > 0 {
			auth = vals[0]
		}
		if reason := checkBearer(auth, token); reason != "" {
			return nil, status.Error(codes.Unauthenticated, reason)
		}
		return handler(ctx, req)
	}
}

// AuthMiddleware is the HTTP counterpart of AuthInterceptor. GET /v1/health
// is exempt. The event stream also accepts the token as an access_token
// query parameter since browsers cannot set headers on EventSource.
func AuthMiddleware(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == "/v1/health" {
			next.ServeHTTP(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		if auth == "" && r.URL.Path == "/v1/events/stream" {
			if qt := r.URL.Query().Get("access_token"); qt != "" {
				auth = "Bearer " + qt
			}
		}
		if reason := checkBearer(auth, token); reason != "" {
			writeError(w, http.StatusUnauthorized, reason)
			return
		}
		next.ServeHTTP(w, r)
	})
}
