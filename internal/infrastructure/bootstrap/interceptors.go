package bootstrap

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// RequestIDHeader carries the request id on HTTP requests and responses.
const RequestIDHeader = "X-Request-Id"

// BuildRequestIDInterceptor creates a gRPC interceptor that adds a unique request ID to the context.
func BuildRequestIDInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		var requestID string

		// Check if request ID is already present in incoming metadata
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if ids := md.Get("x-request-id"); len(ids) > 0 && ids[0] != "" {
				requestID = ids[0]
			}
		}

		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx = WithLogAttrs(ctx, slog.String("request_id", requestID))

		resp, err := handler(ctx, req)

		if err := grpc.SetHeader(ctx, metadata.Pairs("x-request-id", requestID)); err != nil {
			slog.Error("failed to set response header", "error", err)
		}

		return resp, err
	}
}

// RequestIDMiddleware tags every HTTP request with a request id, reusing the
// caller's X-Request-Id when present, and echoes it on the response.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, requestID)
		ctx := WithLogAttrs(r.Context(), slog.String("request_id", requestID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
