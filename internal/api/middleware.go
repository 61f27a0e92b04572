package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/throttle"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Request headers understood or set by the API.
const (
	AccountIDHeader = "X-Account-ID"
	RequestIDHeader = "X-Request-ID"
	TraceIDHeader   = "X-Trace-ID"
)

type ctxKey int

const (
	accountKey ctxKey = iota
	requestKey
	traceKey
)

var (
	tracer = otel.Tracer("kestrel-api")

	corsAllowHeaders  = strings.Join([]string{"Content-Type", AccountIDHeader, RequestIDHeader, TraceIDHeader, IdempotencyKeyHeader, "Authorization"}, ", ")
	corsExposeHeaders = strings.Join([]string{RequestIDHeader, TraceIDHeader, "X-RateLimit-Remaining", "Retry-After", IdempotentReplayHeader}, ", ")
)

// AccountID returns the account the request acts for.
func AccountID(ctx context.Context) string {
	v, _ := ctx.Value(accountKey).(string)
	return v
}

// TraceID returns the trace id assigned by Trace, if any.
func TraceID(ctx context.Context) string {
	v, _ := ctx.Value(traceKey).(string)
	return v
}

// RequireAccount rejects requests without an X-Account-ID header.
func RequireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID := strings.TrimSpace(r.Header.Get(AccountIDHeader))
		if accountID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": AccountIDHeader + " header is required"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), accountKey, accountID)))
	})
}

// Trace opens a span per request and echoes request and trace ids. Without
// a recording tracer provider the request id doubles as the trace id.
func Trace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.path", r.URL.Path),
				attribute.String("request.id", requestID),
			),
		)
		defer span.End()

		traceID := requestID
		if sc := span.SpanContext(); sc.TraceID().IsValid() {
			traceID = sc.TraceID().String()
		}
		ctx = context.WithValue(ctx, requestKey, requestID)
		ctx = context.WithValue(ctx, traceKey, traceID)

		w.Header().Set(RequestIDHeader, requestID)
		w.Header().Set(TraceIDHeader, traceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LogRequests writes one structured line per request. Server errors log at
// warn level.
func LogRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}

		requestID, _ := r.Context().Value(requestKey).(string)
		slog.LogAttrs(r.Context(), level, "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			slog.String("account_id", r.Header.Get(AccountIDHeader)),
			slog.String("request_id", requestID),
			slog.String("trace_id", TraceID(r.Context())),
		)
	})
}

// CORS allows browser clients from any origin.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
		h.Set("Access-Control-Expose-Headers", corsExposeHeaders)
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Recover turns a handler panic into a 500 response.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				slog.Error("panic recovered", "panic", rec, "path", r.URL.Path)
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// RateLimit rejects submissions over the account's allowance with 429 and
// a Retry-After of one window. A nil limiter allows everything.
func RateLimit(limiter *throttle.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		retryAfter := strconv.Itoa(int(limiter.Window().Seconds()))
		limit := strconv.FormatInt(limiter.Limit(), 10)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			remaining, err := limiter.Allow(r.Context(), AccountID(r.Context()))
			if err != nil {
				w.Header().Set("Retry-After", retryAfter)
				writeError(w, err)
				return
			}
			w.Header().Set("X-RateLimit-Limit", limit)
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			next.ServeHTTP(w, r)
		})
	}
}
