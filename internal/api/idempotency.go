package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-finance/kestrel/internal/domain"
)

const (
	IdempotencyKeyHeader   = "Idempotency-Key"
	IdempotentReplayHeader = "Idempotent-Replayed"

	// IdempotencyTTL is how long a stored response is replayed.
	IdempotencyTTL = 24 * time.Hour
)

type storedResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

func idempotencyKey(r *http.Request, key string) string {
	return "idem:" + r.Method + ":" + r.URL.Path + ":" + key
}

// Idempotent replays the stored 2xx response of a POST carrying the same
// Idempotency-Key, scoped by account, method and path. Lookup failures fall
// through to the handler. A nil cache disables replay.
func Idempotent(cache domain.Cache) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if cache == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyKeyHeader)
			if key == "" || r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			accountID := AccountID(ctx)
			cacheKey := idempotencyKey(r, key)

			if stored, ok := lookupResponse(r, cache, accountID, cacheKey); ok {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set(IdempotentReplayHeader, "true")
				w.WriteHeader(stored.Status)
				_, _ = w.Write(stored.Body)
				return
			}

			var body bytes.Buffer
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&body)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status < 200 || status >= 300 || !json.Valid(body.Bytes()) {
				return
			}
			raw, err := json.Marshal(storedResponse{Status: status, Body: body.Bytes()})
			if err == nil {
				err = cache.Set(ctx, accountID, cacheKey, raw, IdempotencyTTL)
			}
			if err != nil {
				slog.Warn("failed to store idempotent response", "account_id", accountID, "error", err)
			}
		})
	}
}

func lookupResponse(r *http.Request, cache domain.Cache, accountID, cacheKey string) (*storedResponse, bool) {
	raw, err := cache.Get(r.Context(), accountID, cacheKey)
	if err != nil {
		slog.Warn("idempotency lookup failed", "account_id", accountID, "error", err)
		return nil, false
	}
	if raw == nil {
		return nil, false
	}
	var stored storedResponse
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, false
	}
	return &stored, true
}
