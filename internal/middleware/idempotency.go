package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/foodshare/internal/config"
)

// HeaderIdempotencyKey is the request header clients set to make a
// creation safe to retry.
const HeaderIdempotencyKey = "Idempotency-Key"

const maxIdempotencyKey = 100

type idemEntry struct {
	InProgress  bool   `json:"in_progress"`
	Code        int    `json:"code"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
	BodySHA256  string `json:"body_sha256"`
}

type bodyRecorder struct {
	http.ResponseWriter
	buf  bytes.Buffer
	code int
}

func (r *bodyRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
	r.buf.Write(b)
	return r.ResponseWriter.Write(b)
}

func bodyHash(b []byte) string {
	s := sha256.Sum256(b)
	return hex.EncodeToString(s[:])
}

func idemKey(cfg config.IdempotencyConfig, c echo.Context, key string) string {
	return cfg.Prefix + ":" + strings.ToLower(c.Request().Method) + ":" + c.Path() + ":" + subject(c) + ":" + key
}

// NewIdempotency replays the stored response when a POST arrives again with
// the same Idempotency-Key from the same account.  Reusing a key with a
// different body is a 409, as is retrying while the first request is still
// running.  Requests without the header are not affected.  Server errors
// are not stored so the client can retry them.
func NewIdempotency(cfg config.IdempotencyConfig, rdb *redis.Client, log *slog.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return passThrough
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			raw := strings.TrimSpace(req.Header.Get(HeaderIdempotencyKey))
			if req.Method != http.MethodPost || raw == "" {
				return next(c)
			}
			if len(raw) > maxIdempotencyKey {
				return c.JSON(http.StatusBadRequest, echo.Map{"error": "Idempotency-Key too long"})
			}

			var body []byte
			if req.Body != nil {
				var err error
				if body, err = io.ReadAll(req.Body); err != nil {
					return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable body"})
				}
			}
			req.Body = io.NopCloser(bytes.NewReader(body))
			hash := bodyHash(body)
			key := idemKey(cfg, c, raw)

			ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
			defer cancel()
			lock, _ := json.Marshal(idemEntry{InProgress: true, BodySHA256: hash})
			ok, err := rdb.SetNX(ctx, key, lock, cfg.LockTTL).Result()
			if err != nil {
				log.Warn("idempotency store unavailable", "err", err)
				return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "idempotency store unavailable"})
			}
			if !ok {
				var cur idemEntry
				if v, err := rdb.Get(ctx, key).Bytes(); err == nil {
					_ = json.Unmarshal(v, &cur)
				}
				if cur.BodySHA256 != "" && cur.BodySHA256 != hash {
					return c.JSON(http.StatusConflict, echo.Map{"error": "Idempotency-Key reused with a different body"})
				}
				if !cur.InProgress && cur.Code != 0 {
					c.Response().Header().Set("Idempotent-Replayed", "true")
					return c.Blob(cur.Code, cur.ContentType, cur.Body)
				}
				return c.JSON(http.StatusConflict, echo.Map{"error": "request is already in progress"})
			}

			rec := &bodyRecorder{ResponseWriter: c.Response().Writer, code: http.StatusOK}
			c.Response().Writer = rec
			if err := next(c); err != nil {
				c.Error(err)
			}

			store := context.WithoutCancel(req.Context())
			if rec.code >= http.StatusInternalServerError {
				_ = rdb.Del(store, key).Err()
				return nil
			}
			final, _ := json.Marshal(idemEntry{
				Code:        rec.code,
				ContentType: c.Response().Header().Get(echo.HeaderContentType),
				Body:        rec.buf.Bytes(),
				BodySHA256:  hash,
			})
			if err := rdb.Set(store, key, final, cfg.TTL).Err(); err != nil {
				log.Warn("idempotency result not stored", "key", key, "err", err)
			}
			return nil
		}
	}
}
