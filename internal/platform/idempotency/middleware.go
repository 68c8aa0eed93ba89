package idempotency

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bounceparty/api/internal/platform/auth"
	"github.com/bounceparty/api/internal/platform/httpx"
	"github.com/bounceparty/api/internal/platform/requestctx"
)

const (
	defaultHeaderName = "Idempotency-Key"
	replayHeaderName  = "Idempotent-Replayed"
	maxKeyLength      = 255
	maxBodyBytes      = 1 << 20
)

type config struct {
	header  string
	ttl     time.Duration
	lease   time.Duration
	methods map[string]bool
	clock   func() time.Time
	logger  *zap.Logger
}

// MiddlewareOption customises the middleware.
type MiddlewareOption func(*config)

// WithHeader overrides the request header carrying the key.
func WithHeader(name string) MiddlewareOption {
	return func(c *config) {
		if name = strings.TrimSpace(name); name != "" {
			c.header = name
		}
	}
}

// WithTTL sets how long completed responses are replayed.
func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(c *config) { c.ttl = positiveOr(ttl, c.ttl) }
}

// WithLease sets how long an unfinished request blocks its key.
func WithLease(lease time.Duration) MiddlewareOption {
	return func(c *config) { c.lease = positiveOr(lease, c.lease) }
}

// WithMethods restricts the guarded HTTP methods. Other methods pass through untouched.
func WithMethods(methods ...string) MiddlewareOption {
	return func(c *config) {
		set := make(map[string]bool, len(methods))
		for _, m := range methods {
			if m = strings.ToUpper(strings.TrimSpace(m)); m != "" {
				set[m] = true
			}
		}
		if len(set) > 0 {
			c.methods = set
		}
	}
}

// WithLogger sets the logger used when the request context carries none.
func WithLogger(logger *zap.Logger) MiddlewareOption {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithClock(clock func() time.Time) MiddlewareOption {
	return func(c *config) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// Middleware makes guarded requests safe to retry. The first request with a key runs the
// handler; later requests with the same key and body get the stored response. Server
// errors are not stored, so a retry after a 5xx reaches the handler again.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	cfg := config{
		header:  defaultHeaderName,
		ttl:     DefaultTTL,
		lease:   DefaultLease,
		methods: map[string]bool{http.MethodPost: true, http.MethodPut: true, http.MethodPatch: true, http.MethodDelete: true},
		clock:   time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.methods[r.Method] {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			key := strings.TrimSpace(r.Header.Get(cfg.header))
			switch {
			case key == "":
				writeError(ctx, w, http.StatusBadRequest, "idempotency_key_required", "missing "+cfg.header+" header")
				return
			case len(key) > maxKeyLength:
				writeError(ctx, w, http.StatusBadRequest, "idempotency_key_invalid", cfg.header+" header is too long")
				return
			}

			body, err := bufferBody(r)
			if err != nil {
				writeError(ctx, w, http.StatusRequestEntityTooLarge, "request_too_large", "request body too large")
				return
			}

			requester := requesterOf(ctx)
			scoped := requester + "|" + key
			fingerprint := fingerprintOf(r, requester, body)
			logger := requestctx.LoggerOr(ctx, cfg.logger).With(zap.String("idempotencyKey", key))

			claim, err := store.Claim(ctx, scoped, fingerprint, cfg.clock().UTC(), cfg.lease)
			switch {
			case errors.Is(err, ErrKeyReused):
				writeError(ctx, w, http.StatusUnprocessableEntity, "idempotency_key_reused", "idempotency key already used for a different request")
				return
			case err != nil:
				logger.Error("idempotency: claim failed", zap.Error(err))
				writeError(ctx, w, http.StatusServiceUnavailable, "idempotency_unavailable", "unable to check idempotency key")
				return
			}

			switch claim.State {
			case ClaimReplay:
				replay(w, claim.Saved)
				return
			case ClaimInFlight:
				w.Header().Set("Retry-After", "1")
				writeError(ctx, w, http.StatusConflict, "idempotency_in_progress", "a request with this idempotency key is still processing")
				return
			}

			rec := &capture{header: make(http.Header)}
			next.ServeHTTP(rec, r)
			saved := rec.saved()

			if saved.Status >= http.StatusInternalServerError {
				if err := store.Abandon(ctx, scoped, fingerprint); err != nil {
					logger.Warn("idempotency: abandon failed", zap.Error(err))
				}
			} else if err := store.Complete(ctx, scoped, fingerprint, saved, cfg.clock().UTC(), cfg.ttl); err != nil {
				logger.Error("idempotency: store response failed", zap.Int("status", saved.Status), zap.Error(err))
				if err := store.Abandon(ctx, scoped, fingerprint); err != nil {
					logger.Warn("idempotency: abandon failed", zap.Error(err))
				}
			}
			rec.flushTo(w)
		})
	}
}

func bufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	_ = r.Body.Close()
	if err != nil {
		return nil, err
	}
	if len(data) > maxBodyBytes {
		return nil, errors.New("idempotency: body exceeds limit")
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

// requesterOf scopes keys to the signed-in staff member, else the browsing session.
func requesterOf(ctx context.Context) string {
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity != nil && identity.UID != "" {
		return "uid:" + identity.UID
	}
	if session := requestctx.SessionID(ctx); session != "" {
		return "session:" + session
	}
	return "anonymous"
}

func fingerprintOf(r *http.Request, requester string, body []byte) string {
	h := sha256.New()
	for _, part := range []string{r.Method, r.URL.Path, requester} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func replay(w http.ResponseWriter, saved SavedResponse) {
	if saved.ContentType != "" {
		w.Header().Set("Content-Type", saved.ContentType)
	}
	if saved.Location != "" {
		w.Header().Set("Location", saved.Location)
	}
	w.Header().Set(replayHeaderName, "true")
	w.WriteHeader(saved.Status)
	if len(saved.Body) > 0 {
		_, _ = w.Write(saved.Body)
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string) {
	httpx.WriteError(ctx, w, httpx.NewError(code, message, status))
}

// capture buffers the handler response so it can be stored before the client sees it.
type capture struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (c *capture) Header() http.Header { return c.header }

func (c *capture) WriteHeader(status int) {
	if c.status == 0 {
		c.status = status
	}
}

func (c *capture) Write(p []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	return c.body.Write(p)
}

func (c *capture) saved() SavedResponse {
	status := c.status
	if status == 0 {
		status = http.StatusOK
	}
	return SavedResponse{
		Status:      status,
		ContentType: c.header.Get("Content-Type"),
		Location:    c.header.Get("Location"),
		Body:        bytes.Clone(c.body.Bytes()),
	}
}

func (c *capture) flushTo(w http.ResponseWriter) {
	dst := w.Header()
	for name, values := range c.header {
		dst[name] = values
	}
	status := c.status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(c.body.Bytes())
}
