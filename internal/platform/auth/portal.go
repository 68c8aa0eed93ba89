package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v4"
)

// PortalTokenHeader is checked before the "token" query parameter.
const PortalTokenHeader = "X-Portal-Token"

const portalAudience = "order-portal"

var (
	// ErrPortalTokenInvalid covers bad signatures, wrong audience, and malformed tokens.
	ErrPortalTokenInvalid = errors.New("auth: portal token invalid")
	// ErrPortalTokenExpired signals an expired portal link.
	ErrPortalTokenExpired = errors.New("auth: portal token expired")
)

// PortalClaims binds a customer link to one order.
type PortalClaims struct {
	OrderID string `json:"oid"`
	Email   string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// PortalTokens issues and verifies HS256 tokens embedded in customer approval links.
type PortalTokens struct {
	secret []byte
	issuer string
	ttl    time.Duration
	clock  func() time.Time
}

// PortalOption customises PortalTokens.
type PortalOption func(*PortalTokens)

// WithPortalClock overrides the clock used when issuing tokens.
func WithPortalClock(clock func() time.Time) PortalOption {
	return func(p *PortalTokens) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// NewPortalTokens validates the signing secret.
func NewPortalTokens(secret, issuer string, ttl time.Duration, opts ...PortalOption) (*PortalTokens, error) {
	if len(strings.TrimSpace(secret)) < 16 {
		return nil, errors.New("auth: portal token secret must be at least 16 characters")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: portal token ttl must be positive")
	}
	p := &PortalTokens{
		secret: []byte(secret),
		issuer: strings.TrimSpace(issuer),
		ttl:    ttl,
		clock:  time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// Issue signs a token for orderID and returns it with its expiry.
func (p *PortalTokens) Issue(orderID, email string) (string, time.Time, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return "", time.Time{}, errors.New("auth: order id is required")
	}
	now := p.clock().UTC()
	expires := now.Add(p.ttl)
	claims := PortalClaims{
		OrderID: orderID,
		Email:   strings.TrimSpace(email),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.issuer,
			Subject:   orderID,
			Audience:  jwt.ClaimStrings{portalAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign portal token: %w", err)
	}
	return signed, expires, nil
}

// Verify parses and validates a token, returning its claims.
func (p *PortalTokens) Verify(token string) (PortalClaims, error) {
	var claims PortalClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
		}
		return p.secret, nil
	})
	if err != nil {
		var validationErr *jwt.ValidationError
		if errors.As(err, &validationErr) && validationErr.Errors&jwt.ValidationErrorExpired != 0 {
			return PortalClaims{}, ErrPortalTokenExpired
		}
		return PortalClaims{}, fmt.Errorf("%w: %v", ErrPortalTokenInvalid, err)
	}
	if !parsed.Valid || claims.OrderID == "" || !claims.VerifyAudience(portalAudience, true) {
		return PortalClaims{}, ErrPortalTokenInvalid
	}
	if p.issuer != "" && !claims.VerifyIssuer(p.issuer, true) {
		return PortalClaims{}, ErrPortalTokenInvalid
	}
	return claims, nil
}

// RequirePortalToken admits requests whose token is bound to the {param} order in the route.
func (p *PortalTokens) RequirePortalToken(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token := strings.TrimSpace(r.Header.Get(PortalTokenHeader))
			if token == "" {
				token = strings.TrimSpace(r.URL.Query().Get("token"))
			}
			if token == "" || p == nil {
				respondAuthError(ctx, w, http.StatusUnauthorized, "unauthenticated", "portal token required")
				return
			}
			claims, err := p.Verify(token)
			switch {
			case errors.Is(err, ErrPortalTokenExpired):
				respondAuthError(ctx, w, http.StatusUnauthorized, "token_expired", "portal link expired")
				return
			case err != nil:
				respondAuthError(ctx, w, http.StatusUnauthorized, "invalid_token", "portal token invalid")
				return
			}
			identity := &Identity{
				UID:     "portal:" + claims.OrderID,
				Email:   claims.Email,
				Roles:   []string{RoleCustomer},
				OrderID: claims.OrderID,
			}
			if !identity.CanAccessOrder(chi.URLParam(r, param)) {
				respondAuthError(ctx, w, http.StatusForbidden, "forbidden", "portal token does not match order")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, identity)))
		})
	}
}
