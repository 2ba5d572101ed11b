// Package auth verifies bearer tokens issued by the identity provider and
// exposes the signed-in user to handlers.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/agrostore/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrInvalidToken = fmt.Errorf("invalid token: %w", domain.ErrAuthRequired)
	ErrTokenRevoked = fmt.Errorf("token revoked: %w", domain.ErrAuthRequired)
)

type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

type Provider struct {
	secret  []byte
	issuer  string
	revoked Revocations
	log     *zap.Logger
	now     func() time.Time
}

func NewProvider(secret, issuer string, revoked Revocations, log *zap.Logger) *Provider {
	return &Provider{
		secret:  []byte(secret),
		issuer:  issuer,
		revoked: revoked,
		log:     log,
		now:     time.Now,
	}
}

// Issue signs a token for the user. Sign-in lives with the identity provider;
// this is used by tooling and tests that need a valid bearer token.
func (p *Provider) Issue(user *domain.User, ttl time.Duration) (string, error) {
	now := p.now()
	claims := &Claims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    p.issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Authenticate verifies the token's signature, issuer and expiry and rejects
// revoked tokens. A revocation store failure is treated as revoked.
func (p *Provider) Authenticate(ctx context.Context, raw string) (*domain.User, *Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, nil, fmt.Errorf("%w: missing sub or jti", ErrInvalidToken)
	}

	revoked, err := p.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		p.log.Error("token revocation check failed", zap.Error(err))
		return nil, nil, ErrTokenRevoked
	}
	if revoked {
		return nil, nil, ErrTokenRevoked
	}

	role := claims.Role
	if role == "" {
		role = domain.RoleCustomer
	}
	return &domain.User{ID: claims.Subject, Email: claims.Email, Role: role}, claims, nil
}

// Middleware attaches the signed-in user to the request context. Requests
// without a usable token continue anonymously; handlers decide whether that
// is allowed.
func (p *Provider) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		user, _, err := p.Authenticate(r.Context(), raw)
		if err != nil {
			p.log.Debug("rejected bearer token", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// CurrentUser returns the signed-in user or nil.
func (p *Provider) CurrentUser(r *http.Request) *domain.User {
	return UserFromContext(r.Context())
}

// SignOut revokes the request's token until it expires.
func (p *Provider) SignOut(ctx context.Context, r *http.Request) error {
	raw, ok := bearerToken(r)
	if !ok {
		return domain.ErrAuthRequired
	}
	_, claims, err := p.Authenticate(ctx, raw)
	if err != nil {
		return err
	}
	if err := p.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	p.log.Info("signed out", zap.String("user_id", claims.Subject))
	return nil
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(h[7:])
	return raw, raw != ""
}

type userKey struct{}

func WithUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

func UserFromContext(ctx context.Context) *domain.User {
	user, _ := ctx.Value(userKey{}).(*domain.User)
	return user
}
