package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/recebi/internal/errs"
	"github.com/and161185/recebi/internal/limiter"
	"github.com/and161185/recebi/internal/metrics"
	"github.com/and161185/recebi/internal/model"
	"github.com/and161185/recebi/internal/repository"
)

const tokenLeeway = 30 * time.Second

// Authenticator verifies credentials. Implemented by DirectoryServiceImpl.
type Authenticator interface {
	Authenticate(ctx context.Context, email, secret string) (*model.Actor, error)
}

// AuthService defines login and bearer token operations.
type AuthService interface {
	// Login applies rate-limiting and authenticates the actor.
	Login(ctx context.Context, email, secret, ip string) (model.Tokens, model.Actor, error)
	// Principal resolves a bearer token to the live caller.
	Principal(ctx context.Context, token string) (model.Principal, error)
	// Logout ends the session. Tokens are stateless, so this only produces a farewell.
	Logout(ctx context.Context, caller model.Principal) string
}

// Claims is the access token payload.
type Claims struct {
	Name   string            `json:"name"`
	Email  string            `json:"email"`
	Role   model.Role        `json:"role"`
	Status model.ActorStatus `json:"status"`
	jwt.RegisteredClaims
}

type AuthServiceImpl struct {
	dir       Authenticator
	actors    repository.ActorRepository
	signKey   []byte
	accessTTL time.Duration
	lim       limiter.Limiter
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(dir Authenticator, actors repository.ActorRepository, signKey []byte, accessTTL time.Duration, lim limiter.Limiter) *AuthServiceImpl {
	return &AuthServiceImpl{dir: dir, actors: actors, signKey: signKey, accessTTL: accessTTL, lim: lim}
}

// Login authenticates with rate limiting by (email, ip).
func (s *AuthServiceImpl) Login(ctx context.Context, email, secret, ip string) (model.Tokens, model.Actor, error) {
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, email, ipHash)
	if err != nil {
		return model.Tokens{}, model.Actor{}, err
	}
	if !allowed {
		metrics.LoginsTotal.WithLabelValues("blocked").Inc()
		return model.Tokens{}, model.Actor{}, errs.ErrRateLimited
	}

	a, err := s.dir.Authenticate(ctx, email, secret)
	if err != nil {
		if !errors.Is(err, errs.ErrUnauthorized) {
			return model.Tokens{}, model.Actor{}, err
		}
		metrics.LoginsTotal.WithLabelValues("failed").Inc()
		if blocked, _, ferr := s.lim.Failure(ctx, email, ipHash); ferr == nil && blocked {
			return model.Tokens{}, model.Actor{}, errs.ErrRateLimited
		}
		return model.Tokens{}, model.Actor{}, errs.ErrUnauthorized
	}

	_ = s.lim.Success(ctx, email, ipHash)

	access, exp, err := s.issueAccessToken(a)
	if err != nil {
		return model.Tokens{}, model.Actor{}, err
	}
	metrics.LoginsTotal.WithLabelValues("ok").Inc()
	return model.Tokens{AccessToken: access, ExpiresAt: exp}, *a, nil
}

// issueAccessToken creates a signed HS256 JWT for the given actor.
func (s *AuthServiceImpl) issueAccessToken(a *model.Actor) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(s.accessTTL)
	claims := Claims{
		Name:   a.Name,
		Email:  a.Email,
		Role:   a.Role,
		Status: a.Status,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.signKey)
	return signed, exp, err
}

// Principal verifies the token and reloads the actor, so role and status come from the live record.
// An inactive actor with a valid token is Forbidden.
func (s *AuthServiceImpl) Principal(ctx context.Context, token string) (model.Principal, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.signKey, nil
	}, jwt.WithLeeway(tokenLeeway), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return model.Principal{}, fmt.Errorf("invalid token: %w", errs.ErrUnauthorized)
	}

	id, err := uuid.FromString(claims.Subject)
	if err != nil {
		return model.Principal{}, fmt.Errorf("bad subject: %w", errs.ErrUnauthorized)
	}
	a, err := s.actors.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.Principal{}, fmt.Errorf("actor %s gone: %w", id, errs.ErrUnauthorized)
		}
		return model.Principal{}, err
	}
	if !a.Active() {
		return model.Principal{}, fmt.Errorf("actor %s is inactive: %w", id, errs.ErrForbidden)
	}
	return model.Principal{ID: a.ID, Name: a.Name, Role: a.Role, Status: a.Status}, nil
}

func (s *AuthServiceImpl) Logout(_ context.Context, caller model.Principal) string {
	return fmt.Sprintf("%s saiu do sistema com sucesso.", caller.Name)
}
