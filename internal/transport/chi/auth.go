package chi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"

	"github.com/kailas-cloud/selectd/internal/domain"
)

// APIKey maps a static bearer token to an identity.
type APIKey struct {
	Key       string
	User      string
	Groups    []string
	Superuser bool
}

// AuthConfig configures request authentication.
type AuthConfig struct {
	APIKeys []APIKey
	// JWTSecret enables HS256 bearer tokens when set.
	JWTSecret string
	JWTIssuer string
	// Leeway tolerates clock skew on exp/nbf.
	Leeway time.Duration
}

// Claims are the JWT claims that make up a principal.
type Claims struct {
	Groups    []string `json:"groups,omitempty"`
	Superuser bool     `json:"superuser,omitempty"`
	jwt.RegisteredClaims
}

var errInvalidToken = errors.New("invalid bearer token")

// exemptPaths are routes that bypass authentication (health, metrics).
var exemptPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// AuthMiddleware resolves the principal of every request and stores it,
// with the request id, in the context. Requests without credentials run as
// the anonymous principal; the authorization gate decides what they may see.
// Invalid credentials are rejected with 401.
func AuthMiddleware(cfg AuthConfig) func(http.Handler) http.Handler {
	keys := make(map[string]APIKey, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		if k.Key != "" {
			keys[k.Key] = k
		}
	}

	var parser *jwt.Parser
	if cfg.JWTSecret != "" {
		opts := []jwt.ParserOption{
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithLeeway(cfg.Leeway),
		}
		if cfg.JWTIssuer != "" {
			opts = append(opts, jwt.WithIssuer(cfg.JWTIssuer))
		}
		parser = jwt.NewParser(opts...)
	}
	secret := []byte(cfg.JWTSecret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exemptPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			rc := domain.RequestContext{
				Principal: domain.AnonymousPrincipal(),
				RequestID: chimw.GetReqID(r.Context()),
			}

			auth := r.Header.Get("Authorization")
			if auth != "" {
				const bearerPrefix = "Bearer "
				if !strings.HasPrefix(auth, bearerPrefix) {
					writeError(w, http.StatusUnauthorized, codeUnauthenticated,
						"authorization header must use Bearer scheme")
					return
				}

				p, err := authenticate(auth[len(bearerPrefix):], keys, parser, secret)
				if err != nil {
					writeError(w, http.StatusUnauthorized, codeUnauthenticated, err.Error())
					return
				}
				rc.Principal = p
			}

			ctx := domain.ContextWithRequest(r.Context(), rc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(token string, keys map[string]APIKey, parser *jwt.Parser, secret []byte) (domain.Principal, error) {
	if k, ok := keys[token]; ok {
		return domain.Principal{ID: k.User, Groups: k.Groups, Superuser: k.Superuser}, nil
	}
	if parser == nil {
		return domain.Principal{}, errInvalidToken
	}

	var claims Claims
	_, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Principal{}, fmt.Errorf("%w: token expired", errInvalidToken)
		}
		return domain.Principal{}, errInvalidToken
	}
	if claims.Subject == "" {
		return domain.Principal{}, fmt.Errorf("%w: missing subject", errInvalidToken)
	}
	return domain.Principal{ID: claims.Subject, Groups: claims.Groups, Superuser: claims.Superuser}, nil
}
