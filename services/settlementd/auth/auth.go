package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"

	"invokeledger/native/bank"
	"invokeledger/observability/logging"
)

const (
	ScopeAdmin  = "admin"
	ScopeOracle = "oracle"

	// CallerHeader names the caller account when authentication is disabled.
	CallerHeader = "X-Caller"
)

var (
	ErrMissingCaller = errors.New("auth: caller not identified")
	errNoSecret      = errors.New("auth secret not configured")
)

type Config struct {
	Enabled    bool
	HMACSecret string
	Issuer     string
	Audience   string
	ScopeClaim string
	ClockSkew  time.Duration
}

type contextKey string

const (
	contextKeyCaller contextKey = "settlementd.caller"
	contextKeyScopes contextKey = "settlementd.scopes"
)

// Authenticator verifies HMAC-signed bearer tokens whose subject is the
// caller's hex account.
type Authenticator struct {
	cfg    Config
	logger *slog.Logger
	secret []byte
	nowFn  func() time.Time
}

func NewAuthenticator(cfg Config, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ScopeClaim == "" {
		cfg.ScopeClaim = "scope"
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	return &Authenticator{
		cfg:    cfg,
		logger: logger,
		secret: []byte(strings.TrimSpace(cfg.HMACSecret)),
		nowFn:  time.Now,
	}
}

// Middleware resolves the caller and enforces the required scopes. With
// authentication disabled the caller is read from CallerHeader and scopes are
// not checked.
func (a *Authenticator) Middleware(requiredScopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.cfg.Enabled {
				ctx := r.Context()
				if raw := strings.TrimSpace(r.Header.Get(CallerHeader)); raw != "" {
					caller, err := bank.ParseAccount(raw)
					if err != nil {
						http.Error(w, "invalid caller", http.StatusBadRequest)
						return
					}
					ctx = WithCaller(ctx, caller)
				}
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
			tokenString := extractBearer(r.Header.Get("Authorization"))
			if tokenString == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			claims, err := a.parseToken(tokenString)
			if err != nil {
				a.logger.Warn("token validation failed", slog.Any("error", err))
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			if err := validateClaims(claims, a.cfg.Issuer, a.cfg.Audience); err != nil {
				a.logger.Warn("claim validation failed", slog.Any("error", err))
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			subject, _ := claims.GetSubject()
			caller, err := bank.ParseAccount(subject)
			if err != nil {
				a.logger.Warn("token subject rejected", logging.MaskField("subject", subject))
				http.Error(w, "invalid token subject", http.StatusUnauthorized)
				return
			}
			scopes := extractScopes(claims, a.cfg.ScopeClaim)
			if !hasScopes(scopes, requiredScopes) {
				a.logger.Warn("caller lacks required scope",
					logging.MaskAccount("caller", subject),
					slog.Any("required", requiredScopes))
				http.Error(w, "insufficient scope", http.StatusForbidden)
				return
			}
			ctx := WithCaller(r.Context(), caller)
			ctx = context.WithValue(ctx, contextKeyScopes, scopes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Issue signs a token for subject with the configured secret. Used by
// operators and tests to mint credentials.
func (a *Authenticator) Issue(subject [20]byte, ttl time.Duration, scopes ...string) (string, error) {
	if len(a.secret) == 0 {
		return "", errNoSecret
	}
	now := a.nowFn()
	claims := jwt.MapClaims{
		"sub": formatSubject(subject),
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if a.cfg.Issuer != "" {
		claims["iss"] = a.cfg.Issuer
	}
	if a.cfg.Audience != "" {
		claims["aud"] = a.cfg.Audience
	}
	if len(scopes) > 0 {
		claims[a.cfg.ScopeClaim] = strings.Join(scopes, " ")
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// WithCaller attaches the caller account to ctx.
func WithCaller(ctx context.Context, caller [20]byte) context.Context {
	return context.WithValue(ctx, contextKeyCaller, caller)
}

// CallerFromContext returns the authenticated caller.
func CallerFromContext(ctx context.Context) ([20]byte, error) {
	caller, ok := ctx.Value(contextKeyCaller).([20]byte)
	if !ok {
		return [20]byte{}, ErrMissingCaller
	}
	return caller, nil
}

// ScopesFromContext returns the scopes granted to the caller's token.
func ScopesFromContext(ctx context.Context) []string {
	scopes, _ := ctx.Value(contextKeyScopes).([]string)
	return scopes
}

func (a *Authenticator) parseToken(tokenString string) (jwt.MapClaims, error) {
	if len(a.secret) == 0 {
		return nil, errNoSecret
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithLeeway(a.cfg.ClockSkew), jwt.WithTimeFunc(a.nowFn))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token invalid")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("claims not map")
	}
	return claims, nil
}

func validateClaims(claims jwt.MapClaims, issuer, audience string) error {
	if issuer != "" {
		if value, ok := claims["iss"].(string); !ok || value != issuer {
			return errors.New("issuer mismatch")
		}
	}
	if audience != "" {
		switch val := claims["aud"].(type) {
		case string:
			if val != audience {
				return errors.New("audience mismatch")
			}
		case []interface{}:
			matched := false
			for _, entry := range val {
				if s, ok := entry.(string); ok && s == audience {
					matched = true
					break
				}
			}
			if !matched {
				return errors.New("audience mismatch")
			}
		default:
			return errors.New("audience mismatch")
		}
	}
	return nil
}

func extractScopes(claims jwt.MapClaims, scopeClaim string) []string {
	raw, ok := claims[scopeClaim]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case string:
		return strings.Fields(v)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, entry := range v {
			if s, ok := entry.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func hasScopes(scopes []string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(scopes))
	for _, scope := range scopes {
		set[scope] = struct{}{}
	}
	for _, req := range required {
		if _, ok := set[req]; !ok {
			return false
		}
	}
	return true
}

func extractBearer(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func formatSubject(addr [20]byte) string {
	return ethcommon.Address(addr).Hex()
}
