package perm

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
)

const defaultKeyCacheTTL = 15 * time.Minute

var (
	ErrMissingAuthorization = errors.New("missing authorization")
	ErrBadAuthorization     = errors.New("bad authorization header")
)

// Claims is the token payload issued by the identity service.
type Claims struct {
	Name   string   `json:"name,omitempty"`
	Role   Role     `json:"role,omitempty"`
	Groups []string `json:"groups,omitempty"`
	Perms  []string `json:"perms,omitempty"`
	jwt.RegisteredClaims
}

// Verifier turns bearer tokens into identities. It accepts HS256 tokens
// signed with Secret, or RS256 tokens whose keys come from JWKS.
type Verifier struct {
	JWKS     *keyfunc.JWKS
	Secret   []byte
	Audience string
	Issuer   string

	parser      *jwt.Parser
	keyCache    sync.Map
	keyCacheTTL time.Duration
}

type cachedKey struct {
	key       any
	expiresAt time.Time
}

func NewSecretVerifier(secret []byte) *Verifier {
	return &Verifier{
		Secret: secret,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{"HS256"})),
	}
}

// NewJWKSVerifier fetches the key set at url and keeps it refreshed in the
// background.
func NewJWKSVerifier(url, audience, issuer string) (*Verifier, error) {
	jwks, err := keyfunc.Get(url, keyfunc.Options{
		RefreshInterval:   time.Hour,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, err
	}
	return &Verifier{
		JWKS:        jwks,
		Audience:    audience,
		Issuer:      issuer,
		parser:      jwt.NewParser(jwt.WithValidMethods([]string{"RS256"})),
		keyCacheTTL: defaultKeyCacheTTL,
	}, nil
}

// Close stops the JWKS refresh goroutine, if any.
func (v *Verifier) Close() {
	if v != nil && v.JWKS != nil {
		v.JWKS.EndBackground()
	}
}

// IdentityFromHeader reads an Authorization header value.
func (v *Verifier) IdentityFromHeader(h string) (Identity, error) {
	h = strings.TrimSpace(h)
	if h == "" {
		return Identity{}, ErrMissingAuthorization
	}
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return Identity{}, ErrBadAuthorization
	}
	return v.IdentityFromToken(strings.TrimSpace(h[len(prefix):]))
}

func (v *Verifier) IdentityFromToken(token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrBadAuthorization
	}
	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(token, claims, v.key)
	if err != nil {
		return Identity{}, err
	}
	if claims.ExpiresAt == nil {
		return Identity{}, errors.New("token missing exp")
	}
	if v.Audience != "" && !claims.VerifyAudience(v.Audience, true) {
		return Identity{}, errors.New("invalid audience")
	}
	if v.Issuer != "" && !claims.VerifyIssuer(v.Issuer, true) {
		return Identity{}, errors.New("invalid issuer")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Identity{}, errors.New("missing sub")
	}
	return Identity{
		Subject:     claims.Subject,
		Name:        claims.Name,
		Role:        claims.Role,
		Groups:      claims.Groups,
		Permissions: claims.Perms,
	}, nil
}

func (v *Verifier) key(t *jwt.Token) (any, error) {
	if len(v.Secret) > 0 {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return v.Secret, nil
	}
	if v.JWKS == nil {
		return nil, errors.New("jwks not configured")
	}

	kid, _ := t.Header["kid"].(string)
	if kid != "" && v.keyCacheTTL > 0 {
		if cached, ok := v.keyCache.Load(kid); ok {
			entry := cached.(cachedKey)
			if time.Now().Before(entry.expiresAt) {
				return entry.key, nil
			}
			v.keyCache.Delete(kid)
		}
	}
	key, err := v.JWKS.Keyfunc(t)
	if err != nil {
		return nil, err
	}
	if kid != "" && v.keyCacheTTL > 0 {
		v.keyCache.Store(kid, cachedKey{key: key, expiresAt: time.Now().Add(v.keyCacheTTL)})
	}
	return key, nil
}

// IssueToken mints an HS256 token for id, valid for ttl.
func IssueToken(secret []byte, id Identity, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("missing signing secret")
	}
	if strings.TrimSpace(id.Subject) == "" {
		return "", errors.New("missing subject")
	}
	now := time.Now()
	claims := Claims{
		Name:   id.Name,
		Role:   id.Role,
		Groups: id.Groups,
		Perms:  id.Permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
