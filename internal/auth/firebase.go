package auth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/sony/gobreaker"
)

const (
	// DefaultCertsURL publishes the x509 certificates that sign Firebase ID tokens.
	DefaultCertsURL = "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"

	issuerPrefix  = "https://securetoken.google.com/"
	defaultKeyTTL = time.Minute
)

// FirebaseVerifier verifies Firebase ID tokens: RS256 JWTs signed by one of
// the provider's published certificates, issued for a single project.
type FirebaseVerifier struct {
	projectID string
	keys      *keySource
}

type FirebaseOption func(*keySource)

// WithCertsURL overrides where signing certificates are fetched from.
func WithCertsURL(url string) FirebaseOption {
	return func(ks *keySource) { ks.url = url }
}

// WithHTTPClient sets the client used for certificate fetches.
func WithHTTPClient(client *http.Client) FirebaseOption {
	return func(ks *keySource) { ks.client = client }
}

// NewFirebaseVerifier creates a verifier for tokens of projectID.
func NewFirebaseVerifier(projectID string, opts ...FirebaseOption) *FirebaseVerifier {
	ks := &keySource{
		url:    DefaultCertsURL,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(ks)
	}
	ks.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "firebase-certs",
		Timeout: 30 * time.Second,
	})
	return &FirebaseVerifier{projectID: projectID, keys: ks}
}

type firebaseClaims struct {
	jwt.RegisteredClaims
	Email    string `json:"email"`
	AuthTime int64  `json:"auth_time"`
}

// Verify checks the signature, lifetime, audience, issuer and subject of raw.
func (v *FirebaseVerifier) Verify(ctx context.Context, raw string) (*Claims, error) {
	claims := &firebaseClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	_, err := parser.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token has no kid header")
		}
		return v.keys.key(ctx, kid)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	now := time.Now()
	switch {
	case !claims.VerifyExpiresAt(now, true):
		return nil, fmt.Errorf("%w: missing or expired exp", ErrUnauthenticated)
	case !claims.VerifyAudience(v.projectID, true):
		return nil, fmt.Errorf("%w: audience mismatch", ErrUnauthenticated)
	case !claims.VerifyIssuer(issuerPrefix+v.projectID, true):
		return nil, fmt.Errorf("%w: issuer mismatch", ErrUnauthenticated)
	case !claims.VerifyIssuedAt(now, true):
		return nil, fmt.Errorf("%w: missing or future iat", ErrUnauthenticated)
	case claims.Subject == "":
		return nil, fmt.Errorf("%w: empty subject", ErrUnauthenticated)
	case claims.AuthTime > now.Unix():
		return nil, fmt.Errorf("%w: auth_time in the future", ErrUnauthenticated)
	}

	out := &Claims{
		Subject: claims.Subject,
		Email:   claims.Email,
		Issuer:  claims.Issuer,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// keySource caches the certificate document until its max-age runs out.
// Fetches pass through a circuit breaker so an unreachable provider fails
// fast instead of stalling every request.
type keySource struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker

	mu      sync.Mutex
	keys    map[string]*rsa.PublicKey
	expires time.Time
}

type keySet struct {
	keys    map[string]*rsa.PublicKey
	expires time.Time
}

func (ks *keySource) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	if time.Now().After(ks.expires) {
		res, err := ks.breaker.Execute(func() (interface{}, error) {
			return ks.fetch(ctx)
		})
		if err != nil {
			return nil, fmt.Errorf("fetch signing keys: %w", err)
		}
		set := res.(*keySet)
		ks.keys, ks.expires = set.keys, set.expires
	}

	key, ok := ks.keys[kid]
	if !ok {
		return nil, fmt.Errorf("unknown signing key %q", kid)
	}
	return key, nil
}

func (ks *keySource) fetch(ctx context.Context) (*keySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ks.url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := ks.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var certs map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&certs); err != nil {
		return nil, fmt.Errorf("decode certificates: %w", err)
	}

	set := &keySet{
		keys:    make(map[string]*rsa.PublicKey, len(certs)),
		expires: time.Now().Add(maxAge(resp.Header.Get("Cache-Control"))),
	}
	for kid, pem := range certs {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pem))
		if err != nil {
			return nil, fmt.Errorf("parse certificate %q: %w", kid, err)
		}
		set.keys[kid] = key
	}
	return set, nil
}

// maxAge extracts the max-age directive of a Cache-Control header.
func maxAge(header string) time.Duration {
	for _, directive := range strings.Split(header, ",") {
		directive = strings.TrimSpace(directive)
		if v, ok := strings.CutPrefix(directive, "max-age="); ok {
			if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
				return time.Duration(secs) * time.Second
			}
		}
	}
	return defaultKeyTTL
}
