// Package auth provides the signed-token codec, the GitHub OAuth client,
// and the authentication middleware for the API.
//
// AUTHENTICATION FLOW OVERVIEW:
// 1. User visits /api/auth/github → redirected to GitHub with a signed state token
// 2. GitHub calls back /api/auth/github/callback with a code + that state
// 3. Server verifies the state, exchanges the code for a GitHub profile,
//    upserts the user, and creates a session row
// 4. Server issues TWO JWTs in HttpOnly cookies:
//    - access_token  (15 min)  → proves identity on every API call
//    - refresh_token (30 days) → mints new access tokens via POST /api/auth/refresh
// 5. Middleware reads the access cookie, validates the JWT, and attaches the
//    user to the request context
//
// WHY JWT?
// JWT (JSON Web Token) is stateless — the server doesn't need to store
// access-token data. All the information needed (user ID, username, expiry)
// is inside the signed token. The signature ensures nobody can tamper with
// it without the secret key. Refresh tokens get the best of both worlds:
// the JWT is stateless, but it embeds a session ID that must still exist in
// the database, so a refresh token can be revoked by deleting its row.
package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

// TokenKind distinguishes the three token flavours we issue.
//
// Each kind gets its own lifetime AND its own signing key (derived below).
// Key separation matters: with a single shared key, a valid access token
// would also verify as a state token, letting an attacker replay one kind
// of credential where another is expected.
type TokenKind string

const (
	// AccessToken is the short-lived credential checked on every protected request.
	AccessToken TokenKind = "access"
	// RefreshToken is the long-lived credential used solely to mint new access tokens.
	RefreshToken TokenKind = "refresh"
	// StateToken binds an OAuth redirect to its callback (CSRF protection).
	// It is signed rather than stored, so no server-side nonce table is needed.
	StateToken TokenKind = "state"
)

// TTL returns the validity window for tokens of this kind.
func (k TokenKind) TTL() time.Duration {
	switch k {
	case AccessToken:
		return 15 * time.Minute
	case RefreshToken:
		return 30 * 24 * time.Hour
	case StateToken:
		return 10 * time.Minute
	}
	return 0
}

// issuer identifies tokens minted by this application. Verification checks
// it, so tokens from other apps sharing a secret are still rejected.
const issuer = "gitdoor"

// Claims is the JWT payload for all three token kinds. It embeds
// jwt.RegisteredClaims (Subject, IssuedAt, ExpiresAt, Issuer) and adds the
// kind-specific fields:
//
//	access:  Subject = user ID, Username
//	refresh: Subject = user ID, SessionID
//	state:   Nonce (random), IssuedAt doubles as the freshness timestamp
//
// Unused fields are omitted from the encoded token via omitempty.
type Claims struct {
	Username  string `json:"username,omitempty"`
	SessionID string `json:"sid,omitempty"`
	Nonce     string `json:"nonce,omitempty"`
	jwt.RegisteredClaims
}

// Subject returns the registered-claims base for a token about userID, so
// callers outside this package don't need to import the jwt library just to
// set one field.
func Subject(userID string) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{Subject: userID}
}

// Codec signs and verifies the application's compact tokens.
//
// It holds one HMAC key per token kind, all derived from a single
// configured secret with HKDF (RFC 5869), using the kind as the info string:
//
//	key(kind) = HKDF-SHA256(secret, info="gitdoor/"+kind)
//
// Deriving rather than configuring three secrets keeps deployment to one
// environment variable while still guaranteeing that a token signed as one
// kind can never verify as another.
type Codec struct {
	keys map[TokenKind][]byte
}

// NewCodec creates a Codec from the configured signing secret.
// The secret should be at least 32 bytes of random data in production.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewCodec(secret string) (*Codec, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}

	keys := make(map[TokenKind][]byte, 3)
	for _, kind := range []TokenKind{AccessToken, RefreshToken, StateToken} {
		key := make([]byte, sha256.Size)
		kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte("gitdoor/"+string(kind)))
		if _, err := io.ReadFull(kdf, key); err != nil {
			return nil, fmt.Errorf("auth: deriving %s key: %w", kind, err)
		}
		keys[kind] = key
	}

	return &Codec{keys: keys}, nil
}

// Sign creates and signs a token of the given kind, stamping IssuedAt = now
// and ExpiresAt = now + the kind's TTL. The caller fills only the
// kind-specific fields of c (Subject, Username, SessionID, Nonce).
//
// Signing algorithm: HS256 (HMAC-SHA256). Symmetric signing is fine here
// because signer and verifier are the same process.
func (c *Codec) Sign(kind TokenKind, claims Claims) (string, error) {
	return c.SignIssuedAt(kind, claims, time.Now())
}

// SignIssuedAt is Sign with an explicit issue time. Exported so tests can
// mint tokens "from the past" (e.g. a state token that is 11 minutes old)
// without sleeping.
func (c *Codec) SignIssuedAt(kind TokenKind, claims Claims, issuedAt time.Time) (string, error) {
	key, ok := c.keys[kind]
	if !ok {
		return "", fmt.Errorf("auth: unknown token kind %q", kind)
	}

	claims.Issuer = issuer
	claims.IssuedAt = jwt.NewNumericDate(issuedAt)
	claims.ExpiresAt = jwt.NewNumericDate(issuedAt.Add(kind.TTL()))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("auth: signing %s token: %w", kind, err)
	}

	return signed, nil
}

// Verify parses a token string and checks it against the given kind's key.
//
// VALIDATION CHECKS:
//   - Signature is valid for THIS kind's derived key (wrong kind ⇒ signature
//     mismatch, so cross-kind replay fails before any claim is read)
//   - Token is not expired (ExpiresAt in the future, required to be present)
//   - Issuer matches (prevents tokens from other apps)
//   - Algorithm is HS256 (prevents algorithm confusion attacks)
//   - State tokens only: IssuedAt is present and no older than the state
//     TTL — a wall-clock freshness check on top of the transport expiry
//
// Any failure returns a nil Claims and a non-nil error. Callers treat every
// error identically: authentication failure. The error text is for logs,
// never for the client.
func (c *Codec) Verify(kind TokenKind, tokenStr string) (*Claims, error) {
	key, ok := c.keys[kind]
	if !ok {
		return nil, fmt.Errorf("auth: unknown token kind %q", kind)
	}

	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(token *jwt.Token) (any, error) {
			// Reject tokens that aren't signed with HMAC
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return key, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("auth: %s token expired", kind)
		}
		return nil, fmt.Errorf("auth: invalid %s token: %w", kind, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid %s token claims", kind)
	}

	if kind == StateToken {
		// Freshness re-check: even if exp were somehow generous, a state
		// token minted more than 10 minutes ago is stale.
		if claims.IssuedAt == nil {
			return nil, errors.New("auth: state token has no issued-at")
		}
		if time.Since(claims.IssuedAt.Time) > StateToken.TTL() {
			return nil, errors.New("auth: state token too old")
		}
	}

	return claims, nil
}
