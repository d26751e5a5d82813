package auth

import (
	"context"
	"net/http"

	"github.com/nafisb/gitdoor/internal/model"
)

// contextKey is an unexported type used for context keys in this package.
//
// WHY A CUSTOM TYPE FOR CONTEXT KEYS?
// context.WithValue uses any as the key type. If you use a plain string like
// context.WithValue(ctx, "user", u), ANY package that knows the string "user"
// can read or shadow your value. A package-private key type means only THIS
// package can read or write the user value in the context.
type contextKey string

const userKey contextKey = "user"

// UserLoader is the slice of the user directory the gate needs. Declaring
// the interface here (at the consumer) keeps the middleware testable with a
// two-line fake instead of a database.
type UserLoader interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// Cookie names shared by the middleware and the auth handlers.
const (
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"
)

// RequireUser is the authentication gate for protected routes.
//
// It reads the JWT from the access_token HttpOnly cookie, verifies it as an
// access token, loads the user behind the token's subject claim, and stores
// the full user record in the request context. Each step has its own 401:
//
//	no cookie          → {"error":"Unauthorized"}
//	bad/expired token  → {"error":"Invalid or expired token"}
//	unknown subject    → {"error":"User not found"}
//
// COOKIE-BASED TOKEN STORAGE:
// We store the JWT in an HttpOnly cookie rather than localStorage or a
// header. HttpOnly means JavaScript cannot read it, which prevents XSS
// from stealing the token.
func RequireUser(codec *Codec, users UserLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(AccessCookie)
			if err != nil {
				unauthorized(w, "Unauthorized")
				return
			}

			claims, err := codec.Verify(AccessToken, cookie.Value)
			if err != nil {
				unauthorized(w, "Invalid or expired token")
				return
			}

			user, err := users.GetByID(r.Context(), claims.Subject)
			if err != nil {
				unauthorized(w, "User not found")
				return
			}

			// Store the user in context so handlers can read it
			ctx := context.WithValue(r.Context(), userKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalUser extracts the user if a valid access token is present, but
// never blocks the request. Public pages with a personalised corner share
// one handler this way: UserFromContext returning (nil, false) just means
// the request is anonymous.
func OptionalUser(codec *Codec, users UserLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cookie, err := r.Cookie(AccessCookie); err == nil {
				if claims, err := codec.Verify(AccessToken, cookie.Value); err == nil {
					if user, err := users.GetByID(r.Context(), claims.Subject); err == nil {
						r = r.WithContext(context.WithValue(r.Context(), userKey, user))
					}
				}
			}
			// Always continue — no 401 even with no/bad token
			next.ServeHTTP(w, r)
		})
	}
}

// UserFromContext retrieves the authenticated user from the request context.
//
// Returns (nil, false) if the request is anonymous.
//
// Usage in handlers:
//
//	user, ok := auth.UserFromContext(r.Context())
//	if !ok {
//	    // anonymous request
//	}
func UserFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(userKey).(*model.User)
	return user, ok && user != nil
}

// unauthorized writes the 401 JSON body the gate promises.
// The shape is always {"error":"<message>"} — no extra fields.
func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + message + `"}`))
}
