// Package auth resolves the caller's identity from the external identity
// provider. Identity verification itself is Clerk's job; this package only
// validates the session token and projects the verified claims into an
// authz.Identity for downstream handlers.
package auth

import (
	"net/http"
	"strings"

	"github.com/clerk/clerk-sdk-go/v2"
	"github.com/clerk/clerk-sdk-go/v2/jwt"
	"github.com/clerk/clerk-sdk-go/v2/user"
	"github.com/rs/zerolog/log"

	"github.com/ulisao/NuevoAnden/internal/authz"
)

// clerkInitialized indicates whether the Clerk SDK has been initialized
var clerkInitialized bool

// InitClerk initializes Clerk SDK with the secret key
func InitClerk(secretKey string) {
	if secretKey == "" {
		log.Warn().Msg("Clerk secret key not configured")
		return
	}
	clerk.SetKey(secretKey)
	clerkInitialized = true
	log.Info().Msg("Clerk SDK initialized")
}

// WithIdentity resolves the caller's identity and stores it in the request
// context. Anonymous requests pass through with no identity; handlers that
// need one fail with AuthRequired. When allowDevHeaders is set (development
// only) identity may be supplied via X-User-* headers instead of a session.
func WithIdentity(allowDevHeaders bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if identity := identityFromRequest(r, allowDevHeaders); identity != nil {
				ctx := authz.ContextWithIdentity(r.Context(), identity)
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func identityFromRequest(r *http.Request, allowDevHeaders bool) *authz.Identity {
	if clerkInitialized {
		token := sessionToken(r)
		if token == "" {
			return nil
		}

		claims, err := jwt.Verify(r.Context(), &jwt.VerifyParams{Token: token})
		if err != nil {
			log.Ctx(r.Context()).Debug().Err(err).Msg("Invalid Clerk session token")
			return nil
		}

		clerkUser, err := user.Get(r.Context(), claims.Subject)
		if err != nil {
			log.Ctx(r.Context()).Error().Err(err).Str("clerk_user_id", claims.Subject).Msg("Failed to get Clerk user")
			return nil
		}

		return &authz.Identity{
			ID:    claims.Subject,
			Email: primaryEmail(clerkUser),
			Name:  displayName(clerkUser),
		}
	}

	if allowDevHeaders {
		userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
		if userID == "" {
			return nil
		}
		return &authz.Identity{
			ID:    userID,
			Email: strings.TrimSpace(r.Header.Get("X-User-Email")),
			Name:  strings.TrimSpace(r.Header.Get("X-User-Name")),
		}
	}

	return nil
}

// sessionToken pulls the Clerk session from the cookie Clerk sets, falling
// back to an Authorization bearer for API clients.
func sessionToken(r *http.Request) string {
	if cookie, err := r.Cookie("__session"); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	header := r.Header.Get("Authorization")
	if token, found := strings.CutPrefix(header, "Bearer "); found {
		return strings.TrimSpace(token)
	}
	return ""
}

func primaryEmail(clerkUser *clerk.User) string {
	if clerkUser == nil {
		return ""
	}
	if clerkUser.PrimaryEmailAddressID != nil {
		for _, email := range clerkUser.EmailAddresses {
			if email.ID == *clerkUser.PrimaryEmailAddressID {
				return email.EmailAddress
			}
		}
	}
	if len(clerkUser.EmailAddresses) > 0 {
		return clerkUser.EmailAddresses[0].EmailAddress
	}
	return ""
}

func displayName(clerkUser *clerk.User) string {
	if clerkUser == nil {
		return ""
	}
	var parts []string
	if clerkUser.FirstName != nil && *clerkUser.FirstName != "" {
		parts = append(parts, *clerkUser.FirstName)
	}
	if clerkUser.LastName != nil && *clerkUser.LastName != "" {
		parts = append(parts, *clerkUser.LastName)
	}
	return strings.Join(parts, " ")
}
