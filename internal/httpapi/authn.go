package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"taskhive.org/internal/auth"
)

const (
	accessCookie  = "accessToken"
	refreshCookie = "refreshToken"

	authHeader = "Authorization"
	bearer     = "Bearer "
)

// credentialFromRequest prefers the access cookie and falls back to a bearer
// header, so browser and API clients share every route.
func credentialFromRequest(r *http.Request) (string, error) {
	if c, err := r.Cookie(accessCookie); err == nil && c.Value != "" {
		return c.Value, nil
	}
	return extractBearerToken(r.Header.Get(authHeader))
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing credentials")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing credentials")
	}
	return token, nil
}

// authenticate resolves the request's principal or writes the 401/500 itself.
func (a *API) authenticate(w http.ResponseWriter, r *http.Request) (*auth.Principal, bool) {
	token, err := credentialFromRequest(r)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "authentication failed")
		return nil, false
	}
	ctx, cancel := a.storeContext(r)
	defer cancel()
	principal, err := a.sessions.Authenticate(ctx, token)
	if err != nil {
		handleAuthError(w, r, err)
		return nil, false
	}
	return principal, true
}

// requireGlobal runs the global-role gate after authentication.
func (a *API) requireGlobal(w http.ResponseWriter, r *http.Request, allowed ...auth.GlobalRole) (*auth.Principal, bool) {
	principal, ok := a.authenticate(w, r)
	if !ok {
		return nil, false
	}
	if err := auth.RequireGlobalRole(principal, allowed...); err != nil {
		handleAuthError(w, r, err)
		return nil, false
	}
	return principal, true
}

func (a *API) setSessionCookies(w http.ResponseWriter, pair *auth.TokenPair) {
	a.setCookie(w, accessCookie, pair.AccessToken, a.sessions.Codec().AccessTTL())
	a.setCookie(w, refreshCookie, pair.RefreshToken, a.sessions.Codec().RefreshTTL())
}

func (a *API) clearSessionCookies(w http.ResponseWriter) {
	a.setCookie(w, accessCookie, "", -time.Second)
	a.setCookie(w, refreshCookie, "", -time.Second)
}

func (a *API) setCookie(w http.ResponseWriter, name, value string, ttl time.Duration) {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     a.cookies.Path,
		Domain:   a.cookies.Domain,
		HttpOnly: true,
		Secure:   a.cookies.Secure,
		SameSite: a.cookies.SameSite,
	}
	if ttl > 0 {
		c.MaxAge = int(ttl.Seconds())
	} else {
		c.MaxAge = -1
	}
	http.SetCookie(w, c)
}
