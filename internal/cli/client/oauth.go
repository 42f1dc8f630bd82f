package client

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// SessionCookieName is the cookie the federated credential is mirrored into
	SessionCookieName = "token"

	sessionCookieMaxAge = 86400
)

// GoogleAuthorizationURL returns the federated login entry point for a backend origin.
// Federated login is a navigation, never a Call.
func GoogleAuthorizationURL(backendOrigin string) string {
	return strings.TrimRight(backendOrigin, "/") + "/api/v1/oauth2/authorization/google"
}

// CookieStore is the durable storage the mirrored cookie is kept in; an
// auth.TokenStore satisfies it
type CookieStore interface {
	SaveToken(scope, value string) error
	LoadToken(scope string) (string, error)
	DeleteToken(scope string) error
}

// MirrorSessionCookie stores the credential as a short-lived same-site cookie for
// the backend origin, so calls that rely on the cookie rather than the bearer
// header are authenticated too. With a CookieStore the cookie outlives the process.
func (c *Client) MirrorSessionCookie(token string) error {
	origin, err := c.origin()
	if err != nil {
		return err
	}

	expires := time.Now().Add(sessionCookieMaxAge * time.Second)
	c.httpClient.Jar.SetCookies(origin, []*http.Cookie{{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   sessionCookieMaxAge,
		SameSite: http.SameSiteLaxMode,
	}})

	if c.cookies == nil {
		return nil
	}
	record := fmt.Sprintf("%d %s", expires.Unix(), token)
	if err := c.cookies.SaveToken(cookieScope(origin), record); err != nil {
		return fmt.Errorf("failed to persist session cookie: %w", err)
	}
	return nil
}

// SessionCookie returns the mirrored credential cookie, if present
func (c *Client) SessionCookie() (string, bool) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", false
	}
	for _, cookie := range c.httpClient.Jar.Cookies(u) {
		if cookie.Name == SessionCookieName {
			return cookie.Value, true
		}
	}
	return "", false
}

// ClearSessionCookie expires the mirrored credential cookie and its stored copy
func (c *Client) ClearSessionCookie() error {
	origin, err := c.origin()
	if err != nil {
		return err
	}

	c.httpClient.Jar.SetCookies(origin, []*http.Cookie{{
		Name:   SessionCookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	}})

	if c.cookies == nil {
		return nil
	}
	if err := c.cookies.DeleteToken(cookieScope(origin)); err != nil {
		return fmt.Errorf("failed to delete session cookie: %w", err)
	}
	return nil
}

// restoreSessionCookie loads a stored, unexpired cookie into the jar
func (c *Client) restoreSessionCookie() {
	if c.cookies == nil {
		return
	}
	origin, err := c.origin()
	if err != nil {
		return
	}

	record, err := c.cookies.LoadToken(cookieScope(origin))
	if err != nil {
		return
	}

	expiry, value, ok := strings.Cut(record, " ")
	unix, perr := strconv.ParseInt(expiry, 10, 64)
	expires := time.Unix(unix, 0)
	if !ok || perr != nil || value == "" || !time.Now().Before(expires) {
		c.log.Debug().Msg("dropping stale session cookie")
		if err := c.cookies.DeleteToken(cookieScope(origin)); err != nil {
			c.log.Warn().Err(err).Msg("failed to delete session cookie")
		}
		return
	}

	c.httpClient.Jar.SetCookies(origin, []*http.Cookie{{
		Name:     SessionCookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		SameSite: http.SameSiteLaxMode,
	}})
}

func (c *Client) origin() (*url.URL, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}
	return &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}, nil
}

// cookieScope keys the stored cookie next to the credential of the same origin
func cookieScope(origin *url.URL) string {
	return origin.Scheme + "://" + origin.Host + "#cookie"
}
