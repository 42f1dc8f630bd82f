package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// forwardPage sends location.search and location.hash back to the callback,
// since the fragment never reaches the server.
const forwardPage = `<!doctype html>
<html>
<head><title>Completing sign-in</title></head>
<body>
<p>Completing Google sign-in...</p>
<script>
var q = window.location.search.replace(/^\?/, '');
var f = window.location.hash.replace(/^#/, '');
window.location.replace(%s + '?q=' + encodeURIComponent(q) + '&f=' + encodeURIComponent(f));
</script>
</body>
</html>`

// Callback is a loopback HTTP server standing in for the frontend's redirect view
type Callback struct {
	handler *Handler
	origin  string
	path    string
	log     zerolog.Logger

	router  *gin.Engine
	server  *http.Server
	results chan Result
}

// NewCallback creates a callback for redirectURL (frontend origin + redirect path)
func NewCallback(handler *Handler, redirectURL string, log zerolog.Logger) (*Callback, error) {
	u, err := url.Parse(redirectURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid redirect URL %q", redirectURL)
	}

	cb := &Callback{
		handler: handler,
		origin:  u.Scheme + "://" + u.Host,
		path:    "/" + strings.Trim(u.Path, "/"),
		log:     log,
		results: make(chan Result, 1),
	}
	cb.setupRouter()
	return cb, nil
}

func (cb *Callback) setupRouter() {
	gin.SetMode(gin.ReleaseMode)

	cb.router = gin.New()
	cb.router.Use(gin.Recovery())
	cb.router.Use(cb.loggingMiddleware())

	cb.router.GET(cb.path, cb.redirect)
	cb.router.GET(cb.completePath(), cb.complete)
}

// Handler returns the callback's HTTP handler
func (cb *Callback) Handler() http.Handler {
	return cb.router
}

// Start listens on the redirect URL's host and serves in the background.
// It returns the bound address.
func (cb *Callback) Start() (string, error) {
	addr := listenAddr(cb.origin)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	cb.server = &http.Server{
		Handler:           cb.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := cb.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			cb.log.Error().Err(err).Msg("oauth callback server failed")
		}
	}()

	cb.log.Debug().Str("addr", listener.Addr().String()).Msg("oauth callback listening")
	return listener.Addr().String(), nil
}

// Wait blocks until the first redirect has been handled or ctx is done
func (cb *Callback) Wait(ctx context.Context) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case result := <-cb.results:
		return result, nil
	}
}

// Shutdown stops the server
func (cb *Callback) Shutdown(ctx context.Context) error {
	if cb.server == nil {
		return nil
	}
	return cb.server.Shutdown(ctx)
}

// redirect handles the provider's redirect. Query-borne results are handled
// directly; anything else may live in the fragment and is forwarded.
func (cb *Callback) redirect(c *gin.Context) {
	query := c.Request.URL.Query()
	if lo.CoalesceOrEmpty(query.Get("token"), query.Get("access_token"), query.Get("error")) != "" {
		cb.handle(c, cb.origin+cb.path+"?"+c.Request.URL.RawQuery)
		return
	}

	target, _ := json.Marshal(cb.completePath())
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(fmt.Sprintf(forwardPage, target)))
}

func (cb *Callback) complete(c *gin.Context) {
	raw := cb.origin + cb.path
	if q := c.Query("q"); q != "" {
		raw += "?" + q
	}
	if f := c.Query("f"); f != "" {
		raw += "#" + f
	}
	cb.handle(c, raw)
}

func (cb *Callback) handle(c *gin.Context, rawURL string) {
	result, err := cb.handler.Handle(c.Request.Context(), rawURL)
	if err != nil {
		cb.log.Error().Err(err).Msg("failed to handle oauth redirect")
		c.String(http.StatusInternalServerError, "Sign-in failed: %v", err)
		return
	}

	select {
	case cb.results <- result:
	default:
	}

	switch result.Outcome {
	case LoggedIn:
		c.String(http.StatusOK, "Signed in. You can close this window and return to the terminal.")
	case Failed:
		c.String(http.StatusUnauthorized, "OAuth2 login failed: %s", result.Error)
	default:
		c.String(http.StatusBadRequest, msgNoToken)
	}
}

// listenAddr returns host:port for origin, defaulting the port from the scheme
func listenAddr(origin string) string {
	u, err := url.Parse(origin)
	if err != nil {
		return origin
	}
	if port := u.Port(); port != "" {
		return u.Host
	}
	port := "80"
	if u.Scheme == "https" {
		port = "443"
	}
	return net.JoinHostPort(u.Hostname(), port)
}

func (cb *Callback) completePath() string {
	return strings.TrimRight(cb.path, "/") + "/complete"
}

// loggingMiddleware logs method, path and status; the query is omitted because it carries the credential
func (cb *Callback) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		cb.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("oauth callback request")
	}
}
