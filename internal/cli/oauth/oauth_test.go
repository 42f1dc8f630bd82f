package oauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fullstackauth/fsauth/internal/cli/auth"
	"github.com/fullstackauth/fsauth/internal/cli/nav"
	"github.com/fullstackauth/fsauth/internal/cli/session"
)

const redirectBase = "http://localhost:5173/oauth2/redirect"

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestExtract_Precedence(t *testing.T) {
	tests := []struct {
		name  string
		url   string
		token string
	}{
		{"query token beats fragment access_token", redirectBase + "?token=q1#access_token=f2", "q1"},
		{"query token beats query access_token", redirectBase + "?access_token=q2&token=q1", "q1"},
		{"query access_token beats fragment token", redirectBase + "?access_token=q2#token=f1", "q2"},
		{"fragment token beats fragment access_token", redirectBase + "#access_token=f2&token=f1", "f1"},
		{"fragment access_token alone", redirectBase + "#access_token=f2", "f2"},
		{"empty query token falls through", redirectBase + "?token=#token=f1", "f1"},
		{"nothing", redirectBase + "?state=xyz", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := Extract(mustParse(t, tt.url))
			assert.Equal(t, tt.token, params.Token)
		})
	}
}

func TestExtract_Error(t *testing.T) {
	params := Extract(mustParse(t, redirectBase+"?error=access_denied#error=other"))
	assert.Equal(t, "access_denied", params.Error)

	params = Extract(mustParse(t, redirectBase+"#error=server_error"))
	assert.Equal(t, "server_error", params.Error)
}

func TestExtract_DebugInfo(t *testing.T) {
	params := Extract(mustParse(t, redirectBase+"?state=s#access_token=abc"))

	assert.Equal(t, "?state=s", params.Debug.Search)
	assert.Equal(t, "#access_token=abc", params.Debug.Hash)
	assert.Equal(t, map[string]string{"state": "s"}, params.Debug.SearchParams)
	assert.Equal(t, map[string]string{"access_token": "abc"}, params.Debug.HashParams)
	assert.Equal(t, "Found", params.Debug.Token)
	assert.Equal(t, "None", params.Debug.Error)
}

type fakeCookies struct {
	tokens []string
}

func (f *fakeCookies) MirrorSessionCookie(token string) error {
	f.tokens = append(f.tokens, token)
	return nil
}

type failingWriter struct{}

func (failingWriter) Write(string) error { return errors.New("keychain locked") }

func newTestHandler(t *testing.T) (*Handler, *session.Store, *fakeCookies, *nav.Recorder) {
	t.Helper()
	store := session.NewStore(auth.NewMemoryStore(), "http://localhost:8080")
	cookies := &fakeCookies{}
	rec := &nav.Recorder{}

	h := NewHandler(store, cookies, rec, rec)
	h.SuccessDelay = time.Millisecond
	h.FailureDelay = time.Millisecond
	return h, store, cookies, rec
}

func TestHandle_TokenIsStoredAndNavigatesToDashboard(t *testing.T) {
	h, store, cookies, rec := newTestHandler(t)

	var notified []string
	store.Subscribe(func() {
		token, _ := store.Read()
		notified = append(notified, token)
	})

	result, err := h.Handle(context.Background(), redirectBase+"#access_token=abc")
	require.NoError(t, err)

	assert.Equal(t, LoggedIn, result.Outcome)
	assert.Equal(t, nav.Dashboard, result.Route)
	assert.Equal(t, []string{"abc"}, notified)
	assert.Equal(t, []string{"abc"}, cookies.tokens)
	assert.Equal(t, []string{nav.Dashboard}, rec.Routes())

	got, err := store.Read()
	require.NoError(t, err)
	assert.Equal(t, "abc", got)

	require.Len(t, rec.Notifications(), 1)
	assert.Equal(t, nav.Success, rec.Notifications()[0].Level)
}

func TestHandle_ErrorNeverWritesCredential(t *testing.T) {
	h, store, cookies, rec := newTestHandler(t)
	h.SuccessDelay = time.Hour
	h.FailureDelay = time.Hour

	result, err := h.Handle(context.Background(), redirectBase+"?error=access_denied&token=abc")
	require.NoError(t, err)

	assert.Equal(t, Failed, result.Outcome)
	assert.Equal(t, "access_denied", result.Error)
	assert.Equal(t, []string{nav.Login}, rec.Routes())
	assert.Empty(t, cookies.tokens)

	_, err = store.Read()
	assert.ErrorIs(t, err, session.ErrNoSession)

	require.Len(t, rec.Notifications(), 1)
	assert.Equal(t, "OAuth2 login failed: access_denied", rec.Notifications()[0].Message)
}

func TestHandle_NoToken(t *testing.T) {
	h, store, _, rec := newTestHandler(t)

	result, err := h.Handle(context.Background(), redirectBase+"?state=xyz")
	require.NoError(t, err)

	assert.Equal(t, NoToken, result.Outcome)
	assert.Equal(t, []string{nav.Login}, rec.Routes())
	_, err = store.Read()
	assert.ErrorIs(t, err, session.ErrNoSession)

	require.Len(t, rec.Notifications(), 1)
	assert.Equal(t, "No authentication token received. Please try again.", rec.Notifications()[0].Message)
}

func TestHandle_NoTokenDebugNotice(t *testing.T) {
	h, _, _, rec := newTestHandler(t)
	h.Debug = true

	_, err := h.Handle(context.Background(), redirectBase+"?state=xyz")
	require.NoError(t, err)

	notes := rec.Notifications()
	require.Len(t, notes, 2)
	assert.Contains(t, notes[1].Message, "Debug: URL was "+redirectBase+"?state=xyz")
}

func TestHandle_CancelledDuringDelaySkipsNavigation(t *testing.T) {
	h, store, _, rec := newTestHandler(t)
	h.SuccessDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.Handle(ctx, redirectBase+"?token=abc")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rec.Routes())

	// The write happened before the delay and stands
	got, err := store.Read()
	require.NoError(t, err)
	assert.Equal(t, "abc", got)
}

func TestHandle_WriteFailure(t *testing.T) {
	rec := &nav.Recorder{}
	h := NewHandler(failingWriter{}, nil, rec, rec)

	_, err := h.Handle(context.Background(), redirectBase+"?token=abc")
	require.Error(t, err)
	assert.Empty(t, rec.Routes())
}

func TestCallback_QueryTokenHandledDirectly(t *testing.T) {
	h, store, _, _ := newTestHandler(t)
	cb, err := NewCallback(h, redirectBase, h.Log)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/oauth2/redirect?token=abc", nil)
	w := httptest.NewRecorder()
	cb.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	got, err := store.Read()
	require.NoError(t, err)
	assert.Equal(t, "abc", got)

	result, err := cb.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, LoggedIn, result.Outcome)
}

func TestCallback_FragmentIsForwarded(t *testing.T) {
	h, store, _, _ := newTestHandler(t)
	cb, err := NewCallback(h, redirectBase, h.Log)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/oauth2/redirect", nil)
	w := httptest.NewRecorder()
	cb.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"/oauth2/redirect/complete"`)
	_, err = store.Read()
	assert.ErrorIs(t, err, session.ErrNoSession)

	// What the forwarding page requests for "#access_token=abc&state=s"
	q := url.Values{"q": {""}, "f": {"access_token=abc&state=s"}}
	req = httptest.NewRequest(http.MethodGet, "/oauth2/redirect/complete?"+q.Encode(), nil)
	w = httptest.NewRecorder()
	cb.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	got, err := store.Read()
	require.NoError(t, err)
	assert.Equal(t, "abc", got)
}

func TestCallback_ErrorResponse(t *testing.T) {
	h, store, _, _ := newTestHandler(t)
	cb, err := NewCallback(h, redirectBase, h.Log)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/oauth2/redirect?error=access_denied", nil)
	w := httptest.NewRecorder()
	cb.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	_, err = store.Read()
	assert.ErrorIs(t, err, session.ErrNoSession)

	result, err := cb.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Failed, result.Outcome)
}

func TestCallback_WaitHonoursContext(t *testing.T) {
	h, _, _, _ := newTestHandler(t)
	cb, err := NewCallback(h, redirectBase, h.Log)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = cb.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewCallback_InvalidURL(t *testing.T) {
	_, err := NewCallback(&Handler{}, "not a url", zerolog.Nop())
	assert.Error(t, err)
}

func TestCallback_EmptyQueryTokenForwardsFragment(t *testing.T) {
	h, store, _, _ := newTestHandler(t)
	cb, err := NewCallback(h, redirectBase, h.Log)
	require.NoError(t, err)

	// The browser sends "?token=" and keeps "#access_token=abc"
	req := httptest.NewRequest(http.MethodGet, "/oauth2/redirect?token=", nil)
	w := httptest.NewRecorder()
	cb.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"/oauth2/redirect/complete"`)
	_, err = store.Read()
	assert.ErrorIs(t, err, session.ErrNoSession)

	q := url.Values{"q": {"token="}, "f": {"access_token=abc"}}
	req = httptest.NewRequest(http.MethodGet, "/oauth2/redirect/complete?"+q.Encode(), nil)
	w = httptest.NewRecorder()
	cb.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	got, err := store.Read()
	require.NoError(t, err)
	assert.Equal(t, "abc", got)
}

func TestListenAddr(t *testing.T) {
	tests := []struct {
		origin string
		want   string
	}{
		{"http://localhost:5173", "localhost:5173"},
		{"http://localhost", "localhost:80"},
		{"https://app.example.com", "app.example.com:443"},
		{"http://[::1]", "[::1]:80"},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			assert.Equal(t, tt.want, listenAddr(tt.origin))
		})
	}
}
