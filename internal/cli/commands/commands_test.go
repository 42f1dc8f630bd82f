package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/fullstackauth/fsauth/internal/cli/auth"
	"github.com/fullstackauth/fsauth/internal/cli/client"
	"github.com/fullstackauth/fsauth/internal/cli/flow"
	"github.com/fullstackauth/fsauth/internal/cli/userconfig"
)

const sessionToken = "session-token"

// fakeBackend serves the auth and profile endpoints for one account
type fakeBackend struct {
	mu          sync.Mutex
	email       string
	newPassword string
	pending     string
	checks      int
}

func (b *fakeBackend) authorized(r *http.Request) bool {
	return r.Header.Get("Authorization") == "Bearer "+sessionToken
}

func (b *fakeBackend) handler() http.Handler {
	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(v)
	}
	fail := func(w http.ResponseWriter, status int, message string) {
		writeJSON(w, status, map[string]string{"message": message})
	}

	mux := http.NewServeMux()
	handleMethod(mux, "POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req client.LoginRequest
		json.NewDecoder(r.Body).Decode(&req)
		switch {
		case req.Email == "ada@example.com" && req.Password == "correct":
			writeJSON(w, http.StatusOK, client.LoginResponse{Email: req.Email, Token: sessionToken})
		case req.Email == "new@example.com":
			fail(w, http.StatusForbidden, "Account not verified. Please verify your email.")
		default:
			fail(w, http.StatusUnauthorized, "Invalid email or password")
		}
	})
	handleMethod(mux, "POST /api/v1/auth/register", func(w http.ResponseWriter, r *http.Request) {
		var req client.RegisterRequest
		json.NewDecoder(r.Body).Decode(&req)
		writeJSON(w, http.StatusCreated, client.User{UserID: "u2", Name: req.Name, Email: req.Email})
	})
	handleMethod(mux, "GET /api/v1/auth/verify", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("token") {
		case "good":
			writeJSON(w, http.StatusOK, client.Ack{Success: true})
		case "old":
			fail(w, http.StatusBadRequest, "Verification token expired")
		default:
			fail(w, http.StatusBadRequest, "Invalid verification token")
		}
	})
	handleMethod(mux, "GET /api/v1/auth/isAuthenticated", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.checks++
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, client.SessionStatus{Authenticated: b.authorized(r), Email: "ada@example.com"})
	})
	handleMethod(mux, "GET /api/v1/profile", func(w http.ResponseWriter, r *http.Request) {
		if !b.authorized(r) {
			fail(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		writeJSON(w, http.StatusOK, client.User{UserID: "u1", Name: "Ada", Email: b.email, IsAccountVerified: true})
	})
	handleMethod(mux, "POST /api/v1/profile/change-password/init", func(w http.ResponseWriter, r *http.Request) {
		var req client.ChangePasswordInitRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.OldPassword != "correct" {
			fail(w, http.StatusBadRequest, "Old password is incorrect")
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	handleMethod(mux, "POST /api/v1/profile/change-password/verify", func(w http.ResponseWriter, r *http.Request) {
		var req client.ChangePasswordVerifyRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.OTP != "123456" {
			fail(w, http.StatusBadRequest, "Invalid OTP")
			return
		}
		b.mu.Lock()
		b.newPassword = req.NewPassword
		b.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	handleMethod(mux, "POST /api/v1/profile/change-email/init", func(w http.ResponseWriter, r *http.Request) {
		var req client.ChangeEmailInitRequest
		json.NewDecoder(r.Body).Decode(&req)
		b.mu.Lock()
		b.pending = req.NewEmail
		b.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	handleMethod(mux, "POST /api/v1/profile/change-email/verify", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.email = b.pending
		b.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

type testEnv struct {
	backend  *fakeBackend
	url      string
	stateDir string
	tokens   *auth.MemoryStore
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	backend := &fakeBackend{email: "ada@example.com"}
	server := httptest.NewServer(backend.handler())
	t.Cleanup(server.Close)

	env := &testEnv{
		backend:  backend,
		url:      server.URL,
		stateDir: t.TempDir(),
		tokens:   auth.NewMemoryStore(),
	}

	chdir(t, t.TempDir())
	t.Setenv("FSAUTH_BACKEND_URL", env.url)
	t.Setenv("FSAUTH_STATE_DIR", env.stateDir)
	t.Setenv("FSAUTH_EMAIL", "")
	t.Setenv("FSAUTH_PASSWORD", "")
	t.Setenv("LOG_LEVEL", "error")

	original := openTokenStore
	openTokenStore = func(string, string) (auth.TokenStore, error) { return env.tokens, nil }
	t.Cleanup(func() { openTokenStore = original })

	return env
}

func (e *testEnv) signIn(t *testing.T) {
	t.Helper()
	require.NoError(t, e.tokens.SaveToken(e.url, sessionToken))
}

// run executes args against a command tree and returns stdout and stderr
func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	root := &cobra.Command{Use: "fsauth", SilenceUsage: true, SilenceErrors: true}
	root.AddCommand(
		NewLoginCmd(),
		NewLogoutCmd(),
		NewRegisterCmd(),
		NewVerifyCmd(),
		NewPasswordCmd(),
		NewEmailCmd(),
		NewProfileCmd(),
		NewOAuthCmd(),
		NewStatusCmd(),
		NewWatchCmd(),
	)

	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestLoginCmd(t *testing.T) {
	env := setupTestEnv(t)

	stdout, _, err := run(t, "login", "--email", "ada@example.com", "--password", "correct")
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ Logged in successfully")
	assert.Contains(t, stdout, "Next: fsauth status")

	token, err := env.tokens.LoadToken(env.url)
	require.NoError(t, err)
	assert.Equal(t, sessionToken, token)

	last, err := userconfig.Dir(env.stateDir).LastEmail()
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", last)
}

func TestLoginCmd_EnvCredentials(t *testing.T) {
	env := setupTestEnv(t)
	t.Setenv("FSAUTH_EMAIL", "ada@example.com")
	t.Setenv("FSAUTH_PASSWORD", "correct")

	_, _, err := run(t, "login")
	require.NoError(t, err)

	token, err := env.tokens.LoadToken(env.url)
	require.NoError(t, err)
	assert.Equal(t, sessionToken, token)
}

func TestLoginCmd_WrongPassword(t *testing.T) {
	env := setupTestEnv(t)

	_, stderr, err := run(t, "login", "--email", "ada@example.com", "--password", "nope")
	require.Error(t, err)
	assert.Contains(t, stderr, "✗ Invalid email or password")

	_, err = env.tokens.LoadToken(env.url)
	assert.Error(t, err)
}

func TestLoginCmd_NotVerified(t *testing.T) {
	setupTestEnv(t)

	stdout, stderr, err := run(t, "login", "--email", "new@example.com", "--password", "x")
	assert.ErrorIs(t, err, flow.ErrAccountNotVerified)
	assert.Contains(t, stderr, "Account not verified")
	assert.Contains(t, stdout, "Check your email")
}

func TestLogoutCmd(t *testing.T) {
	env := setupTestEnv(t)
	env.signIn(t)

	stdout, _, err := run(t, "logout")
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ Logged out")

	_, err = env.tokens.LoadToken(env.url)
	assert.Error(t, err)
}

func TestRegisterCmd(t *testing.T) {
	setupTestEnv(t)

	stdout, _, err := run(t, "register", "--name", "Grace", "--email", "grace@example.com", "--password", "secret")
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ Account created successfully!")
	assert.Contains(t, stdout, "verification link")
}

func TestVerifyCmd(t *testing.T) {
	setupTestEnv(t)

	t.Run("link", func(t *testing.T) {
		stdout, _, err := run(t, "verify", "http://localhost:5173/verify-email?token=good")
		require.NoError(t, err)
		assert.Contains(t, stdout, "Email verified successfully!")
		assert.Contains(t, stdout, "Next: fsauth login")
	})

	t.Run("expired", func(t *testing.T) {
		stdout, stderr, err := run(t, "verify", "old")
		require.Error(t, err)
		assert.Contains(t, stderr, "Verification token expired")
		assert.Contains(t, stdout, "fsauth resend-verification")
	})

	t.Run("missing token", func(t *testing.T) {
		_, stderr, err := run(t, "verify")
		require.Error(t, err)
		assert.Contains(t, stderr, "No verification token found.")
	})
}

func TestPasswordResetCmd_MissingToken(t *testing.T) {
	setupTestEnv(t)

	_, stderr, err := run(t, "password", "reset", "--password", "secret")
	assert.ErrorIs(t, err, flow.ErrInvalidInput)
	assert.Contains(t, stderr, "No reset token found")
}

func TestProfileShow_RequiresSession(t *testing.T) {
	setupTestEnv(t)

	stdout, stderr, err := run(t, "profile", "show")
	assert.ErrorIs(t, err, errNotLoggedIn)
	assert.Contains(t, stderr, "You need to log in first.")
	assert.Contains(t, stdout, "Next: fsauth login")
}

func TestProfileShow_Formats(t *testing.T) {
	env := setupTestEnv(t)
	env.signIn(t)

	want := client.User{UserID: "u1", Name: "Ada", Email: "ada@example.com", IsAccountVerified: true}

	stdout, _, err := run(t, "profile", "show")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Email:    ada@example.com")
	assert.Contains(t, stdout, "Verified: yes")

	stdout, _, err = run(t, "profile", "show", "-o", "json")
	require.NoError(t, err)
	var fromJSON client.User
	require.NoError(t, json.Unmarshal([]byte(stdout), &fromJSON))
	assert.Equal(t, want, fromJSON)

	stdout, _, err = run(t, "profile", "show", "-o", "yaml")
	require.NoError(t, err)
	var fromYAML client.User
	require.NoError(t, yaml.Unmarshal([]byte(stdout), &fromYAML))
	assert.Equal(t, want, fromYAML)

	_, _, err = run(t, "profile", "show", "-o", "xml")
	assert.Error(t, err)
}

func TestPasswordChangeCmd(t *testing.T) {
	env := setupTestEnv(t)
	env.signIn(t)

	stdout, _, err := run(t, "password", "change", "--old", "correct", "--new", "fresh", "--otp", "123456")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Verification code sent for password change")
	assert.Contains(t, stdout, "✓ Password changed successfully")
	assert.Equal(t, "fresh", env.backend.newPassword)
}

func TestPasswordChangeCmd_RejectedCode(t *testing.T) {
	env := setupTestEnv(t)
	env.signIn(t)

	_, stderr, err := run(t, "password", "change", "--old", "correct", "--new", "fresh", "--otp", "000000")
	require.Error(t, err)
	assert.Contains(t, stderr, "✗ Invalid OTP")
	assert.Empty(t, env.backend.newPassword)
}

func TestPasswordChangeCmd_WrongOldPassword(t *testing.T) {
	env := setupTestEnv(t)
	env.signIn(t)

	stdout, stderr, err := run(t, "password", "change", "--old", "nope", "--new", "fresh", "--otp", "123456")
	require.Error(t, err)
	assert.Contains(t, stderr, "Old password is incorrect")
	assert.NotContains(t, stdout, "Verification code sent")
}

func TestEmailChangeCmd(t *testing.T) {
	env := setupTestEnv(t)
	env.signIn(t)

	stdout, _, err := run(t, "email", "change", "--new-email", "ada@new.example.com", "--password", "correct", "--otp", "654321")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Email:    ada@new.example.com")
	assert.Contains(t, stdout, "✓ Email changed successfully")

	last, err := userconfig.Dir(env.stateDir).LastEmail()
	require.NoError(t, err)
	assert.Equal(t, "ada@new.example.com", last)
}

func TestEmailChangeCmd_InvalidEmail(t *testing.T) {
	env := setupTestEnv(t)
	env.signIn(t)

	_, _, err := run(t, "email", "change", "--new-email", "not-an-email", "--password", "correct", "--otp", "654321")
	assert.ErrorIs(t, err, flow.ErrInvalidInput)
	assert.Empty(t, env.backend.pending)
}

func TestOAuthCompleteCmd(t *testing.T) {
	env := setupTestEnv(t)

	stdout, _, err := run(t, "oauth", "complete", "http://localhost:5173/oauth2/redirect#token=google-token")
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ Successfully logged in with Google!")

	token, err := env.tokens.LoadToken(env.url)
	require.NoError(t, err)
	assert.Equal(t, "google-token", token)
}

func TestOAuthCompleteCmd_Error(t *testing.T) {
	env := setupTestEnv(t)

	_, stderr, err := run(t, "oauth", "complete", "http://localhost:5173/oauth2/redirect?error=access_denied")
	require.Error(t, err)
	assert.Contains(t, stderr, "OAuth2 login failed: access_denied")

	_, err = env.tokens.LoadToken(env.url)
	assert.Error(t, err)
}

func TestStatusCmd(t *testing.T) {
	env := setupTestEnv(t)

	stdout, _, err := run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Session:  unauthenticated")
	assert.Contains(t, stdout, "Next: fsauth login")

	env.signIn(t)
	stdout, _, err = run(t, "status", "--check")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Session:  authenticated")
	assert.Contains(t, stdout, "Server:   authenticated as ada@example.com")
	assert.False(t, strings.Contains(stdout, "Next: fsauth login"))
}

func TestStatusCmd_BackendPolicyChecksOnce(t *testing.T) {
	env := setupTestEnv(t)
	t.Setenv("FSAUTH_GATE_POLICY", "backend")
	env.signIn(t)

	stdout, _, err := run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Session:  authenticated")
	assert.Contains(t, stdout, "Protected views: admit")

	env.backend.mu.Lock()
	defer env.backend.mu.Unlock()
	assert.Equal(t, 1, env.backend.checks)
}

func TestStatusCmd_CookieSurvivesRestart(t *testing.T) {
	setupTestEnv(t)

	_, _, err := run(t, "oauth", "complete", "http://localhost:5173/oauth2/redirect#token=google-token")
	require.NoError(t, err)

	stdout, _, err := run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Cookie:   present")

	_, _, err = run(t, "logout")
	require.NoError(t, err)

	stdout, _, err = run(t, "status")
	require.NoError(t, err)
	assert.NotContains(t, stdout, "Cookie:   present")
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatch_InvalidSchedule(t *testing.T) {
	setupTestEnv(t)

	_, _, err := run(t, "watch", "--recheck", "every minute please")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --recheck schedule")
}

func TestWatch_ReportsSignInFromAnotherProcess(t *testing.T) {
	setupTestEnv(t)

	var out syncBuffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetErr(&out)

	watcher, err := loadApp(cmd)
	require.NoError(t, err)
	defer watcher.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runWatch(ctx, watcher, "") }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Session: unauthenticated")
	}, 2*time.Second, 10*time.Millisecond)

	// A second process signs in through its own app
	other, err := loadApp(&cobra.Command{})
	require.NoError(t, err)
	defer other.Close()
	require.NoError(t, other.store.Write(sessionToken))

	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "session: authenticated (admit)")
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestLoginGoogleCmd_OpensAuthorizationURL(t *testing.T) {
	env := setupTestEnv(t)

	var opened []string
	original := openBrowser
	openBrowser = func(url string) error {
		opened = append(opened, url)
		return nil
	}
	t.Cleanup(func() { openBrowser = original })

	stdout, _, err := run(t, "login", "google")
	require.NoError(t, err)

	want := env.url + "/api/v1/oauth2/authorization/google"
	assert.Equal(t, []string{want}, opened)
	assert.Contains(t, stdout, "Sign in at: "+want)
	assert.Contains(t, stdout, "fsauth oauth complete")

	opened = nil
	_, _, err = run(t, "login", "google", "--no-browser")
	require.NoError(t, err)
	assert.Empty(t, opened)
}
