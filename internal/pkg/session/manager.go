package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"go-vitalchat/internal/infrastructure/httpapi"
	"go-vitalchat/internal/infrastructure/storage/port"
)

// State is the position in the authentication lifecycle.
type State int

const (
	// StateAnonymous: no token held, nothing persisted.
	StateAnonymous State = iota
	// StatePendingVerification: login accepted, OTP exchange outstanding.
	// This state lives in memory only; a restart lands back in Anonymous.
	StatePendingVerification
	// StateAuthenticated: durable token persisted, user record loaded.
	StateAuthenticated
)

// DeviceTypeWeb is the device type the web client reports on login.
const DeviceTypeWeb = 0

// Storage keys, kept identical to what the deployed clients already
// persist so a session survives an upgrade.
const (
	keyToken         = "auth_token"
	keyRefreshToken  = "refresh_token"
	keyUser          = "user_data"
	keyRememberEmail = "remember_email"
)

var (
	// ErrInvalidCredentials is returned when the server rejects the
	// email/password pair.
	ErrInvalidCredentials = errors.New("session: invalid credentials")
	// ErrInvalidOTP is returned when the one-time code is rejected.
	ErrInvalidOTP = errors.New("session: invalid verification code")
	// ErrNotAuthenticated is returned by the request guard when a
	// protected call is attempted without a session.
	ErrNotAuthenticated = errors.New("session: not authenticated")
)

// Manager owns the authentication token, the current-user record, and the
// authenticated/unauthenticated signal. It is constructed once at process
// start, hydrated from persisted storage, and passed explicitly to
// everything that needs it.
type Manager struct {
	api   *httpapi.Client
	store port.Store
	log   *slog.Logger

	mu      sync.RWMutex
	state   State
	token   string
	refresh string
	user    *User

	subMu   sync.Mutex
	subs    map[int]func(authenticated bool)
	nextSub int
}

// NewManager builds a Manager backed by store, restoring any persisted
// token and user record. An unreadable store entry degrades to an
// anonymous session rather than failing construction.
func NewManager(api *httpapi.Client, store port.Store, log *slog.Logger) *Manager {
	m := &Manager{
		api:   api,
		store: store,
		log:   log,
		subs:  make(map[int]func(bool)),
	}
	m.restore()
	return m
}

// Bind wires the manager into the API client: every outgoing request gets
// the bearer header, protected requests are rejected locally while no
// session is held, and any 401 forces a logout before the error reaches
// the caller.
func (m *Manager) Bind(c *httpapi.Client) {
	c.AddDecorator(m.AttachAuthHeader)
	c.SetGuard(m.RequireAuth)
	c.SetUnauthorizedHook(m.handleUnauthorized)
}

// LoginInput carries the login payload.
type LoginInput struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DeviceToken string `json:"deviceToken"`
	DeviceType  int    `json:"deviceType"`
}

type loginResponse struct {
	Message  string     `json:"message"`
	Response userRecord `json:"response"`
}

// Login exchanges credentials for a short-lived verification token. The
// session is NOT authenticated afterwards; Verify completes the handshake.
func (m *Manager) Login(ctx context.Context, in LoginInput) (string, error) {
	var resp loginResponse
	err := m.api.Post(ctx, "/auth/login", in, &resp)
	if err != nil {
		var ve *httpapi.ValidationError
		var ae *httpapi.AuthError
		if errors.As(err, &ve) || errors.As(err, &ae) {
			return "", fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
		}
		return "", err
	}
	if resp.Response.VerifyToken == "" {
		return "", fmt.Errorf("session: login response carried no verification token")
	}

	m.mu.Lock()
	m.state = StatePendingVerification
	m.mu.Unlock()

	m.log.Info("login accepted, verification pending", slog.String("email", in.Email))
	return resp.Response.VerifyToken, nil
}

type verifyRequest struct {
	VerifyToken string `json:"verifyToken"`
	OTP         string `json:"otp"`
}

type verifyResponse struct {
	Message      string     `json:"message"`
	Token        string     `json:"token"`
	RefreshToken string     `json:"refreshToken"`
	Response     userRecord `json:"response"`
}

// Verify exchanges the one-time code for a durable session token. On
// success the token and user record are persisted and the session flips
// to authenticated; on rejection the session is left untouched.
func (m *Manager) Verify(ctx context.Context, verifyToken, otp string) (string, error) {
	var resp verifyResponse
	err := m.api.Put(ctx, "/auth/verify", verifyRequest{VerifyToken: verifyToken, OTP: otp}, &resp)
	if err != nil {
		var ve *httpapi.ValidationError
		var ae *httpapi.AuthError
		if errors.As(err, &ve) || errors.As(err, &ae) {
			return "", fmt.Errorf("%w: %v", ErrInvalidOTP, err)
		}
		return "", err
	}
	if resp.Token == "" {
		return "", fmt.Errorf("session: verify response carried no session token")
	}

	user := resp.Response.toUser()
	m.persist(resp.Token, resp.RefreshToken, user)

	m.mu.Lock()
	wasAuthenticated := m.state == StateAuthenticated
	m.state = StateAuthenticated
	m.token = resp.Token
	m.refresh = resp.RefreshToken
	m.user = &user
	m.mu.Unlock()

	if !wasAuthenticated {
		m.notify(true)
	}
	m.log.Info("session authenticated", slog.String("user", user.ID))
	return resp.Token, nil
}

// Logout clears persisted and in-memory session state synchronously and
// signals all dependents. Calling it while anonymous is a no-op.
func (m *Manager) Logout() {
	m.mu.Lock()
	wasAuthenticated := m.state == StateAuthenticated
	m.state = StateAnonymous
	m.token = ""
	m.refresh = ""
	m.user = nil
	m.mu.Unlock()

	if _, err := m.store.Del(context.Background(), keyToken, keyRefreshToken, keyUser); err != nil {
		m.log.Warn("clearing persisted session failed", slog.Any("error", err))
	}

	if wasAuthenticated {
		m.notify(false)
		m.log.Info("session cleared")
	}
}

// Token returns the durable session token, if one is held.
func (m *Manager) Token() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, m.token != ""
}

// IsAuthenticated reports whether a durable token is held. The invariant
// authenticated == (token present) holds by construction.
func (m *Manager) IsAuthenticated() bool {
	_, ok := m.Token()
	return ok
}

// CurrentUser returns the stored user record for the signed-in account.
func (m *Manager) CurrentUser() (User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return User{}, false
	}
	return *m.user, true
}

// CurrentState returns the session's lifecycle position.
func (m *Manager) CurrentState() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// RequireAuth rejects a request to a protected path before it is sent
// when no session is held, so a logged-out client never round-trips to
// the server's 401. The auth endpoints themselves stay open; everything
// else needs a token.
func (m *Manager) RequireAuth(req *http.Request) error {
	if strings.Contains(req.URL.Path, "/auth/") {
		return nil
	}
	if _, ok := m.Token(); !ok {
		return fmt.Errorf("%w: %s", ErrNotAuthenticated, req.URL.Path)
	}
	return nil
}

// AttachAuthHeader injects the bearer credential when a token is present;
// otherwise the request passes through unchanged.
func (m *Manager) AttachAuthHeader(req *http.Request) {
	if token, ok := m.Token(); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// Subscribe registers fn for authenticated/unauthenticated transitions,
// delivered at most once per transition. The returned func unsubscribes;
// calling it twice is a no-op.
func (m *Manager) Subscribe(fn func(authenticated bool)) (unsubscribe func()) {
	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subs, id)
			m.subMu.Unlock()
		})
	}
}

// RememberEmail persists the email for the remember-me checkbox.
func (m *Manager) RememberEmail(email string) error {
	return m.store.Set(context.Background(), keyRememberEmail, email)
}

// RememberedEmail returns the persisted remember-me email, if any.
func (m *Manager) RememberedEmail() (string, bool) {
	v, err := m.store.Get(context.Background(), keyRememberEmail)
	if err != nil {
		return "", false
	}
	return v, v != ""
}

// GenerateDeviceToken mints a device token placeholder for web clients,
// which have no push-notification registration to report.
func GenerateDeviceToken() string {
	return "web_" + uuid.NewString()
}

func (m *Manager) handleUnauthorized() {
	m.log.Warn("unauthorized response, forcing logout")
	m.Logout()
}

func (m *Manager) notify(authenticated bool) {
	m.subMu.Lock()
	fns := make([]func(bool), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.subMu.Unlock()
	for _, fn := range fns {
		fn(authenticated)
	}
}

func (m *Manager) persist(token, refresh string, user User) {
	ctx := context.Background()
	if err := m.store.Set(ctx, keyToken, token); err != nil {
		m.log.Warn("persisting token failed", slog.Any("error", err))
	}
	if refresh != "" {
		if err := m.store.Set(ctx, keyRefreshToken, refresh); err != nil {
			m.log.Warn("persisting refresh token failed", slog.Any("error", err))
		}
	}
	if data, err := json.Marshal(user); err == nil {
		if err := m.store.Set(ctx, keyUser, string(data)); err != nil {
			m.log.Warn("persisting user record failed", slog.Any("error", err))
		}
	}
}

func (m *Manager) restore() {
	ctx := context.Background()

	token, err := m.store.Get(ctx, keyToken)
	if err != nil || token == "" {
		if err != nil && !errors.Is(err, port.ErrMiss) {
			m.log.Warn("restoring session failed", slog.Any("error", err))
		}
		return
	}

	m.state = StateAuthenticated
	m.token = token
	if refresh, err := m.store.Get(ctx, keyRefreshToken); err == nil {
		m.refresh = refresh
	}
	if raw, err := m.store.Get(ctx, keyUser); err == nil {
		var u User
		if err := json.Unmarshal([]byte(raw), &u); err == nil {
			m.user = &u
		}
	}
}
