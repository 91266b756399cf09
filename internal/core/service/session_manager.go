package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/civicportal/resident-portal/internal/core/domain"
	"github.com/civicportal/resident-portal/internal/core/ports"
	"github.com/civicportal/resident-portal/internal/pkg/metrics"
)

const (
	rootPath  = "/"
	adminPath = "/admin"
)

// SessionManager owns the authentication lifecycle. It is the only writer of
// the session; everybody else reads Snapshots or subscribes to them.
//
// Network calls are made without holding mu so that an unauthorized response
// reported through Expire while a call is in flight cannot deadlock. gen
// counts Logout and Expire calls; a profile fetch that started under an older
// generation never commits its result.
type SessionManager struct {
	store    ports.TokenStore
	api      ports.PortalAPI
	validate *validator.Validate
	log      zerolog.Logger

	mu       sync.RWMutex
	state    domain.SessionState
	user     *domain.User
	loading  int
	lastErr  error
	returnTo string
	gen      uint64

	subs    map[int]chan domain.Snapshot
	nextSub int
}

// NewSessionManager returns a manager in the uninitialized state.
func NewSessionManager(store ports.TokenStore, api ports.PortalAPI, log zerolog.Logger) *SessionManager {
	return &SessionManager{
		store:    store,
		api:      api,
		validate: validator.New(),
		log:      log,
		state:    domain.StateUninitialized,
		subs:     make(map[int]chan domain.Snapshot),
	}
}

// Initialize restores a session from the token store. A stored credential
// the backend no longer accepts is discarded and the session ends up
// anonymous; that is recovered here and never returned as an error. Calling
// Initialize again after the first run is a no-op.
func (m *SessionManager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.state != domain.StateUninitialized {
		m.mu.Unlock()
		return nil
	}
	m.transitionLocked(domain.StateLoading)
	m.loading++
	gen := m.gen
	m.notifyLocked()
	m.mu.Unlock()

	defer m.doneLoading()

	token, err := m.store.Load(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNoCredential) {
			m.log.Warn().Err(err).Msg("token store unreadable, starting anonymous")
		}
		m.becomeAnonymous(nil)
		return nil
	}

	claims, ok := DecodeToken(token)
	if !ok {
		m.log.Debug().Msg("stored credential carries no readable claims")
	}

	m.api.SetBearer(token)
	profile, err := m.api.Profile(ctx)
	if err != nil {
		m.log.Info().Err(err).Msg("stored credential rejected, clearing it")
		if clearErr := m.store.Clear(ctx); clearErr != nil {
			m.log.Warn().Err(clearErr).Msg("failed to clear token store")
		}
		m.api.SetBearer("")
		m.becomeAnonymous(err)
		return nil
	}

	if !m.commitAuthenticated(gen, mergeProfile(profile, claims, ok)) {
		m.log.Info().Msg("session ended while restoring, dropping profile")
	}
	return nil
}

// Login submits creds to the backend and, on success, persists the returned
// credential and loads the profile. Every failure is returned to the caller
// as a *domain.AuthenticationError and also recorded on the session.
func (m *SessionManager) Login(ctx context.Context, creds domain.Credentials) error {
	m.mu.Lock()
	m.loading++
	m.lastErr = nil
	gen := m.gen
	m.notifyLocked()
	m.mu.Unlock()

	defer m.doneLoading()

	if err := m.validate.Struct(creds); err != nil {
		return m.loginFailed("invalid_input", fmt.Errorf("%w: identifier and password are required", domain.ErrInvalidCredentials))
	}

	res, err := m.api.Login(ctx, creds)
	if err != nil {
		return m.loginFailed("rejected", err)
	}
	if res.Token == "" {
		return m.loginFailed("missing_token", domain.ErrMissingToken)
	}

	if m.stale(gen) {
		return m.loginFailed("superseded", domain.ErrSessionExpired)
	}
	// The client reads the store on every request, so the save has to land
	// before the profile fetch goes out.
	if err := m.store.Save(ctx, res.Token); err != nil {
		return m.loginFailed("store_failed", fmt.Errorf("persist credential: %w", err))
	}
	if m.stale(gen) {
		m.discard(ctx, res.Token)
		return m.loginFailed("superseded", domain.ErrSessionExpired)
	}
	m.api.SetBearer(res.Token)

	profile, err := m.api.Profile(ctx)
	if err != nil {
		return m.loginFailed("profile_failed", fmt.Errorf("fetch profile: %w", err))
	}

	claims, ok := DecodeToken(res.Token)
	if !m.commitAuthenticated(gen, mergeProfile(profile, claims, ok)) {
		return m.loginFailed("superseded", domain.ErrSessionExpired)
	}
	metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()
	m.log.Info().Str("user_id", m.UserID()).Msg("login succeeded")
	return nil
}

// Logout drops the stored credential and the in-memory session. It is safe
// to call at any time, including when nobody is logged in. The returned
// redirect is a hard one: the caller must discard cached views.
func (m *SessionManager) Logout(ctx context.Context) domain.Redirect {
	if err := m.store.Clear(ctx); err != nil {
		m.log.Warn().Err(err).Msg("failed to clear token store on logout")
	}
	m.api.SetBearer("")

	m.mu.Lock()
	m.gen++
	m.user = nil
	m.lastErr = nil
	m.returnTo = ""
	m.transitionLocked(domain.StateAnonymous)
	m.notifyLocked()
	m.mu.Unlock()

	m.log.Info().Msg("logged out")
	return domain.Redirect{Path: rootPath, Hard: true}
}

// Refresh re-fetches the profile for the stored credential. If the session
// is logged out or expires while the fetch is in flight, the result is
// dropped and ErrSessionExpired is returned.
func (m *SessionManager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	gen := m.gen
	m.mu.Unlock()

	if _, err := m.store.Load(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	m.loading++
	m.notifyLocked()
	m.mu.Unlock()
	defer m.doneLoading()

	profile, err := m.api.Profile(ctx)
	if err != nil {
		m.mu.Lock()
		if m.gen == gen {
			m.lastErr = err
			m.notifyLocked()
		}
		m.mu.Unlock()
		return fmt.Errorf("refresh profile: %w", err)
	}

	if !m.commitAuthenticated(gen, mergeProfile(profile, domain.Claims{}, false)) {
		return domain.ErrSessionExpired
	}
	return nil
}

// Expire tears the session down after the backend rejected the credential.
// The HTTP client calls it after it has already cleared the token store.
func (m *SessionManager) Expire() {
	m.api.SetBearer("")

	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	if m.state == domain.StateAnonymous && m.user == nil {
		return
	}
	m.user = nil
	m.lastErr = domain.ErrSessionExpired
	m.transitionLocked(domain.StateAnonymous)
	m.notifyLocked()
	metrics.SessionExpiriesTotal.Inc()
	m.log.Info().Msg("session expired")
}

// Snapshot returns a copy of the current session.
func (m *SessionManager) Snapshot() domain.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// IsAuthenticated reports whether the session holds a confirmed user. This
// follows the state machine, not the token store; see HasCredential.
func (m *SessionManager) IsAuthenticated() bool {
	return m.Snapshot().Authenticated()
}

// HasCredential reports whether the token store currently holds a
// credential. It can be true while the session is still loading.
func (m *SessionManager) HasCredential(ctx context.Context) bool {
	_, err := m.store.Load(ctx)
	return err == nil
}

// IsAdmin reports whether the current user has the admin role.
func (m *SessionManager) IsAdmin() bool {
	return m.Snapshot().Role().IsAdmin()
}

// UserID returns the current user's id or "".
func (m *SessionManager) UserID() string {
	snap := m.Snapshot()
	if snap.User == nil {
		return ""
	}
	return snap.User.ID
}

// RememberPath records where an anonymous visitor was headed so login can
// send them back there.
func (m *SessionManager) RememberPath(path string) {
	m.mu.Lock()
	m.returnTo = path
	m.mu.Unlock()
}

// TakeReturnPath returns and forgets the remembered path. Without one it
// returns the landing page for the current role.
func (m *SessionManager) TakeReturnPath() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	path := m.returnTo
	m.returnTo = ""
	if path != "" {
		return path
	}
	if m.user != nil && m.user.Role.IsAdmin() {
		return adminPath
	}
	return rootPath
}

// Subscribe returns a channel receiving the latest snapshot after every
// change. Slow readers only ever see the most recent value. The returned
// function unsubscribes and closes the channel.
func (m *SessionManager) Subscribe() (<-chan domain.Snapshot, func()) {
	ch := make(chan domain.Snapshot, 1)

	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	ch <- m.snapshotLocked()
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			close(ch)
			m.mu.Unlock()
		})
	}
}

func (m *SessionManager) loginFailed(result string, err error) error {
	metrics.LoginAttemptsTotal.WithLabelValues(result).Inc()
	authErr := &domain.AuthenticationError{Err: err}

	m.mu.Lock()
	m.lastErr = authErr
	m.notifyLocked()
	m.mu.Unlock()

	m.log.Info().Err(err).Str("result", result).Msg("login failed")
	return authErr
}

// commitAuthenticated installs u unless a Logout or Expire happened since gen
// was read.
func (m *SessionManager) commitAuthenticated(gen uint64, u *domain.User) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		return false
	}
	m.user = u
	m.lastErr = nil
	m.transitionLocked(domain.StateAuthenticated)
	m.notifyLocked()
	return true
}

func (m *SessionManager) stale(gen uint64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gen != gen
}

// discard removes token from the store if nothing replaced it since.
func (m *SessionManager) discard(ctx context.Context, token string) {
	if current, err := m.store.Load(ctx); err != nil || current != token {
		return
	}
	if err := m.store.Clear(ctx); err != nil {
		m.log.Warn().Err(err).Msg("failed to clear superseded credential")
	}
}

func (m *SessionManager) becomeAnonymous(cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = nil
	m.lastErr = cause
	m.transitionLocked(domain.StateAnonymous)
	m.notifyLocked()
}

func (m *SessionManager) doneLoading() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loading > 0 {
		m.loading--
	}
	m.notifyLocked()
}

func (m *SessionManager) transitionLocked(next domain.SessionState) {
	if m.state == next {
		return
	}
	if !m.state.CanTransitionTo(next) {
		m.log.Warn().Str("from", string(m.state)).Str("to", string(next)).Msg("unexpected session transition")
	}
	metrics.SessionTransitionsTotal.WithLabelValues(string(m.state), string(next)).Inc()
	m.state = next
}

func (m *SessionManager) snapshotLocked() domain.Snapshot {
	snap := domain.Snapshot{
		State:   m.state,
		Loading: m.loading > 0 || m.state == domain.StateUninitialized || m.state == domain.StateLoading,
		Err:     m.lastErr,
	}
	if m.user != nil {
		u := *m.user
		snap.User = &u
	}
	return snap
}

// notifyLocked pushes the current snapshot to every subscriber, replacing a
// value the subscriber has not read yet.
func (m *SessionManager) notifyLocked() {
	snap := m.snapshotLocked()
	for _, ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

// mergeProfile builds the session user. Server values win; decoded claims
// only fill what the profile left empty.
func mergeProfile(p *domain.Profile, claims domain.Claims, haveClaims bool) *domain.User {
	u := &domain.User{
		ID:          p.ID,
		Email:       p.Email,
		DisplayName: p.DisplayName,
		Role:        p.Role,
	}
	if !haveClaims {
		return u
	}
	if u.Role == "" {
		u.Role = claims.Role
	}
	if u.ID == "" {
		u.ID = claims.UserID
	}
	if u.Email == "" {
		u.Email = claims.Email
	}
	return u
}
