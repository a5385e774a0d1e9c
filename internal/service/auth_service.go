package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/stemsi/tricol-console/internal/model"
	"github.com/stemsi/tricol-console/internal/permission"
	"github.com/stemsi/tricol-console/internal/session"
)

// AuthAPI is the slice of the backend the AuthService talks to.
type AuthAPI interface {
	Login(ctx context.Context, req model.LoginRequest) (*model.JWTResponse, error)
	Register(ctx context.Context, req model.RegisterRequest) (string, error)
	Refresh(ctx context.Context, refreshToken string) (*model.JWTResponse, error)
	OwnRecord(ctx context.Context, accessToken string, id int64) (*model.AdminUser, error)
}

// syncSettleDelay is how long Sync waits before trusting an empty store.
const syncSettleDelay = 100 * time.Millisecond

// AuthService owns the single live session. Reads go through an in-memory
// snapshot; every write (login, refresh, logout) is serialized and replaces
// the whole session at once.
type AuthService struct {
	api   AuthAPI
	store session.Store
	pub   *session.Publisher
	log   zerolog.Logger

	// writeMu serializes persistence and publication.
	writeMu sync.Mutex
	// refreshes collapses overlapping Refresh calls into one backend call.
	refreshes singleflight.Group

	mu      sync.RWMutex
	current *model.Session
	// epoch changes on every login and logout. A refresh started under an
	// older epoch is discarded.
	epoch uint64
}

// NewAuthService creates a new AuthService. Call Restore before serving.
func NewAuthService(api AuthAPI, store session.Store, pub *session.Publisher, log zerolog.Logger) *AuthService {
	if pub == nil {
		pub = session.NewPublisher()
	}
	return &AuthService{
		api:   api,
		store: store,
		pub:   pub,
		log:   log.With().Str("component", "auth").Logger(),
	}
}

// Restore loads the persisted session at startup. A missing or corrupt
// session means signed out; stale slots are cleared. It reports whether a
// session was restored.
func (s *AuthService) Restore(ctx context.Context) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	sess, err := s.store.Load(ctx)
	if err != nil {
		if !errors.Is(err, session.ErrNoSession) {
			s.log.Warn().Err(err).Msg("Failed to load persisted session")
		} else {
			s.log.Debug().Err(err).Msg("No persisted session")
		}
		if clearErr := s.store.Clear(ctx); clearErr != nil {
			s.log.Warn().Err(clearErr).Msg("Failed to clear stale session slots")
		}
		s.swap(nil, true)
		s.pub.Publish(session.Event{Kind: session.EventRestore, Redirect: session.LoginPath})
		return false
	}

	s.swap(sess, false)
	user := sess.User.Clone()
	s.pub.Publish(session.Event{Kind: session.EventRestore, User: &user})
	s.log.Info().Int64("user_id", user.ID).Str("email", user.Email).Msg("Session restored")
	return true
}

// Login signs in and replaces any previous session. On failure the
// previous session is left untouched.
func (s *AuthService) Login(ctx context.Context, email, password string) (*model.Session, error) {
	resp, err := s.api.Login(ctx, model.LoginRequest{Email: email, Password: password})
	if err != nil {
		authErr := classify(err)
		s.log.Info().Str("email", email).Err(authErr.Kind).Msg("Login failed")
		return nil, authErr
	}

	sess := resp.Session()
	if sess.AccessToken == "" || sess.RefreshToken == "" {
		return nil, newAuthError(ErrServerError, 0, "Server error: incomplete token response", nil)
	}
	s.hydrateRoleDefaults(ctx, sess)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.store.Save(ctx, sess); err != nil {
		// A failed save may have cleared the slots already.
		if prev := s.Session(); prev != nil {
			if restoreErr := s.store.Save(ctx, prev); restoreErr != nil {
				s.log.Error().Err(restoreErr).Msg("Failed to restore previous session")
			}
		}
		return nil, fmt.Errorf("persist session: %w", err)
	}
	s.swap(sess, true)

	user := sess.User.Clone()
	s.pub.Publish(session.Event{Kind: session.EventLogin, User: &user})
	s.log.Info().Int64("user_id", user.ID).Str("email", user.Email).Msg("Logged in")
	return sess.Clone(), nil
}

// Register creates an account. It never touches the session.
func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest) (string, error) {
	text, err := s.api.Register(ctx, req)
	if err != nil {
		authErr := classify(err)
		if errors.Is(authErr, ErrInvalidCredentials) {
			authErr = newAuthError(ErrServerError, authErr.Status, fmt.Sprintf("Server error: %d", authErr.Status), err)
		}
		return "", authErr
	}
	if text == "" {
		text = "User registered successfully"
	}
	return text, nil
}

// Refresh exchanges the stored refresh token for a new session. Any
// failure forces a full logout, unless the session was replaced or ended
// while the call was in flight, in which case the outcome is ignored.
//
// Concurrent callers share one attempt, which ignores the caller's
// cancellation.
func (s *AuthService) Refresh(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	_, err, _ := s.refreshes.Do("refresh", func() (any, error) {
		return nil, s.refresh(ctx)
	})
	return err
}

func (s *AuthService) refresh(ctx context.Context) error {
	epoch, current, adopted := s.beginRefresh(ctx)
	if adopted {
		return nil
	}
	var refreshToken string
	if current != nil {
		refreshToken = current.RefreshToken
	}

	if refreshToken == "" {
		s.forceLogout(ctx, epoch, "no refresh token")
		return newAuthError(ErrNoRefreshToken, 0, "No active session", nil)
	}

	resp, err := s.api.Refresh(ctx, refreshToken)
	if err != nil {
		authErr := classifyRefresh(err)
		if errors.Is(authErr, ErrRefreshRejected) && s.adoptRotated(ctx, epoch, refreshToken) {
			return nil
		}
		s.forceLogout(ctx, epoch, authErr.Kind.Error())
		return authErr
	}

	sess := resp.Session()
	if sess.AccessToken == "" {
		s.forceLogout(ctx, epoch, "empty access token")
		return newAuthError(ErrRefreshRejected, 0, "Session expired, please sign in again", nil)
	}
	if sess.RefreshToken == "" {
		sess.RefreshToken = refreshToken
	}
	s.hydrateRoleDefaults(ctx, sess)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.Epoch() != epoch {
		s.log.Debug().Msg("Discarding refresh result for a superseded session")
		if s.AccessToken() == "" {
			return newAuthError(ErrNoRefreshToken, 0, "No active session", nil)
		}
		return nil
	}

	if err := s.store.Save(ctx, sess); err != nil {
		s.log.Error().Err(err).Msg("Failed to persist refreshed session")
		s.logoutLocked(ctx)
		return newAuthError(ErrServerError, 0, "Server error: unable to persist session", err)
	}
	s.swap(sess, false)

	user := sess.User.Clone()
	s.pub.Publish(session.Event{Kind: session.EventRefresh, User: &user})
	s.log.Debug().Int64("user_id", user.ID).Msg("Session refreshed")
	return nil
}

// beginRefresh picks the session to refresh from. When the store holds
// tokens other than the in-memory ones, another process already rotated
// them; that session is adopted and no backend call is needed.
func (s *AuthService) beginRefresh(ctx context.Context) (uint64, *model.Session, bool) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current := s.Session()
	stored, err := s.store.Load(ctx)
	switch {
	case err == nil && (current == nil || stored.AccessToken != current.AccessToken || stored.RefreshToken != current.RefreshToken):
		s.adoptLocked(stored, current)
		return s.Epoch(), stored, true
	case err != nil && !errors.Is(err, session.ErrNoSession):
		s.log.Warn().Err(err).Msg("Failed to load session before refresh")
	}
	return s.Epoch(), current, false
}

// adoptRotated reports whether a rejected refresh token had been rotated by
// another process in the meantime, adopting the stored session if so.
func (s *AuthService) adoptRotated(ctx context.Context, epoch uint64, used string) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.Epoch() != epoch {
		return false
	}
	stored, err := s.store.Load(ctx)
	if err != nil || stored.RefreshToken == used {
		return false
	}
	s.adoptLocked(stored, s.Session())
	return true
}

// Sync reconciles the in-memory session with the store, picking up a
// login, refresh or logout made by another process sharing it. It reports
// whether the session changed. Store errors leave the session as it is.
func (s *AuthService) Sync(ctx context.Context) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	stored, err := s.store.Load(ctx)
	if err != nil && !errors.Is(err, session.ErrNoSession) {
		return false, err
	}

	current := s.Session()
	if stored == nil && current != nil {
		// A process saving a session clears the slots before writing them.
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(syncSettleDelay):
		}
		stored, err = s.store.Load(ctx)
		if err != nil && !errors.Is(err, session.ErrNoSession) {
			return false, err
		}
	}

	switch {
	case stored == nil && current == nil:
		return false, nil

	case stored == nil:
		s.log.Info().Msg("Session ended elsewhere")
		s.logoutLocked(ctx)
		return true, nil

	case current != nil && stored.AccessToken == current.AccessToken && stored.RefreshToken == current.RefreshToken:
		return false, nil

	default:
		s.adoptLocked(stored, current)
		return true, nil
	}
}

// adoptLocked installs a session persisted by another process. The same
// user keeps the session generation; anyone else starts a new one.
func (s *AuthService) adoptLocked(stored, current *model.Session) {
	user := stored.User.Clone()
	if current != nil && stored.User.ID == current.User.ID {
		s.swap(stored, false)
		s.pub.Publish(session.Event{Kind: session.EventRefresh, User: &user})
		s.log.Debug().Int64("user_id", user.ID).Msg("Picked up refreshed session")
		return
	}
	s.swap(stored, true)
	s.pub.Publish(session.Event{Kind: session.EventLogin, User: &user})
	s.log.Info().Int64("user_id", user.ID).Str("email", user.Email).Msg("Picked up session started elsewhere")
}

// Logout clears the session. It is safe to call with no live session.
func (s *AuthService) Logout(ctx context.Context) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.logoutLocked(ctx)
}

func (s *AuthService) forceLogout(ctx context.Context, epoch uint64, reason string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.Epoch() != epoch {
		return
	}
	s.log.Warn().Str("reason", reason).Msg("Refresh failed, forcing logout")
	s.logoutLocked(ctx)
}

func (s *AuthService) logoutLocked(ctx context.Context) {
	s.mu.RLock()
	wasSignedIn := s.current != nil
	s.mu.RUnlock()

	s.swap(nil, true)
	if err := s.store.Clear(ctx); err != nil {
		s.log.Error().Err(err).Msg("Failed to clear session slots")
	}
	s.pub.Publish(session.Event{Kind: session.EventLogout, Redirect: session.LoginPath})
	if wasSignedIn {
		s.log.Info().Msg("Logged out")
	}
}

// swap installs a new session snapshot. newEpoch marks a login or logout.
func (s *AuthService) swap(sess *model.Session, newEpoch bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = sess.Clone()
	if newEpoch {
		s.epoch++
	}
}

// hydrateRoleDefaults fills role-default permissions from the caller's own
// admin record when the token response did not carry them. It is best
// effort: users without access to the admin listing keep an empty set,
// which is logged since it narrows what they can reach.
func (s *AuthService) hydrateRoleDefaults(ctx context.Context, sess *model.Session) {
	if len(sess.User.RoleDefaultPermissions) > 0 || len(sess.User.Roles) == 0 {
		return
	}
	rec, err := s.api.OwnRecord(ctx, sess.AccessToken, sess.User.ID)
	if err != nil || rec == nil {
		s.log.Warn().
			Err(err).
			Int64("user_id", sess.User.ID).
			Interface("roles", sess.User.Roles).
			Msg("Role defaults unavailable, only explicit permissions apply")
		return
	}
	sess.User.RoleDefaultPermissions = rec.RoleDefaultPermissions
}

// Epoch returns the current session generation.
func (s *AuthService) Epoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// IsAuthenticated reports whether an access token is held.
func (s *AuthService) IsAuthenticated() bool {
	return s.AccessToken() != ""
}

// AccessToken returns the current access token, or "".
func (s *AuthService) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return ""
	}
	return s.current.AccessToken
}

// CurrentUser returns a snapshot of the signed-in user, or nil.
func (s *AuthService) CurrentUser() *model.UserIdentity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	u := s.current.User.Clone()
	return &u
}

// Session returns a snapshot of the whole session, or nil.
func (s *AuthService) Session() *model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

func (s *AuthService) HasPermission(p model.Permission) bool {
	return permission.Has(s.CurrentUser(), p)
}

func (s *AuthService) HasAnyPermission(ps ...model.Permission) bool {
	return permission.HasAny(s.CurrentUser(), ps)
}

func (s *AuthService) HasRole(r model.Role) bool {
	return permission.HasRole(s.CurrentUser(), r)
}

// Satisfies evaluates a route requirement against the current user.
func (s *AuthService) Satisfies(req permission.Requirement) bool {
	return req.SatisfiedBy(s.CurrentUser())
}

// Subscribe registers for session changes. See session.Publisher.Subscribe.
func (s *AuthService) Subscribe(buffer int) (<-chan session.Event, func()) {
	return s.pub.Subscribe(buffer)
}
