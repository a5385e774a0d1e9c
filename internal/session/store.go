// Package session persists the single live console session and publishes
// changes of the signed-in user to subscribers.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stemsi/tricol-console/internal/model"
)

// ErrNoSession is returned by Load when no complete session is persisted.
// A missing or unreadable slot is always reported this way.
var ErrNoSession = errors.New("session: no session")

// Store persists a session as three independent slots: access token,
// refresh token and serialized identity.
type Store interface {
	// Load returns the persisted session, or ErrNoSession if any slot is
	// absent or corrupt. It never returns a partially populated session.
	Load(ctx context.Context) (*model.Session, error)
	// Save replaces all three slots.
	Save(ctx context.Context, s *model.Session) error
	// Clear removes all three slots. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
}

func validateForSave(s *model.Session) error {
	if s == nil || s.AccessToken == "" || s.RefreshToken == "" {
		return errors.New("session: access and refresh tokens are required")
	}
	return nil
}

func encodeUser(u model.UserIdentity) (string, error) {
	data, err := json.Marshal(u)
	if err != nil {
		return "", fmt.Errorf("encode identity: %w", err)
	}
	return string(data), nil
}

// assemble builds a session from raw slot values, applying the
// all-or-nothing rule.
func assemble(access, refresh, user string) (*model.Session, error) {
	access, refresh, user = strings.TrimSpace(access), strings.TrimSpace(refresh), strings.TrimSpace(user)
	if access == "" || refresh == "" || user == "" {
		return nil, ErrNoSession
	}

	var identity model.UserIdentity
	if err := json.Unmarshal([]byte(user), &identity); err != nil {
		return nil, fmt.Errorf("%w: corrupt identity: %v", ErrNoSession, err)
	}
	if identity.ID == 0 && identity.Email == "" {
		return nil, fmt.Errorf("%w: empty identity", ErrNoSession)
	}

	return &model.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         identity,
	}, nil
}
