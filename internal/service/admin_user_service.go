package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stemsi/tricol-console/internal/model"
	"github.com/stemsi/tricol-console/internal/permission"
)

// AdminAPI is the slice of the backend used for user administration.
type AdminAPI interface {
	ListUsers(ctx context.Context) ([]model.AdminUser, error)
	AssignRole(ctx context.Context, userID int64, role model.Role) (string, error)
	UpdatePermission(ctx context.Context, userID int64, permissionID int, granted bool) (string, error)
	RemovePermission(ctx context.Context, userID int64, permissionID int) (string, error)
}

// Authorizer answers permission questions about the signed-in operator.
type Authorizer interface {
	HasPermission(p model.Permission) bool
}

// Role filter values besides a role tag.
const (
	RoleFilterAll    = "all"
	RoleFilterNoRole = "no-role"
)

// UserFilter narrows the user listing.
type UserFilter struct {
	// Search matches first name, last name or email, case-insensitively.
	Search string
	// Role is RoleFilterAll, RoleFilterNoRole or a role tag.
	Role string
}

// ToggleAction is what a permission toggle resolved to.
type ToggleAction string

const (
	ToggleGrant  ToggleAction = "grant"
	ToggleRevoke ToggleAction = "revoke"
	ToggleNone   ToggleAction = "none"
)

// ToggleResult reports the outcome of one permission toggle.
type ToggleResult struct {
	Permission model.Permission `json:"permission"`
	Action     ToggleAction     `json:"action"`
	Message    string           `json:"message,omitempty"`
	Failed     bool             `json:"failed"`
	Err        error            `json:"-"`
}

// OK reports whether the toggle succeeded.
func (r ToggleResult) OK() bool {
	return r.Err == nil
}

// CountFailed returns how many results carry an error.
func CountFailed(results []ToggleResult) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// AdminUserService manages other users' roles and explicit permissions.
// Every operation requires the operator to hold ADMIN_USERS.
type AdminUserService struct {
	api     AdminAPI
	auth    Authorizer
	catalog *model.Catalog
	log     zerolog.Logger

	// maxParallel bounds concurrent toggle calls.
	maxParallel int
}

func NewAdminUserService(api AdminAPI, auth Authorizer, catalog *model.Catalog, log zerolog.Logger) *AdminUserService {
	if catalog == nil {
		catalog = model.DefaultCatalog()
	}
	return &AdminUserService{
		api:         api,
		auth:        auth,
		catalog:     catalog,
		log:         log.With().Str("component", "admin_users").Logger(),
		maxParallel: 4,
	}
}

// Catalog returns the permission catalog in use.
func (s *AdminUserService) Catalog() *model.Catalog {
	return s.catalog
}

func (s *AdminUserService) authorize() error {
	if s.auth == nil || !s.auth.HasPermission(model.PermissionAdminUsers) {
		return ErrPermissionDenied
	}
	return nil
}

// ListUsers returns the users matching filter.
func (s *AdminUserService) ListUsers(ctx context.Context, filter UserFilter) ([]model.AdminUser, error) {
	if err := s.authorize(); err != nil {
		return nil, err
	}
	users, err := s.api.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return FilterUsers(users, filter), nil
}

// FilterUsers applies a search term and role filter to a user list.
func FilterUsers(users []model.AdminUser, filter UserFilter) []model.AdminUser {
	term := strings.ToLower(strings.TrimSpace(filter.Search))
	role := strings.TrimSpace(filter.Role)

	out := make([]model.AdminUser, 0, len(users))
	for _, u := range users {
		if term != "" &&
			!strings.Contains(strings.ToLower(u.FirstName), term) &&
			!strings.Contains(strings.ToLower(u.LastName), term) &&
			!strings.Contains(strings.ToLower(u.Email), term) {
			continue
		}
		switch role {
		case "", RoleFilterAll:
		case RoleFilterNoRole:
			if len(u.Roles) > 0 {
				continue
			}
		default:
			if !slices.Contains(u.Roles, model.Role(role)) {
				continue
			}
		}
		out = append(out, u)
	}
	return out
}

// GetUser returns the authoritative record of one user.
func (s *AdminUserService) GetUser(ctx context.Context, userID int64) (*model.AdminUser, error) {
	if err := s.authorize(); err != nil {
		return nil, err
	}
	return s.getUser(ctx, userID)
}

func (s *AdminUserService) getUser(ctx context.Context, userID int64) (*model.AdminUser, error) {
	users, err := s.api.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", userID, err)
	}
	for i := range users {
		if users[i].ID == userID {
			return &users[i], nil
		}
	}
	return nil, ErrUserNotFound
}

// GrantExplicit grants p to a user unless a role or an explicit grant
// already provides it.
func (s *AdminUserService) GrantExplicit(ctx context.Context, userID int64, p model.Permission) (ToggleResult, error) {
	return s.toggleOne(ctx, userID, p, true)
}

// RevokeExplicit removes an explicit grant of p. Permissions that come from
// a role are left alone: only a role change removes them.
func (s *AdminUserService) RevokeExplicit(ctx context.Context, userID int64, p model.Permission) (ToggleResult, error) {
	return s.toggleOne(ctx, userID, p, false)
}

func (s *AdminUserService) toggleOne(ctx context.Context, userID int64, p model.Permission, on bool) (ToggleResult, error) {
	if err := s.authorize(); err != nil {
		return ToggleResult{}, err
	}
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return ToggleResult{}, err
	}
	result := s.apply(ctx, userID, p, Decide(user.UserIdentity, p, on))
	return result, result.Err
}

// Decide resolves a desired permission state against a user record.
func Decide(u model.UserIdentity, p model.Permission, on bool) ToggleAction {
	explicit := permission.IsExplicit(u, p)
	switch {
	case on && !explicit && !permission.IsRoleDefault(u, p):
		return ToggleGrant
	case !on && explicit:
		return ToggleRevoke
	default:
		return ToggleNone
	}
}

// ApplyToggles brings a user's explicit permissions in line with desired.
// Toggles run independently and are reported one by one; a failure of one
// does not undo the others. ErrNoChanges is returned when nothing applies.
func (s *AdminUserService) ApplyToggles(ctx context.Context, userID int64, desired map[model.Permission]bool) ([]ToggleResult, error) {
	if err := s.authorize(); err != nil {
		return nil, err
	}
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	type pending struct {
		p      model.Permission
		action ToggleAction
	}
	var work []pending
	for _, p := range s.orderedKeys(desired) {
		if action := Decide(user.UserIdentity, p, desired[p]); action != ToggleNone {
			work = append(work, pending{p: p, action: action})
		}
	}
	if len(work) == 0 {
		return nil, ErrNoChanges
	}

	results := make([]ToggleResult, len(work))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxParallel)
	for i, w := range work {
		i, w := i, w
		g.Go(func() error {
			results[i] = s.apply(gctx, userID, w.p, w.action)
			return nil
		})
	}
	_ = g.Wait()

	failed := CountFailed(results)
	s.log.Info().
		Int64("user_id", userID).
		Int("applied", len(results)-failed).
		Int("failed", failed).
		Msg("Permission toggles applied")
	return results, nil
}

// orderedKeys lists desired permissions in catalog order, unknown ones last.
func (s *AdminUserService) orderedKeys(desired map[model.Permission]bool) []model.Permission {
	out := make([]model.Permission, 0, len(desired))
	for _, p := range s.catalog.Permissions() {
		if _, ok := desired[p]; ok {
			out = append(out, p)
		}
	}
	var unknown []model.Permission
	for p := range desired {
		if _, ok := s.catalog.ID(p); !ok {
			unknown = append(unknown, p)
		}
	}
	slices.Sort(unknown)
	return append(out, unknown...)
}

func (s *AdminUserService) apply(ctx context.Context, userID int64, p model.Permission, action ToggleAction) ToggleResult {
	result := ToggleResult{Permission: p, Action: action}
	if action == ToggleNone {
		result.Message = "No change"
		return result
	}

	id, ok := s.catalog.ID(p)
	if !ok {
		result.Err = fmt.Errorf("%w: %s", ErrUnknownPermission, p)
		result.Message = result.Err.Error()
		result.Failed = true
		return result
	}

	var err error
	if action == ToggleGrant {
		result.Message, err = s.api.UpdatePermission(ctx, userID, id, true)
	} else {
		result.Message, err = s.api.RemovePermission(ctx, userID, id)
	}
	if err != nil {
		result.Err = fmt.Errorf("%s %s: %w", action, p, err)
		result.Message = result.Err.Error()
		result.Failed = true
		s.log.Warn().Err(err).Int64("user_id", userID).Str("permission", string(p)).Str("action", string(action)).Msg("Permission toggle failed")
	}
	return result
}

// AssignRole replaces the role of a user. Explicit grants are untouched.
func (s *AdminUserService) AssignRole(ctx context.Context, userID int64, role model.Role) (string, error) {
	if err := s.authorize(); err != nil {
		return "", err
	}
	if !role.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	text, err := s.api.AssignRole(ctx, userID, role)
	if err != nil {
		return "", fmt.Errorf("assign role: %w", err)
	}
	s.log.Info().Int64("user_id", userID).Str("role", string(role)).Msg("Role assigned")
	return text, nil
}

// IsPermissionDenied reports whether err is an authorization refusal.
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}
