package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/stemsi/tricol-console/internal/apiclient"
	"github.com/stemsi/tricol-console/internal/model"
	"github.com/stemsi/tricol-console/internal/session"
)

// loadRoleDefaults reads the backend role mapping fixture.
func loadRoleDefaults(t *testing.T) map[model.Role][]model.Permission {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", "role_defaults.json"))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	var m map[model.Role][]model.Permission
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	return m
}

// fakeBackend is an in-memory stand-in for the Tricol REST API. Role
// defaults are derived from the fixture, as the backend would.
type fakeBackend struct {
	mu           sync.Mutex
	roleDefaults map[model.Role][]model.Permission
	users        map[int64]*model.AdminUser
	passwords    map[string]string
	tokenSeq     int
	refreshOwner map[string]int64

	loginErr     error
	refreshErr   error
	registerErr  error
	ownRecordErr error
	failPerm     map[int]error

	refreshCalls int
	calls        []string

	// refreshGate, when set, blocks Refresh until closed.
	refreshGate    chan struct{}
	refreshEntered chan struct{}
	enterOnce      sync.Once
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	return &fakeBackend{
		roleDefaults: loadRoleDefaults(t),
		users:        make(map[int64]*model.AdminUser),
		passwords:    make(map[string]string),
		failPerm:     make(map[int]error),
		refreshOwner: make(map[string]int64),
	}
}

func (b *fakeBackend) addUser(id int64, email, password string, roles []model.Role, explicit []model.Permission) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.users[id] = &model.AdminUser{UserIdentity: model.UserIdentity{
		ID:          id,
		Email:       email,
		FirstName:   "User",
		LastName:    email,
		Roles:       roles,
		Permissions: explicit,
	}}
	b.passwords[email] = password
}

func (b *fakeBackend) record(id int64) model.AdminUser {
	u := *b.users[id]
	u.UserIdentity = u.UserIdentity.Clone()
	var defaults []model.Permission
	for _, r := range u.Roles {
		for _, p := range b.roleDefaults[r] {
			if !slices.Contains(defaults, p) {
				defaults = append(defaults, p)
			}
		}
	}
	u.RoleDefaultPermissions = defaults
	return u
}

func (b *fakeBackend) issue(u *model.AdminUser) *model.JWTResponse {
	b.tokenSeq++
	refresh := fmt.Sprintf("refresh-%d", b.tokenSeq)
	b.refreshOwner[refresh] = u.ID
	return &model.JWTResponse{
		Token:        fmt.Sprintf("access-%d", b.tokenSeq),
		RefreshToken: refresh,
		ID:           u.ID,
		Email:        u.Email,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Roles:        slices.Clone(u.Roles),
		Permissions:  slices.Clone(u.Permissions),
	}
}

func (b *fakeBackend) Login(_ context.Context, req model.LoginRequest) (*model.JWTResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.loginErr != nil {
		return nil, b.loginErr
	}
	if pw, ok := b.passwords[req.Email]; !ok || pw != req.Password {
		return nil, &apiclient.APIError{Op: "login", Status: 401}
	}
	for _, u := range b.users {
		if u.Email == req.Email {
			return b.issue(u), nil
		}
	}
	return nil, &apiclient.APIError{Op: "login", Status: 401}
}

func (b *fakeBackend) Register(_ context.Context, req model.RegisterRequest) (string, error) {
	if b.registerErr != nil {
		return "", b.registerErr
	}
	return "User registered successfully", nil
}

func (b *fakeBackend) Refresh(ctx context.Context, refreshToken string) (*model.JWTResponse, error) {
	if b.refreshEntered != nil {
		b.enterOnce.Do(func() { close(b.refreshEntered) })
	}
	if b.refreshGate != nil {
		<-b.refreshGate
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshCalls++
	if err := ctx.Err(); err != nil {
		return nil, &apiclient.APIError{Op: "refresh", Err: err}
	}
	if b.refreshErr != nil {
		return nil, b.refreshErr
	}
	id, ok := b.refreshOwner[refreshToken]
	if !ok {
		return nil, &apiclient.APIError{Op: "refresh", Status: 401}
	}
	delete(b.refreshOwner, refreshToken)
	return b.issue(b.users[id]), nil
}

func (b *fakeBackend) OwnRecord(_ context.Context, _ string, id int64) (*model.AdminUser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ownRecordErr != nil {
		return nil, b.ownRecordErr
	}
	if _, ok := b.users[id]; !ok {
		return nil, nil
	}
	rec := b.record(id)
	return &rec, nil
}

func (b *fakeBackend) ListUsers(_ context.Context) ([]model.AdminUser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]int64, 0, len(b.users))
	for id := range b.users {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]model.AdminUser, 0, len(ids))
	for _, id := range ids {
		out = append(out, b.record(id))
	}
	return out, nil
}

func (b *fakeBackend) AssignRole(_ context.Context, userID int64, role model.Role) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, "assign-role "+string(role))
	u, ok := b.users[userID]
	if !ok {
		return "", &apiclient.APIError{Op: "assign role", Status: 404}
	}
	u.Roles = []model.Role{role}
	return "Role assigned successfully", nil
}

func (b *fakeBackend) UpdatePermission(_ context.Context, userID int64, permissionID int, granted bool) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := permissionByID(permissionID)
	b.calls = append(b.calls, "grant "+string(p))
	if err := b.failPerm[permissionID]; err != nil {
		return "", err
	}
	u := b.users[userID]
	if granted && !slices.Contains(u.Permissions, p) {
		u.Permissions = append(u.Permissions, p)
	}
	return "Permission updated", nil
}

func (b *fakeBackend) RemovePermission(_ context.Context, userID int64, permissionID int) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := permissionByID(permissionID)
	b.calls = append(b.calls, "revoke "+string(p))
	if err := b.failPerm[permissionID]; err != nil {
		return "", err
	}
	u := b.users[userID]
	u.Permissions = slices.DeleteFunc(u.Permissions, func(x model.Permission) bool { return x == p })
	return "Permission removed", nil
}

func permissionByID(id int) model.Permission {
	catalog := model.DefaultCatalog()
	for _, p := range catalog.Permissions() {
		if pid, _ := catalog.ID(p); pid == id {
			return p
		}
	}
	return ""
}

func (b *fakeBackend) sortedCalls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := slices.Clone(b.calls)
	slices.Sort(out)
	return out
}

func (b *fakeBackend) refreshCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refreshCalls
}

// flakyStore fails the next failSaves saves after clearing the slots, as an
// interrupted file save would.
type flakyStore struct {
	session.Store
	mu        sync.Mutex
	failSaves int
}

func (f *flakyStore) Save(ctx context.Context, sess *model.Session) error {
	f.mu.Lock()
	fail := f.failSaves > 0
	if fail {
		f.failSaves--
	}
	f.mu.Unlock()
	if fail {
		_ = f.Store.Clear(ctx)
		return errors.New("disk full")
	}
	return f.Store.Save(ctx, sess)
}

func newAuthService(t *testing.T, api AuthAPI, dir string) (*AuthService, session.Store) {
	t.Helper()
	store, err := session.NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return NewAuthService(api, store, session.NewPublisher(), zerolog.Nop()), store
}
