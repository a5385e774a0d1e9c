package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/stemsi/tricol-console/internal/apiclient"
	"github.com/stemsi/tricol-console/internal/config"
	"github.com/stemsi/tricol-console/internal/handler"
	"github.com/stemsi/tricol-console/internal/model"
	"github.com/stemsi/tricol-console/internal/service"
	"github.com/stemsi/tricol-console/internal/session"
	"github.com/stemsi/tricol-console/internal/transport"
	"github.com/stemsi/tricol-console/internal/validator"
	ws "github.com/stemsi/tricol-console/internal/websocket"
)

const (
	adminEmail = "admin@tricol.ma"
	clerkEmail = "clerk@tricol.ma"
	password   = "secret"
)

// tricolBackend is an in-memory stand-in for the Tricol REST API.
type tricolBackend struct {
	mu sync.Mutex

	gen     int
	access  string
	refresh string
	user    model.UserIdentity

	users map[int64]*model.AdminUser

	expireNext    bool
	rejectRefresh bool
	refreshCalls  int
	granted       []string
	seenCookie    bool
}

func newTricolBackend() *tricolBackend {
	return &tricolBackend{
		users: map[int64]*model.AdminUser{
			1: {UserIdentity: model.UserIdentity{
				ID: 1, Email: adminEmail, FirstName: "Amina", LastName: "Idrissi",
				Roles:                  []model.Role{model.RoleAdmin},
				RoleDefaultPermissions: []model.Permission{model.PermissionAdminUsers, model.PermissionSuppliersRead},
			}},
			2: {UserIdentity: model.UserIdentity{
				ID: 2, Email: clerkEmail, FirstName: "Youssef", LastName: "Benali",
				Roles:                  []model.Role{model.RoleWarehouseManager},
				Permissions:            []model.Permission{model.PermissionSuppliersRead},
				RoleDefaultPermissions: []model.Permission{model.PermissionStockRead},
			}},
		},
	}
}

func (b *tricolBackend) issue(u model.UserIdentity) model.JWTResponse {
	b.gen++
	b.access = fmt.Sprintf("access-%d", b.gen)
	b.refresh = fmt.Sprintf("refresh-%d", b.gen)
	b.user = u
	resp := model.JWTResponse{
		Token: b.access, RefreshToken: b.refresh,
		ID: u.ID, Email: u.Email, FirstName: u.FirstName, LastName: u.LastName,
		Roles: u.Roles, Permissions: u.Permissions,
	}
	// The clerk's token response carries role defaults; the admin's does
	// not, so the console has to look them up.
	if u.Email == clerkEmail {
		resp.RoleDefaultPermissions = u.RoleDefaultPermissions
	}
	return resp
}

func (b *tricolBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch r.URL.Path {
	case apiclient.PathLogin:
		var req model.LoginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		for _, u := range b.users {
			if u.Email == req.Email && req.Password == password {
				writeJSON(w, http.StatusOK, b.issue(u.UserIdentity))
				return
			}
		}
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Bad credentials"})
		return

	case apiclient.PathRefresh:
		b.refreshCalls++
		if b.rejectRefresh || r.URL.Query().Get("refreshToken") != b.refresh {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Refresh token expired"})
			return
		}
		writeJSON(w, http.StatusOK, b.issue(b.user))
		return
	}

	if r.Header.Get("Authorization") != "Bearer "+b.access || b.access == "" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if b.expireNext {
		b.expireNext = false
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if r.Header.Get("Cookie") != "" {
		b.seenCookie = true
	}

	switch {
	case r.URL.Path == apiclient.PathUsers && r.Method == http.MethodGet:
		list := []model.AdminUser{*b.users[1], *b.users[2]}
		writeJSON(w, http.StatusOK, list)
	case strings.HasPrefix(r.URL.Path, apiclient.PathUsers+"/") && strings.Contains(r.URL.Path, "/permissions/"):
		b.granted = append(b.granted, r.Method+" "+r.URL.Path+"?"+r.URL.RawQuery)
		_, _ = w.Write([]byte("Permission updated"))
	case r.URL.Path == "/suppliers":
		writeJSON(w, http.StatusOK, []map[string]any{{"id": 1, "name": "Acme"}})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// console wires the real stack against the fake backend, the same way the
// server entrypoint does.
type console struct {
	engine  *gin.Engine
	auth    *service.AuthService
	backend *tricolBackend
}

func newConsole(t *testing.T) *console {
	t.Helper()
	gin.SetMode(gin.TestMode)
	validator.Setup()

	backend := newTricolBackend()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		GinMode:            gin.TestMode,
		APIBaseURL:         srv.URL,
		LoginRatePerMinute: 100,
		MaxProxyBodyBytes:  1 << 20,
	}
	log := zerolog.Nop()

	store, err := session.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}

	authService := service.NewAuthService(apiclient.NewAuthAPI(apiclient.New(srv.URL, nil, 0)), store, nil, log)
	interceptor := transport.NewInterceptor(nil, authService)
	adminAPI := apiclient.NewAdminAPI(apiclient.New(srv.URL, interceptor.Client(), 0))
	adminService := service.NewAdminUserService(adminAPI, authService, model.DefaultCatalog(), log)

	proxy, err := handler.NewProxyHandler(srv.URL, interceptor, cfg.MaxProxyBodyBytes, log)
	if err != nil {
		t.Fatalf("proxy: %v", err)
	}

	handlers := &Handlers{
		Auth:          handler.NewAuthHandler(authService),
		AdminUser:     handler.NewAdminUserHandler(adminService),
		Screen:        handler.NewScreenHandler(authService),
		SessionStream: handler.NewSessionStreamHandler(authService, log, nil),
		Proxy:         proxy,
	}
	return &console{
		engine:  SetupRouter(authService, handlers, cfg, log),
		auth:    authService,
		backend: backend,
	}
}

func (c *console) do(method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	c.engine.ServeHTTP(w, req)
	return w
}

func (c *console) login(t *testing.T, email string) {
	t.Helper()
	w := c.do(http.MethodPost, "/api/auth/login", map[string]string{"email": email, "password": password}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login %s: status %d: %s", email, w.Code, w.Body.String())
	}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code     string `json:"code"`
		Message  string `json:"message"`
		Redirect string `json:"redirect"`
	} `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return env
}

func TestUnauthenticatedNavigation(t *testing.T) {
	c := newConsole(t)

	tests := []struct {
		name     string
		path     string
		accept   string
		status   int
		location string
	}{
		{"screen goes to login with return url", "/suppliers", "", http.StatusFound, "/login?returnUrl=%2Fsuppliers"},
		{"landing goes to plain login", "/dashboard", "", http.StatusFound, "/login"},
		{"root goes to landing", "/", "", http.StatusFound, "/dashboard"},
		{"unknown path goes to landing", "/nowhere", "", http.StatusFound, "/dashboard"},
		{"api call gets 401", "/api/admin/users", "", http.StatusUnauthorized, ""},
		{"json screen request gets 401", "/stock", "application/json", http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := c.do(http.MethodGet, tt.path, nil, map[string]string{"Accept": tt.accept})
			if w.Code != tt.status {
				t.Fatalf("status: expected %d, got %d (%s)", tt.status, w.Code, w.Body.String())
			}
			if tt.location != "" && w.Header().Get("Location") != tt.location {
				t.Fatalf("location: expected %q, got %q", tt.location, w.Header().Get("Location"))
			}
			if tt.status == http.StatusUnauthorized {
				env := decode(t, w)
				if env.Error == nil || env.Error.Code != "NOT_AUTHENTICATED" || !strings.HasPrefix(env.Error.Redirect, "/login") {
					t.Fatalf("unexpected error body: %s", w.Body.String())
				}
			}
		})
	}
}

func TestLoginReturnsToRequestedScreen(t *testing.T) {
	c := newConsole(t)

	w := c.do(http.MethodPost, "/api/auth/login", map[string]string{
		"email": adminEmail, "password": password, "returnUrl": "/suppliers",
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login: status %d: %s", w.Code, w.Body.String())
	}
	var data struct {
		ReturnURL string `json:"returnUrl"`
		Session   struct {
			Authenticated bool `json:"authenticated"`
			User          struct {
				RoleLabel            string   `json:"roleLabel"`
				EffectivePermissions []string `json:"effectivePermissions"`
			} `json:"user"`
		} `json:"session"`
	}
	if err := json.Unmarshal(decode(t, w).Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.ReturnURL != "/suppliers" || !data.Session.Authenticated {
		t.Fatalf("unexpected login payload: %s", w.Body.String())
	}
	if data.Session.User.RoleLabel != "Administrator" {
		t.Fatalf("expected Administrator label, got %q", data.Session.User.RoleLabel)
	}
	// Role defaults were looked up from the admin listing.
	if len(data.Session.User.EffectivePermissions) != 2 {
		t.Fatalf("expected hydrated role defaults, got %v", data.Session.User.EffectivePermissions)
	}

	w = c.do(http.MethodGet, "/suppliers", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("suppliers: status %d: %s", w.Code, w.Body.String())
	}
	var screen struct {
		Actions map[string]bool `json:"actions"`
	}
	if err := json.Unmarshal(decode(t, w).Data, &screen); err != nil {
		t.Fatalf("decode screen: %v", err)
	}
	if screen.Actions["write"] {
		t.Fatal("write action must be disabled without SUPPLIERS_WRITE")
	}

	// Signed in but not allowed: screens bounce to the landing page.
	w = c.do(http.MethodGet, "/products", nil, nil)
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/dashboard" {
		t.Fatalf("products: expected redirect to landing, got %d %q", w.Code, w.Header().Get("Location"))
	}

	// The login screen forwards a signed-in operator.
	w = c.do(http.MethodGet, "/login?returnUrl=%2Fsuppliers", nil, nil)
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/suppliers" {
		t.Fatalf("login screen: expected redirect to /suppliers, got %d %q", w.Code, w.Header().Get("Location"))
	}
}

func TestFailedLoginShowsMessage(t *testing.T) {
	c := newConsole(t)

	w := c.do(http.MethodPost, "/api/auth/login", map[string]string{"email": adminEmail, "password": "wrong"}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	env := decode(t, w)
	if env.Error == nil || env.Error.Message != "Invalid credentials" {
		t.Fatalf("unexpected error: %s", w.Body.String())
	}
	if c.auth.IsAuthenticated() {
		t.Fatal("failed login must not create a session")
	}
}

func TestProxyRefreshesExpiredToken(t *testing.T) {
	c := newConsole(t)
	c.login(t, adminEmail)
	before := c.auth.AccessToken()

	c.backend.mu.Lock()
	c.backend.expireNext = true
	c.backend.mu.Unlock()

	w := c.do(http.MethodGet, "/api/backend/suppliers", nil, map[string]string{"Cookie": "console=1"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 after refresh, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "Acme") {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}

	c.backend.mu.Lock()
	defer c.backend.mu.Unlock()
	if c.backend.refreshCalls != 1 {
		t.Fatalf("expected one refresh, got %d", c.backend.refreshCalls)
	}
	if c.backend.seenCookie {
		t.Fatal("browser cookies must not reach the backend")
	}
	if after := c.auth.AccessToken(); after == before || after != c.backend.access {
		t.Fatalf("expected rotated token, before %q after %q", before, after)
	}
}

func TestProxyRejectedRefreshEndsSession(t *testing.T) {
	c := newConsole(t)
	c.login(t, adminEmail)

	c.backend.mu.Lock()
	c.backend.expireNext = true
	c.backend.rejectRefresh = true
	c.backend.mu.Unlock()

	w := c.do(http.MethodGet, "/api/backend/suppliers", nil, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", w.Code, w.Body.String())
	}
	env := decode(t, w)
	if env.Error == nil || env.Error.Code != "SESSION_EXPIRED" || env.Error.Redirect != "/login" {
		t.Fatalf("unexpected error: %s", w.Body.String())
	}
	if c.auth.IsAuthenticated() {
		t.Fatal("rejected refresh must log out")
	}

	w = c.do(http.MethodGet, "/api/session", nil, nil)
	var view struct {
		Authenticated bool   `json:"authenticated"`
		Redirect      string `json:"redirect"`
	}
	if err := json.Unmarshal(decode(t, w).Data, &view); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if view.Authenticated || view.Redirect != "/login" {
		t.Fatalf("unexpected session view: %s", w.Body.String())
	}
}

func TestAdminSavePermissions(t *testing.T) {
	c := newConsole(t)
	c.login(t, adminEmail)

	desired := map[string]any{"permissions": map[string]bool{
		"SUPPLIERS_READ":  true, // already explicit
		"SUPPLIERS_WRITE": true,
		"STOCK_READ":      false, // role default, never revoked here
	}}
	w := c.do(http.MethodPut, "/api/admin/users/2/permissions", desired, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("save: status %d: %s", w.Code, w.Body.String())
	}
	var data struct {
		Results []service.ToggleResult `json:"results"`
		Failed  int                    `json:"failed"`
	}
	if err := json.Unmarshal(decode(t, w).Data, &data); err != nil {
		t.Fatalf("decode results: %v", err)
	}
	if len(data.Results) != 1 || data.Results[0].Permission != model.PermissionSuppliersWrite || data.Failed != 0 {
		t.Fatalf("unexpected results: %+v", data)
	}

	id, _ := model.DefaultCatalog().ID(model.PermissionSuppliersWrite)
	want := "POST /admin/users/2/permissions/" + strconv.Itoa(id) + "?granted=true"
	c.backend.mu.Lock()
	granted := append([]string(nil), c.backend.granted...)
	c.backend.mu.Unlock()
	if len(granted) != 1 || granted[0] != want {
		t.Fatalf("expected backend call %q, got %v", want, granted)
	}

	w = c.do(http.MethodPut, "/api/admin/users/2/permissions", map[string]any{
		"permissions": map[string]bool{"SUPPLIERS_READ": true},
	}, nil)
	env := decode(t, w)
	if w.Code != http.StatusBadRequest || env.Error == nil || env.Error.Message != "No changes to save" {
		t.Fatalf("expected no-changes error, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAdminRequiresPermission(t *testing.T) {
	c := newConsole(t)
	c.login(t, clerkEmail)

	w := c.do(http.MethodGet, "/api/admin/users", nil, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}

	w = c.do(http.MethodGet, "/admin/users", nil, nil)
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/dashboard" {
		t.Fatalf("expected redirect to landing, got %d %q", w.Code, w.Header().Get("Location"))
	}

	// The clerk holds STOCK_READ through the role.
	w = c.do(http.MethodGet, "/stock", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stock: expected 200, got %d", w.Code)
	}
}

func TestLogoutEndsSession(t *testing.T) {
	c := newConsole(t)
	c.login(t, adminEmail)

	w := c.do(http.MethodPost, "/api/auth/logout", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("logout: status %d", w.Code)
	}
	w = c.do(http.MethodGet, "/dashboard", nil, nil)
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/login" {
		t.Fatalf("expected redirect to login, got %d %q", w.Code, w.Header().Get("Location"))
	}
}

func TestSessionStreamFollowsLogin(t *testing.T) {
	c := newConsole(t)
	srv := httptest.NewServer(c.engine)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/session", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var first ws.SessionResponse
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read current: %v", err)
	}
	if first.Kind != string(session.EventCurrent) || first.Authenticated || first.Redirect != "/login" {
		t.Fatalf("unexpected first message: %+v", first)
	}

	c.login(t, clerkEmail)

	var next ws.SessionResponse
	if err := conn.ReadJSON(&next); err != nil {
		t.Fatalf("read login: %v", err)
	}
	if next.Kind != string(session.EventLogin) || !next.Authenticated || next.RoleLabel != "Warehouse Manager" {
		t.Fatalf("unexpected login message: %+v", next)
	}
	if len(next.Effective) != 2 {
		t.Fatalf("expected explicit and role permissions, got %v", next.Effective)
	}

	if err := conn.WriteJSON(ws.RequestEnvelope{Action: ws.ActionPing}); err != nil {
		t.Fatalf("ping: %v", err)
	}
	var pong ws.PongResponse
	if err := conn.ReadJSON(&pong); err != nil || pong.Event != ws.EventPong {
		t.Fatalf("expected pong, got %+v (%v)", pong, err)
	}
}
