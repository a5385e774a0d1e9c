package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeCreds struct {
	mu        sync.Mutex
	token     string
	next      string
	refreshes atomic.Int32
	err       error
	delay     time.Duration
}

func (f *fakeCreds) AccessToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *fakeCreds) Refresh(ctx context.Context) error {
	f.refreshes.Add(1)
	time.Sleep(f.delay)
	if f.err != nil {
		f.mu.Lock()
		f.token = ""
		f.mu.Unlock()
		return f.err
	}
	f.mu.Lock()
	f.token = f.next
	f.mu.Unlock()
	return nil
}

// backend accepts only the "fresh" token.
func backend(t *testing.T, hits *atomic.Int32, onStale func()) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get(HeaderRequestID) == "" {
			t.Errorf("missing request id")
		}
		if r.Header.Get("Authorization") != "Bearer fresh" {
			if onStale != nil {
				onStale()
			}
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		w.Write([]byte("ok:" + string(body)))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAttachesBearerToken(t *testing.T) {
	var hits atomic.Int32
	srv := backend(t, &hits, nil)
	creds := &fakeCreds{token: "fresh"}
	client := NewInterceptor(nil, creds).Client()

	resp, err := client.Get(srv.URL + "/admin/users")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || creds.refreshes.Load() != 0 {
		t.Fatalf("status=%d refreshes=%d", resp.StatusCode, creds.refreshes.Load())
	}
}

func TestExemptPathsTravelUnmodified(t *testing.T) {
	var sawAuth atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			sawAuth.Store(true)
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	creds := &fakeCreds{token: "stale", next: "fresh"}
	client := NewInterceptor(nil, creds).Client()

	for _, path := range []string{"/tricol/api/v2/auth/login", "/auth/register", "/auth/refresh?refreshToken=x"} {
		resp, err := client.Post(srv.URL+path, "application/json", strings.NewReader("{}"))
		if err != nil {
			t.Fatalf("Post %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s status = %d, want raw 401", path, resp.StatusCode)
		}
	}
	if sawAuth.Load() {
		t.Fatalf("credential attached to an auth endpoint")
	}
	if creds.refreshes.Load() != 0 {
		t.Fatalf("auth endpoint 401 triggered a refresh")
	}
}

func TestRefreshesAndRetriesOnce(t *testing.T) {
	var hits atomic.Int32
	srv := backend(t, &hits, nil)
	creds := &fakeCreds{token: "expired", next: "fresh"}
	client := NewInterceptor(nil, creds).Client()

	resp, err := client.Post(srv.URL+"/admin/users/7/permissions/3?granted=true", "text/plain", strings.NewReader("payload"))
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK || string(body) != "ok:payload" {
		t.Fatalf("caller saw status=%d body=%q", resp.StatusCode, body)
	}
	if creds.refreshes.Load() != 1 || hits.Load() != 2 {
		t.Fatalf("refreshes=%d hits=%d, want 1 and 2", creds.refreshes.Load(), hits.Load())
	}
}

func TestBodyWithoutGetBodyIsReplayed(t *testing.T) {
	var hits atomic.Int32
	srv := backend(t, &hits, nil)
	creds := &fakeCreds{token: "expired", next: "fresh"}
	client := NewInterceptor(nil, creds).Client()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/suppliers", io.NopCloser(strings.NewReader("acme")))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.GetBody = nil

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "ok:acme" {
		t.Fatalf("body = %q", body)
	}
}

func TestSecondUnauthorizedIsReturnedAsIs(t *testing.T) {
	var hits atomic.Int32
	srv := backend(t, &hits, nil)
	creds := &fakeCreds{token: "expired", next: "also-rejected"}
	client := NewInterceptor(nil, creds).Client()

	resp, err := client.Get(srv.URL + "/products")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	if creds.refreshes.Load() != 1 || hits.Load() != 2 {
		t.Fatalf("refreshes=%d hits=%d, want 1 and 2", creds.refreshes.Load(), hits.Load())
	}
}

func TestRefreshFailureIsPropagated(t *testing.T) {
	var hits atomic.Int32
	srv := backend(t, &hits, nil)
	rejected := errors.New("refresh rejected")
	creds := &fakeCreds{token: "expired", err: rejected}
	client := NewInterceptor(nil, creds).Client()

	resp, err := client.Get(srv.URL + "/orders")
	if resp != nil {
		resp.Body.Close()
	}
	if !errors.Is(err, rejected) {
		t.Fatalf("err = %v, want refresh failure", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("hits = %d, want no retry", hits.Load())
	}
}

func TestConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	const n = 3
	var (
		hits    atomic.Int32
		stale   atomic.Int32
		release = make(chan struct{})
		once    sync.Once
	)
	srv := backend(t, &hits, func() {
		if stale.Add(1) == n {
			once.Do(func() { close(release) })
		}
		<-release
	})

	creds := &fakeCreds{token: "expired", next: "fresh", delay: 50 * time.Millisecond}
	client := NewInterceptor(nil, creds).Client()

	var wg sync.WaitGroup
	statuses := make([]int, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := client.Get(srv.URL + "/stock")
			if err != nil {
				errs[i] = err
				return
			}
			resp.Body.Close()
			statuses[i] = resp.StatusCode
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil || statuses[i] != http.StatusOK {
			t.Fatalf("request %d: status=%d err=%v", i, statuses[i], errs[i])
		}
	}
	if got := creds.refreshes.Load(); got != 1 {
		t.Fatalf("refreshes = %d, want exactly 1", got)
	}
}
