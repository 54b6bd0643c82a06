package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"chat-frontend/web/internal/session"
	"chat-frontend/web/internal/session/domain"
)

func newStore(t *testing.T) *session.Store {
	t.Helper()
	st := session.NewStore()
	err := st.Set(domain.Session{
		AccessToken:  "access-old",
		RefreshToken: "refresh-1",
		Role:         domain.RoleUser,
		User:         domain.User{ID: "u1"},
	})
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	return st
}

// backendStub fakes the chat backend: a resource endpoint that accepts
// only the given access token, and a refresh endpoint.
type backendStub struct {
	t            *testing.T
	mu           sync.Mutex
	validAccess  string
	refreshOK    bool
	newAccess    string
	refreshCalls int32
	seenBearers  []string
}

func (b *backendStub) server() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/token/refresh", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&b.refreshCalls, 1)
		ck, err := r.Cookie(session.CookieRefreshToken)
		if err != nil || ck.Value == "" {
			b.t.Error("refresh call missing refresh cookie")
		}
		if r.Header.Get("Authorization") != "" {
			// Refresh authenticates by its cookie, nothing else.
			b.t.Error("refresh call carries a bearer header")
		}
		if !b.refreshOK {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		b.mu.Lock()
		b.validAccess = b.newAccess
		b.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]string{"access": b.newAccess})
	})
	mux.HandleFunc("/resource", func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		b.mu.Lock()
		b.seenBearers = append(b.seenBearers, auth)
		valid := "Bearer " + b.validAccess
		b.mu.Unlock()
		if auth != valid {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		io.WriteString(w, `{"ok":true}`)
	})
	return httptest.NewServer(mux)
}

func TestDo_AttachesBearerIffSession(t *testing.T) {
	var gotAuth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
	}))
	defer srv.Close()
	c := New(srv.URL, nil, nil)

	empty := session.NewStore()
	resp, err := c.Do(context.Background(), empty, http.MethodGet, "/resource", nil)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()
	if gotAuth.Load().(string) != "" {
		t.Error("bearer attached with empty store")
	}

	st := newStore(t)
	resp, err = c.Do(context.Background(), st, http.MethodGet, "/resource", nil)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()
	if gotAuth.Load().(string) != "Bearer access-old" {
		t.Errorf("bearer = %q", gotAuth.Load())
	}
}

func TestDo_RefreshOn401_ResendsOnce(t *testing.T) {
	stub := &backendStub{t: t, validAccess: "access-new", refreshOK: true, newAccess: "access-new"}
	srv := stub.server()
	defer srv.Close()
	c := New(srv.URL, nil, nil)
	st := newStore(t)

	resp, err := c.Do(context.Background(), st, http.MethodGet, "/resource", nil)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if n := atomic.LoadInt32(&stub.refreshCalls); n != 1 {
		t.Errorf("refresh calls = %d, want 1", n)
	}
	sess, ok := st.Get()
	if !ok || sess.AccessToken != "access-new" {
		t.Errorf("store access token = %q, want access-new", sess.AccessToken)
	}
	if sess.RefreshToken != "refresh-1" {
		t.Errorf("refresh token changed to %q", sess.RefreshToken)
	}
	stub.mu.Lock()
	defer stub.mu.Unlock()
	if len(stub.seenBearers) != 2 {
		t.Fatalf("resource hit %d times, want 2", len(stub.seenBearers))
	}
	if stub.seenBearers[1] != "Bearer access-new" {
		t.Errorf("resend bearer = %q", stub.seenBearers[1])
	}
}

func TestDo_Second401OnResend_NoSecondRefresh(t *testing.T) {
	// Refresh succeeds but the backend still rejects the new token, so
	// the resend gets a second 401 that must be surfaced, not retried.
	var refreshCalls, resourceCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/token/refresh", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&refreshCalls, 1)
		json.NewEncoder(w).Encode(map[string]string{"access": "access-new"})
	})
	mux.HandleFunc("/resource", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&resourceCalls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	c := New(srv.URL, nil, nil)
	st := newStore(t)

	resp, err := c.Do(context.Background(), st, http.MethodGet, "/resource", nil)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	if n := atomic.LoadInt32(&refreshCalls); n != 1 {
		t.Errorf("refresh calls = %d, want exactly 1", n)
	}
	if n := atomic.LoadInt32(&resourceCalls); n != 2 {
		t.Errorf("resource calls = %d, want 2 (original + one resend)", n)
	}
}

func TestDo_RefreshFailure_ClearsStoreEntirely(t *testing.T) {
	stub := &backendStub{t: t, validAccess: "other", refreshOK: false}
	srv := stub.server()
	defer srv.Close()
	c := New(srv.URL, nil, nil)
	st := newStore(t)

	_, err := c.Do(context.Background(), st, http.MethodGet, "/resource", nil)
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("err = %v, want ErrSessionExpired", err)
	}
	if _, ok := st.Get(); ok {
		t.Error("store still holds a session after failed refresh")
	}
}

func TestDo_401WithoutSession_NoRefresh(t *testing.T) {
	stub := &backendStub{t: t, validAccess: "other"}
	srv := stub.server()
	defer srv.Close()
	c := New(srv.URL, nil, nil)

	resp, err := c.Do(context.Background(), session.NewStore(), http.MethodGet, "/resource", nil)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	if n := atomic.LoadInt32(&stub.refreshCalls); n != 0 {
		t.Errorf("refresh calls = %d, want 0", n)
	}
}

func TestDo_ConcurrentRequests_SingleFlightRefresh(t *testing.T) {
	stub := &backendStub{t: t, validAccess: "access-new", refreshOK: true, newAccess: "access-new"}
	srv := stub.server()
	defer srv.Close()
	c := New(srv.URL, nil, nil)
	st := newStore(t)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := c.Do(context.Background(), st, http.MethodGet, "/resource", nil)
			if err != nil {
				errs[i] = err
				return
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				errs[i] = errors.New("unexpected status")
			}
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Errorf("request %d: %v", i, err)
		}
	}
	// Shared refresh: concurrent 401s collapse into a shared flight, so
	// refresh volume stays below request volume. The common case is one.
	if got := atomic.LoadInt32(&stub.refreshCalls); got < 1 || got >= n {
		t.Errorf("refresh calls = %d, want >= 1 and < %d", got, n)
	}
}

func TestDo_LogoutMidRefresh_DoesNotResurrect(t *testing.T) {
	st := newStore(t)
	refreshed := make(chan struct{})
	proceed := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/token/refresh", func(w http.ResponseWriter, r *http.Request) {
		close(refreshed)
		<-proceed
		json.NewEncoder(w).Encode(map[string]string{"access": "access-new"})
	})
	mux.HandleFunc("/resource", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	c := New(srv.URL, nil, nil)

	done := make(chan error, 1)
	go func() {
		_, err := c.Do(context.Background(), st, http.MethodGet, "/resource", nil)
		done <- err
	}()
	<-refreshed
	st.Clear() // logout while the refresh is in flight
	close(proceed)
	if err := <-done; !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("err = %v, want ErrSessionExpired", err)
	}
	if _, ok := st.Get(); ok {
		t.Error("cleared session was resurrected by in-flight refresh")
	}
}

func TestDoJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if in["timestamp"] == "" {
			t.Error("request body not forwarded")
		}
		json.NewEncoder(w).Encode(map[string]bool{"success": true})
	}))
	defer srv.Close()
	c := New(srv.URL, nil, nil)
	st := newStore(t)

	var out struct {
		Success bool `json:"success"`
	}
	status, err := c.DoJSON(context.Background(), st, http.MethodPost, "/chat/heartbeat",
		map[string]string{"timestamp": "2025-06-01T12:00:00Z"}, &out)
	if err != nil {
		t.Fatalf("DoJSON: %v", err)
	}
	if status != http.StatusOK || !out.Success {
		t.Errorf("status = %d, success = %v", status, out.Success)
	}
}
