// Copyright 2024-2026 Aiku AI

package adminapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aiku/relaybridge/pkg/bridge"
)

type namedProvider string

func (p namedProvider) Name() string { return string(p) }

func (p namedProvider) Send(context.Context, bridge.ProviderID, string) error { return nil }

type fakeBridge struct {
	registry *bridge.Registry

	setErr   error
	setID    uuid.UUID
	setDir   bridge.Direction
	purged   int
	purgeErr error
}

func (f *fakeBridge) Registry() *bridge.Registry { return f.registry }

func (f *fakeBridge) SetDirection(_ context.Context, id uuid.UUID, dir bridge.Direction) (*bridge.Connection, error) {
	if f.setErr != nil {
		return nil, f.setErr
	}
	f.setID, f.setDir = id, dir
	return &bridge.Connection{
		ID:        id,
		Left:      &bridge.Conversation{ID: bridge.NewProviderID("telegram", "100")},
		Right:     &bridge.Conversation{ID: bridge.NewProviderID("matrix", "!room:example.org")},
		CreatedAt: time.Unix(1700000000, 0).UTC(),
		Direction: dir,
	}, nil
}

func (f *fakeBridge) PurgeExpired(context.Context) (int, error) {
	return f.purged, f.purgeErr
}

func newTestServer(t *testing.T, b *fakeBridge) *httptest.Server {
	t.Helper()
	if b.registry == nil {
		b.registry = bridge.NewRegistry()
	}
	srv := httptest.NewServer(New("", b, zerolog.Nop()).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestListProviders(t *testing.T) {
	t.Parallel()
	registry := bridge.NewRegistry()
	for _, name := range []string{"telegram", "matrix"} {
		if err := registry.Register(namedProvider(name)); err != nil {
			t.Fatalf("Register(%s): %v", name, err)
		}
	}
	srv := newTestServer(t, &fakeBridge{registry: registry})

	resp, err := http.Get(srv.URL + "/api/providers")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	var body struct {
		Providers []string `json:"providers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Providers) != 2 {
		t.Errorf("providers: got %v, want 2 entries", body.Providers)
	}
}

func TestListProvidersWrongMethod(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, &fakeBridge{})
	resp := post(t, srv.URL+"/api/providers", "")
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", resp.StatusCode)
	}
}

func TestSetDirection(t *testing.T) {
	t.Parallel()
	b := &fakeBridge{}
	srv := newTestServer(t, b)
	id := uuid.New()

	resp := post(t, srv.URL+"/api/connections/"+id.String()+"/direction", `{"direction":"to-left"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	var conn bridge.Connection
	if err := json.NewDecoder(resp.Body).Decode(&conn); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if conn.ID != id || conn.Direction != bridge.DirectionToLeft {
		t.Errorf("response: got id %s direction %q", conn.ID, conn.Direction)
	}
	if b.setID != id || b.setDir != bridge.DirectionToLeft {
		t.Errorf("bridge call: got id %s direction %q", b.setID, b.setDir)
	}
}

func TestSetDirectionErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		id     string
		body   string
		setErr error
		want   int
	}{
		{"bad id", "not-a-uuid", `{"direction":"none"}`, nil, http.StatusBadRequest},
		{"bad json", uuid.NewString(), `{`, nil, http.StatusBadRequest},
		{"bad direction", uuid.NewString(), `{"direction":"sideways"}`, nil, http.StatusBadRequest},
		{"too large", uuid.NewString(), `{"direction":"` + strings.Repeat("x", maxBodySize) + `"}`, nil, http.StatusRequestEntityTooLarge},
		{"not found", uuid.NewString(), `{"direction":"none"}`, bridge.ErrNotFound, http.StatusNotFound},
		{"pending", uuid.NewString(), `{"direction":"none"}`, bridge.ErrPending, http.StatusConflict},
		{"conflict", uuid.NewString(), `{"direction":"none"}`, bridge.ErrConflict, http.StatusConflict},
		{"store failure", uuid.NewString(), `{"direction":"none"}`, errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := newTestServer(t, &fakeBridge{setErr: tt.setErr})
			resp := post(t, srv.URL+"/api/connections/"+tt.id+"/direction", tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("status: got %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestPurgeExpired(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, &fakeBridge{purged: 3})
	resp := post(t, srv.URL+"/api/purge-expired", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	var body map[string]int
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["purged"] != 3 {
		t.Errorf("purged: got %d, want 3", body["purged"])
	}
}

func TestPurgeExpiredFailure(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, &fakeBridge{purgeErr: errors.New("boom")})
	resp := post(t, srv.URL+"/api/purge-expired", "")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", resp.StatusCode)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()
	s := New("127.0.0.1:0", &fakeBridge{registry: bridge.NewRegistry()}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: got %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
