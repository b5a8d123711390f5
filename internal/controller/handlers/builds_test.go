package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
	"time"

	"layerplane/internal/store"
	"layerplane/pkg/api"

	"github.com/google/uuid"
)

func TestListBuilds_Success(t *testing.T) {
	id := uuid.New()
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ms := &mockStore{builds: []store.Build{{
		ID:             id,
		LayerName:      "MyLayer",
		RuntimeVersion: "3.11",
		Packages:       []string{"requests"},
		Status:         store.BuildStatusSucceeded,
		ArtifactSize:   42,
		StartedAt:      started,
		CompletedAt:    started.Add(time.Minute),
	}}}
	h := New(&mockGenerator{}, ms, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/builds?limit=5&offset=10", nil)
	rr := httptest.NewRecorder()
	h.ListBuilds(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rr.Code)
	}
	if ms.capturedLimit != 5 || ms.capturedOffset != 10 {
		t.Errorf("paging = (%d, %d), want (5, 10)", ms.capturedLimit, ms.capturedOffset)
	}

	var resp api.ListBuildsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Builds) != 1 {
		t.Fatalf("expected 1 build, got %d", len(resp.Builds))
	}
	b := resp.Builds[0]
	if b.ID != id.String() || b.Status != "succeeded" || !slices.Equal(b.Packages, []string{"requests"}) {
		t.Errorf("unexpected build: %+v", b)
	}
	if b.CompletedAt == nil || !b.CompletedAt.Equal(started.Add(time.Minute)) {
		t.Errorf("CompletedAt = %v", b.CompletedAt)
	}
}

func TestListBuilds_DefaultsAndClamp(t *testing.T) {
	ms := &mockStore{}
	h := New(&mockGenerator{}, ms, nil, nil)

	rr := httptest.NewRecorder()
	h.ListBuilds(rr, httptest.NewRequest(http.MethodGet, "/builds?limit=1000", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rr.Code)
	}
	if ms.capturedLimit != store.MaxPageSize {
		t.Errorf("limit = %d, want %d", ms.capturedLimit, store.MaxPageSize)
	}

	var resp api.ListBuildsResponse
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.Builds == nil {
		t.Error("expected empty list, not null")
	}
}

func TestListBuilds_InvalidParams(t *testing.T) {
	h := New(&mockGenerator{}, &mockStore{}, nil, nil)

	for _, q := range []string{"limit=abc", "offset=1.5"} {
		rr := httptest.NewRecorder()
		h.ListBuilds(rr, httptest.NewRequest(http.MethodGet, "/builds?"+q, nil))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: got status %d, want 400", q, rr.Code)
		}
	}
}

func TestListBuilds_StoreError(t *testing.T) {
	h := New(&mockGenerator{}, &mockStore{listErr: errBoom}, nil, nil)

	rr := httptest.NewRecorder()
	h.ListBuilds(rr, httptest.NewRequest(http.MethodGet, "/builds", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("got status %d, want 500", rr.Code)
	}
}

func TestVersions(t *testing.T) {
	h := New(&mockGenerator{}, &mockStore{}, nil, nil)

	rr := httptest.NewRecorder()
	h.Versions(rr, httptest.NewRequest(http.MethodGet, "/versions", nil))

	var resp api.VersionsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !slices.Equal(resp.Versions, []string{"3.8", "3.9", "3.10", "3.11", "3.12"}) {
		t.Errorf("Versions = %v", resp.Versions)
	}
}
