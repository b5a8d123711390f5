package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"layerplane/pkg/api"

	"github.com/spf13/viper"
)

func runCommand(t *testing.T, serverURL string, args ...string) (string, error) {
	t.Helper()
	resetViper()
	resetFlags(rootCmd)
	t.Cleanup(func() { resetFlags(rootCmd) })

	viper.Set("url", serverURL)
	viper.Set("token", "test-token")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	return stdout.String(), err
}

func TestHistory_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/builds" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}

		completed := time.Date(2024, 1, 1, 12, 1, 0, 0, time.UTC)
		json.NewEncoder(w).Encode(api.ListBuildsResponse{
			Builds: []api.BuildResponse{{
				ID:             "3f0c1a2e-0000-4000-8000-000000000001",
				LayerName:      "MyLayer",
				RuntimeVersion: "3.11",
				Packages:       []string{"requests", "boto3"},
				Status:         "succeeded",
				ArtifactSize:   2048,
				StartedAt:      time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
				CompletedAt:    &completed,
			}},
			Limit: 20,
		})
	}))
	defer server.Close()

	output, err := runCommand(t, server.URL, "history")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, s := range []string{
		"BUILD ID", "LAYER", "STATUS",
		"MyLayer", "3.11", "succeeded", "2048", "requests,boto3",
	} {
		if !strings.Contains(output, s) {
			t.Errorf("expected output to contain %q, got:\n%s", s, output)
		}
	}
}

func TestHistory_Pagination(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if query.Get("limit") != "5" {
			t.Errorf("expected limit=5, got %s", query.Get("limit"))
		}
		if query.Get("offset") != "10" {
			t.Errorf("expected offset=10, got %s", query.Get("offset"))
		}
		json.NewEncoder(w).Encode(api.ListBuildsResponse{Builds: []api.BuildResponse{}})
	}))
	defer server.Close()

	output, err := runCommand(t, server.URL, "history", "--limit", "5", "--offset", "10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(output, "No more builds found.") {
		t.Errorf("expected end-of-list message, got: %s", output)
	}
}

func TestHistory_Empty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(api.ListBuildsResponse{Builds: []api.BuildResponse{}})
	}))
	defer server.Close()

	output, err := runCommand(t, server.URL, "history")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(output, "No builds found.") {
		t.Errorf("expected empty message, got: %s", output)
	}
}

func TestHistory_Unauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(api.ErrorResponse{Detail: "Invalid API token"})
	}))
	defer server.Close()

	_, err := runCommand(t, server.URL, "history")
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("err = %v, want 401 API error", err)
	}
}
