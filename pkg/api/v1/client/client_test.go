// Package client provides unit tests for the shipyard API client.
//
// The tests use httptest to create a mock server that simulates the API,
// allowing the client to be tested without requiring an actual API server.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	fiber "github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celestiaorg/shipyard/internal/auth"
	"github.com/celestiaorg/shipyard/internal/db/models"
	"github.com/celestiaorg/shipyard/pkg/types"
)

// TestNewClient tests the NewClient function with various configurations.
func TestNewClient(t *testing.T) {
	tests := []struct {
		name       string
		opts       *Options
		wantErr    bool
		validateFn func(t *testing.T, client Client)
	}{
		{
			name: "nil options",
			validateFn: func(t *testing.T, client Client) {
				apiClient, ok := client.(*APIClient)
				require.True(t, ok, "client should be an *APIClient")

				expectedDefaults := DefaultOptions()
				assert.Equal(t, expectedDefaults.BaseURL, apiClient.baseURL)
				assert.Equal(t, expectedDefaults.Timeout, apiClient.timeout)
			},
		},
		{
			name: "valid options",
			opts: &Options{
				BaseURL: "http://example.com",
				Timeout: 10 * time.Second,
				Actor:   "alice",
				Role:    "deployer",
			},
			validateFn: func(t *testing.T, client Client) {
				apiClient, ok := client.(*APIClient)
				require.True(t, ok, "client should be an *APIClient")

				assert.Equal(t, "http://example.com", apiClient.baseURL)
				assert.Equal(t, 10*time.Second, apiClient.timeout)
				assert.Equal(t, "alice", apiClient.actor)
				assert.Equal(t, "deployer", apiClient.role)
			},
		},
		{
			name: "zero timeout falls back to default",
			opts: &Options{BaseURL: "http://example.com"},
			validateFn: func(t *testing.T, client Client) {
				assert.Equal(t, DefaultTimeout, client.(*APIClient).timeout)
			},
		},
		{
			name:    "invalid base URL",
			opts:    &Options{BaseURL: "://invalid-url"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.opts)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, client)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, client)
			if tt.validateFn != nil {
				tt.validateFn(t, client)
			}
		})
	}
}

// recordedRequest captures what the mock server received
type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Actor  string
	Role   string
	Body   map[string]interface{}
}

// setupTestServer creates a mock HTTP server that records each request and
// replies with the given status and body.
func setupTestServer(t *testing.T, status int, body interface{}) (*httptest.Server, *recordedRequest) {
	t.Helper()
	rec := &recordedRequest{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.Method = r.Method
		rec.Path = r.URL.Path
		rec.Query = r.URL.RawQuery
		rec.Actor = r.Header.Get(auth.ActorHeader)
		rec.Role = r.Header.Get(auth.RoleHeader)
		if r.ContentLength > 0 {
			_ = json.NewDecoder(r.Body).Decode(&rec.Body)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(server.Close)
	return server, rec
}

func newTestClient(t *testing.T, baseURL string) Client {
	t.Helper()
	client, err := NewClient(&Options{BaseURL: baseURL, Timeout: 5 * time.Second, Actor: "alice", Role: "deployer"})
	require.NoError(t, err)
	return client
}

func TestCreateDeploymentDecodesSlugData(t *testing.T) {
	server, rec := setupTestServer(t, http.StatusAccepted, types.Success(map[string]interface{}{
		"ID":          7,
		"project_id":  3,
		"environment": "production",
		"version":     "v1.2.0",
		"status":      "PENDING",
	}))
	client := newTestClient(t, server.URL)

	deployment, err := client.CreateDeployment(context.Background(), types.CreateDeploymentRequest{
		ProjectID:   3,
		Environment: "production",
		Version:     "v1.2.0",
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, rec.Method)
	assert.Equal(t, "/api/v1/deployments", rec.Path)
	assert.Equal(t, "alice", rec.Actor)
	assert.Equal(t, "deployer", rec.Role)
	assert.Equal(t, "v1.2.0", rec.Body["version"])

	assert.Equal(t, uint(7), deployment.ID)
	assert.Equal(t, "v1.2.0", deployment.Version)
	assert.Equal(t, models.JobStatusPending, deployment.Status)
}

func TestRollbackDeploymentSendsReason(t *testing.T) {
	server, rec := setupTestServer(t, http.StatusAccepted, types.Success(map[string]interface{}{
		"ID":               9,
		"version":          "v1.0.0",
		"rollback_from_id": 8,
	}))
	client := newTestClient(t, server.URL)

	rollback, err := client.RollbackDeployment(context.Background(), 8, "error rate spiked")
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/deployments/8/rollback", rec.Path)
	assert.Equal(t, "error rate spiked", rec.Body["reason"])
	require.NotNil(t, rollback.RollbackFromID)
	assert.Equal(t, uint(8), *rollback.RollbackFromID)
}

func TestListTestRunsBuildsQuery(t *testing.T) {
	server, rec := setupTestServer(t, http.StatusOK, types.Success(map[string]interface{}{
		"rows": []map[string]interface{}{
			{"ID": 1, "status": "PASSED"},
			{"ID": 2, "status": "FAILED"},
		},
		"pagination": map[string]int{"total": 2, "limit": 10, "offset": 0},
	}))
	client := newTestClient(t, server.URL)

	status := models.JobStatusPassed
	runs, err := client.ListTestRuns(context.Background(), 4, &models.ListOptions{Limit: 10, Status: &status})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, models.JobStatusFailed, runs[1].Status)

	assert.Equal(t, http.MethodGet, rec.Method)
	assert.Equal(t, "/api/v1/test-runs", rec.Path)
	assert.Equal(t, "limit=10&project_id=4&status=PASSED", rec.Query)
}

func TestErrorResponsesCarrySlugMessage(t *testing.T) {
	server, _ := setupTestServer(t, http.StatusBadRequest,
		types.ErrInvalidInput("Cannot cancel test run with status: PASSED"))
	client := newTestClient(t, server.URL)

	_, err := client.CancelTestRun(context.Background(), 5, "")
	require.Error(t, err)

	var fiberErr *fiber.Error
	require.True(t, errors.As(err, &fiberErr))
	assert.Equal(t, http.StatusBadRequest, fiberErr.Code)
	assert.Equal(t, "Cannot cancel test run with status: PASSED", fiberErr.Message)
}

func TestHealthCheck(t *testing.T) {
	server, rec := setupTestServer(t, http.StatusOK, types.HealthResponse{Status: "healthy", ActiveExecutions: 2})
	client := newTestClient(t, server.URL)

	health, err := client.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/health", rec.Path)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, 2, health.ActiveExecutions)
}

func TestDeleteProjectIgnoresEmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/v1/projects/12", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	require.NoError(t, newTestClient(t, server.URL).DeleteProject(context.Background(), 12))
}

func TestRequestFailsWhenServerIsUnreachable(t *testing.T) {
	client, err := NewClient(&Options{BaseURL: "http://127.0.0.1:1", Timeout: time.Second})
	require.NoError(t, err)

	_, err = client.GetDeployment(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error sending request")
}
