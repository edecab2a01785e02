package routes

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetRoute(t *testing.T) {
	assert.Equal(t, "/health", GetRoute(HealthCheck))
	assert.Equal(t, "/metrics", GetRoute(Metrics))
	assert.Equal(t, APIv1Prefix+"/deployments/:id/rollback", GetRoute(RollbackDeployment))
	assert.Equal(t, APIv1Prefix+"/projects/:id/suites/:suiteID", GetRoute(GetTestSuite))
	assert.Empty(t, GetRoute("NoSuchRoute"))
}

func TestBuildURL(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{name: "list without query", got: GetProjectsURL(nil), want: "/api/v1/projects"},
		{name: "list with query", got: GetTestRunsURL(url.Values{"project_id": {"3"}, "status": {"RUNNING"}}), want: "/api/v1/test-runs?project_id=3&status=RUNNING"},
		{name: "single param", got: GetDeploymentURL("12"), want: "/api/v1/deployments/12"},
		{name: "nested params", got: GetTestSuiteURL("4", "7"), want: "/api/v1/projects/4/suites/7"},
		{name: "cancel", got: CancelTestRunURL("9"), want: "/api/v1/test-runs/9/cancel"},
		{name: "rollback", got: RollbackDeploymentURL("5"), want: "/api/v1/deployments/5/rollback"},
		{name: "unknown route", got: BuildURL("NoSuchRoute", nil, nil), want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}
