package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/focusmode/focusd/internal/domain/model"
)

func TestJobStatsEndpoint(t *testing.T) {
	repo := newStubJobRepo()
	repo.stats = &model.JobStats{Pending: 3, Running: 1, Completed: 40, Failed: 2}
	router := newTestRouter(t, repo, &stubTasksRepo{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var stats model.JobStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 3, stats.Pending)
	assert.Equal(t, 40, stats.Completed)
}

func TestRecentJobsEndpoint(t *testing.T) {
	repo := newStubJobRepo()
	repo.recent = []*model.Job{
		{ID: "j1", Type: model.JobTypeNewUserCheck, Status: model.JobStatusCompleted},
	}
	router := newTestRouter(t, repo, &stubTasksRepo{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/recent/new_user_check", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var jobs []model.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, "j1", jobs[0].ID)
}

func TestRecentJobsRejectsUnknownType(t *testing.T) {
	router := newTestRouter(t, newStubJobRepo(), &stubTasksRepo{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/recent/bogus", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_job_type")
}

func TestGetJobByID(t *testing.T) {
	repo := newStubJobRepo()
	repo.jobs["j1"] = &model.Job{ID: "j1", Type: model.JobTypeSessionCleanup}
	router := newTestRouter(t, repo, &stubTasksRepo{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/j1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTriggerEnqueuesCheckJob(t *testing.T) {
	repo := newStubJobRepo()
	router := newTestRouter(t, repo, &stubTasksRepo{})

	body := `{"type":"paid_user_check","window_minutes":30}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/checks/trigger", strings.NewReader(body)))

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, repo.created, 1)
	created := repo.created[0]
	assert.Equal(t, model.JobTypePaidUserCheck, created.Type)
	assert.Equal(t, 50, created.Priority)

	var payload model.CheckPayload
	require.NoError(t, json.Unmarshal(created.Payload, &payload))
	assert.Equal(t, 30, payload.WindowMinutes)
}

func TestTriggerRejectsSessionCleanup(t *testing.T) {
	repo := newStubJobRepo()
	router := newTestRouter(t, repo, &stubTasksRepo{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(
		http.MethodPost, "/api/checks/trigger", strings.NewReader(`{"type":"session_cleanup"}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, repo.created)
}

func TestTriggerRejectsUnknownFields(t *testing.T) {
	router := newTestRouter(t, newStubJobRepo(), &stubTasksRepo{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(
		http.MethodPost, "/api/checks/trigger", strings.NewReader(`{"type":"new_user_check","nope":1}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListTasksEndpoint(t *testing.T) {
	tasksRepo := &stubTasksRepo{
		tasks: []model.ScheduledTask{{TaskName: "new_user_check", JobType: model.JobTypeNewUserCheck}},
	}
	router := newTestRouter(t, newStubJobRepo(), tasksRepo)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var tasks []model.ScheduledTask
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, "new_user_check", tasks[0].TaskName)
}
