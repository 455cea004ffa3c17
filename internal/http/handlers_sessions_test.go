package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/focusmode/focusd/internal/core"
	"github.com/focusmode/focusd/internal/domain/model"
	"github.com/focusmode/focusd/internal/service"
)

// stubSessionStore serves the cleanup scheduling endpoint.
type stubSessionStore struct {
	sessions map[string]*model.FocusSession
}

func (s *stubSessionStore) Get(_ context.Context, sessionID string) (*model.FocusSession, error) {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	return sess, nil
}

func (s *stubSessionStore) Save(_ context.Context, sess *model.FocusSession) error {
	s.sessions[sess.SessionID] = sess
	return nil
}

type noopWorkspaceClient struct{}

func (noopWorkspaceClient) ClearStatus(context.Context, string, string) error { return nil }
func (noopWorkspaceClient) EndDND(context.Context, string, string) error      { return nil }

func newSessionTestRouter(t *testing.T, jobRepo *stubJobRepo, sessions map[string]*model.FocusSession) http.Handler {
	t.Helper()
	jobs, err := service.NewJobService(service.JobServiceOptions{Repo: jobRepo})
	require.NoError(t, err)

	cleanup, err := service.NewSessionCleanupService(service.SessionCleanupOptions{
		Sessions:  &stubSessionStore{sessions: sessions},
		Workspace: noopWorkspaceClient{},
		Jobs:      jobs,
	})
	require.NoError(t, err)

	return NewRouter(RouterServices{Jobs: jobs, Tasks: &stubTasksRepo{}, Cleanup: cleanup})
}

func TestScheduleSessionCleanupEndpoint(t *testing.T) {
	start := time.Now().UTC()
	repo := newStubJobRepo()
	router := newSessionTestRouter(t, repo, map[string]*model.FocusSession{
		"sess-1": {
			SessionID:       "sess-1",
			UserID:          "u1",
			StartTime:       start,
			DurationMinutes: 25,
			Active:          true,
		},
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sessions/sess-1/cleanup", nil))

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, repo.created, 1)
	created := repo.created[0]
	assert.Equal(t, model.JobTypeSessionCleanup, created.Type)
	require.NotNil(t, created.ScheduledAt)
	assert.Equal(t, start.Add(25*time.Minute), *created.ScheduledAt)

	var payload model.SessionCleanupPayload
	require.NoError(t, json.Unmarshal(created.Payload, &payload))
	assert.Equal(t, "sess-1", payload.SessionID)
	assert.Equal(t, "u1", payload.UserID)
}

func TestScheduleSessionCleanupMissingSession(t *testing.T) {
	repo := newStubJobRepo()
	router := newSessionTestRouter(t, repo, map[string]*model.FocusSession{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sessions/nope/cleanup", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "session_not_found")
	assert.Empty(t, repo.created)
}

func TestScheduleSessionCleanupEndedSession(t *testing.T) {
	repo := newStubJobRepo()
	router := newSessionTestRouter(t, repo, map[string]*model.FocusSession{
		"sess-1": {SessionID: "sess-1", UserID: "u1", Active: false},
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sessions/sess-1/cleanup", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "session_ended")
}
