package httpx

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/focusmode/focusd/internal/domain/model"
	"github.com/focusmode/focusd/internal/service"
)

// stubJobRepo backs the JobService in handler tests. Only the methods the
// ops endpoints reach are scripted; the rest return errors.
type stubJobRepo struct {
	stats      *model.JobStats
	jobs       map[string]*model.Job
	recent     []*model.Job
	created    []*model.CreateJobRequest
	err        error
	nextSerial int
}

func newStubJobRepo() *stubJobRepo {
	return &stubJobRepo{jobs: map[string]*model.Job{}}
}

func (r *stubJobRepo) Create(_ context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.nextSerial++
	r.created = append(r.created, req)
	return &model.Job{
		ID:       "job-" + string(rune('0'+r.nextSerial)),
		Type:     req.Type,
		Payload:  req.Payload,
		Priority: req.Priority,
		Status:   model.JobStatusPending,
	}, nil
}

func (r *stubJobRepo) CreateInTx(_ context.Context, _ *sql.Tx, _ *model.CreateJobRequest) (*model.Job, error) {
	return nil, errors.New("not implemented")
}

func (r *stubJobRepo) ReserveNext(_ context.Context, _ model.JobType, _ time.Duration) (*model.Job, error) {
	return nil, model.ErrNoJobsAvailable
}

func (r *stubJobRepo) Heartbeat(_ context.Context, _ string, _ time.Duration) (bool, error) {
	return false, errors.New("not implemented")
}

func (r *stubJobRepo) Complete(_ context.Context, _ string) (bool, error) {
	return false, errors.New("not implemented")
}

func (r *stubJobRepo) Fail(_ context.Context, _, _ string, _ time.Time) (model.JobStatus, error) {
	return "", errors.New("not implemented")
}

func (r *stubJobRepo) Stats(_ context.Context) (*model.JobStats, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.stats, nil
}

func (r *stubJobRepo) GetByID(_ context.Context, id string) (*model.Job, error) {
	job, ok := r.jobs[id]
	if !ok {
		return nil, errors.New("job not found")
	}
	return job, nil
}

func (r *stubJobRepo) ListRecent(_ context.Context, _ model.JobType, _ int) ([]*model.Job, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.recent, nil
}

func (r *stubJobRepo) PendingOrRunningExistsByTaskName(_ context.Context, _ string, _ time.Time) (bool, error) {
	return false, nil
}

func (r *stubJobRepo) FailStalePending(_ context.Context, _ time.Duration, _ int) (int64, error) {
	return 0, nil
}

func (r *stubJobRepo) DeleteOld(_ context.Context, _ model.JobStatus, _ time.Duration, _ int) (int64, error) {
	return 0, nil
}

// stubTasksRepo serves the task list endpoint.
type stubTasksRepo struct {
	tasks []model.ScheduledTask
	err   error
}

func (r *stubTasksRepo) InTx(_ context.Context, _ func(tx *sql.Tx) error) error {
	return errors.New("not implemented")
}

func (r *stubTasksRepo) FindDueTx(_ context.Context, _ *sql.Tx, _ time.Time, _ int) ([]model.ScheduledTask, error) {
	return nil, errors.New("not implemented")
}

func (r *stubTasksRepo) MarkQueuedTx(_ context.Context, _ *sql.Tx, _ string, _ time.Time, _ string) (bool, error) {
	return false, errors.New("not implemented")
}

func (r *stubTasksRepo) ClearActiveFireKey(_ context.Context, _, _ string) error {
	return errors.New("not implemented")
}

func (r *stubTasksRepo) UpsertByTaskName(_ context.Context, _ model.UpsertTaskRequest) error {
	return errors.New("not implemented")
}

func (r *stubTasksRepo) DeleteByTaskName(_ context.Context, _ string) (bool, error) {
	return false, errors.New("not implemented")
}

func (r *stubTasksRepo) List(_ context.Context) ([]model.ScheduledTask, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.tasks, nil
}

func newTestRouter(t *testing.T, jobRepo *stubJobRepo, tasksRepo *stubTasksRepo) http.Handler {
	t.Helper()
	jobs, err := service.NewJobService(service.JobServiceOptions{Repo: jobRepo})
	require.NoError(t, err)
	return NewRouter(RouterServices{Jobs: jobs, Tasks: tasksRepo})
}
