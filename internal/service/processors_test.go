package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/focusmode/focusd/internal/data"
	"github.com/focusmode/focusd/internal/domain/model"
	"github.com/focusmode/focusd/internal/observability/notify"
)

type fakeUserRepo struct {
	createdSinceArg  time.Time
	inactiveSinceArg time.Time
	created          []model.User
	inactive         []model.User
	err              error
}

func (r *fakeUserRepo) CreatedSince(_ context.Context, since time.Time, _ int) ([]model.User, error) {
	r.createdSinceArg = since
	return r.created, r.err
}

func (r *fakeUserRepo) InactiveSince(_ context.Context, cutoff time.Time, _ int) ([]model.User, error) {
	r.inactiveSinceArg = cutoff
	return r.inactive, r.err
}

type fakeLicenseRepo struct {
	paidSinceArg time.Time
	paid         []model.License
	err          error
}

func (r *fakeLicenseRepo) PaidSince(_ context.Context, since time.Time, _ int) ([]model.License, error) {
	r.paidSinceArg = since
	return r.paid, r.err
}

func (r *fakeLicenseRepo) UpsertByPaymentID(_ context.Context, _ model.UpsertLicenseRequest) (*model.License, error) {
	return nil, errors.New("not implemented")
}

var checkNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

type processorsFixture struct {
	procs    *CheckProcessors
	users    *fakeUserRepo
	licenses *fakeLicenseRepo
	ledger   *memLedger
	sends    *int
}

func newProcessorsFixture(t *testing.T, channels ...model.Channel) *processorsFixture {
	t.Helper()

	sends := 0
	sinks := make([]notify.Sink, 0, len(channels))
	for _, ch := range channels {
		sinks = append(sinks, countingSink(ch, &sends))
	}
	defaults := map[model.NotificationType][]model.Channel{
		model.NotificationNewUser:      channels,
		model.NotificationPaidUser:     channels,
		model.NotificationInactiveUser: channels,
	}

	ledger := newMemLedger()
	dispatcher, err := NewBatchDispatcher(DispatcherOptions{
		Engine: newTestEngine(EngineConfig{Sinks: sinks, DefaultChannels: defaults}),
		Ledger: ledger,
	})
	require.NoError(t, err)

	users := &fakeUserRepo{}
	licenses := &fakeLicenseRepo{}
	procs := NewCheckProcessors(CheckProcessorsOptions{
		Users:        users,
		Licenses:     licenses,
		Dispatcher:   dispatcher,
		TimeProvider: data.FixedTimeProvider{Time: checkNow},
	})

	return &processorsFixture{
		procs:    procs,
		users:    users,
		licenses: licenses,
		ledger:   ledger,
		sends:    &sends,
	}
}

func checkJob(t *testing.T, jobType model.JobType, windowMinutes int) *model.Job {
	t.Helper()
	job := &model.Job{ID: "job-1", Type: jobType}
	if windowMinutes > 0 {
		payload, err := json.Marshal(model.CheckPayload{WindowMinutes: windowMinutes})
		require.NoError(t, err)
		job.Payload = payload
	}
	return job
}

func TestNewUserCheckDefaultWindow(t *testing.T) {
	f := newProcessorsFixture(t, model.ChannelSlack)
	f.users.created = []model.User{
		{ID: "u1", Email: "u1@example.com", CreatedAt: checkNow.Add(-5 * time.Minute)},
	}

	err := f.procs.HandleNewUserCheck(context.Background(), checkJob(t, model.JobTypeNewUserCheck, 0))
	require.NoError(t, err)

	assert.Equal(t, checkNow.Add(-10*time.Minute), f.users.createdSinceArg)
	assert.Equal(t, 1, *f.sends)
}

func TestNewUserCheckWindowOverride(t *testing.T) {
	f := newProcessorsFixture(t, model.ChannelSlack)

	err := f.procs.HandleNewUserCheck(context.Background(), checkJob(t, model.JobTypeNewUserCheck, 60))
	require.NoError(t, err)
	assert.Equal(t, checkNow.Add(-60*time.Minute), f.users.createdSinceArg)
}

func TestNewUserCheckOverlapDedups(t *testing.T) {
	f := newProcessorsFixture(t, model.ChannelSlack)
	f.users.created = []model.User{
		{ID: "u1", Email: "u1@example.com", CreatedAt: checkNow.Add(-5 * time.Minute)},
	}

	job := checkJob(t, model.JobTypeNewUserCheck, 0)
	require.NoError(t, f.procs.HandleNewUserCheck(context.Background(), job))
	// The next run's window still covers the same user.
	require.NoError(t, f.procs.HandleNewUserCheck(context.Background(), job))

	assert.Equal(t, 1, *f.sends)
}

func TestNewUserCheckRepoErrorRetryable(t *testing.T) {
	f := newProcessorsFixture(t, model.ChannelSlack)
	f.users.err = errors.New("connection reset")

	err := f.procs.HandleNewUserCheck(context.Background(), checkJob(t, model.JobTypeNewUserCheck, 0))
	require.Error(t, err)
}

func TestPaidUserCheckUsesLicenseReference(t *testing.T) {
	f := newProcessorsFixture(t, model.ChannelSlack, model.ChannelEmail)
	paidAt := checkNow.Add(-3 * time.Minute)
	f.licenses.paid = []model.License{
		{ID: "lic-1", UserID: "u1", Email: "u1@example.com", PaidAt: &paidAt},
	}

	err := f.procs.HandlePaidUserCheck(context.Background(), checkJob(t, model.JobTypePaidUserCheck, 0))
	require.NoError(t, err)
	assert.Equal(t, checkNow.Add(-10*time.Minute), f.licenses.paidSinceArg)
	assert.Equal(t, 2, *f.sends)

	has, err := f.ledger.HasSent(context.Background(), "u1", model.NotificationPaidUser, "paid_license_lic-1", model.ChannelSlack)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestInactiveUserCheckCutoffAndOnceEver(t *testing.T) {
	f := newProcessorsFixture(t, model.ChannelEmail)
	lastCheckin := checkNow.Add(-9 * 24 * time.Hour)
	f.users.inactive = []model.User{
		{ID: "u1", Email: "u1@example.com", CreatedAt: checkNow.Add(-30 * 24 * time.Hour), LastCheckinAt: &lastCheckin},
	}

	job := checkJob(t, model.JobTypeInactiveUserCheck, 0)
	require.NoError(t, f.procs.HandleInactiveUserCheck(context.Background(), job))
	assert.Equal(t, checkNow.Add(-7*24*time.Hour), f.users.inactiveSinceArg)

	// The user stays in the candidate set on every later run but only ever
	// gets one notification.
	require.NoError(t, f.procs.HandleInactiveUserCheck(context.Background(), job))
	require.NoError(t, f.procs.HandleInactiveUserCheck(context.Background(), job))
	assert.Equal(t, 1, *f.sends)

	has, err := f.ledger.HasSent(context.Background(), "u1", model.NotificationInactiveUser, "inactive_u1", model.ChannelEmail)
	require.NoError(t, err)
	assert.True(t, has)
}
