package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/domain"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/events"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/ports"
	apperrors "github.com/DiagVN/diag-video-call-ui-kit/pkg/errors"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func newRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return NewRepository(db)
}

func record(channel string, ended time.Time) *ports.CallRecord {
	return &ports.CallRecord{
		Channel:         channel,
		LocalUID:        "1",
		StartedAt:       ended.Add(-time.Minute),
		EndedAt:         ended,
		DurationSeconds: 60,
		EndReason:       domain.ReasonUser,
	}
}

func TestRepository_SaveAssignsID(t *testing.T) {
	repo := newRepo(t)
	rec := record("demo", time.Now())

	require.NoError(t, repo.Save(context.Background(), rec))
	assert.NotEmpty(t, rec.ID)

	got, err := repo.ByChannel(context.Background(), "demo")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec.ID, got[0].ID)
	assert.Equal(t, 60, got[0].DurationSeconds)
	assert.True(t, rec.EndedAt.Equal(got[0].EndedAt))
}

func TestRepository_RecentNewestFirst(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for i, ch := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Save(ctx, record(ch, base.Add(time.Duration(i)*time.Hour))))
	}

	got, err := repo.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].Channel)
	assert.Equal(t, "b", got[1].Channel)

	all, err := repo.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRepository_ByChannelFilters(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.Save(ctx, record("demo", now)))
	require.NoError(t, repo.Save(ctx, record("other", now)))
	require.NoError(t, repo.Save(ctx, record("demo", now.Add(time.Hour))))

	got, err := repo.ByChannel(ctx, "demo")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].StartedAt.After(got[1].StartedAt))

	none, err := repo.ByChannel(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRecorder_RecordsFinishedCall(t *testing.T) {
	repo := newRepo(t)
	clk := clock.NewMock()
	bus := events.NewBus(zaptest.NewLogger(t).Sugar())
	rec := NewRecorder(repo, clk, zaptest.NewLogger(t).Sugar())
	rec.Attach(bus)
	defer rec.Detach()

	bus.Emit(events.CallConnected{Channel: "demo", UID: "1"})
	bus.Emit(events.ParticipantJoined{Participant: domain.Participant{ID: "1", DisplayName: "Me", IsLocal: true}})
	bus.Emit(events.ParticipantJoined{Participant: domain.Participant{ID: "2"}})
	bus.Emit(events.ParticipantJoined{Participant: domain.Participant{ID: "3"}})
	bus.Emit(events.ParticipantLeft{UID: "2", Reason: domain.ReasonQuit})
	bus.Emit(events.ParticipantJoined{Participant: domain.Participant{ID: "4"}})
	bus.Emit(events.Error{Err: domain.CallError{Code: apperrors.ErrCodeSubscribeFailed}})

	current, ok := rec.Current()
	require.True(t, ok)
	assert.Equal(t, "Me", current.DisplayName)

	clk.Add(90 * time.Second)
	bus.Emit(events.CallEnded{Reason: domain.ReasonUser, Duration: 90})

	_, ok = rec.Current()
	assert.False(t, ok)

	got, err := repo.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	r := got[0]
	assert.Equal(t, "demo", r.Channel)
	assert.Equal(t, "1", r.LocalUID)
	assert.Equal(t, "Me", r.DisplayName)
	assert.Equal(t, 90, r.DurationSeconds)
	assert.Equal(t, domain.ReasonUser, r.EndReason)
	assert.Equal(t, 3, r.PeakParticipants)
	assert.Equal(t, 1, r.ErrorCount)
	assert.Equal(t, 90*time.Second, r.EndedAt.Sub(r.StartedAt))
}

func TestRecorder_IgnoresEventsOutsideACall(t *testing.T) {
	repo := &mockRepo{}
	bus := events.NewBus(zaptest.NewLogger(t).Sugar())
	rec := NewRecorder(repo, clock.NewMock(), zaptest.NewLogger(t).Sugar())
	rec.Attach(bus)
	defer rec.Detach()

	bus.Emit(events.ParticipantJoined{Participant: domain.Participant{ID: "2"}})
	bus.Emit(events.Error{Err: domain.CallError{Code: apperrors.ErrCodeDeviceError}})
	bus.Emit(events.CallEnded{Reason: domain.ReasonUser})

	repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestRecorder_LogsSaveFailure(t *testing.T) {
	repo := &mockRepo{}
	repo.On("Save", mock.Anything, mock.AnythingOfType("*ports.CallRecord")).Return(assert.AnError)

	core, logs := observer.New(zap.DebugLevel)
	bus := events.NewBus(zaptest.NewLogger(t).Sugar())
	rec := NewRecorder(repo, clock.NewMock(), zap.New(core).Sugar())
	rec.Attach(bus)
	defer rec.Detach()

	bus.Emit(events.CallConnected{Channel: "demo", UID: "1"})
	bus.Emit(events.CallEnded{Reason: domain.ReasonDropped, Duration: 3})

	repo.AssertExpectations(t)
	assert.Equal(t, 1, logs.FilterMessage("Failed to save call record").Len())
}

func TestRecorder_DetachStopsRecording(t *testing.T) {
	repo := &mockRepo{}
	bus := events.NewBus(zaptest.NewLogger(t).Sugar())
	rec := NewRecorder(repo, clock.NewMock(), zaptest.NewLogger(t).Sugar())
	rec.Attach(bus)

	bus.Emit(events.CallConnected{Channel: "demo", UID: "1"})
	rec.Detach()
	bus.Emit(events.CallEnded{Reason: domain.ReasonUser})

	assert.Zero(t, bus.ListenerCount(events.NameCallEnded))
	repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) Save(ctx context.Context, rec *ports.CallRecord) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *mockRepo) Recent(ctx context.Context, limit int) ([]*ports.CallRecord, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]*ports.CallRecord), args.Error(1)
}

func (m *mockRepo) ByChannel(ctx context.Context, channel string) ([]*ports.CallRecord, error) {
	args := m.Called(ctx, channel)
	return args.Get(0).([]*ports.CallRecord), args.Error(1)
}
