package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/shiftline/shiftline-sync-server/internal/notify"
	"github.com/shiftline/shiftline-sync-server/internal/notify/queue"
	sourcemocks "github.com/shiftline/shiftline-sync-server/internal/notify/source/mocks"
	"github.com/shiftline/shiftline-sync-server/internal/notify/tracking"
	trackingmocks "github.com/shiftline/shiftline-sync-server/internal/notify/tracking/mocks"
)

// testClock is a controllable time source for engine tests.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func record(recipient, message string, kind notify.Kind) notify.Record {
	return notify.Record{
		RecipientID:    recipient,
		ContactAddress: recipient + "@example.com",
		Message:        message,
		Kind:           kind,
		Priority:       notify.PriorityMedium,
	}
}

// newTestEngine wires an engine over real file-backed stores and a mock source.
func newTestEngine(t *testing.T, src *sourcemocks.MockSource, clock *testClock) (*Engine, queue.Queue) {
	t.Helper()

	dir := t.TempDir()
	q := queue.NewFileQueue(dir)
	store := tracking.NewFileStore(dir)

	eng := New(src, store, q, notify.DefaultPolicyTable(), WithClock(clock.Now))
	return eng, q
}

func TestRefresh_AdmitsNewRecords(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	src := sourcemocks.NewMockSource(ctrl)
	clock := &testClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)}
	eng, q := newTestEngine(t, src, clock)

	records := []notify.Record{
		record("emp-001", "submit attendance", notify.KindDailyReminder),
		record("emp-002", "2 mismatches found", notify.KindMismatchAlert),
	}
	src.EXPECT().Records(gomock.Any()).Return(records, nil)

	result, err := eng.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Admitted)
	assert.Zero(t, result.Skipped)
	assert.Zero(t, result.Reclaimed)
	assert.Equal(t, 2, result.Pending)

	items, err := q.List(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, item := range items {
		assert.NotEmpty(t, item.ID)
		assert.False(t, item.Acknowledged)
		assert.True(t, item.EnqueuedAt.Equal(clock.Now()))
	}
}

func TestRefresh_SecondPassIsIdempotent(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	src := sourcemocks.NewMockSource(ctrl)
	clock := &testClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)}
	eng, q := newTestEngine(t, src, clock)

	records := []notify.Record{record("emp-001", "submit attendance", notify.KindDailyReminder)}
	src.EXPECT().Records(gomock.Any()).Return(records, nil).Times(2)

	ctx := context.Background()
	_, err := eng.Refresh(ctx)
	require.NoError(t, err)

	result, err := eng.Refresh(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Admitted)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, result.Pending)

	items, err := q.List(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestRefresh_ReclaimsAcknowledgedWithoutReadmitting(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	src := sourcemocks.NewMockSource(ctrl)
	clock := &testClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)}
	eng, q := newTestEngine(t, src, clock)

	rec := record("emp-001", "submit attendance", notify.KindDailyReminder)
	src.EXPECT().Records(gomock.Any()).Return([]notify.Record{rec}, nil).Times(2)

	ctx := context.Background()
	_, err := eng.Refresh(ctx)
	require.NoError(t, err)

	// The delivery agent sends the notification and flips the flag.
	require.NoError(t, q.Acknowledge(ctx, rec.ItemKey()))

	clock.Advance(5 * time.Minute)
	result, err := eng.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Reclaimed)
	assert.Zero(t, result.Admitted)
	assert.Equal(t, 1, result.Skipped, "throttle holds the re-produced record back")
	assert.Zero(t, result.Pending)

	items, err := q.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, items, "a delivered item never reappears")
}

func TestRefresh_ThrottleGatesRepeatSends(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	src := sourcemocks.NewMockSource(ctrl)
	clock := &testClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)}
	eng, _ := newTestEngine(t, src, clock)
	ctx := context.Background()

	src.EXPECT().Records(gomock.Any()).
		Return([]notify.Record{record("emp-001", "first nudge", notify.KindDailyReminder)}, nil)
	result, err := eng.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Admitted)

	// A different message 5 minutes later is a new item, but the per-kind
	// interval for this recipient has not elapsed.
	clock.Advance(5 * time.Minute)
	src.EXPECT().Records(gomock.Any()).
		Return([]notify.Record{record("emp-001", "second nudge", notify.KindDailyReminder)}, nil)
	result, err = eng.Refresh(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Admitted)
	assert.Equal(t, 1, result.Skipped)
}

func TestRefresh_DailyCapStopsFourthSend(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	src := sourcemocks.NewMockSource(ctrl)
	clock := &testClock{now: time.Date(2026, 3, 10, 6, 0, 0, 0, time.Local)}
	eng, q := newTestEngine(t, src, clock)
	ctx := context.Background()

	messages := []string{"nudge 1", "nudge 2", "nudge 3"}
	for _, msg := range messages {
		src.EXPECT().Records(gomock.Any()).
			Return([]notify.Record{record("emp-001", msg, notify.KindDailyReminder)}, nil)
		result, err := eng.Refresh(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Admitted, msg)
		clock.Advance(3 * time.Hour)
	}

	// 15:00 same day: the interval has elapsed but the 3/day cap is spent.
	src.EXPECT().Records(gomock.Any()).
		Return([]notify.Record{record("emp-001", "nudge 4", notify.KindDailyReminder)}, nil)
	result, err := eng.Refresh(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Admitted)
	assert.Equal(t, 1, result.Skipped)

	items, err := q.List(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestRefresh_UnknownKindIsSkipped(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	src := sourcemocks.NewMockSource(ctrl)
	clock := &testClock{now: time.Now()}
	eng, _ := newTestEngine(t, src, clock)

	src.EXPECT().Records(gomock.Any()).
		Return([]notify.Record{record("emp-001", "hello", notify.Kind("Unlisted"))}, nil)

	result, err := eng.Refresh(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Admitted)
	assert.Equal(t, 1, result.Skipped)
}

func TestRefresh_SourceErrorAborts(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	src := sourcemocks.NewMockSource(ctrl)
	clock := &testClock{now: time.Now()}
	eng, _ := newTestEngine(t, src, clock)

	src.EXPECT().Records(gomock.Any()).Return(nil, errors.New("records folder unreadable"))

	_, err := eng.Refresh(context.Background())
	assert.ErrorContains(t, err, "records folder unreadable")
}

func TestRefresh_StoreLoadErrorDegradesToColdStart(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	src := sourcemocks.NewMockSource(ctrl)
	store := trackingmocks.NewMockStore(ctrl)
	clock := &testClock{now: time.Now()}

	q := queue.NewFileQueue(t.TempDir())
	eng := New(src, store, q, notify.DefaultPolicyTable(), WithClock(clock.Now))

	src.EXPECT().Records(gomock.Any()).
		Return([]notify.Record{record("emp-001", "hello", notify.KindDailyReminder)}, nil)
	store.EXPECT().Load(gomock.Any()).Return(nil, errors.New("disk hiccup"))
	store.EXPECT().Save(gomock.Any(), gomock.Any()).Return(nil)

	result, err := eng.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Admitted)
}

// flakyStore wraps a Store and fails the first N saves.
type flakyStore struct {
	inner    tracking.Store
	failures int
}

func (s *flakyStore) Load(ctx context.Context) (map[notify.ThrottleKey]notify.ThrottleEntry, error) {
	return s.inner.Load(ctx)
}

func (s *flakyStore) Save(ctx context.Context, entries map[notify.ThrottleKey]notify.ThrottleEntry) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("disk full")
	}
	return s.inner.Save(ctx, entries)
}

func TestRefresh_FailedSaveIsRetriedNextCycle(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	src := sourcemocks.NewMockSource(ctrl)
	clock := &testClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)}

	dir := t.TempDir()
	q := queue.NewFileQueue(dir)
	store := &flakyStore{inner: tracking.NewFileStore(dir), failures: 1}
	eng := New(src, store, q, notify.DefaultPolicyTable(), WithClock(clock.Now))
	ctx := context.Background()

	rec := record("emp-001", "submit attendance", notify.KindDailyReminder)
	src.EXPECT().Records(gomock.Any()).Return([]notify.Record{rec}, nil).Times(2)

	enqueued := clock.Now()
	result, err := eng.Refresh(ctx)
	require.ErrorContains(t, err, "persist throttle state")
	require.NotNil(t, result)
	require.Equal(t, 1, result.Admitted)

	// The agent delivers and acknowledges before the next cycle.
	require.NoError(t, q.Acknowledge(ctx, rec.ItemKey()))

	clock.Advance(5 * time.Minute)
	result, err = eng.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Reclaimed)
	assert.Zero(t, result.Admitted, "the send lost by the failed save must still gate re-admission")
	assert.Equal(t, 1, result.Skipped)
	assert.Zero(t, result.Pending)

	entries, err := store.Load(ctx)
	require.NoError(t, err)
	entry, ok := entries[notify.ThrottleKey{Kind: notify.KindDailyReminder, RecipientID: "emp-001"}]
	require.True(t, ok, "the repaired entry is persisted")
	assert.Equal(t, 1, entry.SentCountToday)
	assert.True(t, entry.LastSentAt.Equal(enqueued))
}

func TestRefresh_StoreSaveErrorIsReportedWithResult(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	src := sourcemocks.NewMockSource(ctrl)
	store := trackingmocks.NewMockStore(ctrl)
	clock := &testClock{now: time.Now()}

	q := queue.NewFileQueue(t.TempDir())
	eng := New(src, store, q, notify.DefaultPolicyTable(), WithClock(clock.Now))

	src.EXPECT().Records(gomock.Any()).
		Return([]notify.Record{record("emp-001", "hello", notify.KindDailyReminder)}, nil)
	store.EXPECT().Load(gomock.Any()).
		Return(map[notify.ThrottleKey]notify.ThrottleEntry{}, nil)
	store.EXPECT().Save(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))

	result, err := eng.Refresh(context.Background())
	require.Error(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 1, result.Admitted, "the item was enqueued before the save failed")
}
