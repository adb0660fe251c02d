package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "fitbuddy/pkg/logx"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(context.Background(), Config{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "test.db"),
	}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "mongo"}, logx.Nop())
	require.ErrorIs(t, err, ErrUnknownDriver)
}

func TestRecipientsUniqueAndOrdered(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	require.NoError(t, st.AddRecipient(ctx, 30))
	require.NoError(t, st.AddRecipient(ctx, 10))
	require.NoError(t, st.AddRecipient(ctx, 30))
	require.ErrorIs(t, st.AddRecipient(ctx, 0), ErrInvalidChatID)

	ids, err := st.ListRecipientIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []int64{30, 10}, ids)
}

func TestListRecipientIDsEmpty(t *testing.T) {
	ids, err := openTestStore(t).ListRecipientIDs(context.Background())
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestRunsBetweenInclusiveBounds(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	start := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 5, 12, 23, 59, 59, 999999000, time.UTC)

	add := func(at time.Time, km float64) {
		_, err := st.AddActivity(ctx, Activity{Kind: KindRun, ChatID: 1, CreatedAt: at, DistanceKM: km, Calories: 100})
		require.NoError(t, err)
	}
	add(start.Add(-time.Microsecond), 1)
	add(start, 2)
	add(start.Add(3*24*time.Hour), 3)
	add(end, 4)
	add(end.Add(time.Microsecond), 5)
	// sub-microsecond part is truncated on write, so this lands exactly on end
	add(end.Add(500*time.Nanosecond), 6)

	_, err := st.AddActivity(ctx, Activity{Kind: KindMeal, MealName: "oats", CreatedAt: start.Add(time.Hour)})
	require.NoError(t, err)

	runs, err := st.RunsBetween(ctx, start, end)
	require.NoError(t, err)
	require.Len(t, runs, 4)
	require.Equal(t, 2.0, runs[0].DistanceKM)
	require.Equal(t, start, runs[0].CreatedAt)
	require.Equal(t, 4.0, runs[2].DistanceKM)
	require.Equal(t, 6.0, runs[3].DistanceKM)
	require.Equal(t, end, runs[3].CreatedAt)
	require.Equal(t, int64(1), runs[0].ChatID)
}

func TestAddActivityKinds(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	for _, a := range []Activity{
		{Kind: KindSleep, SleepHours: 7.5},
		{Kind: KindNote, Text: "felt good"},
		{Kind: KindRun, DistanceKM: 5},
	} {
		id, err := st.AddActivity(ctx, a)
		require.NoError(t, err)
		require.Positive(t, id)
	}
	_, err := st.AddActivity(ctx, Activity{Kind: "swim"})
	require.Error(t, err)
}
