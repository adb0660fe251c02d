//go:build integration

package storage

import (
	"context"
	"testing"
	"time"

	logx "fitbuddy/pkg/logx"

	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
)

func TestPostgresStore(t *testing.T) {
	ctx := context.Background()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("fitbuddy"),
		postgrescontainer.WithUsername("fitbuddy"),
		postgrescontainer.WithPassword("fitbuddy"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	var st Store
	require.Eventually(t, func() bool {
		st, err = Open(ctx, Config{Driver: "postgres", DSN: dsn}, logx.Nop())
		return err == nil
	}, 30*time.Second, 500*time.Millisecond)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.AddRecipient(ctx, 42))
	require.NoError(t, st.AddRecipient(ctx, 42))
	ids, err := st.ListRecipientIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []int64{42}, ids)

	start := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 5, 12, 23, 59, 59, 999999000, time.UTC)
	for _, at := range []time.Time{start.Add(-time.Microsecond), start, end, end.Add(time.Microsecond)} {
		_, err := st.AddActivity(ctx, Activity{Kind: KindRun, ChatID: 42, CreatedAt: at, DistanceKM: 1})
		require.NoError(t, err)
	}
	runs, err := st.RunsBetween(ctx, start, end)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.True(t, runs[0].CreatedAt.Equal(start))
}
