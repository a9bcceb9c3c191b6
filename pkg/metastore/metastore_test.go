package metastore_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/adflow-io/adflow/pkg/logger"
	"github.com/adflow-io/adflow/pkg/metastore"
	"github.com/adflow-io/adflow/pkg/orchestrator"
)

func TestMain(m *testing.M) {
	if os.Getenv("ADFLOW_SKIP_CONTAINER_TESTS") == "1" {
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func newTestStore(t *testing.T) *metastore.Store {
	t.Helper()
	ctx := t.Context()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("adflow"),
		tcpostgres.WithUsername("adflow"),
		tcpostgres.WithPassword("adflow"),
		tcpostgres.BasicWaitStrategies(),
		tcpostgres.WithSQLDriver("pgx"),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		terminateCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = container.Terminate(terminateCtx)
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := metastore.New(ctx, logger.New(false), metastore.Config{DSN: connStr})
	require.NoError(t, err)
	t.Cleanup(store.Close)

	require.NoError(t, store.Migrate(ctx))
	return store
}

func TestStore_RecordRun_PersistsSummaryAndPlatforms(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	report := orchestrator.Report{
		Summary: orchestrator.ReportSummary{
			TotalPlatforms: 2, Completed: 1, Failed: 1,
			SuccessRate: 0.5, TotalRowsProcessed: 42, TotalDurationSeconds: 3.25,
			StartedAt: "2026-07-01T00:00:00.000Z",
			EndedAt:   "2026-07-01T00:00:03.250Z",
		},
		Platforms: []orchestrator.ReportPlatform{
			{PlatformName: "linkedin", Status: "completed", RowsProcessed: 42, TablesProcessed: 1},
			{PlatformName: "google", Status: "failed", ErrorMessage: "boom", RetryCount: 2},
		},
	}

	runID, err := store.RecordRun(ctx, report, 2, "cli")
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	runs, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, runID, runs[0].ID)
	require.Equal(t, 2, runs[0].TotalPlatforms)
	require.Equal(t, 1, runs[0].Completed)
	require.Equal(t, 1, runs[0].Failed)
	require.Equal(t, 2, runs[0].ExitCode)
	require.Equal(t, "cli", runs[0].TriggeredBy)
}

func TestStore_ListRuns_OrdersNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	older := orchestrator.Report{Summary: orchestrator.ReportSummary{
		TotalPlatforms: 1, Completed: 1,
		StartedAt: "2026-07-01T00:00:00.000Z", EndedAt: "2026-07-01T00:00:01.000Z",
	}}
	newer := orchestrator.Report{Summary: orchestrator.ReportSummary{
		TotalPlatforms: 1, Completed: 1,
		StartedAt: "2026-07-02T00:00:00.000Z", EndedAt: "2026-07-02T00:00:01.000Z",
	}}

	olderID, err := store.RecordRun(ctx, older, 0, "cli")
	require.NoError(t, err)
	newerID, err := store.RecordRun(ctx, newer, 0, "cli")
	require.NoError(t, err)

	runs, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, newerID, runs[0].ID)
	require.Equal(t, olderID, runs[1].ID)
}

func TestStore_RecordRun_NilStoreIsNoOp(t *testing.T) {
	var store *metastore.Store
	runID, err := store.RecordRun(t.Context(), orchestrator.Report{}, 0, "cli")
	require.NoError(t, err)
	require.Empty(t, runID)
}

func TestNew_RequiresDSN(t *testing.T) {
	_, err := metastore.New(t.Context(), logger.New(false), metastore.Config{})
	require.Error(t, err)
}
