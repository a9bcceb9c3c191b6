package orchestrator_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/adflow-io/adflow/pkg/logger"
	"github.com/adflow-io/adflow/pkg/orchestrator"
	"github.com/adflow-io/adflow/pkg/platform"
	"github.com/adflow-io/adflow/pkg/retry"
	"github.com/adflow-io/adflow/pkg/warehouse/whtesting"
)

func TestMain(m *testing.M) {
	if os.Getenv("ADFLOW_SKIP_CONTAINER_TESTS") == "1" {
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func newTestDB(t *testing.T) *whtesting.DB {
	t.Helper()
	log := logger.New(false)
	db, err := whtesting.NewDB(t.Context(), log, nil)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func TestNew_RejectsCircularDependency(t *testing.T) {
	_, err := orchestrator.New(orchestrator.Config{
		Platforms: []orchestrator.PlatformEntry{
			{Name: "a", Enabled: true, DependsOn: []string{"b"}},
			{Name: "b", Enabled: true, DependsOn: []string{"a"}},
		},
	}, nil, nil)
	require.Error(t, err)
}

func TestOrchestrator_ContinueOnFailure_SkipsDependents(t *testing.T) {
	db := newTestDB(t)
	sink := whtesting.NewSink(t, logger.New(false), db)
	ctx := context.Background()

	aExtractor := &platform.MicrosoftExtractor{Campaigns: []map[string]any{{"campaign_id": "a1", "account_id": "acct", "campaign_name": "a", "status": "ACTIVE"}}}
	aTables := platform.NewMicrosoftPipeline(aExtractor)
	aTables[0].Processing = nil
	aTables[0].LoadMode = "bogus-mode"
	aPipeline := &platform.Pipeline{Platform: "a", Tables: aTables, Extractor: aExtractor, Sink: sink, Log: logger.New(false)}

	bExtractor := &platform.MicrosoftExtractor{Campaigns: []map[string]any{{"campaign_id": "b1", "account_id": "acct", "campaign_name": "b", "status": "ACTIVE"}}}
	bPipeline := &platform.Pipeline{Platform: "microsoft", Tables: platform.NewMicrosoftPipeline(bExtractor), Extractor: bExtractor, Sink: sink, Log: logger.New(false)}

	orch, err := orchestrator.New(orchestrator.Config{
		ParallelExecution: true, MaxParallel: 2, ContinueOnFailure: true,
		Platforms: []orchestrator.PlatformEntry{
			{Name: "a", Enabled: true, Retry: retry.Config{MaxAttempts: 1}, Pipeline: aPipeline},
			{Name: "microsoft", Enabled: true, Retry: retry.Config{MaxAttempts: 1}, Pipeline: bPipeline},
			{Name: "c", Enabled: true, DependsOn: []string{"a"}, Retry: retry.Config{MaxAttempts: 1}, Pipeline: nil},
		},
	}, clockwork.NewFakeClock(), logger.New(false))
	require.NoError(t, err)

	result, err := orch.RunAll(ctx, platform.DateRange{})
	require.NoError(t, err)

	byName := map[string]orchestrator.PlatformOutcome{}
	for _, o := range result.Outcomes {
		byName[o.Platform] = o
	}
	require.Equal(t, orchestrator.StatusFailed, byName["a"].Status)
	require.Equal(t, orchestrator.StatusCompleted, byName["microsoft"].Status)
	require.Equal(t, orchestrator.StatusSkipped, byName["c"].Status)
	require.Equal(t, 2, result.ExitCode)
}

func TestOrchestrator_StopsRemainingPlatforms_WhenContinueOnFailureFalse(t *testing.T) {
	db := newTestDB(t)
	sink := whtesting.NewSink(t, logger.New(false), db)
	ctx := context.Background()

	aExtractor := &platform.MicrosoftExtractor{Campaigns: []map[string]any{{"campaign_id": "a1", "account_id": "acct", "campaign_name": "a", "status": "ACTIVE"}}}
	aTables := platform.NewMicrosoftPipeline(aExtractor)
	aTables[0].LoadMode = "bogus-mode"
	aPipeline := &platform.Pipeline{Platform: "a", Tables: aTables, Extractor: aExtractor, Sink: sink, Log: logger.New(false)}

	bExtractor := &platform.MicrosoftExtractor{Campaigns: []map[string]any{{"campaign_id": "b1", "account_id": "acct", "campaign_name": "b", "status": "ACTIVE"}}}
	bPipeline := &platform.Pipeline{Platform: "microsoft", Tables: platform.NewMicrosoftPipeline(bExtractor), Extractor: bExtractor, Sink: sink, Log: logger.New(false)}

	orch, err := orchestrator.New(orchestrator.Config{
		ParallelExecution: false, MaxParallel: 1, ContinueOnFailure: false,
		ParallelGroups: [][]string{{"a"}, {"microsoft"}},
		Platforms: []orchestrator.PlatformEntry{
			{Name: "a", Enabled: true, Retry: retry.Config{MaxAttempts: 1}, Pipeline: aPipeline},
			{Name: "microsoft", Enabled: true, Retry: retry.Config{MaxAttempts: 1}, Pipeline: bPipeline},
		},
	}, clockwork.NewFakeClock(), logger.New(false))
	require.NoError(t, err)

	result, err := orch.RunAll(ctx, platform.DateRange{})
	require.NoError(t, err)

	byName := map[string]orchestrator.PlatformOutcome{}
	for _, o := range result.Outcomes {
		byName[o.Platform] = o
	}
	require.Equal(t, orchestrator.StatusFailed, byName["a"].Status)
	require.Equal(t, orchestrator.StatusSkipped, byName["microsoft"].Status)
	require.Equal(t, 3, result.ExitCode)
}

func TestOrchestrator_RunOne_IgnoresDependencies(t *testing.T) {
	db := newTestDB(t)
	sink := whtesting.NewSink(t, logger.New(false), db)
	ctx := context.Background()

	extractor := &platform.MicrosoftExtractor{Campaigns: []map[string]any{{"campaign_id": "m1", "account_id": "a1", "campaign_name": "brand", "status": "ACTIVE"}}}
	pipeline := &platform.Pipeline{Platform: "microsoft", Tables: platform.NewMicrosoftPipeline(extractor), Extractor: extractor, Sink: sink, Log: logger.New(false)}

	orch, err := orchestrator.New(orchestrator.Config{
		Platforms: []orchestrator.PlatformEntry{
			{Name: "microsoft", Enabled: true, DependsOn: []string{"other"}, Retry: retry.Config{MaxAttempts: 1}, Pipeline: pipeline},
			{Name: "other", Enabled: true, Pipeline: nil},
		},
	}, clockwork.NewFakeClock(), logger.New(false))
	require.NoError(t, err)

	outcome, err := orch.RunOne(ctx, "microsoft", platform.DateRange{})
	require.NoError(t, err)
	require.Equal(t, orchestrator.StatusCompleted, outcome.Status)
}

func TestBuildReport_ProjectsMonitorSummaryAndPlatforms(t *testing.T) {
	summary := orchestrator.Summary{
		TotalPlatforms: 2, Completed: 1, Failed: 1, SuccessRate: 0.5,
		TotalRowsProcessed: 10, TotalDurationSeconds: 1.5,
		StartedAt: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		EndedAt:   time.Date(2026, 7, 1, 0, 0, 1, 500_000_000, time.UTC),
	}
	outcomes := []orchestrator.PlatformOutcome{
		{Platform: "linkedin", Status: orchestrator.StatusCompleted, RowsProcessed: 10, TablesDone: []string{"campaign"}, Attempts: 1},
		{Platform: "google", Status: orchestrator.StatusFailed, Error: "boom\nsecond line", Attempts: 3},
	}

	report := orchestrator.BuildReport(summary, outcomes)
	require.Equal(t, 2, report.Summary.TotalPlatforms)
	require.Len(t, report.Platforms, 2)
	require.Equal(t, "linkedin", report.Platforms[0].PlatformName)
	require.Equal(t, 0, report.Platforms[0].RetryCount)
	require.Equal(t, "google", report.Platforms[1].PlatformName)
	require.Equal(t, 2, report.Platforms[1].RetryCount)
	require.Equal(t, "boom\nsecond line", report.Platforms[1].ErrorMessage)
}
