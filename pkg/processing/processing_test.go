package processing_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adflow-io/adflow/pkg/processing"
	"github.com/adflow-io/adflow/pkg/tabular"
)

func mustPayload(t *testing.T, cols ...tabular.Column) *tabular.Payload {
	t.Helper()
	p, err := tabular.NewPayload(cols...)
	require.NoError(t, err)
	return p
}

func TestPipeline_UnknownStepFailsAtConstruction(t *testing.T) {
	p := processing.NewPipeline(nil).AddStep("does_not_exist", nil)
	require.Error(t, p.Err())
	var unknown *processing.UnknownStepError
	require.ErrorAs(t, p.Err(), &unknown)

	_, err := p.Process(context.Background(), mustPayload(t))
	require.Error(t, err)
}

func TestPipeline_StepFailedWrapsCause(t *testing.T) {
	p := processing.NewPipeline(nil).AddStep("extract_id_from_urn", map[string]any{"columns": []string{"missing"}})
	_, err := p.Process(context.Background(), mustPayload(t, tabular.Column{Name: "urn", Type: tabular.String, Values: []any{"x"}}))
	require.Error(t, err)
	var failed *processing.StepFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "extract_id_from_urn", failed.Name)
}

func TestStep_AddCompany(t *testing.T) {
	payload := mustPayload(t, tabular.Column{Name: "account_id", Type: tabular.String, Values: []any{"a1", "a2"}})
	p := processing.NewPipeline(nil).AddStep("add_company", map[string]any{
		"mapping": map[string]string{"a1": "acme", "a2": "globex"},
	})
	out, err := p.Process(context.Background(), payload)
	require.NoError(t, err)
	col, ok := out.Column("company")
	require.True(t, ok)
	assert.Equal(t, []any{"acme", "globex"}, col.Values)
}

func TestStep_AddRowLoadedDate_UsesContextClock(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC))
	ctx := processing.ContextWithClock(context.Background(), clock)
	payload := mustPayload(t, tabular.Column{Name: "x", Type: tabular.String, Values: []any{"1"}})

	out, err := processing.NewPipeline(nil).AddStep("add_row_loaded_date", nil).Process(ctx, payload)
	require.NoError(t, err)
	col, ok := out.Column("row_loaded_date")
	require.True(t, ok)
	assert.Equal(t, clock.Now().UTC(), col.Values[0])
}

func TestStep_ExtractIDFromURN(t *testing.T) {
	payload := mustPayload(t, tabular.Column{Name: "urn", Type: tabular.String, Values: []any{"urn:li:sponsoredCampaign:555"}})
	out, err := processing.NewPipeline(nil).AddStep("extract_id_from_urn", map[string]any{"columns": []string{"urn"}}).Process(context.Background(), payload)
	require.NoError(t, err)
	col, _ := out.Column("urn")
	assert.Equal(t, "555", col.Values[0])
}

func TestStep_BuildDateField(t *testing.T) {
	payload := mustPayload(t,
		tabular.Column{Name: "year", Type: tabular.Integer, Values: []any{int64(2026)}},
		tabular.Column{Name: "month", Type: tabular.Integer, Values: []any{int64(7)}},
		tabular.Column{Name: "day", Type: tabular.Integer, Values: []any{int64(1)}},
	)
	out, err := processing.NewPipeline(nil).AddStep("build_date_field", nil).Process(context.Background(), payload)
	require.NoError(t, err)
	col, ok := out.Column("date")
	require.True(t, ok)
	assert.Equal(t, "2026-07-01", col.Values[0])
}

func TestStep_ConvertUnixTimestamp(t *testing.T) {
	payload := mustPayload(t, tabular.Column{Name: "ts", Type: tabular.Integer, Values: []any{int64(1751328000000)}})
	out, err := processing.NewPipeline(nil).AddStep("convert_unix_timestamp", map[string]any{"columns": []string{"ts"}}).Process(context.Background(), payload)
	require.NoError(t, err)
	col, _ := out.Column("ts")
	tm, ok := col.Values[0].(time.Time)
	require.True(t, ok)
	assert.Equal(t, 2025, tm.Year())
}

func TestStep_RenameColumn(t *testing.T) {
	payload := mustPayload(t, tabular.Column{Name: "old", Type: tabular.String, Values: []any{"v"}})
	out, err := processing.NewPipeline(nil).AddStep("rename_column", map[string]any{"mapping": map[string]string{"old": "new"}}).Process(context.Background(), payload)
	require.NoError(t, err)
	_, ok := out.Column("new")
	assert.True(t, ok)
	_, ok = out.Column("old")
	assert.False(t, ok)
}

func TestStep_ReplaceNanWithZero(t *testing.T) {
	payload := mustPayload(t, tabular.Column{Name: "spend", Type: tabular.Floating, Values: []any{nil, 5.0}})
	out, err := processing.NewPipeline(nil).AddStep("replace_nan_with_zero", map[string]any{"columns": []string{"spend"}}).Process(context.Background(), payload)
	require.NoError(t, err)
	col, _ := out.Column("spend")
	assert.Equal(t, float64(0), col.Values[0])
	assert.Equal(t, 5.0, col.Values[1])
}

func TestStep_ConvertNatToNull(t *testing.T) {
	payload := mustPayload(t, tabular.Column{Name: "ended_at", Type: tabular.Timestamp, Values: []any{"NaT", "2026-01-01"}})
	out, err := processing.NewPipeline(nil).AddStep("convert_nat_to_null", map[string]any{"columns": []string{"ended_at"}}).Process(context.Background(), payload)
	require.NoError(t, err)
	col, _ := out.Column("ended_at")
	assert.Nil(t, col.Values[0])
	assert.Equal(t, "2026-01-01", col.Values[1])
}

func TestStep_ModifyURNAccount(t *testing.T) {
	payload := mustPayload(t, tabular.Column{Name: "account_urn", Type: tabular.String, Values: []any{"urn:li:sponsoredAccount:42"}})
	out, err := processing.NewPipeline(nil).AddStep("modify_urn_account", map[string]any{
		"column": "account_urn", "output_column": "account_id",
	}).Process(context.Background(), payload)
	require.NoError(t, err)
	col, ok := out.Column("account_id")
	require.True(t, ok)
	assert.Equal(t, "42", col.Values[0])
}

func TestStep_ResponseDecoration(t *testing.T) {
	payload := mustPayload(t, tabular.Column{Name: "raw", Values: []any{
		map[string]any{"stats": map[string]any{"impressions": int64(100)}},
	}})
	out, err := processing.NewPipeline(nil).AddStep("response_decoration", map[string]any{
		"nested_column": "raw", "field": "stats.impressions", "output_column": "impressions",
	}).Process(context.Background(), payload)
	require.NoError(t, err)
	col, ok := out.Column("impressions")
	require.True(t, ok)
	assert.Equal(t, int64(100), col.Values[0])
}

func TestStep_AggregateByEntity_SumsMetricsPerEntity(t *testing.T) {
	payload := mustPayload(t,
		tabular.Column{Name: "ad_group_id", Type: tabular.String, Values: []any{"g1", "g1", "g2"}},
		tabular.Column{Name: "clicks", Type: tabular.Integer, Values: []any{int64(3), int64(4), int64(1)}},
	)
	out, err := processing.NewPipeline(nil).AddStep("aggregate_by_entity", map[string]any{
		"entity_columns": []string{"ad_group_id"}, "metric_columns": []string{"clicks"},
	}).Process(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, 2, out.RowCount())

	byGroup := map[string]float64{}
	idCol, _ := out.Column("ad_group_id")
	clicksCol, _ := out.Column("clicks")
	for i := range idCol.Values {
		byGroup[idCol.Values[i].(string)] = clicksCol.Values[i].(float64)
	}
	assert.Equal(t, 7.0, byGroup["g1"])
	assert.Equal(t, 1.0, byGroup["g2"])
}

func TestStep_ConvertCosts(t *testing.T) {
	payload := mustPayload(t, tabular.Column{Name: "cost_micros", Type: tabular.Integer, Values: []any{int64(2_500_000)}})
	out, err := processing.NewPipeline(nil).AddStep("convert_costs", map[string]any{"columns": []string{"cost_micros"}}).Process(context.Background(), payload)
	require.NoError(t, err)
	col, _ := out.Column("cost_micros")
	assert.Equal(t, 2.5, col.Values[0])
}

func TestStep_ExtractNestedActions_OneRowPerAction(t *testing.T) {
	payload := mustPayload(t,
		tabular.Column{Name: "campaign_id", Type: tabular.String, Values: []any{"c1"}},
		tabular.Column{Name: "actions", Values: []any{[]any{
			map[string]any{"action_type": "purchase", "value": "12.50"},
			map[string]any{"action_type": "lead", "value": "3"},
		}}},
	)
	out, err := processing.NewPipeline(nil).AddStep("extract_nested_actions", map[string]any{
		"actions_column": "actions",
	}).Process(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, 2, out.RowCount())

	campaignCol, ok := out.Column("campaign_id")
	require.True(t, ok)
	assert.Equal(t, []any{"c1", "c1"}, campaignCol.Values)

	typeCol, ok := out.Column("action_type")
	require.True(t, ok)
	assert.Equal(t, []any{"purchase", "lead"}, typeCol.Values)
}

func TestStep_ChainedSteps_EachReturnsNewPayload(t *testing.T) {
	original := mustPayload(t, tabular.Column{Name: "account_id", Type: tabular.String, Values: []any{"a1"}})
	p := processing.NewPipeline(nil).
		AddStep("add_company", map[string]any{"mapping": map[string]string{"a1": "acme"}}).
		AddStep("rename_column", map[string]any{"mapping": map[string]string{"company": "company_name"}})

	out, err := p.Process(context.Background(), original)
	require.NoError(t, err)

	_, hasOriginalCol := original.Column("company")
	assert.False(t, hasOriginalCol, "original payload must not be mutated")
	_, hasOnOutput := out.Column("company_name")
	assert.True(t, hasOnOutput)
}
