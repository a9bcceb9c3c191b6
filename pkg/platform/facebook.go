package platform

import (
	"context"
	"fmt"

	"github.com/adflow-io/adflow/pkg/tabular"
)

// FacebookExtractor stands in for the Facebook Marketing API: a campaign
// table and an insights table whose raw rows carry a nested "actions" array
// (conversion breakdown by action type), the concrete case
// extract_nested_actions exists for.
type FacebookExtractor struct {
	Campaigns      []map[string]any
	InsightsByID   map[string][]map[string]any
	MaxConcurrency int
}

var facebookCampaignColumns = []string{"campaign_id", "account_id", "campaign_name", "status"}
var facebookInsightsColumns = []string{"campaign_id", "date_start", "impressions", "clicks", "spend", "actions"}

func (e *FacebookExtractor) Extract(ctx context.Context, table string, dateRange DateRange, driverKeys []string) (*tabular.Payload, error) {
	switch table {
	case "campaign":
		return tabular.FromRows(facebookCampaignColumns, e.Campaigns), nil
	case "insights":
		rows, err := fanOutRows(ctx, driverKeys, e.MaxConcurrency, func(_ context.Context, campaignID string) ([]map[string]any, error) {
			return e.InsightsByID[campaignID], nil
		})
		if err != nil {
			return nil, fmt.Errorf("facebook: extract insights: %w", err)
		}
		return tabular.FromRows(facebookInsightsColumns, rows), nil
	default:
		return nil, fmt.Errorf("facebook: unknown table %q", table)
	}
}

// NewFacebookPipeline builds the reference Facebook platform pipeline.
// Insights flattens its nested actions array into one row per action_type
// before it reaches the sink, and its purchase-action value is aggregated
// back up to one row per campaign per day.
func NewFacebookPipeline(extractor *FacebookExtractor) []TableConfig {
	return []TableConfig{
		{
			Name:      "campaign",
			LoadMode:  "upsert",
			PKColumns: []string{"campaign_id"},
			Processing: []StepConfig{
				{Name: "add_row_loaded_date", Params: nil},
			},
			TestModeSuffix: true,
		},
		{
			Name:              "insights",
			DependsOn:         []string{"campaign"},
			LoadMode:          "increment",
			PKColumns:         []string{"campaign_id"},
			IncrementColumns:  []string{"impressions", "clicks", "spend", "actions_purchase"},
			DriverKeyTable:    "campaign",
			DriverKeyColumn:   "campaign_id",
			Processing: []StepConfig{
				{Name: "extract_nested_actions", Params: map[string]any{
					"actions_column": "actions", "type_column": "action_type", "value_column": "action_value",
					"type_filter": []string{"purchase"},
				}},
				// extract_nested_actions produced one row per action_type;
				// fold back to one row per campaign/day, summing only the
				// action value (impressions/clicks/spend are identical
				// across the exploded rows, so the first occurrence wins).
				{Name: "aggregate_by_entity", Params: map[string]any{
					"entity_columns": []string{"campaign_id", "date_start"},
					"metric_columns": []string{"action_value"},
				}},
				{Name: "rename_column", Params: map[string]any{"mapping": map[string]string{
					"date_start": "date", "action_value": "actions_purchase",
				}}},
				{Name: "replace_nan_with_zero", Params: map[string]any{"columns": []string{"impressions", "clicks", "spend", "actions_purchase"}}},
			},
			TestModeSuffix: true,
		},
	}
}
