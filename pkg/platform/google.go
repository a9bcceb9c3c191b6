package platform

import (
	"context"
	"fmt"

	"github.com/adflow-io/adflow/pkg/tabular"
)

// GoogleExtractor stands in for the Google Ads API: a campaign table and an
// ad-group-level metrics table reported in "micros" (millionths of the
// account currency unit), the concrete case convert_costs exists for.
type GoogleExtractor struct {
	Campaigns          []map[string]any
	MetricsByCustomerID map[string][]map[string]any
	MaxConcurrency     int
}

var googleCampaignColumns = []string{"campaign_id", "customer_id", "campaign_name", "status", "budget_micros"}
var googleMetricsColumns = []string{"ad_group_id", "date", "cost_micros", "clicks", "impressions"}

func (e *GoogleExtractor) Extract(ctx context.Context, table string, dateRange DateRange, driverKeys []string) (*tabular.Payload, error) {
	switch table {
	case "campaign":
		return tabular.FromRows(googleCampaignColumns, e.Campaigns), nil
	case "ad_group_metrics":
		rows, err := fanOutRows(ctx, driverKeys, e.MaxConcurrency, func(_ context.Context, customerID string) ([]map[string]any, error) {
			return e.MetricsByCustomerID[customerID], nil
		})
		if err != nil {
			return nil, fmt.Errorf("google: extract ad_group_metrics: %w", err)
		}
		return tabular.FromRows(googleMetricsColumns, rows), nil
	default:
		return nil, fmt.Errorf("google: unknown table %q", table)
	}
}

// NewGooglePipeline builds the reference Google Ads platform pipeline.
// The campaign table's daily budget arrives in micros and is converted to
// the account's natural currency unit before it reaches the warehouse;
// ad_group_metrics' cost is left in micros, matching Google Ads' own report
// convention for spend metrics.
func NewGooglePipeline(extractor *GoogleExtractor) []TableConfig {
	return []TableConfig{
		{
			Name:      "campaign",
			LoadMode:  "upsert",
			PKColumns: []string{"campaign_id"},
			Processing: []StepConfig{
				{Name: "convert_costs", Params: map[string]any{"columns": []string{"budget_micros"}}},
				{Name: "rename_column", Params: map[string]any{"mapping": map[string]string{"budget_micros": "budget"}}},
				{Name: "add_row_loaded_date", Params: nil},
			},
			TestModeSuffix: true,
		},
		{
			Name:              "ad_group_metrics",
			DependsOn:         []string{"campaign"},
			LoadMode:          "increment",
			PKColumns:         []string{"ad_group_id"},
			IncrementColumns:  []string{"cost_micros", "clicks", "impressions"},
			DriverKeyTable:    "campaign",
			DriverKeyColumn:   "customer_id",
			Processing: []StepConfig{
				{Name: "replace_nan_with_zero", Params: map[string]any{"columns": []string{"cost_micros", "clicks", "impressions"}}},
			},
			TestModeSuffix: true,
		},
	}
}
