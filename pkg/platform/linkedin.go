package platform

import (
	"context"
	"fmt"

	"github.com/adflow-io/adflow/pkg/tabular"
)

// LinkedInExtractor is a reference Extractor standing in for LinkedIn's
// Marketing API: a campaign table, plus a per-campaign insights table whose
// extraction is driven by the campaign ids already loaded into the sink
// (the value-level dependency the Platform Pipeline contract names).
// InsightsByCampaignID is keyed by the numeric id left in campaign_urn after
// extract_id_from_urn has run, the same value returned by the driver-key
// query against the already-loaded campaign table.
type LinkedInExtractor struct {
	Campaigns            []map[string]any
	InsightsByCampaignID map[string][]map[string]any
	MaxConcurrency       int
}

var linkedInCampaignColumns = []string{"campaign_urn", "account_urn", "campaign_name", "status", "year", "month", "day"}
var linkedInInsightsColumns = []string{"campaign_urn", "date", "impressions", "clicks", "cost_in_local_currency"}

func (e *LinkedInExtractor) Extract(ctx context.Context, table string, dateRange DateRange, driverKeys []string) (*tabular.Payload, error) {
	switch table {
	case "campaign":
		return tabular.FromRows(linkedInCampaignColumns, e.Campaigns), nil
	case "insights":
		rows, err := fanOutRows(ctx, driverKeys, e.MaxConcurrency, func(_ context.Context, campaignID string) ([]map[string]any, error) {
			return e.InsightsByCampaignID[campaignID], nil
		})
		if err != nil {
			return nil, fmt.Errorf("linkedin: extract insights: %w", err)
		}
		return tabular.FromRows(linkedInInsightsColumns, rows), nil
	default:
		return nil, fmt.Errorf("linkedin: unknown table %q", table)
	}
}

// NewLinkedInPipeline builds the reference LinkedIn platform pipeline: the
// campaign table loaded as an upsert keyed by urn (mutable descriptive
// fields), then insights loaded as an increment keyed by campaign_urn alone
// (one cumulative row per campaign, no date in the key) driven off the
// campaign urns just written.
func NewLinkedInPipeline(extractor *LinkedInExtractor) []TableConfig {
	return []TableConfig{
		{
			Name:     "campaign",
			LoadMode: "upsert",
			PKColumns: []string{"campaign_urn"},
			Processing: []StepConfig{
				{Name: "extract_id_from_urn", Params: map[string]any{"columns": []string{"campaign_urn"}}},
				{Name: "modify_urn_account", Params: map[string]any{"column": "account_urn", "output_column": "account_id"}},
				{Name: "add_company", Params: map[string]any{"mapping": map[string]string{"1001": "acme", "1002": "globex"}, "output_column": "company_id"}},
				{Name: "build_date_field", Params: nil},
				{Name: "add_row_loaded_date", Params: nil},
			},
			TestModeSuffix: true,
		},
		{
			Name:              "insights",
			DependsOn:         []string{"campaign"},
			LoadMode:          "increment",
			PKColumns:         []string{"campaign_urn"},
			IncrementColumns:  []string{"impressions", "clicks"},
			DriverKeyTable:    "campaign",
			DriverKeyColumn:   "campaign_urn",
			RequireDriverKeys: false,
			Processing: []StepConfig{
				{Name: "replace_nan_with_zero", Params: map[string]any{"columns": []string{"impressions", "clicks"}}},
				{Name: "rename_column", Params: map[string]any{"mapping": map[string]string{"cost_in_local_currency": "cost"}}},
			},
			TestModeSuffix: true,
		},
	}
}
