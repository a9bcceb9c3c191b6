package platform

import (
	"context"
	"fmt"

	"github.com/adflow-io/adflow/pkg/tabular"
)

// MicrosoftExtractor stands in for Microsoft Advertising: a single campaign
// table with no child tables, the minimal dependency-free case a platform
// can present to the scheduler.
type MicrosoftExtractor struct {
	Campaigns []map[string]any
}

var microsoftCampaignColumns = []string{"campaign_id", "account_id", "campaign_name", "status"}

func (e *MicrosoftExtractor) Extract(_ context.Context, table string, _ DateRange, _ []string) (*tabular.Payload, error) {
	if table != "campaign" {
		return nil, fmt.Errorf("microsoft: unknown table %q", table)
	}
	return tabular.FromRows(microsoftCampaignColumns, e.Campaigns), nil
}

// NewMicrosoftPipeline builds the reference Microsoft Advertising platform
// pipeline.
func NewMicrosoftPipeline(extractor *MicrosoftExtractor) []TableConfig {
	return []TableConfig{
		{
			Name:           "campaign",
			LoadMode:       "replace",
			Processing:     []StepConfig{{Name: "add_row_loaded_date", Params: nil}},
			TestModeSuffix: true,
		},
	}
}
