package processing

import (
	"context"

	"github.com/adflow-io/adflow/pkg/tabular"
)

func init() {
	defaultRegistry.Register("replace_nan_with_zero", stepReplaceNanWithZero)
	defaultRegistry.Register("convert_costs", stepConvertCosts)
}

// stepReplaceNanWithZero zeroes out null/NaN values in named numeric
// columns, so a downstream increment load never treats a missing metric as
// skipping the row entirely.
func stepReplaceNanWithZero(_ context.Context, payload *tabular.Payload, params map[string]any) (*tabular.Payload, error) {
	columns := paramStrings(params, "columns")
	out := payload.Clone()
	for _, name := range columns {
		col, ok := out.Column(name)
		if !ok {
			return nil, &missingColumnError{name}
		}
		for i, v := range col.Values {
			if _, ok := toFloat64(v); !ok {
				if col.Type == tabular.Integer {
					col.Values[i] = int64(0)
				} else {
					col.Values[i] = float64(0)
				}
			}
		}
	}
	return out, nil
}

const microsPerUnit = 1_000_000.0

// stepConvertCosts divides named columns by 1,000,000, undoing Google Ads'
// "micros" cost representation.
func stepConvertCosts(_ context.Context, payload *tabular.Payload, params map[string]any) (*tabular.Payload, error) {
	columns := paramStrings(params, "columns")
	out := payload.Clone()
	for _, name := range columns {
		col, ok := out.Column(name)
		if !ok {
			return nil, &missingColumnError{name}
		}
		for i, v := range col.Values {
			f, ok := toFloat64(v)
			if !ok {
				continue
			}
			col.Values[i] = f / microsPerUnit
		}
		col.Type = tabular.Floating
	}
	return out, nil
}
