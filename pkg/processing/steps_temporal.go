package processing

import (
	"context"
	"fmt"
	"time"

	"github.com/adflow-io/adflow/pkg/tabular"
)

func init() {
	defaultRegistry.Register("add_row_loaded_date", stepAddRowLoadedDate)
	defaultRegistry.Register("build_date_field", stepBuildDateField)
	defaultRegistry.Register("convert_unix_timestamp", stepConvertUnixTimestamp)
	defaultRegistry.Register("convert_nat_to_null", stepConvertNatToNull)
}

// stepAddRowLoadedDate stamps every row with the wall-clock time the pipeline
// processed it, read from the context's clock so tests can pin it.
func stepAddRowLoadedDate(ctx context.Context, payload *tabular.Payload, params map[string]any) (*tabular.Payload, error) {
	column := paramString(params, "column", "row_loaded_date")
	now := clockFromContext(ctx).Now().UTC()

	out := payload.Clone()
	values := make([]any, payload.RowCount())
	for i := range values {
		values[i] = now
	}
	out.Columns = append(out.Columns, tabular.Column{Name: column, Type: tabular.Timestamp, Values: values})
	return out, nil
}

// stepBuildDateField combines separate year/month/day columns into a single
// date column, the shape LinkedIn's and Microsoft's reporting APIs return
// date ranges in.
func stepBuildDateField(_ context.Context, payload *tabular.Payload, params map[string]any) (*tabular.Payload, error) {
	yearCol := paramString(params, "year_column", "year")
	monthCol := paramString(params, "month_column", "month")
	dayCol := paramString(params, "day_column", "day")
	outputColumn := paramString(params, "date_column", "date")

	year, ok := payload.Column(yearCol)
	if !ok {
		return nil, &missingColumnError{yearCol}
	}
	month, ok := payload.Column(monthCol)
	if !ok {
		return nil, &missingColumnError{monthCol}
	}
	day, ok := payload.Column(dayCol)
	if !ok {
		return nil, &missingColumnError{dayCol}
	}

	values := make([]any, payload.RowCount())
	for i := range values {
		y, _ := toInt64(year.Values[i])
		m, _ := toInt64(month.Values[i])
		d, _ := toInt64(day.Values[i])
		values[i] = fmt.Sprintf("%04d-%02d-%02d", y, m, d)
	}

	out := payload.Clone()
	out.Columns = append(out.Columns, tabular.Column{Name: outputColumn, Type: tabular.Date, Values: values})
	return out, nil
}

// stepConvertUnixTimestamp converts named millisecond-epoch columns into
// timestamps, the wire format Facebook's and Google's insight endpoints use
// for event times.
func stepConvertUnixTimestamp(_ context.Context, payload *tabular.Payload, params map[string]any) (*tabular.Payload, error) {
	columns := paramStrings(params, "columns")
	out := payload.Clone()
	for _, name := range columns {
		col, ok := out.Column(name)
		if !ok {
			return nil, &missingColumnError{name}
		}
		for i, v := range col.Values {
			ms, ok := toInt64(v)
			if !ok {
				col.Values[i] = nil
				continue
			}
			col.Values[i] = time.UnixMilli(ms).UTC()
		}
		col.Type = tabular.Timestamp
	}
	return out, nil
}

var defaultNatSentinels = []string{"NaT", "0001-01-01T00:00:00Z", ""}

// stepConvertNatToNull replaces a timestamp column's "not a time" sentinel
// values with a real null, undoing the pandas NaT convention the source
// platform libraries the processing steps were modeled on still leak.
func stepConvertNatToNull(_ context.Context, payload *tabular.Payload, params map[string]any) (*tabular.Payload, error) {
	columns := paramStrings(params, "columns")
	sentinels := paramStrings(params, "sentinels")
	if len(sentinels) == 0 {
		sentinels = defaultNatSentinels
	}
	sentinelSet := make(map[string]bool, len(sentinels))
	for _, s := range sentinels {
		sentinelSet[s] = true
	}

	out := payload.Clone()
	for _, name := range columns {
		col, ok := out.Column(name)
		if !ok {
			return nil, &missingColumnError{name}
		}
		for i, v := range col.Values {
			switch t := v.(type) {
			case nil:
				continue
			case string:
				if sentinelSet[t] {
					col.Values[i] = nil
				}
			case time.Time:
				if t.IsZero() {
					col.Values[i] = nil
				}
			}
		}
	}
	return out, nil
}
