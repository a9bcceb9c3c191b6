package processing

import (
	"context"
	"strconv"
	"strings"

	"github.com/adflow-io/adflow/pkg/tabular"
)

func init() {
	defaultRegistry.Register("response_decoration", stepResponseDecoration)
	defaultRegistry.Register("aggregate_by_entity", stepAggregateByEntity)
	defaultRegistry.Register("extract_nested_actions", stepExtractNestedActions)
}

// navigate walks a dotted field path into nested maps, the same access
// pattern a platform's raw JSON response needs once it has been decoded
// into map[string]any.
func navigate(v any, path []string) any {
	cur := v
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[key]
	}
	return cur
}

// stepResponseDecoration lifts a field buried in a nested response object
// into a top-level column, used when an API nests metrics under a
// "value"/"stats" wrapper object instead of flattening them itself.
func stepResponseDecoration(_ context.Context, payload *tabular.Payload, params map[string]any) (*tabular.Payload, error) {
	nestedColumn, err := requireString(params, "nested_column")
	if err != nil {
		return nil, err
	}
	field, err := requireString(params, "field")
	if err != nil {
		return nil, err
	}
	outputColumn := paramString(params, "output_column", field)
	path := strings.Split(field, ".")

	src, ok := payload.Column(nestedColumn)
	if !ok {
		return nil, &missingColumnError{nestedColumn}
	}

	values := make([]any, len(src.Values))
	for i, v := range src.Values {
		values[i] = navigate(v, path)
	}

	out := payload.Clone()
	out.Columns = append(out.Columns, tabular.Column{Name: outputColumn, Values: values})
	return out, nil
}

// entityKeyCandidates picks columns that look like entity identifiers when
// entity_columns isn't configured: anything named "id" or ending in "_id".
func entityKeyCandidates(payload *tabular.Payload) []string {
	var out []string
	for _, c := range payload.Columns {
		if c.Name == "id" || strings.HasSuffix(c.Name, "_id") {
			out = append(out, c.Name)
		}
	}
	return out
}

// metricColumnCandidates picks numeric columns not already claimed as
// entity keys, for aggregate_by_entity's auto-detect path.
func metricColumnCandidates(payload *tabular.Payload, entityColumns []string) []string {
	isEntity := make(map[string]bool, len(entityColumns))
	for _, c := range entityColumns {
		isEntity[c] = true
	}
	var out []string
	for _, c := range payload.Columns {
		if isEntity[c.Name] {
			continue
		}
		if c.Type == tabular.Integer || c.Type == tabular.Floating {
			out = append(out, c.Name)
		}
	}
	return out
}

// stepAggregateByEntity groups rows by entity key and sums the configured
// metric columns, collapsing the per-ad-group-per-day rows platform report
// endpoints return into one row per entity.
func stepAggregateByEntity(_ context.Context, payload *tabular.Payload, params map[string]any) (*tabular.Payload, error) {
	entityColumns := paramStrings(params, "entity_columns")
	if len(entityColumns) == 0 {
		entityColumns = entityKeyCandidates(payload)
	}
	metricColumns := paramStrings(params, "metric_columns")
	if len(metricColumns) == 0 {
		metricColumns = metricColumnCandidates(payload, entityColumns)
	}

	passthrough := passthroughColumns(payload, entityColumns, metricColumns)

	type group struct {
		key     string
		first   map[string]any
		metrics map[string]float64
	}
	order := make([]string, 0)
	groups := make(map[string]*group)

	for i := 0; i < payload.RowCount(); i++ {
		row := payload.Row(i)
		key := entityKey(row, entityColumns)
		g, ok := groups[key]
		if !ok {
			g = &group{key: key, first: row, metrics: make(map[string]float64, len(metricColumns))}
			groups[key] = g
			order = append(order, key)
		}
		for _, m := range metricColumns {
			if f, ok := toFloat64(row[m]); ok {
				g.metrics[m] += f
			}
		}
	}

	columnOrder := append(append(append([]string{}, entityColumns...), passthrough...), metricColumns...)
	rows := make([]map[string]any, 0, len(order))
	for _, key := range order {
		g := groups[key]
		row := make(map[string]any, len(columnOrder))
		for _, c := range entityColumns {
			row[c] = g.first[c]
		}
		for _, c := range passthrough {
			row[c] = g.first[c]
		}
		for _, m := range metricColumns {
			row[m] = g.metrics[m]
		}
		rows = append(rows, row)
	}

	return tabular.FromRows(columnOrder, rows), nil
}

func passthroughColumns(payload *tabular.Payload, entityColumns, metricColumns []string) []string {
	claimed := make(map[string]bool, len(entityColumns)+len(metricColumns))
	for _, c := range entityColumns {
		claimed[c] = true
	}
	for _, c := range metricColumns {
		claimed[c] = true
	}
	var out []string
	for _, c := range payload.Columns {
		if !claimed[c.Name] {
			out = append(out, c.Name)
		}
	}
	return out
}

func entityKey(row map[string]any, entityColumns []string) string {
	parts := make([]string, len(entityColumns))
	for i, c := range entityColumns {
		parts[i] = toKeyString(row[c])
	}
	return strings.Join(parts, "\x1f")
}

func toKeyString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		if f, ok := toFloat64(v); ok {
			return trimFloat(f)
		}
		return ""
	}
}

func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// stepExtractNestedActions flattens an array-of-objects "actions" column
// (Facebook Marketing API's conversion breakdown) into a long-form table
// with one row per action_type. type_filter, when set, drops any action
// whose type isn't in the list, the way a table only interested in
// purchase conversions discards add-to-cart and lead events before they
// ever reach aggregate_by_entity.
func stepExtractNestedActions(_ context.Context, payload *tabular.Payload, params map[string]any) (*tabular.Payload, error) {
	actionsColumn, err := requireString(params, "actions_column")
	if err != nil {
		return nil, err
	}
	typeField := paramString(params, "type_field", "action_type")
	valueField := paramString(params, "value_field", "value")
	typeColumn := paramString(params, "type_column", "action_type")
	valueColumn := paramString(params, "value_column", "action_value")
	typeFilter := paramStrings(params, "type_filter")
	allowedTypes := make(map[string]bool, len(typeFilter))
	for _, t := range typeFilter {
		allowedTypes[t] = true
	}

	passthrough := make([]string, 0, len(payload.Columns))
	for _, c := range payload.Columns {
		if c.Name != actionsColumn {
			passthrough = append(passthrough, c.Name)
		}
	}
	columnOrder := append(append([]string{}, passthrough...), typeColumn, valueColumn)

	rows := make([]map[string]any, 0, payload.RowCount())
	for i := 0; i < payload.RowCount(); i++ {
		base := payload.Row(i)
		var actions []any
		switch v := base[actionsColumn].(type) {
		case []any:
			actions = v
		case []map[string]any:
			for _, m := range v {
				actions = append(actions, m)
			}
		}
		for _, a := range actions {
			action, ok := a.(map[string]any)
			if !ok {
				continue
			}
			actionType, _ := action[typeField].(string)
			if len(allowedTypes) > 0 && !allowedTypes[actionType] {
				continue
			}
			row := make(map[string]any, len(columnOrder))
			for _, c := range passthrough {
				row[c] = base[c]
			}
			row[typeColumn] = action[typeField]
			row[valueColumn] = action[valueField]
			rows = append(rows, row)
		}
	}

	return tabular.FromRows(columnOrder, rows), nil
}
