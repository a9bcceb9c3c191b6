package warehouse

import (
	"fmt"
	"strconv"
	"time"

	"github.com/adflow-io/adflow/pkg/tabular"
)

// AlignValue coerces a single payload value into the Go type the warehouse
// driver expects for the target column's resolved kind. A nil value on a
// non-nullable column is coerced to that type's zero value rather than
// failing the whole batch.
func AlignValue(v any, kind ColumnKind) (any, error) {
	base := kind.Base()
	nullable := kind.Nullable()

	if v == nil {
		if nullable {
			return nil, nil
		}
		return zeroValue(base), nil
	}

	switch base {
	case KindString:
		return alignString(v), nil
	case KindInt64:
		return alignInt(v)
	case KindFloat64:
		return alignFloat(v)
	case KindBool:
		return alignBool(v)
	case KindDate, KindDateTime:
		t, ok, err := alignTime(v)
		if err != nil {
			return nil, err
		}
		if !ok {
			if nullable {
				return nil, nil
			}
			return zeroValue(base), nil
		}
		return t, nil
	default:
		return alignString(v), nil
	}
}

func zeroValue(base ColumnKind) any {
	switch base {
	case KindInt64:
		return int64(0)
	case KindFloat64:
		return float64(0)
	case KindBool:
		return false
	case KindDate, KindDateTime:
		return time.Time{}
	default:
		return ""
	}
}

func alignString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}

func alignInt(v any) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case float64:
		if t != t { // NaN: spec resolves numeric NaN to 0
			return 0, nil
		}
		return int64(t), nil
	case string:
		if t == "" {
			return 0, nil
		}
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(t, 64)
			if ferr != nil {
				return 0, fmt.Errorf("align int: %q: %w", t, err)
			}
			return int64(f), nil
		}
		return n, nil
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("align int: unsupported type %T", v)
	}
}

func alignFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		if t != t { // NaN -> 0, per the run's numeric-target convention
			return 0, nil
		}
		return t, nil
	case float32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case int:
		return float64(t), nil
	case string:
		if t == "" {
			return 0, nil
		}
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, fmt.Errorf("align float: %q: %w", t, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("align float: unsupported type %T", v)
	}
}

func alignBool(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case int64:
		return t != 0, nil
	case string:
		b, err := strconv.ParseBool(t)
		if err != nil {
			return false, fmt.Errorf("align bool: %q: %w", t, err)
		}
		return b, nil
	default:
		return false, fmt.Errorf("align bool: unsupported type %T", v)
	}
}

// alignTime parses v into a time.Time. ok is false when v is a string that
// does not parse under any accepted layout (ISO-8601 date or date-time) —
// the "invalid -> null" case, which the caller maps to NULL or a zero value
// depending on the target column's nullability. err is non-nil only when
// v's type cannot be interpreted as a date/time at all.
func alignTime(v any) (t time.Time, ok bool, err error) {
	switch val := v.(type) {
	case time.Time:
		return val, true, nil
	case string:
		if val == "" {
			return time.Time{}, false, nil
		}
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if parsed, perr := time.Parse(layout, val); perr == nil {
				return parsed, true, nil
			}
		}
		return time.Time{}, false, nil
	case int64:
		return time.Unix(val, 0).UTC(), true, nil
	default:
		return time.Time{}, false, fmt.Errorf("align time: unsupported type %T", v)
	}
}

// AlignPayload coerces every column of p in place against schema and drops
// the payload columns schema does not declare, returning an error naming the
// first column whose values cannot be aligned.
func AlignPayload(p *tabular.Payload, schema *TableSchema) error {
	kept := make([]tabular.Column, 0, len(p.Columns))
	for ci := range p.Columns {
		col := &p.Columns[ci]
		kind, ok := schema.ColumnType[col.Name]
		if !ok {
			continue
		}
		for i, v := range col.Values {
			aligned, err := AlignValue(v, kind)
			if err != nil {
				return fmt.Errorf("warehouse: align column %q row %d: %w", col.Name, i, err)
			}
			col.Values[i] = aligned
		}
		kept = append(kept, *col)
	}
	p.Columns = kept
	return nil
}
