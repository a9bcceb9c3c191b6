// Package tabular defines the in-memory columnar payload that flows between
// a platform's extractor, the processing pipeline, and the warehouse sink.
package tabular

import "fmt"

// ColumnType is the payload's semantic type, independent of the warehouse's
// native column type: alignment between the two happens in pkg/warehouse.
type ColumnType int

const (
	Unknown ColumnType = iota
	String
	Integer
	Floating
	Boolean
	Date
	Timestamp
	Null
)

func (t ColumnType) String() string {
	switch t {
	case String:
		return "string"
	case Integer:
		return "integer"
	case Floating:
		return "floating"
	case Boolean:
		return "boolean"
	case Date:
		return "date"
	case Timestamp:
		return "timestamp"
	case Null:
		return "null"
	default:
		return "unknown"
	}
}

// Column is one named, typed vector of values. All columns in a Payload
// must have the same length.
type Column struct {
	Name   string
	Type   ColumnType
	Values []any
}

// Payload is an ordered set of columns produced by a platform extractor and
// consumed by the processing pipeline and the warehouse sink.
type Payload struct {
	Columns []Column
}

// NewPayload builds a Payload and validates the row-count invariant.
func NewPayload(columns ...Column) (*Payload, error) {
	p := &Payload{Columns: columns}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate enforces that every column carries the same number of rows.
func (p *Payload) Validate() error {
	if len(p.Columns) == 0 {
		return nil
	}
	n := len(p.Columns[0].Values)
	for _, c := range p.Columns[1:] {
		if len(c.Values) != n {
			return fmt.Errorf("tabular: column %q has %d rows, column %q has %d", c.Name, len(c.Values), p.Columns[0].Name, n)
		}
	}
	return nil
}

// RowCount returns the number of rows, or 0 for an empty payload.
func (p *Payload) RowCount() int {
	if len(p.Columns) == 0 {
		return 0
	}
	return len(p.Columns[0].Values)
}

// ColumnNames returns the ordered column names.
func (p *Payload) ColumnNames() []string {
	names := make([]string, len(p.Columns))
	for i, c := range p.Columns {
		names[i] = c.Name
	}
	return names
}

// Column looks up a column by name.
func (p *Payload) Column(name string) (*Column, bool) {
	for i := range p.Columns {
		if p.Columns[i].Name == name {
			return &p.Columns[i], true
		}
	}
	return nil, false
}

// Row extracts the i-th row as a name-keyed map. Used by processing steps
// that operate row-wise rather than column-wise.
func (p *Payload) Row(i int) map[string]any {
	row := make(map[string]any, len(p.Columns))
	for _, c := range p.Columns {
		row[c.Name] = c.Values[i]
	}
	return row
}

// FromRows rebuilds a Payload from row-wise maps, preserving the supplied
// column order and inferring each column's type from its first non-nil
// value. Used by processing steps that need to add, drop or reshape rows.
func FromRows(columnOrder []string, rows []map[string]any) *Payload {
	cols := make([]Column, len(columnOrder))
	for i, name := range columnOrder {
		values := make([]any, len(rows))
		var t ColumnType
		for r, row := range rows {
			v := row[name]
			values[r] = v
			if t == Unknown || t == Null {
				if inferred := inferType(v); inferred != Null {
					t = inferred
				} else {
					t = Null
				}
			}
		}
		if t == Unknown {
			t = Null
		}
		cols[i] = Column{Name: name, Type: t, Values: values}
	}
	return &Payload{Columns: cols}
}

func inferType(v any) ColumnType {
	switch v.(type) {
	case nil:
		return Null
	case string:
		return String
	case int, int32, int64:
		return Integer
	case float32, float64:
		return Floating
	case bool:
		return Boolean
	default:
		return String
	}
}

// Clone makes a deep-enough copy of the payload (new slices, same leaf
// values) so processing steps never mutate a previous step's output.
func (p *Payload) Clone() *Payload {
	cols := make([]Column, len(p.Columns))
	for i, c := range p.Columns {
		values := make([]any, len(c.Values))
		copy(values, c.Values)
		cols[i] = Column{Name: c.Name, Type: c.Type, Values: values}
	}
	return &Payload{Columns: cols}
}
