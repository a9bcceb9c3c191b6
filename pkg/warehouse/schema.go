package warehouse

import (
	"context"
	"fmt"
)

// TableSchema is resolved from the warehouse catalog at load time, never
// declared in source, so the sink always aligns against the table's actual
// live definition.
type TableSchema struct {
	Table      string
	PKColumns  []string
	ColumnType map[string]ColumnKind
	ColumnOrder []string
}

// ColumnKind is the warehouse-native type family a column resolves to,
// independent of the tabular package's ColumnType used on the wire.
type ColumnKind int

const (
	KindUnknown ColumnKind = iota
	KindString
	KindInt64
	KindFloat64
	KindBool
	KindDate
	KindDateTime
)

// KindNullable is a bit flag combined with one of the base kinds above to
// mark a warehouse column as Nullable(...).
const KindNullable ColumnKind = 1 << 4

// LoadSchema introspects column names, types and primary-key membership for
// table via system.columns, the catalog table ClickHouse itself exposes
// query access to.
func LoadSchema(ctx context.Context, conn Connection, database, table string) (*TableSchema, error) {
	rows, err := conn.Query(ctx, `
		SELECT name, type, is_in_primary_key
		FROM system.columns
		WHERE database = ? AND table = ?
		ORDER BY position
	`, database, table)
	if err != nil {
		return nil, fmt.Errorf("warehouse: load schema for %s: %w", table, err)
	}
	defer rows.Close()

	schema := &TableSchema{
		Table:      table,
		ColumnType: map[string]ColumnKind{},
	}
	for rows.Next() {
		var (
			name, chType string
			inPK         uint8
		)
		if err := rows.Scan(&name, &chType, &inPK); err != nil {
			return nil, fmt.Errorf("warehouse: scan schema row: %w", err)
		}
		schema.ColumnOrder = append(schema.ColumnOrder, name)
		schema.ColumnType[name] = classifyColumnType(chType)
		if inPK != 0 {
			schema.PKColumns = append(schema.PKColumns, name)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(schema.ColumnOrder) == 0 {
		return nil, fmt.Errorf("warehouse: table %s.%s not found", database, table)
	}
	return schema, nil
}

// DetectPKColumns returns schema's catalog primary key, excluding any
// date-typed column when mode is Increment: an increment table's key is the
// entity alone, never the reporting date, per its cumulative-over-lifetime
// semantics.
func DetectPKColumns(schema *TableSchema, mode LoadMode) []string {
	if mode != Increment {
		return schema.PKColumns
	}
	out := make([]string, 0, len(schema.PKColumns))
	for _, name := range schema.PKColumns {
		if schema.ColumnType[name].Base() == KindDate || schema.ColumnType[name].Base() == KindDateTime {
			continue
		}
		out = append(out, name)
	}
	return out
}

func classifyColumnType(chType string) ColumnKind {
	base := chType
	nullable := false
	if len(base) > 10 && base[:9] == "Nullable(" {
		nullable = true
		base = base[9 : len(base)-1]
	}
	var kind ColumnKind
	switch {
	case base == "String" || base == "FixedString":
		kind = KindString
	case base == "Bool":
		kind = KindBool
	case base == "Date" || base == "Date32":
		kind = KindDate
	case len(base) >= 8 && base[:8] == "DateTime":
		kind = KindDateTime
	case isIntType(base):
		kind = KindInt64
	case base == "Float32" || base == "Float64":
		kind = KindFloat64
	default:
		kind = KindString
	}
	if nullable {
		return KindNullable | kind
	}
	return kind
}

func isIntType(base string) bool {
	switch base {
	case "Int8", "Int16", "Int32", "Int64", "Int128", "Int256",
		"UInt8", "UInt16", "UInt32", "UInt64", "UInt128", "UInt256":
		return true
	default:
		return false
	}
}

// Nullable reports whether a column is Nullable.
func (k ColumnKind) Nullable() bool { return k&KindNullable != 0 }

// Base strips the nullable flag.
func (k ColumnKind) Base() ColumnKind { return k &^ KindNullable }
