package warehouse

import (
	"strings"
)

// Bulk-format delimiters. The unit separator (0x1f) is chosen as the field
// delimiter because it is absent from any ordinary text payload a platform
// would ever return; it, the record separator, and the escape character
// itself are the only bytes that require escaping, so EncodeRows/DecodeRows
// round-trip any string value without ambiguity.
const (
	fieldSep  = "\x1f"
	recordSep = "\n"
	escapeCh  = "\\"
	nullToken = "\x00N"
)

var encodeReplacer = strings.NewReplacer(
	escapeCh, escapeCh+escapeCh,
	fieldSep, escapeCh+fieldSep,
	recordSep, escapeCh+recordSep,
)

// EncodeRows renders rows (each a slice of string-rendered cell values, one
// per column in schema order) into the bulk wire format: one record per
// line, fields separated by the unit separator, escaped values, and a
// distinct null sentinel so an empty string and a null are never confused.
func EncodeRows(rows [][]*string) string {
	var b strings.Builder
	for _, row := range rows {
		for i, cell := range row {
			if i > 0 {
				b.WriteString(fieldSep)
			}
			if cell == nil {
				b.WriteString(nullToken)
				continue
			}
			b.WriteString(encodeReplacer.Replace(*cell))
		}
		b.WriteString(recordSep)
	}
	return b.String()
}

// DecodeRows parses the bulk wire format back into rows of nullable string
// cells, the exact inverse of EncodeRows.
func DecodeRows(data string) [][]*string {
	if data == "" {
		return nil
	}
	lines := strings.Split(strings.TrimSuffix(data, recordSep), recordSep)
	rows := make([][]*string, 0, len(lines))
	for _, line := range lines {
		rows = append(rows, decodeLine(line))
	}
	return rows
}

func decodeLine(line string) []*string {
	var fields []*string
	var cur strings.Builder
	escaped := false
	flush := func() {
		s := cur.String()
		if s == nullToken {
			fields = append(fields, nil)
		} else {
			v := s
			fields = append(fields, &v)
		}
		cur.Reset()
	}
	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case string(r) == escapeCh:
			escaped = true
		case string(r) == fieldSep:
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return fields
}
