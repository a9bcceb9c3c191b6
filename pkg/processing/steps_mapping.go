package processing

import (
	"context"
	"strings"

	"github.com/adflow-io/adflow/pkg/tabular"
)

func init() {
	defaultRegistry.Register("add_company", stepAddCompany)
	defaultRegistry.Register("rename_column", stepRenameColumn)
	defaultRegistry.Register("extract_id_from_urn", stepExtractIDFromURN)
	defaultRegistry.Register("modify_urn_account", stepModifyURNAccount)
}

// stepAddCompany adds a company column derived from a static account_id ->
// company_id mapping, the account-to-customer join every platform's
// campaign table needs before it can be grouped across accounts.
func stepAddCompany(_ context.Context, payload *tabular.Payload, params map[string]any) (*tabular.Payload, error) {
	accountColumn := paramString(params, "account_column", "account_id")
	outputColumn := paramString(params, "output_column", "company")
	mapping := paramStringMap(params, "mapping")

	src, ok := payload.Column(accountColumn)
	if !ok {
		return nil, &missingColumnError{accountColumn}
	}

	out := payload.Clone()
	values := make([]any, payload.RowCount())
	for i, v := range src.Values {
		accountID, _ := v.(string)
		values[i] = mapping[accountID]
	}
	out.Columns = append(out.Columns, tabular.Column{Name: outputColumn, Type: tabular.String, Values: values})
	return out, nil
}

// stepRenameColumn renames columns per an old-name -> new-name mapping,
// leaving unmapped columns untouched.
func stepRenameColumn(_ context.Context, payload *tabular.Payload, params map[string]any) (*tabular.Payload, error) {
	mapping := paramStringMap(params, "mapping")
	out := payload.Clone()
	for i, c := range out.Columns {
		if newName, ok := mapping[c.Name]; ok {
			out.Columns[i].Name = newName
		}
	}
	return out, nil
}

// lastURNSegment returns the trailing component of a colon-delimited URN
// like "urn:li:sponsoredAccount:123" -> "123".
func lastURNSegment(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return s
	}
	return s[idx+1:]
}

// stepExtractIDFromURN replaces each named column's URN-shaped string with
// the trailing numeric id segment.
func stepExtractIDFromURN(_ context.Context, payload *tabular.Payload, params map[string]any) (*tabular.Payload, error) {
	columns := paramStrings(params, "columns")
	out := payload.Clone()
	for _, name := range columns {
		col, ok := out.Column(name)
		if !ok {
			return nil, &missingColumnError{name}
		}
		for i, v := range col.Values {
			col.Values[i] = lastURNSegment(v)
		}
	}
	return out, nil
}

// stepModifyURNAccount extracts the account id out of a single URN column,
// writing it to output_column (defaulting to overwriting the source).
func stepModifyURNAccount(_ context.Context, payload *tabular.Payload, params map[string]any) (*tabular.Payload, error) {
	column, err := requireString(params, "column")
	if err != nil {
		return nil, err
	}
	outputColumn := paramString(params, "output_column", column)

	src, ok := payload.Column(column)
	if !ok {
		return nil, &missingColumnError{column}
	}

	values := make([]any, len(src.Values))
	for i, v := range src.Values {
		values[i] = lastURNSegment(v)
	}

	out := payload.Clone()
	if existing, ok := out.Column(outputColumn); ok {
		existing.Values = values
		return out, nil
	}
	out.Columns = append(out.Columns, tabular.Column{Name: outputColumn, Type: tabular.String, Values: values})
	return out, nil
}

type missingColumnError struct{ name string }

func (e *missingColumnError) Error() string {
	return "processing: column \"" + e.name + "\" not found in payload"
}
