package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/Sternrassler/webreq/pkg/client"
	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"
)

// Output formats for drained items.
const (
	formatJSON  = "json"
	formatYAML  = "yaml"
	formatTable = "table"
)

func validateFormat(format string) error {
	switch format {
	case formatJSON, formatYAML, formatTable:
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want json, yaml or table)", format)
	}
}

// writeItems renders drained items in the requested format.
func writeItems(w io.Writer, format string, items []json.RawMessage) error {
	switch format {
	case formatJSON:
		data, err := client.Marshal(items)
		if err != nil {
			return fmt.Errorf("encode items: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err

	case formatYAML:
		values, err := decodeItems(items)
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(values); err != nil {
			return fmt.Errorf("encode items: %w", err)
		}
		return enc.Close()

	case formatTable:
		values, err := decodeItems(items)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, renderTable(values))
		return err

	default:
		return validateFormat(format)
	}
}

func decodeItems(items []json.RawMessage) ([]any, error) {
	values := make([]any, 0, len(items))
	for i, raw := range items {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode item %d: %w", i, err)
		}
		values = append(values, v)
	}
	return values, nil
}

// renderTable lays objects out with one column per key. Scalars and
// arrays go into a single "value" column.
func renderTable(values []any) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)

	columns := objectColumns(values)
	if columns == nil {
		t.AppendHeader(table.Row{"#", "value"})
		for i, v := range values {
			t.AppendRow(table.Row{i + 1, cell(v)})
		}
		t.AppendFooter(table.Row{"", fmt.Sprintf("%d items", len(values))})
		return t.Render()
	}

	header := table.Row{"#"}
	for _, c := range columns {
		header = append(header, c)
	}
	t.AppendHeader(header)

	for i, v := range values {
		obj := v.(map[string]any)
		row := table.Row{i + 1}
		for _, c := range columns {
			value, ok := obj[c]
			if !ok {
				row = append(row, "")
				continue
			}
			row = append(row, cell(value))
		}
		t.AppendRow(row)
	}

	footer := make(table.Row, len(header))
	footer[0] = ""
	footer[1] = fmt.Sprintf("%d items", len(values))
	for i := 2; i < len(footer); i++ {
		footer[i] = ""
	}
	t.AppendFooter(footer)
	return t.Render()
}

// objectColumns returns the sorted union of keys when every value is a
// non-empty set of JSON objects, and nil otherwise.
func objectColumns(values []any) []string {
	if len(values) == 0 {
		return nil
	}
	seen := map[string]struct{}{}
	for _, v := range values {
		obj, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		for key := range obj {
			seen[key] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}

	columns := make([]string, 0, len(seen))
	for key := range seen {
		columns = append(columns, key)
	}
	sort.Strings(columns)
	return columns
}

func cell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	}
}
