package pagination

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// NumberedPage is one page of an offset-paginated response.
type NumberedPage[T any] interface {
	PagedItems() []T
}

// CursorPage is one page of a cursor-paginated response.
type CursorPage[T any] interface {
	PagedItems() []T

	// NextPageCursor returns the continuation token, or nil on the last page.
	NextPageCursor() *string
}

// FieldPage decodes a page whose items and cursor live under top-level
// JSON fields chosen at runtime. Items are kept as raw JSON.
type FieldPage struct {
	ItemsField  string
	CursorField string

	items  []json.RawMessage
	cursor *string
}

// NewFieldPage creates a page reading items from itemsField and the cursor
// from cursorField. cursorField may be empty for offset pagination.
func NewFieldPage(itemsField, cursorField string) *FieldPage {
	return &FieldPage{
		ItemsField:  itemsField,
		CursorField: cursorField,
	}
}

// UnmarshalJSON implements json.Unmarshaler. A missing or null items field
// is an empty page; a missing, null or empty cursor ends the drain.
func (p *FieldPage) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("page is not a JSON object: %w", err)
	}

	p.items = nil
	p.cursor = nil

	if raw, ok := fields[p.ItemsField]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &p.items); err != nil {
			return fmt.Errorf("field %q is not an array: %w", p.ItemsField, err)
		}
	}

	if p.CursorField == "" {
		return nil
	}
	if raw, ok := fields[p.CursorField]; ok && !isNull(raw) {
		var cursor string
		if err := json.Unmarshal(raw, &cursor); err != nil {
			return fmt.Errorf("field %q is not a string: %w", p.CursorField, err)
		}
		if cursor != "" {
			p.cursor = &cursor
		}
	}
	return nil
}

// PagedItems returns the decoded items.
func (p *FieldPage) PagedItems() []json.RawMessage {
	return p.items
}

// NextPageCursor returns the decoded cursor.
func (p *FieldPage) NextPageCursor() *string {
	return p.cursor
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
