package backend

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// ToRow converts a record (struct with json tags, map or Row) into a Row by round-tripping
// it through JSON, so column names always match the json tags.
func ToRow(record any) (Row, error) {
	if r, ok := record.(Row); ok {
		return r, nil
	}
	b, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	var row Row
	if err := json.Unmarshal(b, &row); err != nil {
		return nil, fmt.Errorf("record must encode to a JSON object: %w", err)
	}
	for col := range row {
		if !ValidIdentifier(col) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidIdentifier, col)
		}
	}
	return row, nil
}

// Decode unmarshals JSON into dest after checking dest is a non-nil pointer.
// A nil dest is a no-op.
func Decode(data []byte, dest any) error {
	if dest == nil {
		return nil
	}
	v := reflect.ValueOf(dest)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return ErrInvalidDest
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decode rows: %w", err)
	}
	return nil
}

// Columns returns the keys of row in sorted order, so generated statements are stable.
func Columns(row Row) []string {
	cols := make([]string, 0, len(row))
	for k := range row {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}
