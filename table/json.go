package table

import (
	"encoding/json"
	"io"
)

// WriteJSON writes the tables as indented JSON. Class ids are written as numbers
// rather than the base64 encoding/json uses for byte slices.
func (t *Tables) WriteJSON(out io.Writer) error {
	ids := make([]int, len(t.ClassIDs))
	for i, id := range t.ClassIDs {
		ids[i] = int(id)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		*Tables
		ClassIDs []int `json:"class_ids"`
	}{t, ids})
}

func ReadJSON(in io.Reader) (*Tables, error) {
	var v struct {
		*Tables
		ClassIDs []uint8 `json:"class_ids"`
	}
	v.Tables = &Tables{}
	if err := json.NewDecoder(in).Decode(&v); err != nil {
		return nil, err
	}
	v.Tables.ClassIDs = v.ClassIDs
	if err := v.Tables.validate(); err != nil {
		return nil, err
	}
	return v.Tables, nil
}
