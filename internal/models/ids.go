package models

import (
	"bytes"
	"encoding/json"
)

// ID is a Tranzy entity identifier. The upstream API is inconsistent about
// whether identifiers arrive as JSON numbers or strings (agency and stop ids
// are numeric, trip ids are strings), so ID accepts both and normalizes to
// the string form. A JSON null becomes the empty ID.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }
