package provider

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// The Gamma API is inconsistent about types: numeric fields arrive as
// numbers or quoted strings, and list fields sometimes arrive as
// JSON-encoded strings. These wrappers absorb both shapes.

type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*f = flexFloat(v)
		return nil
	}

	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

type flexStrings []string

func (f *flexStrings) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = nil
		return nil
	}

	// Double-encoded form: "[\"Yes\", \"No\"]"
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*f = nil
			return nil
		}
		var out []string
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return err
		}
		*f = out
		return nil
	}

	var out []string
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*f = out
	return nil
}

type flexFloats []float64

func (f *flexFloats) UnmarshalJSON(data []byte) error {
	var raw flexStrings
	if err := raw.UnmarshalJSON(data); err != nil {
		// Plain numeric array
		var nums []float64
		if numErr := json.Unmarshal(bytes.TrimSpace(data), &nums); numErr == nil {
			*f = nums
			return nil
		}
		return err
	}

	out := make([]float64, 0, len(raw))
	for _, s := range raw {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		out = append(out, v)
	}
	*f = out
	return nil
}
