package engine

import (
	"encoding/json"
	"math"
	"strconv"
)

// Cell is one value of a hypercube or list-object matrix.
//
// The display text is authoritative; Num is the optional numeric component
// and is nil for non-numeric cells (the engine reports those as "NaN").
// Exports render Text, statistics read Num.
type Cell struct {
	Text      string
	Num       *float64
	IsNumeric bool
	State     string
	Frequency *int64
}

// wireCell matches the engine's qMatrix cell shape. qNum arrives either as
// a JSON number or as the string "NaN"; qFrequency as a string.
type wireCell struct {
	Text      string          `json:"qText"`
	Num       json.RawMessage `json:"qNum"`
	IsNumeric bool            `json:"qIsNumeric"`
	State     string          `json:"qState"`
	Frequency json.RawMessage `json:"qFrequency"`
}

func (c *Cell) UnmarshalJSON(data []byte) error {
	var w wireCell
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	c.Text = w.Text
	c.IsNumeric = w.IsNumeric
	c.State = w.State
	c.Num = coerceNum(w.Num)
	if f := coerceNum(w.Frequency); f != nil {
		n := int64(*f)
		c.Frequency = &n
	}
	return nil
}

func (c Cell) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"qText":      c.Text,
		"qIsNumeric": c.IsNumeric,
	}
	if c.Num != nil {
		out["qNum"] = *c.Num
	} else {
		out["qNum"] = "NaN"
	}
	if c.State != "" {
		out["qState"] = c.State
	}
	if c.Frequency != nil {
		out["qFrequency"] = strconv.FormatInt(*c.Frequency, 10)
	}
	return json.Marshal(out)
}

// coerceNum accepts a JSON number, a numeric string, or "NaN"/null and
// returns the numeric component, nil when there is none.
func coerceNum(raw json.RawMessage) *float64 {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		if math.IsNaN(f) {
			return nil
		}
		return &f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) {
			return &f
		}
	}
	return nil
}
