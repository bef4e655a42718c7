package model

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Source identifies which upstream a reading came from.
type Source string

const (
	SourceHistorical Source = "historical"
	SourceLive       Source = "live"
)

// SensorReading is one normalized point of the merged series.
// Timestamp is epoch seconds; immutable once constructed.
type SensorReading struct {
	Timestamp    float64 `json:"timestamp"`
	Temperature  float64 `json:"temperature"`
	Humidity     float64 `json:"humidity"`
	SoilMoisture float64 `json:"soil_moisture"`
	Source       Source  `json:"source"`
}

// TimestampKind tags the shape the raw timestamp field arrived in.
type TimestampKind int

const (
	TimestampAbsent TimestampKind = iota
	TimestampNumeric
	TimestampText
)

// TimestampField is the tagged variant for the heterogeneous raw timestamp:
// upstream writes it sometimes as a number (seconds or millis), sometimes as
// a string, sometimes not at all.
type TimestampField struct {
	Kind    TimestampKind
	Numeric float64
	Text    string
}

func NumericTimestamp(v float64) TimestampField {
	return TimestampField{Kind: TimestampNumeric, Numeric: v}
}

func TextTimestamp(s string) TimestampField {
	return TimestampField{Kind: TimestampText, Text: s}
}

// UnmarshalJSON accepts number, string or null.
func (t *TimestampField) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		*t = TimestampField{Kind: TimestampAbsent}
		return nil
	}
	if s[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		if strings.TrimSpace(str) == "" {
			*t = TimestampField{Kind: TimestampAbsent}
			return nil
		}
		*t = TextTimestamp(str)
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*t = NumericTimestamp(f)
	return nil
}

func (t TimestampField) MarshalJSON() ([]byte, error) {
	switch t.Kind {
	case TimestampNumeric:
		return json.Marshal(t.Numeric)
	case TimestampText:
		return json.Marshal(t.Text)
	default:
		return []byte("null"), nil
	}
}

// RawRecord is one unnormalized historical record as the source stores it.
// DatetimeText, when present, is authoritative over Timestamp.
type RawRecord struct {
	Temperature  float64        `json:"temperature"`
	Humidity     float64        `json:"humidity"`
	SoilMoisture float64        `json:"soil_moisture"`
	Timestamp    TimestampField `json:"timestamp"`
	DatetimeText string         `json:"datetime,omitempty"`
}
