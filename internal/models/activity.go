package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// LogKind names one of the four activity log arrays on a User.
type LogKind string

const (
	KindFood        LogKind = "food"
	KindTravel      LogKind = "travel"
	KindElectricity LogKind = "electricity"
	KindLifestyle   LogKind = "lifestyle"
)

// Kinds lists every log kind in the order they appear on a User.
var Kinds = []LogKind{KindFood, KindTravel, KindElectricity, KindLifestyle}

// ParseKind maps a path segment to a LogKind.
func ParseKind(s string) (LogKind, bool) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// Field returns the document field holding this kind's entries.
func (k LogKind) Field() string {
	return string(k) + "_logs"
}

// Label is the capitalised kind name used in user-facing messages.
func (k LogKind) Label() string {
	s := string(k)
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// ErrInvalidEntry is wrapped by Validate failures.
var ErrInvalidEntry = errors.New("invalid log entry")

// Entry is a single dated activity log of any kind.
type Entry interface {
	LogDate() string
	Kind() LogKind
	Validate() error
}

// FoodLog records the food items eaten on a day.
type FoodLog struct {
	Date  string   `json:"date"  bson:"date"`
	Items []string `json:"items" bson:"items"`
}

// TravelLog records one trip.
type TravelLog struct {
	Date       string  `json:"date"        bson:"date"`
	Mode       string  `json:"mode"        bson:"mode"`
	DistanceKM float64 `json:"distance_km" bson:"distance_km"`
}

// ElectricityLog records metered electricity use in kWh units.
type ElectricityLog struct {
	Date  string  `json:"date"  bson:"date"`
	Units float64 `json:"units" bson:"units"`
}

// LifestyleLog records the green habits practised on a day.
type LifestyleLog struct {
	Date   string   `json:"date"   bson:"date"`
	Habits []string `json:"habits" bson:"habits"`
}

func (e FoodLog) LogDate() string        { return e.Date }
func (e TravelLog) LogDate() string      { return e.Date }
func (e ElectricityLog) LogDate() string { return e.Date }
func (e LifestyleLog) LogDate() string   { return e.Date }

func (FoodLog) Kind() LogKind        { return KindFood }
func (TravelLog) Kind() LogKind      { return KindTravel }
func (ElectricityLog) Kind() LogKind { return KindElectricity }
func (LifestyleLog) Kind() LogKind   { return KindLifestyle }

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidEntry, fmt.Sprintf(format, args...))
}

func (e FoodLog) Validate() error {
	if e.Date == "" {
		return invalid("date is required")
	}
	return nil
}

func (e TravelLog) Validate() error {
	switch {
	case e.Date == "":
		return invalid("date is required")
	case e.Mode == "":
		return invalid("mode is required")
	case e.DistanceKM < 0:
		return invalid("distance_km must be >= 0")
	}
	return nil
}

func (e ElectricityLog) Validate() error {
	switch {
	case e.Date == "":
		return invalid("date is required")
	case e.Units < 0:
		return invalid("units must be >= 0")
	}
	return nil
}

func (e LifestyleLog) Validate() error {
	if e.Date == "" {
		return invalid("date is required")
	}
	return nil
}

// DecodeEntry reads a JSON body into the entry type for kind.
func DecodeEntry(kind LogKind, r io.Reader) (Entry, error) {
	dec := json.NewDecoder(r)
	switch kind {
	case KindFood:
		var e FoodLog
		err := dec.Decode(&e)
		if e.Items == nil {
			e.Items = []string{}
		}
		return e, err
	case KindTravel:
		var e TravelLog
		err := dec.Decode(&e)
		return e, err
	case KindElectricity:
		var e ElectricityLog
		err := dec.Decode(&e)
		return e, err
	case KindLifestyle:
		var e LifestyleLog
		err := dec.Decode(&e)
		if e.Habits == nil {
			e.Habits = []string{}
		}
		return e, err
	}
	return nil, fmt.Errorf("unknown log kind %q", kind)
}

// UnmarshalEntry decodes a stored JSON entry of the given kind.
func UnmarshalEntry(kind LogKind, data []byte) (Entry, error) {
	return DecodeEntry(kind, bytes.NewReader(data))
}
