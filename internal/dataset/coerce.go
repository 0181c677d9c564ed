package dataset

import (
	"fmt"
	"strings"
	"time"

	"github.com/zclconf/go-cty/cty"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTime accepts ISO-8601 timestamps with optional seconds and zone.
// Times without a zone are taken as UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not an ISO-8601 timestamp", s)
}

// LabelFromValue converts a configuration value into a label of the given
// kind. Strings are parsed as timestamps for time indexes; numbers given as
// strings are accepted for numeric indexes.
func LabelFromValue(v cty.Value, kind LabelKind) (Label, error) {
	if v.IsNull() || !v.IsKnown() {
		return Label{}, fmt.Errorf("value is null")
	}
	switch kind {
	case KindTime:
		if v.Type() != cty.String {
			return Label{}, fmt.Errorf("time coordinate needs a timestamp string, got %s", v.Type().FriendlyName())
		}
		t, err := ParseTime(v.AsString())
		if err != nil {
			return Label{}, err
		}
		return Time(t), nil
	case KindNumber:
		switch v.Type() {
		case cty.Number:
			f, _ := v.AsBigFloat().Float64()
			return Number(f), nil
		case cty.String:
			n, err := cty.ParseNumberVal(v.AsString())
			if err != nil {
				return Label{}, fmt.Errorf("numeric coordinate needs a number, got %q", v.AsString())
			}
			f, _ := n.AsBigFloat().Float64()
			return Number(f), nil
		}
	case KindString:
		switch v.Type() {
		case cty.String:
			return String(v.AsString()), nil
		case cty.Number:
			return String(v.AsBigFloat().Text('f', -1)), nil
		}
	case 0:
		return inferLabel(v)
	}
	return Label{}, fmt.Errorf("cannot use %s value as %s coordinate", v.Type().FriendlyName(), kind)
}

// inferLabel is used when the index is empty and offers no kind to match.
func inferLabel(v cty.Value) (Label, error) {
	switch v.Type() {
	case cty.Number:
		f, _ := v.AsBigFloat().Float64()
		return Number(f), nil
	case cty.String:
		if t, err := ParseTime(v.AsString()); err == nil {
			return Time(t), nil
		}
		return String(v.AsString()), nil
	}
	return Label{}, fmt.Errorf("cannot use %s value as a coordinate", v.Type().FriendlyName())
}

// Coerce converts a configuration value into a label comparable with the
// index's members.
func (ix *Index) Coerce(v cty.Value) (Label, error) {
	l, err := LabelFromValue(v, ix.Kind())
	if err != nil {
		return Label{}, fmt.Errorf("dim %q: %w", ix.Dim, err)
	}
	return l, nil
}

// CoerceAll converts a list of configuration values.
func (ix *Index) CoerceAll(vals []cty.Value) ([]Label, error) {
	out := make([]Label, len(vals))
	for i, v := range vals {
		l, err := ix.Coerce(v)
		if err != nil {
			return nil, err
		}
		out[i] = l
	}
	return out, nil
}
