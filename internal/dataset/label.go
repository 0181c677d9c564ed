package dataset

import (
	"cmp"
	"strconv"
	"strings"
	"time"
)

// LabelKind is the type of a coordinate value.
type LabelKind uint8

const (
	KindNumber LabelKind = iota + 1
	KindString
	KindTime
	KindTuple
)

func (k LabelKind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindTime:
		return "time"
	case KindTuple:
		return "tuple"
	}
	return "invalid"
}

// Label is a single coordinate value. Tuple labels are the members of a
// stacked dimension, one part per stacked source dimension.
type Label struct {
	kind  LabelKind
	num   float64
	str   string
	nanos int64
	parts []Label
}

// Number returns a numeric label. Negative zero is folded into zero.
func Number(f float64) Label {
	if f == 0 {
		f = 0
	}
	return Label{kind: KindNumber, num: f}
}

// String returns a string label.
func String(s string) Label { return Label{kind: KindString, str: s} }

// Time returns a time label. Times are normalised to UTC.
func Time(t time.Time) Label { return Label{kind: KindTime, nanos: t.UTC().UnixNano()} }

// Tuple returns a multi-index label.
func Tuple(parts ...Label) Label {
	return Label{kind: KindTuple, parts: append([]Label(nil), parts...)}
}

// Numbers builds numeric labels from values.
func Numbers(vals ...float64) []Label {
	out := make([]Label, len(vals))
	for i, v := range vals {
		out[i] = Number(v)
	}
	return out
}

// Strings builds string labels from values.
func Strings(vals ...string) []Label {
	out := make([]Label, len(vals))
	for i, v := range vals {
		out[i] = String(v)
	}
	return out
}

// Times builds time labels from values.
func Times(vals ...time.Time) []Label {
	out := make([]Label, len(vals))
	for i, v := range vals {
		out[i] = Time(v)
	}
	return out
}

func (l Label) Kind() LabelKind { return l.kind }
func (l Label) Float() float64 { return l.num }
func (l Label) Str() string { return l.str }
func (l Label) Time() time.Time { return time.Unix(0, l.nanos).UTC() }
func (l Label) Parts() []Label { return l.parts }
func (l Label) IsZero() bool { return l.kind == 0 }

// Key is the canonical identity of the label; two labels are equal exactly
// when their keys are equal.
func (l Label) Key() string {
	var b strings.Builder
	l.writeKey(&b)
	return b.String()
}

func (l Label) writeKey(b *strings.Builder) {
	switch l.kind {
	case KindNumber:
		b.WriteString("n:")
		b.WriteString(strconv.FormatFloat(l.num, 'g', -1, 64))
	case KindString:
		b.WriteString("s:")
		b.WriteString(strconv.Quote(l.str))
	case KindTime:
		b.WriteString("t:")
		b.WriteString(strconv.FormatInt(l.nanos, 10))
	case KindTuple:
		b.WriteString("(")
		for i, p := range l.parts {
			if i > 0 {
				b.WriteString(",")
			}
			p.writeKey(b)
		}
		b.WriteString(")")
	}
}

// Equal reports whether l and o denote the same coordinate value.
func (l Label) Equal(o Label) bool {
	if l.kind != o.kind {
		return false
	}
	switch l.kind {
	case KindNumber:
		return l.num == o.num
	case KindString:
		return l.str == o.str
	case KindTime:
		return l.nanos == o.nanos
	case KindTuple:
		if len(l.parts) != len(o.parts) {
			return false
		}
		for i := range l.parts {
			if !l.parts[i].Equal(o.parts[i]) {
				return false
			}
		}
		return true
	}
	return true
}

// Compare orders labels of the same kind by value. Labels of different kinds
// are ordered by kind.
func (l Label) Compare(o Label) int {
	if l.kind != o.kind {
		return cmp.Compare(l.kind, o.kind)
	}
	switch l.kind {
	case KindNumber:
		return cmp.Compare(l.num, o.num)
	case KindString:
		return strings.Compare(l.str, o.str)
	case KindTime:
		return cmp.Compare(l.nanos, o.nanos)
	case KindTuple:
		for i := 0; i < len(l.parts) && i < len(o.parts); i++ {
			if c := l.parts[i].Compare(o.parts[i]); c != 0 {
				return c
			}
		}
		return cmp.Compare(len(l.parts), len(o.parts))
	}
	return 0
}

// String renders the label the way it appears in generated names.
func (l Label) String() string {
	switch l.kind {
	case KindNumber:
		return strconv.FormatFloat(l.num, 'f', -1, 64)
	case KindString:
		return l.str
	case KindTime:
		return l.Time().Format(time.RFC3339)
	case KindTuple:
		parts := make([]string, len(l.parts))
		for i, p := range l.parts {
			parts[i] = p.String()
		}
		return "(" + strings.Join(parts, ", ") + ")"
	}
	return "<invalid>"
}
