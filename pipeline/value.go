package pipeline

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"time"
	"unicode/utf8"
)

// Span locates a piece of the caller's source text, used for error attribution.
type Span struct {
	Start int
	End   int
}

// IsZero reports whether the span carries no provenance.
func (s Span) IsZero() bool {
	return s.Start == 0 && s.End == 0
}

// Value is one typed value flowing through a pipeline.
//
// The set of implementations is closed: Nothing, Bool, Int, Float, String,
// Binary, Date, List, Record and ErrorValue.
type Value interface {
	// Span returns where the value originated.
	Span() Span

	// TypeName names the value's type for error messages.
	TypeName() string

	isValue()
}

type Nothing struct{ Pos Span }

type Bool struct {
	Val bool
	Pos Span
}

type Int struct {
	Val int64
	Pos Span
}

type Float struct {
	Val float64
	Pos Span
}

type String struct {
	Val string
	Pos Span
}

type Binary struct {
	Val []byte
	Pos Span
}

type Date struct {
	Val time.Time
	Pos Span
}

// List is an ordered sequence of values.
type List struct {
	Vals []Value
	Pos  Span
}

// Record is an ordered set of named columns.
type Record struct {
	Cols []string
	Vals []Value
	Pos  Span
}

// ErrorValue carries an error produced upstream. It is data in the pipeline
// but must never be written out as bytes.
type ErrorValue struct {
	Err error
	Pos Span
}

func (v Nothing) Span() Span    { return v.Pos }
func (v Bool) Span() Span       { return v.Pos }
func (v Int) Span() Span        { return v.Pos }
func (v Float) Span() Span      { return v.Pos }
func (v String) Span() Span     { return v.Pos }
func (v Binary) Span() Span     { return v.Pos }
func (v Date) Span() Span       { return v.Pos }
func (v List) Span() Span       { return v.Pos }
func (v Record) Span() Span     { return v.Pos }
func (v ErrorValue) Span() Span { return v.Pos }

func (Nothing) TypeName() string    { return "nothing" }
func (Bool) TypeName() string       { return "bool" }
func (Int) TypeName() string        { return "int" }
func (Float) TypeName() string      { return "float" }
func (String) TypeName() string     { return "string" }
func (Binary) TypeName() string     { return "binary" }
func (Date) TypeName() string       { return "date" }
func (List) TypeName() string       { return "list" }
func (Record) TypeName() string     { return "record" }
func (ErrorValue) TypeName() string { return "error" }

func (Nothing) isValue()    {}
func (Bool) isValue()       {}
func (Int) isValue()        {}
func (Float) isValue()      {}
func (String) isValue()     {}
func (Binary) isValue()     {}
func (Date) isValue()       {}
func (List) isValue()       {}
func (Record) isValue()     {}
func (ErrorValue) isValue() {}

// Get returns the value of column name.
func (r Record) Get(name string) (Value, bool) {
	for i, c := range r.Cols {
		if c == name {
			return r.Vals[i], true
		}
	}
	return nil, false
}

// CoerceString returns the string representation of v.
//
// Lists, records and binaries that are not valid UTF-8 cannot be coerced and
// fail with CoercionFailed. An ErrorValue yields its carried error unchanged.
func CoerceString(v Value) (string, error) {
	switch v := v.(type) {
	case String:
		return v.Val, nil
	case Int:
		return strconv.FormatInt(v.Val, 10), nil
	case Float:
		return strconv.FormatFloat(v.Val, 'f', -1, 64), nil
	case Bool:
		return strconv.FormatBool(v.Val), nil
	case Date:
		return v.Val.Format(time.RFC3339), nil
	case Nothing:
		return "", nil
	case Binary:
		if !utf8.Valid(v.Val) {
			return "", cantConvert(v, "binary data is not valid UTF-8")
		}
		return string(v.Val), nil
	case ErrorValue:
		return "", v.Err
	case nil:
		return "", NewError(CoercionFailed, "coerce", nil).WithMessage("missing value")
	}
	return "", cantConvert(v, "")
}

func cantConvert(v Value, detail string) *Error {
	e := NewError(CoercionFailed, "coerce", nil).WithSpan(v.Span())
	if detail != "" {
		return e.WithMessage("can't convert %s to string: %s", v.TypeName(), detail)
	}
	return e.WithMessage("can't convert %s to string", v.TypeName())
}

// FirstError returns the error carried by the first ErrorValue found in v,
// searching lists and records depth first, or nil when there is none.
func FirstError(v Value) error {
	switch v := v.(type) {
	case ErrorValue:
		return v.Err
	case List:
		for _, item := range v.Vals {
			if err := FirstError(item); err != nil {
				return err
			}
		}
	case Record:
		for _, item := range v.Vals {
			if err := FirstError(item); err != nil {
				return err
			}
		}
	}
	return nil
}

// ToNative converts v into plain Go values suitable for encoders:
// nil, bool, int64, float64, string, []byte, time.Time, []any and
// map[string]any. Record column order is lost; use Record directly when it
// matters.
func ToNative(v Value) (any, error) {
	switch v := v.(type) {
	case Nothing:
		return nil, nil
	case Bool:
		return v.Val, nil
	case Int:
		return v.Val, nil
	case Float:
		return v.Val, nil
	case String:
		return v.Val, nil
	case Binary:
		return v.Val, nil
	case Date:
		return v.Val, nil
	case List:
		out := make([]any, 0, len(v.Vals))
		for _, item := range v.Vals {
			n, err := ToNative(item)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil
	case Record:
		out := make(map[string]any, len(v.Cols))
		for i, c := range v.Cols {
			n, err := ToNative(v.Vals[i])
			if err != nil {
				return nil, err
			}
			out[c] = n
		}
		return out, nil
	case ErrorValue:
		return nil, v.Err
	}
	return nil, fmt.Errorf("unsupported value %T", v)
}

// FromNative converts decoded Go data (for instance from encoding/json) into
// a Value. Map keys become record columns in sorted order.
func FromNative(x any, span Span) Value {
	switch x := x.(type) {
	case nil:
		return Nothing{Pos: span}
	case bool:
		return Bool{Val: x, Pos: span}
	case int:
		return Int{Val: int64(x), Pos: span}
	case int64:
		return Int{Val: x, Pos: span}
	case float64:
		if x == float64(int64(x)) && x >= -1<<53 && x <= 1<<53 {
			return Int{Val: int64(x), Pos: span}
		}
		return Float{Val: x, Pos: span}
	case string:
		return String{Val: x, Pos: span}
	case []byte:
		return Binary{Val: x, Pos: span}
	case time.Time:
		return Date{Val: x, Pos: span}
	case []any:
		vals := make([]Value, 0, len(x))
		for _, item := range x {
			vals = append(vals, FromNative(item, span))
		}
		return List{Vals: vals, Pos: span}
	case map[string]any:
		cols := slices.Sorted(maps.Keys(x))
		vals := make([]Value, 0, len(cols))
		for _, c := range cols {
			vals = append(vals, FromNative(x[c], span))
		}
		return Record{Cols: cols, Vals: vals, Pos: span}
	case error:
		return ErrorValue{Err: x, Pos: span}
	}
	return String{Val: fmt.Sprint(x), Pos: span}
}
