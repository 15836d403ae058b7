// Package patch provides field wrappers for partial updates that tell
// "not provided" apart from "explicitly null".
package patch

import (
	"bytes"
	"encoding/json"
	"errors"
)

// ErrNullOptional is returned when an Optional field is sent as JSON null.
// Fields that can be cleared use Nullable.
var ErrNullOptional = errors.New("patch: null is not allowed for this field")

var jsonNull = []byte("null")

// Optional is a field that may be omitted from a patch. A present field
// always carries a value.
type Optional[T any] struct {
	Value T
	Set   bool
}

// Some returns a present Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Set: true}
}

// Get returns the value and whether it was provided.
func (o Optional[T]) Get() (T, bool) {
	return o.Value, o.Set
}

// OrElse returns the value when provided, def otherwise.
func (o Optional[T]) OrElse(def T) T {
	if o.Set {
		return o.Value
	}
	return def
}

// UnmarshalJSON marks the field as provided. It is only invoked when the key
// exists in the payload.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), jsonNull) {
		return ErrNullOptional
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = v
	o.Set = true
	return nil
}

// Nullable is a field that may be omitted, set to a value, or explicitly
// cleared.
type Nullable[T any] struct {
	Value T
	Set   bool
	Null  bool
}

// Value returns a present, non-null Nullable holding v.
func Value[T any](v T) Nullable[T] {
	return Nullable[T]{Value: v, Set: true}
}

// Null returns a present Nullable that clears the field.
func Null[T any]() Nullable[T] {
	return Nullable[T]{Set: true, Null: true}
}

// Ptr returns nil for null and a pointer to a copy of the value otherwise.
func (n Nullable[T]) Ptr() *T {
	if !n.Set || n.Null {
		return nil
	}
	v := n.Value
	return &v
}

// Apply returns the patched pointer: current when omitted, nil when null.
func (n Nullable[T]) Apply(current *T) *T {
	if !n.Set {
		return current
	}
	return n.Ptr()
}

func (n *Nullable[T]) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(data), jsonNull) {
		n.Null = true
		var zero T
		n.Value = zero
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	n.Value = v
	n.Null = false
	return nil
}
