package convert

import (
	"bytes"
	"encoding"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/c360/streamrelay/errors"
)

// MaxDepth bounds recursion into nested values
const MaxDepth = 64

// MaxNodes bounds the number of values visited in one conversion. Shared
// sub-values are visited once per reference.
const MaxNodes = 1 << 20

// Canonical is implemented by payload types that can render themselves as
// a JSON-compatible value.
type Canonical interface {
	CanonicalJSON() (any, error)
}

var (
	jsonMarshalerType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
	canonicalType     = reflect.TypeOf((*Canonical)(nil)).Elem()
	jsonNumberType    = reflect.TypeOf(json.Number(""))
	stringerType      = reflect.TypeOf((*fmt.Stringer)(nil)).Elem()
	errorType         = reflect.TypeOf((*error)(nil)).Elem()
)

// ToJSON converts v into a JSON-compatible value. It fails only if
// conversion panics in a way the per-value guards did not catch.
func ToJSON(v any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = errors.WrapInvalid(
				fmt.Errorf("%w: conversion panic: %v", errors.ErrInvalidData, r),
				"convert", "ToJSON", "convert value")
		}
	}()

	c := &converter{visiting: make(map[visitKey]struct{})}
	return c.convert(reflect.ValueOf(v), 0), nil
}

// visitKey identifies a map, slice or pointer on the current path
type visitKey struct {
	ptr uintptr
	typ reflect.Type
	len int
}

type converter struct {
	nodes    int
	visiting map[visitKey]struct{}
}

// enter marks rv as being converted. ok is false when rv is already on the
// path, which means the value contains itself.
func (c *converter) enter(rv reflect.Value) (leave func(), ok bool) {
	key := visitKey{ptr: rv.Pointer(), typ: rv.Type()}
	if rv.Kind() == reflect.Slice {
		key.len = rv.Len()
	}
	if _, seen := c.visiting[key]; seen {
		return nil, false
	}
	c.visiting[key] = struct{}{}
	return func() { delete(c.visiting, key) }, true
}

func (c *converter) convert(rv reflect.Value, depth int) any {
	if !rv.IsValid() {
		return nil
	}
	c.nodes++
	if depth > MaxDepth || c.nodes > MaxNodes {
		return fmt.Sprintf("<%s>", rv.Type())
	}

	if out, ok := c.selfDescribed(rv, depth); ok {
		return out
	}

	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.String:
		if rv.Type() == jsonNumberType {
			return json.Number(rv.String())
		}
		return rv.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint()
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return f
	case reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return c.convert(rv.Elem(), depth+1)
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		leave, ok := c.enter(rv)
		if !ok {
			return nil
		}
		defer leave()
		return c.convert(rv.Elem(), depth+1)
	case reflect.Slice:
		if rv.IsNil() {
			return nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return nil
		}
		leave, ok := c.enter(rv)
		if !ok {
			return nil
		}
		defer leave()
		return c.sequence(rv, depth)
	case reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return nil
		}
		return c.sequence(rv, depth)
	case reflect.Map:
		if rv.IsNil() {
			return nil
		}
		leave, ok := c.enter(rv)
		if !ok {
			return nil
		}
		defer leave()
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[keyString(iter.Key())] = c.convert(iter.Value(), depth+1)
		}
		return out
	case reflect.Struct:
		return c.convertStruct(rv, depth)
	}

	return text(rv)
}

func (c *converter) sequence(rv reflect.Value, depth int) []any {
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = c.convert(rv.Index(i), depth+1)
	}
	return out
}

// pointerImplements reports whether *T has one of the interfaces for a
// value of type T
func pointerImplements(rv reflect.Value, ifaces ...reflect.Type) bool {
	if rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		return false
	}
	pt := reflect.PointerTo(rv.Type())
	for _, iface := range ifaces {
		if pt.Implements(iface) {
			return true
		}
	}
	return false
}

// pointerTo returns a pointer to rv, or to a copy of it when rv is not
// addressable, so methods with pointer receivers can be found
func pointerTo(rv reflect.Value) (reflect.Value, bool) {
	if rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		return reflect.Value{}, false
	}
	if rv.CanAddr() {
		return rv.Addr(), true
	}
	if !rv.CanInterface() {
		return reflect.Value{}, false
	}
	p := reflect.New(rv.Type())
	p.Elem().Set(rv)
	return p, true
}

// selfDescribed applies Canonical and json.Marshaler implementations,
// including those on pointer receivers. ok is false when the value has
// neither or its implementation failed.
func (c *converter) selfDescribed(rv reflect.Value, depth int) (out any, ok bool) {
	if rv.Kind() == reflect.Pointer && rv.IsNil() {
		return nil, false
	}
	if !rv.CanInterface() {
		return nil, false
	}
	if out, ok := c.describe(rv, depth); ok {
		return out, true
	}
	if pointerImplements(rv, canonicalType, jsonMarshalerType) {
		if p, ok := pointerTo(rv); ok {
			return c.describe(p, depth)
		}
	}
	return nil, false
}

func (c *converter) describe(rv reflect.Value, depth int) (out any, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			out, ok = nil, false
		}
	}()

	if rv.Type().Implements(canonicalType) {
		v, err := rv.Interface().(Canonical).CanonicalJSON()
		if err != nil {
			return nil, false
		}
		return c.convert(reflect.ValueOf(v), depth+1), true
	}

	if rv.Type().Implements(jsonMarshalerType) {
		data, err := rv.Interface().(json.Marshaler).MarshalJSON()
		if err != nil {
			return nil, false
		}
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, false
		}
		return v, true
	}

	return nil, false
}

func (c *converter) convertStruct(rv reflect.Value, depth int) any {
	rt := rv.Type()
	out := make(map[string]any, rt.NumField())

	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}

		name := field.Name
		omitEmpty := false
		if tag, ok := field.Tag.Lookup("json"); ok {
			parts := strings.Split(tag, ",")
			if parts[0] == "-" && len(parts) == 1 {
				continue
			}
			if parts[0] != "" {
				name = parts[0]
			}
			for _, opt := range parts[1:] {
				if opt == "omitempty" {
					omitEmpty = true
				}
			}
		}

		fv := rv.Field(i)
		if omitEmpty && fv.IsZero() {
			continue
		}

		// Untagged embedded structs are flattened like encoding/json does
		if field.Anonymous && name == field.Name && fv.Kind() == reflect.Struct {
			if embedded, ok := c.convertStruct(fv, depth+1).(map[string]any); ok {
				for k, v := range embedded {
					if _, exists := out[k]; !exists {
						out[k] = v
					}
				}
				continue
			}
		}

		out[name] = c.convert(fv, depth+1)
	}

	if len(out) == 0 && rt.NumField() > 0 {
		return text(rv)
	}
	return out
}

func keyString(k reflect.Value) string {
	if k.Kind() == reflect.Interface && !k.IsNil() {
		k = k.Elem()
	}
	if k.Kind() == reflect.String {
		return k.String()
	}
	if k.CanInterface() {
		if tm, ok := k.Interface().(encoding.TextMarshaler); ok {
			if b, err := tm.MarshalText(); err == nil {
				return string(b)
			}
		}
	}
	return text(k)
}

func text(rv reflect.Value) string {
	if s, ok := stringer(rv); ok {
		return s
	}
	if pointerImplements(rv, stringerType, errorType) {
		if p, ok := pointerTo(rv); ok {
			if s, ok := stringer(p); ok {
				return s
			}
		}
	}
	if !rv.CanInterface() {
		return fmt.Sprintf("<%s>", rv.Type())
	}
	switch rv.Kind() {
	case reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return fmt.Sprintf("<%s>", rv.Type())
	}
	return fmt.Sprint(rv.Interface())
}

func stringer(rv reflect.Value) (s string, ok bool) {
	if !rv.CanInterface() {
		return "", false
	}
	defer func() {
		if r := recover(); r != nil {
			s, ok = "", false
		}
	}()

	switch v := rv.Interface().(type) {
	case fmt.Stringer:
		return v.String(), true
	case error:
		return v.Error(), true
	}
	return "", false
}
