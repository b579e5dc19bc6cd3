/* Package reflectutil contains basic go reflection utility funcs
 */
package reflectutil

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// KeySeparator joins the parts of a composite key string
const KeySeparator = "|"

// IsZeroValue returns true if the value provided is the zero value for its type
func IsZeroValue(v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}
	if v.CanInterface() {
		return reflect.DeepEqual(v.Interface(), reflect.Zero(v.Type()).Interface())
	}
	return false
}

// IsNil returns true for nil interfaces and nil pointers, maps, slices and funcs
func IsNil(value interface{}) bool {
	if value == nil {
		return true
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

// GetStructValue returns the struct value a non-nil pointer to a struct points at
func GetStructValue(model interface{}) (reflect.Value, error) {
	value := reflect.ValueOf(model)
	if value.Kind() != reflect.Ptr || value.IsNil() {
		return reflect.Value{}, errors.New("models must be non-nil pointers to structs")
	}
	value = value.Elem()
	if value.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("models must be pointers to structs, got pointer to %s", value.Kind())
	}
	return value, nil
}

// Deref follows pointers until it reaches a non-pointer value, returning nil for nil pointers
func Deref(value interface{}) interface{} {
	v := reflect.ValueOf(value)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return nil
	}
	return v.Interface()
}

// ValuesEqual compares two property values, looking through pointers
func ValuesEqual(a, b interface{}) bool {
	a, b = Deref(a), Deref(b)
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		return ok && at.Equal(bt)
	}
	return reflect.DeepEqual(a, b)
}

// KeyString formats key values into a single comparable string
func KeyString(values ...interface{}) string {
	parts := make([]string, len(values))
	for i, value := range values {
		parts[i] = fmt.Sprintf("%v", Deref(value))
	}
	return strings.Join(parts, KeySeparator)
}
