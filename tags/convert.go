package tags

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"reflect"
	"strconv"

	jsoniter "github.com/json-iterator/go"
)

var (
	scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
	valuerType  = reflect.TypeOf((*driver.Valuer)(nil)).Elem()
	json        = jsoniter.ConfigCompatibleWithStandardLibrary
)

// JSONConverter stores a field as a JSON document
type JSONConverter struct {
	fieldType reflect.Type
}

// NewJSONConverter returns a converter that decodes documents into fieldType
func NewJSONConverter(fieldType reflect.Type) *JSONConverter {
	return &JSONConverter{fieldType: fieldType}
}

// ToStore marshals the value to a JSON string
func (c *JSONConverter) ToStore(value interface{}) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface:
		if v.IsNil() {
			return nil, nil
		}
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return string(encoded), nil
}

// FromStore unmarshals a JSON document read as string or []byte
func (c *JSONConverter) FromStore(value interface{}) (interface{}, error) {
	var data []byte
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return nil, fmt.Errorf("can only decode JSON stored as text, got %T", value)
	}
	destination := reflect.New(c.fieldType)
	if err := json.Unmarshal(data, destination.Interface()); err != nil {
		return nil, err
	}
	return destination.Elem().Interface(), nil
}

/*
ConvertValue converts a value read from a driver into t. It looks through
pointers on both sides, uses sql.Scanner when *t implements it, and otherwise
relies on reflect conversions that keep the value's meaning.
*/
func ConvertValue(value interface{}, t reflect.Type) (interface{}, error) {
	if value == nil {
		return reflect.Zero(t).Interface(), nil
	}

	v := reflect.ValueOf(value)
	if v.Type() == t {
		return value, nil
	}

	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return reflect.Zero(t).Interface(), nil
		}
		return ConvertValue(v.Elem().Interface(), t)
	}

	if t.Kind() == reflect.Ptr {
		inner, err := ConvertValue(value, t.Elem())
		if err != nil {
			return nil, err
		}
		ptr := reflect.New(t.Elem())
		ptr.Elem().Set(reflect.ValueOf(inner))
		return ptr.Interface(), nil
	}

	if reflect.PtrTo(t).Implements(scannerType) {
		ptr := reflect.New(t)
		if err := ptr.Interface().(sql.Scanner).Scan(value); err != nil {
			return nil, err
		}
		return ptr.Elem().Interface(), nil
	}

	if bytes, ok := value.([]byte); ok {
		switch t.Kind() {
		case reflect.String:
			return reflect.ValueOf(string(bytes)).Convert(t).Interface(), nil
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64, reflect.Bool:
			return ConvertValue(string(bytes), t)
		}
	}

	switch t.Kind() {
	case reflect.String:
		if v.Kind() != reflect.String {
			return nil, fmt.Errorf("cannot convert %T to %s", value, t)
		}
	case reflect.Bool:
		switch v.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return reflect.ValueOf(v.Int() != 0).Convert(t).Interface(), nil
		case reflect.String:
			parsed, err := strconv.ParseBool(v.String())
			if err != nil {
				return nil, err
			}
			return reflect.ValueOf(parsed).Convert(t).Interface(), nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if v.Kind() == reflect.String {
			parsed, err := strconv.ParseInt(v.String(), 10, 64)
			if err != nil {
				return nil, err
			}
			return reflect.ValueOf(parsed).Convert(t).Interface(), nil
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if v.Kind() == reflect.String {
			parsed, err := strconv.ParseUint(v.String(), 10, 64)
			if err != nil {
				return nil, err
			}
			return reflect.ValueOf(parsed).Convert(t).Interface(), nil
		}
	case reflect.Float32, reflect.Float64:
		if v.Kind() == reflect.String {
			parsed, err := strconv.ParseFloat(v.String(), 64)
			if err != nil {
				return nil, err
			}
			return reflect.ValueOf(parsed).Convert(t).Interface(), nil
		}
	case reflect.Array:
		if v.Kind() == reflect.Slice && v.Len() != t.Len() {
			return nil, fmt.Errorf("cannot convert %T of length %d to %s", value, v.Len(), t)
		}
	}

	if v.Type().ConvertibleTo(t) {
		return v.Convert(t).Interface(), nil
	}
	return nil, fmt.Errorf("cannot convert %T to %s", value, t)
}

// toDriverValue dereferences pointers that don't implement driver.Valuer
func toDriverValue(value interface{}) interface{} {
	if value == nil {
		return nil
	}
	v := reflect.ValueOf(value)
	for v.Kind() == reflect.Ptr {
		if v.Type().Implements(valuerType) && !v.IsNil() {
			return v.Interface()
		}
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	return v.Interface()
}
