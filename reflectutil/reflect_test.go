package reflectutil

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValuesEqual(t *testing.T) {
	one := 1
	otherOne := 1
	two := 2
	now := time.Now()

	testCases := []struct {
		description string
		a           interface{}
		b           interface{}
		want        bool
	}{
		{"equal ints", 1, 1, true},
		{"different ints", 1, 2, false},
		{"pointers to equal values", &one, &otherOne, true},
		{"pointers to different values", &one, &two, false},
		{"pointer and value", &one, 1, true},
		{"nil pointer and nil", (*int)(nil), nil, true},
		{"nil pointer and value", (*int)(nil), 1, false},
		{"same instant in different zones", now, now.UTC(), true},
		{"byte slices", []byte("a"), []byte("a"), true},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			assert.Equal(t, tc.want, ValuesEqual(tc.a, tc.b))
		})
	}
}

func TestKeyString(t *testing.T) {
	id := 42
	assert.Equal(t, "42", KeyString(42))
	assert.Equal(t, "42", KeyString(&id))
	assert.Equal(t, "a|7", KeyString("a", 7))
	assert.Equal(t, "<nil>", KeyString((*int)(nil)))
}

func TestGetStructValue(t *testing.T) {
	type model struct{ Name string }

	value, err := GetStructValue(&model{Name: "x"})
	assert.NoError(t, err)
	assert.Equal(t, "x", value.FieldByName("Name").Interface())

	_, err = GetStructValue(model{})
	assert.Error(t, err)

	_, err = GetStructValue((*model)(nil))
	assert.Error(t, err)

	n := 3
	_, err = GetStructValue(&n)
	assert.EqualError(t, err, "models must be pointers to structs, got pointer to int")
}

func TestIsZeroValue(t *testing.T) {
	assert.True(t, IsZeroValue(reflect.ValueOf(0)))
	assert.True(t, IsZeroValue(reflect.ValueOf("")))
	assert.False(t, IsZeroValue(reflect.ValueOf("a")))
	assert.True(t, IsZeroValue(reflect.Value{}))
	assert.True(t, IsNil((*int)(nil)))
	assert.False(t, IsNil(0))
}
