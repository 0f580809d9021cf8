package test

import (
	"fmt"
	"reflect"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
)

// AssertDeepCopyEqual checks that a and b hold the same values without
// sharing any memory, unexported fields included. Snapshots handed out by
// the driver are checked with it.
func AssertDeepCopyEqual(t *testing.T, a any, b any) {
	t.Helper()
	v1 := reflect.ValueOf(a)
	v2 := reflect.ValueOf(b)

	if !assert.Equal(t, v1.Type(), v2.Type()) {
		return
	}

	c := deepCopyChecker{t: t}
	c.check(v1, v2, v1.Type().String())
}

type deepCopyChecker struct {
	t *testing.T
}

func (c deepCopyChecker) check(v1, v2 reflect.Value, name string) bool {
	switch v1.Kind() {
	case reflect.Array:
		return c.elements(v1, v2, name)

	case reflect.Slice:
		if v1.IsNil() || v2.IsNil() {
			return assert.Equal(c.t, v1.IsNil(), v2.IsNil(), "%s are not both nil", name)
		}
		if !assert.Equal(c.t, v1.Len(), v2.Len(), "%s did not have the same length", name) {
			return false
		}
		if v1.Cap() > 0 && v2.Cap() > 0 && overlap(v1, v2) {
			return assert.Fail(c.t, "", "%s share some underlying memory", name)
		}
		return c.elements(v1, v2, name)

	case reflect.Interface:
		if v1.IsNil() || v2.IsNil() {
			return assert.Equal(c.t, v1.IsNil(), v2.IsNil(), "%s are not both nil", name)
		}
		return c.check(v1.Elem(), v2.Elem(), name)

	case reflect.Pointer:
		if v1.IsNil() || v2.IsNil() {
			return assert.Equal(c.t, v1.IsNil(), v2.IsNil(), "%s are not both nil", name)
		}
		if !assert.NotEqual(c.t, v1.Pointer(), v2.Pointer(), "%s points to the same memory", name) {
			return false
		}
		return c.check(v1.Elem(), v2.Elem(), name)

	case reflect.Struct:
		for i, n := 0, v1.NumField(); i < n; i++ {
			if !c.check(v1.Field(i), v2.Field(i), name+"."+v1.Type().Field(i).Name) {
				return false
			}
		}
		return true

	case reflect.Map:
		if v1.IsNil() || v2.IsNil() {
			return assert.Equal(c.t, v1.IsNil(), v2.IsNil(), "%s are not both nil", name)
		}
		if !assert.Equal(c.t, v1.Len(), v2.Len(), "%s are not the same length", name) {
			return false
		}
		if !assert.NotEqual(c.t, v1.Pointer(), v2.Pointer(), "%s point to the same memory", name) {
			return false
		}
		for _, k := range v1.MapKeys() {
			val2 := v2.MapIndex(k)
			if !assert.True(c.t, val2.IsValid(), "%v is missing from %s", k, name) {
				return false
			}
			if !c.check(v1.MapIndex(k), val2, fmt.Sprintf("%s[%v]", name, k)) {
				return false
			}
		}
		return true

	default:
		return assert.Equal(c.t, readable(v1), readable(v2), "%s was not equal", name)
	}
}

func (c deepCopyChecker) elements(v1, v2 reflect.Value, name string) bool {
	for i := 0; i < v1.Len(); i++ {
		if !c.check(v1.Index(i), v2.Index(i), fmt.Sprintf("%s[%d]", name, i)) {
			return false
		}
	}
	return true
}

// overlap reports whether the backing arrays of two slices intersect.
func overlap(v1, v2 reflect.Value) bool {
	size := v1.Type().Elem().Size()
	s1, e1 := v1.Pointer(), v1.Pointer()+uintptr(v1.Cap())*size
	s2, e2 := v2.Pointer(), v2.Pointer()+uintptr(v2.Cap())*size
	return s1 < e2 && s2 < e1
}

// readable returns the value of v even when it was reached through an
// unexported field.
func readable(v reflect.Value) any {
	if v.CanInterface() {
		return v.Interface()
	}
	if v.CanAddr() {
		return reflect.NewAt(v.Type(), unsafe.Pointer(v.UnsafeAddr())).Elem().Interface()
	}
	return fmt.Sprintf("%v", v)
}
