package util

import (
	"fmt"
	"reflect"
)

// IsStructInitialized reports the first nil pointer, interface, map or slice
// field of the struct s points to. Fields tagged `wire:"-"` are skipped.
func IsStructInitialized(s interface{}) error {
	v := reflect.ValueOf(s)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return fmt.Errorf("expected struct, got %s", v.Kind())
	}

	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		if field.Tag.Get("wire") == "-" || !field.IsExported() {
			continue
		}

		switch f := v.Field(i); f.Kind() {
		case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func:
			if f.IsNil() {
				return fmt.Errorf("struct field %s is not initialized", field.Name)
			}
		}
	}

	return nil
}
