package core

import "reflect"

var clonerType = reflect.TypeFor[Cloner]()

// pointerKey identifies an already copied pointer so shared and cyclic
// references are copied once
type pointerKey struct {
	ptr uintptr
	typ reflect.Type
}

// deepCopy copies slices, arrays, maps, pointers, interfaces and the exported
// fields of structs recursively. Unexported struct fields, channels and
// functions are shared; types holding such state implement Cloner.
func deepCopy(v any) any {
	if v == nil {
		return nil
	}
	seen := make(map[pointerKey]reflect.Value)
	return copyReflect(reflect.ValueOf(v), seen).Interface()
}

func copyReflect(v reflect.Value, seen map[pointerKey]reflect.Value) reflect.Value {
	if c, ok := cloneValue(v); ok {
		return c
	}

	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return v
		}
		key := pointerKey{ptr: v.Pointer(), typ: v.Type()}
		if out, ok := seen[key]; ok {
			return out
		}
		out := reflect.New(v.Type().Elem())
		seen[key] = out
		out.Elem().Set(copyReflect(v.Elem(), seen))
		return out

	case reflect.Interface:
		if v.IsNil() {
			return v
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(copyReflect(v.Elem(), seen))
		return out

	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := range v.Len() {
			out.Index(i).Set(copyReflect(v.Index(i), seen))
		}
		return out

	case reflect.Array:
		out := reflect.New(v.Type()).Elem()
		for i := range v.Len() {
			out.Index(i).Set(copyReflect(v.Index(i), seen))
		}
		return out

	case reflect.Map:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), copyReflect(iter.Value(), seen))
		}
		return out

	case reflect.Struct:
		out := reflect.New(v.Type()).Elem()
		out.Set(v)
		for i := range v.NumField() {
			if f := out.Field(i); f.CanSet() {
				f.Set(copyReflect(v.Field(i), seen))
			}
		}
		return out

	default:
		return v
	}
}

// cloneValue defers to Cloner when v implements it and the clone has a
// compatible type
func cloneValue(v reflect.Value) (reflect.Value, bool) {
	if !v.IsValid() || !v.CanInterface() || !v.Type().Implements(clonerType) {
		return reflect.Value{}, false
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		if v.IsNil() {
			return reflect.Value{}, false
		}
	}

	c := reflect.ValueOf(v.Interface().(Cloner).Clone())
	if !c.IsValid() || !c.Type().AssignableTo(v.Type()) {
		return reflect.Value{}, false
	}
	return c, true
}
