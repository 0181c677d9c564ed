package cdfcodec

import (
	"fmt"
	"reflect"
)

var float64Type = reflect.TypeOf(float64(0))

// nest lays row-major data out as nested slices, [][]float64 for two
// dims and so on. A scalar is returned as a plain float64.
func nest(data []float64, shape []int) any {
	if len(shape) == 0 {
		return data[0]
	}
	t := float64Type
	for range shape {
		t = reflect.SliceOf(t)
	}
	return build(t, data, shape).Interface()
}

func build(t reflect.Type, data []float64, shape []int) reflect.Value {
	n := shape[0]
	out := reflect.MakeSlice(t, n, n)
	if len(shape) == 1 {
		reflect.Copy(out, reflect.ValueOf(data))
		return out
	}
	if n == 0 {
		return out
	}
	inner := len(data) / n
	for i := 0; i < n; i++ {
		out.Index(i).Set(build(t.Elem(), data[i*inner:(i+1)*inner], shape[1:]))
	}
	return out
}

// flatten is the inverse of nest for any numeric element type.
func flatten(values any) ([]float64, []int, error) {
	rv := reflect.ValueOf(values)
	if !rv.IsValid() {
		return nil, nil, fmt.Errorf("variable holds no values")
	}

	var shape []int
	v := rv
	for t := rv.Type(); t.Kind() == reflect.Slice; t = t.Elem() {
		n := 0
		if v.IsValid() {
			n = v.Len()
		}
		shape = append(shape, n)
		if n > 0 {
			v = v.Index(0)
		} else {
			v = reflect.Value{}
		}
	}

	size := 1
	for _, n := range shape {
		size *= n
	}
	data := make([]float64, 0, size)
	var walk func(v reflect.Value, depth int) error
	walk = func(v reflect.Value, depth int) error {
		if depth == len(shape) {
			f, ok := number(v)
			if !ok {
				return fmt.Errorf("unsupported element type %s", v.Type())
			}
			data = append(data, f)
			return nil
		}
		if v.Len() != shape[depth] {
			return fmt.Errorf("ragged array: length %d along axis %d, want %d", v.Len(), depth, shape[depth])
		}
		for i := 0; i < v.Len(); i++ {
			if err := walk(v.Index(i), depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(rv, 0); err != nil {
		return nil, nil, err
	}
	return data, shape, nil
}

func number(v reflect.Value) (float64, bool) {
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		return v.Float(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint()), true
	}
	return 0, false
}
