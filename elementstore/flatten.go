// Copyright (c) 2020 Siemens AG
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
//
// Author(s): Jonas Plum

package elementstore

import (
	"reflect"
	"strconv"
)

// flatten turns a nested element into a map one level deep. Keys of nested
// maps and indices of lists are joined with dots, so {"a": {"b": [1]}}
// becomes {"a.b.0": 1}. Nil values are dropped.
func flatten(nested map[string]interface{}) map[string]interface{} {
	flat := map[string]interface{}{}
	flattenInto(flat, "", reflect.ValueOf(nested))
	return flat
}

func flattenInto(flat map[string]interface{}, prefix string, value reflect.Value) {
	for value.Kind() == reflect.Interface || value.Kind() == reflect.Ptr {
		if value.IsNil() {
			return
		}
		value = value.Elem()
	}

	switch value.Kind() {
	case reflect.Invalid:
		return
	case reflect.Map:
		for _, k := range value.MapKeys() {
			flattenInto(flat, join(prefix, k.String()), value.MapIndex(k))
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < value.Len(); i++ {
			flattenInto(flat, join(prefix, strconv.Itoa(i)), value.Index(i))
		}
	default:
		flat[prefix] = value.Interface()
	}
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
