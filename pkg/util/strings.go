// Package util holds small generic helpers.
package util

import (
	"fmt"

	"k8s.io/apimachinery/pkg/util/json"
)

// Map applies f to every element of a slice: (a -> b) -> [a] -> [b].
func Map[T, U any](f func(T) U, s []T) []U {
	result := make([]U, len(s))
	for i, v := range s {
		result[i] = f(v)
	}
	return result
}

// Stringify renders a value as compact JSON, or in Go syntax if it cannot be marshaled.
func Stringify(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}
	return string(b)
}
