// Package errors provides error classification helpers for metrics and logs.
package errors

import (
	goerrors "errors"
	"reflect"
	"strings"
)

var nameReplacer = strings.NewReplacer("*", "", ".", "_")

// Classify returns a normalized error type name suitable for tagging
// metrics and logs. It unwraps to the innermost error and lowercases the
// concrete type name.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	return typeName(innermost(err))
}

func innermost(err error) error {
	for {
		next := goerrors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

func typeName(err error) string {
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}

	name := strings.ToLower(nameReplacer.Replace(t.String()))
	if name == "" {
		return "unknown"
	}
	return name
}
