package jcs

import (
	"bytes"
	"crypto/sha256"
	"encoding"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/gowebpki/jcs"
)

// NonFiniteNumberError reports a NaN or infinite value, which has no JSON form.
type NonFiniteNumberError struct {
	Path  string
	Value float64
}

func (e *NonFiniteNumberError) Error() string {
	return fmt.Sprintf("canonicalize: non-finite number %v at %s", e.Value, e.Path)
}

// UnsupportedTypeError reports a value outside null, bool, number, string, array and
// string-keyed object.
type UnsupportedTypeError struct {
	Path string
	Type string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("canonicalize: unsupported type %s at %s", e.Type, e.Path)
}

var (
	jsonMarshalerType = reflect.TypeFor[json.Marshaler]()
	textMarshalerType = reflect.TypeFor[encoding.TextMarshaler]()
	numberType        = reflect.TypeFor[json.Number]()
	rawMessageType    = reflect.TypeFor[json.RawMessage]()
)

// Canonicalize returns the RFC 8785 (JCS) canonical form of a Go value. The value is
// checked in full before encoding, so a rejected value never yields partial output.
func Canonicalize(value any) ([]byte, error) {
	if err := check(reflect.ValueOf(value), "$"); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: encode value: %w", err)
	}
	return transform(raw)
}

// CanonicalizeJSON returns the RFC 8785 (JCS) canonical form of JSON input.
func CanonicalizeJSON(input []byte) ([]byte, error) {
	return transform(input)
}

// transform accepts any top-level JSON value. jcs.Transform only parses objects and
// arrays, so scalars go through a one-element array.
func transform(input []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(input)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("canonicalize: empty input")
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		return jcs.Transform(trimmed)
	}
	wrapped := make([]byte, 0, len(trimmed)+2)
	wrapped = append(wrapped, '[')
	wrapped = append(wrapped, trimmed...)
	wrapped = append(wrapped, ']')
	out, err := jcs.Transform(wrapped)
	if err != nil {
		return nil, err
	}
	if len(out) < 2 {
		return nil, fmt.Errorf("canonicalize: unexpected canonical form")
	}
	return out[1 : len(out)-1], nil
}

// DigestJCS canonicalizes JSON (RFC 8785) and returns a sha256 hex digest.
func DigestJCS(input []byte) (string, error) {
	canonical, err := CanonicalizeJSON(input)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func check(value reflect.Value, path string) error {
	if !value.IsValid() {
		return nil
	}
	valueType := value.Type()
	switch valueType {
	case numberType:
		return checkNumber(value.String(), path)
	case rawMessageType:
		return nil
	}
	if valueType.Implements(jsonMarshalerType) || valueType.Implements(textMarshalerType) {
		return nil
	}

	switch value.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return nil
	case reflect.Float32, reflect.Float64:
		number := value.Float()
		if math.IsNaN(number) || math.IsInf(number, 0) {
			return &NonFiniteNumberError{Path: path, Value: number}
		}
		return nil
	case reflect.Interface, reflect.Pointer:
		if value.IsNil() {
			return nil
		}
		return check(value.Elem(), path)
	case reflect.Slice:
		if valueType.Elem().Kind() == reflect.Uint8 {
			return &UnsupportedTypeError{Path: path, Type: valueType.String()}
		}
		return checkElements(value, path)
	case reflect.Array:
		return checkElements(value, path)
	case reflect.Map:
		if valueType.Key().Kind() != reflect.String {
			return &UnsupportedTypeError{Path: path, Type: valueType.String()}
		}
		iter := value.MapRange()
		for iter.Next() {
			if err := check(iter.Value(), path+"."+iter.Key().String()); err != nil {
				return err
			}
		}
		return nil
	case reflect.Struct:
		for index := 0; index < valueType.NumField(); index++ {
			field := valueType.Field(index)
			if !field.IsExported() && !field.Anonymous {
				continue
			}
			name, skip := fieldName(field)
			if skip {
				continue
			}
			if err := check(value.Field(index), path+"."+name); err != nil {
				return err
			}
		}
		return nil
	default:
		return &UnsupportedTypeError{Path: path, Type: valueType.String()}
	}
}

func checkElements(value reflect.Value, path string) error {
	for index := 0; index < value.Len(); index++ {
		if err := check(value.Index(index), path+"["+strconv.Itoa(index)+"]"); err != nil {
			return err
		}
	}
	return nil
}

func checkNumber(text, path string) error {
	number, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return &UnsupportedTypeError{Path: path, Type: "json.Number(" + text + ")"}
	}
	if math.IsNaN(number) || math.IsInf(number, 0) {
		return &NonFiniteNumberError{Path: path, Value: number}
	}
	return nil
}

func fieldName(field reflect.StructField) (string, bool) {
	tag := field.Tag.Get("json")
	if tag == "-" {
		return "", true
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		name = field.Name
	}
	return name, false
}
