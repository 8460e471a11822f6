package serializer

import (
	"encoding"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/oriys/tasklet/internal/domain"
)

const maxDepth = 64

// structuralChecker walks a value and rejects anything a structural codec
// would either fail on or silently reshape (structs become maps, etc).
type structuralChecker struct {
	codec      string
	allowBytes bool

	// accepts lists concrete types passed through unchanged, such as
	// json.Number or cbor.RawMessage. Other marshalers are rejected since
	// they come back reshaped (a time.Time becomes a string).
	accepts []reflect.Type

	// maxInt, when set, is the largest integer magnitude the codec decodes
	// exactly.
	maxInt uint64
}

func (c structuralChecker) check(v any) error {
	return c.walk(reflect.ValueOf(v), "value", 0)
}

func (c structuralChecker) walk(v reflect.Value, path string, depth int) error {
	if !v.IsValid() {
		return nil
	}
	if depth > maxDepth {
		return fmt.Errorf("%w: %s serializer: %s is nested deeper than %d levels", domain.ErrSerialization, c.codec, path, maxDepth)
	}
	for _, t := range c.accepts {
		if v.Type() == t {
			return c.checkAccepted(v, path)
		}
	}
	if v.Kind() != reflect.Interface && v.Kind() != reflect.Pointer && implementsMarshaler(v.Type()) {
		return c.reject(v.Type(), path)
	}

	switch v.Kind() {
	case reflect.Bool, reflect.String:
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := v.Int()
		if n < 0 {
			return c.checkInt(uint64(-(n+1))+1, fmt.Sprint(n), path)
		}
		return c.checkInt(uint64(n), fmt.Sprint(n), path)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return c.checkInt(v.Uint(), fmt.Sprint(v.Uint()), path)
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: %s serializer cannot represent %v at %s", domain.ErrSerialization, c.codec, f, path)
		}
		return nil
	case reflect.Interface, reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		if v.Kind() == reflect.Pointer && implementsMarshaler(v.Type()) && !implementsMarshaler(v.Type().Elem()) {
			return c.reject(v.Type(), path)
		}
		return c.walk(v.Elem(), path, depth+1)
	case reflect.Slice:
		if v.IsNil() {
			return nil
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			if c.allowBytes {
				return nil
			}
			return c.reject(v.Type(), path)
		}
		fallthrough
	case reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if err := c.walk(v.Index(i), fmt.Sprintf("%s[%d]", path, i), depth+1); err != nil {
				return err
			}
		}
		return nil
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return c.reject(v.Type(), path)
		}
		iter := v.MapRange()
		for iter.Next() {
			if err := c.walk(iter.Value(), fmt.Sprintf("%s[%q]", path, iter.Key().String()), depth+1); err != nil {
				return err
			}
		}
		return nil
	default:
		return c.reject(v.Type(), path)
	}
}

var (
	jsonMarshalerType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
	cborMarshalerType = reflect.TypeOf((*cbor.Marshaler)(nil)).Elem()
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
)

func implementsMarshaler(t reflect.Type) bool {
	return t.Implements(jsonMarshalerType) || t.Implements(cborMarshalerType) || t.Implements(textMarshalerType)
}

func (c structuralChecker) checkAccepted(v reflect.Value, path string) error {
	n, ok := v.Interface().(json.Number)
	if !ok {
		return nil
	}
	lit := n.String()
	if u, err := strconv.ParseUint(strings.TrimPrefix(lit, "-"), 10, 64); err == nil {
		return c.checkInt(u, lit, path)
	}
	if isIntegerLiteral(lit) {
		return c.checkInt(math.MaxUint64, lit, path)
	}
	if _, err := n.Float64(); err != nil {
		return fmt.Errorf("%w: %s serializer: %q at %s is not a number", domain.ErrSerialization, c.codec, lit, path)
	}
	return nil
}

func isIntegerLiteral(s string) bool {
	if strings.HasPrefix(s, "-") {
		s = s[1:]
	}
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (c structuralChecker) checkInt(magnitude uint64, literal, path string) error {
	if c.maxInt == 0 || magnitude <= c.maxInt {
		return nil
	}
	return fmt.Errorf("%w: the %s serializer cannot carry the integer %s (at %s) exactly: its numbers decode as "+
		"float64, which is exact only up to 2^53. Pass it as a string or use serializer.CBOR()",
		domain.ErrSerialization, c.codec, literal, path)
}

func (c structuralChecker) reject(t reflect.Type, path string) error {
	return fmt.Errorf("%w: the %s serializer cannot represent %s (at %s). It only carries structural data: "+
		"nil, booleans, numbers, strings, lists and string-keyed maps. If you need to pass Go values, trust every "+
		"caller of your functions and understand that gob only works between identical builds, use serializer.Gob()",
		domain.ErrSerialization, c.codec, t, path)
}
