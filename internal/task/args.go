package task

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/go-viper/mapstructure/v2"
	"github.com/oriys/tasklet/internal/serializer"
)

// Args are the arguments a task function receives. Values arrive in the shape
// the serializer produced: structural codecs yield float64 or int64 numbers,
// []any and map[string]any; gob yields the original types.
type Args struct {
	Positional []any
	Keyword    map[string]any
}

type keyword struct {
	name  string
	value any
}

// Kw passes value as the keyword argument name. Mix it into the argument list
// of any dispatch method:
//
//	t.Invoke(ctx, 2, 3, task.Kw("round", true))
func Kw(name string, value any) any {
	return keyword{name: name, value: value}
}

// splitArgs separates Kw values from positional ones. A repeated keyword keeps
// its last value.
func splitArgs(in []any) Args {
	a := Args{Positional: []any{}, Keyword: map[string]any{}}
	for _, v := range in {
		if kw, ok := v.(keyword); ok {
			a.Keyword[kw.name] = kw.value
			continue
		}
		a.Positional = append(a.Positional, v)
	}
	return a
}

// Len returns the number of positional arguments.
func (a Args) Len() int { return len(a.Positional) }

// At returns positional argument i, or nil when absent.
func (a Args) At(i int) any {
	if i < 0 || i >= len(a.Positional) {
		return nil
	}
	return a.Positional[i]
}

// Kw returns keyword argument name.
func (a Args) Kw(name string) (any, bool) {
	v, ok := a.Keyword[name]
	return v, ok
}

// KeywordNames returns the keyword names in sorted order.
func (a Args) KeywordNames() []string {
	names := make([]string, 0, len(a.Keyword))
	for k := range a.Keyword {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (a Args) positional(i int) (any, error) {
	if i < 0 || i >= len(a.Positional) {
		return nil, &ArgError{Index: i, Msg: fmt.Sprintf("missing positional argument %d (got %d)", i, len(a.Positional))}
	}
	return a.Positional[i], nil
}

// Int returns positional argument i as an int. Integral floats are accepted
// because JSON carries every number as float64.
func (a Args) Int(i int) (int, error) {
	v, err := a.positional(i)
	if err != nil {
		return 0, err
	}
	n, ok := toInt(v)
	if !ok {
		return 0, &ArgError{Index: i, Msg: fmt.Sprintf("argument %d: expected an integer, got %T", i, v)}
	}
	return n, nil
}

// Float returns positional argument i as a float64.
func (a Args) Float(i int) (float64, error) {
	v, err := a.positional(i)
	if err != nil {
		return 0, err
	}
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case json.Number:
		f, err := x.Float64()
		if err == nil {
			return f, nil
		}
	default:
		if n, ok := toInt(v); ok {
			return float64(n), nil
		}
	}
	return 0, &ArgError{Index: i, Msg: fmt.Sprintf("argument %d: expected a number, got %T", i, v)}
}

// String returns positional argument i as a string.
func (a Args) String(i int) (string, error) {
	v, err := a.positional(i)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", &ArgError{Index: i, Msg: fmt.Sprintf("argument %d: expected a string, got %T", i, v)}
	}
	return s, nil
}

// Bool returns positional argument i as a bool.
func (a Args) Bool(i int) (bool, error) {
	v, err := a.positional(i)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, &ArgError{Index: i, Msg: fmt.Sprintf("argument %d: expected a bool, got %T", i, v)}
	}
	return b, nil
}

// Bind decodes positional argument i into out, which must be a pointer.
// Decoding is weakly typed: a map becomes a struct, a float64 an int.
func (a Args) Bind(i int, out any) error {
	v, err := a.positional(i)
	if err != nil {
		return err
	}
	if err := bind(v, out); err != nil {
		return &ArgError{Index: i, Msg: fmt.Sprintf("argument %d: %v", i, err)}
	}
	return nil
}

// BindKw decodes keyword argument name into out.
func (a Args) BindKw(name string, out any) error {
	v, ok := a.Keyword[name]
	if !ok {
		return &ArgError{Index: -1, Name: name, Msg: fmt.Sprintf("missing keyword argument %q", name)}
	}
	if err := bind(v, out); err != nil {
		return &ArgError{Index: -1, Name: name, Msg: fmt.Sprintf("argument %q: %v", name, err)}
	}
	return nil
}

func bind(v, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "json",
	})
	if err != nil {
		return err
	}
	return dec.Decode(v)
}

func toInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int8:
		return int(x), true
	case int16:
		return int(x), true
	case int32:
		return int(x), true
	case int64:
		return int(x), true
	case uint8:
		return int(x), true
	case uint16:
		return int(x), true
	case uint32:
		return int(x), true
	case uint64:
		if x > math.MaxInt {
			return 0, false
		}
		return int(x), true
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) {
			return 0, false
		}
		return int(x), true
	case json.Number:
		n, err := x.Int64()
		return int(n), err == nil
	}
	return 0, false
}

// ArgError reports an argument the function could not use. It is an ordinary
// error raised by task code and travels back to the caller like any other.
type ArgError struct {
	// Index is the positional index, or -1 for a keyword argument.
	Index int
	Name  string
	Msg   string
}

func (e *ArgError) Error() string { return e.Msg }
func (e *ArgError) Args() []any   { return []any{e.Msg} }

// As converts a task result to T. Structural codecs return generic values
// (float64, map[string]any); those are decoded weakly into T.
func As[T any](v any) (T, error) {
	var out T
	if t, ok := v.(T); ok {
		return t, nil
	}
	if v == nil {
		return out, nil
	}
	if err := bind(v, &out); err != nil {
		return out, fmt.Errorf("convert %T to %T: %w", v, out, err)
	}
	return out, nil
}

func init() {
	serializer.Register(&ArgError{})
}
