package serializer

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/oriys/tasklet/internal/domain"
)

type point struct {
	X, Y int
}

type gobOnly struct {
	Name string
	Tags []string
}

func init() {
	Register(gobOnly{})
}

func TestByName(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		objects bool
	}{
		{"", "json", false},
		{"JSON", "json", false},
		{"cbor", "cbor", false},
		{" gob ", "gob", true},
	}
	for _, tt := range tests {
		s, err := ByName(tt.name)
		if err != nil {
			t.Fatalf("ByName(%q): %v", tt.name, err)
		}
		if s.Name() != tt.want || s.ObjectsSupported() != tt.objects {
			t.Fatalf("ByName(%q) = %s/%v, want %s/%v", tt.name, s.Name(), s.ObjectsSupported(), tt.want, tt.objects)
		}
	}

	if _, err := ByName("pickle"); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestStructuralArgsRoundTrip(t *testing.T) {
	for _, s := range []Serializer{JSON(), CBOR()} {
		t.Run(s.Name(), func(t *testing.T) {
			data, err := s.PackArgs([]any{"a", true, nil, []any{"x"}}, map[string]any{"k": map[string]any{"n": "v"}})
			if err != nil {
				t.Fatalf("PackArgs: %v", err)
			}
			args, kwargs, err := s.UnpackArgs(data)
			if err != nil {
				t.Fatalf("UnpackArgs: %v", err)
			}
			want := []any{"a", true, nil, []any{"x"}}
			if !reflect.DeepEqual(args, want) {
				t.Fatalf("args = %#v, want %#v", args, want)
			}
			if !reflect.DeepEqual(kwargs, map[string]any{"k": map[string]any{"n": "v"}}) {
				t.Fatalf("kwargs = %#v", kwargs)
			}
		})
	}
}

func TestEmptyArgs(t *testing.T) {
	for _, s := range []Serializer{JSON(), CBOR(), Gob()} {
		data, err := s.PackArgs(nil, nil)
		if err != nil {
			t.Fatalf("%s PackArgs: %v", s.Name(), err)
		}
		args, kwargs, err := s.UnpackArgs(data)
		if err != nil {
			t.Fatalf("%s UnpackArgs: %v", s.Name(), err)
		}
		if args == nil || kwargs == nil || len(args) != 0 || len(kwargs) != 0 {
			t.Fatalf("%s: expected empty non-nil args, got %#v %#v", s.Name(), args, kwargs)
		}
	}
}

func TestJSONNumbers(t *testing.T) {
	s := JSON()
	data, err := s.PackResult(5)
	if err != nil {
		t.Fatalf("PackResult: %v", err)
	}
	if string(data) != "5" {
		t.Fatalf("packed = %s", data)
	}
	v, err := s.UnpackResult(data)
	if err != nil {
		t.Fatalf("UnpackResult: %v", err)
	}
	if v != float64(5) {
		t.Fatalf("UnpackResult = %#v", v)
	}

	for _, n := range []int64{1 << 53, -(1 << 53), 1<<53 - 1} {
		data, err := s.PackResult(n)
		if err != nil {
			t.Fatalf("PackResult(%d): %v", n, err)
		}
		v, err := s.UnpackResult(data)
		if err != nil {
			t.Fatalf("UnpackResult(%d): %v", n, err)
		}
		if v != float64(n) || int64(v.(float64)) != n {
			t.Fatalf("%d came back as %#v", n, v)
		}
	}

	f, err := s.PackResult(1e20)
	if err != nil {
		t.Fatalf("integral float64 beyond 2^53 should pack: %v", err)
	}
	if v, _ := s.UnpackResult(f); v != 1e20 {
		t.Fatalf("1e20 came back as %#v", v)
	}
}

func TestJSONRejectsInexactIntegers(t *testing.T) {
	s := JSON()
	tests := []struct {
		name string
		v    any
	}{
		{"int64 above 2^53", int64(1<<53 + 1)},
		{"int64 below -2^53", int64(-(1 << 53) - 1)},
		{"min int64", int64(math.MinInt64)},
		{"max uint64", uint64(math.MaxUint64)},
		{"nested", map[string]any{"ids": []any{1, int64(9007199254740993)}}},
		{"number literal", json.Number("9007199254740993")},
		{"huge number literal", json.Number("123456789012345678901234567890")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.PackResult(tt.v); !errors.Is(err, domain.ErrSerialization) {
				t.Fatalf("PackResult err = %v, want ErrSerialization", err)
			}
			if _, err := s.PackArgs([]any{tt.v}, nil); !errors.Is(err, domain.ErrSerialization) {
				t.Fatalf("PackArgs err = %v, want ErrSerialization", err)
			}
			if _, err := s.PackArgs(nil, map[string]any{"n": tt.v}); !errors.Is(err, domain.ErrSerialization) {
				t.Fatalf("PackArgs kwargs err = %v, want ErrSerialization", err)
			}
		})
	}

	_, err := s.PackResult(uint64(math.MaxUint64))
	if err == nil || !strings.Contains(err.Error(), "CBOR") {
		t.Fatalf("error should suggest CBOR: %v", err)
	}

	// CBOR carries the same values exactly.
	data, err := CBOR().PackResult(uint64(math.MaxUint64))
	if err != nil {
		t.Fatalf("CBOR PackResult: %v", err)
	}
	if v, _ := CBOR().UnpackResult(data); v != uint64(math.MaxUint64) {
		t.Fatalf("CBOR max uint64 came back as %#v", v)
	}
}

func TestJSONNumberPassesThrough(t *testing.T) {
	s := JSON()
	data, err := s.PackResult([]any{json.Number("42"), json.Number("-2.5e3")})
	if err != nil {
		t.Fatalf("PackResult: %v", err)
	}
	if string(data) != "[42,-2.5e3]" {
		t.Fatalf("packed = %s", data)
	}
}

func TestCBORBytesAndIntegers(t *testing.T) {
	s := CBOR()
	data, err := s.PackResult(map[string]any{"raw": []byte{1, 2}, "n": -3, "m": 7})
	if err != nil {
		t.Fatalf("PackResult: %v", err)
	}
	v, err := s.UnpackResult(data)
	if err != nil {
		t.Fatalf("UnpackResult: %v", err)
	}
	m := v.(map[string]any)
	if !reflect.DeepEqual(m["raw"], []byte{1, 2}) {
		t.Fatalf("raw = %#v", m["raw"])
	}
	if m["n"] != int64(-3) || m["m"] != uint64(7) {
		t.Fatalf("integers = %#v %#v", m["n"], m["m"])
	}
}

func TestStructuralRejectsObjects(t *testing.T) {
	tests := []struct {
		name string
		v    any
	}{
		{"struct", point{1, 2}},
		{"struct pointer", &point{1, 2}},
		{"nested struct", []any{"ok", map[string]any{"p": point{}}}},
		{"channel", make(chan int)},
		{"func", func() {}},
		{"complex", complex(1, 2)},
		{"nan", math.NaN()},
		{"int keys", map[int]string{1: "a"}},
	}

	for _, s := range []Serializer{JSON(), CBOR()} {
		for _, tt := range tests {
			t.Run(s.Name()+"/"+tt.name, func(t *testing.T) {
				_, err := s.PackArgs([]any{tt.v}, nil)
				if !errors.Is(err, domain.ErrSerialization) {
					t.Fatalf("PackArgs: expected serialization error, got %v", err)
				}
				if tt.name == "struct" && !strings.Contains(err.Error(), "serializer.Gob()") {
					t.Fatalf("error should suggest the gob serializer: %v", err)
				}
				if _, err := s.PackResult(tt.v); !errors.Is(err, domain.ErrSerialization) {
					t.Fatalf("PackResult: expected serialization error, got %v", err)
				}
			})
		}
	}
}

func TestJSONRejectsBytesCBORAccepts(t *testing.T) {
	if _, err := JSON().PackResult([]byte("x")); !errors.Is(err, domain.ErrSerialization) {
		t.Fatalf("json should reject []byte, got %v", err)
	}
	if _, err := CBOR().PackResult([]byte("x")); err != nil {
		t.Fatalf("cbor should accept []byte: %v", err)
	}
}

func TestStructuralRejectsMarshalers(t *testing.T) {
	ts := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, s := range []Serializer{JSON(), CBOR()} {
		for _, v := range []any{ts, &ts, []any{"at", ts}} {
			if _, err := s.PackResult(v); !errors.Is(err, domain.ErrSerialization) {
				t.Fatalf("%s PackResult(%#v) err = %v, want ErrSerialization", s.Name(), v, err)
			}
		}
	}

	// Gob keeps the type.
	data, err := Gob().PackResult(ts)
	if err != nil {
		t.Fatalf("Gob PackResult: %v", err)
	}
	v, err := Gob().UnpackResult(data)
	if err != nil {
		t.Fatalf("Gob UnpackResult: %v", err)
	}
	if got, ok := v.(time.Time); !ok || !got.Equal(ts) {
		t.Fatalf("Gob time came back as %#v", v)
	}
}

func TestGobCarriesRegisteredTypes(t *testing.T) {
	s := Gob()
	in := gobOnly{Name: "n", Tags: []string{"a", "b"}}

	data, err := s.PackArgs([]any{in, 3}, map[string]any{"k": in})
	if err != nil {
		t.Fatalf("PackArgs: %v", err)
	}
	args, kwargs, err := s.UnpackArgs(data)
	if err != nil {
		t.Fatalf("UnpackArgs: %v", err)
	}
	if !reflect.DeepEqual(args[0], in) || args[1] != 3 {
		t.Fatalf("args = %#v", args)
	}
	if !reflect.DeepEqual(kwargs["k"], in) {
		t.Fatalf("kwargs = %#v", kwargs)
	}

	data, err = s.PackResult(nil)
	if err != nil {
		t.Fatalf("PackResult(nil): %v", err)
	}
	v, err := s.UnpackResult(data)
	if err != nil || v != nil {
		t.Fatalf("UnpackResult(nil) = %#v, %v", v, err)
	}
}

func TestGobUnregisteredFailsAtPack(t *testing.T) {
	_, err := Gob().PackResult(point{1, 2})
	if !errors.Is(err, domain.ErrSerialization) {
		t.Fatalf("expected serialization error, got %v", err)
	}
}

func TestMalformedPayloads(t *testing.T) {
	for _, s := range []Serializer{JSON(), CBOR(), Gob()} {
		garbage := []byte("not a payload")
		if _, _, err := s.UnpackArgs(garbage); !errors.Is(err, domain.ErrSerialization) {
			t.Fatalf("%s UnpackArgs: expected serialization error, got %v", s.Name(), err)
		}
		if _, err := s.UnpackResult(garbage); !errors.Is(err, domain.ErrSerialization) {
			t.Fatalf("%s UnpackResult: expected serialization error, got %v", s.Name(), err)
		}
	}
}
