package serializer

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/oriys/tasklet/internal/domain"
)

type jsonSerializer struct {
	checker structuralChecker
}

// maxJSONInt is the largest integer magnitude a float64 holds exactly.
const maxJSONInt = 1 << 53

// JSON returns the default structural, human-readable serializer. Numbers
// decode as float64, lists as []any and objects as map[string]any. Integers
// beyond ±2^53 and values with their own marshalers (time.Time and the like)
// are refused at pack time; json.Number is passed through.
func JSON() Serializer {
	return jsonSerializer{checker: structuralChecker{
		codec:   "json",
		accepts: []reflect.Type{reflect.TypeOf(json.Number(""))},
		maxInt:  maxJSONInt,
	}}
}

func (jsonSerializer) Name() string           { return "json" }
func (jsonSerializer) ObjectsSupported() bool { return false }

func (s jsonSerializer) PackArgs(args []any, kwargs map[string]any) ([]byte, error) {
	rec := newArgsRecord(args, kwargs)
	if err := s.checker.check(rec.Args); err != nil {
		return nil, err
	}
	if err := s.checker.check(rec.Kwargs); err != nil {
		return nil, err
	}
	return s.marshal(rec)
}

func (s jsonSerializer) UnpackArgs(data []byte) ([]any, map[string]any, error) {
	var rec argsRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, nil, fmt.Errorf("%w: json: malformed args payload: %v", domain.ErrSerialization, err)
	}
	args, kwargs := rec.split()
	return args, kwargs, nil
}

func (s jsonSerializer) PackResult(v any) ([]byte, error) {
	if err := s.checker.check(v); err != nil {
		return nil, err
	}
	return s.marshal(v)
}

func (s jsonSerializer) UnpackResult(data []byte) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: json: malformed result payload: %v", domain.ErrSerialization, err)
	}
	return v, nil
}

func (s jsonSerializer) marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: json: %v", domain.ErrSerialization, err)
	}
	return b, nil
}
