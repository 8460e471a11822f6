package serializer

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/oriys/tasklet/internal/domain"
)

type gobSerializer struct{}

// gobValue wraps a result so that nil and interface-typed values survive; gob
// cannot encode a bare nil at the top level.
type gobValue struct {
	V any
}

// Gob returns the object-capable serializer. Any value whose concrete type was
// passed to Register round-trips with its type intact, error values included.
func Gob() Serializer {
	return gobSerializer{}
}

func (gobSerializer) Name() string           { return "gob" }
func (gobSerializer) ObjectsSupported() bool { return true }

func (s gobSerializer) PackArgs(args []any, kwargs map[string]any) ([]byte, error) {
	return s.encode(newArgsRecord(args, kwargs))
}

func (s gobSerializer) UnpackArgs(data []byte) ([]any, map[string]any, error) {
	var rec argsRecord
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec); err != nil {
		return nil, nil, fmt.Errorf("%w: gob: malformed args payload: %v", domain.ErrSerialization, err)
	}
	args, kwargs := rec.split()
	return args, kwargs, nil
}

func (s gobSerializer) PackResult(v any) ([]byte, error) {
	return s.encode(gobValue{V: v})
}

func (s gobSerializer) UnpackResult(data []byte) (any, error) {
	var gv gobValue
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&gv); err != nil {
		return nil, fmt.Errorf("%w: gob: malformed result payload: %v", domain.ErrSerialization, err)
	}
	return gv.V, nil
}

func (s gobSerializer) encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("%w: gob: %v (register concrete types with serializer.Register)", domain.ErrSerialization, err)
	}
	return buf.Bytes(), nil
}
