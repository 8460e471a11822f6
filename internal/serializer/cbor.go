package serializer

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/oriys/tasklet/internal/domain"
)

type cborSerializer struct {
	enc     cbor.EncMode
	dec     cbor.DecMode
	checker structuralChecker
}

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor encoder: %v", err))
	}
	cborDec, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("cbor decoder: %v", err))
	}
}

// CBOR returns a structural, compact binary serializer (RFC 8949, core
// deterministic encoding). Unlike JSON it carries []byte natively. Integers
// decode as uint64 or int64.
func CBOR() Serializer {
	return cborSerializer{
		enc: cborEnc,
		dec: cborDec,
		checker: structuralChecker{
			codec:      "cbor",
			allowBytes: true,
			accepts:    []reflect.Type{reflect.TypeOf(cbor.RawMessage(nil))},
		},
	}
}

func (cborSerializer) Name() string           { return "cbor" }
func (cborSerializer) ObjectsSupported() bool { return false }

func (s cborSerializer) PackArgs(args []any, kwargs map[string]any) ([]byte, error) {
	rec := newArgsRecord(args, kwargs)
	if err := s.checker.check(rec.Args); err != nil {
		return nil, err
	}
	if err := s.checker.check(rec.Kwargs); err != nil {
		return nil, err
	}
	return s.marshal(rec)
}

func (s cborSerializer) UnpackArgs(data []byte) ([]any, map[string]any, error) {
	var rec argsRecord
	if err := s.dec.Unmarshal(data, &rec); err != nil {
		return nil, nil, fmt.Errorf("%w: cbor: malformed args payload: %v", domain.ErrSerialization, err)
	}
	args, kwargs := rec.split()
	return args, kwargs, nil
}

func (s cborSerializer) PackResult(v any) ([]byte, error) {
	if err := s.checker.check(v); err != nil {
		return nil, err
	}
	return s.marshal(v)
}

func (s cborSerializer) UnpackResult(data []byte) (any, error) {
	var v any
	if err := s.dec.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: cbor: malformed result payload: %v", domain.ErrSerialization, err)
	}
	return v, nil
}

func (s cborSerializer) marshal(v any) ([]byte, error) {
	b, err := s.enc.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: cbor: %v", domain.ErrSerialization, err)
	}
	return b, nil
}
