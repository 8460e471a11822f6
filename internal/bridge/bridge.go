// Package bridge carries an error returned by task code across the remote
// boundary.
//
// With an object-capable serializer the error value itself is packed and the
// caller gets back the original type. With a structural serializer the error
// is reduced to a Descriptor and the caller gets a *RemoteError whose Error()
// is identical to the original but whose type is generic. Callers using a
// structural codec can inspect the original class name, not type-switch on it.
package bridge

import (
	"fmt"
	"reflect"

	"github.com/go-viper/mapstructure/v2"
	"github.com/oriys/tasklet/internal/domain"
	"github.com/oriys/tasklet/internal/serializer"
)

// Descriptor is the codec-safe form of an error.
type Descriptor struct {
	Exception     string `json:"exception" mapstructure:"exception"`
	ExceptionFQN  string `json:"exception_fqn" mapstructure:"exception_fqn"`
	ExceptionArgs []any  `json:"exception_args" mapstructure:"exception_args"`
	ExceptionStr  string `json:"exception_str" mapstructure:"exception_str"`
}

func init() {
	serializer.Register(Descriptor{})
}

// ArgsCarrier is implemented by errors that know the values they were built
// from. Errors without it describe themselves by their message.
type ArgsCarrier interface {
	Args() []any
}

// Describe builds the Descriptor of err from its exact runtime type.
func Describe(err error) Descriptor {
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	name := t.Name()
	if name == "" {
		name = t.String()
	}
	fqn := name
	if pkg := t.PkgPath(); pkg != "" {
		fqn = pkg + "." + name
	}

	msg := err.Error()
	var args []any
	if ac, ok := err.(ArgsCarrier); ok {
		args = ac.Args()
	} else if msg != "" {
		args = []any{msg}
	}
	if args == nil {
		args = []any{}
	}

	return Descriptor{
		Exception:     name,
		ExceptionFQN:  fqn,
		ExceptionArgs: args,
		ExceptionStr:  msg,
	}
}

func (d Descriptor) fields() map[string]any {
	return map[string]any{
		"exception":      d.Exception,
		"exception_fqn":  d.ExceptionFQN,
		"exception_args": d.ExceptionArgs,
		"exception_str":  d.ExceptionStr,
	}
}

// Capture packs err for the exception slot of a response.
//
// An object-capable serializer packs the error value itself. When that value
// cannot be carried (unregistered type, no exported fields) it falls back to
// the Descriptor, which every serializer can carry once its args are
// stringified.
func Capture(ser serializer.Serializer, err error) ([]byte, error) {
	if ser.ObjectsSupported() {
		if b, perr := ser.PackResult(err); perr == nil {
			return b, nil
		}
	}

	d := Describe(err)
	b, perr := packDescriptor(ser, d)
	if perr == nil {
		return b, nil
	}
	d.ExceptionArgs = stringArgs(d.ExceptionArgs)
	return packDescriptor(ser, d)
}

func packDescriptor(ser serializer.Serializer, d Descriptor) ([]byte, error) {
	if ser.ObjectsSupported() {
		return ser.PackResult(d)
	}
	return ser.PackResult(d.fields())
}

func stringArgs(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = fmt.Sprint(a)
	}
	return out
}

// Raise turns an exception payload back into an error: the original error
// value when the serializer carried it, a *RemoteError otherwise. A payload
// that is neither is a transport-level problem and yields ErrInternal.
func Raise(ser serializer.Serializer, payload []byte) error {
	v, err := ser.UnpackResult(payload)
	if err != nil {
		return fmt.Errorf("%w: undecodable exception payload: %v", domain.ErrInternal, err)
	}

	switch x := v.(type) {
	case error:
		return x
	case Descriptor:
		return NewRemoteError(x)
	case *Descriptor:
		return NewRemoteError(*x)
	case map[string]any:
		d, err := descriptorFromMap(x)
		if err != nil {
			return err
		}
		return NewRemoteError(d)
	default:
		return fmt.Errorf("%w: exception payload holds %T", domain.ErrInternal, v)
	}
}

func descriptorFromMap(m map[string]any) (Descriptor, error) {
	if _, ok := m["exception"]; !ok {
		return Descriptor{}, fmt.Errorf("%w: exception payload has no exception name", domain.ErrInternal)
	}
	var d Descriptor
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &d,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: %v", domain.ErrInternal, err)
	}
	if err := dec.Decode(m); err != nil {
		return Descriptor{}, fmt.Errorf("%w: exception payload: %v", domain.ErrInternal, err)
	}
	if d.ExceptionArgs == nil {
		d.ExceptionArgs = []any{}
	}
	return d, nil
}
