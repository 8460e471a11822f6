// Package serializer converts a call's arguments and its result to and from
// opaque byte payloads.
//
// Two families exist. Structural codecs (JSON, CBOR) carry only plain data
// that any language can read and reject everything else at pack time.
// The object codec (gob) carries registered Go values, including error values,
// with full type fidelity but only between processes built from the same code.
package serializer

import (
	"encoding/gob"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/oriys/tasklet/internal/domain"
)

// Serializer packs arguments and results. Implementations are stateless and
// safe for concurrent use.
type Serializer interface {
	// Name identifies the codec in configuration ("json", "cbor", "gob").
	Name() string
	// ObjectsSupported reports whether arbitrary same-runtime values, error
	// values included, survive a round trip.
	ObjectsSupported() bool

	PackArgs(args []any, kwargs map[string]any) ([]byte, error)
	UnpackArgs(data []byte) ([]any, map[string]any, error)
	PackResult(v any) ([]byte, error)
	UnpackResult(data []byte) (any, error)
}

// argsRecord is the {args, kwargs} record every codec packs.
type argsRecord struct {
	Args   []any          `json:"args" cbor:"args"`
	Kwargs map[string]any `json:"kwargs" cbor:"kwargs"`
}

func newArgsRecord(args []any, kwargs map[string]any) argsRecord {
	if args == nil {
		args = []any{}
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	return argsRecord{Args: args, Kwargs: kwargs}
}

func (r argsRecord) split() ([]any, map[string]any) {
	args, kwargs := r.Args, r.Kwargs
	if args == nil {
		args = []any{}
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	return args, kwargs
}

var builtins = map[string]func() Serializer{
	"json": func() Serializer { return JSON() },
	"cbor": func() Serializer { return CBOR() },
	"gob":  func() Serializer { return Gob() },
}

// ByName resolves a configured serializer name. An empty name selects JSON.
func ByName(name string) (Serializer, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "json"
	}
	mk, ok := builtins[name]
	if !ok {
		names := make([]string, 0, len(builtins))
		for n := range builtins {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("%w: unknown serializer %q (valid: %s)", domain.ErrConfiguration, name, strings.Join(names, ", "))
	}
	return mk(), nil
}

// Register makes a concrete type transportable by the gob serializer. Error
// types must be registered in the form they are returned (usually a pointer).
func Register(value any) {
	gob.Register(value)
}

func init() {
	Register([]any(nil))
	Register(map[string]any(nil))
	Register(time.Time{})
}
