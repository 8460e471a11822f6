package deploy

import (
	"strings"

	"github.com/oriys/tasklet/internal/domain"
	"github.com/oriys/tasklet/internal/pkg/digest"
)

// FunctionName derives the addressable name of a task from the instance name
// and the task's qualified name ("import/path:Func").
//
// The readable part keeps the last package element and the function name;
// the suffix is a hash of the full qualified name, so two tasks with the same
// short name in different packages still get distinct names. The result always
// satisfies domain.ValidateAddress.
func FunctionName(instance, qualifiedName string) string {
	suffix := "-" + digest.String(8, instance, "\x00", qualifiedName)

	short := qualifiedName
	if i := strings.LastIndex(short, "/"); i >= 0 {
		short = short[i+1:]
	}
	short = strings.ReplaceAll(short, ":", "--")

	readable := sanitize(instance) + "-" + sanitize(short)
	if limit := domain.MaxAddressLen - len(suffix); len(readable) > limit {
		readable = readable[:limit]
	}
	return readable + suffix
}

func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}

var resourceEscapes = strings.NewReplacer(
	".", "XdotX",
	":", "XcolonX",
	"_", "XusX",
	"/", "XslashX",
	"-", "XdashX",
)

// ResourceName escapes a qualified name into an alphanumeric identifier for
// infrastructure templates, which reject punctuation.
func ResourceName(qualifiedName string) string {
	return resourceEscapes.Replace(qualifiedName)
}
