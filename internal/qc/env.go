package qc

import (
	"fmt"
	"strings"
)

// Env is a two-tier variable table: defined variables persist across a
// flatten call tree, while macro-argument overrides shadow them only inside
// one macro expansion.
type Env struct {
	defined   map[string]string
	overrides map[string]string
}

func NewEnv() *Env {
	return &Env{defined: make(map[string]string)}
}

// Lookup returns the value for name, macro arguments taking precedence.
func (e *Env) Lookup(name string) (string, bool) {
	if e.overrides != nil {
		if v, ok := e.overrides[name]; ok {
			return v, true
		}
	}
	v, ok := e.defined[name]
	return v, ok
}

// Has reports whether name is visible in either tier.
func (e *Env) Has(name string) bool {
	_, ok := e.Lookup(name)
	return ok
}

// Define adds a new variable. A name already defined, or currently shadowing
// as a macro argument, is rejected.
func (e *Env) Define(name, value string) error {
	if e.overrides != nil {
		if _, ok := e.overrides[name]; ok {
			return fmt.Errorf("%q is a macro argument and cannot be defined", name)
		}
	}
	if _, ok := e.defined[name]; ok {
		return fmt.Errorf("%q is already defined", name)
	}
	e.defined[name] = value
	return nil
}

// Redefine replaces an existing definition. It fails on names that are not
// yet defined or that are macro-argument shadows.
func (e *Env) Redefine(name, value string) error {
	if e.overrides != nil {
		if _, ok := e.overrides[name]; ok {
			return fmt.Errorf("%q is a macro argument and cannot be redefined", name)
		}
	}
	if _, ok := e.defined[name]; !ok {
		return fmt.Errorf("%q is not defined", name)
	}
	e.defined[name] = value
	return nil
}

// Seed sets a variable unconditionally. Used for pre-seeding from
// configuration before flattening starts.
func (e *Env) Seed(name, value string) {
	e.defined[name] = value
}

// forMacro returns the environment a macro body expands under: a copy of the
// defined tier with the given arguments layered on top.
func (e *Env) forMacro(args map[string]string) *Env {
	defined := make(map[string]string, len(e.defined))
	for k, v := range e.defined {
		defined[k] = v
	}
	return &Env{defined: defined, overrides: args}
}

// isVarName reports whether s is a valid variable name for $name$ markers.
func isVarName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
		default:
			return false
		}
	}
	return true
}

// Substitute replaces every $name$ marker in s. The first undefined name
// aborts with an error; lone or non-name $ characters pass through.
func Substitute(s string, env *Env) (string, error) {
	var b strings.Builder
	i := 0
	for i < len(s) {
		j := strings.IndexByte(s[i:], '$')
		if j < 0 {
			b.WriteString(s[i:])
			break
		}
		b.WriteString(s[i : i+j])
		i += j
		k := strings.IndexByte(s[i+1:], '$')
		if k < 0 {
			b.WriteString(s[i:])
			break
		}
		name := s[i+1 : i+1+k]
		if !isVarName(name) {
			b.WriteByte('$')
			i++
			continue
		}
		v, ok := env.Lookup(name)
		if !ok {
			return "", fmt.Errorf("undefined variable %q", name)
		}
		b.WriteString(v)
		i += k + 2
	}
	return b.String(), nil
}
