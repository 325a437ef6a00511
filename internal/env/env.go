// Package env composes the environment handed to launched agents.
package env

import (
	"os"
	"sort"
	"strings"
)

type Var map[string]string

// Env layers launcher-wide variables over an optional OS base.
type Env struct {
	Var   Var  // launcher-wide variables (K->V)
	useOS bool // start from os.Environ()
	base  Var  // cached OS environment
}

// New returns an Env that inherits the OS environment.
func New() *Env {
	return &Env{Var: make(Var), useOS: true}
}

// FromConfig builds an Env from "K=V" pairs. Malformed pairs are skipped.
func FromConfig(pairs []string, useOS bool) *Env {
	e := &Env{Var: make(Var), useOS: useOS}
	for _, kv := range pairs {
		if k, v, ok := split(kv); ok {
			e.Var[k] = v
		}
	}
	return e
}

// WithSet returns a copy of e with K=V set.
func (e *Env) WithSet(k, v string) *Env {
	cp := &Env{Var: make(Var, len(e.Var)+1), useOS: e.useOS, base: e.base}
	for kk, vv := range e.Var {
		cp.Var[kk] = vv
	}
	cp.Var[k] = v
	return cp
}

func (e *Env) osBase() Var {
	if !e.useOS {
		return nil
	}
	if e.base == nil {
		base := make(Var)
		for _, kv := range os.Environ() {
			if k, v, ok := split(kv); ok {
				base[k] = v
			}
		}
		e.base = base
	}
	return e.base
}

// Merge composes the final environment: OS base, then e.Var, then extra
// "K=V" overrides. ${VAR} references are expanded against the composed map
// (one level, no recursion). Output is sorted by key.
func (e *Env) Merge(extra []string) []string {
	m := make(Var)
	for k, v := range e.osBase() {
		m[k] = v
	}
	for k, v := range e.Var {
		if k != "" {
			m[k] = v
		}
	}
	for _, kv := range extra {
		if k, v, ok := split(kv); ok {
			m[k] = v
		}
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+expand(m[k], m))
	}
	return out
}

func expand(s string, m Var) string {
	if !strings.Contains(s, "${") {
		return s
	}
	var b strings.Builder
	for {
		i := strings.Index(s, "${")
		if i < 0 {
			break
		}
		j := strings.IndexByte(s[i:], '}')
		if j < 0 {
			break
		}
		b.WriteString(s[:i])
		name := s[i+2 : i+j]
		if v, ok := m[name]; ok {
			b.WriteString(v)
		} else {
			b.WriteString(s[i : i+j+1])
		}
		s = s[i+j+1:]
	}
	b.WriteString(s)
	return b.String()
}

func split(kv string) (string, string, bool) {
	i := strings.IndexByte(kv, '=')
	if i <= 0 {
		return "", "", false
	}
	return kv[:i], kv[i+1:], true
}
