// Package qc flattens QC model-description files: conditional directives,
// variable definition and substitution, parameterized macros, and recursive
// includes are expanded into a single self-contained text stream suitable
// for the model compiler.
package qc

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/karou/srcbuild/internal/logx"
)

// commentable directives are passed through as comments after substitution
// so debug prints in source never reach the compiler active.
var commentable = map[string]bool{
	"$print":   true,
	"$echo":    true,
	"$warning": true,
}

// Preprocessor flattens QC files against an ordered include search chain:
// RootDir first, then the including file's directory, then SearchDirs.
type Preprocessor struct {
	RootDir    string
	SearchDirs []string
	Log        logx.Sink
}

// State is the mutable table set shared by one flatten call tree: defined
// variables, captured macros, and the include stack for cycle detection.
// Callers may pre-seed Vars and Macros; both are mutated as directives are
// processed.
type State struct {
	Vars      *Env
	Macros    map[string]*Macro
	including map[string]bool
}

func NewState() *State {
	return &State{
		Vars:      NewEnv(),
		Macros:    make(map[string]*Macro),
		including: make(map[string]bool),
	}
}

// Flatten expands the file at path and returns the flattened text. An
// include target that cannot be resolved fails the whole call; cycles and
// malformed directives degrade to inline diagnostics.
func (p *Preprocessor) Flatten(path string, st *State) (string, error) {
	canon := canonicalPath(path)
	data, err := os.ReadFile(canon)
	if err != nil {
		return "", fmt.Errorf("read qc: %w", err)
	}

	st.including[canon] = true
	defer delete(st.including, canon)

	out, err := p.processLines(splitLines(string(data)), filepath.Dir(canon), st)
	if err != nil {
		return "", fmt.Errorf("%s: %w", filepath.Base(canon), err)
	}
	return strings.Join(out, "\n") + "\n", nil
}

// processLines runs the directive loop over one file's (or macro body's)
// lines. The conditional stack is local to the unit; variable, macro, and
// include state lives in st.
func (p *Preprocessor) processLines(lines []string, fileDir string, st *State) ([]string, error) {
	var out []string
	cond := &condStack{}

	var capture *Macro
	captureContinuation := false

	for _, raw := range lines {
		line := strings.TrimRight(raw, "\r")
		trimmed := strings.TrimSpace(line)

		if capture != nil {
			if captureContinuation {
				body, more := stripContinuation(line)
				capture.Body = append(capture.Body, body)
				if !more {
					st.Macros[strings.ToLower(capture.Name)] = capture
					capture = nil
				}
				continue
			}
			if strings.EqualFold(firstField(trimmed), "$endmacro") {
				st.Macros[strings.ToLower(capture.Name)] = capture
				capture = nil
				continue
			}
			capture.Body = append(capture.Body, line)
			continue
		}

		keyword := strings.ToLower(firstField(trimmed))
		rest := strings.TrimSpace(trimmed[len(firstField(trimmed)):])

		// Conditional structure is tracked even in dead branches so
		// nesting stays balanced; nothing else runs while inactive.
		switch keyword {
		case "$if":
			if !cond.Active() {
				cond.Push(false)
				continue
			}
			v, ok := evalCondition(rest, st.Vars)
			if !ok {
				p.diag(&out, "malformed condition %q", rest)
			}
			cond.Push(v)
			continue
		case "$ifdef":
			if !cond.Active() {
				cond.Push(false)
				continue
			}
			name := strings.Trim(firstField(rest), "$")
			cond.Push(st.Vars.Has(name))
			continue
		case "$elif":
			expr := rest
			if !cond.Elif(func() bool {
				v, ok := evalCondition(expr, st.Vars)
				if !ok {
					p.diag(&out, "malformed condition %q", expr)
				}
				return v
			}) {
				p.diag(&out, "$elif without $if")
			}
			continue
		case "$else":
			if !cond.Else() {
				p.diag(&out, "$else without $if")
			}
			continue
		case "$endif":
			if !cond.Pop() {
				p.diag(&out, "$endif without $if")
			}
			continue
		}

		if !cond.Active() {
			continue
		}

		switch keyword {
		case "$definevariable":
			p.defineVariable(&out, rest, st.Vars, false)

		case "$redefinevariable":
			p.defineVariable(&out, rest, st.Vars, true)

		case "$definemacro":
			def, cont := stripContinuation(rest)
			fields := strings.Fields(def)
			if len(fields) == 0 {
				p.diag(&out, "$definemacro missing name")
				continue
			}
			capture = &Macro{Name: fields[0], Params: fields[1:]}
			captureContinuation = cont

		case "$endmacro":
			p.diag(&out, "$endmacro without $definemacro")

		case "$include":
			if err := p.expandInclude(&out, line, rest, fileDir, st); err != nil {
				return nil, err
			}

		default:
			if commentable[keyword] {
				sub, err := Substitute(trimmed, st.Vars)
				if err != nil {
					p.diag(&out, "%v in %s directive", err, keyword)
					continue
				}
				out = append(out, "// "+sub)
				continue
			}
			if m, ok := macroFor(keyword, st); ok {
				expansion, err := p.expandMacro(&out, m, rest, fileDir, st)
				if err != nil {
					return nil, err
				}
				out = append(out, expansion...)
				continue
			}
			sub, err := Substitute(line, st.Vars)
			if err != nil {
				p.diag(&out, "%v", err)
				continue
			}
			out = append(out, sub)
		}
	}

	if capture != nil {
		p.diag(&out, "unterminated $definemacro %q", capture.Name)
	}
	if cond.Depth() != 0 {
		p.diag(&out, "unclosed conditional (%d open)", cond.Depth())
	}
	return out, nil
}

// defineVariable handles $definevariable and its redefine mirror. The value
// expression is substituted, then computed arithmetically when numeric.
func (p *Preprocessor) defineVariable(out *[]string, rest string, env *Env, redefine bool) {
	nameTok := firstField(rest)
	if nameTok == "" {
		p.diag(out, "missing variable name")
		return
	}
	name := strings.Trim(unquote(nameTok), "$")
	valueExpr := strings.TrimSpace(rest[len(nameTok):])

	sub, err := Substitute(valueExpr, env)
	if err != nil {
		p.diag(out, "%v in value for %q", err, name)
		return
	}
	value := unquote(strings.TrimSpace(sub))
	if n, ok := evalArithmetic(value); ok {
		value = formatNumber(n)
	}

	if redefine {
		err = env.Redefine(name, value)
	} else {
		err = env.Define(name, value)
	}
	if err != nil {
		p.diag(out, "%v", err)
	}
}

// expandInclude resolves and inlines an include target, reproducing the
// including line's indentation. An unresolvable target is a hard failure; a
// cycle degrades to a diagnostic for that edge only.
func (p *Preprocessor) expandInclude(out *[]string, line, rest, fileDir string, st *State) error {
	sub, err := Substitute(rest, st.Vars)
	if err != nil {
		p.diag(out, "%v in $include path", err)
		return nil
	}
	target := unquote(strings.TrimSpace(sub))
	if target == "" {
		p.diag(out, "$include missing path")
		return nil
	}

	resolved := p.resolveInclude(target, fileDir)
	if resolved == "" {
		return fmt.Errorf("cannot resolve include %q", target)
	}
	if st.including[canonicalPath(resolved)] {
		p.diag(out, "include cycle: %s", target)
		return nil
	}

	text, err := p.Flatten(resolved, st)
	if err != nil {
		return err
	}
	indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
	for _, inner := range splitLines(strings.TrimRight(text, "\n")) {
		*out = append(*out, indent+inner)
	}
	return nil
}

// expandMacro flattens a macro body under a copied variable table with the
// call's arguments layered as overrides.
func (p *Preprocessor) expandMacro(out *[]string, m *Macro, rest, fileDir string, st *State) ([]string, error) {
	sub, err := Substitute(rest, st.Vars)
	if err != nil {
		p.diag(out, "%v in arguments to $%s", err, m.Name)
		return nil, nil
	}
	args := splitQuoted(sub)
	if len(args) < len(m.Params) {
		p.diag(out, "macro %q: %d argument(s) given, %d expected", m.Name, len(args), len(m.Params))
	}

	overrides := make(map[string]string, len(m.Params))
	for i, param := range m.Params {
		if i < len(args) {
			overrides[strings.Trim(param, "$")] = args[i]
		} else {
			overrides[strings.Trim(param, "$")] = ""
		}
	}

	child := &State{
		Vars:      st.Vars.forMacro(overrides),
		Macros:    st.Macros,
		including: st.including,
	}
	return p.processLines(m.Body, fileDir, child)
}

// resolveInclude tries the root dir, the including file's dir, then the
// fallback search dirs, in that order.
func (p *Preprocessor) resolveInclude(target, fileDir string) string {
	rel := filepath.FromSlash(target)
	candidates := make([]string, 0, len(p.SearchDirs)+2)
	if p.RootDir != "" {
		candidates = append(candidates, filepath.Join(p.RootDir, rel))
	}
	candidates = append(candidates, filepath.Join(fileDir, rel))
	for _, dir := range p.SearchDirs {
		candidates = append(candidates, filepath.Join(dir, rel))
	}
	if filepath.IsAbs(rel) {
		candidates = append([]string{rel}, candidates...)
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c
		}
	}
	return ""
}

func (p *Preprocessor) diag(out *[]string, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if p.Log != nil {
		p.Log.Warnf("qc: %s", msg)
	}
	*out = append(*out, "// qc: "+msg)
}

// macroFor matches a lowercased $-prefixed keyword against the macro table.
func macroFor(keyword string, st *State) (*Macro, bool) {
	if len(keyword) < 2 || keyword[0] != '$' {
		return nil, false
	}
	m, ok := st.Macros[keyword[1:]]
	return m, ok
}

func canonicalPath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return filepath.Clean(abs)
}

func splitLines(s string) []string {
	return strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
}

func firstField(s string) string {
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return s[:i]
	}
	return s
}

// stripContinuation removes a trailing line-continuation marker, reporting
// whether the logical line continues.
func stripContinuation(line string) (string, bool) {
	trimmed := strings.TrimRight(line, " \t")
	if strings.HasSuffix(trimmed, "\\\\") {
		return strings.TrimRight(trimmed[:len(trimmed)-2], " \t"), true
	}
	if strings.HasSuffix(trimmed, "\\") {
		return strings.TrimRight(trimmed[:len(trimmed)-1], " \t"), true
	}
	return line, false
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// splitQuoted splits on whitespace while keeping double-quoted runs (quotes
// removed) as single tokens. Backslashes are normalized to forward slashes
// inside quoted path tokens by callers that need it.
func splitQuoted(s string) []string {
	var toks []string
	var buf strings.Builder
	inQuote := false
	flush := func() {
		if buf.Len() > 0 {
			toks = append(toks, buf.String())
			buf.Reset()
		}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			if inQuote {
				toks = append(toks, buf.String())
				buf.Reset()
				inQuote = false
			} else {
				flush()
				inQuote = true
			}
		case (c == ' ' || c == '\t') && !inQuote:
			flush()
		default:
			buf.WriteByte(c)
		}
	}
	flush()
	return toks
}
