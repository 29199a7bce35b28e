package qc

import (
	"strconv"
	"strings"
)

// Conditional expressions are an OR of AND groups with no parentheses:
// comparisons (== != > < >= <=) between quoted literals, variables, and
// numeric literals, or bare tokens tested for truthiness.

// evalCondition evaluates a $if/$elif expression against env. Malformed
// groups evaluate to false with ok=false so the caller can diagnose.
func evalCondition(expr string, env *Env) (result, ok bool) {
	toks := tokenizeExpr(expr)
	if len(toks) == 0 {
		return false, false
	}

	ok = true
	for _, orGroup := range splitTokens(toks, "||") {
		andResult := true
		for _, cmp := range splitTokens(orGroup, "&&") {
			v, cok := evalComparison(cmp, env)
			if !cok {
				ok = false
			}
			if !v {
				andResult = false
			}
		}
		if andResult && len(orGroup) > 0 {
			return true, ok
		}
	}
	return false, ok
}

func evalComparison(toks []string, env *Env) (bool, bool) {
	switch len(toks) {
	case 1:
		return truthy(toks[0], env), true
	case 3:
		lhs, lok := resolveOperand(toks[0], env)
		rhs, rok := resolveOperand(toks[2], env)
		return compareValues(lhs, toks[1], rhs, lok && rok), true
	default:
		return false, false
	}
}

// truthy implements bare-token truthiness: an undefined name, empty value,
// "0", or "false" is false.
func truthy(tok string, env *Env) bool {
	v, ok := resolveOperand(tok, env)
	if !ok {
		return false
	}
	if !isQuotedOrMarker(tok) {
		// Bare name that resolved only because it fell through as a
		// literal: a non-numeric unknown name counts as undefined.
		if _, defined := env.Lookup(tok); !defined {
			if _, err := strconv.ParseFloat(tok, 64); err != nil {
				return false
			}
		}
	}
	switch strings.ToLower(v) {
	case "", "0", "false":
		return false
	}
	return true
}

func isQuotedOrMarker(tok string) bool {
	return strings.HasPrefix(tok, `"`) || strings.Contains(tok, "$")
}

// resolveOperand turns an expression token into a comparable value. Quoted
// literals and marker-bearing tokens are variable-substituted; bare tokens
// are looked up as variables, falling back to their literal text.
func resolveOperand(tok string, env *Env) (string, bool) {
	if strings.HasPrefix(tok, `"`) && strings.HasSuffix(tok, `"`) && len(tok) >= 2 {
		inner := tok[1 : len(tok)-1]
		sub, err := Substitute(inner, env)
		if err != nil {
			return "", false
		}
		return sub, true
	}
	if v, ok := env.Lookup(tok); ok {
		return v, true
	}
	if strings.Contains(tok, "$") {
		sub, err := Substitute(tok, env)
		if err != nil {
			return "", false
		}
		return sub, true
	}
	return tok, true
}

// compareValues tries numeric comparison first; equality operators fall back
// to string comparison, ordering operators on non-numeric operands are false.
func compareValues(lhs, op, rhs string, resolved bool) bool {
	if !resolved {
		return false
	}
	lf, lerr := strconv.ParseFloat(lhs, 64)
	rf, rerr := strconv.ParseFloat(rhs, 64)
	if lerr == nil && rerr == nil {
		switch op {
		case "==":
			return lf == rf
		case "!=":
			return lf != rf
		case ">":
			return lf > rf
		case "<":
			return lf < rf
		case ">=":
			return lf >= rf
		case "<=":
			return lf <= rf
		}
		return false
	}
	switch op {
	case "==":
		return lhs == rhs
	case "!=":
		return lhs != rhs
	}
	return false
}

// tokenizeExpr splits an expression into tokens, keeping quoted strings
// intact (quotes retained) and splitting operators from adjacent text.
func tokenizeExpr(s string) []string {
	var toks []string
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '"':
			j := i + 1
			for j < len(s) && s[j] != '"' {
				j++
			}
			if j < len(s) {
				j++
			}
			toks = append(toks, s[i:j])
			i = j
		default:
			if op, n := matchOperator(s[i:]); n > 0 {
				toks = append(toks, op)
				i += n
				continue
			}
			j := i
			for j < len(s) && s[j] != ' ' && s[j] != '\t' && s[j] != '"' {
				if _, n := matchOperator(s[j:]); n > 0 {
					break
				}
				j++
			}
			toks = append(toks, s[i:j])
			i = j
		}
	}
	return toks
}

func matchOperator(s string) (string, int) {
	for _, op := range []string{"&&", "||", "==", "!=", ">=", "<="} {
		if strings.HasPrefix(s, op) {
			return op, 2
		}
	}
	if len(s) > 0 && (s[0] == '>' || s[0] == '<') {
		return s[:1], 1
	}
	return "", 0
}

func splitTokens(toks []string, sep string) [][]string {
	var groups [][]string
	start := 0
	for i, t := range toks {
		if t == sep {
			groups = append(groups, toks[start:i])
			start = i + 1
		}
	}
	groups = append(groups, toks[start:])
	return groups
}

// evalArithmetic computes a numeric + - * / expression with the usual
// precedence and optional parentheses. ok is false when the text is not a
// pure arithmetic expression.
func evalArithmetic(s string) (float64, bool) {
	p := arithParser{src: s}
	v, ok := p.expr()
	if !ok {
		return 0, false
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return 0, false
	}
	return v, true
}

type arithParser struct {
	src string
	pos int
}

func (p *arithParser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *arithParser) expr() (float64, bool) {
	v, ok := p.term()
	if !ok {
		return 0, false
	}
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return v, true
		}
		op := p.src[p.pos]
		if op != '+' && op != '-' {
			return v, true
		}
		p.pos++
		rhs, ok := p.term()
		if !ok {
			return 0, false
		}
		if op == '+' {
			v += rhs
		} else {
			v -= rhs
		}
	}
}

func (p *arithParser) term() (float64, bool) {
	v, ok := p.factor()
	if !ok {
		return 0, false
	}
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return v, true
		}
		op := p.src[p.pos]
		if op != '*' && op != '/' {
			return v, true
		}
		p.pos++
		rhs, ok := p.factor()
		if !ok {
			return 0, false
		}
		if op == '*' {
			v *= rhs
		} else {
			if rhs == 0 {
				return 0, false
			}
			v /= rhs
		}
	}
}

func (p *arithParser) factor() (float64, bool) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0, false
	}
	if p.src[p.pos] == '(' {
		p.pos++
		v, ok := p.expr()
		if !ok {
			return 0, false
		}
		p.skipSpace()
		if p.pos >= len(p.src) || p.src[p.pos] != ')' {
			return 0, false
		}
		p.pos++
		return v, true
	}
	if p.src[p.pos] == '-' {
		p.pos++
		v, ok := p.factor()
		return -v, ok
	}
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if (c >= '0' && c <= '9') || c == '.' {
			p.pos++
			continue
		}
		break
	}
	if start == p.pos {
		return 0, false
	}
	v, err := strconv.ParseFloat(p.src[start:p.pos], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// formatNumber renders an arithmetic result the way it would be written in
// QC text: integers without a decimal point.
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
