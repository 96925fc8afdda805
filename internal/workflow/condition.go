package workflow

import (
	"fmt"
	"strconv"
)

// Condition expressions decide whether a ready step runs or is skipped.
//
// The evaluator is a small recursive descent parser over a restricted
// grammar: path references, literals, comparisons, boolean operators, and a
// few built-in functions. There is no assignment, indexing, or arbitrary
// code evaluation.
//
//	status == "completed" && steps.scan.output.count > 0
//	!empty(steps.recon.output.endpoints) || force_rescan
//	exists(api_key) && len(targets) >= 2
//
// Path resolution:
//   - steps.<id>.status / steps.<id>.output.<path> / steps.<id>.attempts
//     resolve against the per-step results of the current execution
//   - any other identifier resolves against the variables mapping, with
//     dots descending into nested maps
//
// Unresolvable paths evaluate to nil rather than failing, so expressions
// like exists(flag) work before the variable is set.

// EvalContext provides the data a condition expression may reference.
type EvalContext struct {
	// Variables is the merged variable mapping at evaluation time.
	Variables map[string]any
	// Results holds the step results recorded so far, by step id.
	Results map[string]*StepResult
}

// Lookup resolves a dotted path against the context. Missing paths resolve
// to nil; only structurally impossible accesses return an error.
func (ec *EvalContext) Lookup(path []string) (any, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("empty reference")
	}

	var current any
	rest := path[1:]

	if path[0] == "steps" {
		if len(path) < 2 {
			return nil, fmt.Errorf("'steps' reference requires a step id")
		}
		result := ec.Results[path[1]]
		if result == nil {
			return nil, nil
		}
		current = result.view()
		rest = path[2:]
	} else {
		if ec.Variables == nil {
			return nil, nil
		}
		current = ec.Variables[path[0]]
	}

	for _, segment := range rest {
		m, ok := current.(map[string]any)
		if !ok {
			if current == nil {
				return nil, nil
			}
			return nil, fmt.Errorf("cannot access field %q on %T", segment, current)
		}
		current = m[segment]
	}

	return current, nil
}

// EvalFunc is a built-in function callable from condition expressions.
type EvalFunc func(args []any) (any, error)

// Evaluator parses and evaluates condition expressions. The zero value is
// not usable; construct with NewEvaluator.
type Evaluator struct {
	funcs map[string]EvalFunc
}

// NewEvaluator creates an Evaluator with the built-in functions len, empty,
// and exists registered.
func NewEvaluator() *Evaluator {
	e := &Evaluator{funcs: make(map[string]EvalFunc)}

	e.RegisterFunc("len", func(args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("len() takes exactly 1 argument, got %d", len(args))
		}
		switch v := args[0].(type) {
		case string:
			return float64(len(v)), nil
		case []any:
			return float64(len(v)), nil
		case map[string]any:
			return float64(len(v)), nil
		default:
			return nil, fmt.Errorf("len() requires a string, list, or map argument")
		}
	})

	e.RegisterFunc("empty", func(args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("empty() takes exactly 1 argument, got %d", len(args))
		}
		switch v := args[0].(type) {
		case nil:
			return true, nil
		case string:
			return v == "", nil
		case []any:
			return len(v) == 0, nil
		case map[string]any:
			return len(v) == 0, nil
		default:
			return false, nil
		}
	})

	e.RegisterFunc("exists", func(args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("exists() takes exactly 1 argument, got %d", len(args))
		}
		return args[0] != nil, nil
	})

	return e
}

// RegisterFunc adds a function callable from expressions. Registering an
// existing name overwrites it.
func (e *Evaluator) RegisterFunc(name string, fn EvalFunc) {
	e.funcs[name] = fn
}

// Evaluate parses and evaluates an expression. The result must be boolean;
// anything else is an error with code condition_invalid.
func (e *Evaluator) Evaluate(expr string, ec *EvalContext) (bool, error) {
	tokens, err := scan(expr)
	if err != nil {
		return false, &StepError{Code: ErrConditionInvalid, Message: fmt.Sprintf("invalid condition %q", expr), Cause: err}
	}

	p := &exprParser{tokens: tokens, ctx: ec, funcs: e.funcs}
	value, err := p.parseOr()
	if err != nil {
		return false, &StepError{Code: ErrConditionInvalid, Message: fmt.Sprintf("invalid condition %q", expr), Cause: err}
	}
	if p.peek().kind != tokEOF {
		return false, &StepError{Code: ErrConditionInvalid, Message: fmt.Sprintf("invalid condition %q", expr), Cause: fmt.Errorf("unexpected trailing input")}
	}

	result, ok := value.(bool)
	if !ok {
		return false, &StepError{
			Code:    ErrConditionInvalid,
			Message: fmt.Sprintf("condition %q did not evaluate to a boolean (got %T)", expr, value),
		}
	}
	return result, nil
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokIdent
	tokNumber
	tokString
	tokDot
	tokComma
	tokLParen
	tokRParen
	tokEq
	tokNeq
	tokLt
	tokLte
	tokGt
	tokGte
	tokAnd
	tokOr
	tokNot
)

type exprToken struct {
	kind tokKind
	text string
}

// scan splits an expression into tokens.
func scan(expr string) ([]exprToken, error) {
	var tokens []exprToken

	i := 0
	for i < len(expr) {
		c := expr[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '.':
			tokens = append(tokens, exprToken{tokDot, "."})
			i++
		case c == ',':
			tokens = append(tokens, exprToken{tokComma, ","})
			i++
		case c == '(':
			tokens = append(tokens, exprToken{tokLParen, "("})
			i++
		case c == ')':
			tokens = append(tokens, exprToken{tokRParen, ")"})
			i++
		case c == '=' || c == '&' || c == '|':
			if i+1 >= len(expr) || expr[i+1] != c {
				return nil, fmt.Errorf("unexpected character %q at position %d", c, i)
			}
			switch c {
			case '=':
				tokens = append(tokens, exprToken{tokEq, "=="})
			case '&':
				tokens = append(tokens, exprToken{tokAnd, "&&"})
			case '|':
				tokens = append(tokens, exprToken{tokOr, "||"})
			}
			i += 2
		case c == '!':
			if i+1 < len(expr) && expr[i+1] == '=' {
				tokens = append(tokens, exprToken{tokNeq, "!="})
				i += 2
			} else {
				tokens = append(tokens, exprToken{tokNot, "!"})
				i++
			}
		case c == '<':
			if i+1 < len(expr) && expr[i+1] == '=' {
				tokens = append(tokens, exprToken{tokLte, "<="})
				i += 2
			} else {
				tokens = append(tokens, exprToken{tokLt, "<"})
				i++
			}
		case c == '>':
			if i+1 < len(expr) && expr[i+1] == '=' {
				tokens = append(tokens, exprToken{tokGte, ">="})
				i += 2
			} else {
				tokens = append(tokens, exprToken{tokGt, ">"})
				i++
			}
		case c == '"' || c == '\'':
			quote := c
			i++
			start := i
			for i < len(expr) && expr[i] != quote {
				i++
			}
			if i >= len(expr) {
				return nil, fmt.Errorf("unterminated string literal")
			}
			tokens = append(tokens, exprToken{tokString, expr[start:i]})
			i++
		case c >= '0' && c <= '9':
			start := i
			for i < len(expr) && (expr[i] >= '0' && expr[i] <= '9' || expr[i] == '.') {
				i++
			}
			tokens = append(tokens, exprToken{tokNumber, expr[start:i]})
		case isIdentChar(c):
			start := i
			for i < len(expr) && (isIdentChar(expr[i]) || expr[i] >= '0' && expr[i] <= '9') {
				i++
			}
			tokens = append(tokens, exprToken{tokIdent, expr[start:i]})
		default:
			return nil, fmt.Errorf("unexpected character %q at position %d", c, i)
		}
	}

	return append(tokens, exprToken{kind: tokEOF}), nil
}

func isIdentChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

// exprParser evaluates while parsing; expressions are small enough that a
// separate AST buys nothing.
type exprParser struct {
	tokens []exprToken
	pos    int
	ctx    *EvalContext
	funcs  map[string]EvalFunc
}

func (p *exprParser) peek() exprToken {
	if p.pos >= len(p.tokens) {
		return exprToken{kind: tokEOF}
	}
	return p.tokens[p.pos]
}

func (p *exprParser) next() exprToken {
	tok := p.peek()
	p.pos++
	return tok
}

func (p *exprParser) expect(kind tokKind, what string) error {
	if p.peek().kind != kind {
		return fmt.Errorf("expected %s, got %q", what, p.peek().text)
	}
	p.pos++
	return nil
}

func (p *exprParser) parseOr() (any, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		lb, rb, err := bothBool(left, right, "||")
		if err != nil {
			return nil, err
		}
		left = lb || rb
	}
	return left, nil
}

func (p *exprParser) parseAnd() (any, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		lb, rb, err := bothBool(left, right, "&&")
		if err != nil {
			return nil, err
		}
		left = lb && rb
	}
	return left, nil
}

func (p *exprParser) parseUnary() (any, error) {
	if p.peek().kind == tokNot {
		p.pos++
		value, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("! requires a boolean operand, got %T", value)
		}
		return !b, nil
	}
	return p.parseComparison()
}

func (p *exprParser) parseComparison() (any, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	op := p.peek().kind
	switch op {
	case tokEq, tokNeq, tokLt, tokLte, tokGt, tokGte:
		p.pos++
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		return compareValues(left, right, op)
	}
	return left, nil
}

func (p *exprParser) parsePrimary() (any, error) {
	tok := p.next()
	switch tok.kind {
	case tokNumber:
		return strconv.ParseFloat(tok.text, 64)
	case tokString:
		return tok.text, nil
	case tokLParen:
		value, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokRParen, ")"); err != nil {
			return nil, err
		}
		return value, nil
	case tokIdent:
		switch tok.text {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "nil", "null":
			return nil, nil
		}
		if p.peek().kind == tokLParen {
			return p.parseCall(tok.text)
		}
		return p.parsePath(tok.text)
	default:
		return nil, fmt.Errorf("unexpected token %q", tok.text)
	}
}

func (p *exprParser) parseCall(name string) (any, error) {
	fn, ok := p.funcs[name]
	if !ok {
		return nil, fmt.Errorf("unknown function %q", name)
	}
	p.pos++ // consume '('

	var args []any
	if p.peek().kind != tokRParen {
		for {
			arg, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.peek().kind != tokComma {
				break
			}
			p.pos++
		}
	}
	if err := p.expect(tokRParen, ")"); err != nil {
		return nil, err
	}
	return fn(args)
}

func (p *exprParser) parsePath(first string) (any, error) {
	path := []string{first}
	for p.peek().kind == tokDot {
		p.pos++
		tok := p.next()
		if tok.kind != tokIdent {
			return nil, fmt.Errorf("expected identifier after '.', got %q", tok.text)
		}
		path = append(path, tok.text)
	}
	return p.ctx.Lookup(path)
}

func bothBool(left, right any, op string) (bool, bool, error) {
	lb, ok := left.(bool)
	if !ok {
		return false, false, fmt.Errorf("%s requires boolean operands, got %T", op, left)
	}
	rb, ok := right.(bool)
	if !ok {
		return false, false, fmt.Errorf("%s requires boolean operands, got %T", op, right)
	}
	return lb, rb, nil
}

// compareValues applies a comparison operator to two resolved values.
func compareValues(left, right any, op tokKind) (bool, error) {
	switch op {
	case tokEq:
		return looseEqual(left, right), nil
	case tokNeq:
		return !looseEqual(left, right), nil
	}

	ln, lok := asNumber(left)
	rn, rok := asNumber(right)
	if lok && rok {
		switch op {
		case tokLt:
			return ln < rn, nil
		case tokLte:
			return ln <= rn, nil
		case tokGt:
			return ln > rn, nil
		case tokGte:
			return ln >= rn, nil
		}
	}

	ls, lok := left.(string)
	rs, rok := right.(string)
	if lok && rok {
		switch op {
		case tokLt:
			return ls < rs, nil
		case tokLte:
			return ls <= rs, nil
		case tokGt:
			return ls > rs, nil
		case tokGte:
			return ls >= rs, nil
		}
	}

	return false, fmt.Errorf("cannot order %T and %T", left, right)
}

// looseEqual compares values with numeric coercion, so YAML integers and
// expression float literals compare as expected.
func looseEqual(left, right any) bool {
	if left == nil || right == nil {
		return left == nil && right == nil
	}
	if ln, ok := asNumber(left); ok {
		if rn, ok := asNumber(right); ok {
			return ln == rn
		}
		return false
	}
	switch l := left.(type) {
	case bool:
		r, ok := right.(bool)
		return ok && l == r
	case string:
		r, ok := right.(string)
		return ok && l == r
	default:
		return false
	}
}

// asNumber converts numeric types produced by YAML decoding and the lexer
// to float64.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
