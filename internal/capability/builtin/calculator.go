// Package builtin provides the capabilities that ship with the host:
// calculator, memory, and web. Each registers itself as a plain handler;
// nothing here knows about the orchestration loop.
package builtin

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/room302studio/coachartie2-sub006/internal/capability"
)

// Calculator returns the arithmetic capability. It evaluates infix
// expressions with + - * / %, parentheses, and unary minus.
func Calculator() capability.Descriptor {
	return capability.Descriptor{
		Name:             "calculator",
		Description:      "Evaluate arithmetic expressions",
		SupportedActions: []string{"calculate", "eval"},
		// expression is not declared required: the tag body is an equally
		// valid way to deliver it, and required params are checked before
		// the handler sees the body.
		Examples: []string{
			`<capability name="calculator" action="calculate" expression="123 * 456" />`,
			`<capability name="calculator" action="calculate">123 * 456</capability>`,
		},
		Handler: func(_ context.Context, params map[string]any, content string) (string, error) {
			expr, _ := params["expression"].(string)
			if expr == "" {
				expr = strings.TrimSpace(content)
			}
			if expr == "" {
				return "", fmt.Errorf("nothing to calculate")
			}
			v, err := evalExpression(expr)
			if err != nil {
				return "", fmt.Errorf("calculating %q: %w", expr, err)
			}
			return formatNumber(v), nil
		},
	}
}

func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// evalExpression is a small recursive-descent evaluator:
//
//	expr   = term (('+' | '-') term)*
//	term   = unary (('*' | '/' | '%') unary)*
//	unary  = '-' unary | atom
//	atom   = number | '(' expr ')'
func evalExpression(s string) (float64, error) {
	p := &exprParser{input: s}
	v, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.pos != len(p.input) {
		return 0, fmt.Errorf("unexpected %q at position %d", p.input[p.pos], p.pos)
	}
	return v, nil
}

type exprParser struct {
	input string
	pos   int
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t') {
		p.pos++
	}
}

func (p *exprParser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *exprParser) parseExpr() (float64, error) {
	v, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '+':
			p.pos++
			r, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			v += r
		case '-':
			p.pos++
			r, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			v -= r
		default:
			return v, nil
		}
	}
}

func (p *exprParser) parseTerm() (float64, error) {
	v, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '*':
			p.pos++
			r, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			v *= r
		case '/':
			p.pos++
			r, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			if r == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			v /= r
		case '%':
			p.pos++
			r, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			if r == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			v = float64(int64(v) % int64(r))
		default:
			return v, nil
		}
	}
}

func (p *exprParser) parseUnary() (float64, error) {
	if p.peek() == '-' {
		p.pos++
		v, err := p.parseUnary()
		return -v, err
	}
	return p.parseAtom()
}

func (p *exprParser) parseAtom() (float64, error) {
	c := p.peek()
	if c == '(' {
		p.pos++
		v, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		if p.peek() != ')' {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return v, nil
	}

	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if (c >= '0' && c <= '9') || c == '.' {
			p.pos++
			continue
		}
		break
	}
	if p.pos == start {
		return 0, fmt.Errorf("expected a number at position %d", start)
	}
	return strconv.ParseFloat(p.input[start:p.pos], 64)
}
