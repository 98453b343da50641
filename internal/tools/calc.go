package tools

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// evaluate computes a plain arithmetic expression. The grammar covers
// + - * /, unary minus, parentheses and a postfix % that divides by 100,
// which together handle the "15% of 2400" phrasing after "of" is
// normalized to multiplication.
func evaluate(expr string) (float64, error) {
	normalized := strings.ReplaceAll(strings.ToLower(expr), " of ", " * ")

	p := &calcParser{input: normalized}
	result, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.pos < len(p.input) {
		return 0, fmt.Errorf("unexpected %q in expression", p.input[p.pos:])
	}
	return result, nil
}

type calcParser struct {
	input string
	pos   int
}

func (p *calcParser) skipSpace() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t') {
		p.pos++
	}
}

func (p *calcParser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

// parseExpr handles + and -.
func (p *calcParser) parseExpr() (float64, error) {
	left, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '+':
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			left += right
		case '-':
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			left -= right
		default:
			return left, nil
		}
	}
}

// parseTerm handles * and /.
func (p *calcParser) parseTerm() (float64, error) {
	left, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '*':
			p.pos++
			right, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			left *= right
		case '/':
			p.pos++
			right, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left /= right
		default:
			return left, nil
		}
	}
}

func (p *calcParser) parseUnary() (float64, error) {
	if p.peek() == '-' {
		p.pos++
		val, err := p.parseUnary()
		return -val, err
	}
	return p.parseAtom()
}

func (p *calcParser) parseAtom() (float64, error) {
	if p.peek() == '(' {
		p.pos++
		val, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		if p.peek() != ')' {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return p.applyPercent(val), nil
	}
	return p.parseNumber()
}

func (p *calcParser) parseNumber() (float64, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.input) {
		c := rune(p.input[p.pos])
		if !unicode.IsDigit(c) && c != '.' && c != ',' {
			break
		}
		p.pos++
	}
	if start == p.pos {
		return 0, fmt.Errorf("expected a number in expression")
	}

	// Accept thousands separators like 2,400.
	raw := strings.ReplaceAll(p.input[start:p.pos], ",", "")
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", raw)
	}
	return p.applyPercent(val), nil
}

func (p *calcParser) applyPercent(val float64) float64 {
	if p.pos < len(p.input) && p.input[p.pos] == '%' {
		p.pos++
		return val / 100
	}
	return val
}
