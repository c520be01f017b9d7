package correlation

import (
	"fmt"
	"strings"

	"github.com/c360/exchangegate/errors"
	"github.com/c360/exchangegate/message"
)

type tokenKind int

const (
	tokenLiteral tokenKind = iota
	tokenMetadata
	tokenUniqueID
)

type token struct {
	kind  tokenKind
	value string
}

// Resolver turns a key expression into a correlation key for a unit.
type Resolver struct {
	expression string
	tokens     []token
}

// NewResolver parses expression. Unknown %-directives and unterminated
// %message{ are invalid.
func NewResolver(expression string) (*Resolver, error) {
	r := &Resolver{expression: strings.TrimSpace(expression)}
	tokens, err := parse(r.expression)
	if err != nil {
		return nil, err
	}
	r.tokens = tokens
	return r, nil
}

// Expression returns the trimmed source expression.
func (r *Resolver) Expression() string { return r.expression }

// Blank reports whether the expression is empty, in which case keys are unit ids.
func (r *Resolver) Blank() bool { return r.expression == "" }

// Resolve returns the key for unit. Missing metadata expands to the empty
// string, so the result may be blank.
func (r *Resolver) Resolve(unit *message.Unit) string {
	if r.Blank() {
		return unit.ID()
	}
	var b strings.Builder
	for _, t := range r.tokens {
		switch t.kind {
		case tokenLiteral:
			b.WriteString(t.value)
		case tokenMetadata:
			b.WriteString(unit.Get(t.value))
		case tokenUniqueID:
			b.WriteString(unit.ID())
		}
	}
	return strings.TrimSpace(b.String())
}

const (
	directiveMessage  = "message{"
	directiveUniqueID = "uniqueId"
)

func parse(expr string) ([]token, error) {
	var tokens []token
	var literal strings.Builder
	flush := func() {
		if literal.Len() > 0 {
			tokens = append(tokens, token{kind: tokenLiteral, value: literal.String()})
			literal.Reset()
		}
	}

	for i := 0; i < len(expr); {
		if expr[i] != '%' {
			literal.WriteByte(expr[i])
			i++
			continue
		}
		rest := expr[i+1:]
		switch {
		case strings.HasPrefix(rest, "%"):
			literal.WriteByte('%')
			i += 2
		case strings.HasPrefix(rest, directiveMessage):
			end := strings.IndexByte(rest, '}')
			if end < 0 {
				return nil, invalidExpression(expr, "unterminated %message{")
			}
			name := strings.TrimSpace(rest[len(directiveMessage):end])
			if name == "" {
				return nil, invalidExpression(expr, "empty %message{} name")
			}
			flush()
			tokens = append(tokens, token{kind: tokenMetadata, value: name})
			i += 1 + end + 1
		case strings.HasPrefix(rest, directiveUniqueID):
			flush()
			tokens = append(tokens, token{kind: tokenUniqueID})
			i += 1 + len(directiveUniqueID)
		default:
			return nil, invalidExpression(expr, fmt.Sprintf("unknown directive at offset %d", i))
		}
	}
	flush()
	return tokens, nil
}

func invalidExpression(expr, reason string) error {
	return errors.WrapInvalid(errors.ErrParsingFailed, "Resolver", "parse",
		fmt.Sprintf("key expression %q: %s", expr, reason))
}
