package repoql

import (
	"fmt"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Query parser: recursive descent parser that turns a token stream into a
// built AST. Every node goes through a Builder, so parsed trees obey the
// same construction rules as programmatic ones.
//
// Grammar:
//
//   Query         → SELECT Columns FROM Source [WHERE Constraint] [ORDER BY Orderings]
//   Columns       → '*' | Column ( ',' Column )*
//   Column        → Name '.' '*' | [Name '.'] Name [AS Name]
//   Source        → SourcePrimary ( JoinType SourcePrimary ON JoinCond )*
//   SourcePrimary → Name [AS Name] | '(' Source ')'
//   JoinType      → [INNER] JOIN | LEFT [OUTER] JOIN | RIGHT [OUTER] JOIN
//   JoinCond      → Name '.' Name '=' Name '.' Name
//                 |  ISSAMENODE '(' Name ',' Name [',' Path] ')'
//                 |  ISCHILDNODE '(' Name ',' Name ')'
//                 |  ISDESCENDANTNODE '(' Name ',' Name ')'
//   Constraint    → And ( OR And )*
//   And           → Not ( AND Not )*
//   Not           → NOT Not | Primary
//   Primary       → '(' Constraint ')'
//                 |  CONTAINS '(' ( [Name '.'] Name | Name '.' '*' ) ',' Static ')'
//                 |  ISSAMENODE | ISCHILDNODE | ISDESCENDANTNODE '(' [Name ','] Path ')'
//                 |  Operand ( CompOp Operand | LIKE Operand | IS [NOT] NULL )
//   Operand       → Static | Dynamic
//   Dynamic       → [Name '.'] Name
//                 |  LENGTH '(' Property ')' | LOWER '(' Dynamic ')' | UPPER '(' Dynamic ')'
//                 |  SCORE | NAME | LOCALNAME '(' [Name] ')'
//   Static        → STRING | ['-'] INT | ['-'] FLOAT | $param | CAST '(' Static AS ident ')'
//   Name          → ident | [bracketed] | STRING (paths only)
// --------------------------------------------------------------------------

// parser holds the state for parsing a token stream.
type parser struct {
	tokens []Token
	pos    int
	b      *Builder

	// autoDeclare declares unknown selector names on first reference.
	autoDeclare bool
}

func newParser(input string) (*parser, error) {
	tokens, err := tokenize(input)
	if err != nil {
		return nil, err
	}
	return &parser{tokens: tokens, b: NewBuilder()}, nil
}

// Parse parses a complete query. Syntax errors are *ParseError; rule
// violations found while building the tree are *PlanConstructionError and
// malformed CAST payloads are *MalformedValueError (wrapped in a
// *ParseError carrying the position).
func Parse(text string) (*Query, error) {
	p, err := newParser(text)
	if err != nil {
		return nil, err
	}
	q, err := p.parseQuery()
	if err != nil {
		return nil, err
	}
	if err := p.expectEOF(); err != nil {
		return nil, err
	}
	return q, nil
}

// ParseConstraint parses a WHERE clause on its own. The named selectors
// are declared up front over nt:base, and any other selector name used in
// text is declared on first reference. Unqualified property references
// need exactly one declared selector.
func ParseConstraint(text string, selectors ...string) (Constraint, error) {
	p, err := newParser(text)
	if err != nil {
		return nil, err
	}
	p.autoDeclare = true
	for _, name := range selectors {
		if _, err := p.b.Selector(BaseNodeType, name); err != nil {
			return nil, err
		}
	}
	c, err := p.parseConstraint()
	if err != nil {
		return nil, err
	}
	if err := p.expectEOF(); err != nil {
		return nil, err
	}
	return c, nil
}

// ParseLiteral parses a single literal as produced by Value.QueryLiteral.
func ParseLiteral(text string) (Value, error) {
	p, err := newParser(text)
	if err != nil {
		return Value{}, err
	}
	v, err := p.parseLiteralValue()
	if err != nil {
		return Value{}, err
	}
	if err := p.expectEOF(); err != nil {
		return Value{}, err
	}
	return v, nil
}

// ---------------- helpers -------------------------------------------------

// cur returns the current token.
func (p *parser) cur() Token {
	if p.pos >= len(p.tokens) {
		return Token{Kind: tokEOF}
	}
	return p.tokens[p.pos]
}

// peekKind returns the kind of the token n positions ahead.
func (p *parser) peekKind(n int) TokenKind {
	if p.pos+n >= len(p.tokens) {
		return tokEOF
	}
	return p.tokens[p.pos+n].Kind
}

// advance moves to the next token and returns the consumed one.
func (p *parser) advance() Token {
	t := p.cur()
	p.pos++
	return t
}

func (p *parser) errorf(t Token, format string, args ...any) error {
	return &ParseError{Pos: t.Pos, Msg: fmt.Sprintf(format, args...)}
}

// expect consumes a token of the given kind or returns an error.
func (p *parser) expect(kind TokenKind) (Token, error) {
	t := p.cur()
	if t.Kind != kind {
		return t, p.errorf(t, "expected %s but got %s", tokenKindName(kind), tokenKindName(t.Kind))
	}
	p.pos++
	return t, nil
}

func (p *parser) expectEOF() error {
	if t := p.cur(); t.Kind != tokEOF {
		return p.errorf(t, "unexpected %s after end of statement", tokenKindName(t.Kind))
	}
	return nil
}

// is checks if the current token matches the given kind.
func (p *parser) is(kind TokenKind) bool {
	return p.cur().Kind == kind
}

// match consumes the current token if it matches the kind, returning true.
func (p *parser) match(kind TokenKind) bool {
	if p.is(kind) {
		p.pos++
		return true
	}
	return false
}

// isFunc reports whether the current token is the named function
// followed by '('.
func (p *parser) isFunc(name string) bool {
	t := p.cur()
	return t.Kind == tokIdent && strings.EqualFold(t.Text, name) && p.peekKind(1) == tokLParen
}

// isName reports whether the current token can be a name.
func (p *parser) isName() bool {
	return p.is(tokIdent) || p.is(tokName)
}

// parseName consumes an identifier or a bracketed name.
func (p *parser) parseName() (string, error) {
	t := p.cur()
	if t.Kind != tokIdent && t.Kind != tokName {
		return "", p.errorf(t, "expected name but got %s", tokenKindName(t.Kind))
	}
	p.pos++
	return t.Text, nil
}

// parsePath consumes a path written as a name or a string.
func (p *parser) parsePath() (string, error) {
	if p.is(tokString) {
		return p.advance().Text, nil
	}
	return p.parseName()
}

// selectorRef resolves a selector name referenced from the WHERE clause,
// declaring it when the parser runs in constraint-only mode.
func (p *parser) selectorRef(name string) string {
	if p.autoDeclare && name != "" {
		if _, ok := p.b.selectors[name]; !ok {
			_, _ = p.b.Selector(BaseNodeType, name)
		}
	}
	return name
}

// ---------------- query ---------------------------------------------------

type rawColumn struct {
	selector string
	property string // "" for selector.*
	alias    string
}

func (p *parser) parseQuery() (*Query, error) {
	if _, err := p.expect(tokSelect); err != nil {
		return nil, err
	}

	// Columns name selectors that are only declared by FROM, so they are
	// built after the source.
	var raw []rawColumn
	if !p.match(tokStar) {
		for {
			rc, err := p.parseRawColumn()
			if err != nil {
				return nil, err
			}
			raw = append(raw, rc)
			if !p.match(tokComma) {
				break
			}
		}
	}

	if _, err := p.expect(tokFrom); err != nil {
		return nil, err
	}
	source, err := p.parseSource()
	if err != nil {
		return nil, err
	}

	columns := make([]*Column, 0, len(raw))
	for _, rc := range raw {
		c, err := p.b.Column(rc.selector, rc.property, rc.alias)
		if err != nil {
			return nil, err
		}
		columns = append(columns, c)
	}

	var where Constraint
	if p.match(tokWhere) {
		if where, err = p.parseConstraint(); err != nil {
			return nil, err
		}
	}

	var orderings []*Ordering
	if p.match(tokOrder) {
		if _, err := p.expect(tokBy); err != nil {
			return nil, err
		}
		for {
			o, err := p.parseOrdering()
			if err != nil {
				return nil, err
			}
			orderings = append(orderings, o)
			if !p.match(tokComma) {
				break
			}
		}
	}

	return p.b.Query(columns, source, where, orderings)
}

func (p *parser) parseRawColumn() (rawColumn, error) {
	var rc rawColumn
	first, err := p.parseName()
	if err != nil {
		return rc, err
	}
	if p.match(tokDot) {
		rc.selector = first
		if p.match(tokStar) {
			return rc, nil
		}
		if rc.property, err = p.parseName(); err != nil {
			return rc, err
		}
	} else {
		rc.property = first
	}
	if p.match(tokAs) {
		if rc.alias, err = p.parseName(); err != nil {
			return rc, err
		}
	}
	return rc, nil
}

func (p *parser) parseOrdering() (*Ordering, error) {
	t := p.cur()
	op, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	dyn, ok := op.(DynamicOperand)
	if !ok {
		return nil, p.errorf(t, "ORDER BY requires a dynamic operand")
	}
	order := Ascending
	if p.match(tokDesc) {
		order = Descending
	} else {
		p.match(tokAsc)
	}
	return p.b.Ordering(dyn, order)
}

// ---------------- sources -------------------------------------------------

func (p *parser) parseSource() (Source, error) {
	left, err := p.parseSourcePrimary()
	if err != nil {
		return nil, err
	}
	for {
		jt, ok, err := p.parseJoinType()
		if err != nil {
			return nil, err
		}
		if !ok {
			return left, nil
		}
		right, err := p.parseSourcePrimary()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokOn); err != nil {
			return nil, err
		}
		cond, err := p.parseJoinCondition()
		if err != nil {
			return nil, err
		}
		j, err := p.b.Join(left, right, jt, cond)
		if err != nil {
			return nil, err
		}
		left = j
	}
}

func (p *parser) parseSourcePrimary() (Source, error) {
	if p.match(tokLParen) {
		s, err := p.parseSource()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return s, nil
	}
	nodeType, err := p.parseName()
	if err != nil {
		return nil, err
	}
	name := ""
	if p.match(tokAs) {
		if name, err = p.parseName(); err != nil {
			return nil, err
		}
	}
	return p.b.Selector(nodeType, name)
}

func (p *parser) parseJoinType() (JoinType, bool, error) {
	switch {
	case p.match(tokJoin):
		return InnerJoin, true, nil
	case p.match(tokInner):
		_, err := p.expect(tokJoin)
		return InnerJoin, err == nil, err
	case p.match(tokLeft):
		p.match(tokOuter)
		_, err := p.expect(tokJoin)
		return LeftOuterJoin, err == nil, err
	case p.match(tokRight):
		p.match(tokOuter)
		_, err := p.expect(tokJoin)
		return RightOuterJoin, err == nil, err
	}
	return 0, false, nil
}

func (p *parser) parseJoinCondition() (JoinCondition, error) {
	for _, fn := range []string{"ISSAMENODE", "ISCHILDNODE", "ISDESCENDANTNODE"} {
		if !p.isFunc(fn) {
			continue
		}
		t := p.advance()
		args, err := p.parseNameArgs(3)
		if err != nil {
			return nil, err
		}
		switch {
		case fn == "ISSAMENODE" && (len(args) == 2 || len(args) == 3):
			path := ""
			if len(args) == 3 {
				path = args[2]
			}
			return p.b.SameNodeJoinCondition(args[0], args[1], path)
		case fn == "ISCHILDNODE" && len(args) == 2:
			return p.b.ChildNodeJoinCondition(args[0], args[1])
		case fn == "ISDESCENDANTNODE" && len(args) == 2:
			return p.b.DescendantNodeJoinCondition(args[0], args[1])
		}
		return nil, p.errorf(t, "wrong number of arguments to %s", fn)
	}

	s1, prop1, err := p.parseQualifiedProperty()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokEq); err != nil {
		return nil, err
	}
	s2, prop2, err := p.parseQualifiedProperty()
	if err != nil {
		return nil, err
	}
	return p.b.EquiJoinCondition(s1, prop1, s2, prop2)
}

func (p *parser) parseQualifiedProperty() (string, string, error) {
	sel, err := p.parseName()
	if err != nil {
		return "", "", err
	}
	if _, err := p.expect(tokDot); err != nil {
		return "", "", err
	}
	prop, err := p.parseName()
	return sel, prop, err
}

// parseNameArgs parses '(' name-or-path ( ',' name-or-path )* ')' with at
// most max arguments.
func (p *parser) parseNameArgs(max int) ([]string, error) {
	if _, err := p.expect(tokLParen); err != nil {
		return nil, err
	}
	var args []string
	if p.match(tokRParen) {
		return args, nil
	}
	for {
		if len(args) == max {
			return nil, p.errorf(p.cur(), "too many arguments")
		}
		a, err := p.parsePath()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		if !p.match(tokComma) {
			break
		}
	}
	if _, err := p.expect(tokRParen); err != nil {
		return nil, err
	}
	return args, nil
}

// ---------------- constraints ---------------------------------------------

func (p *parser) parseConstraint() (Constraint, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.match(tokOr) {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		if left, err = p.b.Or(left, right); err != nil {
			return nil, err
		}
	}
	return left, nil
}

func (p *parser) parseAnd() (Constraint, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.match(tokAnd) {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		if left, err = p.b.And(left, right); err != nil {
			return nil, err
		}
	}
	return left, nil
}

func (p *parser) parseNot() (Constraint, error) {
	if p.match(tokNot) {
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return p.b.Not(inner)
	}
	return p.parsePrimaryConstraint()
}

func (p *parser) parsePrimaryConstraint() (Constraint, error) {
	if p.match(tokLParen) {
		c, err := p.parseConstraint()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return c, nil
	}
	if p.isFunc("CONTAINS") {
		return p.parseContains()
	}
	for _, fn := range []string{"ISSAMENODE", "ISCHILDNODE", "ISDESCENDANTNODE"} {
		if p.isFunc(fn) {
			return p.parsePathConstraint(fn)
		}
	}
	return p.parseComparison()
}

func (p *parser) parseContains() (Constraint, error) {
	p.advance() // CONTAINS
	if _, err := p.expect(tokLParen); err != nil {
		return nil, err
	}
	first, err := p.parseName()
	if err != nil {
		return nil, err
	}
	selector, property := "", first
	if p.match(tokDot) {
		selector = first
		if p.match(tokStar) {
			property = ""
		} else if property, err = p.parseName(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(tokComma); err != nil {
		return nil, err
	}
	t := p.cur()
	op, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	expr, ok := op.(StaticOperand)
	if !ok {
		return nil, p.errorf(t, "CONTAINS expression must be a literal or bind variable")
	}
	if _, err := p.expect(tokRParen); err != nil {
		return nil, err
	}
	return p.b.FullTextSearch(p.selectorRef(selector), property, expr)
}

func (p *parser) parsePathConstraint(fn string) (Constraint, error) {
	t := p.advance()
	args, err := p.parseNameArgs(2)
	if err != nil {
		return nil, err
	}
	var selector, path string
	switch len(args) {
	case 1:
		path = args[0]
	case 2:
		selector, path = p.selectorRef(args[0]), args[1]
	default:
		return nil, p.errorf(t, "wrong number of arguments to %s", fn)
	}
	switch fn {
	case "ISSAMENODE":
		return p.b.SameNode(selector, path)
	case "ISCHILDNODE":
		return p.b.ChildNode(selector, path)
	}
	return p.b.DescendantNode(selector, path)
}

func comparisonOp(k TokenKind) (Operator, bool) {
	switch k {
	case tokEq:
		return OpEqual, true
	case tokNeq:
		return OpNotEqual, true
	case tokLt:
		return OpLess, true
	case tokLte:
		return OpLessOrEqual, true
	case tokGt:
		return OpGreater, true
	case tokGte:
		return OpGreaterOrEqual, true
	case tokLike:
		return OpLike, true
	}
	return 0, false
}

func (p *parser) parseComparison() (Constraint, error) {
	t := p.cur()
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	if p.match(tokIs) {
		negate := !p.match(tokNot)
		if _, err := p.expect(tokNull); err != nil {
			return nil, err
		}
		pv, ok := left.(*PropertyValue)
		if !ok {
			return nil, p.errorf(t, "IS NULL requires a property")
		}
		exists, err := p.b.PropertyExistence(pv.selector, pv.property)
		if err != nil {
			return nil, err
		}
		if negate {
			return p.b.Not(exists)
		}
		return exists, nil
	}

	opTok := p.cur()
	op, ok := comparisonOp(opTok.Kind)
	if !ok {
		return nil, p.errorf(opTok, "expected comparison operator but got %s", tokenKindName(opTok.Kind))
	}
	p.advance()
	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return p.b.Comparison(left, op, right)
}

// ---------------- operands ------------------------------------------------

func (p *parser) parseOperand() (Operand, error) {
	switch t := p.cur(); t.Kind {
	case tokString, tokInt, tokFloat, tokDash, tokCast:
		v, err := p.parseLiteralValue()
		if err != nil {
			return nil, err
		}
		return p.b.Literal(v)
	case tokParam:
		p.advance()
		return p.b.BindVariable(t.Text)
	}
	return p.parseDynamic()
}

func (p *parser) parseDynamic() (DynamicOperand, error) {
	t := p.cur()
	switch {
	case p.isFunc("LENGTH"):
		p.advance()
		p.advance() // (
		inner, err := p.parseDynamic()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		pv, ok := inner.(*PropertyValue)
		if !ok {
			return nil, p.errorf(t, "LENGTH requires a property")
		}
		return p.b.Length(pv)
	case p.isFunc("LOWER"), p.isFunc("UPPER"):
		upper := strings.EqualFold(t.Text, "UPPER")
		p.advance()
		p.advance() // (
		inner, err := p.parseDynamic()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		if upper {
			return p.b.UpperCase(inner)
		}
		return p.b.LowerCase(inner)
	case p.isFunc("SCORE"), p.isFunc("NAME"), p.isFunc("LOCALNAME"):
		p.advance()
		args, err := p.parseNameArgs(1)
		if err != nil {
			return nil, err
		}
		selector := ""
		if len(args) == 1 {
			selector = p.selectorRef(args[0])
		}
		switch strings.ToUpper(t.Text) {
		case "SCORE":
			return p.b.FullTextSearchScore(selector)
		case "NAME":
			return p.b.NodeName(selector)
		}
		return p.b.NodeLocalName(selector)
	case p.isName():
		first, _ := p.parseName()
		if p.match(tokDot) {
			prop, err := p.parseName()
			if err != nil {
				return nil, err
			}
			return p.b.PropertyValue(p.selectorRef(first), prop)
		}
		return p.b.PropertyValue("", first)
	}
	return nil, p.errorf(t, "expected operand but got %s", tokenKindName(t.Kind))
}

// parseLiteralValue parses a literal: a string, a possibly negated number
// or CAST(literal AS type).
func (p *parser) parseLiteralValue() (Value, error) {
	t := p.cur()
	switch t.Kind {
	case tokString:
		p.advance()
		return String(t.Text), nil
	case tokDash:
		p.advance()
		n := p.cur()
		if n.Kind != tokInt && n.Kind != tokFloat {
			return Value{}, p.errorf(n, "expected number after '-'")
		}
		p.advance()
		return numberValue(n, "-"+n.Text)
	case tokInt, tokFloat:
		p.advance()
		return numberValue(t, t.Text)
	case tokCast:
		p.advance()
		if _, err := p.expect(tokLParen); err != nil {
			return Value{}, err
		}
		inner, err := p.parseLiteralValue()
		if err != nil {
			return Value{}, err
		}
		if _, err := p.expect(tokAs); err != nil {
			return Value{}, err
		}
		typTok := p.cur()
		typName, err := p.parseName()
		if err != nil {
			return Value{}, err
		}
		typ, ok := ScalarTypeByName(typName)
		if !ok {
			return Value{}, p.errorf(typTok, "unknown type %q", typName)
		}
		if _, err := p.expect(tokRParen); err != nil {
			return Value{}, err
		}
		v, err := ParseValue(typ, inner.Text())
		if err != nil {
			return Value{}, &ParseError{Pos: t.Pos, Msg: "invalid CAST", Err: err}
		}
		return v, nil
	}
	return Value{}, p.errorf(t, "expected literal but got %s", tokenKindName(t.Kind))
}

// numberValue converts a numeric token: integers are LONG, or DECIMAL
// when they overflow 64 bits; anything with a fraction or exponent is
// DOUBLE.
func numberValue(t Token, text string) (Value, error) {
	if t.Kind == tokInt {
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			return Long(n), nil
		}
		return ParseValue(TypeDecimal, text)
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return Value{}, &ParseError{Pos: t.Pos, Msg: "invalid number " + text, Err: err}
	}
	return Double(f), nil
}
