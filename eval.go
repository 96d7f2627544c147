package repoql

import (
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Tri is a three-valued boolean. The zero value is Unknown.
type Tri uint8

const (
	Unknown Tri = iota
	False
	True
)

func (t Tri) String() string {
	switch t {
	case True:
		return "TRUE"
	case False:
		return "FALSE"
	}
	return "UNKNOWN"
}

func triOf(b bool) Tri {
	if b {
		return True
	}
	return False
}

// And is SQL conjunction: False wins, then Unknown.
func (t Tri) And(o Tri) Tri {
	switch {
	case t == False || o == False:
		return False
	case t == Unknown || o == Unknown:
		return Unknown
	}
	return True
}

// Or is SQL disjunction: True wins, then Unknown.
func (t Tri) Or(o Tri) Tri {
	switch {
	case t == True || o == True:
		return True
	case t == Unknown || o == Unknown:
		return Unknown
	}
	return False
}

func (t Tri) Not() Tri {
	switch t {
	case True:
		return False
	case False:
		return True
	}
	return Unknown
}

// --------------------------------------------------------------------------
// Evaluation
// --------------------------------------------------------------------------

// Evaluate reduces c to a three-valued result for one row. Missing data
// and incomparable values yield Unknown; the only error is an
// *UnboundVariableError for a bind variable absent from b. A nil
// constraint is True.
//
// Evaluate only reads c, row and b, so one tree can be evaluated from any
// number of goroutines at once, each with its own row.
func Evaluate(c Constraint, row Row, b Bindings) (Tri, error) {
	if c == nil {
		return True, nil
	}
	r, err := Accept[evalResult](c, &evaluator{row: row, binds: b})
	if err != nil {
		return Unknown, err
	}
	return r.tri, nil
}

// EvaluateJoinCondition evaluates a join condition over a joined row.
func EvaluateJoinCondition(jc JoinCondition, row Row) (Tri, error) {
	r, err := Accept[evalResult](jc, &evaluator{row: row})
	if err != nil {
		return Unknown, err
	}
	return r.tri, nil
}

// EvaluateOperand resolves op against row and b. ok is false when the
// operand has no value, e.g. an absent property.
func EvaluateOperand(op Operand, row Row, b Bindings) (v Value, ok bool, err error) {
	r, err := Accept[evalResult](op, &evaluator{row: row, binds: b})
	if err != nil {
		return Value{}, false, err
	}
	return r.val, r.ok, nil
}

// evalResult carries either a truth value (constraints) or an optional
// scalar (operands).
type evalResult struct {
	tri Tri
	val Value
	ok  bool
}

func truth(t Tri) (evalResult, error) { return evalResult{tri: t}, nil }

func scalar(v Value) (evalResult, error) { return evalResult{val: v, ok: true}, nil }

var absent = evalResult{}

type evaluator struct {
	row   Row
	binds Bindings
}

func (e *evaluator) operand(op Operand) (Value, bool, error) {
	r, err := Accept[evalResult](op, e)
	return r.val, r.ok, err
}

func (e *evaluator) truth(c Node) (Tri, error) {
	r, err := Accept[evalResult](c, e)
	return r.tri, err
}

// ---------------------------------------------------------------------------
// Operands
// ---------------------------------------------------------------------------

func (e *evaluator) VisitLiteral(n *Literal) (evalResult, error) { return scalar(n.value) }

func (e *evaluator) VisitBindVariable(n *BindVariable) (evalResult, error) {
	v, ok := e.binds[n.name]
	if !ok {
		return absent, &UnboundVariableError{Name: n.name}
	}
	return scalar(v)
}

func (e *evaluator) VisitPropertyValue(n *PropertyValue) (evalResult, error) {
	v, ok := e.row.PropertyValue(n.selector, n.property)
	if !ok {
		return absent, nil
	}
	return scalar(v)
}

func (e *evaluator) VisitLength(n *Length) (evalResult, error) {
	v, ok, err := e.operand(n.operand)
	if err != nil || !ok {
		return absent, err
	}
	if v.typ == TypeBinary {
		return scalar(Long(int64(len(v.str))))
	}
	return scalar(Long(int64(utf8.RuneCountInString(v.Text()))))
}

func (e *evaluator) VisitLowerCase(n *LowerCase) (evalResult, error) {
	v, ok, err := e.operand(n.operand)
	if err != nil || !ok {
		return absent, err
	}
	return scalar(String(cases.Lower(language.Und).String(v.Text())))
}

func (e *evaluator) VisitUpperCase(n *UpperCase) (evalResult, error) {
	v, ok, err := e.operand(n.operand)
	if err != nil || !ok {
		return absent, err
	}
	return scalar(String(cases.Upper(language.Und).String(v.Text())))
}

func (e *evaluator) VisitFullTextSearchScore(n *FullTextSearchScore) (evalResult, error) {
	s, ok := e.row.FullTextScore(n.selector)
	if !ok {
		return absent, nil
	}
	return scalar(Double(s))
}

func (e *evaluator) VisitNodeName(n *NodeName) (evalResult, error) {
	p, ok := e.row.Path(n.selector)
	if !ok {
		return absent, nil
	}
	return scalar(Value{typ: TypeName, str: pathName(p)})
}

func (e *evaluator) VisitNodeLocalName(n *NodeLocalName) (evalResult, error) {
	p, ok := e.row.Path(n.selector)
	if !ok {
		return absent, nil
	}
	return scalar(Value{typ: TypeName, str: localName(pathName(p))})
}

// ---------------------------------------------------------------------------
// Constraints
// ---------------------------------------------------------------------------

func (e *evaluator) VisitAnd(n *And) (evalResult, error) {
	l, err := e.truth(n.left)
	if err != nil || l == False {
		return evalResult{tri: l}, err
	}
	r, err := e.truth(n.right)
	if err != nil {
		return absent, err
	}
	return truth(l.And(r))
}

func (e *evaluator) VisitOr(n *Or) (evalResult, error) {
	l, err := e.truth(n.left)
	if err != nil || l == True {
		return evalResult{tri: l}, err
	}
	r, err := e.truth(n.right)
	if err != nil {
		return absent, err
	}
	return truth(l.Or(r))
}

func (e *evaluator) VisitNot(n *Not) (evalResult, error) {
	t, err := e.truth(n.inner)
	if err != nil {
		return absent, err
	}
	return truth(t.Not())
}

func (e *evaluator) VisitComparison(n *Comparison) (evalResult, error) {
	l, lok, err := e.operand(n.left)
	if err != nil {
		return absent, err
	}
	r, rok, err := e.operand(n.right)
	if err != nil {
		return absent, err
	}
	if !lok || !rok {
		return truth(Unknown)
	}
	if n.op == OpLike {
		if !r.typ.textual() {
			return truth(Unknown)
		}
		return truth(triOf(likeMatch(l.Text(), r.Text())))
	}
	c, ok := Compare(l, r)
	if !ok {
		return truth(Unknown)
	}
	return truth(triOf(n.op.holds(c)))
}

// holds applies a non-LIKE operator to a comparison result.
func (op Operator) holds(c int) bool {
	switch op {
	case OpEqual:
		return c == 0
	case OpNotEqual:
		return c != 0
	case OpLess:
		return c < 0
	case OpLessOrEqual:
		return c <= 0
	case OpGreater:
		return c > 0
	case OpGreaterOrEqual:
		return c >= 0
	}
	return false
}

func (e *evaluator) VisitPropertyExistence(n *PropertyExistence) (evalResult, error) {
	_, ok := e.row.PropertyValue(n.selector, n.property)
	return truth(triOf(ok))
}

func (e *evaluator) VisitFullTextSearch(n *FullTextSearch) (evalResult, error) {
	v, ok, err := e.operand(n.expression)
	if err != nil || !ok {
		return absent, err
	}
	return truth(e.row.FullTextMatch(n.selector, n.property, v.Text()))
}

func (e *evaluator) VisitSameNode(n *SameNode) (evalResult, error) {
	p, ok := e.row.Path(n.selector)
	if !ok {
		return truth(Unknown)
	}
	return truth(triOf(normalizePath(p) == n.path))
}

func (e *evaluator) VisitChildNode(n *ChildNode) (evalResult, error) {
	p, ok := e.row.Path(n.selector)
	if !ok {
		return truth(Unknown)
	}
	parent, ok := parentPath(p)
	return truth(triOf(ok && parent == n.parentPath))
}

func (e *evaluator) VisitDescendantNode(n *DescendantNode) (evalResult, error) {
	p, ok := e.row.Path(n.selector)
	if !ok {
		return truth(Unknown)
	}
	return truth(triOf(isDescendantPath(p, n.ancestorPath)))
}

// ---------------------------------------------------------------------------
// Join conditions
// ---------------------------------------------------------------------------

func (e *evaluator) VisitEquiJoinCondition(n *EquiJoinCondition) (evalResult, error) {
	a, aok := e.row.PropertyValue(n.selector1, n.property1)
	b, bok := e.row.PropertyValue(n.selector2, n.property2)
	if !aok || !bok {
		return truth(Unknown)
	}
	c, ok := Compare(a, b)
	if !ok {
		return truth(Unknown)
	}
	return truth(triOf(c == 0))
}

func (e *evaluator) paths(s1, s2 string) (string, string, bool) {
	p1, ok1 := e.row.Path(s1)
	p2, ok2 := e.row.Path(s2)
	return normalizePath(p1), normalizePath(p2), ok1 && ok2
}

func (e *evaluator) VisitSameNodeJoinCondition(n *SameNodeJoinCondition) (evalResult, error) {
	p1, p2, ok := e.paths(n.selector1, n.selector2)
	if !ok {
		return truth(Unknown)
	}
	if n.path != "" {
		p2 = resolvePath(p2, n.path)
	}
	return truth(triOf(p1 == p2))
}

func (e *evaluator) VisitChildNodeJoinCondition(n *ChildNodeJoinCondition) (evalResult, error) {
	child, parent, ok := e.paths(n.childSelector, n.parentSelector)
	if !ok {
		return truth(Unknown)
	}
	pp, ok := parentPath(child)
	return truth(triOf(ok && pp == parent))
}

func (e *evaluator) VisitDescendantNodeJoinCondition(n *DescendantNodeJoinCondition) (evalResult, error) {
	d, a, ok := e.paths(n.descendantSelector, n.ancestorSelector)
	if !ok {
		return truth(Unknown)
	}
	return truth(triOf(isDescendantPath(d, a)))
}

// ---------------------------------------------------------------------------
// Sources and query metadata
// ---------------------------------------------------------------------------

// VisitSelector is True when the row holds a node for the selector.
func (e *evaluator) VisitSelector(n *Selector) (evalResult, error) {
	_, ok := e.row.Path(n.name)
	return truth(triOf(ok))
}

// VisitJoin evaluates the join condition.
func (e *evaluator) VisitJoin(n *Join) (evalResult, error) {
	t, err := e.truth(n.condition)
	return evalResult{tri: t}, err
}

// VisitColumn resolves the projected property; a whole-node column has no
// single value.
func (e *evaluator) VisitColumn(n *Column) (evalResult, error) {
	if n.property == "" {
		return absent, nil
	}
	v, ok := e.row.PropertyValue(n.selector, n.property)
	if !ok {
		return absent, nil
	}
	return scalar(v)
}

// VisitOrdering resolves the sort key.
func (e *evaluator) VisitOrdering(n *Ordering) (evalResult, error) {
	return Accept[evalResult](n.operand, e)
}

// VisitQuery evaluates the WHERE clause.
func (e *evaluator) VisitQuery(n *Query) (evalResult, error) {
	if n.constraint == nil {
		return truth(True)
	}
	t, err := e.truth(n.constraint)
	return evalResult{tri: t}, err
}

// ---------------------------------------------------------------------------
// LIKE
// ---------------------------------------------------------------------------

type likeKind uint8

const (
	likeRune likeKind = iota
	likeOne           // _
	likeAny           // %
)

type likeToken struct {
	kind likeKind
	r    rune
}

func compileLike(pattern string) []likeToken {
	var toks []likeToken
	rs := []rune(pattern)
	for i := 0; i < len(rs); i++ {
		switch r := rs[i]; {
		case r == '\\' && i+1 < len(rs):
			i++
			toks = append(toks, likeToken{kind: likeRune, r: rs[i]})
		case r == '%':
			if len(toks) == 0 || toks[len(toks)-1].kind != likeAny {
				toks = append(toks, likeToken{kind: likeAny})
			}
		case r == '_':
			toks = append(toks, likeToken{kind: likeOne})
		default:
			toks = append(toks, likeToken{kind: likeRune, r: r})
		}
	}
	return toks
}

// likeMatch matches s against a LIKE pattern: '%' is any run of runes,
// '_' exactly one rune, '\' escapes the next rune.
func likeMatch(s, pattern string) bool {
	p := compileLike(pattern)
	str := []rune(s)
	si, pi := 0, 0
	star, mark := -1, 0
	for si < len(str) {
		switch {
		case pi < len(p) && (p[pi].kind == likeOne || (p[pi].kind == likeRune && p[pi].r == str[si])):
			si++
			pi++
		case pi < len(p) && p[pi].kind == likeAny:
			star, mark = pi, si
			pi++
		case star >= 0:
			mark++
			si, pi = mark, star+1
		default:
			return false
		}
	}
	for pi < len(p) && p[pi].kind == likeAny {
		pi++
	}
	return pi == len(p)
}
