package repoql

import "strings"

// Serialize renders n as query text. Parsing the output yields a tree that
// evaluates like n for every row and binding table. Serialize never fails
// for a tree produced by Builder; the output is the canonical explain form
// and the key under which prepared queries are compared.
func Serialize(n Node) string {
	if n == nil {
		return ""
	}
	s, _ := Accept[string](n, serializer{})
	return s
}

// quoteName renders a selector, property, node type or path in brackets,
// doubling any closing bracket.
func quoteName(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

type serializer struct{}

func (s serializer) str(n Node) string {
	out, _ := Accept[string](n, s)
	return out
}

func propText(selector, property string) string {
	if property == "" {
		return quoteName(selector) + ".*"
	}
	return quoteName(selector) + "." + quoteName(property)
}

func fnCall(fn string, args ...string) string {
	return fn + "(" + strings.Join(args, ", ") + ")"
}

func (s serializer) VisitLiteral(n *Literal) (string, error) { return n.value.QueryLiteral(), nil }

func (s serializer) VisitBindVariable(n *BindVariable) (string, error) { return "$" + n.name, nil }

func (s serializer) VisitPropertyValue(n *PropertyValue) (string, error) {
	return propText(n.selector, n.property), nil
}

func (s serializer) VisitLength(n *Length) (string, error) {
	return fnCall("LENGTH", s.str(n.operand)), nil
}

func (s serializer) VisitLowerCase(n *LowerCase) (string, error) {
	return fnCall("LOWER", s.str(n.operand)), nil
}

func (s serializer) VisitUpperCase(n *UpperCase) (string, error) {
	return fnCall("UPPER", s.str(n.operand)), nil
}

func (s serializer) VisitFullTextSearchScore(n *FullTextSearchScore) (string, error) {
	return fnCall("SCORE", quoteName(n.selector)), nil
}

func (s serializer) VisitNodeName(n *NodeName) (string, error) {
	return fnCall("NAME", quoteName(n.selector)), nil
}

func (s serializer) VisitNodeLocalName(n *NodeLocalName) (string, error) {
	return fnCall("LOCALNAME", quoteName(n.selector)), nil
}

// junct renders a child of AND/OR, parenthesising nested AND/OR.
func (s serializer) junct(c Constraint) string {
	switch c.(type) {
	case *And, *Or:
		return "(" + s.str(c) + ")"
	}
	return s.str(c)
}

func (s serializer) VisitAnd(n *And) (string, error) {
	return s.junct(n.left) + " AND " + s.junct(n.right), nil
}

func (s serializer) VisitOr(n *Or) (string, error) {
	return s.junct(n.left) + " OR " + s.junct(n.right), nil
}

func (s serializer) VisitNot(n *Not) (string, error) {
	return "NOT (" + s.str(n.inner) + ")", nil
}

func (s serializer) VisitComparison(n *Comparison) (string, error) {
	return s.str(n.left) + " " + n.op.String() + " " + s.str(n.right), nil
}

func (s serializer) VisitPropertyExistence(n *PropertyExistence) (string, error) {
	return propText(n.selector, n.property) + " IS NOT NULL", nil
}

func (s serializer) VisitFullTextSearch(n *FullTextSearch) (string, error) {
	return fnCall("CONTAINS", propText(n.selector, n.property), s.str(n.expression)), nil
}

func (s serializer) VisitSameNode(n *SameNode) (string, error) {
	return fnCall("ISSAMENODE", quoteName(n.selector), quoteName(n.path)), nil
}

func (s serializer) VisitChildNode(n *ChildNode) (string, error) {
	return fnCall("ISCHILDNODE", quoteName(n.selector), quoteName(n.parentPath)), nil
}

func (s serializer) VisitDescendantNode(n *DescendantNode) (string, error) {
	return fnCall("ISDESCENDANTNODE", quoteName(n.selector), quoteName(n.ancestorPath)), nil
}

func (s serializer) VisitEquiJoinCondition(n *EquiJoinCondition) (string, error) {
	return propText(n.selector1, n.property1) + " = " + propText(n.selector2, n.property2), nil
}

func (s serializer) VisitSameNodeJoinCondition(n *SameNodeJoinCondition) (string, error) {
	if n.path == "" {
		return fnCall("ISSAMENODE", quoteName(n.selector1), quoteName(n.selector2)), nil
	}
	return fnCall("ISSAMENODE", quoteName(n.selector1), quoteName(n.selector2), quoteName(n.path)), nil
}

func (s serializer) VisitChildNodeJoinCondition(n *ChildNodeJoinCondition) (string, error) {
	return fnCall("ISCHILDNODE", quoteName(n.childSelector), quoteName(n.parentSelector)), nil
}

func (s serializer) VisitDescendantNodeJoinCondition(n *DescendantNodeJoinCondition) (string, error) {
	return fnCall("ISDESCENDANTNODE", quoteName(n.descendantSelector), quoteName(n.ancestorSelector)), nil
}

func (s serializer) VisitSelector(n *Selector) (string, error) {
	return quoteName(n.nodeType) + " AS " + quoteName(n.name), nil
}

// VisitJoin renders joins left-associatively; a join on the right side is
// parenthesised.
func (s serializer) VisitJoin(n *Join) (string, error) {
	right := s.str(n.right)
	if _, nested := n.right.(*Join); nested {
		right = "(" + right + ")"
	}
	return s.str(n.left) + " " + n.joinType.String() + " " + right + " ON " + s.str(n.condition), nil
}

func (s serializer) VisitColumn(n *Column) (string, error) {
	if n.property == "" {
		return propText(n.selector, ""), nil
	}
	return propText(n.selector, n.property) + " AS " + quoteName(n.columnName), nil
}

func (s serializer) VisitOrdering(n *Ordering) (string, error) {
	return s.str(n.operand) + " " + n.order.String(), nil
}

func (s serializer) VisitQuery(n *Query) (string, error) {
	var b strings.Builder
	b.WriteString("SELECT ")
	if len(n.columns) == 0 {
		b.WriteString("*")
	}
	for i, c := range n.columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(s.str(c))
	}
	b.WriteString(" FROM ")
	b.WriteString(s.str(n.source))
	if n.constraint != nil {
		b.WriteString(" WHERE ")
		b.WriteString(s.str(n.constraint))
	}
	for i, o := range n.orderings {
		if i == 0 {
			b.WriteString(" ORDER BY ")
		} else {
			b.WriteString(", ")
		}
		b.WriteString(s.str(o))
	}
	return b.String(), nil
}
