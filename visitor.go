package repoql

import "fmt"

// Visitor has one method per AST variant. Passes over the tree
// (evaluation, serialization, bind substitution, inspection) implement it;
// node types never change to support a new pass.
//
// The interface is closed: an implementation must provide every method. A
// pass with nothing to do for a variant says so in that method rather than
// leaving it out.
type Visitor[T any] interface {
	VisitLiteral(*Literal) (T, error)
	VisitBindVariable(*BindVariable) (T, error)

	VisitPropertyValue(*PropertyValue) (T, error)
	VisitLength(*Length) (T, error)
	VisitLowerCase(*LowerCase) (T, error)
	VisitUpperCase(*UpperCase) (T, error)
	VisitFullTextSearchScore(*FullTextSearchScore) (T, error)
	VisitNodeName(*NodeName) (T, error)
	VisitNodeLocalName(*NodeLocalName) (T, error)

	VisitAnd(*And) (T, error)
	VisitOr(*Or) (T, error)
	VisitNot(*Not) (T, error)
	VisitComparison(*Comparison) (T, error)
	VisitPropertyExistence(*PropertyExistence) (T, error)
	VisitFullTextSearch(*FullTextSearch) (T, error)
	VisitSameNode(*SameNode) (T, error)
	VisitChildNode(*ChildNode) (T, error)
	VisitDescendantNode(*DescendantNode) (T, error)

	VisitEquiJoinCondition(*EquiJoinCondition) (T, error)
	VisitSameNodeJoinCondition(*SameNodeJoinCondition) (T, error)
	VisitChildNodeJoinCondition(*ChildNodeJoinCondition) (T, error)
	VisitDescendantNodeJoinCondition(*DescendantNodeJoinCondition) (T, error)

	VisitSelector(*Selector) (T, error)
	VisitJoin(*Join) (T, error)
	VisitColumn(*Column) (T, error)
	VisitOrdering(*Ordering) (T, error)
	VisitQuery(*Query) (T, error)
}

// Accept dispatches n to the Visitor method for its variant. Go methods
// cannot carry type parameters, so the node side of the double dispatch
// is this single switch on the node's kind tag.
func Accept[T any](n Node, v Visitor[T]) (T, error) {
	switch n.Kind() {
	case KindLiteral:
		return v.VisitLiteral(n.(*Literal))
	case KindBindVariable:
		return v.VisitBindVariable(n.(*BindVariable))
	case KindPropertyValue:
		return v.VisitPropertyValue(n.(*PropertyValue))
	case KindLength:
		return v.VisitLength(n.(*Length))
	case KindLowerCase:
		return v.VisitLowerCase(n.(*LowerCase))
	case KindUpperCase:
		return v.VisitUpperCase(n.(*UpperCase))
	case KindFullTextSearchScore:
		return v.VisitFullTextSearchScore(n.(*FullTextSearchScore))
	case KindNodeName:
		return v.VisitNodeName(n.(*NodeName))
	case KindNodeLocalName:
		return v.VisitNodeLocalName(n.(*NodeLocalName))
	case KindAnd:
		return v.VisitAnd(n.(*And))
	case KindOr:
		return v.VisitOr(n.(*Or))
	case KindNot:
		return v.VisitNot(n.(*Not))
	case KindComparison:
		return v.VisitComparison(n.(*Comparison))
	case KindPropertyExistence:
		return v.VisitPropertyExistence(n.(*PropertyExistence))
	case KindFullTextSearch:
		return v.VisitFullTextSearch(n.(*FullTextSearch))
	case KindSameNode:
		return v.VisitSameNode(n.(*SameNode))
	case KindChildNode:
		return v.VisitChildNode(n.(*ChildNode))
	case KindDescendantNode:
		return v.VisitDescendantNode(n.(*DescendantNode))
	case KindEquiJoinCondition:
		return v.VisitEquiJoinCondition(n.(*EquiJoinCondition))
	case KindSameNodeJoinCondition:
		return v.VisitSameNodeJoinCondition(n.(*SameNodeJoinCondition))
	case KindChildNodeJoinCondition:
		return v.VisitChildNodeJoinCondition(n.(*ChildNodeJoinCondition))
	case KindDescendantNodeJoinCondition:
		return v.VisitDescendantNodeJoinCondition(n.(*DescendantNodeJoinCondition))
	case KindSelector:
		return v.VisitSelector(n.(*Selector))
	case KindJoin:
		return v.VisitJoin(n.(*Join))
	case KindColumn:
		return v.VisitColumn(n.(*Column))
	case KindOrdering:
		return v.VisitOrdering(n.(*Ordering))
	case KindQuery:
		return v.VisitQuery(n.(*Query))
	}
	var zero T
	return zero, fmt.Errorf("repoql: unknown node kind %d", n.Kind())
}
