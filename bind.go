package repoql

// Substitute returns a copy of n in which every bind variable defined in b
// is replaced by a literal of its value. Variables missing from b are kept.
// n is not modified and shares no node with the result.
func Substitute(n Node, b Bindings) Node {
	if n == nil {
		return nil
	}
	out, _ := Accept[Node](n, substituter{binds: b})
	return out
}

// SubstituteQuery is Substitute for a whole query.
func SubstituteQuery(q *Query, b Bindings) *Query {
	if q == nil {
		return nil
	}
	return Substitute(q, b).(*Query)
}

type substituter struct {
	binds Bindings
}

func (s substituter) copy(n Node) Node {
	out, _ := Accept[Node](n, s)
	return out
}

func (s substituter) operand(n Operand) Operand {
	return s.copy(n).(Operand)
}

func (s substituter) dynamic(n DynamicOperand) DynamicOperand {
	return s.copy(n).(DynamicOperand)
}

func (s substituter) static(n StaticOperand) StaticOperand {
	return s.copy(n).(StaticOperand)
}

func (s substituter) constraint(n Constraint) Constraint {
	return s.copy(n).(Constraint)
}

func (s substituter) source(n Source) Source {
	return s.copy(n).(Source)
}

func (s substituter) VisitLiteral(n *Literal) (Node, error) {
	return &Literal{value: n.value}, nil
}

func (s substituter) VisitBindVariable(n *BindVariable) (Node, error) {
	if v, ok := s.binds[n.name]; ok {
		return &Literal{value: v}, nil
	}
	return &BindVariable{name: n.name}, nil
}

func (s substituter) VisitPropertyValue(n *PropertyValue) (Node, error) {
	c := *n
	return &c, nil
}

func (s substituter) VisitLength(n *Length) (Node, error) {
	return &Length{operand: s.copy(n.operand).(*PropertyValue)}, nil
}

func (s substituter) VisitLowerCase(n *LowerCase) (Node, error) {
	return &LowerCase{operand: s.dynamic(n.operand)}, nil
}

func (s substituter) VisitUpperCase(n *UpperCase) (Node, error) {
	return &UpperCase{operand: s.dynamic(n.operand)}, nil
}

func (s substituter) VisitFullTextSearchScore(n *FullTextSearchScore) (Node, error) {
	c := *n
	return &c, nil
}

func (s substituter) VisitNodeName(n *NodeName) (Node, error) {
	c := *n
	return &c, nil
}

func (s substituter) VisitNodeLocalName(n *NodeLocalName) (Node, error) {
	c := *n
	return &c, nil
}

func (s substituter) VisitAnd(n *And) (Node, error) {
	return &And{left: s.constraint(n.left), right: s.constraint(n.right)}, nil
}

func (s substituter) VisitOr(n *Or) (Node, error) {
	return &Or{left: s.constraint(n.left), right: s.constraint(n.right)}, nil
}

func (s substituter) VisitNot(n *Not) (Node, error) {
	return &Not{inner: s.constraint(n.inner)}, nil
}

func (s substituter) VisitComparison(n *Comparison) (Node, error) {
	return &Comparison{op: n.op, left: s.operand(n.left), right: s.operand(n.right)}, nil
}

func (s substituter) VisitPropertyExistence(n *PropertyExistence) (Node, error) {
	c := *n
	return &c, nil
}

func (s substituter) VisitFullTextSearch(n *FullTextSearch) (Node, error) {
	return &FullTextSearch{
		selector:   n.selector,
		property:   n.property,
		expression: s.static(n.expression),
	}, nil
}

func (s substituter) VisitSameNode(n *SameNode) (Node, error) {
	c := *n
	return &c, nil
}

func (s substituter) VisitChildNode(n *ChildNode) (Node, error) {
	c := *n
	return &c, nil
}

func (s substituter) VisitDescendantNode(n *DescendantNode) (Node, error) {
	c := *n
	return &c, nil
}

func (s substituter) VisitEquiJoinCondition(n *EquiJoinCondition) (Node, error) {
	c := *n
	return &c, nil
}

func (s substituter) VisitSameNodeJoinCondition(n *SameNodeJoinCondition) (Node, error) {
	c := *n
	return &c, nil
}

func (s substituter) VisitChildNodeJoinCondition(n *ChildNodeJoinCondition) (Node, error) {
	c := *n
	return &c, nil
}

func (s substituter) VisitDescendantNodeJoinCondition(n *DescendantNodeJoinCondition) (Node, error) {
	c := *n
	return &c, nil
}

func (s substituter) VisitSelector(n *Selector) (Node, error) {
	c := *n
	return &c, nil
}

func (s substituter) VisitJoin(n *Join) (Node, error) {
	return &Join{
		left:      s.source(n.left),
		right:     s.source(n.right),
		joinType:  n.joinType,
		condition: s.copy(n.condition).(JoinCondition),
	}, nil
}

func (s substituter) VisitColumn(n *Column) (Node, error) {
	c := *n
	return &c, nil
}

func (s substituter) VisitOrdering(n *Ordering) (Node, error) {
	return &Ordering{operand: s.dynamic(n.operand), order: n.order}, nil
}

func (s substituter) VisitQuery(n *Query) (Node, error) {
	q := &Query{source: s.source(n.source)}
	for _, c := range n.columns {
		q.columns = append(q.columns, s.copy(c).(*Column))
	}
	if n.constraint != nil {
		q.constraint = s.constraint(n.constraint)
	}
	for _, o := range n.orderings {
		q.orderings = append(q.orderings, s.copy(o).(*Ordering))
	}
	return q, nil
}
