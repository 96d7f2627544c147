package repoql

// --------------------------------------------------------------------------
// Query AST: immutable node types for the SQL-2 style repository query
// language. Nodes are produced by Builder (directly or through the parser)
// and never change afterwards, so a built tree is shared freely between
// goroutines.
//
// Every node reports its variant through Kind(); Accept dispatches on that
// tag to the matching Visitor method.
// --------------------------------------------------------------------------

// NodeKind tags the concrete variant of a Node.
type NodeKind uint8

const (
	// static operands
	KindLiteral NodeKind = iota + 1
	KindBindVariable

	// dynamic operands
	KindPropertyValue
	KindLength
	KindLowerCase
	KindUpperCase
	KindFullTextSearchScore
	KindNodeName
	KindNodeLocalName

	// constraints
	KindAnd
	KindOr
	KindNot
	KindComparison
	KindPropertyExistence
	KindFullTextSearch
	KindSameNode
	KindChildNode
	KindDescendantNode

	// join conditions
	KindEquiJoinCondition
	KindSameNodeJoinCondition
	KindChildNodeJoinCondition
	KindDescendantNodeJoinCondition

	// sources and query metadata
	KindSelector
	KindJoin
	KindColumn
	KindOrdering
	KindQuery
)

var nodeKindNames = [...]string{
	KindLiteral:                     "Literal",
	KindBindVariable:                "BindVariable",
	KindPropertyValue:               "PropertyValue",
	KindLength:                      "Length",
	KindLowerCase:                   "LowerCase",
	KindUpperCase:                   "UpperCase",
	KindFullTextSearchScore:         "FullTextSearchScore",
	KindNodeName:                    "NodeName",
	KindNodeLocalName:               "NodeLocalName",
	KindAnd:                         "And",
	KindOr:                          "Or",
	KindNot:                         "Not",
	KindComparison:                  "Comparison",
	KindPropertyExistence:           "PropertyExistence",
	KindFullTextSearch:              "FullTextSearch",
	KindSameNode:                    "SameNode",
	KindChildNode:                   "ChildNode",
	KindDescendantNode:              "DescendantNode",
	KindEquiJoinCondition:           "EquiJoinCondition",
	KindSameNodeJoinCondition:       "SameNodeJoinCondition",
	KindChildNodeJoinCondition:      "ChildNodeJoinCondition",
	KindDescendantNodeJoinCondition: "DescendantNodeJoinCondition",
	KindSelector:                    "Selector",
	KindJoin:                        "Join",
	KindColumn:                      "Column",
	KindOrdering:                    "Ordering",
	KindQuery:                       "Query",
}

func (k NodeKind) String() string {
	if int(k) < len(nodeKindNames) && nodeKindNames[k] != "" {
		return nodeKindNames[k]
	}
	return "NodeKind(?)"
}

// Node is implemented by every AST node. The interface is sealed.
type Node interface {
	Kind() NodeKind
	node()
}

// Operand is a value-producing node.
type Operand interface {
	Node
	isOperand()
}

// StaticOperand does not depend on the row: a literal or a bind variable.
type StaticOperand interface {
	Operand
	staticOperand()
}

// DynamicOperand is resolved against the current row.
type DynamicOperand interface {
	Operand
	dynamicOperand()
}

// Constraint is a node evaluating to a three-valued boolean.
type Constraint interface {
	Node
	constraint()
}

// JoinCondition relates the selectors on the two sides of a Join.
type JoinCondition interface {
	Node
	joinCondition()
}

// Source produces rows: a Selector or a Join.
type Source interface {
	Node
	source()
}

// Operator is a comparison operator.
type Operator uint8

const (
	OpEqual Operator = iota + 1
	OpNotEqual
	OpLess
	OpLessOrEqual
	OpGreater
	OpGreaterOrEqual
	OpLike
)

func (op Operator) String() string {
	switch op {
	case OpEqual:
		return "="
	case OpNotEqual:
		return "<>"
	case OpLess:
		return "<"
	case OpLessOrEqual:
		return "<="
	case OpGreater:
		return ">"
	case OpGreaterOrEqual:
		return ">="
	case OpLike:
		return "LIKE"
	}
	return "?"
}

// JoinType is the kind of a Join.
type JoinType uint8

const (
	InnerJoin JoinType = iota + 1
	LeftOuterJoin
	RightOuterJoin
)

func (t JoinType) String() string {
	switch t {
	case InnerJoin:
		return "INNER JOIN"
	case LeftOuterJoin:
		return "LEFT OUTER JOIN"
	case RightOuterJoin:
		return "RIGHT OUTER JOIN"
	}
	return "JOIN"
}

// Order is a sort direction.
type Order uint8

const (
	Ascending Order = iota
	Descending
)

func (o Order) String() string {
	if o == Descending {
		return "DESC"
	}
	return "ASC"
}

// ---------------------------------------------------------------------------
// Static operands
// ---------------------------------------------------------------------------

// Literal wraps a constant value.
type Literal struct {
	value Value
}

func (n *Literal) Value() Value { return n.value }

// BindVariable is a named placeholder resolved from the binding table.
type BindVariable struct {
	name string
}

// Name returns the variable name without the '$' prefix.
func (n *BindVariable) Name() string { return n.name }

// ---------------------------------------------------------------------------
// Dynamic operands
// ---------------------------------------------------------------------------

// PropertyValue is the value of a named property on a selector's node.
type PropertyValue struct {
	selector string
	property string
}

func (n *PropertyValue) SelectorName() string { return n.selector }
func (n *PropertyValue) PropertyName() string { return n.property }

// Length is the length of a property value: byte length for BINARY,
// character count otherwise.
type Length struct {
	operand *PropertyValue
}

func (n *Length) Operand() *PropertyValue { return n.operand }

// LowerCase lower-cases the text of its operand.
type LowerCase struct {
	operand DynamicOperand
}

func (n *LowerCase) Operand() DynamicOperand { return n.operand }

// UpperCase upper-cases the text of its operand.
type UpperCase struct {
	operand DynamicOperand
}

func (n *UpperCase) Operand() DynamicOperand { return n.operand }

// FullTextSearchScore is the relevance score of the selector's node.
type FullTextSearchScore struct {
	selector string
}

func (n *FullTextSearchScore) SelectorName() string { return n.selector }

// NodeName is the qualified name of the selector's node.
type NodeName struct {
	selector string
}

func (n *NodeName) SelectorName() string { return n.selector }

// NodeLocalName is the name of the selector's node without its prefix.
type NodeLocalName struct {
	selector string
}

func (n *NodeLocalName) SelectorName() string { return n.selector }

// ---------------------------------------------------------------------------
// Constraints
// ---------------------------------------------------------------------------

// And is the three-valued conjunction of two constraints.
type And struct {
	left, right Constraint
}

func (n *And) Left() Constraint  { return n.left }
func (n *And) Right() Constraint { return n.right }

// Or is the three-valued disjunction of two constraints.
type Or struct {
	left, right Constraint
}

func (n *Or) Left() Constraint  { return n.left }
func (n *Or) Right() Constraint { return n.right }

// Not negates a constraint; Unknown stays Unknown.
type Not struct {
	inner Constraint
}

func (n *Not) Constraint() Constraint { return n.inner }

// Comparison compares two operands.
type Comparison struct {
	op          Operator
	left, right Operand
}

func (n *Comparison) Operator() Operator { return n.op }
func (n *Comparison) Left() Operand      { return n.left }
func (n *Comparison) Right() Operand     { return n.right }

// PropertyExistence holds when the selector's node has the property.
type PropertyExistence struct {
	selector string
	property string
}

func (n *PropertyExistence) SelectorName() string { return n.selector }
func (n *PropertyExistence) PropertyName() string { return n.property }

// FullTextSearch matches a full-text expression against one property of
// the selector's node, or against all of them when the property is "".
type FullTextSearch struct {
	selector   string
	property   string
	expression StaticOperand
}

func (n *FullTextSearch) SelectorName() string      { return n.selector }
func (n *FullTextSearch) PropertyName() string      { return n.property }
func (n *FullTextSearch) Expression() StaticOperand { return n.expression }

// SameNode holds when the selector's node is at the given path.
type SameNode struct {
	selector string
	path     string
}

func (n *SameNode) SelectorName() string { return n.selector }
func (n *SameNode) Path() string         { return n.path }

// ChildNode holds when the selector's node is a direct child of the path.
type ChildNode struct {
	selector   string
	parentPath string
}

func (n *ChildNode) SelectorName() string { return n.selector }
func (n *ChildNode) ParentPath() string   { return n.parentPath }

// DescendantNode holds when the selector's node is below the path.
type DescendantNode struct {
	selector     string
	ancestorPath string
}

func (n *DescendantNode) SelectorName() string { return n.selector }
func (n *DescendantNode) AncestorPath() string { return n.ancestorPath }

// ---------------------------------------------------------------------------
// Join conditions
// ---------------------------------------------------------------------------

// EquiJoinCondition holds when two properties compare equal.
type EquiJoinCondition struct {
	selector1, property1 string
	selector2, property2 string
}

func (n *EquiJoinCondition) Selector1Name() string { return n.selector1 }
func (n *EquiJoinCondition) Property1Name() string { return n.property1 }
func (n *EquiJoinCondition) Selector2Name() string { return n.selector2 }
func (n *EquiJoinCondition) Property2Name() string { return n.property2 }

// SameNodeJoinCondition holds when selector1's node is selector2's node,
// or the node at the relative path below it when the path is set.
type SameNodeJoinCondition struct {
	selector1, selector2 string
	path                 string
}

func (n *SameNodeJoinCondition) Selector1Name() string { return n.selector1 }
func (n *SameNodeJoinCondition) Selector2Name() string { return n.selector2 }
func (n *SameNodeJoinCondition) Path() string          { return n.path }

// ChildNodeJoinCondition holds when the child selector's node is a direct
// child of the parent selector's node.
type ChildNodeJoinCondition struct {
	childSelector, parentSelector string
}

func (n *ChildNodeJoinCondition) ChildSelectorName() string  { return n.childSelector }
func (n *ChildNodeJoinCondition) ParentSelectorName() string { return n.parentSelector }

// DescendantNodeJoinCondition holds when the descendant selector's node is
// below the ancestor selector's node.
type DescendantNodeJoinCondition struct {
	descendantSelector, ancestorSelector string
}

func (n *DescendantNodeJoinCondition) DescendantSelectorName() string {
	return n.descendantSelector
}
func (n *DescendantNodeJoinCondition) AncestorSelectorName() string { return n.ancestorSelector }

// ---------------------------------------------------------------------------
// Sources, columns, orderings, query
// ---------------------------------------------------------------------------

// Selector binds a name to the nodes of a node type.
type Selector struct {
	nodeType string
	name     string
}

func (n *Selector) NodeTypeName() string { return n.nodeType }
func (n *Selector) SelectorName() string { return n.name }

// Join combines two sources under a join condition.
type Join struct {
	left, right Source
	joinType    JoinType
	condition   JoinCondition
}

func (n *Join) Left() Source             { return n.left }
func (n *Join) Right() Source            { return n.right }
func (n *Join) JoinType() JoinType       { return n.joinType }
func (n *Join) Condition() JoinCondition { return n.condition }

// Column projects a property of a selector. An empty property name
// projects every property of the selector.
type Column struct {
	selector   string
	property   string
	columnName string
}

func (n *Column) SelectorName() string { return n.selector }
func (n *Column) PropertyName() string { return n.property }
func (n *Column) ColumnName() string   { return n.columnName }

// Ordering sorts rows by a dynamic operand.
type Ordering struct {
	operand DynamicOperand
	order   Order
}

func (n *Ordering) Operand() DynamicOperand { return n.operand }
func (n *Ordering) Order() Order            { return n.order }

// Query is the root of a compiled query.
type Query struct {
	columns    []*Column
	source     Source
	constraint Constraint // nil when there is no WHERE
	orderings  []*Ordering
}

// Columns returns the projected columns; empty means SELECT *.
func (n *Query) Columns() []*Column     { return append([]*Column(nil), n.columns...) }
func (n *Query) Source() Source         { return n.source }
func (n *Query) Constraint() Constraint { return n.constraint }
func (n *Query) Orderings() []*Ordering { return append([]*Ordering(nil), n.orderings...) }

// ---------------------------------------------------------------------------
// Variant tags and family markers
// ---------------------------------------------------------------------------

func (*Literal) Kind() NodeKind                     { return KindLiteral }
func (*BindVariable) Kind() NodeKind                { return KindBindVariable }
func (*PropertyValue) Kind() NodeKind               { return KindPropertyValue }
func (*Length) Kind() NodeKind                      { return KindLength }
func (*LowerCase) Kind() NodeKind                   { return KindLowerCase }
func (*UpperCase) Kind() NodeKind                   { return KindUpperCase }
func (*FullTextSearchScore) Kind() NodeKind         { return KindFullTextSearchScore }
func (*NodeName) Kind() NodeKind                    { return KindNodeName }
func (*NodeLocalName) Kind() NodeKind               { return KindNodeLocalName }
func (*And) Kind() NodeKind                         { return KindAnd }
func (*Or) Kind() NodeKind                          { return KindOr }
func (*Not) Kind() NodeKind                         { return KindNot }
func (*Comparison) Kind() NodeKind                  { return KindComparison }
func (*PropertyExistence) Kind() NodeKind           { return KindPropertyExistence }
func (*FullTextSearch) Kind() NodeKind              { return KindFullTextSearch }
func (*SameNode) Kind() NodeKind                    { return KindSameNode }
func (*ChildNode) Kind() NodeKind                   { return KindChildNode }
func (*DescendantNode) Kind() NodeKind              { return KindDescendantNode }
func (*EquiJoinCondition) Kind() NodeKind           { return KindEquiJoinCondition }
func (*SameNodeJoinCondition) Kind() NodeKind       { return KindSameNodeJoinCondition }
func (*ChildNodeJoinCondition) Kind() NodeKind      { return KindChildNodeJoinCondition }
func (*DescendantNodeJoinCondition) Kind() NodeKind { return KindDescendantNodeJoinCondition }
func (*Selector) Kind() NodeKind                    { return KindSelector }
func (*Join) Kind() NodeKind                        { return KindJoin }
func (*Column) Kind() NodeKind                      { return KindColumn }
func (*Ordering) Kind() NodeKind                    { return KindOrdering }
func (*Query) Kind() NodeKind                       { return KindQuery }

func (*Literal) node()                     {}
func (*BindVariable) node()                {}
func (*PropertyValue) node()               {}
func (*Length) node()                      {}
func (*LowerCase) node()                   {}
func (*UpperCase) node()                   {}
func (*FullTextSearchScore) node()         {}
func (*NodeName) node()                    {}
func (*NodeLocalName) node()               {}
func (*And) node()                         {}
func (*Or) node()                          {}
func (*Not) node()                         {}
func (*Comparison) node()                  {}
func (*PropertyExistence) node()           {}
func (*FullTextSearch) node()              {}
func (*SameNode) node()                    {}
func (*ChildNode) node()                   {}
func (*DescendantNode) node()              {}
func (*EquiJoinCondition) node()           {}
func (*SameNodeJoinCondition) node()       {}
func (*ChildNodeJoinCondition) node()      {}
func (*DescendantNodeJoinCondition) node() {}
func (*Selector) node()                    {}
func (*Join) node()                        {}
func (*Column) node()                      {}
func (*Ordering) node()                    {}
func (*Query) node()                       {}

func (*Literal) isOperand()             {}
func (*BindVariable) isOperand()        {}
func (*PropertyValue) isOperand()       {}
func (*Length) isOperand()              {}
func (*LowerCase) isOperand()           {}
func (*UpperCase) isOperand()           {}
func (*FullTextSearchScore) isOperand() {}
func (*NodeName) isOperand()            {}
func (*NodeLocalName) isOperand()       {}

func (*Literal) staticOperand()      {}
func (*BindVariable) staticOperand() {}

func (*PropertyValue) dynamicOperand()       {}
func (*Length) dynamicOperand()              {}
func (*LowerCase) dynamicOperand()           {}
func (*UpperCase) dynamicOperand()           {}
func (*FullTextSearchScore) dynamicOperand() {}
func (*NodeName) dynamicOperand()            {}
func (*NodeLocalName) dynamicOperand()       {}

func (*And) constraint()               {}
func (*Or) constraint()                {}
func (*Not) constraint()               {}
func (*Comparison) constraint()        {}
func (*PropertyExistence) constraint() {}
func (*FullTextSearch) constraint()    {}
func (*SameNode) constraint()          {}
func (*ChildNode) constraint()         {}
func (*DescendantNode) constraint()    {}

func (*EquiJoinCondition) joinCondition()           {}
func (*SameNodeJoinCondition) joinCondition()       {}
func (*ChildNodeJoinCondition) joinCondition()      {}
func (*DescendantNodeJoinCondition) joinCondition() {}

func (*Selector) source() {}
func (*Join) source()     {}
