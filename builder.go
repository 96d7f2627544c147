package repoql

import "strings"

// Builder constructs AST nodes bottom-up and is the only place validity is
// checked. Each method either returns a valid node or a
// *PlanConstructionError; a failed call leaves no node attached anywhere.
//
// A node may be attached to at most one parent, so every tree built by a
// Builder has exclusive parent-to-child ownership. Selectors must be
// declared (Selector) before anything refers to them by name.
//
// A Builder is not safe for concurrent use; the nodes it returns are.
type Builder struct {
	selectors map[string]*Selector
	owned     map[Node]struct{}
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		selectors: make(map[string]*Selector),
		owned:     make(map[Node]struct{}),
	}
}

// attach records children as owned by a new parent. It fails without side
// effects if any child is missing or already owned.
func (b *Builder) attach(parent string, children ...Node) error {
	local := make(map[Node]struct{}, len(children))
	for _, c := range children {
		if c == nil {
			return planErr(parent, "missing child node")
		}
		if _, ok := b.owned[c]; ok {
			return planErr(parent, "%s is already attached to another node", c.Kind())
		}
		if _, ok := local[c]; ok {
			return planErr(parent, "%s is used twice", c.Kind())
		}
		local[c] = struct{}{}
	}
	for c := range local {
		b.owned[c] = struct{}{}
	}
	return nil
}

// selector resolves a selector reference. An empty name is allowed when
// exactly one selector has been declared.
func (b *Builder) selector(parent, name string) (string, error) {
	if name == "" {
		if len(b.selectors) == 1 {
			for only := range b.selectors {
				return only, nil
			}
		}
		return "", planErr(parent, "selector name required when %d selectors are declared", len(b.selectors))
	}
	if _, ok := b.selectors[name]; !ok {
		return "", planErr(parent, "unknown selector %q", name)
	}
	return name, nil
}

// absolutePath normalizes p and rejects it unless it is absolute with no
// empty segments.
func absolutePath(parent, p string) (string, error) {
	if !strings.HasPrefix(p, "/") {
		return "", planErr(parent, "path %q is not absolute", p)
	}
	norm := normalizePath(p)
	if err := checkPath(norm); err != nil {
		return "", &PlanConstructionError{Node: parent, Msg: "invalid path " + p, Err: err}
	}
	return norm, nil
}

// ---------------------------------------------------------------------------
// Operands
// ---------------------------------------------------------------------------

func (b *Builder) Literal(v Value) (*Literal, error) {
	if !v.IsValid() {
		return nil, planErr("Literal", "invalid value")
	}
	return &Literal{value: v}, nil
}

func (b *Builder) BindVariable(name string) (*BindVariable, error) {
	if name == "" {
		return nil, planErr("BindVariable", "empty variable name")
	}
	return &BindVariable{name: name}, nil
}

func (b *Builder) PropertyValue(selector, property string) (*PropertyValue, error) {
	sel, err := b.selector("PropertyValue", selector)
	if err != nil {
		return nil, err
	}
	if property == "" {
		return nil, planErr("PropertyValue", "empty property name")
	}
	return &PropertyValue{selector: sel, property: property}, nil
}

func (b *Builder) Length(operand *PropertyValue) (*Length, error) {
	if operand == nil {
		return nil, planErr("Length", "LENGTH requires a property value")
	}
	if err := b.attach("Length", operand); err != nil {
		return nil, err
	}
	return &Length{operand: operand}, nil
}

func (b *Builder) LowerCase(operand DynamicOperand) (*LowerCase, error) {
	if err := b.attach("LowerCase", operand); err != nil {
		return nil, err
	}
	return &LowerCase{operand: operand}, nil
}

func (b *Builder) UpperCase(operand DynamicOperand) (*UpperCase, error) {
	if err := b.attach("UpperCase", operand); err != nil {
		return nil, err
	}
	return &UpperCase{operand: operand}, nil
}

func (b *Builder) FullTextSearchScore(selector string) (*FullTextSearchScore, error) {
	sel, err := b.selector("FullTextSearchScore", selector)
	if err != nil {
		return nil, err
	}
	return &FullTextSearchScore{selector: sel}, nil
}

func (b *Builder) NodeName(selector string) (*NodeName, error) {
	sel, err := b.selector("NodeName", selector)
	if err != nil {
		return nil, err
	}
	return &NodeName{selector: sel}, nil
}

func (b *Builder) NodeLocalName(selector string) (*NodeLocalName, error) {
	sel, err := b.selector("NodeLocalName", selector)
	if err != nil {
		return nil, err
	}
	return &NodeLocalName{selector: sel}, nil
}

// ---------------------------------------------------------------------------
// Constraints
// ---------------------------------------------------------------------------

func (b *Builder) And(left, right Constraint) (*And, error) {
	if err := b.attach("And", left, right); err != nil {
		return nil, err
	}
	return &And{left: left, right: right}, nil
}

func (b *Builder) Or(left, right Constraint) (*Or, error) {
	if err := b.attach("Or", left, right); err != nil {
		return nil, err
	}
	return &Or{left: left, right: right}, nil
}

func (b *Builder) Not(c Constraint) (*Not, error) {
	if err := b.attach("Not", c); err != nil {
		return nil, err
	}
	return &Not{inner: c}, nil
}

// Comparison builds left op right. When both operands are literals their
// values must be comparable; a LIKE pattern literal must be textual.
func (b *Builder) Comparison(left Operand, op Operator, right Operand) (*Comparison, error) {
	if op < OpEqual || op > OpLike {
		return nil, planErr("Comparison", "unknown operator %d", op)
	}
	if lit, ok := right.(*Literal); ok && op == OpLike && !lit.value.typ.textual() {
		return nil, planErr("Comparison", "LIKE pattern must be text, got %s", lit.value.typ)
	}
	ll, lok := left.(*Literal)
	rl, rok := right.(*Literal)
	if lok && rok && op != OpLike {
		if _, ok := Compare(ll.value, rl.value); !ok {
			return nil, planErr("Comparison", "%s and %s are not comparable", ll.value.typ, rl.value.typ)
		}
	}
	if err := b.attach("Comparison", left, right); err != nil {
		return nil, err
	}
	return &Comparison{op: op, left: left, right: right}, nil
}

func (b *Builder) PropertyExistence(selector, property string) (*PropertyExistence, error) {
	sel, err := b.selector("PropertyExistence", selector)
	if err != nil {
		return nil, err
	}
	if property == "" {
		return nil, planErr("PropertyExistence", "empty property name")
	}
	return &PropertyExistence{selector: sel, property: property}, nil
}

// FullTextSearch builds CONTAINS; an empty property searches every
// property of the node.
func (b *Builder) FullTextSearch(selector, property string, expression StaticOperand) (*FullTextSearch, error) {
	sel, err := b.selector("FullTextSearch", selector)
	if err != nil {
		return nil, err
	}
	if lit, ok := expression.(*Literal); ok && !lit.value.typ.textual() {
		return nil, planErr("FullTextSearch", "search expression must be text, got %s", lit.value.typ)
	}
	if err := b.attach("FullTextSearch", expression); err != nil {
		return nil, err
	}
	return &FullTextSearch{selector: sel, property: property, expression: expression}, nil
}

func (b *Builder) SameNode(selector, path string) (*SameNode, error) {
	sel, err := b.selector("SameNode", selector)
	if err != nil {
		return nil, err
	}
	norm, err := absolutePath("SameNode", path)
	if err != nil {
		return nil, err
	}
	return &SameNode{selector: sel, path: norm}, nil
}

func (b *Builder) ChildNode(selector, parentPath string) (*ChildNode, error) {
	sel, err := b.selector("ChildNode", selector)
	if err != nil {
		return nil, err
	}
	norm, err := absolutePath("ChildNode", parentPath)
	if err != nil {
		return nil, err
	}
	return &ChildNode{selector: sel, parentPath: norm}, nil
}

func (b *Builder) DescendantNode(selector, ancestorPath string) (*DescendantNode, error) {
	sel, err := b.selector("DescendantNode", selector)
	if err != nil {
		return nil, err
	}
	norm, err := absolutePath("DescendantNode", ancestorPath)
	if err != nil {
		return nil, err
	}
	return &DescendantNode{selector: sel, ancestorPath: norm}, nil
}

// ---------------------------------------------------------------------------
// Join conditions
// ---------------------------------------------------------------------------

func (b *Builder) twoSelectors(parent, s1, s2 string) error {
	for _, name := range []string{s1, s2} {
		if name == "" {
			return planErr(parent, "selector name required")
		}
		if _, ok := b.selectors[name]; !ok {
			return planErr(parent, "unknown selector %q", name)
		}
	}
	if s1 == s2 {
		return planErr(parent, "both sides refer to selector %q", s1)
	}
	return nil
}

func (b *Builder) EquiJoinCondition(selector1, property1, selector2, property2 string) (*EquiJoinCondition, error) {
	if err := b.twoSelectors("EquiJoinCondition", selector1, selector2); err != nil {
		return nil, err
	}
	if property1 == "" || property2 == "" {
		return nil, planErr("EquiJoinCondition", "empty property name")
	}
	return &EquiJoinCondition{
		selector1: selector1, property1: property1,
		selector2: selector2, property2: property2,
	}, nil
}

// SameNodeJoinCondition builds ISSAMENODE(s1, s2[, path]); path, when set,
// is relative to selector2's node.
func (b *Builder) SameNodeJoinCondition(selector1, selector2, path string) (*SameNodeJoinCondition, error) {
	if err := b.twoSelectors("SameNodeJoinCondition", selector1, selector2); err != nil {
		return nil, err
	}
	if path != "" {
		if err := checkPath(path); err != nil {
			return nil, &PlanConstructionError{Node: "SameNodeJoinCondition", Msg: "invalid path " + path, Err: err}
		}
	}
	return &SameNodeJoinCondition{selector1: selector1, selector2: selector2, path: path}, nil
}

func (b *Builder) ChildNodeJoinCondition(childSelector, parentSelector string) (*ChildNodeJoinCondition, error) {
	if err := b.twoSelectors("ChildNodeJoinCondition", childSelector, parentSelector); err != nil {
		return nil, err
	}
	return &ChildNodeJoinCondition{childSelector: childSelector, parentSelector: parentSelector}, nil
}

func (b *Builder) DescendantNodeJoinCondition(descendantSelector, ancestorSelector string) (*DescendantNodeJoinCondition, error) {
	if err := b.twoSelectors("DescendantNodeJoinCondition", descendantSelector, ancestorSelector); err != nil {
		return nil, err
	}
	return &DescendantNodeJoinCondition{descendantSelector: descendantSelector, ancestorSelector: ancestorSelector}, nil
}

// ---------------------------------------------------------------------------
// Sources, columns, orderings, query
// ---------------------------------------------------------------------------

// Selector declares a selector over a node type. An empty name defaults
// to the node type name.
func (b *Builder) Selector(nodeType, name string) (*Selector, error) {
	if nodeType == "" {
		return nil, planErr("Selector", "empty node type")
	}
	if name == "" {
		name = nodeType
	}
	if _, dup := b.selectors[name]; dup {
		return nil, planErr("Selector", "selector %q declared twice", name)
	}
	s := &Selector{nodeType: nodeType, name: name}
	b.selectors[name] = s
	return s, nil
}

// Join joins two sources. The sides must use distinct selectors and the
// condition may only refer to selectors of either side.
func (b *Builder) Join(left, right Source, joinType JoinType, condition JoinCondition) (*Join, error) {
	if joinType < InnerJoin || joinType > RightOuterJoin {
		return nil, planErr("Join", "unknown join type %d", joinType)
	}
	if left == nil || right == nil || condition == nil {
		return nil, planErr("Join", "missing child node")
	}
	sides := make(map[string]bool)
	for _, s := range SourceSelectors(left) {
		sides[s.name] = true
	}
	for _, s := range SourceSelectors(right) {
		if sides[s.name] {
			return nil, planErr("Join", "selector %q appears on both sides", s.name)
		}
		sides[s.name] = true
	}
	for _, name := range Selectors(condition) {
		if !sides[name] {
			return nil, planErr("Join", "condition refers to selector %q outside the join", name)
		}
	}
	if err := b.attach("Join", left, right, condition); err != nil {
		return nil, err
	}
	return &Join{left: left, right: right, joinType: joinType, condition: condition}, nil
}

// Column projects selector.property as columnName. An empty property
// projects every property of the selector; an empty column name defaults
// to "selector.property".
func (b *Builder) Column(selector, property, columnName string) (*Column, error) {
	sel, err := b.selector("Column", selector)
	if err != nil {
		return nil, err
	}
	if property == "" {
		columnName = ""
	} else if columnName == "" {
		columnName = sel + "." + property
	}
	return &Column{selector: sel, property: property, columnName: columnName}, nil
}

func (b *Builder) Ordering(operand DynamicOperand, order Order) (*Ordering, error) {
	if order != Ascending && order != Descending {
		return nil, planErr("Ordering", "unknown order %d", order)
	}
	if err := b.attach("Ordering", operand); err != nil {
		return nil, err
	}
	return &Ordering{operand: operand, order: order}, nil
}

// Query assembles the root node. Every selector referenced by the
// columns, the constraint and the orderings must belong to the source.
func (b *Builder) Query(columns []*Column, source Source, constraint Constraint, orderings []*Ordering) (*Query, error) {
	if source == nil {
		return nil, planErr("Query", "missing source")
	}
	inSource := make(map[string]bool)
	for _, s := range SourceSelectors(source) {
		inSource[s.name] = true
	}
	children := []Node{source}
	for _, c := range columns {
		if c == nil {
			return nil, planErr("Query", "missing column")
		}
		children = append(children, c)
	}
	if constraint != nil {
		children = append(children, constraint)
	}
	for _, o := range orderings {
		if o == nil {
			return nil, planErr("Query", "missing ordering")
		}
		children = append(children, o)
	}
	for _, child := range children[1:] {
		for _, name := range Selectors(child) {
			if !inSource[name] {
				return nil, planErr("Query", "selector %q is not part of the FROM clause", name)
			}
		}
	}
	if err := b.attach("Query", children...); err != nil {
		return nil, err
	}
	return &Query{
		columns:    append([]*Column(nil), columns...),
		source:     source,
		constraint: constraint,
		orderings:  append([]*Ordering(nil), orderings...),
	}, nil
}
