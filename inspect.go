package repoql

// PropertyRef names a property of a selector.
type PropertyRef struct {
	Selector string
	Property string
}

// Selectors returns the distinct selector names n refers to, in the order
// they are first met in a depth-first walk.
func Selectors(n Node) []string {
	c := newCollector()
	_, _ = Accept[struct{}](n, c)
	return c.selectors
}

// Properties returns the distinct selector properties n refers to.
func Properties(n Node) []PropertyRef {
	c := newCollector()
	_, _ = Accept[struct{}](n, c)
	return c.properties
}

// BindVariables returns the distinct bind variable names used in n.
func BindVariables(n Node) []string {
	c := newCollector()
	_, _ = Accept[struct{}](n, c)
	return c.binds
}

// FullTextSearches returns every CONTAINS constraint in n.
func FullTextSearches(n Node) []*FullTextSearch {
	c := newCollector()
	_, _ = Accept[struct{}](n, c)
	return c.fulltext
}

// SourceSelectors returns the selectors of a source, left to right.
func SourceSelectors(s Source) []*Selector {
	switch s := s.(type) {
	case *Selector:
		return []*Selector{s}
	case *Join:
		return append(SourceSelectors(s.left), SourceSelectors(s.right)...)
	}
	return nil
}

// collector records the structural references of a subtree for the
// builder and the execution layer.
type collector struct {
	selectors  []string
	properties []PropertyRef
	binds      []string
	fulltext   []*FullTextSearch

	seenSel  map[string]bool
	seenProp map[PropertyRef]bool
	seenBind map[string]bool
}

func newCollector() *collector {
	return &collector{
		seenSel:  make(map[string]bool),
		seenProp: make(map[PropertyRef]bool),
		seenBind: make(map[string]bool),
	}
}

func (c *collector) sel(names ...string) {
	for _, name := range names {
		if !c.seenSel[name] {
			c.seenSel[name] = true
			c.selectors = append(c.selectors, name)
		}
	}
}

func (c *collector) prop(selector, property string) {
	c.sel(selector)
	ref := PropertyRef{Selector: selector, Property: property}
	if property != "" && !c.seenProp[ref] {
		c.seenProp[ref] = true
		c.properties = append(c.properties, ref)
	}
}

func (c *collector) walk(nodes ...Node) (struct{}, error) {
	for _, n := range nodes {
		if n != nil {
			_, _ = Accept[struct{}](n, c)
		}
	}
	return struct{}{}, nil
}

// Literals reference nothing.
func (c *collector) VisitLiteral(*Literal) (struct{}, error) { return struct{}{}, nil }

func (c *collector) VisitBindVariable(n *BindVariable) (struct{}, error) {
	if !c.seenBind[n.name] {
		c.seenBind[n.name] = true
		c.binds = append(c.binds, n.name)
	}
	return struct{}{}, nil
}

func (c *collector) VisitPropertyValue(n *PropertyValue) (struct{}, error) {
	c.prop(n.selector, n.property)
	return struct{}{}, nil
}

func (c *collector) VisitLength(n *Length) (struct{}, error)       { return c.walk(n.operand) }
func (c *collector) VisitLowerCase(n *LowerCase) (struct{}, error) { return c.walk(n.operand) }
func (c *collector) VisitUpperCase(n *UpperCase) (struct{}, error) { return c.walk(n.operand) }

func (c *collector) VisitFullTextSearchScore(n *FullTextSearchScore) (struct{}, error) {
	c.sel(n.selector)
	return struct{}{}, nil
}

func (c *collector) VisitNodeName(n *NodeName) (struct{}, error) {
	c.sel(n.selector)
	return struct{}{}, nil
}

func (c *collector) VisitNodeLocalName(n *NodeLocalName) (struct{}, error) {
	c.sel(n.selector)
	return struct{}{}, nil
}

func (c *collector) VisitAnd(n *And) (struct{}, error) { return c.walk(n.left, n.right) }
func (c *collector) VisitOr(n *Or) (struct{}, error)   { return c.walk(n.left, n.right) }
func (c *collector) VisitNot(n *Not) (struct{}, error) { return c.walk(n.inner) }

func (c *collector) VisitComparison(n *Comparison) (struct{}, error) {
	return c.walk(n.left, n.right)
}

func (c *collector) VisitPropertyExistence(n *PropertyExistence) (struct{}, error) {
	c.prop(n.selector, n.property)
	return struct{}{}, nil
}

func (c *collector) VisitFullTextSearch(n *FullTextSearch) (struct{}, error) {
	c.prop(n.selector, n.property)
	c.fulltext = append(c.fulltext, n)
	return c.walk(n.expression)
}

func (c *collector) VisitSameNode(n *SameNode) (struct{}, error) {
	c.sel(n.selector)
	return struct{}{}, nil
}

func (c *collector) VisitChildNode(n *ChildNode) (struct{}, error) {
	c.sel(n.selector)
	return struct{}{}, nil
}

func (c *collector) VisitDescendantNode(n *DescendantNode) (struct{}, error) {
	c.sel(n.selector)
	return struct{}{}, nil
}

func (c *collector) VisitEquiJoinCondition(n *EquiJoinCondition) (struct{}, error) {
	c.prop(n.selector1, n.property1)
	c.prop(n.selector2, n.property2)
	return struct{}{}, nil
}

func (c *collector) VisitSameNodeJoinCondition(n *SameNodeJoinCondition) (struct{}, error) {
	c.sel(n.selector1, n.selector2)
	return struct{}{}, nil
}

func (c *collector) VisitChildNodeJoinCondition(n *ChildNodeJoinCondition) (struct{}, error) {
	c.sel(n.childSelector, n.parentSelector)
	return struct{}{}, nil
}

func (c *collector) VisitDescendantNodeJoinCondition(n *DescendantNodeJoinCondition) (struct{}, error) {
	c.sel(n.descendantSelector, n.ancestorSelector)
	return struct{}{}, nil
}

func (c *collector) VisitSelector(n *Selector) (struct{}, error) {
	c.sel(n.name)
	return struct{}{}, nil
}

func (c *collector) VisitJoin(n *Join) (struct{}, error) {
	return c.walk(n.left, n.right, n.condition)
}

func (c *collector) VisitColumn(n *Column) (struct{}, error) {
	c.prop(n.selector, n.property)
	return struct{}{}, nil
}

func (c *collector) VisitOrdering(n *Ordering) (struct{}, error) { return c.walk(n.operand) }

func (c *collector) VisitQuery(n *Query) (struct{}, error) {
	for _, col := range n.columns {
		c.walk(col)
	}
	c.walk(n.source)
	if n.constraint != nil {
		c.walk(n.constraint)
	}
	for _, o := range n.orderings {
		c.walk(o)
	}
	return struct{}{}, nil
}
