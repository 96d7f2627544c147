package repoql

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requirePlanError(t *testing.T, err error) *PlanConstructionError {
	t.Helper()
	var pe *PlanConstructionError
	require.True(t, errors.As(err, &pe), "expected PlanConstructionError, got %v", err)
	return pe
}

func TestBuilder_Selector(t *testing.T) {
	b := NewBuilder()
	s, err := b.Selector("nt:file", "")
	require.NoError(t, err)
	assert.Equal(t, "nt:file", s.SelectorName())

	_, err = b.Selector("nt:folder", "nt:file")
	requirePlanError(t, err)

	_, err = b.Selector("", "x")
	requirePlanError(t, err)
}

func TestBuilder_SelectorReferences(t *testing.T) {
	b := NewBuilder()
	_, err := b.PropertyValue("", "title")
	pe := requirePlanError(t, err)
	assert.Equal(t, "PropertyValue", pe.Node)

	_, err = b.Selector("nt:base", "a")
	require.NoError(t, err)

	pv, err := b.PropertyValue("", "title")
	require.NoError(t, err)
	assert.Equal(t, "a", pv.SelectorName(), "sole selector is implied")

	_, err = b.PropertyValue("a", "")
	requirePlanError(t, err)
	_, err = b.NodeName("missing")
	requirePlanError(t, err)

	_, err = b.Selector("nt:base", "b")
	require.NoError(t, err)
	_, err = b.FullTextSearchScore("")
	requirePlanError(t, err)
}

func TestBuilder_SingleParent(t *testing.T) {
	b := NewBuilder()
	_, err := b.Selector("nt:base", "s")
	require.NoError(t, err)
	e1, err := b.PropertyExistence("s", "a")
	require.NoError(t, err)
	e2, err := b.PropertyExistence("s", "b")
	require.NoError(t, err)

	and, err := b.And(e1, e2)
	require.NoError(t, err)

	_, err = b.Or(e1, and)
	requirePlanError(t, err)

	_, err = b.Not(e1)
	requirePlanError(t, err)

	e3, err := b.PropertyExistence("s", "c")
	require.NoError(t, err)
	_, err = b.Or(e3, e3)
	requirePlanError(t, err)

	// The failed calls above must not have claimed e3.
	_, err = b.Not(e3)
	require.NoError(t, err)

	_, err = b.And(nil, e2)
	requirePlanError(t, err)
}

func TestBuilder_Comparison(t *testing.T) {
	b := NewBuilder()
	_, err := b.Selector("nt:base", "s")
	require.NoError(t, err)
	lit := func(v Value) *Literal {
		l, err := b.Literal(v)
		require.NoError(t, err)
		return l
	}
	prop := func(name string) *PropertyValue {
		p, err := b.PropertyValue("s", name)
		require.NoError(t, err)
		return p
	}

	_, err = b.Comparison(lit(String("3")), OpEqual, lit(Long(3)))
	requirePlanError(t, err)

	_, err = b.Comparison(lit(Long(3)), OpLess, lit(Double(4)))
	require.NoError(t, err)

	_, err = b.Comparison(prop("a"), OpLike, lit(Long(1)))
	requirePlanError(t, err)

	_, err = b.Comparison(prop("a"), OpLike, lit(mustValue(t, TypeName, "x%")))
	require.NoError(t, err)

	_, err = b.Comparison(prop("a"), Operator(99), lit(Long(1)))
	requirePlanError(t, err)

	_, err = b.Literal(Value{})
	requirePlanError(t, err)
	_, err = b.BindVariable("")
	requirePlanError(t, err)
}

func TestBuilder_PathConstraints(t *testing.T) {
	b := NewBuilder()
	_, err := b.Selector("nt:base", "s")
	require.NoError(t, err)

	sn, err := b.SameNode("s", "/a/b/")
	require.NoError(t, err)
	assert.Equal(t, "/a/b", sn.Path())

	cn, err := b.ChildNode("s", "/content/")
	require.NoError(t, err)
	assert.Equal(t, "/content", cn.ParentPath())

	dn, err := b.DescendantNode("s", "//")
	require.NoError(t, err)
	assert.Equal(t, "/", dn.AncestorPath())

	_, err = b.ChildNode("s", "relative")
	requirePlanError(t, err)
	_, err = b.DescendantNode("s", "/a//b")
	requirePlanError(t, err)
	_, err = b.SameNode("s", "/a//b/")
	requirePlanError(t, err)

	_, err = b.FullTextSearch("s", "", mustLiteral(t, b, Long(1)))
	requirePlanError(t, err)
}

func mustLiteral(t *testing.T, b *Builder, v Value) *Literal {
	t.Helper()
	l, err := b.Literal(v)
	require.NoError(t, err)
	return l
}

func TestBuilder_Joins(t *testing.T) {
	b := NewBuilder()
	left, err := b.Selector("nt:base", "a")
	require.NoError(t, err)
	right, err := b.Selector("nt:base", "b")
	require.NoError(t, err)
	other, err := b.Selector("nt:base", "c")
	require.NoError(t, err)

	_, err = b.EquiJoinCondition("a", "x", "a", "y")
	requirePlanError(t, err)
	_, err = b.ChildNodeJoinCondition("a", "")
	requirePlanError(t, err)
	_, err = b.SameNodeJoinCondition("a", "b", "x//y")
	requirePlanError(t, err)

	outside, err := b.EquiJoinCondition("a", "x", "c", "y")
	require.NoError(t, err)
	_, err = b.Join(left, right, InnerJoin, outside)
	requirePlanError(t, err)

	cond, err := b.EquiJoinCondition("a", "x", "b", "y")
	require.NoError(t, err)
	_, err = b.Join(left, right, JoinType(0), cond)
	requirePlanError(t, err)

	j, err := b.Join(left, right, LeftOuterJoin, cond)
	require.NoError(t, err)
	assert.Equal(t, LeftOuterJoin, j.JoinType())

	cond2, err := b.DescendantNodeJoinCondition("c", "a")
	require.NoError(t, err)
	_, err = b.Join(other, left, InnerJoin, cond2)
	requirePlanError(t, err)

	j2, err := b.Join(j, other, InnerJoin, cond2)
	require.NoError(t, err)
	var names []string
	for _, s := range SourceSelectors(j2) {
		names = append(names, s.SelectorName())
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)
}

func TestBuilder_Query(t *testing.T) {
	b := NewBuilder()
	a, err := b.Selector("nt:base", "a")
	require.NoError(t, err)
	_, err = b.Selector("nt:base", "stray")
	require.NoError(t, err)

	col, err := b.Column("a", "title", "")
	require.NoError(t, err)
	assert.Equal(t, "a.title", col.ColumnName())

	all, err := b.Column("a", "", "ignored")
	require.NoError(t, err)
	assert.Empty(t, all.ColumnName())

	strayCond, err := b.PropertyExistence("stray", "p")
	require.NoError(t, err)
	_, err = b.Query([]*Column{col}, a, strayCond, nil)
	requirePlanError(t, err)

	_, err = b.Query(nil, nil, nil, nil)
	requirePlanError(t, err)

	pv, err := b.PropertyValue("a", "title")
	require.NoError(t, err)
	ord, err := b.Ordering(pv, Descending)
	require.NoError(t, err)
	_, err = b.Ordering(pv, Descending)
	requirePlanError(t, err)

	q, err := b.Query([]*Column{col, all}, a, nil, []*Ordering{ord})
	require.NoError(t, err)
	assert.Len(t, q.Columns(), 2)
	assert.Len(t, q.Orderings(), 1)
	assert.Nil(t, q.Constraint())

	// Accessors return copies.
	q.Columns()[0] = nil
	assert.NotNil(t, q.Columns()[0])
}
