package repoql

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ResultRow is one row of a query result.
type ResultRow struct {
	// Paths maps each selector to the path of its node. Selectors on the
	// absent side of an outer join are missing.
	Paths map[string]string `json:"paths"`
	// Values maps column names to values. Absent properties are missing.
	Values map[string]Value `json:"values"`
}

// ExecuteResult is the result of a query.
type ExecuteResult struct {
	Columns []string    `json:"columns"`
	Rows    []ResultRow `json:"rows"`
	// Query is the canonical form of the executed query.
	Query string `json:"query"`
}

// Execute parses (or fetches from the cache) and runs a query.
func (r *Repository) Execute(ctx context.Context, query string, b Bindings) (*ExecuteResult, error) {
	pq, err := r.Prepare(query)
	if err != nil {
		r.metrics.QueryErrorTotal.Add(1)
		return nil, err
	}
	return r.ExecutePrepared(ctx, pq, b)
}

// ExecutePrepared runs a prepared query with the given bindings.
func (r *Repository) ExecutePrepared(ctx context.Context, pq *PreparedQuery, b Bindings) (*ExecuteResult, error) {
	return r.run(ctx, pq.raw, pq.query, b)
}

// ExecuteQuery runs a query tree built with a Builder.
func (r *Repository) ExecuteQuery(ctx context.Context, q *Query, b Bindings) (*ExecuteResult, error) {
	return r.run(ctx, "", q, b)
}

func (r *Repository) run(ctx context.Context, raw string, q *Query, b Bindings) (*ExecuteResult, error) {
	if r.isClosed() {
		return nil, ErrClosed
	}
	start := time.Now()
	r.metrics.QueriesTotal.Add(1)

	ctx, cancel := r.limits.withDeadline(ctx)
	defer cancel()

	res, err := guard(func() (*ExecuteResult, error) {
		if err := checkBindings(q, b); err != nil {
			return nil, err
		}
		return r.execute(ctx, q, b)
	})

	elapsed := time.Since(start)
	r.metrics.recordQueryDuration(elapsed)
	if raw == "" {
		raw = Serialize(q)
	}
	if err != nil {
		r.metrics.QueryErrorTotal.Add(1)
		r.log.Debug("query failed", "query", clip(raw, 200), "error", err)
		return nil, err
	}
	r.metrics.RowsReturned.Add(uint64(len(res.Rows)))
	r.recordSlowQuery(q, raw, elapsed, len(res.Rows))
	return res, nil
}

// checkBindings fails on the first bind variable of q that b leaves
// unbound.
func checkBindings(q *Query, b Bindings) error {
	for _, name := range BindVariables(q) {
		if _, ok := b[name]; !ok {
			return &UnboundVariableError{Name: name}
		}
	}
	return nil
}

func (r *Repository) execute(ctx context.Context, q *Query, b Bindings) (*ExecuteResult, error) {
	searches, err := searchesBySelector(q.Constraint(), b)
	if err != nil {
		return nil, err
	}
	rows, err := r.evalSource(ctx, q.Source(), searches)
	if err != nil {
		return nil, err
	}

	if c := q.Constraint(); c != nil {
		if rows, err = r.pool.filter(ctx, c, rows, b); err != nil {
			return nil, err
		}
	}
	if err := r.limits.checkRows(stageFilter, len(rows)); err != nil {
		return nil, err
	}

	if orderings := q.Orderings(); len(orderings) > 0 {
		if err := sortRows(rows, orderings, b); err != nil {
			return nil, err
		}
	}
	return project(q, rows), nil
}

// ftSearch is a full-text search with its expression resolved.
type ftSearch struct {
	property string
	expr     string
}

func searchesBySelector(c Constraint, b Bindings) (map[string][]ftSearch, error) {
	out := make(map[string][]ftSearch)
	if c == nil {
		return out, nil
	}
	for _, fts := range FullTextSearches(c) {
		v, ok, err := EvaluateOperand(fts.Expression(), MapRow{}, b)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out[fts.SelectorName()] = append(out[fts.SelectorName()], ftSearch{
			property: fts.PropertyName(),
			expr:     v.Text(),
		})
	}
	return out, nil
}

// evalSource produces the candidate rows of a source.
func (r *Repository) evalSource(ctx context.Context, s Source, searches map[string][]ftSearch) ([]MapRow, error) {
	switch s := s.(type) {
	case *Selector:
		return r.scanSelector(ctx, s, searches[s.SelectorName()])
	case *Join:
		return r.evalJoin(ctx, s, searches)
	default:
		return nil, planErr(fmt.Sprintf("%T", s), "unsupported source")
	}
}

func (r *Repository) scanSelector(ctx context.Context, s *Selector, searches []ftSearch) ([]MapRow, error) {
	var rows []MapRow
	err := r.scanNodeType(ctx, s.NodeTypeName(), func(n *ContentNode) error {
		e := n.rowEntry()
		for _, fs := range searches {
			e.Score = max(e.Score, FullTextScore(e, fs.property, fs.expr))
		}
		rows = append(rows, MapRow{s.SelectorName(): e})
		return nil
	})
	r.metrics.RowsScanned.Add(uint64(len(rows)))
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// evalJoin is a nested-loop join. Selectors of the unmatched side of an
// outer join are absent from the row.
func (r *Repository) evalJoin(ctx context.Context, j *Join, searches map[string][]ftSearch) ([]MapRow, error) {
	left, err := r.evalSource(ctx, j.Left(), searches)
	if err != nil {
		return nil, err
	}
	right, err := r.evalSource(ctx, j.Right(), searches)
	if err != nil {
		return nil, err
	}

	outer, inner := left, right
	if j.JoinType() == RightOuterJoin {
		outer, inner = right, left
	}
	var out []MapRow
	for _, o := range outer {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		matched := false
		for _, in := range inner {
			row := o.merge(in)
			t, err := EvaluateJoinCondition(j.Condition(), row)
			if err != nil {
				return nil, err
			}
			if t == True {
				matched = true
				out = append(out, row)
			}
		}
		if !matched && j.JoinType() != InnerJoin {
			out = append(out, o)
		}
		if err := r.limits.checkRows(stageJoin, len(out)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

type sortKey struct {
	v  Value
	ok bool
}

// sortRows orders rows by the orderings. Absent values sort first in
// ascending order; values that do not compare fall back to type then text.
func sortRows(rows []MapRow, orderings []*Ordering, b Bindings) error {
	keys := make([][]sortKey, len(rows))
	for i, row := range rows {
		keys[i] = make([]sortKey, len(orderings))
		for k, o := range orderings {
			v, ok, err := EvaluateOperand(o.Operand(), row, b)
			if err != nil {
				return err
			}
			keys[i][k] = sortKey{v: v, ok: ok}
		}
	}
	idx := make([]int, len(rows))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(x, y int) bool {
		for k, o := range orderings {
			c := compareKeys(keys[idx[x]][k], keys[idx[y]][k])
			if o.Order() == Descending {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
	sorted := make([]MapRow, len(rows))
	for i, j := range idx {
		sorted[i] = rows[j]
	}
	copy(rows, sorted)
	return nil
}

func compareKeys(a, b sortKey) int {
	switch {
	case !a.ok && !b.ok:
		return 0
	case !a.ok:
		return -1
	case !b.ok:
		return 1
	}
	if c, ok := Compare(a.v, b.v); ok {
		return c
	}
	if a.v.Type() != b.v.Type() {
		if a.v.Type() < b.v.Type() {
			return -1
		}
		return 1
	}
	return strings.Compare(a.v.Text(), b.v.Text())
}

// column is a resolved output column.
type column struct {
	selector, property, name string
}

// resolveColumns expands SELECT * and [s].* into one column per property
// found on the selector's nodes in the result, in name order.
func resolveColumns(q *Query, rows []MapRow) []column {
	expand := func(selector string) []column {
		seen := make(map[string]struct{})
		for _, row := range rows {
			if e := row[selector]; e != nil {
				for name := range e.Properties {
					seen[name] = struct{}{}
				}
			}
		}
		var cols []column
		for _, name := range sortedNames(seen) {
			cols = append(cols, column{selector, name, selector + "." + name})
		}
		return cols
	}

	var cols []column
	if len(q.Columns()) == 0 {
		for _, s := range SourceSelectors(q.Source()) {
			cols = append(cols, expand(s.SelectorName())...)
		}
		return cols
	}
	for _, c := range q.Columns() {
		if c.PropertyName() == "" {
			cols = append(cols, expand(c.SelectorName())...)
			continue
		}
		cols = append(cols, column{c.SelectorName(), c.PropertyName(), c.ColumnName()})
	}
	return cols
}

func project(q *Query, rows []MapRow) *ExecuteResult {
	cols := resolveColumns(q, rows)
	selectors := SourceSelectors(q.Source())
	res := &ExecuteResult{
		Columns: make([]string, len(cols)),
		Rows:    make([]ResultRow, 0, len(rows)),
		Query:   Serialize(q),
	}
	for i, c := range cols {
		res.Columns[i] = c.name
	}
	for _, row := range rows {
		out := ResultRow{
			Paths:  make(map[string]string, len(selectors)),
			Values: make(map[string]Value, len(cols)),
		}
		for _, s := range selectors {
			if p, ok := row.Path(s.SelectorName()); ok {
				out.Paths[s.SelectorName()] = p
			}
		}
		for _, c := range cols {
			if v, ok := row.PropertyValue(c.selector, c.property); ok {
				out.Values[c.name] = v
			}
		}
		res.Rows = append(res.Rows, out)
	}
	return res
}

// Explain describes how a query would be executed without running it.
func (r *Repository) Explain(query string) (string, error) {
	pq, err := r.Prepare(query)
	if err != nil {
		return "", err
	}
	return explain(pq.query), nil
}

func explain(q *Query) string {
	var sb strings.Builder
	sb.WriteString("Query: ")
	sb.WriteString(Serialize(q))
	sb.WriteString("\n")
	explainSource(&sb, q.Source(), 0)
	if c := q.Constraint(); c != nil {
		fmt.Fprintf(&sb, "Filter: %s\n", Serialize(c))
	}
	if vars := BindVariables(q); len(vars) > 0 {
		fmt.Fprintf(&sb, "Bind: $%s\n", strings.Join(vars, ", $"))
	}
	for _, o := range q.Orderings() {
		fmt.Fprintf(&sb, "Sort: %s\n", Serialize(o))
	}
	if cols := q.Columns(); len(cols) > 0 {
		names := make([]string, len(cols))
		for i, c := range cols {
			names[i] = Serialize(c)
		}
		fmt.Fprintf(&sb, "Project: %s\n", strings.Join(names, ", "))
	} else {
		sb.WriteString("Project: *\n")
	}
	return sb.String()
}

func explainSource(sb *strings.Builder, s Source, depth int) {
	indent := strings.Repeat("  ", depth)
	switch s := s.(type) {
	case *Selector:
		access := "type index"
		if s.NodeTypeName() == BaseNodeType {
			access = "full scan"
		}
		fmt.Fprintf(sb, "%sScan: %s (%s)\n", indent, Serialize(s), access)
	case *Join:
		fmt.Fprintf(sb, "%sNestedLoop: %s ON %s\n", indent, s.JoinType(), Serialize(s.Condition()))
		explainSource(sb, s.Left(), depth+1)
		explainSource(sb, s.Right(), depth+1)
	}
}
