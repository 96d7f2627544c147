package repoql

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// testRepo creates a temporary repository for testing.
func testRepo(t *testing.T, opts ...Options) *Repository {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "repo")

	opt := DefaultOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}
	if opt.Logger == nil {
		opt.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	r, err := Open(dir, opt)
	if err != nil {
		t.Fatalf("failed to open repository: %v", err)
	}
	t.Cleanup(func() {
		r.Close()
	})
	return r
}

// seed stores a small content tree:
//
//	/content        nt:folder
//	/content/a      nt:file
//	/content/b      nt:file, mix:versionable
//	/content/b/c    nt:unstructured
//	/other          nt:folder
func seed(t *testing.T, r *Repository) {
	t.Helper()
	ctx := context.Background()
	nodes := []struct {
		path, typ string
		props     map[string]Value
		mixins    []string
	}{
		{"/content", "nt:folder", nil, nil},
		{"/content/a", "nt:file", map[string]Value{
			"title": String("Alpha"),
			"size":  Long(10),
			"tags":  String("go db"),
		}, nil},
		{"/content/b", "nt:file", map[string]Value{
			"title": String("Beta"),
			"size":  Long(20),
		}, []string{"mix:versionable"}},
		{"/content/b/c", "nt:unstructured", map[string]Value{
			"ref":  String("Alpha"),
			"size": Long(5),
		}, nil},
		{"/other", "nt:folder", nil, nil},
	}
	for _, n := range nodes {
		if err := r.AddNode(ctx, n.path, n.typ, n.props, n.mixins...); err != nil {
			t.Fatalf("AddNode(%s): %v", n.path, err)
		}
	}
}

func execute(t *testing.T, r *Repository, query string, b Bindings) *ExecuteResult {
	t.Helper()
	res, err := r.Execute(context.Background(), query, b)
	if err != nil {
		t.Fatalf("Execute(%q): %v", query, err)
	}
	return res
}

func rowPaths(res *ExecuteResult, selector string) []string {
	out := make([]string, len(res.Rows))
	for i, row := range res.Rows {
		out[i] = row.Paths[selector]
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestOpenCloseReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "repo")
	opts := DefaultOptions()
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	r, err := Open(dir, opts)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	seed(t, r)
	if got := r.NodeCount(); got != 5 {
		t.Fatalf("expected 5 nodes, got %d", got)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if _, err := r.Execute(context.Background(), "SELECT * FROM nt:base", nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}

	r2, err := Open(dir, opts)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer r2.Close()

	stats, err := r2.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.NodeCount != 5 {
		t.Errorf("expected 5 nodes after reopen, got %d", stats.NodeCount)
	}
	if stats.DiskSizeBytes <= 0 {
		t.Errorf("expected a non-empty file, got %d bytes", stats.DiskSizeBytes)
	}

	n, err := r2.GetNode("/content/b")
	if err != nil {
		t.Fatalf("GetNode failed: %v", err)
	}
	if n.PrimaryType != "nt:file" || len(n.Mixins) != 1 || n.Mixins[0] != "mix:versionable" {
		t.Errorf("unexpected node types: %s %v", n.PrimaryType, n.Mixins)
	}
	if !Equal(n.Properties["size"], Long(20)) {
		t.Errorf("expected size 20, got %v", n.Properties["size"])
	}
}

func TestAddNode(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()

	if err := r.AddNode(ctx, "/missing/child", "nt:base", nil); !errors.Is(err, ErrNodeNotFound) {
		t.Fatalf("expected ErrNodeNotFound for missing parent, got %v", err)
	}
	if err := r.AddNode(ctx, "relative", "nt:base", nil); err == nil {
		t.Fatal("expected error for relative path")
	}
	if err := r.AddNode(ctx, "/x", "nt:base", map[string]Value{"bad": {}}); err == nil {
		t.Fatal("expected error for invalid value")
	}
	if err := r.AddNode(ctx, "/x", "bad/type", nil); err == nil {
		t.Fatal("expected error for invalid node type")
	}

	seed(t, r)

	// Replacing a node keeps the count and moves its index entries.
	if err := r.AddNode(ctx, "/content/a/", "nt:unstructured", map[string]Value{"title": String("Alpha 2")}); err != nil {
		t.Fatalf("replace failed: %v", err)
	}
	if got := r.NodeCount(); got != 5 {
		t.Errorf("expected 5 nodes after replace, got %d", got)
	}
	res := execute(t, r, "SELECT * FROM nt:file", nil)
	if got := rowPaths(res, "nt:file"); !equalStrings(got, []string{"/content/b"}) {
		t.Errorf("nt:file rows = %v", got)
	}
	if r.Metrics().NodesCreated.Load() != 5 {
		t.Errorf("expected 5 created, got %d", r.Metrics().NodesCreated.Load())
	}

	children, err := r.Children("/content")
	if err != nil {
		t.Fatalf("Children failed: %v", err)
	}
	var names []string
	for _, c := range children {
		names = append(names, c.Path)
	}
	if !equalStrings(names, []string{"/content/a", "/content/b"}) {
		t.Errorf("children = %v", names)
	}
}

func TestRemoveNode(t *testing.T) {
	r := testRepo(t)
	seed(t, r)
	ctx := context.Background()

	removed, err := r.RemoveNode(ctx, "/content/b")
	if err != nil {
		t.Fatalf("RemoveNode failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}
	if _, err := r.GetNode("/content/b/c"); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("expected descendant to be gone, got %v", err)
	}
	if got := r.NodeCount(); got != 3 {
		t.Errorf("expected 3 nodes, got %d", got)
	}
	res := execute(t, r, "SELECT * FROM mix:versionable", nil)
	if len(res.Rows) != 0 {
		t.Errorf("index still lists removed node: %v", rowPaths(res, "mix:versionable"))
	}

	if _, err := r.RemoveNode(ctx, "/content/b"); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("expected ErrNodeNotFound, got %v", err)
	}

	removed, err = r.RemoveNode(ctx, "/")
	if err != nil {
		t.Fatalf("RemoveNode(/) failed: %v", err)
	}
	if removed != 3 || r.NodeCount() != 0 {
		t.Errorf("expected everything removed, got %d (count %d)", removed, r.NodeCount())
	}
}

func TestExecute_SelectStar(t *testing.T) {
	r := testRepo(t)
	seed(t, r)

	res := execute(t, r, "SELECT * FROM nt:file", nil)
	wantCols := []string{"nt:file.jcr:primaryType", "nt:file.size", "nt:file.tags", "nt:file.title"}
	if !equalStrings(res.Columns, wantCols) {
		t.Errorf("columns = %v, want %v", res.Columns, wantCols)
	}
	if got := rowPaths(res, "nt:file"); !equalStrings(got, []string{"/content/a", "/content/b"}) {
		t.Errorf("paths = %v", got)
	}
	if _, ok := res.Rows[1].Values["nt:file.tags"]; ok {
		t.Error("absent property should be missing from the row")
	}
	if v := res.Rows[0].Values["nt:file.jcr:primaryType"]; v.Type() != TypeName || v.Text() != "nt:file" {
		t.Errorf("primary type = %v", v)
	}
	if res.Query != "SELECT * FROM [nt:file] AS [nt:file]" {
		t.Errorf("canonical query = %q", res.Query)
	}

	res = execute(t, r, "SELECT * FROM mix:versionable", nil)
	if got := rowPaths(res, "mix:versionable"); !equalStrings(got, []string{"/content/b"}) {
		t.Errorf("mixin paths = %v", got)
	}
}

func TestExecute_FilterAndOrder(t *testing.T) {
	r := testRepo(t)
	seed(t, r)

	res := execute(t, r, "SELECT s.title FROM nt:base AS s WHERE s.size > 5 ORDER BY s.size DESC", nil)
	if len(res.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(res.Rows))
	}
	if res.Rows[0].Values["s.title"].Text() != "Beta" || res.Rows[1].Values["s.title"].Text() != "Alpha" {
		t.Errorf("unexpected order: %v", res.Rows)
	}

	// Absent sort keys come first in ascending order; ties keep path order.
	res = execute(t, r, "SELECT * FROM nt:base AS s WHERE ISDESCENDANTNODE(s, '/') ORDER BY s.size", nil)
	want := []string{"/content", "/other", "/content/b/c", "/content/a", "/content/b"}
	if got := rowPaths(res, "s"); !equalStrings(got, want) {
		t.Errorf("paths = %v, want %v", got, want)
	}

	res = execute(t, r, "SELECT * FROM nt:base AS s WHERE LOWER(s.title) LIKE 'al%' OR s.ref IS NOT NULL ORDER BY NAME(s)", nil)
	if got := rowPaths(res, "s"); !equalStrings(got, []string{"/content/a", "/content/b/c"}) {
		t.Errorf("paths = %v", got)
	}

	res = execute(t, r, "SELECT * FROM nt:file AS f WHERE CONTAINS(f.*, 'go db') ORDER BY SCORE(f) DESC", nil)
	if got := rowPaths(res, "f"); !equalStrings(got, []string{"/content/a"}) {
		t.Errorf("full-text paths = %v", got)
	}
}

func TestExecute_Bindings(t *testing.T) {
	r := testRepo(t)
	seed(t, r)
	query := "SELECT * FROM nt:base AS s WHERE s.size >= $min ORDER BY s.size"

	res := execute(t, r, query, Bindings{"min": Long(10)})
	if got := rowPaths(res, "s"); !equalStrings(got, []string{"/content/a", "/content/b"}) {
		t.Errorf("paths = %v", got)
	}

	_, err := r.Execute(context.Background(), query, nil)
	var ue *UnboundVariableError
	if !errors.As(err, &ue) || ue.Name != "min" {
		t.Fatalf("expected UnboundVariableError for min, got %v", err)
	}

	pq, err := r.Prepare("SELECT * FROM nt:base AS s WHERE CONTAINS(s.title, $q)")
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if vars := pq.BindVariables(); len(vars) != 1 || vars[0] != "q" {
		t.Errorf("bind variables = %v", vars)
	}
	res, err = r.ExecutePrepared(context.Background(), pq, Bindings{"q": String("beta")})
	if err != nil {
		t.Fatalf("ExecutePrepared failed: %v", err)
	}
	if got := rowPaths(res, "s"); !equalStrings(got, []string{"/content/b"}) {
		t.Errorf("paths = %v", got)
	}
}

func TestExecute_Joins(t *testing.T) {
	r := testRepo(t)
	seed(t, r)

	tests := []struct {
		name  string
		query string
		f, u  []string
	}{
		{
			name:  "inner",
			query: "SELECT * FROM nt:file AS f INNER JOIN nt:unstructured AS u ON ISCHILDNODE(u, f)",
			f:     []string{"/content/b"},
			u:     []string{"/content/b/c"},
		},
		{
			name:  "left outer",
			query: "SELECT * FROM nt:file AS f LEFT OUTER JOIN nt:unstructured AS u ON ISCHILDNODE(u, f) ORDER BY NAME(f)",
			f:     []string{"/content/a", "/content/b"},
			u:     []string{"", "/content/b/c"},
		},
		{
			name:  "right outer",
			query: "SELECT * FROM nt:unstructured AS u RIGHT OUTER JOIN nt:file AS f ON ISCHILDNODE(u, f) ORDER BY NAME(f)",
			f:     []string{"/content/a", "/content/b"},
			u:     []string{"", "/content/b/c"},
		},
		{
			name:  "equi",
			query: "SELECT * FROM nt:unstructured AS u JOIN nt:file AS f ON u.ref = f.title",
			f:     []string{"/content/a"},
			u:     []string{"/content/b/c"},
		},
		{
			name:  "descendant with filter",
			query: "SELECT * FROM nt:folder AS f JOIN nt:unstructured AS u ON ISDESCENDANTNODE(u, f) WHERE u.size < 10",
			f:     []string{"/content"},
			u:     []string{"/content/b/c"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := execute(t, r, tt.query, nil)
			if got := rowPaths(res, "f"); !equalStrings(got, tt.f) {
				t.Errorf("f = %v, want %v", got, tt.f)
			}
			if got := rowPaths(res, "u"); !equalStrings(got, tt.u) {
				t.Errorf("u = %v, want %v", got, tt.u)
			}
		})
	}
}

func TestExecuteQuery_Builder(t *testing.T) {
	r := testRepo(t)
	seed(t, r)

	b := NewBuilder()
	sel, _ := b.Selector("nt:file", "f")
	pv, _ := b.PropertyValue("f", "size")
	lit, _ := b.Literal(Double(15))
	cmp, _ := b.Comparison(pv, OpGreater, lit)
	col, _ := b.Column("f", "title", "name")
	q, err := b.Query([]*Column{col}, sel, cmp, nil)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	res, err := r.ExecuteQuery(context.Background(), q, nil)
	if err != nil {
		t.Fatalf("ExecuteQuery failed: %v", err)
	}
	if len(res.Rows) != 1 || res.Rows[0].Values["name"].Text() != "Beta" {
		t.Errorf("unexpected result: %+v", res.Rows)
	}
	if !equalStrings(res.Columns, []string{"name"}) {
		t.Errorf("columns = %v", res.Columns)
	}
}

func TestExecute_Errors(t *testing.T) {
	r := testRepo(t)
	seed(t, r)
	ctx := context.Background()

	_, err := r.Execute(ctx, "SELECT * FROM", nil)
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Errorf("expected ParseError, got %v", err)
	}

	_, err = r.Execute(ctx, "SELECT * FROM nt:base AS s WHERE t.x = 1", nil)
	var ce *PlanConstructionError
	if !errors.As(err, &ce) {
		t.Errorf("expected PlanConstructionError, got %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := r.Execute(cancelled, "SELECT * FROM nt:base", nil); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}

	if got := r.Metrics().QueryErrorTotal.Load(); got != 3 {
		t.Errorf("expected 3 query errors, got %d", got)
	}
}

func TestExecute_ResultTooLarge(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxResultRows = 2
	r := testRepo(t, opts)
	seed(t, r)

	_, err := r.Execute(context.Background(), "SELECT * FROM nt:base", nil)
	if !errors.Is(err, ErrResultTooLarge) {
		t.Fatalf("expected ErrResultTooLarge, got %v", err)
	}

	_, err = r.Execute(context.Background(), "SELECT * FROM nt:base AS a JOIN nt:base AS b ON ISCHILDNODE(a, b)", nil)
	if !errors.Is(err, ErrResultTooLarge) {
		t.Fatalf("expected ErrResultTooLarge for join, got %v", err)
	}

	res := execute(t, r, "SELECT * FROM nt:file", nil)
	if len(res.Rows) != 2 {
		t.Errorf("expected 2 rows within the limit, got %d", len(res.Rows))
	}
}

func TestExplain(t *testing.T) {
	r := testRepo(t)

	plan, err := r.Explain("SELECT f.title FROM nt:file AS f WHERE f.size > $min ORDER BY f.size DESC")
	if err != nil {
		t.Fatalf("Explain failed: %v", err)
	}
	want := "Query: SELECT [f].[title] AS [f.title] FROM [nt:file] AS [f] WHERE [f].[size] > $min ORDER BY [f].[size] DESC\n" +
		"Scan: [nt:file] AS [f] (type index)\n" +
		"Filter: [f].[size] > $min\n" +
		"Bind: $min\n" +
		"Sort: [f].[size] DESC\n" +
		"Project: [f].[title] AS [f.title]\n"
	if plan != want {
		t.Errorf("plan:\n%s\nwant:\n%s", plan, want)
	}

	plan, err = r.Explain("SELECT * FROM nt:base AS a LEFT JOIN nt:file AS b ON ISCHILDNODE(b, a)")
	if err != nil {
		t.Fatalf("Explain failed: %v", err)
	}
	want = "Query: SELECT * FROM [nt:base] AS [a] LEFT OUTER JOIN [nt:file] AS [b] ON ISCHILDNODE([b], [a])\n" +
		"NestedLoop: LEFT OUTER JOIN ON ISCHILDNODE([b], [a])\n" +
		"  Scan: [nt:base] AS [a] (full scan)\n" +
		"  Scan: [nt:file] AS [b] (type index)\n" +
		"Project: *\n"
	if plan != want {
		t.Errorf("plan:\n%s\nwant:\n%s", plan, want)
	}
}

func TestQueryCache(t *testing.T) {
	opts := DefaultOptions()
	opts.QueryCacheSize = 2
	r := testRepo(t, opts)
	seed(t, r)

	execute(t, r, "SELECT * FROM nt:file", nil)
	execute(t, r, "SELECT * FROM nt:file", nil)
	execute(t, r, "SELECT * FROM nt:folder", nil)
	execute(t, r, "SELECT * FROM nt:unstructured", nil)

	stats := r.QueryCacheStats()
	if stats.Hits != 1 || stats.Misses != 3 {
		t.Errorf("hits=%d misses=%d", stats.Hits, stats.Misses)
	}
	if stats.Entries != 2 || stats.Capacity != 2 {
		t.Errorf("entries=%d capacity=%d", stats.Entries, stats.Capacity)
	}
	if r.Metrics().CacheHits.Load() != 1 {
		t.Errorf("metrics cache hits = %d", r.Metrics().CacheHits.Load())
	}
}

func TestSlowQueriesAndMetrics(t *testing.T) {
	opts := DefaultOptions()
	opts.SlowQueryThreshold = time.Nanosecond
	r := testRepo(t, opts)
	seed(t, r)

	execute(t, r, "SELECT * FROM nt:file", nil)
	execute(t, r, "SELECT * FROM nt:folder", nil)

	slow := r.SlowQueries(10)
	if len(slow) != 2 {
		t.Fatalf("expected 2 slow queries, got %d", len(slow))
	}
	if slow[0].Query != "SELECT * FROM nt:folder" {
		t.Errorf("newest slow query = %q", slow[0].Query)
	}

	var buf bytes.Buffer
	r.Metrics().WritePrometheus(&buf)
	out := buf.String()
	for _, want := range []string{
		"repoql_queries_total 2\n",
		"repoql_nodes_created_total 5\n",
		"repoql_nodes_current 5\n",
		"# TYPE repoql_slow_queries_total counter\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}

	snap := r.Metrics().Snapshot()
	if snap["rows_returned_total"] != uint64(4) {
		t.Errorf("rows_returned_total = %v", snap["rows_returned_total"])
	}
}

func TestConcurrentQueries(t *testing.T) {
	r := testRepo(t)
	seed(t, r)
	ctx := context.Background()

	for i := 0; i < 300; i++ {
		path := fmt.Sprintf("/other/n%d", i)
		if err := r.AddNode(ctx, path, "nt:unstructured", map[string]Value{"i": Long(int64(i))}); err != nil {
			t.Fatalf("AddNode failed: %v", err)
		}
	}

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := r.Execute(ctx, "SELECT * FROM nt:unstructured AS u WHERE u.i >= $min", Bindings{"min": Long(100)})
			if err != nil {
				errs <- err
				return
			}
			if len(res.Rows) != 200 {
				errs <- fmt.Errorf("expected 200 rows, got %d", len(res.Rows))
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
