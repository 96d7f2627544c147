package repoql

import "sort"

// Row is the evaluation input supplied by the storage layer: one content
// node per selector (possibly none, for the absent side of an outer join).
// A Row is read by a single evaluation at a time and never written by it.
type Row interface {
	// PropertyValue returns the property of the selector's node; ok is
	// false when the property is absent or the selector has no node.
	PropertyValue(selector, property string) (v Value, ok bool)

	// Path returns the path of the selector's node; ok is false when the
	// selector has no node in this row.
	Path(selector string) (path string, ok bool)

	// FullTextScore returns the relevance score of the selector's node.
	FullTextScore(selector string) (score float64, ok bool)

	// FullTextMatch evaluates a full-text expression against one property
	// of the selector's node, or all of them when property is "".
	FullTextMatch(selector, property, expression string) Tri
}

// Bindings maps bind variable names (without '$') to values.
type Bindings map[string]Value

// RowEntry is the node a MapRow holds for one selector.
type RowEntry struct {
	Path       string
	Properties map[string]Value
	Score      float64
}

// MapRow is an in-memory Row keyed by selector name. A selector mapped to
// nil, or missing, has no node in the row.
type MapRow map[string]*RowEntry

var _ Row = MapRow(nil)

func (r MapRow) PropertyValue(selector, property string) (Value, bool) {
	e := r[selector]
	if e == nil {
		return Value{}, false
	}
	v, ok := e.Properties[property]
	return v, ok && v.IsValid()
}

func (r MapRow) Path(selector string) (string, bool) {
	e := r[selector]
	if e == nil {
		return "", false
	}
	return e.Path, true
}

func (r MapRow) FullTextScore(selector string) (float64, bool) {
	e := r[selector]
	if e == nil {
		return 0, false
	}
	return e.Score, true
}

func (r MapRow) FullTextMatch(selector, property, expression string) Tri {
	e := r[selector]
	if e == nil {
		return Unknown
	}
	ft, err := parseFullText(expression)
	if err != nil {
		return Unknown
	}
	return triOf(ft.matches(e.texts(property)))
}

// texts returns the text of the named property, or of every property in
// name order when property is "".
func (e *RowEntry) texts(property string) []string {
	if property != "" {
		v, ok := e.Properties[property]
		if !ok || !v.IsValid() {
			return nil
		}
		return []string{v.Text()}
	}
	names := make([]string, 0, len(e.Properties))
	for name := range e.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		if v := e.Properties[name]; v.IsValid() && v.typ != TypeBinary {
			out = append(out, v.Text())
		}
	}
	return out
}

// merge returns a row holding the entries of both r and o.
func (r MapRow) merge(o MapRow) MapRow {
	out := make(MapRow, len(r)+len(o))
	for k, v := range r {
		out[k] = v
	}
	for k, v := range o {
		out[k] = v
	}
	return out
}
