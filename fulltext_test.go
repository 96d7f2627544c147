package repoql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFullText_Evaluate(t *testing.T) {
	texts := []string{"The quick brown Fox", "jumps over the lazy dog"}
	tests := []struct {
		expr    string
		matched bool
		score   float64
	}{
		{"fox", true, 1},
		{"FOX DOG", true, 1},
		{"fox cat", false, 0.5},
		{`"quick brown"`, true, 1},
		{`"brown quick"`, false, 0},
		{"fox -lazy", false, 1},
		{"fox -cat", true, 1},
		{"cat OR dog", true, 1},
		{"cat OR bird", false, 0},
		{"cat bird OR fox cow", false, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			ft, err := parseFullText(tt.expr)
			require.NoError(t, err)
			matched, score := ft.evaluate(texts)
			assert.Equal(t, tt.matched, matched)
			assert.InDelta(t, tt.score, score, 1e-9)
		})
	}
}

func TestFullText_ParseErrors(t *testing.T) {
	for _, expr := range []string{"", "   ", `"open phrase`, "OR", "!!!"} {
		_, err := parseFullText(expr)
		assert.Error(t, err, expr)
	}
}

func TestFullTextScore(t *testing.T) {
	e := &RowEntry{Path: "/a", Properties: map[string]Value{
		"title": String("Straße in Berlin"),
		"body":  String("nothing here"),
		"blob":  Binary([]byte("berlin")),
	}}
	assert.InDelta(t, 1.0, FullTextScore(e, "title", "STRASSE"), 1e-9, "case folding")
	assert.InDelta(t, 0.0, FullTextScore(e, "body", "berlin"), 1e-9)
	assert.InDelta(t, 0.5, FullTextScore(e, "", "here munich"), 1e-9)
	assert.Zero(t, FullTextScore(e, "", `"broken`))
	assert.Zero(t, FullTextScore(nil, "", "x"))
}

func TestMapRow_FullTextMatch(t *testing.T) {
	row := MapRow{"s": &RowEntry{Path: "/a", Properties: map[string]Value{
		"title": String("hello"),
		"blob":  Binary([]byte("secret")),
	}}}
	assert.Equal(t, True, row.FullTextMatch("s", "", "hello"))
	assert.Equal(t, False, row.FullTextMatch("s", "", "secret"), "binary properties are not searched")
	assert.Equal(t, True, row.FullTextMatch("s", "blob", "secret"))
	assert.Equal(t, Unknown, row.FullTextMatch("other", "", "hello"))
	assert.Equal(t, Unknown, row.FullTextMatch("s", "", ""))
}
