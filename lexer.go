package repoql

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// --------------------------------------------------------------------------
// Query lexer: tokenises SQL-2 query text into a stream of tokens.
// --------------------------------------------------------------------------

// TokenKind identifies the type of a lexer token.
type TokenKind int

const (
	// Special
	tokEOF TokenKind = iota

	// Literals and names
	tokIdent  // unquoted name: s, jcr:title, nt:base
	tokName   // bracketed name: [my node], [/a/b]
	tokString // 'text' or "text"
	tokInt    // 42
	tokFloat  // 3.14, 1e10
	tokParam  // $name

	// Keywords (case-insensitive)
	tokSelect
	tokFrom
	tokWhere
	tokOrder
	tokBy
	tokAnd
	tokOr
	tokNot
	tokAs
	tokAsc
	tokDesc
	tokJoin
	tokInner
	tokLeft
	tokRight
	tokOuter
	tokOn
	tokLike
	tokIs
	tokNull
	tokCast

	// Operators
	tokEq  // =
	tokNeq // <> or !=
	tokLt  // <
	tokGt  // >
	tokLte // <=
	tokGte // >=

	// Punctuation
	tokLParen // (
	tokRParen // )
	tokComma  // ,
	tokDot    // .
	tokStar   // *
	tokDash   // -
)

// Token is a single lexer token with its kind, literal text, and position.
type Token struct {
	Kind TokenKind
	Text string // unquoted text of the token
	Pos  int    // byte offset in the input
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%q)@%d", tokenKindName(t.Kind), t.Text, t.Pos)
}

var tokenNames = map[TokenKind]string{
	tokEOF:    "end of input",
	tokIdent:  "identifier",
	tokName:   "bracketed name",
	tokString: "string",
	tokInt:    "integer",
	tokFloat:  "number",
	tokParam:  "bind variable",
	tokEq:     "=",
	tokNeq:    "<>",
	tokLt:     "<",
	tokGt:     ">",
	tokLte:    "<=",
	tokGte:    ">=",
	tokLParen: "(",
	tokRParen: ")",
	tokComma:  ",",
	tokDot:    ".",
	tokStar:   "*",
	tokDash:   "-",
}

// tokenKindName returns a human-readable name for a token kind.
func tokenKindName(k TokenKind) string {
	if name, ok := tokenNames[k]; ok {
		return name
	}
	for kw, kind := range keywords {
		if kind == k {
			return kw
		}
	}
	return "???"
}

// keywords maps uppercase keyword text to token kind. Function names such
// as CONTAINS are plain identifiers recognised by the parser.
var keywords = map[string]TokenKind{
	"SELECT": tokSelect,
	"FROM":   tokFrom,
	"WHERE":  tokWhere,
	"ORDER":  tokOrder,
	"BY":     tokBy,
	"AND":    tokAnd,
	"OR":     tokOr,
	"NOT":    tokNot,
	"AS":     tokAs,
	"ASC":    tokAsc,
	"DESC":   tokDesc,
	"JOIN":   tokJoin,
	"INNER":  tokInner,
	"LEFT":   tokLeft,
	"RIGHT":  tokRight,
	"OUTER":  tokOuter,
	"ON":     tokOn,
	"LIKE":   tokLike,
	"IS":     tokIs,
	"NULL":   tokNull,
	"CAST":   tokCast,
}

// lexer holds the state for tokenising a query string.
type lexer struct {
	input  string
	pos    int
	tokens []Token
}

// tokenize converts query text into a slice of tokens ending in tokEOF.
func tokenize(input string) ([]Token, error) {
	l := &lexer{input: input}
	if err := l.scan(); err != nil {
		return nil, err
	}
	return l.tokens, nil
}

func (l *lexer) errorf(pos int, format string, args ...any) error {
	return &ParseError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func (l *lexer) scan() error {
	for l.pos < len(l.input) {
		l.skipWhitespace()
		if l.pos >= len(l.input) {
			break
		}

		ch := l.input[l.pos]

		switch {
		case ch == '(':
			l.emit(tokLParen, "(")
		case ch == ')':
			l.emit(tokRParen, ")")
		case ch == ',':
			l.emit(tokComma, ",")
		case ch == '.':
			l.emit(tokDot, ".")
		case ch == '*':
			l.emit(tokStar, "*")
		case ch == '-':
			l.emit(tokDash, "-")
		case ch == '=':
			l.emit(tokEq, "=")

		case ch == '<':
			switch l.peek(1) {
			case '=':
				l.emitN(tokLte, "<=", 2)
			case '>':
				l.emitN(tokNeq, "<>", 2)
			default:
				l.emit(tokLt, "<")
			}

		case ch == '>':
			if l.peek(1) == '=' {
				l.emitN(tokGte, ">=", 2)
			} else {
				l.emit(tokGt, ">")
			}

		case ch == '!' && l.peek(1) == '=':
			l.emitN(tokNeq, "<>", 2)

		case ch == '\'' || ch == '"':
			if err := l.scanString(ch); err != nil {
				return err
			}

		case ch == '[':
			if err := l.scanBracketName(); err != nil {
				return err
			}

		case isDigit(ch):
			l.scanNumber()

		case ch == '$':
			if err := l.scanParam(); err != nil {
				return err
			}

		case isIdentStart(ch):
			l.scanIdentOrKeyword()

		default:
			return l.errorf(l.pos, "unexpected character %q", ch)
		}
	}

	l.tokens = append(l.tokens, Token{Kind: tokEOF, Text: "", Pos: l.pos})
	return nil
}

// emit adds a single-char token and advances.
func (l *lexer) emit(kind TokenKind, text string) {
	l.tokens = append(l.tokens, Token{Kind: kind, Text: text, Pos: l.pos})
	l.pos++
}

// emitN adds a multi-char token and advances by n.
func (l *lexer) emitN(kind TokenKind, text string, n int) {
	l.tokens = append(l.tokens, Token{Kind: kind, Text: text, Pos: l.pos})
	l.pos += n
}

// peek returns the byte at pos+offset, or 0 if out of bounds.
func (l *lexer) peek(offset int) byte {
	idx := l.pos + offset
	if idx >= len(l.input) {
		return 0
	}
	return l.input[idx]
}

func (l *lexer) skipWhitespace() {
	for l.pos < len(l.input) && isWhitespace(l.input[l.pos]) {
		l.pos++
	}
}

// scanDelimited reads up to the closing delimiter; a doubled delimiter
// stands for itself.
func (l *lexer) scanDelimited(kind TokenKind, closing byte, what string) error {
	start := l.pos
	l.pos++ // skip opening delimiter
	var b strings.Builder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == closing {
			if l.peek(1) == closing {
				b.WriteByte(closing)
				l.pos += 2
				continue
			}
			l.pos++
			l.tokens = append(l.tokens, Token{Kind: kind, Text: b.String(), Pos: start})
			return nil
		}
		b.WriteByte(ch)
		l.pos++
	}
	return l.errorf(start, "unterminated %s", what)
}

// scanString scans a single- or double-quoted string literal.
func (l *lexer) scanString(quote byte) error {
	return l.scanDelimited(tokString, quote, "string")
}

// scanBracketName scans [name]; "]]" inside stands for "]".
func (l *lexer) scanBracketName() error {
	return l.scanDelimited(tokName, ']', "bracketed name")
}

// scanNumber scans an integer or floating point literal with optional
// fraction and exponent.
func (l *lexer) scanNumber() {
	start := l.pos
	isFloat := false
	for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
		l.pos++
	}
	if l.peek(0) == '.' && isDigit(l.peek(1)) {
		isFloat = true
		l.pos++
		for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
			l.pos++
		}
	}
	if c := l.peek(0); c == 'e' || c == 'E' {
		n := 1
		if s := l.peek(1); s == '+' || s == '-' {
			n = 2
		}
		if isDigit(l.peek(n)) {
			isFloat = true
			l.pos += n
			for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
				l.pos++
			}
		}
	}
	text := l.input[start:l.pos]
	if isFloat {
		l.tokens = append(l.tokens, Token{Kind: tokFloat, Text: text, Pos: start})
	} else {
		l.tokens = append(l.tokens, Token{Kind: tokInt, Text: text, Pos: start})
	}
}

// scanIdentOrKeyword scans an identifier and promotes it to a keyword if it matches.
func (l *lexer) scanIdentOrKeyword() {
	start := l.pos
	for l.pos < len(l.input) && isIdentPart(l.input[l.pos]) {
		l.pos++
	}
	text := l.input[start:l.pos]
	if kind, ok := keywords[strings.ToUpper(text)]; ok {
		l.tokens = append(l.tokens, Token{Kind: kind, Text: text, Pos: start})
	} else {
		l.tokens = append(l.tokens, Token{Kind: tokIdent, Text: text, Pos: start})
	}
}

// scanParam scans a bind variable reference: $name
func (l *lexer) scanParam() error {
	start := l.pos
	l.pos++ // skip '$'
	for l.pos < len(l.input) && isIdentPart(l.input[l.pos]) {
		l.pos++
	}
	if l.pos == start+1 {
		return l.errorf(start, "missing bind variable name after '$'")
	}
	// Text stores just the name without the '$' prefix.
	l.tokens = append(l.tokens, Token{Kind: tokParam, Text: l.input[start+1 : l.pos], Pos: start})
	return nil
}

// Character classification helpers.

func isWhitespace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

// isIdentStart accepts ASCII letters, '_' and any byte of a multi-byte
// UTF-8 sequence.
func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') ||
		ch >= utf8.RuneSelf
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch) || ch == ':'
}
