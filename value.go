package repoql

import (
	"cmp"
	"fmt"
	"math"
	"math/big"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"
)

// ScalarType is the closed set of repository property types.
type ScalarType uint8

const (
	TypeString ScalarType = iota + 1
	TypeBinary
	TypeLong
	TypeDouble
	TypeDecimal
	TypeBoolean
	TypeDate
	TypeName
	TypePath
	TypeReference
	TypeWeakReference
	TypeURI
)

var scalarTypeNames = [...]string{
	TypeString:        "STRING",
	TypeBinary:        "BINARY",
	TypeLong:          "LONG",
	TypeDouble:        "DOUBLE",
	TypeDecimal:       "DECIMAL",
	TypeBoolean:       "BOOLEAN",
	TypeDate:          "DATE",
	TypeName:          "NAME",
	TypePath:          "PATH",
	TypeReference:     "REFERENCE",
	TypeWeakReference: "WEAKREFERENCE",
	TypeURI:           "URI",
}

func (t ScalarType) String() string {
	if int(t) < len(scalarTypeNames) && scalarTypeNames[t] != "" {
		return scalarTypeNames[t]
	}
	return fmt.Sprintf("ScalarType(%d)", uint8(t))
}

// Valid reports whether t is one of the declared scalar types.
func (t ScalarType) Valid() bool {
	return t >= TypeString && t <= TypeURI
}

// ScalarTypeByName resolves a type name as written in CAST(... AS name).
// The lookup is case-insensitive.
func ScalarTypeByName(name string) (ScalarType, bool) {
	upper := strings.ToUpper(name)
	for t := TypeString; t <= TypeURI; t++ {
		if scalarTypeNames[t] == upper {
			return t, true
		}
	}
	return 0, false
}

func (t ScalarType) numeric() bool {
	return t == TypeLong || t == TypeDouble || t == TypeDecimal
}

// textual types all order lexicographically on their text form
// and compare with each other.
func (t ScalarType) textual() bool {
	switch t {
	case TypeString, TypeName, TypePath, TypeURI, TypeReference, TypeWeakReference:
		return true
	}
	return false
}

// dateLayout is the canonical DATE text form: ISO-8601 with milliseconds.
const dateLayout = "2006-01-02T15:04:05.000Z07:00"

// Value is an immutable typed scalar. The zero Value is invalid and is
// never produced by a constructor; check IsValid when a Value comes from
// an untrusted source.
type Value struct {
	typ ScalarType
	str string       // STRING, BINARY, NAME, PATH, URI, REFERENCE, WEAKREFERENCE
	num int64        // LONG
	dbl float64      // DOUBLE
	flg bool         // BOOLEAN
	tim time.Time    // DATE
	dec *apd.Decimal // DECIMAL; never mutated after construction
}

// String returns a STRING value.
func String(s string) Value { return Value{typ: TypeString, str: s} }

// Binary returns a BINARY value holding a copy of b.
func Binary(b []byte) Value { return Value{typ: TypeBinary, str: string(b)} }

// Long returns a LONG value.
func Long(n int64) Value { return Value{typ: TypeLong, num: n} }

// Double returns a DOUBLE value.
func Double(f float64) Value { return Value{typ: TypeDouble, dbl: f} }

// Boolean returns a BOOLEAN value.
func Boolean(b bool) Value { return Value{typ: TypeBoolean, flg: b} }

// Date returns a DATE value in UTC, truncated to millisecond precision.
func Date(t time.Time) Value {
	return Value{typ: TypeDate, tim: t.UTC().Truncate(time.Millisecond)}
}

// Decimal returns a DECIMAL value holding a copy of d.
func Decimal(d *apd.Decimal) (Value, error) {
	if d == nil || d.Form != apd.Finite {
		return Value{}, &MalformedValueError{Type: TypeDecimal, Text: fmt.Sprint(d)}
	}
	return Value{typ: TypeDecimal, dec: new(apd.Decimal).Set(d)}, nil
}

// ParseValue builds a value of type t from its text form. The text must be
// valid for t; otherwise a *MalformedValueError is returned.
func ParseValue(t ScalarType, text string) (Value, error) {
	malformed := func(err error) (Value, error) {
		return Value{}, &MalformedValueError{Type: t, Text: text, Err: err}
	}
	switch t {
	case TypeString:
		return String(text), nil
	case TypeBinary:
		return Value{typ: TypeBinary, str: text}, nil
	case TypeLong:
		n, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
		if err != nil {
			return malformed(err)
		}
		return Long(n), nil
	case TypeDouble:
		f, err := parseDouble(text)
		if err != nil {
			return malformed(err)
		}
		return Double(f), nil
	case TypeDecimal:
		d, _, err := apd.NewFromString(strings.TrimSpace(text))
		if err != nil {
			return malformed(err)
		}
		if d.Form != apd.Finite {
			return malformed(fmt.Errorf("not a finite number"))
		}
		return Value{typ: TypeDecimal, dec: d}, nil
	case TypeBoolean:
		switch strings.ToLower(strings.TrimSpace(text)) {
		case "true":
			return Boolean(true), nil
		case "false":
			return Boolean(false), nil
		}
		return malformed(nil)
	case TypeDate:
		ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(text))
		if err != nil {
			return malformed(err)
		}
		return Date(ts), nil
	case TypeName:
		if err := checkName(text); err != nil {
			return malformed(err)
		}
		return Value{typ: TypeName, str: text}, nil
	case TypePath:
		if err := checkPath(text); err != nil {
			return malformed(err)
		}
		return Value{typ: TypePath, str: text}, nil
	case TypeReference, TypeWeakReference:
		id, err := uuid.Parse(text)
		if err != nil {
			return malformed(err)
		}
		return Value{typ: t, str: id.String()}, nil
	case TypeURI:
		if _, err := url.Parse(text); err != nil {
			return malformed(err)
		}
		return Value{typ: TypeURI, str: text}, nil
	}
	return malformed(fmt.Errorf("unknown scalar type"))
}

func parseDouble(text string) (float64, error) {
	switch strings.TrimSpace(text) {
	case "NaN":
		return math.NaN(), nil
	case "Infinity", "+Infinity":
		return math.Inf(1), nil
	case "-Infinity":
		return math.Inf(-1), nil
	}
	return strconv.ParseFloat(strings.TrimSpace(text), 64)
}

func checkName(s string) error {
	if s == "" {
		return fmt.Errorf("empty name")
	}
	if i := strings.IndexAny(s, "/[]|*"); i >= 0 {
		return fmt.Errorf("illegal character %q", s[i])
	}
	return nil
}

func checkPath(s string) error {
	if s == "" {
		return fmt.Errorf("empty path")
	}
	if s == "/" {
		return nil
	}
	for _, seg := range strings.Split(strings.TrimPrefix(s, "/"), "/") {
		if seg == "" {
			return fmt.Errorf("empty path segment")
		}
	}
	return nil
}

// Type returns the scalar type of v.
func (v Value) Type() ScalarType { return v.typ }

// IsValid reports whether v was produced by a constructor.
func (v Value) IsValid() bool { return v.typ.Valid() }

// Text returns the canonical text form of the payload. This is the raw
// value, not query syntax; ParseValue(v.Type(), v.Text()) yields a value
// equal to v.
func (v Value) Text() string {
	switch v.typ {
	case TypeLong:
		return strconv.FormatInt(v.num, 10)
	case TypeDouble:
		return formatDouble(v.dbl)
	case TypeDecimal:
		return v.dec.String()
	case TypeBoolean:
		return strconv.FormatBool(v.flg)
	case TypeDate:
		return v.tim.Format(dateLayout)
	}
	return v.str
}

func (v Value) String() string {
	return v.typ.String() + "(" + v.Text() + ")"
}

// formatDouble always produces a form that lexes as a floating point
// literal: "3" becomes "3.0".
func formatDouble(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// Int64 returns the payload of a LONG value.
func (v Value) Int64() (int64, bool) { return v.num, v.typ == TypeLong }

// Float64 returns the payload of a DOUBLE value.
func (v Value) Float64() (float64, bool) { return v.dbl, v.typ == TypeDouble }

// Bool returns the payload of a BOOLEAN value.
func (v Value) Bool() (bool, bool) { return v.flg, v.typ == TypeBoolean }

// Time returns the payload of a DATE value.
func (v Value) Time() (time.Time, bool) { return v.tim, v.typ == TypeDate }

// Decimal returns a copy of the payload of a DECIMAL value.
func (v Value) Decimal() (*apd.Decimal, bool) {
	if v.typ != TypeDecimal {
		return nil, false
	}
	return new(apd.Decimal).Set(v.dec), true
}

// Bytes returns a copy of the payload of a BINARY value.
func (v Value) Bytes() ([]byte, bool) { return []byte(v.str), v.typ == TypeBinary }

// Compare orders v against o. ok is false when the two types cannot be
// ordered against each other; that is a data condition, not an error.
func (v Value) Compare(o Value) (c int, ok bool) { return Compare(v, o) }

// Compare orders a against b:
//   - LONG, DOUBLE and DECIMAL compare numerically without rounding;
//   - STRING, NAME, PATH, URI, REFERENCE and WEAKREFERENCE compare on text;
//   - DATE chronologically, BOOLEAN false < true, BINARY by length then bytes.
//
// Any other pairing, and NaN, is incomparable.
func Compare(a, b Value) (int, bool) {
	switch {
	case !a.IsValid() || !b.IsValid():
		return 0, false
	case a.typ.numeric() && b.typ.numeric():
		return compareNumeric(a, b)
	case a.typ.textual() && b.typ.textual():
		return strings.Compare(a.str, b.str), true
	case a.typ != b.typ:
		return 0, false
	}
	switch a.typ {
	case TypeDate:
		return a.tim.Compare(b.tim), true
	case TypeBoolean:
		switch {
		case a.flg == b.flg:
			return 0, true
		case !a.flg:
			return -1, true
		}
		return 1, true
	case TypeBinary:
		if c := cmp.Compare(len(a.str), len(b.str)); c != 0 {
			return c, true
		}
		return strings.Compare(a.str, b.str), true
	}
	return 0, false
}

// Equal reports whether a and b are comparable and compare equal.
func Equal(a, b Value) bool {
	c, ok := Compare(a, b)
	return ok && c == 0
}

func compareNumeric(a, b Value) (int, bool) {
	switch {
	case a.typ == TypeLong && b.typ == TypeLong:
		return cmp.Compare(a.num, b.num), true
	case a.typ == TypeDouble && b.typ == TypeDouble:
		if math.IsNaN(a.dbl) || math.IsNaN(b.dbl) {
			return 0, false
		}
		return cmp.Compare(a.dbl, b.dbl), true
	}
	ai, ad, ok := exactNumber(a)
	if !ok {
		return 0, false
	}
	bi, bd, ok := exactNumber(b)
	if !ok {
		return 0, false
	}
	if ai != 0 || bi != 0 {
		return cmp.Compare(ai, bi), true
	}
	return ad.Cmp(bd), true
}

// exactNumber converts a numeric value to an exact decimal. Infinite
// doubles are reported through inf (+1/-1) instead; NaN is not a number.
func exactNumber(v Value) (inf int, d *apd.Decimal, ok bool) {
	switch v.typ {
	case TypeLong:
		return 0, new(apd.Decimal).SetInt64(v.num), true
	case TypeDecimal:
		return 0, v.dec, true
	case TypeDouble:
		switch {
		case math.IsNaN(v.dbl):
			return 0, nil, false
		case math.IsInf(v.dbl, 1):
			return 1, nil, true
		case math.IsInf(v.dbl, -1):
			return -1, nil, true
		}
		return 0, exactFloat(v.dbl), true
	}
	return 0, nil, false
}

// exactFloat returns the decimal equal to the binary value of a finite f.
// f is mant * 2^exp, and 2^-k is 5^k * 10^-k, so no digits are rounded.
func exactFloat(f float64) *apd.Decimal {
	frac, exp := math.Frexp(f)
	mant := big.NewInt(int64(math.Ldexp(frac, 53)))
	exp -= 53
	var scale int32
	if exp >= 0 {
		mant.Lsh(mant, uint(exp))
	} else {
		mant.Mul(mant, new(big.Int).Exp(big.NewInt(5), big.NewInt(int64(-exp)), nil))
		scale = int32(exp)
	}
	return apd.NewWithBigInt(new(apd.BigInt).SetMathBigInt(mant), scale)
}

// QueryLiteral renders v as query source text such that parsing it yields
// a value equal to v. LONG and DOUBLE are bare numeric literals, STRING is
// a quoted string, every other type is a quoted string wrapped in a CAST.
func (v Value) QueryLiteral() string {
	switch v.typ {
	case TypeLong:
		return v.Text()
	case TypeDouble:
		if math.IsNaN(v.dbl) || math.IsInf(v.dbl, 0) {
			return v.cast()
		}
		return v.Text()
	case TypeString:
		return EscapeString(v.str)
	case TypeBinary, TypeBoolean, TypeDate, TypeDecimal, TypeName, TypePath,
		TypeReference, TypeURI, TypeWeakReference:
		return v.cast()
	}
	return EscapeString(v.Text())
}

func (v Value) cast() string {
	return "CAST(" + EscapeString(v.Text()) + " AS " + v.typ.String() + ")"
}

// EscapeString quotes s as a string literal, doubling every embedded
// single quote.
func EscapeString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
