package repoql

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustValue(t *testing.T, typ ScalarType, text string) Value {
	t.Helper()
	v, err := ParseValue(typ, text)
	require.NoError(t, err)
	return v
}

func TestParseValue_Valid(t *testing.T) {
	tests := []struct {
		typ  ScalarType
		in   string
		text string
	}{
		{TypeString, "hello", "hello"},
		{TypeLong, " 42 ", "42"},
		{TypeLong, "-7", "-7"},
		{TypeDouble, "3", "3.0"},
		{TypeDouble, "2.5e-3", "0.0025"},
		{TypeDouble, "NaN", "NaN"},
		{TypeDouble, "-Infinity", "-Infinity"},
		{TypeDecimal, "1.50", "1.50"},
		{TypeBoolean, "TRUE", "true"},
		{TypeBoolean, "false", "false"},
		{TypeDate, "2024-01-02T03:04:05.123Z", "2024-01-02T03:04:05.123Z"},
		{TypeDate, "2024-01-02T03:04:05+02:00", "2024-01-02T01:04:05.000Z"},
		{TypeName, "jcr:title", "jcr:title"},
		{TypePath, "/content/a", "/content/a"},
		{TypeReference, "6ba7b810-9dad-11d1-80b4-00c04fd430c8", "6ba7b810-9dad-11d1-80b4-00c04fd430c8"},
		{TypeURI, "https://example.com/a?b=c", "https://example.com/a?b=c"},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String()+"/"+tt.in, func(t *testing.T) {
			v := mustValue(t, tt.typ, tt.in)
			assert.Equal(t, tt.typ, v.Type())
			assert.Equal(t, tt.text, v.Text())
		})
	}
}

func TestParseValue_Malformed(t *testing.T) {
	tests := []struct {
		typ ScalarType
		in  string
	}{
		{TypeLong, "abc"},
		{TypeLong, "1.5"},
		{TypeDouble, "x"},
		{TypeDecimal, "one"},
		{TypeBoolean, "yes"},
		{TypeDate, "yesterday"},
		{TypeName, "a/b"},
		{TypeName, ""},
		{TypePath, "/a//b"},
		{TypeReference, "not-a-uuid"},
		{TypeURI, "http://[::1"},
		{ScalarType(0), "x"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, err := ParseValue(tt.typ, tt.in)
			var mv *MalformedValueError
			require.True(t, errors.As(err, &mv), "expected MalformedValueError, got %v", err)
			assert.Equal(t, tt.typ, mv.Type)
			assert.Equal(t, tt.in, mv.Text)
		})
	}
}

func TestValue_ZeroIsInvalid(t *testing.T) {
	var v Value
	assert.False(t, v.IsValid())
	_, ok := Compare(v, Long(1))
	assert.False(t, ok)
}

func TestCompare_Numeric(t *testing.T) {
	c, ok := Compare(Long(3), Double(3.0))
	require.True(t, ok)
	assert.Equal(t, 0, c)

	assert.True(t, Equal(Long(3), mustValue(t, TypeDecimal, "3.000")))

	c, ok = Compare(mustValue(t, TypeDecimal, "0.25"), Double(0.5))
	require.True(t, ok)
	assert.Equal(t, -1, c)

	c, ok = Compare(Long(math.MaxInt64), Double(math.Inf(1)))
	require.True(t, ok)
	assert.Equal(t, -1, c)

	// 2^63 is larger than MaxInt64.
	c, ok = Compare(Long(math.MaxInt64), Double(9223372036854775808.0))
	require.True(t, ok)
	assert.Equal(t, -1, c)

	// The double is exactly 9223372036854774784.
	c, ok = Compare(Long(9223372036854774900), Double(math.Nextafter(math.Exp2(63), 0)))
	require.True(t, ok)
	assert.Equal(t, 1, c)

	c, ok = Compare(mustValue(t, TypeDecimal, "0.1"), Double(0.1))
	require.True(t, ok)
	assert.Equal(t, -1, c, "0.1 as a double is slightly above one tenth")

	c, ok = Compare(Double(-0.375), mustValue(t, TypeDecimal, "-0.375"))
	require.True(t, ok)
	assert.Equal(t, 0, c)

	_, ok = Compare(Double(math.NaN()), Double(math.NaN()))
	assert.False(t, ok)
}

func TestDate_NormalizesToUTC(t *testing.T) {
	utc := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	local := utc.In(time.FixedZone("UTC+2", 2*60*60))

	a, b := Date(utc), Date(local)
	assert.True(t, Equal(a, b))
	assert.Equal(t, a.Text(), b.Text())
	assert.Equal(t, a.QueryLiteral(), b.QueryLiteral())
	assert.Equal(t, "2024-03-01T10:00:00.000Z", b.Text())

	parsed := mustValue(t, TypeDate, "2024-03-01T12:00:00+02:00")
	assert.Equal(t, a.Text(), parsed.Text())
}

func TestCompare_Families(t *testing.T) {
	_, ok := Compare(String("3"), Long(3))
	assert.False(t, ok, "string and long must not compare")

	c, ok := Compare(String("jcr:title"), mustValue(t, TypeName, "jcr:title"))
	require.True(t, ok)
	assert.Equal(t, 0, c)

	c, ok = Compare(Boolean(false), Boolean(true))
	require.True(t, ok)
	assert.Equal(t, -1, c)

	early := Date(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	late := Date(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC))
	c, ok = Compare(late, early)
	require.True(t, ok)
	assert.Equal(t, 1, c)

	c, ok = Compare(Binary([]byte("zz")), Binary([]byte("aaa")))
	require.True(t, ok)
	assert.Equal(t, -1, c, "binary compares by length first")

	_, ok = Compare(Boolean(true), String("true"))
	assert.False(t, ok)
}

func TestEscapeString(t *testing.T) {
	assert.Equal(t, "'O''Brien'", EscapeString("O'Brien"))
	assert.Equal(t, "''", EscapeString(""))
	assert.Equal(t, "''''''", EscapeString("''"))
}

func TestQueryLiteral(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{Long(42), "42"},
		{Long(-5), "-5"},
		{Double(3), "3.0"},
		{Double(-2.5), "-2.5"},
		{Double(math.NaN()), "CAST('NaN' AS DOUBLE)"},
		{String("O'Brien"), "'O''Brien'"},
		{Boolean(true), "CAST('true' AS BOOLEAN)"},
		{mustValue(t, TypeDecimal, "1.50"), "CAST('1.50' AS DECIMAL)"},
		{mustValue(t, TypePath, "/a/b"), "CAST('/a/b' AS PATH)"},
		{Date(time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)), "CAST('2024-05-06T07:08:09.000Z' AS DATE)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.v.QueryLiteral(), tt.v.String())
	}
}

func TestQueryLiteral_RoundTrip(t *testing.T) {
	values := []Value{
		String(""),
		String("it's"),
		String(`back\slash "quoted"`),
		Binary([]byte("bin'ary")),
		Long(0),
		Long(math.MaxInt64),
		Long(math.MinInt64),
		Double(0.1),
		Double(-1e21),
		Double(math.Inf(1)),
		Double(math.NaN()),
		mustValue(t, TypeDecimal, "123456789012345678901234567890.5"),
		Boolean(false),
		Date(time.Date(1999, 12, 31, 23, 59, 59, 999e6, time.FixedZone("", -5*3600))),
		mustValue(t, TypeName, "nt:unstructured"),
		mustValue(t, TypePath, "/content/it's"),
		mustValue(t, TypeReference, "6ba7b810-9dad-11d1-80b4-00c04fd430c8"),
		mustValue(t, TypeWeakReference, "6ba7b811-9dad-11d1-80b4-00c04fd430c8"),
		mustValue(t, TypeURI, "urn:isbn:0451450523"),
	}
	for _, v := range values {
		t.Run(v.String(), func(t *testing.T) {
			got, err := ParseLiteral(v.QueryLiteral())
			require.NoError(t, err, v.QueryLiteral())
			assert.Equal(t, v.Type(), got.Type())
			assert.Equal(t, v.Text(), got.Text())
		})
	}
}

func TestParseLiteral_LargeIntegerIsDecimal(t *testing.T) {
	v, err := ParseLiteral("99999999999999999999")
	require.NoError(t, err)
	assert.Equal(t, TypeDecimal, v.Type())
	assert.Equal(t, "99999999999999999999", v.Text())
}

func TestDecimal_Copies(t *testing.T) {
	v := mustValue(t, TypeDecimal, "2.5")
	d, ok := v.Decimal()
	require.True(t, ok)
	d.SetInt64(7)
	assert.Equal(t, "2.5", v.Text())
}
