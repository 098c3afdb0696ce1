package predicate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridian-systems/rowguard/internal/record"
)

func testRecord(fields map[string]record.Value) *record.Record {
	rec := record.New()
	for name, v := range fields {
		rec.Set(name, v)
	}
	return rec
}

func TestParse_Valid(t *testing.T) {
	exprs := []string{
		"amount < 0",
		"amount <= -10.5",
		"status == 'ERROR'",
		`status = "ERROR"`,
		"status != 'OK'",
		"region IN ('us-east', 'us-west')",
		"region NOT IN ('eu-central')",
		"amount IS NULL",
		"amount IS NOT NULL",
		"amount < 0 AND status == 'ERROR'",
		"amount < 0 OR amount > 1000",
		"NOT (amount >= 0)",
		"active == true AND deleted == false",
		"(a < 1 OR b < 2) AND c IN (1, 2, 3)",
		"user.name == 'alice'",
	}
	for _, text := range exprs {
		t.Run(text, func(t *testing.T) {
			expr, err := Parse(text)
			require.NoError(t, err)
			require.NotNil(t, expr)
		})
	}
}

func TestParse_SyntaxErrors(t *testing.T) {
	exprs := []string{
		"",
		"amount <",
		"amount < 0 AND",
		"AND amount < 0",
		"amount",
		"true",
		"(amount < 0) OR active",
		"amount IN ()",
		"amount IN (field_ref)",
		"amount IS 5",
		"(amount < 0",
		"amount ! 0",
		"amount < 0 garbage",
		"'unterminated",
	}
	for _, text := range exprs {
		t.Run(text, func(t *testing.T) {
			_, err := Parse(text)
			assert.Error(t, err)
		})
	}
}

func TestEvaluate_Comparisons(t *testing.T) {
	rec := testRecord(map[string]record.Value{
		"amount": record.Number(-50),
		"status": record.String("ERROR"),
		"count":  record.String("12"),
		"label":  record.String("abc"),
		"active": record.Boolean(true),
	})

	tests := []struct {
		expr string
		want Tri
	}{
		{"amount < 0", True},
		{"amount > 0", False},
		{"amount == -50", True},
		{"amount != -50", False},
		{"amount >= -50", True},
		{"status == 'ERROR'", True},
		{"status == 'OK'", False},
		{"status != 'OK'", True},
		// Numeric coercion of string fields.
		{"count < 20", True},
		{"count == 12", True},
		// Coercion failure yields null, not an error.
		{"label < 20", Null},
		{"label == 20", Null},
		// String ordering is lexicographic.
		{"label < 'abd'", True},
		{"status > 'E'", True},
		// Booleans compare only for equality against booleans.
		{"active == true", True},
		{"active != true", False},
		{"active == 'true'", False},
		{"active == 1", False},
		// Missing fields read as null: no match, no error.
		{"missing < 5", Null},
		{"missing == 'x'", Null},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			expr, err := Parse(tt.expr)
			require.NoError(t, err)
			got, err := Evaluate(expr, rec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_ThreeValuedLogic(t *testing.T) {
	// "n" is absent, so any comparison on it is null.
	rec := testRecord(map[string]record.Value{
		"t": record.Number(1), // t == 1 is true
		"f": record.Number(0), // f == 1 is false
	})

	tests := []struct {
		expr string
		want Tri
	}{
		{"n == 1 AND t == 1", Null},
		{"n == 1 AND f == 1", False},
		{"n == 1 OR t == 1", True},
		{"n == 1 OR f == 1", Null},
		{"NOT n == 1", Null},
		{"NOT t == 1", False},
		{"NOT f == 1", True},
		{"n IS NULL", True},
		{"n IS NOT NULL", False},
		{"t IS NULL", False},
		{"n IN (1, 2)", Null},
		{"t IN (1, 2)", True},
		{"t NOT IN (1, 2)", False},
		{"f IN (1, 2)", False},
		{"f NOT IN (1, 2)", True},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			expr, err := Parse(tt.expr)
			require.NoError(t, err)
			got, err := Evaluate(expr, rec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_NullLiteralComparison(t *testing.T) {
	rec := testRecord(map[string]record.Value{"a": record.Number(1)})

	expr, err := Parse("a == null")
	require.NoError(t, err)
	got, err := Evaluate(expr, rec)
	require.NoError(t, err)
	assert.Equal(t, Null, got, "comparison against a null literal is null")
}

func TestEvaluate_BooleanOrderingFault(t *testing.T) {
	rec := testRecord(map[string]record.Value{"active": record.Boolean(true)})

	expr, err := Parse("active < 5")
	require.NoError(t, err)
	_, err = Evaluate(expr, rec)
	assert.Error(t, err, "ordering on a boolean operand is a runtime fault")
}

func TestEvaluate_InListNullFromCoercion(t *testing.T) {
	rec := testRecord(map[string]record.Value{"v": record.String("abc")})

	// "abc" never coerces to a number: every membership test is null, so the
	// whole IN is null rather than false.
	expr, err := Parse("v IN (1, 2)")
	require.NoError(t, err)
	got, err := Evaluate(expr, rec)
	require.NoError(t, err)
	assert.Equal(t, Null, got)

	// One definite string match short-circuits to true.
	expr, err = Parse("v IN (1, 'abc')")
	require.NoError(t, err)
	got, err = Evaluate(expr, rec)
	require.NoError(t, err)
	assert.Equal(t, True, got)
}

func TestEvaluate_CaseInsensitiveKeywords(t *testing.T) {
	rec := testRecord(map[string]record.Value{"a": record.Number(1)})

	expr, err := Parse("a == 1 and not a is null")
	require.NoError(t, err)
	got, err := Evaluate(expr, rec)
	require.NoError(t, err)
	assert.Equal(t, True, got)
}

func TestExpr_String(t *testing.T) {
	expr, err := Parse("amount < 0 AND status IN ('a', 'b')")
	require.NoError(t, err)
	assert.Equal(t, "((amount < 0) AND (status IN (\"a\", \"b\")))", expr.String())
}
