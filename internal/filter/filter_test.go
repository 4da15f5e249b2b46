package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fieldsLookuper map[string]Value

func (f fieldsLookuper) Lookup(field string) Value {
	if v, ok := f[field]; ok {
		return v
	}
	return Null
}

func ctx(bindings map[string]map[string]Value) Context {
	m := make(MapContext, len(bindings))
	for k, fields := range bindings {
		m[k] = fieldsLookuper(fields)
	}
	return m
}

func evalBool(t *testing.T, expr string, c Context) bool {
	t.Helper()
	v, err := Eval(expr, c)
	require.NoError(t, err)
	b, ok := v.AsBool()
	require.True(t, ok, "expected bool result, got %v", v)
	return b
}

func TestScenarioAwesomeRepoFilter(t *testing.T) {
	expr := `repo.name contains "awesome" && !repo.fork`
	assert.True(t, evalBool(t, expr, ctx(map[string]map[string]Value{
		"repo": {"name": String("Awesome-Tool"), "fork": Bool(false)},
	})))
	assert.False(t, evalBool(t, expr, ctx(map[string]map[string]Value{
		"repo": {"name": String("awesome"), "fork": Bool(true)},
	})))
	assert.False(t, evalBool(t, expr, ctx(map[string]map[string]Value{
		"repo": {"name": String("other"), "fork": Bool(false)},
	})))
}

func TestScenarioSourceCodeFilter(t *testing.T) {
	expr := `release.prerelease == false && !asset.source-code`
	assert.False(t, evalBool(t, expr, ctx(map[string]map[string]Value{
		"release": {"prerelease": Bool(false)},
		"asset":   {"source-code": Bool(true)},
	})))
	assert.True(t, evalBool(t, expr, ctx(map[string]map[string]Value{
		"release": {"prerelease": Bool(false)},
		"asset":   {"source-code": Bool(false)},
	})))
}

func TestScenarioStargazersThreshold(t *testing.T) {
	expr := `repo.stargazers >= 5`
	assert.False(t, evalBool(t, expr, ctx(map[string]map[string]Value{"repo": {"stargazers": Number(4)}})))
	assert.True(t, evalBool(t, expr, ctx(map[string]map[string]Value{"repo": {"stargazers": Number(5)}})))
}

func TestScenarioTupleMembershipCaseInsensitive(t *testing.T) {
	assert.True(t, evalBool(t, `"v1.0" in ["v1.0", "v1.1"]`, MapContext{}))
	assert.True(t, evalBool(t, `"V1.0" in ["v1.0"]`, MapContext{}))
}

func TestTruthiness(t *testing.T) {
	assert.False(t, Null.Truthy())
	assert.False(t, Bool(false).Truthy())
	assert.False(t, Number(0).Truthy())
	assert.False(t, String("").Truthy())
	assert.False(t, Tuple(nil).Truthy())
	assert.True(t, Bool(true).Truthy())
	assert.True(t, Number(-1).Truthy())
	assert.True(t, String("x").Truthy())
	assert.True(t, Tuple([]Value{Null}).Truthy())
}

func TestShortCircuitOr(t *testing.T) {
	// the right side references an undefined path; if it were evaluated it
	// would still yield Null (never an error) but the point is left wins.
	v, err := Eval(`true || nonexistent.field`, MapContext{})
	require.NoError(t, err)
	assert.Equal(t, Bool(true), v)
}

func TestShortCircuitAnd(t *testing.T) {
	v, err := Eval(`false && nonexistent.field`, MapContext{})
	require.NoError(t, err)
	b, ok := v.AsBool()
	require.True(t, ok)
	assert.False(t, b)
}

func TestMissingPathYieldsNull(t *testing.T) {
	v, err := Eval(`release.prerelease`, ctx(map[string]map[string]Value{"repo": {"name": String("x")}}))
	require.NoError(t, err)
	assert.Equal(t, KindNull, v.Kind())
}

func TestStringEqualityCaseInsensitive(t *testing.T) {
	assert.True(t, evalBool(t, `"Hello" == "hello"`, MapContext{}))
}

func TestMixedTypeComparison(t *testing.T) {
	assert.False(t, evalBool(t, `"5" == 5`, MapContext{}))
	assert.True(t, evalBool(t, `"5" != 5`, MapContext{}))
	assert.False(t, evalBool(t, `"5" < 5`, MapContext{}))
}

func TestNegation(t *testing.T) {
	assert.True(t, evalBool(t, `!false`, MapContext{}))
	assert.False(t, evalBool(t, `!true`, MapContext{}))
	assert.True(t, evalBool(t, `!null`, MapContext{}))
}

func TestStartsWithEndsWith(t *testing.T) {
	assert.True(t, evalBool(t, `"README.md" startswith "readme"`, MapContext{}))
	assert.True(t, evalBool(t, `"README.MD" endswith ".md"`, MapContext{}))
	assert.False(t, evalBool(t, `"README.md" startswith "license"`, MapContext{}))
}

func TestContainsSymmetricToIn(t *testing.T) {
	assert.True(t, evalBool(t, `["a","b"] contains "B"`, MapContext{}))
}

func TestTupleOrdering(t *testing.T) {
	assert.True(t, evalBool(t, `[1,2] < [1,2,3]`, MapContext{}))
	assert.True(t, evalBool(t, `[1,2,3] > [1,2]`, MapContext{}))
	assert.True(t, evalBool(t, `[1,2] == [1,2]`, MapContext{}))
}

func TestParseErrorReportsLocation(t *testing.T) {
	_, err := Parse(`repo.name ===`)
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Positive(t, perr.Line)
	assert.Positive(t, perr.Column)
}

func TestParseErrorUnterminatedString(t *testing.T) {
	_, err := Parse(`repo.name == "unterminated`)
	require.Error(t, err)
}

func TestParseErrorTrailingInput(t *testing.T) {
	_, err := Parse(`true true`)
	require.Error(t, err)
}

func TestNumberLiterals(t *testing.T) {
	v, err := Eval(`-3.5`, MapContext{})
	require.NoError(t, err)
	n, ok := v.AsNumber()
	require.True(t, ok)
	assert.Equal(t, -3.5, n)
}

func TestEscapeSequences(t *testing.T) {
	v, err := Eval(`"a\nb\t\"c\""`, MapContext{})
	require.NoError(t, err)
	s, ok := v.AsString()
	require.True(t, ok)
	assert.Equal(t, "a\nb\t\"c\"", s)
}

func TestGrouping(t *testing.T) {
	assert.True(t, evalBool(t, `(true || false) && true`, MapContext{}))
}

func TestParseAndEvalIsPureAndRepeatable(t *testing.T) {
	e, err := Parse(`repo.stargazers >= 5`)
	require.NoError(t, err)
	c := ctx(map[string]map[string]Value{"repo": {"stargazers": Number(10)}})
	for i := 0; i < 5; i++ {
		v := EvalExpr(e, c)
		b, ok := v.AsBool()
		require.True(t, ok)
		assert.True(t, b)
	}
}
