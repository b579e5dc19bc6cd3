package query

import (
	"testing"

	sql "github.com/Masterminds/squirrel"
	"github.com/skuid/riker/testdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewQuery(t *testing.T) {
	t.Run("should create a new table object with the proper alias", func(t *testing.T) {
		assert := assert.New(t)

		tbl := New("foo")

		assert.Equal("foo", tbl.Name)
		assert.Equal("t0", tbl.Alias)
	})
}

func TestQueryColumns(t *testing.T) {

	testCases := []struct {
		desc     string
		cols     []string
		expected string
	}{
		{
			"should create the proper SQL for a simple table select with 3 columns",
			[]string{
				"col_one",
				"col_two",
				"col_three",
			},
			testdata.FmtSQL(`
				SELECT t0.col_one AS "t0.col_one",
					t0.col_two AS "t0.col_two",
					t0.col_three AS "t0.col_three"
				FROM foo AS t0
			`),
		},
		{
			"should output nothing if there are not columns",
			[]string{},
			"",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			tbl := New("foo")
			tbl.AddColumns(tc.cols)

			actual, _, _ := tbl.ToSQL(nil)

			assert.Equal(t, tc.expected, actual, "Expected the resulting SQL to match expected")
		})
	}
}

func TestQueryWheres(t *testing.T) {
	testCases := []struct {
		desc         string
		wheres       []Where
		placeholder  sql.PlaceholderFormat
		expected     string
		expectedArgs []interface{}
	}{
		{
			"should create the proper SQL for a single where",
			[]Where{
				{"col_one", 12345},
			},
			sql.Dollar,
			testdata.FmtSQL(`
				SELECT t0.col_one AS "t0.col_one",
					t0.col_two AS "t0.col_two"
				FROM foo AS t0
				WHERE t0.col_one = $1
			`),
			[]interface{}{12345},
		},
		{
			"should and together a few wheres",
			[]Where{
				{"col_one", 12345},
				{"col_two", "foo_bar_test_blah"},
			},
			sql.Dollar,
			testdata.FmtSQL(`
				SELECT t0.col_one AS "t0.col_one",
					t0.col_two AS "t0.col_two"
				FROM foo AS t0
				WHERE t0.col_one = $1 AND t0.col_two = $2
			`),
			[]interface{}{12345, "foo_bar_test_blah"},
		},
		{
			"should use question mark placeholders when asked",
			[]Where{
				{"col_two", "blah"},
			},
			sql.Question,
			testdata.FmtSQL(`
				SELECT t0.col_one AS "t0.col_one",
					t0.col_two AS "t0.col_two"
				FROM foo AS t0
				WHERE t0.col_two = ?
			`),
			[]interface{}{"blah"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			tbl := New("foo")
			tbl.AddColumns([]string{"col_one", "col_two"})
			for _, where := range tc.wheres {
				tbl.AddWhere(where.Field, where.Val)
			}

			actual, args, err := tbl.ToSQL(tc.placeholder)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, actual)
			assert.Equal(t, tc.expectedArgs, args)
		})
	}
}

func TestQueryJoins(t *testing.T) {
	tbl := New("foo")
	tbl.AddColumns([]string{"id", "bar_id"})
	tbl.AddWhere("organization_id", "org")

	bar := tbl.AppendJoin("bar", []string{"id"}, []string{"bar_id"}, "left")
	bar.AddColumns([]string{"id", "baz_a", "baz_b"})

	baz := bar.AppendJoin("baz", []string{"a", "b"}, []string{"baz_a", "baz_b"}, "")
	baz.AddColumns([]string{"name"})
	baz.AddWhere("name", "qux")

	actual, args, err := tbl.ToSQL(sql.Dollar)
	require.NoError(t, err)
	assert.Equal(t, testdata.FmtSQL(`
		SELECT t0.id AS "t0.id",
			t0.bar_id AS "t0.bar_id",
			t1.id AS "t1.id",
			t1.baz_a AS "t1.baz_a",
			t1.baz_b AS "t1.baz_b",
			t2.name AS "t2.name"
		FROM foo AS t0
		LEFT JOIN bar AS t1 ON t1.id = t0.bar_id
		JOIN baz AS t2 ON t2.a = t1.baz_a AND t2.b = t1.baz_b
		WHERE t0.organization_id = $1 AND t2.name = $2
	`), actual)
	assert.Equal(t, []interface{}{"org", "qux"}, args)

	assert.Equal(t, map[string]FieldDescriptor{
		"t0.id":     {Alias: "t0", Table: "foo", Field: "id"},
		"t0.bar_id": {Alias: "t0", Table: "foo", Field: "bar_id"},
		"t1.id":     {Alias: "t1", Table: "bar", Field: "id"},
		"t1.baz_a":  {Alias: "t1", Table: "bar", Field: "baz_a"},
		"t1.baz_b":  {Alias: "t1", Table: "bar", Field: "baz_b"},
		"t2.name":   {Alias: "t2", Table: "baz", Field: "name"},
	}, tbl.FieldAliases())
}
