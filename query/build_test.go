package query

import (
	"testing"

	sql "github.com/Masterminds/squirrel"
	"github.com/skuid/riker/tags"
	"github.com/skuid/riker/testdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testModel(t *testing.T) *tags.Model {
	model := tags.NewModel()
	require.NoError(t, model.Register(
		testdata.Customer{},
		testdata.Order{},
		testdata.OrderLine{},
		testdata.Attachment{},
	))
	return model
}

func tableFor(t *testing.T, model *tags.Model, entity interface{}) *tags.TableMetadata {
	meta, err := model.GetTableMetadataForEntity(entity)
	require.NoError(t, err)
	return meta
}

func TestBuild(t *testing.T) {
	model := testModel(t)

	testCases := []struct {
		desc         string
		entity       interface{}
		filter       interface{}
		includes     []string
		expected     string
		expectedArgs []interface{}
		wantErr      string
	}{
		{
			"should select every column with the tenant",
			testdata.Customer{},
			nil,
			nil,
			`
				SELECT t0.id AS "t0.id",
					t0.organization_id AS "t0.organization_id",
					t0.name AS "t0.name",
					t0.email AS "t0.email"
				FROM customers AS t0
				WHERE t0.organization_id = $1
			`,
			[]interface{}{"org"},
			"",
		},
		{
			"should add wheres for non zero filter fields",
			testdata.Customer{},
			&testdata.Customer{Name: "Acme", OrganizationID: "ignored"},
			nil,
			`
				SELECT t0.id AS "t0.id",
					t0.organization_id AS "t0.organization_id",
					t0.name AS "t0.name",
					t0.email AS "t0.email"
				FROM customers AS t0
				WHERE t0.organization_id = $1 AND t0.name = $2
			`,
			[]interface{}{"org", "Acme"},
			"",
		},
		{
			"should join included principals",
			testdata.Order{},
			&testdata.Order{Status: "open"},
			[]string{"Customer"},
			`
				SELECT t0.id AS "t0.id",
					t0.organization_id AS "t0.organization_id",
					t0.customer_id AS "t0.customer_id",
					t0.status AS "t0.status",
					t0.version AS "t0.version",
					t0.notes AS "t0.notes",
					t0.updated_at AS "t0.updated_at",
					t1.id AS "t1.id",
					t1.organization_id AS "t1.organization_id",
					t1.name AS "t1.name",
					t1.email AS "t1.email"
				FROM sales.orders AS t0
				LEFT JOIN customers AS t1 ON t1.id = t0.customer_id
				WHERE t0.organization_id = $1 AND t0.status = $2
			`,
			[]interface{}{"org", "open"},
			"",
		},
		{
			"should refuse to filter on encrypted fields",
			testdata.Attachment{},
			&testdata.Attachment{Secret: "shh"},
			nil,
			"",
			nil,
			"cannot perform queries with where clauses on encrypted fields",
		},
		{
			"should refuse unknown includes",
			testdata.Order{},
			nil,
			[]string{"Lines"},
			"",
			nil,
			"Order has no relationship named 'Lines'",
		},
		{
			"should refuse filters of another type",
			testdata.Order{},
			&testdata.Customer{},
			nil,
			"",
			nil,
			"filter must be a Order, got testdata.Customer",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			tbl, err := Build(tableFor(t, model, tc.entity), "org", tc.filter, tc.includes)
			if tc.wantErr != "" {
				assert.EqualError(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)

			actual, args, err := tbl.ToSQL(sql.Dollar)
			require.NoError(t, err)
			assert.Equal(t, testdata.FmtSQL(tc.expected), actual)
			assert.Equal(t, tc.expectedArgs, args)
		})
	}
}

func TestByKey(t *testing.T) {
	model := testModel(t)

	tbl, err := ByKey(tableFor(t, model, testdata.OrderLine{}), nil, int64(5), 2)
	require.NoError(t, err)

	actual, args, err := tbl.ToSQL(sql.Question)
	require.NoError(t, err)
	assert.Equal(t, testdata.FmtSQL(`
		SELECT t0.order_id AS "t0.order_id",
			t0.line_number AS "t0.line_number",
			t0.product AS "t0.product",
			t0.quantity AS "t0.quantity"
		FROM sales.order_lines AS t0
		WHERE t0.order_id = ? AND t0.line_number = ?
	`), actual)
	assert.Equal(t, []interface{}{int64(5), 2}, args)

	_, err = ByKey(tableFor(t, model, testdata.OrderLine{}), nil, int64(5))
	assert.EqualError(t, err, "OrderLine has 2 key fields but 1 values were given")
}
