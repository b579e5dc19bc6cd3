package query

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/skuid/riker/reflectutil"
	"github.com/skuid/riker/tags"
)

/*
Build takes the table metadata of a model and returns a query object that
selects every mapped column. It takes
  - tenantID: used as a WHERE on the root table when the model has a multitenancy key.
  - filter: an optional pointer to a model of the same type. Its non-zero fields become WHERE clauses.
  - includes: navigation field names. Each one LEFT JOINs the principal so it can be hydrated along with the row.
*/
func Build(meta *tags.TableMetadata, tenantID interface{}, filter interface{}, includes []string) (*Table, error) {
	tbl := NewIndexed(meta.GetQualifiedTableName(), 0)
	tbl.Meta = meta
	tbl.AddColumns(meta.GetColumnNames())

	if tenantField := meta.GetMultitenancyKeyMetadata(); tenantField != nil && tenantID != nil {
		tbl.AddWhere(tenantField.GetColumnName(), tenantID)
	}

	if filter != nil {
		if err := addFilterWheres(tbl, meta, filter); err != nil {
			return nil, err
		}
	}

	for _, include := range includes {
		foreignKey := meta.GetForeignKeyFieldFromRelation(include)
		if foreignKey == nil {
			return nil, fmt.Errorf("%s has no relationship named '%s'", meta.GetName(), include)
		}
		principal := foreignKey.TableMetadata

		joinFields := make([]string, len(foreignKey.Fields))
		parentFields := make([]string, len(foreignKey.Fields))
		for i, field := range foreignKey.Fields {
			joinFields[i] = foreignKey.PrincipalKey()[i].GetColumnName()
			parentFields[i] = field.GetColumnName()
		}

		joined := tbl.AppendJoin(principal.GetQualifiedTableName(), joinFields, parentFields, "left")
		joined.Meta = principal
		joined.AddColumns(principal.GetColumnNames())
		tbl.Joins[len(tbl.Joins)-1].ForeignKey = foreignKey
	}

	return tbl, nil
}

// ByKey builds the query loading one row by its primary key values
func ByKey(meta *tags.TableMetadata, tenantID interface{}, keyValues ...interface{}) (*Table, error) {
	keyFields := meta.GetPrimaryKeyFields()
	if len(keyValues) != len(keyFields) {
		return nil, fmt.Errorf("%s has %d key fields but %d values were given", meta.GetName(), len(keyFields), len(keyValues))
	}

	tbl, err := Build(meta, tenantID, nil, nil)
	if err != nil {
		return nil, err
	}
	for i, field := range keyFields {
		value, err := field.ToStore(keyValues[i])
		if err != nil {
			return nil, err
		}
		tbl.AddWhere(field.GetColumnName(), value)
	}
	return tbl, nil
}

func addFilterWheres(tbl *Table, meta *tags.TableMetadata, filter interface{}) error {
	filterValue, err := reflectutil.GetStructValue(filter)
	if err != nil {
		return err
	}
	if filterValue.Type() != meta.GetType() {
		return fmt.Errorf("filter must be a %s, got %s", meta.GetName(), filterValue.Type())
	}

	for _, field := range meta.GetFields() {
		if field.IsMultitenancyKey() {
			continue
		}
		value := filterValue.FieldByIndex(field.GetFieldIndex())
		if reflectutil.IsZeroValue(value) {
			continue
		}
		if field.IsEncrypted() {
			return errors.New("cannot perform queries with where clauses on encrypted fields")
		}
		if field.IsJSONB() || value.Kind() == reflect.Map || value.Kind() == reflect.Slice {
			return fmt.Errorf("cannot filter on %s.%s", meta.GetName(), field.GetName())
		}
		storeValue, err := field.ToStore(value.Interface())
		if err != nil {
			return err
		}
		tbl.AddWhere(field.GetColumnName(), storeValue)
	}
	return nil
}
