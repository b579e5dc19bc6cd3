package query

import (
	"database/sql"
	"errors"
	"reflect"

	"github.com/skuid/riker/reflectutil"
	"github.com/skuid/riker/tags"
)

/*
Hydrate takes the rows and pops them into new instances of the root table's
model, in the order the rows came back. Principals joined through includes are
hydrated into their navigation fields. It returns pointers to the new models.
*/
func Hydrate(tbl *Table, rows *sql.Rows) ([]interface{}, error) {
	if tbl.Meta == nil {
		return nil, errors.New("query table has no model metadata")
	}

	mapped, err := mapRows2Cols(tbl.FieldAliases(), rows)
	if err != nil {
		return nil, err
	}

	models := make([]interface{}, 0, len(mapped))
	for _, row := range mapped {
		model, err := hydrateModel(tbl.Meta, row[tbl.Alias])
		if err != nil {
			return nil, err
		}
		if err := hydrateJoins(tbl, model, row); err != nil {
			return nil, err
		}
		models = append(models, model.Addr().Interface())
	}

	return models, nil
}

func hydrateJoins(tbl *Table, model reflect.Value, row map[string]map[string]interface{}) error {
	for _, join := range tbl.Joins {
		if join.ForeignKey == nil || join.Table.Meta == nil || join.ForeignKey.RelatedFieldIndex == nil {
			continue
		}
		values := row[join.Table.Alias]
		if !hasKey(join.Table.Meta, values) {
			continue
		}
		principal, err := hydrateModel(join.Table.Meta, values)
		if err != nil {
			return err
		}
		if err := hydrateJoins(join.Table, principal, row); err != nil {
			return err
		}

		navigation := model.FieldByIndex(join.ForeignKey.RelatedFieldIndex)
		if navigation.Kind() == reflect.Ptr {
			navigation.Set(principal.Addr())
		} else {
			navigation.Set(principal)
		}
	}
	return nil
}

// hasKey is false for the all NULL side of an outer join
func hasKey(meta *tags.TableMetadata, values map[string]interface{}) bool {
	for _, field := range meta.GetPrimaryKeyFields() {
		if reflectutil.IsNil(values[field.GetColumnName()]) {
			return false
		}
	}
	return true
}

/*
mapRows2Cols takes the alias map and the returned sql rows and maps each row
onto a map, keyed by table alias, with each value being a map of column name
to value

For example, if the query looks like:

	SELECT t0.id AS "t0.id", t0.name AS "t0.name", t1.city as "t1.city"
	FROM customer as t0
	LEFT JOIN address as t1 ON t1.id = t0.address_id

and it returns:

	t0.id,	t0.name,	t1.city
	1234,	"Bob",		"Chattanooga"

This function would return something like:

	[{
		"t0": {
			"id": 1234,
			"name": "Bob"
		},
		"t1": {
			"city": "Chattanooga"
		}
	}]
*/
func mapRows2Cols(aliasMap map[string]FieldDescriptor, rows *sql.Rows) ([]map[string]map[string]interface{}, error) {
	results := []map[string]map[string]interface{}{}

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	for rows.Next() {
		columns := make([]interface{}, len(cols))
		columnPointers := make([]interface{}, len(cols))
		for i := range columns {
			columnPointers[i] = &columns[i]
		}

		if err := rows.Scan(columnPointers...); err != nil {
			return nil, err
		}

		row := make(map[string]map[string]interface{})
		for i, colName := range cols {
			descriptor, ok := aliasMap[colName]
			if !ok {
				continue
			}
			if row[descriptor.Alias] == nil {
				row[descriptor.Alias] = make(map[string]interface{})
			}
			row[descriptor.Alias][descriptor.Field] = columns[i]
		}
		results = append(results, row)
	}

	return results, rows.Err()
}

/*
hydrateModel takes the values for one record and turns it into a struct based
on the riker tags, converting each column back from its stored representation
*/
func hydrateModel(meta *tags.TableMetadata, values map[string]interface{}) (reflect.Value, error) {
	model := reflect.New(meta.GetType()).Elem()
	for _, field := range meta.GetFields() {
		value, hasValue := values[field.GetColumnName()]
		if !hasValue || value == nil {
			continue
		}
		converted, err := field.FromStore(value)
		if err != nil {
			return reflect.Value{}, err
		}
		target := model.FieldByIndex(field.GetFieldIndex())
		if converted == nil {
			continue
		}
		target.Set(reflect.ValueOf(converted))
	}
	return model, nil
}
