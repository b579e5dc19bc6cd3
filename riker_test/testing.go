package riker_test

import (
	"database/sql/driver"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/skuid/riker"
	"github.com/skuid/riker/config"
)

// SampleOrgID is the tenant of sessions started by RunSaveTest
const SampleOrgID = "6ba7b810-9dbd-11d1-80b4-00c04fd430c8"

// LoadFixturesFromFiles creates a slice of struct pointers from json fixture files.
// The fields each fixture defines are recorded in its metadata.
func LoadFixturesFromFiles(names []string, path string, loadType reflect.Type) (interface{}, error) {
	sliceOfStructs := reflect.New(reflect.SliceOf(reflect.PointerTo(loadType))).Elem()

	for _, name := range names {
		testObject := reflect.New(loadType)
		raw, err := os.ReadFile(filepath.Join(path, name+".json"))
		if err != nil {
			return nil, err
		}
		if err := riker.Unmarshal(raw, testObject.Interface()); err != nil {
			return nil, err
		}
		sliceOfStructs = reflect.Append(sliceOfStructs, testObject)
	}

	return sliceOfStructs.Interface(), nil
}

// ExpectationHelper struct that contains expectations about the statements for a table
type ExpectationHelper struct {
	TableName        string
	DBColumns        []string
	ReturningColumns []string
}

// ExpectInsert Mocks a batched insert request to the database. rows holds the
// arguments of each inserted row in DBColumns order. When the table has
// ReturningColumns, returnData holds the store values read back for each row.
// A merged insert that reads values back returns its key columns first, so list
// them at the start of ReturningColumns.
func ExpectInsert(mock sqlmock.Sqlmock, expect ExpectationHelper, rows [][]driver.Value, returnData [][]driver.Value) {
	valueStrings := []string{}
	expectedArgs := []driver.Value{}
	index := 1

	for _, row := range rows {
		valueParams := []string{}
		for range expect.DBColumns {
			valueParams = append(valueParams, `\$`+strconv.Itoa(index))
			index++
		}
		valueStrings = append(valueStrings, strings.Join(valueParams, ","))
		expectedArgs = append(expectedArgs, row...)
	}

	columns := []string{}
	for _, column := range expect.DBColumns {
		columns = append(columns, `"`+column+`"`)
	}

	expectSQL := `^INSERT INTO ` + strings.Replace(expect.TableName, ".", `\.`, -1) +
		` \(` + strings.Join(columns, ",") + `\)` +
		` VALUES \(` + strings.Join(valueStrings, `\),\(`) + `\)`

	if len(expect.ReturningColumns) == 0 {
		mock.ExpectExec(expectSQL + `$`).
			WithArgs(expectedArgs...).
			WillReturnResult(sqlmock.NewResult(0, int64(len(rows))))
		return
	}

	quoted := []string{}
	for _, column := range expect.ReturningColumns {
		quoted = append(quoted, `"`+column+`"`)
	}
	returnRows := sqlmock.NewRows(expect.ReturningColumns)
	for _, row := range returnData {
		returnRows.AddRow(row...)
	}
	mock.ExpectQuery(expectSQL + ` RETURNING ` + strings.Join(quoted, ", ") + `$`).
		WithArgs(expectedArgs...).
		WillReturnRows(returnRows)
}

// RunSaveTest opens a store on a mock database and registers models with it. setup
// adds the statements expected inside the save transaction, and testFunction
// stages changes on a session for SampleOrgID. The rows saved are returned.
func RunSaveTest(
	models []interface{},
	setup func(sqlmock.Sqlmock),
	testFunction func(*riker.Session) error,
) (int, error) {
	db, mock, err := sqlmock.New()
	if err != nil {
		return 0, err
	}
	defer db.Close()

	options := config.Options{Dialect: config.DialectPostgres, MaxBatchSize: 1000, HiLoBlockSize: 10, AutoDetectChanges: true}
	store, err := riker.NewStore(riker.Props{DB: db, Options: options})
	if err != nil {
		return 0, err
	}
	if err := store.Register(models...); err != nil {
		return 0, err
	}

	session := store.NewSession(SampleOrgID)
	if err := testFunction(session); err != nil {
		return 0, err
	}

	mock.ExpectBegin()
	setup(mock)
	mock.ExpectCommit()

	rows, err := session.SaveChanges(true)
	if err != nil {
		return rows, err
	}
	return rows, mock.ExpectationsWereMet()
}
