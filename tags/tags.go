/*
Package tags generates table metadata by reading riker struct tag annotations

	type Order struct {
		Metadata   metadata.Metadata `riker:"tablename=orders,schema=sales"`
		ID         int64             `riker:"primary_key,column=id,generated=hilo,sequence=order_ids,block_size=10"`
		CustomerID int64             `riker:"foreign_key,required,related=Customer,column=customer_id,on_delete=cascade"`
		Customer   *Customer         `validate:"-"`
		Version    int               `riker:"concurrency_token,column=version"`
		Notes      map[string]string `riker:"jsonb,column=notes"`
		UpdatedAt  time.Time         `riker:"computed=always,column=updated_at"`
	}

Supported field options:

	column=<name>           maps the field to a column, fields without a column are not persisted
	primary_key             part of the primary key, may repeat for composite keys
	multitenancy_key        set from the session tenant on add, always part of the WHERE clause
	concurrency_token       original value is checked on update and delete
	generated=<strategy>    identity, sequential, uuid or hilo
	sequence=<name>         hilo sequence name, with sequence_schema=<schema> and block_size=<n>
	computed=<when>         add, update or always, the store computes the value
	foreign_key             with related=<NavigationField>, required and on_delete=cascade|set_null|restrict
	encrypted               stored as AES-GCM ciphertext
	jsonb                   stored as JSON
*/
package tags

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/skuid/riker/crypto"
	"github.com/skuid/riker/metadata"
)

const rikerTagKey = "riker"

// ValueGenerated describes when a property gets a generated value
type ValueGenerated int

const (
	// ValueGeneratedNever properties are always client supplied
	ValueGeneratedNever ValueGenerated = iota
	// ValueGeneratedOnAdd properties are generated when the row is inserted
	ValueGeneratedOnAdd
	// ValueGeneratedOnUpdate properties are computed by the store on update
	ValueGeneratedOnUpdate
	// ValueGeneratedOnAddOrUpdate properties are computed by the store on insert and update
	ValueGeneratedOnAddOrUpdate
)

// Strategy is the value generation strategy annotated on a property
type Strategy int

const (
	// StrategyNone means no annotation, the generator is picked from the field type
	StrategyNone Strategy = iota
	// StrategyIdentity is a store identity column, the client only holds a temporary value
	StrategyIdentity
	// StrategySequential is a client side counter
	StrategySequential
	// StrategyUUID is a client side v4 uuid
	StrategyUUID
	// StrategyHiLo reserves blocks of values from a store sequence
	StrategyHiLo
)

// DeleteBehavior is what happens to tracked dependents when a principal is deleted
type DeleteBehavior int

const (
	// DeleteRestrict leaves dependents alone and lets the store enforce the constraint
	DeleteRestrict DeleteBehavior = iota
	// DeleteCascade deletes tracked dependents
	DeleteCascade
	// DeleteSetNull nulls the foreign key of tracked dependents
	DeleteSetNull
)

// Sequence identifies the store sequence behind a hilo property
type Sequence struct {
	Name      string
	Schema    string
	BlockSize int
}

// ValueConverter converts between a property value and its stored representation
type ValueConverter interface {
	ToStore(value interface{}) (interface{}, error)
	FromStore(value interface{}) (interface{}, error)
}

// ForeignKey structure
type ForeignKey struct {
	// TableMetadata is the principal
	TableMetadata     *TableMetadata
	DependentMetadata *TableMetadata
	// Fields are the dependent fields, in the order of the principal's primary key
	Fields            []*FieldMetadata
	RelatedFieldName  string
	RelatedFieldIndex []int
	Required          bool
	OnDelete          DeleteBehavior
}

// PrincipalKey returns the principal key fields the foreign key references
func (fk *ForeignKey) PrincipalKey() []*FieldMetadata {
	return fk.TableMetadata.primaryKeyFields
}

func (fk *ForeignKey) String() string {
	return fk.DependentMetadata.name + "." + fk.RelatedFieldName
}

// FieldMetadata structure
type FieldMetadata struct {
	name               string
	index              int
	fieldIndex         []int
	columnName         string
	fieldType          reflect.Type
	isPrimaryKey       bool
	isMultitenancyKey  bool
	isConcurrencyToken bool
	isJSONB            bool
	isEncrypted        bool
	isFK               bool
	relatedName        string
	valueGenerated     ValueGenerated
	strategy           Strategy
	sequence           *Sequence
	converter          ValueConverter
}

// GetName function
func (fm *FieldMetadata) GetName() string {
	return fm.name
}

// GetIndex returns the ordinal of the field among the table's persisted fields
func (fm *FieldMetadata) GetIndex() int {
	return fm.index
}

// GetFieldIndex returns the reflect index path of the struct field
func (fm *FieldMetadata) GetFieldIndex() []int {
	return fm.fieldIndex
}

// GetColumnName function
func (fm *FieldMetadata) GetColumnName() string {
	return fm.columnName
}

// GetFieldType function
func (fm *FieldMetadata) GetFieldType() reflect.Type {
	return fm.fieldType
}

// IsPrimaryKey function
func (fm *FieldMetadata) IsPrimaryKey() bool {
	return fm.isPrimaryKey
}

// IsMultitenancyKey function
func (fm *FieldMetadata) IsMultitenancyKey() bool {
	return fm.isMultitenancyKey
}

// IsConcurrencyToken function
func (fm *FieldMetadata) IsConcurrencyToken() bool {
	return fm.isConcurrencyToken
}

// IsJSONB function
func (fm *FieldMetadata) IsJSONB() bool {
	return fm.isJSONB
}

// IsEncrypted function
func (fm *FieldMetadata) IsEncrypted() bool {
	return fm.isEncrypted
}

// IsFK function
func (fm *FieldMetadata) IsFK() bool {
	return fm.isFK
}

// GetRelatedName function
func (fm *FieldMetadata) GetRelatedName() string {
	return fm.relatedName
}

// GetValueGenerated function
func (fm *FieldMetadata) GetValueGenerated() ValueGenerated {
	return fm.valueGenerated
}

// GetStrategy function
func (fm *FieldMetadata) GetStrategy() Strategy {
	return fm.strategy
}

// GetSequence function
func (fm *FieldMetadata) GetSequence() *Sequence {
	return fm.sequence
}

// GetConverter function
func (fm *FieldMetadata) GetConverter() ValueConverter {
	return fm.converter
}

// IsStoreGenerated is true for identity columns and store computed columns
func (fm *FieldMetadata) IsStoreGenerated() bool {
	if fm.strategy == StrategyIdentity {
		return true
	}
	return fm.strategy == StrategyNone && fm.valueGenerated != ValueGeneratedNever
}

// IsStoreGeneratedOnAdd is true when the store supplies the value for inserts
func (fm *FieldMetadata) IsStoreGeneratedOnAdd() bool {
	return fm.IsStoreGenerated() &&
		(fm.valueGenerated == ValueGeneratedOnAdd || fm.valueGenerated == ValueGeneratedOnAddOrUpdate)
}

// IsStoreGeneratedOnUpdate is true when the store recomputes the value on every update
func (fm *FieldMetadata) IsStoreGeneratedOnUpdate() bool {
	return fm.IsStoreGenerated() &&
		(fm.valueGenerated == ValueGeneratedOnUpdate || fm.valueGenerated == ValueGeneratedOnAddOrUpdate)
}

// IsReadOnlyAfterSave is true for fields that can't change once the row exists
func (fm *FieldMetadata) IsReadOnlyAfterSave() bool {
	return fm.isPrimaryKey
}

// IsMutable is true for fields whose client changes are written on update
func (fm *FieldMetadata) IsMutable() bool {
	return !fm.isPrimaryKey && !fm.isMultitenancyKey && !fm.IsStoreGenerated()
}

// IsNullable function
func (fm *FieldMetadata) IsNullable() bool {
	switch fm.fieldType.Kind() {
	case reflect.Ptr, reflect.Slice, reflect.Map, reflect.Interface:
		return true
	}
	return false
}

// ToStore converts a field value into the value sent to the store
func (fm *FieldMetadata) ToStore(value interface{}) (interface{}, error) {
	if fm.converter != nil {
		return fm.converter.ToStore(value)
	}
	return toDriverValue(value), nil
}

// FromStore converts a value read from the store into the field's type
func (fm *FieldMetadata) FromStore(value interface{}) (interface{}, error) {
	if fm.converter != nil {
		converted, err := fm.converter.FromStore(value)
		if err != nil {
			return nil, fmt.Errorf("converting column %s: %w", fm.columnName, err)
		}
		value = converted
	}
	return ConvertValue(value, fm.fieldType)
}

// TableMetadata structure
type TableMetadata struct {
	name                 string
	goType               reflect.Type
	tableName            string
	schema               string
	fields               []*FieldMetadata
	fieldsByName         map[string]*FieldMetadata
	primaryKeyFields     []*FieldMetadata
	multitenancyKeyField *FieldMetadata
	foreignKeys          []*ForeignKey
	referencingKeys      []*ForeignKey
}

// GetName returns the go type name of the model
func (tm *TableMetadata) GetName() string {
	return tm.name
}

// GetType returns the go struct type of the model
func (tm *TableMetadata) GetType() reflect.Type {
	return tm.goType
}

// GetTableName gets the name of the table
func (tm *TableMetadata) GetTableName() string {
	return tm.tableName
}

// GetSchema function
func (tm *TableMetadata) GetSchema() string {
	return tm.schema
}

// GetQualifiedTableName returns schema.table, or the table name when there is no schema
func (tm *TableMetadata) GetQualifiedTableName() string {
	if tm.schema == "" {
		return tm.tableName
	}
	return tm.schema + "." + tm.tableName
}

// GetFields returns the fields in the order they appear in the struct
func (tm *TableMetadata) GetFields() []*FieldMetadata {
	return tm.fields
}

// GetField returns the named field, or nil
func (tm *TableMetadata) GetField(fieldName string) *FieldMetadata {
	return tm.fieldsByName[fieldName]
}

// GetColumnNames gets the column names
func (tm *TableMetadata) GetColumnNames() []string {
	columnNames := make([]string, 0, len(tm.fields))
	for _, field := range tm.fields {
		columnNames = append(columnNames, field.columnName)
	}
	return columnNames
}

// GetPrimaryKeyFields function
func (tm *TableMetadata) GetPrimaryKeyFields() []*FieldMetadata {
	return tm.primaryKeyFields
}

// GetPrimaryKeyColumnNames function
func (tm *TableMetadata) GetPrimaryKeyColumnNames() []string {
	columnNames := make([]string, 0, len(tm.primaryKeyFields))
	for _, field := range tm.primaryKeyFields {
		columnNames = append(columnNames, field.columnName)
	}
	return columnNames
}

// GetMultitenancyKeyMetadata function
func (tm *TableMetadata) GetMultitenancyKeyMetadata() *FieldMetadata {
	return tm.multitenancyKeyField
}

// GetConcurrencyTokens function
func (tm *TableMetadata) GetConcurrencyTokens() []*FieldMetadata {
	tokens := []*FieldMetadata{}
	for _, field := range tm.fields {
		if field.isConcurrencyToken {
			tokens = append(tokens, field)
		}
	}
	return tokens
}

// GetForeignKeys returns the foreign keys declared on this table
func (tm *TableMetadata) GetForeignKeys() []*ForeignKey {
	return tm.foreignKeys
}

// GetReferencingForeignKeys returns foreign keys on other tables that reference this one
func (tm *TableMetadata) GetReferencingForeignKeys() []*ForeignKey {
	return tm.referencingKeys
}

// GetForeignKeyFieldFromRelation function
func (tm *TableMetadata) GetForeignKeyFieldFromRelation(relationName string) *ForeignKey {
	for _, foreignKey := range tm.foreignKeys {
		if foreignKey.RelatedFieldName == relationName {
			return foreignKey
		}
	}
	return nil
}

// GetEncryptedColumns function
func (tm *TableMetadata) GetEncryptedColumns() []string {
	columnNames := []string{}
	for _, field := range tm.fields {
		if field.isEncrypted {
			columnNames = append(columnNames, field.columnName)
		}
	}
	return columnNames
}

// GetJSONBColumns function
func (tm *TableMetadata) GetJSONBColumns() []string {
	columnNames := []string{}
	for _, field := range tm.fields {
		if field.isJSONB {
			columnNames = append(columnNames, field.columnName)
		}
	}
	return columnNames
}

/*
Model holds the table metadata for every registered model type. Related types
are registered along with the types that reference them. A Model is safe for
concurrent use.
*/
type Model struct {
	mu     sync.RWMutex
	tables map[reflect.Type]*TableMetadata
}

// NewModel returns an empty Model
func NewModel() *Model {
	return &Model{
		tables: map[reflect.Type]*TableMetadata{},
	}
}

// Register adds model types to the model. Models can be passed as struct values, pointers or slices.
func (m *Model) Register(models ...interface{}) error {
	for _, model := range models {
		if _, err := m.GetTableMetadata(modelType(reflect.TypeOf(model))); err != nil {
			return err
		}
	}
	return nil
}

// GetTableMetadata returns the metadata for a struct type, registering it if needed
func (m *Model) GetTableMetadata(t reflect.Type) (*TableMetadata, error) {
	if t == nil {
		return nil, errors.New("Can only get metadata structs or slices of structs")
	}
	m.mu.RLock()
	tableMetadata, ok := m.tables[t]
	m.mu.RUnlock()
	if ok {
		return tableMetadata, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.build(t)
}

// FindByType returns the metadata of an already registered type
func (m *Model) FindByType(t reflect.Type) (*TableMetadata, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tableMetadata, ok := m.tables[modelType(t)]
	return tableMetadata, ok
}

// GetTableMetadataForEntity resolves the metadata for a model value
func (m *Model) GetTableMetadataForEntity(entity interface{}) (*TableMetadata, error) {
	return m.GetTableMetadata(modelType(reflect.TypeOf(entity)))
}

// GetTables returns every registered table
func (m *Model) GetTables() []*TableMetadata {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tables := make([]*TableMetadata, 0, len(m.tables))
	for _, table := range m.tables {
		tables = append(tables, table)
	}
	return tables
}

// GetTableMetadata reads the metadata for a struct, pointer to a struct or slice of structs
func GetTableMetadata(data interface{}) (*TableMetadata, error) {
	return NewModel().GetTableMetadataForEntity(data)
}

// TableMetadataFromType gets table metadata from a reflect type
func TableMetadataFromType(t reflect.Type) (*TableMetadata, error) {
	return NewModel().GetTableMetadata(t)
}

func modelType(t reflect.Type) reflect.Type {
	for t != nil && (t.Kind() == reflect.Ptr || t.Kind() == reflect.Slice) {
		t = t.Elem()
	}
	return t
}

// build must be called with m.mu held for writing
func (m *Model) build(t reflect.Type) (*TableMetadata, error) {
	t = modelType(t)
	if tableMetadata, ok := m.tables[t]; ok {
		return tableMetadata, nil
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, errors.New("Can only get metadata structs or slices of structs")
	}

	tableMetadata, relations, err := parseFields(t)
	if err != nil {
		return nil, err
	}

	// Register before resolving relations so cycles between types terminate
	m.tables[t] = tableMetadata

	for _, relation := range relations {
		foreignKey, err := m.resolveForeignKey(t, tableMetadata, relation)
		if err != nil {
			delete(m.tables, t)
			return nil, err
		}
		tableMetadata.foreignKeys = append(tableMetadata.foreignKeys, foreignKey)
		foreignKey.TableMetadata.referencingKeys = append(foreignKey.TableMetadata.referencingKeys, foreignKey)
	}

	return tableMetadata, nil
}

type relation struct {
	relatedName string
	fields      []*FieldMetadata
	required    bool
	onDelete    DeleteBehavior
}

func parseFields(t reflect.Type) (*TableMetadata, []*relation, error) {
	tableMetadata := &TableMetadata{
		name:         t.Name(),
		goType:       t,
		fieldsByName: map[string]*FieldMetadata{},
	}
	relations := []*relation{}
	relationsByName := map[string]*relation{}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		tagsMap := GetStructTagsMap(field, rikerTagKey)

		if field.Type == metadata.Type() {
			tableMetadata.tableName = tagsMap["tablename"]
			tableMetadata.schema = tagsMap["schema"]
			continue
		}

		columnName, hasColumnName := tagsMap["column"]
		if !hasColumnName {
			continue
		}

		_, isPrimaryKey := tagsMap["primary_key"]
		_, isMultitenancyKey := tagsMap["multitenancy_key"]
		_, isConcurrencyToken := tagsMap["concurrency_token"]
		_, isForeignKey := tagsMap["foreign_key"]
		_, isRequired := tagsMap["required"]
		_, isEncrypted := tagsMap["encrypted"]
		_, isJSONB := tagsMap["jsonb"]

		fieldMetadata := &FieldMetadata{
			name:               field.Name,
			index:              len(tableMetadata.fields),
			fieldIndex:         field.Index,
			columnName:         columnName,
			fieldType:          field.Type,
			isPrimaryKey:       isPrimaryKey,
			isMultitenancyKey:  isMultitenancyKey,
			isConcurrencyToken: isConcurrencyToken,
			isJSONB:            isJSONB,
			isEncrypted:        isEncrypted,
			isFK:               isForeignKey,
		}

		if err := parseGeneration(fieldMetadata, tagsMap); err != nil {
			return nil, nil, fmt.Errorf("%s.%s: %w", t.Name(), field.Name, err)
		}

		if isEncrypted {
			fieldMetadata.converter = &crypto.Converter{}
		} else if isJSONB {
			fieldMetadata.converter = NewJSONConverter(field.Type)
		}

		if isForeignKey {
			relatedName := tagsMap["related"]
			if relatedName == "" {
				return nil, nil, fmt.Errorf("%s.%s: foreign_key requires a related field", t.Name(), field.Name)
			}
			fieldMetadata.relatedName = relatedName
			rel, ok := relationsByName[relatedName]
			if !ok {
				rel = &relation{relatedName: relatedName}
				relationsByName[relatedName] = rel
				relations = append(relations, rel)
			}
			rel.fields = append(rel.fields, fieldMetadata)
			rel.required = rel.required || isRequired
			onDelete, err := parseDeleteBehavior(tagsMap["on_delete"])
			if err != nil {
				return nil, nil, fmt.Errorf("%s.%s: %w", t.Name(), field.Name, err)
			}
			if onDelete != DeleteRestrict {
				rel.onDelete = onDelete
			}
		}

		tableMetadata.fields = append(tableMetadata.fields, fieldMetadata)
		tableMetadata.fieldsByName[field.Name] = fieldMetadata

		if isMultitenancyKey {
			tableMetadata.multitenancyKeyField = fieldMetadata
		}
		if isPrimaryKey {
			tableMetadata.primaryKeyFields = append(tableMetadata.primaryKeyFields, fieldMetadata)
		}
	}

	if tableMetadata.tableName == "" {
		return nil, nil, errors.New("No table name specified in struct metadata")
	}
	if len(tableMetadata.primaryKeyFields) == 0 {
		return nil, nil, fmt.Errorf("no primary key specified for %s", t.Name())
	}

	return tableMetadata, relations, nil
}

func parseGeneration(fieldMetadata *FieldMetadata, tagsMap map[string]string) error {
	generated, hasGenerated := tagsMap["generated"]
	computed, hasComputed := tagsMap["computed"]

	if hasGenerated && hasComputed {
		return errors.New("generated and computed can't be combined")
	}

	if hasGenerated {
		fieldMetadata.valueGenerated = ValueGeneratedOnAdd
		switch generated {
		case "identity":
			fieldMetadata.strategy = StrategyIdentity
		case "sequential":
			fieldMetadata.strategy = StrategySequential
		case "uuid":
			fieldMetadata.strategy = StrategyUUID
		case "hilo":
			fieldMetadata.strategy = StrategyHiLo
			name := tagsMap["sequence"]
			if name == "" {
				return errors.New("generated=hilo requires a sequence name")
			}
			sequence := &Sequence{
				Name:   name,
				Schema: tagsMap["sequence_schema"],
			}
			if blockSize, ok := tagsMap["block_size"]; ok {
				size, err := strconv.Atoi(blockSize)
				if err != nil || size < 1 {
					return fmt.Errorf("invalid block_size %q", blockSize)
				}
				sequence.BlockSize = size
			}
			fieldMetadata.sequence = sequence
		default:
			return fmt.Errorf("unknown generation strategy %q", generated)
		}
	}

	if hasComputed {
		switch computed {
		case "add":
			fieldMetadata.valueGenerated = ValueGeneratedOnAdd
		case "update":
			fieldMetadata.valueGenerated = ValueGeneratedOnUpdate
		case "always":
			fieldMetadata.valueGenerated = ValueGeneratedOnAddOrUpdate
		default:
			return fmt.Errorf("unknown computed option %q", computed)
		}
	}
	return nil
}

func parseDeleteBehavior(value string) (DeleteBehavior, error) {
	switch value {
	case "", "restrict":
		return DeleteRestrict, nil
	case "cascade":
		return DeleteCascade, nil
	case "set_null":
		return DeleteSetNull, nil
	}
	return DeleteRestrict, fmt.Errorf("unknown on_delete behavior %q", value)
}

func (m *Model) resolveForeignKey(t reflect.Type, dependent *TableMetadata, rel *relation) (*ForeignKey, error) {
	relatedField, ok := t.FieldByName(rel.relatedName)
	if !ok {
		return nil, fmt.Errorf("%s: related field %s does not exist", t.Name(), rel.relatedName)
	}

	principal, err := m.build(relatedField.Type)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", t.Name(), rel.relatedName, err)
	}

	if len(rel.fields) != len(principal.primaryKeyFields) {
		return nil, fmt.Errorf(
			"%s.%s: foreign key has %d fields but %s has %d primary key fields",
			t.Name(), rel.relatedName, len(rel.fields), principal.name, len(principal.primaryKeyFields),
		)
	}

	if rel.onDelete == DeleteSetNull {
		for _, field := range rel.fields {
			if !field.IsNullable() {
				return nil, fmt.Errorf("%s.%s: on_delete=set_null requires nullable foreign key fields", t.Name(), field.name)
			}
		}
	}

	return &ForeignKey{
		TableMetadata:     principal,
		DependentMetadata: dependent,
		Fields:            rel.fields,
		RelatedFieldName:  relatedField.Name,
		RelatedFieldIndex: relatedField.Index,
		Required:          rel.required,
		OnDelete:          rel.onDelete,
	}, nil
}

// GetStructTagsMap generates a map of struct tag to values
// Example
//
//	input: testKeyOne=test_value_one,testKeyTwo=test_value_two
//	output: map[string]string{"testKeyOne": "test_value_one", "testKeyTwo": "test_value_two"
func GetStructTagsMap(field reflect.StructField, tagType string) map[string]string {
	tagValue := field.Tag.Get(tagType)
	if tagValue == "" {
		return nil
	}

	tags := strings.Split(tagValue, ",")
	tagsMap := map[string]string{}

	for _, v := range tags {
		tagSplit := strings.Split(v, "=")
		tagKey := tagSplit[0]
		tagValue := ""
		if (len(tagSplit)) == 2 {
			tagValue = tagSplit[1]
		}
		tagsMap[tagKey] = tagValue
	}

	return tagsMap
}
