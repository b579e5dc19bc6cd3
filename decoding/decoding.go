/*
Package decoding decodes JSON payloads into riker models with jsoniter and
records which fields each payload actually contained. The names end up in the
model's metadata.Metadata DefinedFields, so attaching a decoded model only
marks the fields the client sent as modified.
*/
package decoding

import (
	"reflect"
	"sort"
	"sync"
	"unsafe"

	jsoniter "github.com/json-iterator/go"
	"github.com/modern-go/reflect2"
	"github.com/skuid/riker/metadata"
	"github.com/skuid/riker/stringutil"
)

// Config specifies options for the riker decoder
type Config struct {
	// TagKey is the struct tag holding JSON names, json by default
	TagKey string
}

type definedFieldsExtension struct {
	jsoniter.DummyExtension
	descriptors sync.Map
}

func (extension *definedFieldsExtension) UpdateStructDescriptor(structDescriptor *jsoniter.StructDescriptor) {
	extension.descriptors.Store(structDescriptor.Type.Type1(), structDescriptor)
}

func (extension *definedFieldsExtension) DecorateDecoder(typ reflect2.Type, decoder jsoniter.ValDecoder) jsoniter.ValDecoder {
	if typ.Kind() != reflect.Struct {
		return decoder
	}
	if _, ok := typ.Type1().FieldByName(metadata.Type().Name()); !ok {
		return decoder
	}
	return &structDecoder{
		valDecoder: decoder,
		typ:        typ,
		extension:  extension,
	}
}

// fieldNames maps JSON keys to struct field names
func (extension *definedFieldsExtension) fieldNames(typ reflect.Type) map[string]string {
	names := map[string]string{}
	stored, ok := extension.descriptors.Load(typ)
	if !ok {
		return names
	}
	for _, binding := range stored.(*jsoniter.StructDescriptor).Fields {
		for _, key := range binding.FromNames {
			names[key] = binding.Field.Name()
		}
	}
	return names
}

type structDecoder struct {
	valDecoder jsoniter.ValDecoder
	typ        reflect2.Type
	extension  *definedFieldsExtension
}

func (decoder *structDecoder) Decode(ptr unsafe.Pointer, iter *jsoniter.Iterator) {
	raw := iter.SkipAndReturnBytes()
	if iter.Error != nil {
		return
	}

	var obj interface{}
	reader := iter.Pool().BorrowIterator(raw)
	reader.ReadVal(&obj)
	err := reader.Error
	iter.Pool().ReturnIterator(reader)
	if err != nil {
		iter.ReportError("decode", err.Error())
		return
	}

	if keys, ok := obj.(map[string]interface{}); ok {
		objectValue := reflect.NewAt(decoder.typ.Type1(), ptr).Elem()
		metadataField := metadata.GetMetadataValue(objectValue)
		metadata.InitializeDefinedFields(metadataField)

		names := decoder.extension.fieldNames(decoder.typ.Type1())
		fields := []string{}
		for key := range keys {
			if name, ok := names[key]; ok {
				fields = stringutil.AppendUnique(fields, name)
			}
		}
		sort.Strings(fields)
		for _, field := range fields {
			metadata.AddDefinedField(metadataField, field)
		}
	}

	sub := iter.Pool().BorrowIterator(raw)
	defer iter.Pool().ReturnIterator(sub)
	decoder.valDecoder.Decode(ptr, sub)
	if sub.Error != nil {
		iter.ReportError("decode", sub.Error.Error())
	}
}

// GetDecoder returns a decoder that implements the standard encoding/json api
func GetDecoder(config *Config) jsoniter.API {
	if config == nil {
		config = &Config{}
	}
	if config.TagKey == "" {
		config.TagKey = "json"
	}
	api := jsoniter.Config{
		EscapeHTML:             true,
		SortMapKeys:            true,
		ValidateJsonRawMessage: true,
		OnlyTaggedField:        true,
		TagKey:                 config.TagKey,
	}.Froze()
	api.RegisterExtension(&definedFieldsExtension{})
	return api
}
