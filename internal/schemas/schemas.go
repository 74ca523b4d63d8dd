// Package schemas validates built datasets against embedded JSON Schemas.
package schemas

import (
	"embed"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed data/*.schema.json
var schemaFS embed.FS

// Datasets lists the dataset names with a schema, in build order.
var Datasets = []string{"resorts", "hospitals", "clinics"}

// ValidationError lists every schema violation in a document.
type ValidationError struct {
	Dataset string
	Errors  []FieldError
}

// FieldError is a single violation at a field path.
type FieldError struct {
	Field   string
	Message string
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "schemas: %s failed validation:\n", ve.Dataset)
	for i, err := range ve.Errors {
		fmt.Fprintf(&sb, "  %d. %s: %s\n", i+1, err.Field, err.Message)
	}
	return sb.String()
}

// Schema returns the raw schema for dataset.
func Schema(dataset string) ([]byte, error) {
	data, err := schemaFS.ReadFile("data/" + dataset + ".schema.json")
	if err != nil {
		return nil, eris.Errorf("schemas: no schema for dataset %q", dataset)
	}
	return data, nil
}

// ValidateFile validates the JSON file at path against the dataset schema.
func ValidateFile(dataset, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "schemas: read %s", path)
	}
	return ValidateBytes(dataset, data)
}

// ValidateBytes validates a JSON document against the dataset schema. A
// document that violates the schema returns a *ValidationError.
func ValidateBytes(dataset string, data []byte) error {
	schema, err := Schema(dataset)
	if err != nil {
		return err
	}

	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schema), gojsonschema.NewBytesLoader(data))
	if err != nil {
		return eris.Wrapf(err, "schemas: validate %s", dataset)
	}
	if result.Valid() {
		return nil
	}

	verr := &ValidationError{
		Dataset: dataset,
		Errors:  make([]FieldError, 0, len(result.Errors())),
	}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		verr.Errors = append(verr.Errors, FieldError{Field: field, Message: desc.Description()})
	}
	return verr
}
