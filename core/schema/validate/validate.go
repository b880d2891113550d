package validate

import (
	"fmt"
	"os"
	"sync"

	"github.com/kaptinlin/jsonschema"

	coreerrors "github.com/davidahmann/evidencekit/core/errors"
	"github.com/davidahmann/evidencekit/schemas"
)

const (
	SchemaRecord         = "v1/provenance/record.schema.json"
	SchemaEnvelope       = "v1/envelope/response.schema.json"
	SchemaFindings       = "v1/evidence/findings.schema.json"
	SchemaMethodsCatalog = "v1/methods/catalog.schema.json"
)

var compiled struct {
	sync.Mutex
	schemas map[string]*jsonschema.Schema
}

// ValidateJSON validates data against an embedded schema.
func ValidateJSON(schemaName string, data []byte) error {
	schema, err := loadSchema(schemaName)
	if err != nil {
		return err
	}
	return validateJSON(schemaName, schema, data)
}

// ValidateJSONFile is ValidateJSON over the contents of jsonPath.
func ValidateJSONFile(schemaName, jsonPath string) error {
	schema, err := loadSchema(schemaName)
	if err != nil {
		return err
	}
	// #nosec G304 -- path is explicit local user input.
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		if os.IsNotExist(err) {
			return coreerrors.NotFound(coreerrors.CodeFileNotFound, "read json: %v", err)
		}
		return fmt.Errorf("read json: %w", err)
	}
	return validateJSON(schemaName, schema, data)
}

func loadSchema(schemaName string) (*jsonschema.Schema, error) {
	compiled.Lock()
	defer compiled.Unlock()
	if schema, ok := compiled.schemas[schemaName]; ok {
		return schema, nil
	}
	data, err := schemas.Files.ReadFile(schemaName)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", schemaName, err)
	}
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	schema, err := compiler.Compile(data)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", schemaName, err)
	}
	if compiled.schemas == nil {
		compiled.schemas = map[string]*jsonschema.Schema{}
	}
	compiled.schemas[schemaName] = schema
	return schema, nil
}

func validateJSON(schemaName string, schema *jsonschema.Schema, data []byte) error {
	result := schema.ValidateJSON(data)
	if result.IsValid() {
		return nil
	}
	return coreerrors.Validation(coreerrors.CodeSchemaValidationFailed, "schema validation failed (%s): %v", schemaName, result.Errors)
}
