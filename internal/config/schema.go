package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// schemaURL identifies the embedded schema inside the compiler.
const schemaURL = "https://xpi-release.local/schemas/config.schema.json"

//go:embed schema.json
var schemaJSON []byte

//nolint:gochecknoglobals // The schema is compiled once per process.
var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("decode config schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err = compiler.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("add config schema: %w", err)
	}

	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile config schema: %w", err)
	}

	return schema, nil
})

// validateSchema checks a YAML document against the embedded JSON Schema.
// The YAML is converted to JSON first so the validator sees JSON types only.
func validateSchema(contents []byte) error {
	var document any
	if err := yaml.Unmarshal(contents, &document); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}

	if document == nil {
		document = map[string]any{}
	}

	asJSON, err := json.Marshal(document)
	if err != nil {
		return fmt.Errorf("convert config to json: %w", err)
	}

	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(asJSON))
	if err != nil {
		return fmt.Errorf("decode config json: %w", err)
	}

	schema, err := compiledSchema()
	if err != nil {
		return err
	}

	if err = schema.Validate(instance); err != nil {
		return fmt.Errorf("config does not match schema: %w", err)
	}

	return nil
}
