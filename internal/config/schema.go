// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimBridge Contributors

package config

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// SchemaID is the $id of the configuration schema.
const SchemaID = "https://simbridge.dev/schemas/config.schema.json"

var (
	schemaOnce  sync.Once
	schemaCache *jschema.Schema
	schemaErr   error
)

// GenerateSchema generates a JSON Schema from the Config struct.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference: true,
	}
	schema := r.Reflect(&Config{})

	schema.ID = jsonschema.ID(SchemaID)
	schema.Title = "SimBridge Configuration"
	schema.Description = "Schema for simbridge.yaml configuration files"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Wrapf(err, "marshal schema")
	}
	return data, nil
}

// ValidateSchema validates YAML configuration data against the schema. Empty
// data is a valid, empty configuration.
func ValidateSchema(data []byte) error {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return oops.Code(CodeInvalid).Wrapf(err, "invalid YAML")
	}

	sch, err := compiledSchema()
	if err != nil {
		return err
	}
	if err := sch.Validate(toJSONTypes(doc)); err != nil {
		return oops.Code(CodeInvalid).Wrapf(err, "schema validation failed")
	}
	return nil
}

func compiledSchema() (*jschema.Schema, error) {
	schemaOnce.Do(func() {
		raw, err := GenerateSchema()
		if err != nil {
			schemaErr = err
			return
		}
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			schemaErr = oops.Wrapf(err, "parse schema JSON")
			return
		}
		c := jschema.NewCompiler()
		if err := c.AddResource("config.schema.json", doc); err != nil {
			schemaErr = oops.Wrapf(err, "add schema resource")
			return
		}
		schemaCache, schemaErr = c.Compile("config.schema.json")
		if schemaErr != nil {
			schemaErr = oops.Wrapf(schemaErr, "compile schema")
		}
	})
	return schemaCache, schemaErr
}

// toJSONTypes converts decoded YAML into the types a JSON decoder produces.
func toJSONTypes(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = toJSONTypes(e)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = toJSONTypes(e)
		}
		return out
	case string, bool, float64, nil:
		return val
	case int:
		return float64(val)
	default:
		if b, err := json.Marshal(val); err == nil {
			var out any
			if err := json.Unmarshal(b, &out); err == nil {
				return out
			}
		}
		return val
	}
}

// FormatSchemaError strips the wrapping from a validation error for display.
func FormatSchemaError(err error) string {
	if err == nil {
		return ""
	}
	return strings.TrimPrefix(err.Error(), "schema validation failed: ")
}
