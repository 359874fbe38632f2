package tools

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// compileContract generates a JSON Schema from a parameter list and compiles
// it. The same shape is used for parameter and return contracts.
func compileContract(contract []Parameter) (*gojsonschema.Schema, error) {
	if len(contract) == 0 {
		return nil, nil
	}

	properties := make(map[string]interface{})
	required := []string{}

	for _, param := range contract {
		paramSchema := map[string]interface{}{
			"type": param.Type,
		}
		if param.Description != "" {
			paramSchema["description"] = param.Description
		}
		if param.Default != nil {
			paramSchema["default"] = param.Default
		}
		if len(param.Enum) > 0 {
			paramSchema["enum"] = param.Enum
		}

		properties[param.Name] = paramSchema

		if param.Required {
			required = append(required, param.Name)
		}
	}

	schemaMap := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schemaMap["required"] = required
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
	if err != nil {
		return nil, err
	}

	return schema, nil
}

// validateAgainst validates a payload against a compiled contract schema.
// A nil schema (empty contract) accepts anything.
func validateAgainst(schema *gojsonschema.Schema, payload map[string]interface{}) error {
	if schema == nil {
		return nil
	}
	if payload == nil {
		payload = map[string]interface{}{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(payload))
	if err != nil {
		return err
	}

	if !result.Valid() {
		violations := make([]string, 0, len(result.Errors()))
		for _, verr := range result.Errors() {
			violations = append(violations, verr.String())
		}
		return fmt.Errorf("%s", strings.Join(violations, "; "))
	}

	return nil
}
