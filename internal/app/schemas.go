package app

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const schemaBaseURL = "https://padlink.local/schemas/"

var schemaSources = map[string]string{
	"create-body.json": `{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"properties": {
			"name": {"type": "string", "minLength": 1, "maxLength": 255},
			"initHtml": {"type": "string"}
		},
		"required": ["name"],
		"additionalProperties": false
	}`,
	"create-query.json": `{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"properties": {
			"parentId": {"type": "string", "format": "uuid"}
		},
		"additionalProperties": false
	}`,
	"view-query.json": `{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"properties": {
			"mode": {"type": "string", "enum": ["read", "write"]}
		},
		"additionalProperties": false
	}`,
	"item-params.json": `{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"properties": {
			"itemId": {"type": "string", "format": "uuid"}
		},
		"required": ["itemId"],
		"additionalProperties": false
	}`,
}

type requestSchemas struct {
	createBody  *jsonschema.Schema
	createQuery *jsonschema.Schema
	viewQuery   *jsonschema.Schema
	itemParams  *jsonschema.Schema
}

func compileSchemas() (*requestSchemas, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	for name, source := range schemaSources {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(source))
		if err != nil {
			return nil, fmt.Errorf("parse schema %s: %w", name, err)
		}
		if err := c.AddResource(schemaBaseURL+name, doc); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", name, err)
		}
	}

	compiled := make(map[string]*jsonschema.Schema, len(schemaSources))
	for name := range schemaSources {
		sch, err := c.Compile(schemaBaseURL + name)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		compiled[name] = sch
	}
	return &requestSchemas{
		createBody:  compiled["create-body.json"],
		createQuery: compiled["create-query.json"],
		viewQuery:   compiled["view-query.json"],
		itemParams:  compiled["item-params.json"],
	}, nil
}

func mustCompileSchemas() *requestSchemas {
	schemas, err := compileSchemas()
	if err != nil {
		panic(err)
	}
	return schemas
}

// validateQuery checks the first value of every query parameter.
func validateQuery(schema *jsonschema.Schema, values url.Values) error {
	instance := make(map[string]any, len(values))
	for key, vals := range values {
		if len(vals) > 0 {
			instance[key] = vals[0]
		}
	}
	return schema.Validate(instance)
}

func validateParams(schema *jsonschema.Schema, params map[string]string) error {
	instance := make(map[string]any, len(params))
	for key, value := range params {
		instance[key] = value
	}
	return schema.Validate(instance)
}

func validateBody(schema *jsonschema.Schema, raw []byte) error {
	instance, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return fmt.Errorf("invalid JSON body")
	}
	return schema.Validate(instance)
}
