package processor

import (
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// processorSchema is the structural contract for processor documents.
// additionalProperties:false at the top level also rejects the legacy string
// "output" list shape.
const processorSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["extract", "outputs"],
  "additionalProperties": false,
  "properties": {
    "version": {"type": "string"},
    "extract": {
      "type": "object",
      "minProperties": 1,
      "additionalProperties": {"type": "string", "minLength": 1}
    },
    "transform": {
      "type": "object",
      "additionalProperties": {"$ref": "#/$defs/rule"}
    },
    "outputs": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["name", "type"],
        "additionalProperties": false,
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "type": {"type": "string", "minLength": 1}
        }
      }
    }
  },
  "$defs": {
    "rule": {
      "type": "object",
      "required": ["ops"],
      "additionalProperties": false,
      "properties": {
        "input": {"type": "string"},
        "inputs": {"type": "array", "minItems": 1, "items": {"type": "string"}},
        "ops": {"type": "array", "minItems": 1, "items": {"$ref": "#/$defs/op"}}
      }
    },
    "op": {
      "anyOf": [
        {"type": "string"},
        {
          "type": "object",
          "required": ["type"],
          "properties": {"type": {"type": "string"}}
        }
      ]
    }
  }
}`

var compiledSchema = mustCompile()

func mustCompile() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource("processor.schema.json", strings.NewReader(processorSchema)); err != nil {
		panic(err)
	}
	return c.MustCompile("processor.schema.json")
}
