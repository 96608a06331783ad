package adapter

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schema/result.schema.json
var schemaFS embed.FS

const resultSchemaURL = "mem://schemas/result.schema.json"

var (
	compileOnce  sync.Once
	resultSchema *jsonschema.Schema
	compileErr   error
)

func compiledResultSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		data, err := schemaFS.ReadFile("schema/result.schema.json")
		if err != nil {
			compileErr = fmt.Errorf("read result schema: %w", err)
			return
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
		if err != nil {
			compileErr = fmt.Errorf("decode result schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(resultSchemaURL, doc); err != nil {
			compileErr = fmt.Errorf("register result schema: %w", err)
			return
		}
		resultSchema, compileErr = c.Compile(resultSchemaURL)
	})
	return resultSchema, compileErr
}

// DecodeResult validates raw analyzer output against the result schema and
// decodes it.
func DecodeResult(data []byte) (*Result, error) {
	sch, err := compiledResultSchema()
	if err != nil {
		return nil, err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode analyzer output: %w", err)
	}
	if err := sch.Validate(inst); err != nil {
		return nil, fmt.Errorf("validate analyzer output: %w", err)
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decode analyzer output: %w", err)
	}
	return &res, nil
}
