package description

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schema.json
var schemaDoc []byte

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func compileSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		var schemaMap any
		if err := json.Unmarshal(schemaDoc, &schemaMap); err != nil {
			schemaErr = fmt.Errorf("failed to unmarshal schema: %w", err)
			return
		}

		c := jsonschema.NewCompiler()
		if err := c.AddResource("description.json", schemaMap); err != nil {
			schemaErr = fmt.Errorf("failed to add resource: %w", err)
			return
		}
		compiledSchema, schemaErr = c.Compile("description.json")
	})
	return compiledSchema, schemaErr
}

// Validate checks a raw JSON description against the description schema.
func Validate(data []byte) error {
	schema, err := compileSchema()
	if err != nil {
		return fmt.Errorf("failed to compile description schema: %w", err)
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDescription, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDescription, err)
	}
	return nil
}
