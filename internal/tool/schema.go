package tool

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	validate "github.com/santhosh-tekuri/jsonschema/v6"
)

// GenerateSchema derives a JSON Schema for v using its struct tags, so a
// tool's input contract stays in sync with its Go input type instead of
// living as a hand-maintained JSON literal.
func GenerateSchema(v any) []byte {
	r := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		RequiredFromJSONSchemaTags: true,
	}
	s := r.Reflect(v)
	data, err := s.MarshalJSON()
	if err != nil {
		panic(fmt.Sprintf("tool: failed to marshal generated schema: %v", err))
	}
	return data
}

// schemaCache holds compiled validators keyed by their raw schema bytes.
// Compiling resolves $refs and builds a dedicated validation tree, so a
// tool called repeatedly shouldn't pay that cost on every call.
var schemaCache sync.Map // map[string]*validate.Schema

// ValidateInput checks input against schemaJSON (a tool's Parameters()),
// returning a descriptive error when it doesn't conform.
func ValidateInput(schemaJSON, input []byte) error {
	key := string(schemaJSON)

	compiled, ok := schemaCache.Load(key)
	if !ok {
		sch, err := validate.CompileString("tool-params.json", key)
		if err != nil {
			return fmt.Errorf("invalid tool schema: %w", err)
		}
		schemaCache.Store(key, sch)
		compiled = sch
	}
	sch := compiled.(*validate.Schema)

	var decoded any
	if err := json.Unmarshal(input, &decoded); err != nil {
		return fmt.Errorf("invalid tool input: %w", err)
	}

	if err := sch.Validate(decoded); err != nil {
		return fmt.Errorf("tool input validation failed: %w", err)
	}
	return nil
}
