package config

import "github.com/invopop/jsonschema"

// WorkOrderSchema generates the JSON Schema for config.WorkOrder, printed by
// forged's schema subcommand. Request bodies are not validated against it;
// the HTTP boundary only decodes them as JSON.
func WorkOrderSchema() *jsonschema.Schema {
	reflector := &jsonschema.Reflector{ExpandedStruct: true}
	return reflector.Reflect(&WorkOrder{})
}
