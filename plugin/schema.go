package plugin

import (
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaURL = "pluginfilter://plugin-list.schema.json"

// documentSchema describes the accepted input. name and url must be present as
// strings; an empty or malformed url is left for the validator to reject.
const documentSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["plugins"],
	"properties": {
		"desc": {"type": "string"},
		"plugins": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["name", "url"],
				"properties": {
					"name": {"type": "string"},
					"url": {"type": "string"},
					"version": {"type": "string"}
				}
			}
		}
	}
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
)

func compiledSchema() *jsonschema.Schema {
	schemaOnce.Do(func() {
		schema = jsonschema.MustCompileString(schemaURL, documentSchema)
	})
	return schema
}
