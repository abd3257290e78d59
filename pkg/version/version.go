// Package version carries the server version and the supported API schema
// range advertised in the post-connect version envelope.
package version

// Server is the gateway server version reported to clients.
const Server = "1.0.0"

// MinSchema and MaxSchema bound the API schema versions this server can
// speak. A new session starts at MaxSchema; clients downgrade with the
// set_api_schema command.
const (
	MinSchema = 0
	MaxSchema = 4
)

// SchemaSupported returns true if the given schema version falls inside the
// supported range.
func SchemaSupported(schema int) bool {
	return schema >= MinSchema && schema <= MaxSchema
}
