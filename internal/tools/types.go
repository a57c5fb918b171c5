// Package tools translates externally discovered tool descriptors into the
// provider tool configuration and dispatches the model's tool-call
// requests through the tool server session.
package tools

import "context"

// Descriptor describes one externally discovered tool. InputSchema is the
// JSON-schema-like object reported by the tool server; the core reads its
// "properties" mapping and treats the rest as opaque.
type Descriptor struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Properties returns the property mapping of the input schema, or nil when
// the schema does not carry one.
func (d Descriptor) Properties() (map[string]any, bool) {
	if d.InputSchema == nil {
		return nil, false
	}
	props, ok := d.InputSchema["properties"].(map[string]any)
	return props, ok
}

// Caller executes a named tool on the tool server and returns its primary
// text content. Implemented by the MCP client.
type Caller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
}

// Defaults maps a tool name to the argument object substituted when the
// model requests the tool with an empty argument object. Some tool servers
// reject empty arguments outright, so known cases are rewritten before the
// call goes out.
type Defaults map[string]map[string]any

// DefaultArguments returns the stock substitution table.
func DefaultArguments() Defaults {
	return Defaults{
		"get_pods_information": {"namespace": "None", "podName": "None"},
	}
}

// Apply returns the arguments to send for a call to name. Empty arguments
// for a listed tool yield a copy of its default object; everything else
// passes through unchanged.
func (d Defaults) Apply(name string, args map[string]any) map[string]any {
	if len(args) > 0 {
		return args
	}
	def, ok := d[name]
	if !ok {
		if args == nil {
			return map[string]any{}
		}
		return args
	}
	out := make(map[string]any, len(def))
	for k, v := range def {
		out[k] = v
	}
	return out
}
