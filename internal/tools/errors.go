package tools

import "fmt"

// SchemaTranslationError reports a tool input schema that cannot be
// projected into the provider tool configuration.
type SchemaTranslationError struct {
	Tool     string
	Property string
	Field    string
}

func (e *SchemaTranslationError) Error() string {
	if e.Property == "" {
		return fmt.Sprintf("tool %q: input schema missing %q", e.Tool, e.Field)
	}
	return fmt.Sprintf("tool %q: property %q missing %q", e.Tool, e.Property, e.Field)
}

// ToolResultFormatError reports a tool result whose primary content is not
// the expected {"result": <value>} JSON object.
type ToolResultFormatError struct {
	Tool string
	Raw  string
	Err  error
}

func (e *ToolResultFormatError) Error() string {
	return fmt.Sprintf("tool %q returned an unusable result: %v", e.Tool, e.Err)
}

func (e *ToolResultFormatError) Unwrap() error { return e.Err }
