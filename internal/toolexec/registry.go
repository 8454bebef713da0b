package toolexec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	schemavalidate "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/nexus/pkg/events"
)

// Registry is the process-wide catalog of tool schemas advertised to the
// LLM in a SystemPromptEvent. It is an explicit value the composition root
// constructs and hands to EventServices as a dependency, not a package-level
// singleton reached for via an ambient import (per the global-registry
// design note).
type Registry struct {
	mu       sync.RWMutex
	schemas  map[string]events.ToolSchema
	compiled map[string]*schemavalidate.Schema
}

// NewRegistry builds a Registry preloaded with the four built-in tools.
func NewRegistry() *Registry {
	r := &Registry{schemas: map[string]events.ToolSchema{}, compiled: map[string]*schemavalidate.Schema{}}
	r.mustRegister("execute_bash", "Run a shell command in the conversation workspace.", events.BashAction{})
	r.mustRegister("finish", "Signal that the task is complete.", events.FinishAction{})
	r.mustRegister("read_file", "Read a file from the workspace.", events.FileReadAction{})
	r.mustRegister("write_file", "Write a file to the workspace, creating it if needed.", events.FileWriteAction{})
	return r
}

func (r *Registry) mustRegister(name, description string, sample any) {
	if err := r.Register(name, description, sample); err != nil {
		panic(err)
	}
}

// Register reflects sample's struct shape into a JSON Schema and adds it
// under name, overwriting any existing entry of the same name.
func (r *Registry) Register(name, description string, sample any) error {
	reflector := &jsonschema.Reflector{
		FieldNameTag:               "json",
		ExpandedStruct:             true,
		DoNotReference:             true,
		AllowAdditionalProperties:  false,
	}
	schema := reflector.Reflect(sample)
	raw, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("toolexec: reflect schema for %q: %w", name, err)
	}
	compiler := schemavalidate.NewCompiler()
	resourceName := name + ".json"
	if err := compiler.AddResource(resourceName, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("toolexec: add schema resource for %q: %w", name, err)
	}
	compiledSchema, err := compiler.Compile(resourceName)
	if err != nil {
		return fmt.Errorf("toolexec: compile schema for %q: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[name] = events.ToolSchema{Name: name, Description: description, Parameters: raw}
	r.compiled[name] = compiledSchema
	return nil
}

// Validate checks a tool call's raw JSON arguments against the registered
// tool's schema. A tool with no registered schema (an external/MCP tool,
// surfaced only as GenericAction) is never validated here.
func (r *Registry) Validate(toolName string, rawArgs json.RawMessage) error {
	r.mu.RLock()
	schema, ok := r.compiled[toolName]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	var decoded any
	if err := json.Unmarshal(rawArgs, &decoded); err != nil {
		return fmt.Errorf("toolexec: decode arguments for %q: %w", toolName, err)
	}
	if err := schema.Validate(decoded); err != nil {
		return fmt.Errorf("toolexec: arguments for %q failed schema validation: %w", toolName, err)
	}
	return nil
}

// List returns the advertised tool schemas in a stable order for a
// SystemPromptEvent.
func (r *Registry) List() []events.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := []string{"execute_bash", "finish", "read_file", "write_file"}
	out := make([]events.ToolSchema, 0, len(r.schemas))
	seen := map[string]bool{}
	for _, n := range names {
		if s, ok := r.schemas[n]; ok {
			out = append(out, s)
			seen[n] = true
		}
	}
	for n, s := range r.schemas {
		if !seen[n] {
			out = append(out, s)
		}
	}
	return out
}

// Lookup returns a tool's schema by name.
func (r *Registry) Lookup(name string) (events.ToolSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[name]
	return s, ok
}
