// Package rpcregistry is the process-wide, read-only-after-startup
// registry of RPC schemas (spec §2 C9, §4.3 "defrpc", §9 design
// notes). It generalizes the teacher's single hard-coded
// RPCHeader/checkRPCHeader version gate (pkg/mcast/protocol.go) into a
// per-RPC-name pair of compiled JSON Schemas, shared by Client.rpc and
// the documentation generator.
package rpcregistry

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Schema is a registered RPC: its name, compiled request/response
// schemas, and a short doc string surfaced by `maelstrom doc`.
type Schema struct {
	Name     string
	Request  *jsonschema.Schema
	Response *jsonschema.Schema
	Doc      string
}

// Registry holds every defrpc'd schema, keyed by request type name.
// Built once at startup (one per workload's init) and read concurrently
// thereafter by many client/supervisor goroutines; reads take the read
// side of mu, so they do not block one another.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*Schema
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{schemas: make(map[string]*Schema)}
}

// Defrpc compiles the given request/response JSON Schema documents
// (as Go values serializable to JSON Schema drafts, typically
// map[string]interface{} literals) and registers them under name.
func (r *Registry) Defrpc(name string, requestSchema, responseSchema interface{}, doc string) error {
	req, err := compile(name+"#request", requestSchema)
	if err != nil {
		return fmt.Errorf("compiling request schema for %q: %w", name, err)
	}
	resp, err := compile(name+"#response", responseSchema)
	if err != nil {
		return fmt.Errorf("compiling response schema for %q: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[name] = &Schema{Name: name, Request: req, Response: resp, Doc: doc}
	return nil
}

func compile(id string, schemaDoc interface{}) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schemaDoc)
	if err != nil {
		return nil, err
	}
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(id, decoded); err != nil {
		return nil, err
	}
	return c.Compile(id)
}

// Lookup returns the registered Schema for name, or (nil, false).
func (r *Registry) Lookup(name string) (*Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[name]
	return s, ok
}

// All returns every registered schema, for the doc generator.
func (r *Registry) All() []*Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Schema, 0, len(r.schemas))
	for _, s := range r.schemas {
		out = append(out, s)
	}
	return out
}

// ValidationError carries the validator's diagnostic plus the
// offending body, surfaced to the caller as a harness error (spec §7
// stratum 3: "a structured diagnostic showing the expected schema,
// the sent/received body, and the validator's complaint").
type ValidationError struct {
	RPCName string
	Side    string // "request" or "response"
	Body    json.RawMessage
	Cause   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("malformed-rpc-%s for %q: %v (body: %s)", e.Side, e.RPCName, e.Cause, e.Body)
}

func (e *ValidationError) Unwrap() error { return e.Cause }

// ValidateRequest checks body against name's request schema.
func (r *Registry) ValidateRequest(name string, body json.RawMessage) error {
	return r.validate(name, "request", body)
}

// ValidateResponse checks body against name's response schema.
func (r *Registry) ValidateResponse(name string, body json.RawMessage) error {
	return r.validate(name, "response", body)
}

func (r *Registry) validate(name, side string, body json.RawMessage) error {
	s, ok := r.Lookup(name)
	if !ok {
		return nil // unregistered RPC names stay routable (spec §9), just unvalidated
	}
	var decoded interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return &ValidationError{RPCName: name, Side: side, Body: body, Cause: err}
	}
	schema := s.Request
	if side == "response" {
		schema = s.Response
	}
	if err := schema.Validate(decoded); err != nil {
		return &ValidationError{RPCName: name, Side: side, Body: body, Cause: err}
	}
	return nil
}
