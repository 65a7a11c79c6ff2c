package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const maxBodyBytes = 64 << 10

const chatRequestSchema = `{
  "type": "object",
  "properties": {
    "message":         {"type": "string", "maxLength": 8000},
    "use_rag":         {"type": "boolean"},
    "include_sources": {"type": "boolean"},
    "use_memory":      {"type": "boolean"}
  },
  "required": ["message"]
}`

const clearRequestSchema = `{
  "type": "object",
  "properties": {
    "mode": {"type": ["string", "null"]}
  }
}`

var (
	chatSchema  = jsonschema.MustCompileString("kiki://chat-request.json", chatRequestSchema)
	clearSchema = jsonschema.MustCompileString("kiki://clear-request.json", clearRequestSchema)
)

var errEmptyBody = errors.New("empty request body")

// decodeJSON reads the body, validates it against schema and decodes it into
// out. A nil schema skips validation.
func decodeJSON(r *http.Request, schema *jsonschema.Schema, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(raw) > maxBodyBytes {
		return fmt.Errorf("request body exceeds %d bytes", maxBodyBytes)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return errEmptyBody
	}

	if schema != nil {
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("invalid JSON: %w", err)
		}
		if err := schema.Validate(doc); err != nil {
			return schemaError(err)
		}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// schemaError flattens a validation failure into one line naming the first
// offending field.
func schemaError(err error) error {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err
	}
	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	loc := leaf.InstanceLocation
	if loc == "" {
		loc = "/"
	}
	return fmt.Errorf("%s: %s", loc, leaf.Message)
}
