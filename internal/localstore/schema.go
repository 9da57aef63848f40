package localstore

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	cuejson "cuelang.org/go/encoding/json"
)

//go:embed schema.cue
var schemaCUE string

// SchemaError reports a blob that does not match its schema.
type SchemaError struct {
	Key     string
	Message string
	Pos     token.Pos
}

func (e *SchemaError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s blob: %s (%s)", e.Key, e.Message, e.Pos)
	}
	return fmt.Sprintf("%s blob: %s", e.Key, e.Message)
}

// Schema validates blobs against the embedded CUE definitions.
// CUE values are not safe for concurrent use; calls are serialized.
type Schema struct {
	mu     sync.Mutex
	ctx    *cue.Context
	schema cue.Value
}

// NewSchema compiles the embedded schema.
func NewSchema() (*Schema, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile blob schema: %w", err)
	}
	return &Schema{ctx: ctx, schema: v}, nil
}

// Validate checks that data is JSON matching the definition for key.
func (s *Schema) Validate(key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	def := s.schema.LookupPath(cue.ParsePath(key))
	if !def.Exists() {
		return &SchemaError{Key: key, Message: "no schema for key"}
	}
	expr, err := cuejson.Extract(key+".json", data)
	if err != nil {
		return schemaError(key, err)
	}
	v := s.ctx.BuildExpr(expr)
	if err := v.Err(); err != nil {
		return schemaError(key, err)
	}
	if err := def.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return schemaError(key, err)
	}
	return nil
}

func schemaError(key string, err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &SchemaError{Key: key, Message: err.Error()}
	}
	first := errs[0]
	se := &SchemaError{Key: key, Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		se.Pos = positions[0]
	}
	return se
}
