package manifest

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed velac.cue
var schemaSource string

var (
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaDef  cue.Value
	schemaErr  error
	schemaMu   sync.Mutex
)

func loadSchema() {
	schemaCtx = cuecontext.New()
	v := schemaCtx.CompileString(schemaSource, cue.Filename("velac.cue"))
	if err := v.Err(); err != nil {
		schemaErr = fmt.Errorf("compiling manifest schema: %w", err)
		return
	}
	schemaDef = v.LookupPath(cue.ParsePath("#Manifest"))
	if err := schemaDef.Err(); err != nil {
		schemaErr = fmt.Errorf("manifest schema: %w", err)
	}
}

// Validate checks decoded manifest contents against the embedded schema.
// Unknown sections, unknown keys and out-of-range values are rejected.
func Validate(raw map[string]any) error {
	schemaOnce.Do(loadSchema)
	if schemaErr != nil {
		return schemaErr
	}
	if raw == nil {
		raw = map[string]any{}
	}

	// CUE values are not safe for concurrent use; the schema is shared.
	schemaMu.Lock()
	defer schemaMu.Unlock()

	v := schemaCtx.Encode(raw)
	if err := v.Err(); err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}
	if err := schemaDef.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}
	return nil
}
