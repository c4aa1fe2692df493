package schema

import (
	"github.com/invopop/jsonschema"
)

// documentShape mirrors the stage document for JSON Schema generation only.
type documentShape struct {
	Cmd  *string    `json:"cmd,omitempty" jsonschema:"nullable,description=Command to execute; absent or null for a no-op stage"`
	Wdir string     `json:"wdir,omitempty" jsonschema:"default=.,description=Working directory relative to the stage file"`
	Deps []depShape `json:"deps,omitempty" jsonschema:"nullable,description=Ordered dependencies"`
	Outs []outShape `json:"outs,omitempty" jsonschema:"nullable,description=Ordered outputs"`
	MD5  *string    `json:"md5,omitempty" jsonschema:"nullable,description=Last computed stage checksum"`
}

type depShape struct {
	Path     string  `json:"path" jsonschema:"minLength=1,description=Location of the artifact"`
	Checksum *string `json:"checksum,omitempty" jsonschema:"nullable,description=Content checksum; null when not yet resolved"`
}

type outShape struct {
	Path     string  `json:"path" jsonschema:"minLength=1,description=Location of the artifact"`
	Checksum *string `json:"checksum,omitempty" jsonschema:"nullable,description=Content checksum; null when not yet resolved"`
	Cache    *bool   `json:"cache,omitempty" jsonschema:"default=true,description=Whether the output is stored in the content-addressable cache"`
}

// JSONSchema returns a JSON Schema describing the stage document. Extra keys
// are allowed unless strict is set, matching Validate's lenient default.
func JSONSchema(strict bool) *jsonschema.Schema {
	r := &jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: !strict,
	}
	s := r.Reflect(&documentShape{})
	s.Title = "Stage file"
	s.Description = "A reproducible unit of computation: command, dependencies, outputs and stage checksum."
	return s
}
