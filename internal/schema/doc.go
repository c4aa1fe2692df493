// Package schema provides structural validation of raw stage documents.
//
// A stage document is checked as a tree of yaml.Node values before it is
// decoded into a typed stage. Every field is classified into a tagged Kind
// (absent, null, string, sequence, mapping, ...) and compared against the
// kinds the field accepts. Validation never stops at the first problem: all
// violations are collected into a single FormatError so a user sees every
// correction needed in one pass.
//
// Document shape:
//
//	cmd: <string|null>
//	wdir: <string>
//	deps:
//	  - path: <string>
//	    checksum: <string|null>
//	outs:
//	  - path: <string>
//	    checksum: <string|null>
//	    cache: <bool>
//	md5: <string>
package schema

// Field names used in stage documents.
const (
	ParamCmd      = "cmd"
	ParamWdir     = "wdir"
	ParamDeps     = "deps"
	ParamOuts     = "outs"
	ParamMD5      = "md5"
	ParamPath     = "path"
	ParamChecksum = "checksum"
	ParamCache    = "cache"
)
