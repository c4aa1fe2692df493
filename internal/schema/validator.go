package schema

import (
	"bytes"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Option configures validation.
type Option func(*options)

type options struct {
	strict bool
	file   string
}

// WithStrict rejects keys the schema does not know, including a cache flag on
// dependency entries. By default unknown keys are tolerated.
func WithStrict() Option {
	return func(o *options) { o.strict = true }
}

// WithStrictMode is WithStrict driven by a boolean, for configuration.
func WithStrictMode(strict bool) Option {
	return func(o *options) { o.strict = strict }
}

// WithFile records the file a document came from in returned errors.
func WithFile(path string) Option {
	return func(o *options) { o.file = path }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Parse parses raw bytes into a YAML node tree without validating its shape.
// Empty input yields an empty document. Syntax errors are returned as *ParseError.
func Parse(data []byte, opts ...Option) (*yaml.Node, error) {
	o := buildOptions(opts)

	var root yaml.Node
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&root); err != nil {
		if err == io.EOF {
			return &yaml.Node{Kind: yaml.DocumentNode}, nil
		}
		return nil, newParseError(o.file, err)
	}

	var extra yaml.Node
	if err := dec.Decode(&extra); err != io.EOF {
		if err != nil {
			return nil, newParseError(o.file, err)
		}
		return nil, &ParseError{
			File:    o.file,
			Line:    extra.Line,
			Column:  extra.Column,
			Message: "stage file must contain a single YAML document",
		}
	}
	return &root, nil
}

// Validate checks the structure of a parsed stage document.
// Returns nil if the document is acceptable, or a *FormatError listing every violation.
func Validate(node *yaml.Node, opts ...Option) error {
	v := &validator{opts: buildOptions(opts)}
	v.document(node)
	if len(v.violations) > 0 {
		return &FormatError{File: v.opts.file, Violations: v.violations}
	}
	return nil
}

// ValidateBytes parses and validates a raw stage document.
func ValidateBytes(data []byte, opts ...Option) error {
	node, err := Parse(data, opts...)
	if err != nil {
		return err
	}
	return Validate(node, opts...)
}

// ValidateValue validates an in-memory document such as a map literal by
// encoding it into a YAML node tree first.
func ValidateValue(doc any, opts ...Option) error {
	var node yaml.Node
	if err := node.Encode(doc); err != nil {
		return fmt.Errorf("encoding stage document: %w", err)
	}
	return Validate(&node, opts...)
}

// validator accumulates violations over a single pass of the document.
type validator struct {
	opts       options
	violations []Violation
}

func (v *validator) add(node *yaml.Node, field, format string, args ...any) {
	viol := Violation{Field: field, Message: fmt.Sprintf(format, args...)}
	if node != nil {
		viol.Line = node.Line
		viol.Column = node.Column
	}
	v.violations = append(v.violations, viol)
}

// document validates the root of a stage document.
func (v *validator) document(node *yaml.Node) {
	root := Resolve(node)

	switch kind := Classify(root); kind {
	case KindAbsent, KindNull:
		return
	case KindMapping:
	default:
		v.add(root, "", "expected a mapping, got %s", kind)
		return
	}

	seen := make(map[string]bool)
	for _, p := range Pairs(root) {
		name := p.Key.Value
		if isMergeKey(p.Key) {
			v.badMerge(p, name)
			continue
		}
		if seen[name] {
			v.add(p.Key, name, "duplicate key")
			continue
		}
		seen[name] = true

		switch name {
		case ParamCmd, ParamWdir, ParamMD5:
			v.optionalString(name, p.Value)
		case ParamDeps:
			v.entries(name, p.Value, false)
		case ParamOuts:
			v.entries(name, p.Value, true)
		default:
			if v.opts.strict {
				v.add(p.Key, name, "unknown key")
			}
		}
	}
}

// badMerge reports a merge key whose value cannot be merged.
func (v *validator) badMerge(p Pair, field string) {
	v.add(p.Value, field, "expected a mapping or a sequence of mappings to merge, got %s", Classify(p.Value))
}

// optionalString accepts null or a string.
func (v *validator) optionalString(field string, node *yaml.Node) {
	switch kind := Classify(node); kind {
	case KindNull, KindString:
	default:
		v.add(node, field, "expected a string or null, got %s", kind)
	}
}

// entries validates a deps or outs slot: null or a sequence of entry mappings.
func (v *validator) entries(field string, node *yaml.Node, isOut bool) {
	switch kind := Classify(node); kind {
	case KindNull:
		return
	case KindSequence:
	default:
		v.add(node, field, "expected a sequence or null, got %s", kind)
		return
	}

	for i, item := range Items(node) {
		v.entry(fmt.Sprintf("%s[%d]", field, i), item, isOut)
	}
}

// entry validates a single dependency or output mapping.
func (v *validator) entry(prefix string, node *yaml.Node, isOut bool) {
	if kind := Classify(node); kind != KindMapping {
		v.add(node, prefix, "expected a mapping with %q, got %s", ParamPath, kind)
		return
	}

	hasPath := false
	seen := make(map[string]bool)
	for _, p := range Pairs(node) {
		name := p.Key.Value
		field := prefix + "." + name
		if isMergeKey(p.Key) {
			v.badMerge(p, field)
			continue
		}
		if seen[name] {
			v.add(p.Key, field, "duplicate key")
			continue
		}
		seen[name] = true

		switch name {
		case ParamPath:
			hasPath = true
			if kind := Classify(p.Value); kind != KindString {
				v.add(p.Value, field, "expected a string, got %s", kind)
			} else if p.Value.Value == "" {
				v.add(p.Value, field, "must not be empty")
			}
		case ParamChecksum:
			v.optionalString(field, p.Value)
		case ParamCache:
			if !isOut {
				if v.opts.strict {
					v.add(p.Key, field, "cache is only allowed on outputs")
				}
				continue
			}
			switch kind := Classify(p.Value); kind {
			case KindBool, KindNull:
			default:
				v.add(p.Value, field, "expected a boolean, got %s", kind)
			}
		default:
			if v.opts.strict {
				v.add(p.Key, field, "unknown key")
			}
		}
	}

	if !hasPath {
		v.add(node, prefix+"."+ParamPath, "missing required field")
	}
}
