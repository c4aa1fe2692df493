package schema

import "gopkg.in/yaml.v3"

// Kind is the tagged variant a document value is classified into.
type Kind int

const (
	KindAbsent Kind = iota
	KindNull
	KindString
	KindBool
	KindNumber
	KindSequence
	KindMapping
	KindOther
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	default:
		return "unsupported value"
	}
}

// Classify returns the Kind of a YAML node. A nil node is KindAbsent and a
// document node is classified by its single root value.
func Classify(node *yaml.Node) Kind {
	if node == nil {
		return KindAbsent
	}

	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return KindNull
		}
		return Classify(node.Content[0])
	case yaml.AliasNode:
		return Classify(node.Alias)
	case yaml.MappingNode:
		return KindMapping
	case yaml.SequenceNode:
		return KindSequence
	case yaml.ScalarNode:
		switch node.ShortTag() {
		case "!!null":
			return KindNull
		case "!!str":
			return KindString
		case "!!bool":
			return KindBool
		case "!!int", "!!float":
			return KindNumber
		}
	}
	return KindOther
}

// Pair is a single key/value entry of a mapping node.
type Pair struct {
	Key   *yaml.Node
	Value *yaml.Node
}

// Pairs returns the key/value entries of a mapping node in document order.
// Aliases are followed. Merge keys (<<) are expanded in place the way the
// decoder applies them: explicit keys win over merged ones, and earlier merge
// sources win over later ones. A merge whose value is not a mapping or a
// sequence of mappings is kept as a "<<" pair. Non-mapping nodes yield nil.
func Pairs(node *yaml.Node) []Pair {
	node = Resolve(node)
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}

	explicit := make(map[string]bool)
	for i := 0; i+1 < len(node.Content); i += 2 {
		if !isMergeKey(node.Content[i]) {
			explicit[node.Content[i].Value] = true
		}
	}

	pairs := make([]Pair, 0, len(node.Content)/2)
	merged := make(map[string]bool)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], Resolve(node.Content[i+1])
		if !isMergeKey(key) {
			pairs = append(pairs, Pair{Key: key, Value: value})
			continue
		}
		sources, ok := mergeSources(value)
		if !ok {
			pairs = append(pairs, Pair{Key: key, Value: value})
			continue
		}
		for _, src := range sources {
			for _, p := range Pairs(src) {
				name := p.Key.Value
				if explicit[name] || merged[name] {
					continue
				}
				merged[name] = true
				pairs = append(pairs, p)
			}
		}
	}
	return pairs
}

func isMergeKey(key *yaml.Node) bool {
	return key.Kind == yaml.ScalarNode && key.ShortTag() == "!!merge"
}

// mergeSources returns the mappings a merge value stands for.
func mergeSources(value *yaml.Node) ([]*yaml.Node, bool) {
	switch Classify(value) {
	case KindMapping:
		return []*yaml.Node{value}, true
	case KindSequence:
		items := Items(value)
		for _, item := range items {
			if Classify(item) != KindMapping {
				return nil, false
			}
		}
		return items, true
	default:
		return nil, false
	}
}

// Items returns the elements of a sequence node. Non-sequence nodes yield nil.
func Items(node *yaml.Node) []*yaml.Node {
	node = Resolve(node)
	if node == nil || node.Kind != yaml.SequenceNode {
		return nil
	}

	items := make([]*yaml.Node, 0, len(node.Content))
	for _, item := range node.Content {
		items = append(items, Resolve(item))
	}
	return items
}

// Resolve unwraps document and alias nodes down to the value they stand for.
// An empty document resolves to nil.
func Resolve(node *yaml.Node) *yaml.Node {
	for node != nil {
		switch node.Kind {
		case yaml.DocumentNode:
			if len(node.Content) == 0 {
				return nil
			}
			node = node.Content[0]
		case yaml.AliasNode:
			node = node.Alias
		default:
			return node
		}
	}
	return nil
}
