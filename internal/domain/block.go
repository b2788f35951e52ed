package domain

import "maps"

// Props holds a block's field values. Values are JSON-compatible
// (string, float64, bool, []any, map[string]any, nil).
type Props map[string]any

// Clone returns a shallow copy. Nested values are shared and must be
// treated as read-only.
func (p Props) Clone() Props {
	if p == nil {
		return Props{}
	}
	return maps.Clone(p)
}

// Merge returns a new Props with overlay applied on top of p.
func (p Props) Merge(overlay Props) Props {
	out := p.Clone()
	for k, v := range overlay {
		out[k] = v
	}
	return out
}

// Block is a typed, uniquely identified node in the document tree.
type Block struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Props Props  `json:"props"`
}

// WithProps returns a copy of b carrying props.
func (b Block) WithProps(props Props) Block {
	b.Props = props
	return b
}
