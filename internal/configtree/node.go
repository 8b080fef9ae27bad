// Package configtree implements the immutable configuration tree: scalars,
// ordered maps, and lists addressed by dot-separated paths, with deep-merge
// semantics matching the precedence chain server defaults -> system overlay
// -> app overlay -> per-task overlay.
package configtree

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Kind distinguishes the five shapes a Node can take.
type Kind int

const (
	KindScalar Kind = iota
	KindMap
	KindList
	KindNull
	KindAbsent
)

// Node is a recursive configuration value: a scalar, an ordered mapping of
// string to Node, a list of Node, explicit null, or absent (the zero Node).
//
// Node is immutable once constructed: merges and lookups always return new
// values and never mutate an existing Node in place.
type Node struct {
	kind   Kind
	scalar interface{}
	fields map[string]Node
	order  []string // field insertion order, preserved through merges
	list   []Node
}

// Absent is the distinguished "missing path" value, distinct from Null.
var Absent = Node{kind: KindAbsent}

// Null represents an explicit null scalar, set deliberately by an overlay.
var Null = Node{kind: KindNull}

func Scalar(v interface{}) Node {
	return Node{kind: KindScalar, scalar: v}
}

func List(items []Node) Node {
	return Node{kind: KindList, list: items}
}

// Map builds a map node preserving the given key order.
func Map(order []string, fields map[string]Node) Node {
	return Node{kind: KindMap, order: append([]string(nil), order...), fields: fields}
}

func NewMap() Node {
	return Node{kind: KindMap, fields: map[string]Node{}}
}

func (n Node) Kind() Kind { return n.kind }
func (n Node) IsAbsent() bool { return n.kind == KindAbsent }
func (n Node) IsNull() bool   { return n.kind == KindNull }
func (n Node) IsMap() bool    { return n.kind == KindMap }
func (n Node) IsList() bool   { return n.kind == KindList }

// Fields returns the keys of a map node in their preserved order.
func (n Node) Fields() []string {
	if n.kind != KindMap {
		return nil
	}
	return append([]string(nil), n.order...)
}

func (n Node) Items() []Node {
	if n.kind != KindList {
		return nil
	}
	return append([]Node(nil), n.list...)
}

// Scalar returns the raw scalar value and whether n is a scalar.
func (n Node) Scalar() (interface{}, bool) {
	if n.kind != KindScalar {
		return nil, false
	}
	return n.scalar, true
}

func (n Node) String() string {
	v, ok := n.Scalar()
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}

func (n Node) Int() (int, bool) {
	v, ok := n.Scalar()
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case string:
		i, err := strconv.Atoi(t)
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

func (n Node) Float() (float64, bool) {
	v, ok := n.Scalar()
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func (n Node) Bool() (bool, bool) {
	v, ok := n.Scalar()
	if !ok {
		return false, false
	}
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		b, err := strconv.ParseBool(t)
		if err != nil {
			return false, false
		}
		return b, true
	}
	return false, false
}

// Get resolves a dot-separated path, returning Absent when any segment is
// missing. Get never mutates the receiver.
func (n Node) Get(path string) Node {
	if path == "" {
		return n
	}
	cur := n
	for _, seg := range strings.Split(path, ".") {
		if cur.kind != KindMap {
			return Absent
		}
		next, ok := cur.fields[seg]
		if !ok {
			return Absent
		}
		cur = next
	}
	return cur
}

// With returns a new tree with the value at path set to v, creating
// intermediate maps as needed. The receiver is not mutated.
func (n Node) With(path string, v Node) Node {
	if path == "" {
		return v
	}
	segs := strings.Split(path, ".")
	return n.withSegs(segs, v)
}

func (n Node) withSegs(segs []string, v Node) Node {
	head := segs[0]
	base := n
	if base.kind != KindMap {
		base = NewMap()
	}
	fields := make(map[string]Node, len(base.fields)+1)
	for k, val := range base.fields {
		fields[k] = val
	}
	order := append([]string(nil), base.order...)
	if _, exists := fields[head]; !exists {
		order = append(order, head)
	}
	if len(segs) == 1 {
		fields[head] = v
	} else {
		fields[head] = base.fields[head].withSegs(segs[1:], v)
	}
	return Node{kind: KindMap, fields: fields, order: order}
}

// Merge deep-merges overlay onto base:
//   - keys only in overlay or only in base are copied through;
//   - both map -> recurse;
//   - both scalar, or either non-map -> overlay wins, even across type changes;
//   - lists are leaves: overlay's list replaces base's wholesale;
//   - explicit null in overlay means "set to null"; Absent in overlay means
//     "do not touch" and is never passed to Merge as a field value (callers
//     build overlays only from present keys).
//
// Merge is associative under the precedence base -> a -> b, i.e.
// Merge(Merge(base, a), b) == Merge(base, Merge(a, b)) whenever a and b do
// not both set the same leaf path.
func Merge(base, overlay Node) Node {
	if overlay.kind == KindAbsent {
		return base
	}
	if base.kind == KindAbsent {
		return overlay
	}
	if base.kind != KindMap || overlay.kind != KindMap {
		return overlay
	}

	fields := make(map[string]Node, len(base.fields)+len(overlay.fields))
	order := append([]string(nil), base.order...)
	seen := make(map[string]bool, len(order))
	for _, k := range order {
		seen[k] = true
	}
	for k, v := range base.fields {
		fields[k] = v
	}
	for _, k := range overlay.order {
		if !seen[k] {
			order = append(order, k)
			seen[k] = true
		}
		ov := overlay.fields[k]
		bv, existed := fields[k]
		if existed {
			fields[k] = Merge(bv, ov)
		} else {
			fields[k] = ov
		}
	}
	return Node{kind: KindMap, fields: fields, order: order}
}

// MergeAll folds Merge across layers in precedence order, lowest first.
func MergeAll(layers ...Node) Node {
	result := Absent
	for _, l := range layers {
		result = Merge(result, l)
	}
	return result
}

// Equal reports whether two nodes are semantically identical: same kind,
// same scalar value, same map contents (order-independent), same list
// contents in order. Used by the YAML round-trip property test.
func Equal(a, b Node) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindScalar:
		return fmt.Sprintf("%v", a.scalar) == fmt.Sprintf("%v", b.scalar)
	case KindMap:
		if len(a.fields) != len(b.fields) {
			return false
		}
		for k, av := range a.fields {
			bv, ok := b.fields[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	case KindList:
		if len(a.list) != len(b.list) {
			return false
		}
		for i := range a.list {
			if !Equal(a.list[i], b.list[i]) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// FromInterface wraps an untyped value (as produced by a YAML/JSON decode
// into interface{}) into a Node tree.
func FromInterface(v interface{}) Node {
	switch t := v.(type) {
	case nil:
		return Null
	case map[string]interface{}:
		order := make([]string, 0, len(t))
		fields := make(map[string]Node, len(t))
		for k, val := range t {
			order = append(order, k)
			fields[k] = FromInterface(val)
		}
		return Map(order, fields)
	case map[interface{}]interface{}:
		order := make([]string, 0, len(t))
		fields := make(map[string]Node, len(t))
		for k, val := range t {
			ks := fmt.Sprintf("%v", k)
			order = append(order, ks)
			fields[ks] = FromInterface(val)
		}
		return Map(order, fields)
	case []interface{}:
		items := make([]Node, len(t))
		for i, val := range t {
			items[i] = FromInterface(val)
		}
		return List(items)
	default:
		return Scalar(t)
	}
}

// ToInterface unwraps a Node tree back into plain Go values, suitable for
// json/yaml marshaling.
func ToInterface(n Node) interface{} {
	switch n.kind {
	case KindAbsent, KindNull:
		return nil
	case KindScalar:
		return n.scalar
	case KindMap:
		out := make(map[string]interface{}, len(n.fields))
		for k, v := range n.fields {
			out[k] = ToInterface(v)
		}
		return out
	case KindList:
		out := make([]interface{}, len(n.list))
		for i, v := range n.list {
			out[i] = ToInterface(v)
		}
		return out
	}
	return nil
}

// Decode unwraps n and decodes it into out (a pointer to a struct or map),
// matching fields by `mapstructure` tag or, failing that, a case-insensitive
// field name. Call sites that need a typed view of a resolved Node — rather
// than chains of Get(path).String()/.Int() — use this instead. A list
// overlay that reaches here has already replaced wholesale per Merge's
// rules, so mapstructure only ever decodes the winning slice, never merges
// two.
func Decode(n Node, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return fmt.Errorf("configtree: build decoder: %w", err)
	}
	if err := dec.Decode(ToInterface(n)); err != nil {
		return fmt.Errorf("configtree: decode: %w", err)
	}
	return nil
}
