// Package tree decodes provider payloads into a uniform map/list tree and
// answers path queries against it.
//
// XML and JSON both decode to the same shape: objects are map[string]any,
// repeated elements are []any, leaves are strings (XML) or JSON scalars.
// XML attributes are keys prefixed with "@"; element text that sits beside
// attributes is stored under "#text".
package tree

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/clbanning/mxj/v2"
)

// Node is any value in a decoded tree.
type Node = any

// Map is an object node.
type Map = map[string]any

// TextKey holds element text when the element also carries attributes.
const TextKey = "#text"

// AttrPrefix marks attribute keys.
const AttrPrefix = "@"

// mxjAttrPrefix is the prefix mxj uses for attributes by default.
const mxjAttrPrefix = "-"

// DecodeXML parses an XML document into a tree.
func DecodeXML(data []byte) (Node, error) {
	m, err := mxj.NewMapXml(data)
	if err != nil {
		return nil, fmt.Errorf("decoding XML: %w", err)
	}
	return convert(map[string]any(m)), nil
}

// DecodeJSON parses a JSON document into a tree.
func DecodeJSON(data []byte) (Node, error) {
	var n Node
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("decoding JSON: %w", err)
	}
	return n, nil
}

// convert copies an mxj tree into plain maps and slices, renaming attribute
// keys to the "@" form.
func convert(n Node) Node {
	switch v := n.(type) {
	case mxj.Map:
		return convert(map[string]any(v))
	case map[string]any:
		out := make(Map, len(v))
		for k, child := range v {
			if strings.HasPrefix(k, mxjAttrPrefix) {
				k = AttrPrefix + strings.TrimPrefix(k, mxjAttrPrefix)
			}
			out[k] = convert(child)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = convert(child)
		}
		return out
	default:
		return v
	}
}

// Lookup walks path through nested maps. It reports false as soon as a
// segment is missing or the current node is not a map; it never substitutes
// a default for a missing level.
func Lookup(n Node, path ...string) (Node, bool) {
	cur := n
	for _, key := range path {
		m, ok := cur.(Map)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, cur != nil
}

// Items treats n as a list: a list yields its elements, nil yields nothing,
// and any other node is a one-element list.
func Items(n Node) []Node {
	switch v := n.(type) {
	case nil:
		return nil
	case []any:
		return v
	default:
		return []Node{v}
	}
}

// Text returns the text of a leaf or of an element with attributes.
func Text(n Node) (string, bool) {
	switch v := n.(type) {
	case string:
		return v, true
	case Map:
		t, ok := v[TextKey].(string)
		return t, ok
	case json.Number:
		return v.String(), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	default:
		return "", false
	}
}

// Int reads an integer from a numeric or textual node.
func Int(n Node) (int, bool) {
	switch v := n.(type) {
	case float64:
		if v != float64(int(v)) {
			return 0, false
		}
		return int(v), true
	default:
		s, ok := Text(n)
		if !ok {
			return 0, false
		}
		i, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return 0, false
		}
		return i, true
	}
}

// Attr returns the attribute named attr (without prefix) of an element.
func Attr(n Node, attr string) (string, bool) {
	m, ok := n.(Map)
	if !ok {
		return "", false
	}
	v, ok := m[AttrPrefix+attr].(string)
	return v, ok
}

// FindByAttr returns the first item of n whose attribute equals value.
func FindByAttr(n Node, attr, value string) (Node, bool) {
	for _, item := range Items(n) {
		if v, ok := Attr(item, attr); ok && v == value {
			return item, true
		}
	}
	return nil, false
}

// String looks up path and returns its text, or false when the path is
// missing or not textual.
func String(n Node, path ...string) (string, bool) {
	v, ok := Lookup(n, path...)
	if !ok {
		return "", false
	}
	return Text(v)
}

// FindKey searches n depth-first for the first value stored under key.
func FindKey(n Node, key string) (Node, bool) {
	switch v := n.(type) {
	case Map:
		if child, ok := v[key]; ok {
			return child, true
		}
		for _, child := range v {
			if found, ok := FindKey(child, key); ok {
				return found, true
			}
		}
	case []any:
		for _, child := range v {
			if found, ok := FindKey(child, key); ok {
				return found, true
			}
		}
	}
	return nil, false
}
