package tracer

import "encoding/xml"

// node is a generic, fully-decoded XML element tree used to walk CLIXML
// payloads with path-like lookups (MS/Obj[@N='Cmds']/LST, etc.), the way
// the original implementation uses ElementTree.find. No XPath library
// exists anywhere in the example pack this rework draws from, so this is
// a deliberately minimal stdlib substitute scoped to the handful of path
// shapes the spec actually needs.
type node struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Content string     `xml:",chardata"`
	Nodes   []node     `xml:",any"`
}

// parseElement decodes a single top-level CLIXML element (spec §4.7's
// per-object payload).
func parseElement(data string) (*node, error) {
	var n node
	if err := xml.Unmarshal([]byte(data), &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// attr returns the value of the named attribute, or ok=false if absent.
func (n *node) attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// child returns the first direct child whose tag is name, and optionally
// whose attrName attribute equals attrVal (when attrName != "").
func (n *node) child(name, attrName, attrVal string) *node {
	for i := range n.Nodes {
		c := &n.Nodes[i]
		if c.XMLName.Local != name {
			continue
		}
		if attrName == "" {
			return c
		}
		if v, ok := c.attr(attrName); ok && v == attrVal {
			return c
		}
	}
	return nil
}

// path walks a sequence of (tag, attrName, attrVal) child lookups starting
// from n, returning nil as soon as any step fails to match.
func (n *node) path(steps ...[3]string) *node {
	cur := n
	for _, s := range steps {
		if cur == nil {
			return nil
		}
		cur = cur.child(s[0], s[1], s[2])
	}
	return cur
}
