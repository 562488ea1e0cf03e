package seeding

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/AtRiskMedia/pagecontent-go/internal/domain/entities/content"
)

// ParseYAML decodes a YAML document into a content value. Mapping order is
// kept so the tree flattens in the order it was written.
func ParseYAML(data []byte) (content.Value, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return content.Null(), err
	}
	if doc.Kind == 0 {
		return content.NewObject(), nil
	}
	return fromNode(&doc)
}

func fromNode(n *yaml.Node) (content.Value, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return content.NewObject(), nil
		}
		return fromNode(n.Content[0])
	case yaml.AliasNode:
		return fromNode(n.Alias)
	case yaml.MappingNode:
		obj := content.NewObject()
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i]
			if key.Kind != yaml.ScalarNode {
				return content.Null(), fmt.Errorf("line %d: mapping keys must be scalars", key.Line)
			}
			member, err := fromNode(n.Content[i+1])
			if err != nil {
				return content.Null(), err
			}
			obj.Set(key.Value, member)
		}
		return obj, nil
	case yaml.SequenceNode:
		items := make([]content.Value, 0, len(n.Content))
		for _, c := range n.Content {
			item, err := fromNode(c)
			if err != nil {
				return content.Null(), err
			}
			items = append(items, item)
		}
		return content.Array(items...), nil
	case yaml.ScalarNode:
		return fromScalar(n)
	}
	return content.Null(), fmt.Errorf("line %d: unsupported YAML node", n.Line)
}

func fromScalar(n *yaml.Node) (content.Value, error) {
	switch n.ShortTag() {
	case "!!null":
		return content.Null(), nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return content.Null(), err
		}
		return content.Bool(b), nil
	case "!!int":
		if json.Valid([]byte(n.Value)) {
			return content.Number(json.Number(n.Value)), nil
		}
		var i int64
		if err := n.Decode(&i); err != nil {
			return content.Null(), err
		}
		return content.Int(i), nil
	case "!!float":
		if json.Valid([]byte(n.Value)) {
			return content.Number(json.Number(n.Value)), nil
		}
		var f float64
		if err := n.Decode(&f); err != nil {
			return content.Null(), err
		}
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return content.String(n.Value), nil
		}
		return content.Number(json.Number(strconv.FormatFloat(f, 'f', -1, 64))), nil
	}
	return content.String(n.Value), nil
}
