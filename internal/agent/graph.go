package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	graphQueryPath      = "/query"
	interfaceLinksPath  = "/get_nodes_by_d_c_interface"
	interfaceCountsPath = "/get_interface_type_counts"
	domainsPath         = "/get_domains"
	capabilitiesPath    = "/get_capabilities"
)

// Direction selects which relationships of a node a graph query follows.
type Direction string

const (
	Upstream   Direction = "Upstream"
	Downstream Direction = "Downstream"
	Both       Direction = "Both"
)

func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "upstream", "up":
		return Upstream, nil
	case "downstream", "down":
		return Downstream, nil
	case "both":
		return Both, nil
	default:
		return "", fmt.Errorf("unknown direction: %s", s)
	}
}

// GraphNode is an application node of the dependency graph. Props holds
// every property the graph stores for it.
type GraphNode struct {
	ID    string
	Name  string
	Props map[string]string
}

type GraphEdge struct {
	From     GraphNode
	Relation string
	To       GraphNode
}

// InterfaceLink is one integration between two assets.
type InterfaceLink struct {
	FromNode      string `json:"from_node"`
	SourceName    string `json:"source_name"`
	ToNode        string `json:"to_node"`
	TargetName    string `json:"target_name"`
	InterfaceType string `json:"interface_type"`
	Protocol      string `json:"protocol"`
}

type InterfaceCount struct {
	Type  string
	Count int
}

// QueryGraph returns the relationships reachable from nodeID within depth
// hops in the given direction. The backend reports each relationship once
// per path through it; the result lists it once, in first-seen order.
func (c *Client) QueryGraph(ctx context.Context, nodeID string, dir Direction, depth int) ([]GraphEdge, error) {
	if strings.TrimSpace(nodeID) == "" {
		return nil, errors.New("node id is required")
	}
	if depth < 1 {
		return nil, fmt.Errorf("invalid depth: %d", depth)
	}
	if dir == "" {
		dir = Upstream
	}
	query := url.Values{
		"node_id": {nodeID},
		"type":    {string(dir)},
		"depth":   {strconv.Itoa(depth)},
	}
	var raw json.RawMessage
	if err := c.get(ctx, graphQueryPath, query, &raw); err != nil {
		return nil, err
	}

	var edges []GraphEdge
	seen := make(map[string]bool)
	gjson.GetBytes(raw, "results").ForEach(func(_, rec gjson.Result) bool {
		edge := GraphEdge{
			From:     parseGraphNode(rec.Get("n")),
			Relation: rec.Get("r.1").String(),
			To:       parseGraphNode(rec.Get("m")),
		}
		key := edge.From.ID + "\x00" + edge.Relation + "\x00" + edge.To.ID
		if !seen[key] {
			seen[key] = true
			edges = append(edges, edge)
		}
		return true
	})
	return edges, nil
}

// NodesByInterface lists the integrations of a given interface type among
// the assets of a domain and capability.
func (c *Client) NodesByInterface(ctx context.Context, domain, capability, interfaceType string) ([]InterfaceLink, error) {
	if err := requireScope(domain, capability); err != nil {
		return nil, err
	}
	if strings.TrimSpace(interfaceType) == "" {
		return nil, errors.New("interface type is required")
	}
	return getResults[InterfaceLink](ctx, c, interfaceLinksPath, url.Values{
		"domain":         {domain},
		"capability":     {capability},
		"interface_type": {interfaceType},
	})
}

// InterfaceTypeCounts counts the integrations per interface type among the
// assets of a domain and capability.
func (c *Client) InterfaceTypeCounts(ctx context.Context, domain, capability string) ([]InterfaceCount, error) {
	if err := requireScope(domain, capability); err != nil {
		return nil, err
	}
	var raw json.RawMessage
	query := url.Values{"domain": {domain}, "capability": {capability}}
	if err := c.get(ctx, interfaceCountsPath, query, &raw); err != nil {
		return nil, err
	}

	// A bare list of {type: count} objects, or {"results": []} when the scope
	// has no assets.
	doc := gjson.ParseBytes(raw)
	if doc.IsObject() {
		doc = doc.Get("results")
	}
	var counts []InterfaceCount
	doc.ForEach(func(_, entry gjson.Result) bool {
		entry.ForEach(func(k, v gjson.Result) bool {
			counts = append(counts, InterfaceCount{Type: k.String(), Count: int(v.Int())})
			return true
		})
		return true
	})
	return counts, nil
}

// Domains lists asset domains starting with prefix.
func (c *Client) Domains(ctx context.Context, prefix string) ([]string, error) {
	if err := validateSearch(prefix); err != nil {
		return nil, err
	}
	return getResults[string](ctx, c, domainsPath, url.Values{"q": {prefix}})
}

// Capabilities lists asset capabilities starting with prefix.
func (c *Client) Capabilities(ctx context.Context, prefix string) ([]string, error) {
	if err := validateSearch(prefix); err != nil {
		return nil, err
	}
	return getResults[string](ctx, c, capabilitiesPath, url.Values{"q": {prefix}})
}

func requireScope(domain, capability string) error {
	if strings.TrimSpace(domain) == "" || strings.TrimSpace(capability) == "" {
		return errors.New("domain and capability are required")
	}
	return nil
}

func parseGraphNode(v gjson.Result) GraphNode {
	node := GraphNode{Props: make(map[string]string)}
	v.ForEach(func(k, val gjson.Result) bool {
		node.Props[k.String()] = val.String()
		return true
	})
	node.ID = node.Props["id"]
	node.Name = node.Props["name"]
	return node
}
