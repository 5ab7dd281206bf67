package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

const (
	uploadPath      = "/upload/"
	confluencePath  = "/process_confluence/"
	archNamesPath   = "/get_arch_names"
	archCodePath    = "/get_arch_code"
	searchAssetPath = "/search_assets"
	diagramInfoPath = "/diagram_info"

	// minSearchLength is the shortest prefix the backend accepts for
	// autocomplete lookups.
	minSearchLength = 3
)

// Diagram is an analysed architecture diagram as stored by the backend.
// Upload, ArchCode and DiagramInfo fill different subsets of it.
type Diagram struct {
	ID          string
	Name        string
	NodeID      string
	MermaidCode string
	Summary     string
	Description string
	Nodes       []DiagramNode
	Edges       []DiagramEdge
	Complexity  []ComplexityEntry
	Pros        []string
	Cons        []string
}

type DiagramNode struct {
	ID          string
	Name        string
	DisplayName string
	Group       string
}

type DiagramEdge struct {
	Source string
	Target string
	Label  string
}

type ComplexityEntry struct {
	Component  string
	Complexity string
	Reason     string
}

type Asset struct {
	ID         string `json:"id"`
	Domain     string `json:"domain"`
	Capability string `json:"capability"`
}

type UploadRequest struct {
	DiagramName string
	AssetID     string
	// FileName is sent as the image part's file name.
	FileName string
	Image    io.Reader
}

func (r UploadRequest) validate() error {
	if strings.TrimSpace(r.DiagramName) == "" {
		return errors.New("diagram name is required")
	}
	if strings.TrimSpace(r.AssetID) == "" {
		return errors.New("asset id is required")
	}
	if r.Image == nil {
		return errors.New("diagram image is required")
	}
	return nil
}

// Upload sends a diagram image for analysis. The backend extracts mermaid
// code, nodes, edges and a complexity table, stores them under AssetID and
// returns the result.
func (c *Client) Upload(ctx context.Context, req UploadRequest) (Diagram, error) {
	if err := req.validate(); err != nil {
		return Diagram{}, err
	}
	name := filepath.Base(req.FileName)
	if req.FileName == "" {
		name = "diagram"
	}
	body, contentType, err := encodeMultipart(map[string]string{
		"diagram_name": req.DiagramName,
		"asset_id":     req.AssetID,
	}, &formFile{field: "image", name: name, data: req.Image})
	if err != nil {
		return Diagram{}, err
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, uploadPath, body, contentType, &raw); err != nil {
		return Diagram{}, err
	}
	diagram := parseDiagram(raw)
	c.logger.Info("diagram uploaded", "diagram_id", diagram.ID, "nodes", len(diagram.Nodes), "edges", len(diagram.Edges))
	return diagram, nil
}

// ImportConfluence analyses the architecture described on a Confluence page
// the same way Upload analyses an image. An empty assetID leaves the choice
// to the backend.
func (c *Client) ImportConfluence(ctx context.Context, diagramName, assetID, pageURL string) (Diagram, error) {
	if strings.TrimSpace(diagramName) == "" {
		return Diagram{}, errors.New("diagram name is required")
	}
	u, err := url.Parse(strings.TrimSpace(pageURL))
	if err != nil || u.Host == "" || !strings.Contains(u.Path, "/pages/") {
		return Diagram{}, fmt.Errorf("invalid confluence page url: %q", pageURL)
	}
	body, contentType, err := encodeForm(map[string]string{
		"diagram_name":   diagramName,
		"asset_id":       assetID,
		"confluence_url": u.String(),
	})
	if err != nil {
		return Diagram{}, err
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, confluencePath, body, contentType, &raw); err != nil {
		return Diagram{}, err
	}
	diagram := parseDiagram(raw)
	c.logger.Info("confluence page imported", "diagram_name", diagramName, "nodes", len(diagram.Nodes))
	return diagram, nil
}

// ArchNames lists stored architecture names starting with prefix.
func (c *Client) ArchNames(ctx context.Context, prefix string) ([]string, error) {
	if err := validateSearch(prefix); err != nil {
		return nil, err
	}
	return getResults[string](ctx, c, archNamesPath, url.Values{"q": {prefix}})
}

// ArchCode loads the latest stored diagram with the given name together with
// its analysis.
func (c *Client) ArchCode(ctx context.Context, archName string) (Diagram, error) {
	if strings.TrimSpace(archName) == "" {
		return Diagram{}, errors.New("architecture name is required")
	}
	var raw json.RawMessage
	if err := c.get(ctx, archCodePath, url.Values{"arch_name": {archName}}, &raw); err != nil {
		return Diagram{}, err
	}
	diagram := parseDiagram(raw)
	if diagram.Name == "" {
		diagram.Name = archName
	}
	return diagram, nil
}

// SearchAssets lists assets whose id starts with prefix.
func (c *Client) SearchAssets(ctx context.Context, prefix string) ([]Asset, error) {
	if err := validateSearch(prefix); err != nil {
		return nil, err
	}
	return getResults[Asset](ctx, c, searchAssetPath, url.Values{"q": {prefix}})
}

// DiagramInfo finds the diagram an asset was uploaded with.
func (c *Client) DiagramInfo(ctx context.Context, nodeID string) (Diagram, error) {
	if strings.TrimSpace(nodeID) == "" {
		return Diagram{}, errors.New("node id is required")
	}
	var raw json.RawMessage
	if err := c.get(ctx, diagramInfoPath, url.Values{"node_id": {nodeID}}, &raw); err != nil {
		return Diagram{}, err
	}
	return parseDiagram(raw), nil
}

func getResults[T any](ctx context.Context, c *Client, path string, query url.Values) ([]T, error) {
	var resp struct {
		Results []T `json:"results"`
	}
	if err := c.get(ctx, path, query, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func validateSearch(q string) error {
	if utf8.RuneCountInString(q) < minSearchLength {
		return fmt.Errorf("search term must be at least %d characters", minSearchLength)
	}
	return nil
}

// parseDiagram reads the diagram fields the backend routes share. Older
// backends return mermaid_code as a one-element list.
func parseDiagram(raw []byte) Diagram {
	doc := gjson.ParseBytes(raw)
	d := Diagram{
		ID:          doc.Get("diagram_id").String(),
		Name:        doc.Get("arch_name").String(),
		NodeID:      doc.Get("node_id").String(),
		MermaidCode: mermaidCode(doc.Get("mermaid_code")),
		Summary:     doc.Get("summary").String(),
		Description: doc.Get("description").String(),
		Pros:        stringList(doc.Get("pros")),
		Cons:        stringList(doc.Get("cons")),
	}
	if d.Name == "" {
		d.Name = doc.Get("diagram_name").String()
	}
	doc.Get("nodes").ForEach(func(_, n gjson.Result) bool {
		d.Nodes = append(d.Nodes, DiagramNode{
			ID:          n.Get("id").String(),
			Name:        n.Get("name").String(),
			DisplayName: n.Get("display_name").String(),
			Group:       n.Get("group").String(),
		})
		return true
	})
	doc.Get("edges").ForEach(func(_, e gjson.Result) bool {
		d.Edges = append(d.Edges, DiagramEdge{
			Source: e.Get("source").String(),
			Target: e.Get("target").String(),
			Label:  e.Get("label").String(),
		})
		return true
	})
	doc.Get("complexity_table").ForEach(func(_, row gjson.Result) bool {
		d.Complexity = append(d.Complexity, ComplexityEntry{
			Component:  row.Get("component").String(),
			Complexity: row.Get("complexity").String(),
			Reason:     row.Get("reason").String(),
		})
		return true
	})
	return d
}

func mermaidCode(v gjson.Result) string {
	if v.IsArray() {
		return v.Get("0").String()
	}
	return v.String()
}

func stringList(v gjson.Result) []string {
	var out []string
	v.ForEach(func(_, item gjson.Result) bool {
		out = append(out, item.String())
		return true
	})
	return out
}
