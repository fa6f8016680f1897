// Package artifact turns a finished discovery run into the persisted snapshot: a nested
// location tree, a flat alias index, and a combined payload, written through pluggable sinks.
package artifact

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"location_mapper/internal/discovery"
	"location_mapper/internal/synonyms"
	"location_mapper/internal/taxonomy"
)

// File names shared by every sink.
const (
	FileLocations = "locations.json"
	FileSynonyms  = "synonyms.json"
	FileOutput    = "OUTPUT.json"
	FileRaw       = "locations_raw.json"
)

// TreeNode is one level of the nested location tree. It encodes as
// {"_name": ..., "_synonyms": [...], "<childSlug>": {...}}.
type TreeNode struct {
	ID       string
	Name     string
	Level    taxonomy.Level
	Synonyms []string
	Children map[string]*TreeNode
}

// MarshalJSON implements json.Marshaler.
func (n *TreeNode) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(n.Children)+4)
	m["_id"] = n.ID
	m["_name"] = n.Name
	m["_level"] = n.Level
	synonyms := n.Synonyms
	if synonyms == nil {
		synonyms = []string{}
	}
	m["_synonyms"] = synonyms
	for slug, child := range n.Children {
		m[slug] = child
	}
	return json.Marshal(m)
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *TreeNode) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*n = TreeNode{}
	for key, value := range raw {
		var err error
		switch key {
		case "_id":
			err = json.Unmarshal(value, &n.ID)
		case "_name":
			err = json.Unmarshal(value, &n.Name)
		case "_level":
			err = json.Unmarshal(value, &n.Level)
		case "_synonyms":
			err = json.Unmarshal(value, &n.Synonyms)
		default:
			child := &TreeNode{}
			err = json.Unmarshal(value, child)
			if n.Children == nil {
				n.Children = make(map[string]*TreeNode)
			}
			n.Children[key] = child
		}
		if err != nil {
			return fmt.Errorf("tree node field %q: %w", key, err)
		}
	}
	return nil
}

// NodeRecord is the flat row form of a resolved node.
type NodeRecord struct {
	ID          string         `json:"id"`
	Slug        string         `json:"slug"`
	Name        string         `json:"name"`
	FullName    string         `json:"fullName,omitempty"`
	Level       taxonomy.Level `json:"level"`
	Path        string         `json:"path"`
	ParentID    string         `json:"parentId,omitempty"`
	Depth       int            `json:"depth"`
	Placeholder bool           `json:"placeholder,omitempty"`
}

// Payload is the combined OUTPUT document.
type Payload struct {
	RunID         string                  `json:"runId"`
	CreatedAt     time.Time               `json:"createdAt"`
	Locations     map[string]*TreeNode    `json:"locations"`
	SynonymsIndex map[string]string       `json:"synonymsIndex"`
	Stats         discovery.Stats         `json:"stats"`
	FailedQueries []discovery.FailedQuery `json:"failedQueries"`
	NotAttempted  []string                `json:"notAttempted"`
	Anomalies     []taxonomy.Anomaly      `json:"anomalies"`
	Collisions    []synonyms.Collision    `json:"collisions"`
	Diagnostic    string                  `json:"diagnostic,omitempty"`
}

// Artifact is everything a run persists.
type Artifact struct {
	Payload
	Nodes []NodeRecord
	Raw   []discovery.Response
}

// Build assembles the artifact for a finished run.
func Build(res *discovery.Result, createdAt time.Time) *Artifact {
	a := &Artifact{
		Payload: Payload{
			RunID:         res.RunID,
			CreatedAt:     createdAt.UTC(),
			Locations:     make(map[string]*TreeNode),
			SynonymsIndex: res.Index.Entries(),
			Stats:         res.Stats,
			FailedQueries: nonNil(res.FailedQueries),
			NotAttempted:  nonNil(res.NotAttempted),
			Anomalies:     nonNil(res.Anomalies),
			Collisions:    nonNil(res.Index.Collisions()),
		},
		Raw: res.Responses,
	}
	if res.Diagnostic != nil {
		a.Diagnostic = res.Diagnostic.Error()
	}

	tree := make(map[string]*TreeNode)
	byID := make(map[string]*TreeNode)
	res.Taxonomy.Walk(func(n *taxonomy.Node) bool {
		record := NodeRecord{
			ID:          n.ID,
			Slug:        n.Slug,
			Name:        n.DisplayName(),
			FullName:    n.FullName,
			Level:       n.Level,
			Path:        n.Path().String(),
			Depth:       len(n.Path()) - 1,
			Placeholder: n.Placeholder,
		}
		if p := n.Parent(); p != nil {
			record.ParentID = p.ID
		}
		a.Nodes = append(a.Nodes, record)

		tn := &TreeNode{
			ID:       n.ID,
			Name:     n.DisplayName(),
			Level:    n.Level,
			Synonyms: synonyms.Generate(n.DisplayName()),
		}
		byID[n.ID] = tn
		if p := n.Parent(); p != nil {
			parent := byID[p.ID]
			if parent.Children == nil {
				parent.Children = make(map[string]*TreeNode)
			}
			parent.Children[n.Slug] = tn
		} else {
			tree[n.Slug] = tn
		}
		return true
	})
	a.Locations = tree

	sort.SliceStable(a.Nodes, func(i, j int) bool { return a.Nodes[i].Path < a.Nodes[j].Path })
	return a
}

// Aborted reports whether the run was aborted. An aborted artifact only records its diagnostic;
// sinks keep the previous snapshot in place.
func (a *Artifact) Aborted() bool {
	return a.Diagnostic != ""
}

// Files encodes the artifact into its named documents. The raw dump is included only when the
// run kept its responses.
func (a *Artifact) Files() (map[string][]byte, error) {
	files := make(map[string][]byte, 4)

	docs := map[string]any{
		FileLocations: a.Locations,
		FileSynonyms:  a.SynonymsIndex,
		FileOutput:    a.Payload,
	}
	if len(a.Raw) > 0 {
		docs[FileRaw] = a.Raw
	}

	for name, doc := range docs {
		b, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", name, err)
		}
		files[name] = b
	}
	return files, nil
}

// FileNames returns the names Files would produce, in a stable order.
func (a *Artifact) FileNames() []string {
	names := []string{FileLocations, FileSynonyms, FileOutput}
	if len(a.Raw) > 0 {
		names = append(names, FileRaw)
	}
	return names
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
