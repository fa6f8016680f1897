package synonyms

import (
	"fmt"
	"sort"
	"strings"

	"location_mapper/internal/taxonomy"
	"location_mapper/platform/textnorm"
)

// Policy decides which path keeps an alias claimed by more than one node.
type Policy string

const (
	// PolicyFirstWins keeps the first claim in walk order. The walk is breadth-first, so the
	// shallowest claimant wins, e.g. a district keeps its own name against its parishes' combos.
	PolicyFirstWins Policy = "first-wins"
	// PolicyLastWins lets every later claim overwrite the earlier one.
	PolicyLastWins Policy = "last-wins"
)

// ParsePolicy validates a policy name. The empty string selects PolicyFirstWins.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyFirstWins:
		return PolicyFirstWins, nil
	case PolicyLastWins:
		return PolicyLastWins, nil
	default:
		return "", fmt.Errorf("unknown synonym collision policy %q", s)
	}
}

// Collision records an alias claimed by two unrelated nodes, i.e. neither path is an
// ancestor of the other. Ancestor/descendant overlaps come from name combos and are expected.
type Collision struct {
	Alias    string `json:"alias"`
	Kept     string `json:"kept"`
	Rejected string `json:"rejected"`
}

// Index maps normalized aliases to canonical paths.
type Index struct {
	policy     Policy
	entries    map[string]taxonomy.Path
	collisions []Collision
}

// Build walks a frozen taxonomy once and registers every alias of every resolved node.
func Build(tax *taxonomy.Taxonomy, policy Policy) *Index {
	ix := &Index{policy: policy, entries: make(map[string]taxonomy.Path)}
	if ix.policy == "" {
		ix.policy = PolicyFirstWins
	}

	tax.Walk(func(n *taxonomy.Node) bool {
		if n.Placeholder {
			return true
		}
		path := n.Path()
		for _, alias := range Generate(n.DisplayName(), AncestorNames(n)...) {
			ix.register(alias, path)
		}
		return true
	})

	return ix
}

// AncestorNames returns the names of n's resolved ancestors, root first.
func AncestorNames(n *taxonomy.Node) []string {
	chain := n.Ancestry()
	names := make([]string, 0, len(chain))
	for _, a := range chain[:len(chain)-1] {
		if !a.Placeholder && a.Name != "" {
			names = append(names, a.Name)
		}
	}
	return names
}

func (ix *Index) register(alias string, path taxonomy.Path) {
	existing, ok := ix.entries[alias]
	if !ok {
		ix.entries[alias] = path
		return
	}
	if existing.String() == path.String() {
		return
	}

	related := existing.HasPrefix(path) || path.HasPrefix(existing)
	switch ix.policy {
	case PolicyLastWins:
		if !related {
			ix.collisions = append(ix.collisions, Collision{Alias: alias, Kept: path.String(), Rejected: existing.String()})
		}
		ix.entries[alias] = path
	default:
		if !related {
			ix.collisions = append(ix.collisions, Collision{Alias: alias, Kept: existing.String(), Rejected: path.String()})
		}
	}
}

// Lookup normalizes query and returns the path registered for it.
func (ix *Index) Lookup(query string) (taxonomy.Path, bool) {
	path, ok := ix.entries[textnorm.NormalizeKey(query)]
	return path, ok
}

// Len returns the number of aliases.
func (ix *Index) Len() int {
	return len(ix.entries)
}

// Policy returns the collision policy the index was built with.
func (ix *Index) Policy() Policy {
	return ix.policy
}

// Collisions returns the aliases claimed by unrelated nodes.
func (ix *Index) Collisions() []Collision {
	out := make([]Collision, len(ix.collisions))
	copy(out, ix.collisions)
	return out
}

// Entries returns the flat alias -> "a/b/c" mapping.
func (ix *Index) Entries() map[string]string {
	out := make(map[string]string, len(ix.entries))
	for alias, path := range ix.entries {
		out[alias] = path.String()
	}
	return out
}

// Aliases returns all aliases in sorted order.
func (ix *Index) Aliases() []string {
	out := make([]string, 0, len(ix.entries))
	for alias := range ix.entries {
		out = append(out, alias)
	}
	sort.Strings(out)
	return out
}
