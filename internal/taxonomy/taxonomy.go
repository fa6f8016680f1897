// Package taxonomy assembles raw search candidates into a forest of administrative locations.
// Candidates are merged by their upstream id; parent links come from an untrusted source, so
// every link is cycle-checked before it is attached and every walk carries a visited set.
//
// Merge links provisionally, first claim first. Every claim on a node's parent, level and names
// is kept, and Freeze settles them by value so the frozen tree does not depend on merge order.
package taxonomy

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"location_mapper/platform/textnorm"
)

// ErrFrozen is returned by Merge once the taxonomy has been frozen.
var ErrFrozen = errors.New("taxonomy is frozen")

const idSuffixLen = 6

// Node is one location in the assembled forest. Nodes are owned by their Taxonomy.
type Node struct {
	ID          string
	Name        string
	FullName    string
	Level       Level
	Slug        string
	Placeholder bool

	parent       *Node
	children     map[string]*Node
	suppliedSlug string
}

// Parent returns the parent node, or nil for roots.
func (n *Node) Parent() *Node {
	return n.parent
}

// Child returns the direct child with the given slug.
func (n *Node) Child(slug string) (*Node, bool) {
	c, ok := n.children[slug]
	return c, ok
}

// Children returns the direct children ordered by slug.
func (n *Node) Children() []*Node {
	return sortedNodes(n.children)
}

// Path returns the canonical path from the root down to n.
func (n *Node) Path() Path {
	chain := n.Ancestry()
	path := make(Path, len(chain))
	for i, node := range chain {
		path[i] = node.Slug
	}
	return path
}

// Ancestry returns the nodes from the root down to n inclusive.
func (n *Node) Ancestry() []*Node {
	var chain []*Node
	seen := make(map[*Node]struct{})
	for cur := n; cur != nil; cur = cur.parent {
		if _, ok := seen[cur]; ok {
			break
		}
		seen[cur] = struct{}{}
		chain = append(chain, cur)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// DisplayName returns the best human label available for the node.
func (n *Node) DisplayName() string {
	if n.Name != "" {
		return n.Name
	}
	if n.FullName != "" {
		return n.FullName
	}
	return n.Slug
}

func (n *Node) baseSlug() string {
	if n.suppliedSlug != "" {
		return n.suppliedSlug
	}
	if s := textnorm.SlugKey(n.Name); s != "" {
		return s
	}
	if s := textnorm.SlugKey(n.ID); s != "" {
		return s
	}
	return "node"
}

// Taxonomy is the forest of root nodes indexed by root slug. It is mutated only through Merge,
// which is serialized, and becomes read-only after Freeze.
type Taxonomy struct {
	mu        sync.RWMutex
	roots     map[string]*Node
	byID      map[string]*Node
	claims    map[string]*claims
	anomalies []Anomaly
	seenAnom  map[Anomaly]struct{}
	frozen    bool
}

// claims collects every distinct value the upstream reported for one node.
type claims struct {
	parents   map[string]struct{}
	levels    map[Level]struct{}
	names     map[string]struct{}
	fullNames map[string]struct{}
	slugs     map[string]struct{}
}

func newClaims() *claims {
	return &claims{
		parents:   make(map[string]struct{}),
		levels:    make(map[Level]struct{}),
		names:     make(map[string]struct{}),
		fullNames: make(map[string]struct{}),
		slugs:     make(map[string]struct{}),
	}
}

// New creates an empty taxonomy.
func New() *Taxonomy {
	return &Taxonomy{
		roots:    make(map[string]*Node),
		byID:     make(map[string]*Node),
		claims:   make(map[string]*claims),
		seenAnom: make(map[Anomaly]struct{}),
	}
}

type pendingCandidate struct {
	c            *Candidate
	inlineParent string
}

// Merge folds one search result into the taxonomy and returns the ids of nodes that became
// known in this call, either freshly created or filled in from a placeholder. Nested children are
// merged as independent candidates under the same dedup-by-id rule.
func (t *Taxonomy) Merge(candidates []Candidate) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.frozen {
		return nil, ErrFrozen
	}

	var inserted []string
	stack := make([]pendingCandidate, 0, len(candidates))
	for i := len(candidates) - 1; i >= 0; i-- {
		stack = append(stack, pendingCandidate{c: &candidates[i]})
	}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		id := strings.TrimSpace(p.c.ID)
		if id == "" {
			t.record(AnomalyMissingID, "", fmt.Sprintf("candidate %q has no id", p.c.Name))
			continue
		}

		node, isNew := t.upsert(id, p.c)
		if isNew {
			inserted = append(inserted, id)
		}

		parentID := p.inlineParent
		if parentID == "" && len(p.c.ParentIDs) > 0 {
			parentID = strings.TrimSpace(p.c.ParentIDs[0])
		}
		t.claim(id, p.c, parentID)
		if parentID != "" {
			t.link(node, parentID)
		}

		for i := len(p.c.Children) - 1; i >= 0; i-- {
			stack = append(stack, pendingCandidate{c: &p.c.Children[i], inlineParent: id})
		}
	}

	return inserted, nil
}

// upsert creates the node for id or fills gaps on an existing one. The boolean reports whether
// the node became known in this call.
func (t *Taxonomy) upsert(id string, c *Candidate) (*Node, bool) {
	n, ok := t.byID[id]
	if !ok {
		n = &Node{ID: id, children: make(map[string]*Node)}
		t.byID[id] = n
		t.fill(n, c)
		t.place(n, t.roots)
		return n, true
	}

	if n.Placeholder {
		t.fill(n, c)
		n.Placeholder = false
		t.reslug(n)
		return n, true
	}

	renamed := false
	if n.Name == "" && c.Name != "" {
		n.Name = c.Name
		renamed = true
	}
	if n.FullName == "" {
		n.FullName = c.FullName
	}
	if n.suppliedSlug == "" && c.Slug != "" {
		n.suppliedSlug = textnorm.SlugKey(c.Slug)
		renamed = true
	}
	if n.Level == LevelUnknown {
		n.Level = c.Level
	}
	if renamed {
		t.reslug(n)
	}
	return n, false
}

func (t *Taxonomy) fill(n *Node, c *Candidate) {
	n.Name = strings.TrimSpace(c.Name)
	n.FullName = strings.TrimSpace(c.FullName)
	n.Level = c.Level
	n.suppliedSlug = textnorm.SlugKey(c.Slug)
}

// claim remembers the values c reports for id. Self-parent claims are left to link.
func (t *Taxonomy) claim(id string, c *Candidate, parentID string) {
	cl, ok := t.claims[id]
	if !ok {
		cl = newClaims()
		t.claims[id] = cl
	}
	if parentID != "" && parentID != id {
		cl.parents[parentID] = struct{}{}
	}
	if c.Level != LevelUnknown {
		cl.levels[c.Level] = struct{}{}
	}
	if name := strings.TrimSpace(c.Name); name != "" {
		cl.names[name] = struct{}{}
	}
	if full := strings.TrimSpace(c.FullName); full != "" {
		cl.fullNames[full] = struct{}{}
	}
	if slug := textnorm.SlugKey(c.Slug); slug != "" {
		cl.slugs[slug] = struct{}{}
	}
}

// link provisionally attaches n under the node identified by parentID. Links that would close a
// cycle are skipped and a linked node is not moved; Freeze settles the final parent.
func (t *Taxonomy) link(n *Node, parentID string) {
	if parentID == n.ID {
		t.record(AnomalySelfParent, n.ID, "candidate lists itself as parent")
		return
	}
	parent := t.ensure(parentID)
	if n.parent != nil || reaches(parent, n) {
		return
	}

	t.detach(n)
	n.parent = parent
	t.place(n, parent.children)
}

// ensure returns the node for id, creating a placeholder root when it is not known yet.
func (t *Taxonomy) ensure(id string) *Node {
	n, ok := t.byID[id]
	if !ok {
		n = &Node{ID: id, Placeholder: true, children: make(map[string]*Node)}
		t.byID[id] = n
		t.place(n, t.roots)
	}
	return n
}

// reaches reports whether target is start or one of its ancestors.
func reaches(start, target *Node) bool {
	seen := make(map[*Node]struct{})
	for cur := start; cur != nil; cur = cur.parent {
		if cur == target {
			return true
		}
		if _, ok := seen[cur]; ok {
			return true
		}
		seen[cur] = struct{}{}
	}
	return false
}

func (t *Taxonomy) container(n *Node) map[string]*Node {
	if n.parent == nil {
		return t.roots
	}
	return n.parent.children
}

func (t *Taxonomy) detach(n *Node) {
	siblings := t.container(n)
	if cur, ok := siblings[n.Slug]; ok && cur == n {
		delete(siblings, n.Slug)
	}
}

func (t *Taxonomy) reslug(n *Node) {
	t.detach(n)
	t.place(n, t.container(n))
}

// place inserts n into siblings under a slug unique among them. Collisions get a suffix
// derived from the node id, then a counter.
func (t *Taxonomy) place(n *Node, siblings map[string]*Node) {
	base := n.baseSlug()
	free := func(slug string) bool {
		cur, ok := siblings[slug]
		return !ok || cur == n
	}

	slug := base
	if !free(slug) {
		slug = base + "-" + idSuffix(n.ID)
		for i := 2; !free(slug); i++ {
			slug = base + "-" + idSuffix(n.ID) + "-" + strconv.Itoa(i)
		}
	}
	n.Slug = slug
	siblings[slug] = n
}

func idSuffix(id string) string {
	s := strings.ReplaceAll(textnorm.SlugKey(id), "-", "")
	if s == "" {
		return "x"
	}
	if len(s) > idSuffixLen {
		s = s[len(s)-idSuffixLen:]
	}
	return s
}

func (t *Taxonomy) record(kind AnomalyKind, nodeID, detail string) {
	a := Anomaly{Kind: kind, NodeID: nodeID, Detail: detail}
	if _, ok := t.seenAnom[a]; ok {
		return
	}
	t.seenAnom[a] = struct{}{}
	t.anomalies = append(t.anomalies, a)
}

// Freeze makes the taxonomy read-only and settles every node by value: the smallest claimed
// name, full name and slug, the most general claimed level, and the smallest claimed parent id
// that does not close a cycle. Sibling slugs are then reassigned in id order. Placeholders that
// were never resolved are reported as anomalies; they stay in the tree so their descendants
// keep a path.
func (t *Taxonomy) Freeze() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.frozen {
		return
	}
	ids := make([]string, 0, len(t.byID))
	for id := range t.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		t.settleFields(t.byID[id])
	}
	t.settleParents(ids)

	for _, id := range ids {
		if t.byID[id].Placeholder {
			t.record(AnomalyUnresolvedStub, id, "parent referenced but never returned by any search")
		}
	}

	children := make(map[*Node][]*Node, len(t.byID))
	var roots []*Node
	for _, id := range ids {
		n := t.byID[id]
		if n.parent == nil {
			roots = append(roots, n)
			continue
		}
		children[n.parent] = append(children[n.parent], n)
	}
	t.roots = t.assign(roots)
	for _, n := range t.byID {
		n.children = t.assign(children[n])
	}
	t.frozen = true
}

func (t *Taxonomy) settleFields(n *Node) {
	cl, ok := t.claims[n.ID]
	if !ok {
		return
	}
	if len(cl.levels) == 0 {
		if name, ok := smallest(cl.names); ok {
			t.record(AnomalyUnknownLevel, n.ID, fmt.Sprintf("no recognised level for %q", name))
		} else {
			t.record(AnomalyUnknownLevel, n.ID, "no recognised level")
		}
	} else {
		levels := make([]Level, 0, len(cl.levels))
		for l := range cl.levels {
			levels = append(levels, l)
		}
		sort.Slice(levels, func(i, j int) bool { return levels[i] < levels[j] })
		n.Level = levels[0]
		if len(levels) > 1 {
			ignored := make([]string, 0, len(levels)-1)
			for _, l := range levels[1:] {
				ignored = append(ignored, l.String())
			}
			t.record(AnomalyLevelConflict, n.ID, fmt.Sprintf("kept %s, ignored %s", levels[0], strings.Join(ignored, ", ")))
		}
	}
	if name, ok := smallest(cl.names); ok {
		n.Name = name
	}
	if full, ok := smallest(cl.fullNames); ok {
		n.FullName = full
	}
	if slug, ok := smallest(cl.slugs); ok {
		n.suppliedSlug = slug
	}
}

// settleParents relinks every node from scratch, in id order, to its smallest claimed parent
// that does not descend from it.
func (t *Taxonomy) settleParents(ids []string) {
	for _, n := range t.byID {
		n.parent = nil
	}
	for _, id := range ids {
		n := t.byID[id]
		cl, ok := t.claims[id]
		if !ok || len(cl.parents) == 0 {
			continue
		}
		parents := sortedKeys(cl.parents)
		var ignored []string
		for _, pid := range parents {
			parent := t.byID[pid]
			if n.parent != nil {
				ignored = append(ignored, pid)
				continue
			}
			if reaches(parent, n) {
				t.record(AnomalyCycle, id, fmt.Sprintf("parent %s descends from %s", pid, id))
				continue
			}
			n.parent = parent
		}
		if n.parent != nil && len(ignored) > 0 {
			t.record(AnomalyParentConflict, id, fmt.Sprintf("kept parent %s, ignored %s", n.parent.ID, strings.Join(ignored, ", ")))
		}
	}
}

func smallest(set map[string]struct{}) (string, bool) {
	if len(set) == 0 {
		return "", false
	}
	return sortedKeys(set)[0], true
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// assign builds a sibling map with slug collisions settled by id order rather than by the
// order in which concurrent searches happened to be merged.
func (t *Taxonomy) assign(nodes []*Node) map[string]*Node {
	sort.Slice(nodes, func(i, j int) bool {
		bi, bj := nodes[i].baseSlug(), nodes[j].baseSlug()
		if bi != bj {
			return bi < bj
		}
		return nodes[i].ID < nodes[j].ID
	})
	out := make(map[string]*Node, len(nodes))
	for _, n := range nodes {
		t.place(n, out)
	}
	return out
}

// Frozen reports whether Freeze has been called.
func (t *Taxonomy) Frozen() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.frozen
}

// Len returns the number of nodes, placeholders included.
func (t *Taxonomy) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byID)
}

// Node returns the node with the given upstream id.
func (t *Taxonomy) Node(id string) (*Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.byID[id]
	return n, ok
}

// Root returns the root node with the given slug.
func (t *Taxonomy) Root(slug string) (*Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.roots[slug]
	return n, ok
}

// Roots returns the roots ordered by slug.
func (t *Taxonomy) Roots() []*Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return sortedNodes(t.roots)
}

// Find resolves a canonical path to its node.
func (t *Taxonomy) Find(path Path) (*Node, bool) {
	if len(path) == 0 {
		return nil, false
	}
	cur, ok := t.Root(path[0])
	for _, slug := range path[1:] {
		if !ok {
			return nil, false
		}
		cur, ok = cur.Child(slug)
	}
	return cur, ok
}

// Anomalies returns a copy of the structural warnings recorded so far.
func (t *Taxonomy) Anomalies() []Anomaly {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Anomaly, len(t.anomalies))
	copy(out, t.anomalies)
	return out
}

// CountByLevel returns the number of resolved nodes per level.
func (t *Taxonomy) CountByLevel() map[Level]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	counts := make(map[Level]int)
	for _, n := range t.byID {
		if !n.Placeholder {
			counts[n.Level]++
		}
	}
	return counts
}

// Walk visits every node breadth-first, roots and siblings in slug order, so the visiting order
// is reproducible for a given tree. Returning false from fn stops the walk. Walk is meant for
// frozen taxonomies; it does not hold the lock while descending.
func (t *Taxonomy) Walk(fn func(*Node) bool) {
	queue := t.Roots()
	seen := make(map[*Node]struct{}, len(queue))
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		if !fn(n) {
			return
		}
		queue = append(queue, n.Children()...)
	}
}

func sortedNodes(m map[string]*Node) []*Node {
	out := make([]*Node, 0, len(m))
	for _, n := range m {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}
