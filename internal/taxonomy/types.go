package taxonomy

import (
	"fmt"
	"strings"

	"location_mapper/platform/textnorm"
)

// Level is the administrative level of a location.
type Level int

const (
	LevelUnknown Level = iota
	LevelDistrict
	LevelCouncil
	LevelParish
	LevelNeighborhood
)

var levelNames = [...]string{"unknown", "district", "council", "parish", "neighborhood"}

// levelAliases maps every spelling the upstream is known to use onto a Level.
var levelAliases = map[string]Level{
	"unknown":       LevelUnknown,
	"district":      LevelDistrict,
	"distrito":      LevelDistrict,
	"region":        LevelDistrict,
	"regiao":        LevelDistrict,
	"council":       LevelCouncil,
	"concelho":      LevelCouncil,
	"municipality":  LevelCouncil,
	"municipio":     LevelCouncil,
	"city":          LevelCouncil,
	"parish":        LevelParish,
	"freguesia":     LevelParish,
	"neighborhood":  LevelNeighborhood,
	"neighbourhood": LevelNeighborhood,
	"bairro":        LevelNeighborhood,
}

// ParseLevel maps an upstream level label to a Level. The boolean is false for labels
// that are not recognised; those map to LevelUnknown.
func ParseLevel(s string) (Level, bool) {
	key := strings.ReplaceAll(textnorm.NormalizeKey(s), " ", "_")
	l, ok := levelAliases[key]
	return l, ok
}

func (l Level) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return fmt.Sprintf("level(%d)", int(l))
	}
	return levelNames[l]
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Unrecognised labels decode to LevelUnknown.
func (l *Level) UnmarshalText(b []byte) error {
	parsed, _ := ParseLevel(string(b))
	*l = parsed
	return nil
}

// Candidate is one raw, unmerged location record as returned by a single search.
type Candidate struct {
	ID        string      `json:"id"`
	Slug      string      `json:"slug,omitempty"`
	Name      string      `json:"name"`
	FullName  string      `json:"fullName,omitempty"`
	Level     Level       `json:"level"`
	ParentIDs []string    `json:"parentIds,omitempty"`
	Children  []Candidate `json:"children,omitempty"`
}

// Path is the ordered slug sequence from a root to a node.
type Path []string

// String joins the path with slashes, e.g. "lisboa/loures/frielas".
func (p Path) String() string {
	return strings.Join(p, "/")
}

// HasPrefix reports whether prefix is an ancestor-or-self path of p.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if p[i] != prefix[i] {
			return false
		}
	}
	return true
}

// ParsePath splits a slash-joined path. Empty segments are dropped.
func ParsePath(s string) Path {
	parts := strings.Split(s, "/")
	out := make(Path, 0, len(parts))
	for _, part := range parts {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// AnomalyKind classifies structural problems in upstream hierarchy data.
type AnomalyKind string

const (
	AnomalyMissingID      AnomalyKind = "missing_id"
	AnomalyCycle          AnomalyKind = "cycle"
	AnomalySelfParent     AnomalyKind = "self_parent"
	AnomalyParentConflict AnomalyKind = "parent_conflict"
	AnomalyLevelConflict  AnomalyKind = "level_conflict"
	AnomalyUnknownLevel   AnomalyKind = "unknown_level"
	AnomalyUnresolvedStub AnomalyKind = "unresolved_placeholder"
)

// Anomaly is a non-fatal structural warning recorded during assembly.
type Anomaly struct {
	Kind   AnomalyKind `json:"kind"`
	NodeID string      `json:"nodeId"`
	Detail string      `json:"detail"`
}
