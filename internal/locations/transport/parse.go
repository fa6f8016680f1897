package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"location_mapper/internal/taxonomy"
	"location_mapper/platform/apperr"
)

// Shape names the response layout a payload was recognised as.
type Shape string

const (
	ShapeLocations       Shape = "locations"
	ShapeData            Shape = "data"
	ShapeAutocomplete    Shape = "graphql.autocomplete"
	ShapeSearchLocations Shape = "graphql.searchLocations"
	ShapeArray           Shape = "array"
)

// maxNesting bounds the children recursion of a single payload.
const maxNesting = 16

var errEmptyBody = errors.New("empty body")

// Decode recognises the payload layout and returns its top-level items. Layouts outside the
// known set, GraphQL errors without data, and invalid JSON are all Malformed.
func Decode(body []byte) (Shape, []Location, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return "", nil, apperr.Malformed("unrecognised search response", errEmptyBody)
	}

	switch body[0] {
	case '[':
		var items []Location
		if err := json.Unmarshal(body, &items); err != nil {
			return "", nil, apperr.Malformed("invalid location array", err)
		}
		return ShapeArray, items, nil
	case '{':
		return decodeObject(body)
	default:
		return "", nil, apperr.Malformed("unrecognised search response", fmt.Errorf("unexpected leading byte %q", body[0]))
	}
}

func decodeObject(body []byte) (Shape, []Location, error) {
	var env RESTEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", nil, apperr.Malformed("invalid response object", err)
	}

	if isArray(env.Locations) {
		var items []Location
		if err := json.Unmarshal(env.Locations, &items); err != nil {
			return "", nil, apperr.Malformed("invalid locations array", err)
		}
		return ShapeLocations, items, nil
	}

	if isArray(env.Data) {
		var items []Location
		if err := json.Unmarshal(env.Data, &items); err != nil {
			return "", nil, apperr.Malformed("invalid data array", err)
		}
		return ShapeData, items, nil
	}

	if isObject(env.Data) {
		var data GraphQLData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return "", nil, apperr.Malformed("invalid graphql data", err)
		}
		switch {
		case data.SearchLocations != nil:
			return ShapeSearchLocations, *data.SearchLocations, nil
		case data.Autocomplete != nil:
			return ShapeAutocomplete, *data.Autocomplete, nil
		}
	}

	if len(env.Errors) > 0 {
		msgs := make([]string, 0, len(env.Errors))
		for _, e := range env.Errors {
			msgs = append(msgs, e.Message)
		}
		return "", nil, apperr.Malformed("graphql errors", errors.New(strings.Join(msgs, "; ")))
	}

	return "", nil, apperr.Malformed("unrecognised search response", errors.New("no locations, data or graphql result field"))
}

// Parse decodes a search response into taxonomy candidates.
func Parse(body []byte) ([]taxonomy.Candidate, error) {
	_, items, err := Decode(body)
	if err != nil {
		return nil, err
	}
	return ToCandidates(items)
}

// ToCandidates converts wire items, children included, into candidates.
func ToCandidates(items []Location) ([]taxonomy.Candidate, error) {
	out := make([]taxonomy.Candidate, 0, len(items))
	for i := range items {
		c, err := toCandidate(&items[i], 0)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func toCandidate(l *Location, depth int) (taxonomy.Candidate, error) {
	if depth > maxNesting {
		return taxonomy.Candidate{}, apperr.Malformed("location children nested too deeply", fmt.Errorf("id %q", l.ID))
	}

	label := l.Level
	if label == "" {
		label = l.Type
	}
	level, _ := taxonomy.ParseLevel(label)

	c := taxonomy.Candidate{
		ID:       strings.TrimSpace(string(l.ID)),
		Slug:     strings.TrimSpace(l.Slug),
		Name:     strings.TrimSpace(l.Name),
		FullName: strings.TrimSpace(l.FullName),
		Level:    level,
	}

	for _, p := range l.ParentIDs {
		if id := strings.TrimSpace(string(p)); id != "" {
			c.ParentIDs = append(c.ParentIDs, id)
		}
	}
	if len(c.ParentIDs) == 0 {
		if id := strings.TrimSpace(string(l.ParentID)); id != "" {
			c.ParentIDs = []string{id}
		}
	}

	for i := range l.Children {
		child, err := toCandidate(&l.Children[i], depth+1)
		if err != nil {
			return taxonomy.Candidate{}, err
		}
		c.Children = append(c.Children, child)
	}
	return c, nil
}

func isArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}
