// Package transport holds the wire shapes of the location search endpoint and the parser that
// turns them into taxonomy candidates.
package transport

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// FlexID accepts both string and numeric JSON ids.
type FlexID string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		*f = FlexID(strconv.FormatInt(i, 10))
		return nil
	}
	*f = FlexID(n.String())
	return nil
}

// Location is one item as served by the search endpoint.
type Location struct {
	ID        FlexID     `json:"id"`
	Slug      string     `json:"slug,omitempty"`
	Name      string     `json:"name"`
	FullName  string     `json:"fullName,omitempty"`
	Level     string     `json:"level,omitempty"`
	Type      string     `json:"type,omitempty"`
	ParentIDs []FlexID   `json:"parentIds,omitempty"`
	ParentID  FlexID     `json:"parentId,omitempty"`
	Children  []Location `json:"children,omitempty"`
}

// RESTEnvelope is the object form of a REST response. Exactly one field is expected.
type RESTEnvelope struct {
	Locations json.RawMessage `json:"locations"`
	Data      json.RawMessage `json:"data"`
	Errors    []GraphQLError  `json:"errors"`
}

// GraphQLData is the "data" object of a GraphQL response.
type GraphQLData struct {
	Autocomplete    *[]Location `json:"autocomplete"`
	SearchLocations *[]Location `json:"searchLocations"`
}

// GraphQLError is one entry of a GraphQL "errors" array.
type GraphQLError struct {
	Message string `json:"message"`
}

// GraphQLRequest is the body of a GraphQL search.
type GraphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// SearchLocationsQuery requests three nested generations, enough to reach parishes from a district.
const SearchLocationsQuery = `query SearchLocations($query: String!) {
  searchLocations(query: $query) {
    id slug name fullName level parentIds
    children {
      id slug name fullName level parentIds
      children { id slug name fullName level parentIds }
    }
  }
}`
