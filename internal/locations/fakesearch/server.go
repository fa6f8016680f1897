// Package fakesearch serves a scripted location search endpoint. It backs the client and
// end-to-end tests, and cmd/fake-search runs it as an offline sandbox for the crawler.
package fakesearch

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"location_mapper/internal/locations/transport"
	"location_mapper/platform/textnorm"
)

const (
	RESTPath    = "/api/locations"
	GraphQLPath = "/graphql"
)

// Fixture maps search terms to the locations returned for them. Keys are normalized on load.
type Fixture map[string][]transport.Location

// LoadFixture decodes a JSON fixture: {"term": [location, ...], ...}.
func LoadFixture(r io.Reader) (Fixture, error) {
	var raw map[string][]transport.Location
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	out := make(Fixture, len(raw))
	for term, items := range raw {
		key := textnorm.NormalizeKey(term)
		out[key] = append(out[key], items...)
	}
	return out, nil
}

type scripted struct {
	status int
	body   string
}

// Server is a gin-backed fake of the search endpoint.
type Server struct {
	mu      sync.Mutex
	fixture Fixture
	script  map[string][]scripted
	delays  map[string]time.Duration
	hits    map[string]int
	engine  *gin.Engine
}

// New creates a server answering from fixture. Unknown terms get an empty list.
func New(fixture Fixture) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		fixture: make(Fixture, len(fixture)),
		script:  make(map[string][]scripted),
		delays:  make(map[string]time.Duration),
		hits:    make(map[string]int),
	}
	for term, items := range fixture {
		s.fixture[textnorm.NormalizeKey(term)] = items
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET(RESTPath, s.handleREST)
	engine.POST(GraphQLPath, s.handleGraphQL)
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine = engine
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Respond scripts the next responses for term, one per request, before the fixture applies again.
func (s *Server) Respond(term string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := textnorm.NormalizeKey(term)
	s.script[key] = append(s.script[key], scripted{status: status, body: body})
}

// Fail scripts n consecutive failures with status for term.
func (s *Server) Fail(term string, status, n int) {
	for i := 0; i < n; i++ {
		s.Respond(term, status, `{"error":"scripted failure"}`)
	}
}

// Delay makes every request for term wait d before answering.
func (s *Server) Delay(term string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays[textnorm.NormalizeKey(term)] = d
}

// Hits returns how many requests were received for term.
func (s *Server) Hits(term string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[textnorm.NormalizeKey(term)]
}

// TotalHits returns the number of search requests received.
func (s *Server) TotalHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.hits {
		total += n
	}
	return total
}

func (s *Server) handleREST(c *gin.Context) {
	term := c.Query("q")
	if term == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query 'q' is required"})
		return
	}
	s.answer(c, term, func(items []transport.Location) any {
		return gin.H{"locations": items}
	})
}

func (s *Server) handleGraphQL(c *gin.Context) {
	var req transport.GraphQLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": []gin.H{{"message": "invalid request body"}}})
		return
	}
	term, _ := req.Variables["query"].(string)
	if term == "" {
		c.JSON(http.StatusOK, gin.H{"data": nil, "errors": []gin.H{{"message": "variable $query is required"}}})
		return
	}
	s.answer(c, term, func(items []transport.Location) any {
		return gin.H{"data": gin.H{"searchLocations": items}}
	})
}

func (s *Server) answer(c *gin.Context, term string, wrap func([]transport.Location) any) {
	key := textnorm.NormalizeKey(term)

	s.mu.Lock()
	s.hits[key]++
	delay := s.delays[key]
	var next *scripted
	if queue := s.script[key]; len(queue) > 0 {
		next = &queue[0]
		s.script[key] = queue[1:]
	}
	items := s.fixture[key]
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-c.Request.Context().Done():
			return
		}
	}

	if next != nil {
		c.Data(next.status, "application/json", []byte(next.body))
		return
	}
	if items == nil {
		items = []transport.Location{}
	}
	c.JSON(http.StatusOK, wrap(items))
}
