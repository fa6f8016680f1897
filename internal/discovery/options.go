package discovery

import (
	"time"

	"location_mapper/internal/synonyms"
	"location_mapper/platform/apperr"
	"location_mapper/platform/validator"
)

// Options bound a discovery run. Zero MaxQueries and MaxDepth mean unlimited.
type Options struct {
	// MaxQueries caps the number of distinct terms sent upstream.
	MaxQueries int `validate:"gte=0"`
	// MaxDepth caps expansion generations; seeds are depth 0.
	MaxDepth int `validate:"gte=0"`
	// MinRequestInterval spaces outbound requests across all workers.
	MinRequestInterval time.Duration `validate:"gte=0"`
	// MaxRetries is the per-term retry budget after the first attempt.
	MaxRetries int `validate:"gte=0,lte=20"`
	// RetryBaseDelay is the first backoff interval; it grows exponentially.
	RetryBaseDelay time.Duration `validate:"gte=0"`
	// Concurrency is the number of in-flight searches.
	Concurrency int `validate:"min=1,max=64"`
	// FatalThreshold aborts the run after this many consecutive malformed responses. Zero disables it.
	FatalThreshold int `validate:"gte=0"`
	// ExpandSynonyms also queues the aliases of newly found places, not just their names.
	ExpandSynonyms bool
	// CollisionPolicy decides alias ownership in the final index.
	CollisionPolicy synonyms.Policy `validate:"oneof=first-wins last-wins"`
	// KeepResponses retains every raw search result on the Result for the raw artifact dump.
	KeepResponses bool
}

// DefaultOptions returns conservative settings for a public search endpoint.
func DefaultOptions() Options {
	return Options{
		MaxQueries:         5000,
		MaxDepth:           4,
		MinRequestInterval: 250 * time.Millisecond,
		MaxRetries:         3,
		RetryBaseDelay:     500 * time.Millisecond,
		Concurrency:        4,
		FatalThreshold:     10,
		CollisionPolicy:    synonyms.PolicyFirstWins,
	}
}

func (o Options) withDefaults() Options {
	if o.Concurrency == 0 {
		o.Concurrency = 1
	}
	if o.CollisionPolicy == "" {
		o.CollisionPolicy = synonyms.PolicyFirstWins
	}
	return o
}

// Validate checks the options after defaults are applied.
func (o Options) Validate(val *validator.Validator) error {
	if err := val.Struct(o.withDefaults()); err != nil {
		return apperr.Validation("invalid discovery options", err).WithOp("discovery.Options")
	}
	return nil
}
