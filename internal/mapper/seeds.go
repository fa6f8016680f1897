package mapper

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"location_mapper/internal/discovery"
	"location_mapper/internal/synonyms"
	"location_mapper/platform/apperr"
	"location_mapper/platform/validator"
)

// DefaultSeeds are the 18 mainland districts plus the two autonomous regions.
var DefaultSeeds = []string{
	"Aveiro", "Beja", "Braga", "Bragança", "Castelo Branco", "Coimbra",
	"Évora", "Faro", "Guarda", "Leiria", "Lisboa", "Portalegre",
	"Porto", "Santarém", "Setúbal", "Viana do Castelo", "Vila Real", "Viseu",
	"Açores", "Madeira",
}

// SeedFile is the YAML document read from DISCOVERY_SEEDS_FILE.
//
//	terms: [Lisboa, Porto]
//	options:
//	  maxQueries: 200
//	  minRequestInterval: 1s
type SeedFile struct {
	Terms   []string         `yaml:"terms" validate:"required,min=1,dive,required"`
	Options *OptionOverrides `yaml:"options" validate:"omitempty"`
}

// OptionOverrides replace individual discovery options. Absent keys keep the configured value.
type OptionOverrides struct {
	MaxQueries         *int           `yaml:"maxQueries" validate:"omitempty,gte=0"`
	MaxDepth           *int           `yaml:"maxDepth" validate:"omitempty,gte=0"`
	MinRequestInterval *time.Duration `yaml:"minRequestInterval" validate:"omitempty,gte=0"`
	MaxRetries         *int           `yaml:"maxRetries" validate:"omitempty,gte=0,lte=20"`
	RetryBaseDelay     *time.Duration `yaml:"retryBaseDelay" validate:"omitempty,gte=0"`
	Concurrency        *int           `yaml:"concurrency" validate:"omitempty,min=1,max=64"`
	FatalThreshold     *int           `yaml:"fatalThreshold" validate:"omitempty,gte=0"`
	ExpandSynonyms     *bool          `yaml:"expandSynonyms"`
	CollisionPolicy    *string        `yaml:"collisionPolicy" validate:"omitempty,oneof=first-wins last-wins"`
}

// Apply copies the set overrides onto opts.
func (o *OptionOverrides) Apply(opts *discovery.Options) {
	if o == nil {
		return
	}
	if o.MaxQueries != nil {
		opts.MaxQueries = *o.MaxQueries
	}
	if o.MaxDepth != nil {
		opts.MaxDepth = *o.MaxDepth
	}
	if o.MinRequestInterval != nil {
		opts.MinRequestInterval = *o.MinRequestInterval
	}
	if o.MaxRetries != nil {
		opts.MaxRetries = *o.MaxRetries
	}
	if o.RetryBaseDelay != nil {
		opts.RetryBaseDelay = *o.RetryBaseDelay
	}
	if o.Concurrency != nil {
		opts.Concurrency = *o.Concurrency
	}
	if o.FatalThreshold != nil {
		opts.FatalThreshold = *o.FatalThreshold
	}
	if o.ExpandSynonyms != nil {
		opts.ExpandSynonyms = *o.ExpandSynonyms
	}
	if o.CollisionPolicy != nil {
		opts.CollisionPolicy = synonyms.Policy(*o.CollisionPolicy)
	}
}

// ParseSeeds decodes and validates a seed file. Unknown keys are rejected.
func ParseSeeds(r io.Reader, val *validator.Validator) (*SeedFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var sf SeedFile
	if err := dec.Decode(&sf); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, apperr.Validation("seed file is empty", nil).WithOp("mapper.ParseSeeds")
		}
		return nil, apperr.Validation("invalid seed file", err).WithOp("mapper.ParseSeeds")
	}
	if err := val.Struct(sf); err != nil {
		return nil, apperr.Validation("invalid seed file", err).WithOp("mapper.ParseSeeds")
	}
	return &sf, nil
}

// LoadSeedsFile reads a seed file from disk.
func LoadSeedsFile(path string, val *validator.Validator) (*SeedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return ParseSeeds(f, val)
}
