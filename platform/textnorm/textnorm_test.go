package textnorm

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

func TestNormalizeKey(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Santo António dos Cavaleiros", "santo antonio dos cavaleiros"},
		{"  União das Freguesias de Sé, Santa Maria e Meixedo ", "uniao das freguesias de se santa maria e meixedo"},
		{"Vila Nova de Gaia", "vila nova de gaia"},
		{"São João d'Areias", "sao joao dareias"},
		{"Olho d’Água", "olho dagua"},
		{"Póvoa-de-Varzim", "povoa de varzim"},
		{"ÉVORA", "evora"},
		{"", ""},
		{"  --,,''  ", ""},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizeKey(tc.in), "input %q", tc.in)
	}
}

func TestSlugKey(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Lisboa", "lisboa"},
		{"Santo António dos Cavaleiros e Frielas", "santo-antonio-dos-cavaleiros-e-frielas"},
		{"--Póvoa  de -- Varzim--", "povoa-de-varzim"},
		{"São João d'Areias", "sao-joao-d-areias"},
		{"???", ""},
		{"", ""},
	}

	for _, tc := range cases {
		got := SlugKey(tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
		if got != "" {
			assert.Regexp(t, slugPattern, got)
		}
	}
}

func TestNormalizersAreIdempotent(t *testing.T) {
	inputs := []string{
		"União das Freguesias de Santo António dos Cavaleiros e Frielas",
		"Angra do Heroísmo",
		"  ..  ",
		"Ação-Çedilha_42",
		"",
	}

	for _, in := range inputs {
		key := NormalizeKey(in)
		assert.Equal(t, key, NormalizeKey(key), "NormalizeKey not idempotent for %q", in)

		slug := SlugKey(in)
		assert.Equal(t, slug, SlugKey(slug), "SlugKey not idempotent for %q", in)
		if slug != "" {
			assert.Regexp(t, slugPattern, slug)
		}
	}
}
