package grammar

import (
	"slices"
	"strings"
)

// Grammar maps strategy code -> volume number -> allowed field types. It is
// built once and read concurrently.
type Grammar struct {
	volumes map[string]map[string][]string
}

// New builds a grammar from configuration. Field lists are upper-cased,
// de-duplicated, and sorted.
func New(volumeTypes map[string]map[string][]string) *Grammar {
	g := &Grammar{volumes: make(map[string]map[string][]string, len(volumeTypes))}
	for strategy, volumes := range volumeTypes {
		inner := make(map[string][]string, len(volumes))
		for volNr, fields := range volumes {
			inner[volNr] = NormalizeFields(fields)
		}
		g.volumes[strategy] = inner
	}
	return g
}

// Expected returns the sorted field set for a strategy/volume number, or false
// when the pair is not part of the grammar.
func (g *Grammar) Expected(strategy, volNr string) ([]string, bool) {
	if g == nil {
		return nil, false
	}
	volumes, ok := g.volumes[strategy]
	if !ok {
		return nil, false
	}
	fields, ok := volumes[volNr]
	if !ok {
		return nil, false
	}
	return slices.Clone(fields), true
}

// Allows reports whether a parsed file name is accepted.
func (g *Grammar) Allows(f Filename) bool {
	fields, ok := g.Expected(f.Strategy, f.VolNr)
	if !ok {
		return false
	}
	_, found := slices.BinarySearch(fields, strings.ToUpper(f.Field))
	return found
}

// Match parses name and reports whether it is accepted by the grammar.
func (g *Grammar) Match(name string) (Filename, bool) {
	parsed, err := ParseFilename(name)
	if err != nil {
		return Filename{}, false
	}
	return parsed, g.Allows(parsed)
}

// Len returns the number of strategy/volume pairs.
func (g *Grammar) Len() int {
	if g == nil {
		return 0
	}
	n := 0
	for _, volumes := range g.volumes {
		n += len(volumes)
	}
	return n
}

// NormalizeFields upper-cases, de-duplicates, and sorts field names.
func NormalizeFields(fields []string) []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.ToUpper(strings.TrimSpace(f)); f != "" {
			out = append(out, f)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Missing returns the fields in expected that are absent from have.
func Missing(expected, have []string) []string {
	var missing []string
	for _, f := range expected {
		if !slices.Contains(have, f) {
			missing = append(missing, f)
		}
	}
	return missing
}

// SameFields reports set equality of two normalized field lists.
func SameFields(a, b []string) bool {
	return slices.Equal(NormalizeFields(a), NormalizeFields(b))
}
