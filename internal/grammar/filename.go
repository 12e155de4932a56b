package grammar

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ErrMalformedName reports a file name that does not follow
// SOURCE_STRATEGY_VOLNR_FIELD_YYYYMMDDTHHMMSSZ.EXT.
var ErrMalformedName = errors.New("malformed radar file name")

const timestampLayout = "20060102T150405Z"

var filenamePattern = regexp.MustCompile(`^([A-Za-z0-9]+)_([0-9]+)_([0-9]+)_([A-Za-z0-9]+)_([0-9]{8}T[0-9]{6}Z)\.([A-Za-z0-9]+)$`)

// Filename holds the components of a parsed radar file name.
type Filename struct {
	Name     string
	Source   string
	Strategy string
	VolNr    string
	Field    string
	Observed time.Time
	Ext      string
}

// ParseFilename splits a radar file name into its components.
func ParseFilename(name string) (Filename, error) {
	m := filenamePattern.FindStringSubmatch(strings.TrimSpace(name))
	if m == nil {
		return Filename{}, fmt.Errorf("%w: %q", ErrMalformedName, name)
	}
	observed, err := time.Parse(timestampLayout, m[5])
	if err != nil {
		return Filename{}, fmt.Errorf("%w: %q: %v", ErrMalformedName, name, err)
	}
	return Filename{
		Name:     m[0],
		Source:   m[1],
		Strategy: m[2],
		VolNr:    m[3],
		Field:    strings.ToUpper(m[4]),
		Observed: observed.UTC(),
		Ext:      m[6],
	}, nil
}

// VolumeID returns the stable identifier of the volume this file belongs to.
func (f Filename) VolumeID() string {
	return VolumeID(f.Source, f.Strategy, f.VolNr, f.Observed)
}

// VolumeID builds the identifier shared by every field file of one volume.
func VolumeID(source, strategy, volNr string, observed time.Time) string {
	return fmt.Sprintf("%s_%s_%s_%s", source, strategy, volNr, FormatTime(observed))
}

// FormatTime renders an observation time the way it is stored.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
