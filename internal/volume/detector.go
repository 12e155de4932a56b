// Package volume groups completed downloads into volumes and keeps each
// volume's completeness flag in step with the files that have arrived.
//
// A volume is complete exactly when its downloaded field set equals the
// expected field set captured from the grammar when the volume was first
// registered. Refresh is idempotent: a second pass with no new downloads
// performs no writes.
package volume

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"radarflow/internal/grammar"
	"radarflow/internal/logging"
	"radarflow/internal/state"
)

// Incomplete describes a volume still missing fields after a refresh.
type Incomplete struct {
	VolumeID string
	Missing  []string
}

// Report summarizes one Refresh call.
type Report struct {
	Registered    int
	Updated       int
	NewlyComplete []string
	Incomplete    []Incomplete
	// Ignored counts downloads whose strategy/volume pair is not in the grammar.
	Ignored int
}

// Writes returns how many volume rows the refresh changed.
func (r Report) Writes() int { return r.Registered + r.Updated }

// Detector recomputes volume completeness from download records.
type Detector struct {
	store  *state.Store
	logger *slog.Logger
}

// NewDetector builds a detector over store.
func NewDetector(store *state.Store, logger *slog.Logger) *Detector {
	return &Detector{store: store, logger: logging.NewComponentLogger(logger, "volume")}
}

type group struct {
	file   grammar.Filename
	fields []string
}

// Refresh registers new volumes for source and updates the field sets of
// existing ones. Downloads observed before min(start, newest registered
// volume) are not considered.
func (d *Detector) Refresh(ctx context.Context, source string, g *grammar.Grammar, start time.Time) (Report, error) {
	var report Report

	since := start
	if latest, ok, err := d.store.LatestVolumeTime(ctx, source); err != nil {
		return report, err
	} else if ok && (since.IsZero() || latest.Before(since)) {
		since = latest
	}

	downloads, err := d.store.CompletedDownloadsSince(ctx, source, since)
	if err != nil {
		return report, err
	}
	existing, err := d.store.VolumesForSource(ctx, source, since)
	if err != nil {
		return report, err
	}

	groups := make(map[string]*group)
	for _, dl := range downloads {
		if _, ok := g.Expected(dl.Strategy, dl.VolNr); !ok {
			report.Ignored++
			continue
		}
		id := grammar.VolumeID(dl.Source, dl.Strategy, dl.VolNr, dl.Observed)
		grp, ok := groups[id]
		if !ok {
			grp = &group{file: grammar.Filename{
				Source:   dl.Source,
				Strategy: dl.Strategy,
				VolNr:    dl.VolNr,
				Observed: dl.Observed,
			}}
			groups[id] = grp
		}
		grp.fields = append(grp.fields, dl.FieldType)
	}

	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	logger := d.logger.With(logging.String(logging.FieldSource, source))
	for _, id := range ids {
		grp := groups[id]
		downloaded := grammar.NormalizeFields(grp.fields)

		vol, known := existing[id]
		if !known {
			expected, _ := g.Expected(grp.file.Strategy, grp.file.VolNr)
			complete := grammar.SameFields(expected, downloaded)
			inserted, err := d.store.RegisterVolume(ctx, state.NewVolume{
				VolumeID:         id,
				Source:           grp.file.Source,
				Strategy:         grp.file.Strategy,
				VolNr:            grp.file.VolNr,
				Observed:         grp.file.Observed,
				IsComplete:       complete,
				ExpectedFields:   expected,
				DownloadedFields: downloaded,
			})
			if err != nil {
				return report, fmt.Errorf("register %s: %w", id, err)
			}
			if inserted {
				report.Registered++
				logger.Debug("volume registered",
					logging.String(logging.FieldVolumeID, id),
					logging.Bool("complete", complete))
				if complete {
					report.NewlyComplete = append(report.NewlyComplete, id)
				}
			}
			if !complete {
				report.Incomplete = append(report.Incomplete, Incomplete{VolumeID: id, Missing: grammar.Missing(expected, downloaded)})
			}
			continue
		}

		complete := grammar.SameFields(vol.ExpectedFields, downloaded)
		if complete != vol.IsComplete || !grammar.SameFields(vol.DownloadedFields, downloaded) {
			changed, err := d.store.UpdateVolumeFields(ctx, id, downloaded, complete)
			if err != nil {
				return report, fmt.Errorf("update %s: %w", id, err)
			}
			if changed {
				report.Updated++
				if complete && !vol.IsComplete {
					report.NewlyComplete = append(report.NewlyComplete, id)
					logger.Info("volume complete", logging.String(logging.FieldVolumeID, id))
				}
			}
		}
		if !complete {
			report.Incomplete = append(report.Incomplete, Incomplete{VolumeID: id, Missing: grammar.Missing(vol.ExpectedFields, downloaded)})
		}
	}
	return report, nil
}
