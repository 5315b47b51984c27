package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aevon-lab/tally/internal/core/period"
	"github.com/aevon-lab/tally/internal/core/tally"
)

// DocumentVersion is the schema version written by EncodeDocument.
// Version 0 is the legacy layout with a "weekly" map and no version key.
const DocumentVersion = 1

// document is the on-disk JSON layout shared by every backend.
type document struct {
	Version       *int                        `json:"version,omitempty"`
	AllTime       map[string]int64            `json:"allTime"`
	Current       map[string]int64            `json:"current"`
	Weekly        map[string]int64            `json:"weekly,omitempty"`
	History       map[string]map[string]int64 `json:"history"`
	CurrentPeriod string                      `json:"currentPeriod"`
	WeekIndex     int                         `json:"weekIndex"`
}

// EncodeDocument serializes state in the current document layout.
func EncodeDocument(state *tally.State) ([]byte, error) {
	version := DocumentVersion
	doc := document{
		Version:       &version,
		AllTime:       state.AllTime.Clone(),
		Current:       state.Current.Clone(),
		History:       make(map[string]map[string]int64, len(state.History)),
		CurrentPeriod: string(state.CurrentPeriod),
		WeekIndex:     state.WeekIndex,
	}
	for id, counts := range state.History {
		doc.History[string(id)] = counts.Clone()
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state document: %w", err)
	}
	return data, nil
}

// DecodeDocument parses a persisted document, migrating legacy layouts.
// Missing keys default to empty. Anything unrecognized yields ErrCorrupt.
func DecodeDocument(data []byte) (*tally.State, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: document is not a JSON object", ErrCorrupt)
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()

	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after document", ErrCorrupt)
	}

	version := 0
	if doc.Version != nil {
		version = *doc.Version
	}
	if version < 0 || version > DocumentVersion {
		return nil, fmt.Errorf("%w: unsupported document version %d", ErrCorrupt, version)
	}
	if version >= 1 && doc.Weekly != nil {
		return nil, fmt.Errorf("%w: legacy key \"weekly\" in version %d document", ErrCorrupt, version)
	}
	if doc.WeekIndex < 0 {
		return nil, fmt.Errorf("%w: negative weekIndex %d", ErrCorrupt, doc.WeekIndex)
	}

	current := doc.Current
	if current == nil && doc.Weekly != nil {
		current = doc.Weekly
	}

	state := &tally.State{
		AllTime:       tally.Counts(doc.AllTime),
		Current:       tally.Counts(current),
		History:       make(map[period.ID]tally.Counts, len(doc.History)),
		CurrentPeriod: period.ID(doc.CurrentPeriod),
		WeekIndex:     doc.WeekIndex,
	}
	for id, counts := range doc.History {
		state.History[period.ID(id)] = tally.Counts(counts)
	}
	state.Normalize()

	if err := checkNonNegative("allTime", state.AllTime); err != nil {
		return nil, err
	}
	if err := checkNonNegative("current", state.Current); err != nil {
		return nil, err
	}
	for id, counts := range state.History {
		if err := checkNonNegative("history."+string(id), counts); err != nil {
			return nil, err
		}
	}

	if version == 0 {
		canonicalizePeriods(state)
	}
	return state, nil
}

// canonicalizePeriods pads legacy week keys ("2025-W5" becomes "2025-W05").
// Counts are summed when both spellings of a week are present.
func canonicalizePeriods(state *tally.State) {
	state.CurrentPeriod = period.Canonical(state.CurrentPeriod)

	for id, counts := range state.History {
		canonical := period.Canonical(id)
		if canonical == id {
			continue
		}
		delete(state.History, id)

		merged, ok := state.History[canonical]
		if !ok {
			state.History[canonical] = counts
			continue
		}
		for user, n := range counts {
			merged[user] += n
		}
	}
}

func checkNonNegative(section string, counts tally.Counts) error {
	for user, n := range counts {
		if n < 0 {
			return fmt.Errorf("%w: negative count %d for user %q in %s", ErrCorrupt, n, user, section)
		}
	}
	return nil
}
