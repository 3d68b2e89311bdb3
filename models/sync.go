package models

import (
	"errors"
	"maps"
	"slices"
)

// SyncReport summarizes one flush of the event cache to a repository
type SyncReport struct {
	Persisted int
	Deleted   int
	// Failures maps event IDs to the error that kept them from being persisted
	Failures map[string]error
}

func (r SyncReport) HasFailures() bool {
	return len(r.Failures) > 0
}

// Err joins all per-event failures in event ID order; nil when every write succeeded
func (r SyncReport) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	ids := slices.Collect(maps.Keys(r.Failures))
	SortIDs(ids)

	errs := make([]error, 0, len(ids))
	for _, id := range ids {
		errs = append(errs, r.Failures[id])
	}
	return errors.Join(errs...)
}

// MigrationReport describes a completed backend switch
type MigrationReport struct {
	From     string
	To       string
	Copied   int
	Verified int
}
