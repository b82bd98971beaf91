package model

import "context"

// PopulationSource supplies the full record set for a rebuild.
type PopulationSource interface {
	LoadPopulation(ctx context.Context) ([]Record, error)
}

// PopulationWriter persists appended records so later rebuilds include them.
type PopulationWriter interface {
	InsertPeople(ctx context.Context, records []Record) error
}

// PopulationStore is the unified upstream contract used by the binary.
type PopulationStore interface {
	PopulationSource
	PopulationWriter
}
