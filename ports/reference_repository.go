package ports

import (
	"context"

	"phenodx/domain/ontology"
)

// ReferenceRepository loads the ontology reference snapshot: terms, synonym
// index, disease annotations with closures, enrichment profiles, and sample
// patients. Loaded once at startup; the snapshot is immutable afterwards.
type ReferenceRepository interface {
	LoadSnapshot(ctx context.Context) (*ontology.Snapshot, error)
}
