package domain

import "context"

// SchemaSource exposes the live schema contents to the validation engine.
// Snapshot must return a single consistent copy taken at one point in time;
// it never returns a partially written state. The returned state shares no
// mutable structure with the source.
type SchemaSource interface {
	Snapshot(ctx context.Context) (State, error)
}

// Seeder is implemented by sources that can replace their contents, used by
// fixtures and the operational CLI.
type Seeder interface {
	Seed(ctx context.Context, state State) error
}
