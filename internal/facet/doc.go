// Package facet indexes a population of records across a fixed registry of
// dimensions and answers cross-filtered histogram queries over it.
//
// A Store publishes immutable Snapshots. Each query compiles its filter
// specification up front and evaluates it with its own bitmap context, so
// concurrent queries and writers never interfere.
package facet
