// Package store defines the collection-oriented data-access boundary of the
// tracker and its MongoDB and in-memory implementations. Everything above it
// talks in documents, equality filters and atomic batches; nothing above it
// knows which database is underneath.
package store

import (
	"context"
	"errors"
)

// Collection names used by the tracker.
const (
	CollectionUsers         = "users"
	CollectionTeams         = "teams"
	CollectionProjects      = "projects"
	CollectionTasks         = "tasks"
	CollectionSprints       = "sprints"
	CollectionChatChannels  = "chatChannels"
	CollectionChatThreads   = "chatThreads"
	CollectionChatMessages  = "chatMessages"
	CollectionNotifications = "notifications"
)

// ErrNotFound is returned when a document id does not exist in a collection.
var ErrNotFound = errors.New("document not found")

// Filter is an equality filter keyed by document field name. Matching a
// scalar value against an array field means array-contains, mirroring
// MongoDB's native equality semantics on arrays.
type Filter map[string]any

// Order sorts a query result by a single field.
type Order struct {
	Field string
	Desc  bool
}

type ChangeType string

const (
	ChangeCreated ChangeType = "created"
	ChangeUpdated ChangeType = "updated"
	ChangeDeleted ChangeType = "deleted"
)

// Change describes one committed write observed by a subscription.
type Change struct {
	Type       ChangeType
	Collection string
	ID         string
}

// Store is the document store the tracker core is written against.
//
// Create assigns and returns the document id when the given document does not
// carry one. GetOne and Query decode into the caller's value; GetOne returns
// ErrNotFound for missing ids. Subscribe delivers committed changes until the
// returned unsubscribe function is called. Batch stages a multi-document
// write that commits atomically.
type Store interface {
	Create(ctx context.Context, collection string, doc any) (string, error)
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	GetOne(ctx context.Context, collection, id string, out any) error
	Query(ctx context.Context, collection string, filter Filter, order *Order, out any) error
	Subscribe(ctx context.Context, collection string, filter Filter, onChange func(Change)) (func(), error)
	Batch() Batch
}

// Batch stages writes across collections; Commit applies all of them or none.
type Batch interface {
	Set(collection, id string, doc any)
	Update(collection, id string, fields map[string]any)
	Delete(collection, id string)
	Commit(ctx context.Context) error
}
