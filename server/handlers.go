package server

import (
	"context"
	"database/sql"

	"github.com/onnwee/streamlens/collector"
	"github.com/onnwee/streamlens/query"
	"github.com/onnwee/streamlens/store"
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	db        *sql.DB
	ctx       context.Context
	engine    *query.Engine
	store     *store.Store
	collector *collector.Collector
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(ctx context.Context, db *sql.DB, coll *collector.Collector) *Handlers {
	return &Handlers{
		db:        db,
		ctx:       ctx,
		engine:    query.New(db),
		store:     store.New(db),
		collector: coll,
	}
}
