// Package storage defines persistence contracts for committed sheet values.
package storage

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound indicates a requested sheet value is missing.
var ErrNotFound = errors.New("record not found")

// ValueStore persists sheet values as key/value text, one namespace per sheet.
type ValueStore interface {
	PutValue(ctx context.Context, sheetID, key, value string) error
	GetValue(ctx context.Context, sheetID, key string) (string, error)
	ListValues(ctx context.Context, sheetID string) (map[string]string, error)
}

// Scoped binds a ValueStore to one sheet.
type Scoped struct {
	store   ValueStore
	sheetID string
}

// Scope returns store restricted to sheetID.
func Scope(store ValueStore, sheetID string) Scoped {
	return Scoped{store: store, sheetID: strings.TrimSpace(sheetID)}
}

// Save writes one value of the scoped sheet.
func (s Scoped) Save(ctx context.Context, key, value string) error {
	if s.store == nil {
		return errors.New("storage is not configured")
	}
	return s.store.PutValue(ctx, s.sheetID, key, value)
}

// Load reads every value of the scoped sheet.
func (s Scoped) Load(ctx context.Context) (map[string]string, error) {
	if s.store == nil {
		return nil, errors.New("storage is not configured")
	}
	return s.store.ListValues(ctx, s.sheetID)
}
