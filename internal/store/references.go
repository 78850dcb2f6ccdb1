package store

import (
	"context"
	"database/sql"
	"fmt"
)

// The orders, instance_groups and raw_materials tables belong to upstream
// CRUD services. The engine only reads them to validate references; these
// helpers exist for seeding and tests.

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var res sql.Result
	err := s.retry.do(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	})
	return res, err
}

// InsertOrder records an upstream order and returns its id.
func (s *Store) InsertOrder(ctx context.Context, reference, customer string) (int64, error) {
	res, err := s.execWithRetry(ctx, "INSERT INTO orders (reference, customer) VALUES (?, ?)", reference, customer)
	if err != nil {
		return 0, fmt.Errorf("insert order: %w", err)
	}
	return res.LastInsertId()
}

// InsertInstanceGroup records an upstream instance group under an order.
func (s *Store) InsertInstanceGroup(ctx context.Context, orderID int64, name string) (int64, error) {
	res, err := s.execWithRetry(ctx, "INSERT INTO instance_groups (order_id, name) VALUES (?, ?)", orderID, name)
	if err != nil {
		return 0, fmt.Errorf("insert instance group: %w", err)
	}
	return res.LastInsertId()
}

// InsertRawMaterial records an upstream raw material.
func (s *Store) InsertRawMaterial(ctx context.Context, code, name, unit string) (int64, error) {
	if unit == "" {
		unit = "pcs"
	}
	res, err := s.execWithRetry(ctx, "INSERT INTO raw_materials (code, name, unit) VALUES (?, ?, ?)", code, name, unit)
	if err != nil {
		return 0, fmt.Errorf("insert raw material: %w", err)
	}
	return res.LastInsertId()
}

// RawMaterialByCode looks up a raw material id by its code.
func (s *Store) RawMaterialByCode(ctx context.Context, code string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ensureContext(ctx), "SELECT id FROM raw_materials WHERE code = ?", code).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("lookup raw material %s: %w", code, err)
	}
	return id, nil
}
