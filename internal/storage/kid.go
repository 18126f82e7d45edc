package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"piggybank/internal/core"
)

// CreateKid inserts a new kid and assigns its identity.
func (r *SQLiteRepository) CreateKid(ctx context.Context, k core.Kid) (core.Kid, error) {
	const query = `INSERT INTO kids (guardian_id, name, age, created_at, updated_at, created_by, updated_by)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	res, err := r.db.ExecContext(ctx, query,
		k.GuardianID, k.Name, k.Age, k.CreatedAt.UTC(), k.UpdatedAt.UTC(), k.CreatedBy, k.UpdatedBy)
	if err != nil {
		return core.Kid{}, fmt.Errorf("insert kid: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Kid{}, fmt.Errorf("kid id: %w", err)
	}
	k.ID = id

	slog.InfoContext(ctx, "Kid created", "kid_id", k.ID, "guardian_id", k.GuardianID, "name", k.Name)
	return k, nil
}

// GetKid returns the kid only if it belongs to the guardian, nil when it
// does not exist or is owned by someone else. Ownership checks never
// leak another guardian's kids.
func (r *SQLiteRepository) GetKid(ctx context.Context, kidID, guardianID int64) (*core.Kid, error) {
	const query = `SELECT id, guardian_id, name, age, created_at, updated_at, created_by, updated_by
		FROM kids WHERE id = ? AND guardian_id = ?`

	var k core.Kid
	err := r.db.QueryRowContext(ctx, query, kidID, guardianID).Scan(
		&k.ID, &k.GuardianID, &k.Name, &k.Age, &k.CreatedAt, &k.UpdatedAt, &k.CreatedBy, &k.UpdatedBy)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get kid: %w", err)
	}
	return &k, nil
}

// ListKids returns a guardian's kids newest first.
func (r *SQLiteRepository) ListKids(ctx context.Context, guardianID int64) ([]core.Kid, error) {
	const query = `SELECT id, guardian_id, name, age, created_at, updated_at, created_by, updated_by
		FROM kids WHERE guardian_id = ? ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, guardianID)
	if err != nil {
		return nil, fmt.Errorf("list kids: %w", err)
	}
	defer rows.Close()

	var kids []core.Kid
	for rows.Next() {
		var k core.Kid
		err := rows.Scan(&k.ID, &k.GuardianID, &k.Name, &k.Age, &k.CreatedAt, &k.UpdatedAt, &k.CreatedBy, &k.UpdatedBy)
		if err != nil {
			return nil, fmt.Errorf("scan kid: %w", err)
		}
		kids = append(kids, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate kids: %w", err)
	}
	return kids, nil
}

// ListKidsBatch pages through all kids regardless of guardian. Used by
// the consistency sweep.
func (r *SQLiteRepository) ListKidsBatch(ctx context.Context, limit, offset int) ([]core.Kid, error) {
	const query = `SELECT id, guardian_id, name, age, created_at, updated_at, created_by, updated_by
		FROM kids ORDER BY id LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list kids batch: %w", err)
	}
	defer rows.Close()

	var kids []core.Kid
	for rows.Next() {
		var k core.Kid
		err := rows.Scan(&k.ID, &k.GuardianID, &k.Name, &k.Age, &k.CreatedAt, &k.UpdatedAt, &k.CreatedBy, &k.UpdatedBy)
		if err != nil {
			return nil, fmt.Errorf("scan kid: %w", err)
		}
		kids = append(kids, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate kids: %w", err)
	}
	return kids, nil
}

// UpdateKid updates the kid's mutable fields (name, age).
func (r *SQLiteRepository) UpdateKid(ctx context.Context, k core.Kid) error {
	const query = `UPDATE kids SET name = ?, age = ?, updated_at = ?, updated_by = ?
		WHERE id = ? AND guardian_id = ?`

	res, err := r.db.ExecContext(ctx, query, k.Name, k.Age, k.UpdatedAt.UTC(), k.UpdatedBy, k.ID, k.GuardianID)
	if err != nil {
		return fmt.Errorf("update kid: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update kid rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update kid: no row for kid %d", k.ID)
	}
	return nil
}

// DeleteKid removes a kid row. Callers must first verify the kid has no
// ledger history; this method does not cascade.
func (r *SQLiteRepository) DeleteKid(ctx context.Context, kidID, guardianID int64) error {
	const query = `DELETE FROM kids WHERE id = ? AND guardian_id = ?`

	res, err := r.db.ExecContext(ctx, query, kidID, guardianID)
	if err != nil {
		return fmt.Errorf("delete kid: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete kid rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("delete kid: no row for kid %d", kidID)
	}

	slog.InfoContext(ctx, "Kid deleted", "kid_id", kidID, "guardian_id", guardianID)
	return nil
}
