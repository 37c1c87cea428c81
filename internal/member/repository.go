package member

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when no member matches the lookup.
var ErrNotFound = errors.New("member not found")

// Repository persists members and their roles in Postgres.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// GetByEmail loads a member and their role names. Soft-deleted members are
// returned as-is; deciding what a deleted member may do is the caller's
// concern.
func (r *Repository) GetByEmail(ctx context.Context, email string) (Member, error) {
	var m Member
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, name, tel, birth, deleted, created_at, updated_at
		FROM members
		WHERE email = $1
	`, email).Scan(&m.ID, &m.Email, &m.PasswordHash, &m.Name, &m.Tel, &m.Birth, &m.Deleted, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Member{}, ErrNotFound
		}
		return Member{}, fmt.Errorf("query member by email: %w", err)
	}

	roles, err := r.rolesFor(ctx, m.ID)
	if err != nil {
		return Member{}, err
	}
	m.Roles = roles

	return m, nil
}

func (r *Repository) rolesFor(ctx context.Context, memberID int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ro.role_name
		FROM member_roles mr
		JOIN roles ro ON ro.id = mr.role_id
		WHERE mr.member_id = $1
		ORDER BY ro.id
	`, memberID)
	if err != nil {
		return nil, fmt.Errorf("query member roles: %w", err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan member role: %w", err)
		}
		roles = append(roles, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate member roles: %w", err)
	}

	return roles, nil
}

// ExistsByEmail reports whether a live (non-deleted) member already uses the
// email.
func (r *Repository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM members WHERE email = $1 AND deleted = 'N')
	`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check email exists: %w", err)
	}
	return exists, nil
}

// ExistsByTel reports whether any member that is not soft-deleted already
// uses the phone number.
func (r *Repository) ExistsByTel(ctx context.Context, tel string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM members WHERE tel = $1 AND deleted <> 'Y')
	`, tel).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check tel exists: %w", err)
	}
	return exists, nil
}

// Create inserts a new member with the named role and returns the generated
// id. When the role name is unknown it falls back to the lowest-id role so a
// misconfigured roles table cannot block signups entirely.
func (r *Repository) Create(ctx context.Context, m Member, roleName string) (int64, error) {
	now := time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin member tx: %w", err)
	}
	defer tx.Rollback()

	var roleID int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM roles WHERE role_name = $1`, roleName).Scan(&roleID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("query role: %w", err)
		}
		if err := tx.QueryRowContext(ctx, `SELECT id FROM roles ORDER BY id ASC LIMIT 1`).Scan(&roleID); err != nil {
			return 0, fmt.Errorf("query fallback role: %w", err)
		}
	}

	var memberID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO members (email, password_hash, name, tel, birth, deleted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'N', $6, $6)
		RETURNING id
	`, m.Email, m.PasswordHash, m.Name, m.Tel, m.Birth, now).Scan(&memberID)
	if err != nil {
		return 0, fmt.Errorf("insert member: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO member_roles (member_id, role_id)
		VALUES ($1, $2)
	`, memberID, roleID); err != nil {
		return 0, fmt.Errorf("insert member role: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit member tx: %w", err)
	}

	return memberID, nil
}

// PurgeDeleted removes members soft-deleted before the cutoff, in batches,
// and returns how many rows went away.
func (r *Repository) PurgeDeleted(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT id
			FROM members
			WHERE deleted = 'Y' AND updated_at < $1
			ORDER BY updated_at ASC
			LIMIT $2
		)
		DELETE FROM members m
		USING stale
		WHERE m.id = stale.id
	`, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("purge deleted members: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge deleted members rows affected: %w", err)
	}

	return affected, nil
}
