package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/target/cqrs-monitor/internal/data/pgxutil"
	domainauth "github.com/target/cqrs-monitor/internal/domain/auth"
	apperrors "github.com/target/cqrs-monitor/internal/errors"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// AuditRepo stores role changes in Postgres.
type AuditRepo struct {
	DB  *sql.DB
	now func() time.Time
}

// NewAuditRepo creates a new AuditRepo with the given database connection.
func NewAuditRepo(db *sql.DB) *AuditRepo {
	return NewAuditRepoWithClock(db, nil)
}

// NewAuditRepoWithClock stamps rows that carry no time with now instead of
// the wall clock.
func NewAuditRepoWithClock(db *sql.DB, now func() time.Time) *AuditRepo {
	if now == nil {
		now = time.Now
	}
	return &AuditRepo{DB: db, now: now}
}

const roleChangeColumns = `id, kind, actor_uid, actor_email, target_uid, target_email, previous_role, new_role, changed_at`

type roleChangeRow struct {
	ID           uuid.UUID `db:"id"`
	Kind         string    `db:"kind"`
	ActorUID     string    `db:"actor_uid"`
	ActorEmail   string    `db:"actor_email"`
	TargetUID    string    `db:"target_uid"`
	TargetEmail  string    `db:"target_email"`
	PreviousRole string    `db:"previous_role"`
	NewRole      string    `db:"new_role"`
	ChangedAt    time.Time `db:"changed_at"`
}

func (r roleChangeRow) toDomain() domainauth.RoleChange {
	return domainauth.RoleChange{
		ID:           r.ID.String(),
		Kind:         domainauth.ChangeKind(r.Kind),
		ActorUID:     r.ActorUID,
		ActorEmail:   r.ActorEmail,
		TargetUID:    r.TargetUID,
		TargetEmail:  r.TargetEmail,
		PreviousRole: domainauth.Role(r.PreviousRole),
		NewRole:      domainauth.Role(r.NewRole),
		At:           r.ChangedAt.UTC(),
	}
}

// Record inserts a role change. A missing ID or timestamp is filled in.
func (r *AuditRepo) Record(ctx context.Context, change domainauth.RoleChange) error {
	if r == nil || r.DB == nil {
		return nil
	}
	if change.TargetUID == "" {
		return apperrors.ValidationField("target_uid", "target_uid is required")
	}

	id := uuid.New()
	if change.ID != "" {
		parsed, err := uuid.Parse(change.ID)
		if err != nil {
			return apperrors.ValidationField("id", "id must be a UUID")
		}
		id = parsed
	}
	at := change.At
	if at.IsZero() {
		at = r.now().UTC()
	}

	const query = `
		INSERT INTO role_changes (` + roleChangeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.DB.ExecContext(ctx, query,
		id, string(change.Kind), change.ActorUID, change.ActorEmail,
		change.TargetUID, change.TargetEmail, string(change.PreviousRole), string(change.NewRole), at,
	)
	if err != nil {
		return fmt.Errorf("record role change: %w", apperrors.MapDBError(err))
	}
	return nil
}

// List returns the most recent role changes, newest first.
func (r *AuditRepo) List(ctx context.Context, limit int) ([]domainauth.RoleChange, error) {
	if r == nil || r.DB == nil {
		return nil, nil
	}
	switch {
	case limit <= 0:
		limit = defaultAuditLimit
	case limit > maxAuditLimit:
		limit = maxAuditLimit
	}

	query := `SELECT ` + roleChangeColumns + ` FROM role_changes ORDER BY changed_at DESC, id LIMIT $1`

	var rows []roleChangeRow
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		res, err := conn.Query(ctx, query, limit)
		if err != nil {
			return err
		}
		rows, err = pgx.CollectRows(res, pgx.RowToStructByName[roleChangeRow])
		return err
	})
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("list role changes: %w", apperrors.MapDBError(err))
	}

	out := make([]domainauth.RoleChange, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}
