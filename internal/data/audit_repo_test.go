package data

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/target/cqrs-monitor/internal/domain/auth"
	apperrors "github.com/target/cqrs-monitor/internal/errors"
	"github.com/target/cqrs-monitor/internal/ports"
	"github.com/target/cqrs-monitor/internal/testutil"
)

var _ ports.AuditLog = (*AuditRepo)(nil)

func TestAuditRepo_RecordAndList(t *testing.T) {
	db := testutil.SetupTestDB(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	now := base
	repo := NewAuditRepoWithClock(db, func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, repo.Record(ctx, domainauth.RoleChange{
		Kind:        domainauth.ChangeBootstrap,
		ActorUID:    "u1",
		ActorEmail:  "root@example.com",
		TargetUID:   "u1",
		TargetEmail: "root@example.com",
		NewRole:     domainauth.RoleAdmin,
	}))

	now = now.Add(time.Minute)
	require.NoError(t, repo.Record(ctx, domainauth.RoleChange{
		Kind:         domainauth.ChangeSetRole,
		ActorUID:     "u1",
		TargetUID:    "u2",
		TargetEmail:  "w@example.com",
		PreviousRole: domainauth.RoleWriter,
		NewRole:      domainauth.RoleViewer,
	}))

	changes, err := repo.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, changes, 2)

	assert.Equal(t, "u2", changes[0].TargetUID, "newest first")
	assert.Equal(t, domainauth.ChangeSetRole, changes[0].Kind)
	assert.Equal(t, domainauth.RoleWriter, changes[0].PreviousRole)
	assert.Equal(t, domainauth.RoleViewer, changes[0].NewRole)
	assert.True(t, changes[0].At.Equal(base.Add(time.Minute)))
	assert.NotEmpty(t, changes[0].ID)

	assert.Equal(t, domainauth.ChangeBootstrap, changes[1].Kind)
	assert.Empty(t, changes[1].PreviousRole)

	limited, err := repo.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestAuditRepo_RecordRejectsInvalidRows(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewAuditRepo(db)
	ctx := context.Background()

	err := repo.Record(ctx, domainauth.RoleChange{Kind: domainauth.ChangeSetRole, NewRole: domainauth.RoleAdmin})
	assert.True(t, apperrors.IsValidation(err))

	err = repo.Record(ctx, domainauth.RoleChange{ID: "nope", Kind: domainauth.ChangeSetRole, TargetUID: "u", NewRole: domainauth.RoleAdmin})
	assert.True(t, apperrors.IsValidation(err))

	err = repo.Record(ctx, domainauth.RoleChange{Kind: domainauth.ChangeSetRole, TargetUID: "u", NewRole: "owner"})
	assert.True(t, apperrors.IsValidation(err), "check constraint maps to validation: %v", err)
}

func TestAuditRepo_NilIsNoop(t *testing.T) {
	var repo *AuditRepo
	assert.NoError(t, repo.Record(context.Background(), domainauth.RoleChange{TargetUID: "u"}))
	changes, err := repo.List(context.Background(), 5)
	assert.NoError(t, err)
	assert.Empty(t, changes)
}
