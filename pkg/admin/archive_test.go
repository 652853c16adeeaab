package admin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-ai/inkwell/pkg/models"
	"github.com/inkwell-ai/inkwell/pkg/persistence"
)

func TestService_ArchiveProject(t *testing.T) {
	ctx := context.Background()
	service, p := newTestService(t)

	actor := "ops-1"
	require.NoError(t, service.ArchiveProject(ctx, "proj-1", &actor, "contract ended"))

	project, err := p.Projects().GetByCode(ctx, "proj-1")
	require.NoError(t, err)
	assert.True(t, project.Archived)

	records, err := p.Audit().ListByProject(ctx, "proj-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.AuditActionArchived, records[0].Action)
	assert.Equal(t, "contract ended", records[0].Reason)
	require.NotNil(t, records[0].ActorUserID)
	assert.Equal(t, "ops-1", *records[0].ActorUserID)

	// Archiving twice writes nothing further.
	require.NoError(t, service.ArchiveProject(ctx, "proj-1", &actor, "again"))

	records, err = p.Audit().ListByProject(ctx, "proj-1")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestService_UnarchiveProject(t *testing.T) {
	ctx := context.Background()
	service, p := newTestService(t)

	require.NoError(t, service.ArchiveProject(ctx, "proj-1", nil, "pause"))
	require.NoError(t, service.UnarchiveProject(ctx, "proj-1", nil, "resume"))

	project, err := p.Projects().GetByCode(ctx, "proj-1")
	require.NoError(t, err)
	assert.False(t, project.Archived)

	records, err := p.Audit().ListByProject(ctx, "proj-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, models.AuditActionUnarchived, records[1].Action)
	assert.Nil(t, records[1].ActorUserID)
}

func TestService_ArchiveProject_UnknownProject(t *testing.T) {
	service, _ := newTestService(t)

	err := service.ArchiveProject(context.Background(), "proj-missing", nil, "x")
	assert.ErrorIs(t, err, persistence.ErrProjectNotFound)
}
