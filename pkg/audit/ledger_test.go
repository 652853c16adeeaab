package audit

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-ai/inkwell/pkg/models"
	"github.com/inkwell-ai/inkwell/pkg/persistence/file"
)

func newTestLedger(t *testing.T) (*Ledger, *file.Persistence) {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	return NewLedger(p.Audit(), logger), p
}

func TestLedger_Write(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger(t)

	actor := "user-1"

	record, err := ledger.Write(ctx, models.AuditActionCreated, "proj-1", &actor, "document created", map[string]any{
		"document_id": "doc-1",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, record.ID)
	assert.Equal(t, models.AuditActionCreated, record.Action)
	assert.Equal(t, "user-1", *record.ActorUserID)
	assert.False(t, record.CreatedAt.IsZero())
}

func TestLedger_Write_SystemActor(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger(t)

	record, err := ledger.Write(ctx, models.AuditActionUpdated, "proj-1", nil, "propagated staleness", nil)
	require.NoError(t, err)
	assert.Nil(t, record.ActorUserID)
}

func TestLedger_History_ReplaysInOrder(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger(t)

	actions := []models.AuditAction{
		models.AuditActionCreated,
		models.AuditActionUpdated,
		models.AuditActionArchived,
		models.AuditActionUnarchived,
		models.AuditActionDeleted,
	}
	for _, action := range actions {
		_, err := ledger.Write(ctx, action, "proj-1", nil, "step", nil)
		require.NoError(t, err)
	}

	records, err := ledger.History(ctx, "proj-1")
	require.NoError(t, err)
	require.Len(t, records, len(actions))

	for i, record := range records {
		assert.Equal(t, actions[i], record.Action)

		if i > 0 {
			assert.False(t, record.CreatedAt.Before(records[i-1].CreatedAt))
		}
	}
}

func TestLedger_WriteEditBlocked(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger(t)

	record, err := ledger.WriteEditBlocked(ctx, "proj-1", nil, "begin_generation")
	require.NoError(t, err)
	assert.Equal(t, models.AuditActionEditBlockedArchived, record.Action)
	assert.Equal(t, "begin_generation", record.Metadata["attempted_action"])
}

// The repository is append-only by construction: duplicate ids are rejected
// so an existing record can never be overwritten through Append.
func TestLedger_RecordsImmutable(t *testing.T) {
	ctx := context.Background()
	ledger, p := newTestLedger(t)

	record, err := ledger.Write(ctx, models.AuditActionCreated, "proj-1", nil, "original", nil)
	require.NoError(t, err)

	tampered := *record
	tampered.Reason = "rewritten"

	err = p.Audit().Append(ctx, &tampered)
	require.Error(t, err)

	records, err := ledger.History(ctx, "proj-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "original", records[0].Reason)
}
