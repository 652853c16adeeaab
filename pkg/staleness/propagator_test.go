package staleness

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-ai/inkwell/pkg/audit"
	"github.com/inkwell-ai/inkwell/pkg/lifecycle"
	"github.com/inkwell-ai/inkwell/pkg/models"
	"github.com/inkwell-ai/inkwell/pkg/persistence/file"
	"github.com/inkwell-ai/inkwell/pkg/testutil"
)

func newTestPropagator(t *testing.T, dependsOn map[string][]string) (*Propagator, *lifecycle.Manager, *file.Persistence) {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	ledger := audit.NewLedger(p.Audit(), logger)
	manager := lifecycle.NewManager(p, ledger, nil, nil, logger)

	graph, err := models.NewDocTypeGraph(dependsOn)
	require.NoError(t, err)

	require.NoError(t, p.Projects().Save(context.Background(), testutil.CreateTestProject("proj-1")))

	return NewPropagator(graph, p.Documents(), manager, logger), manager, p
}

// Document type B depends on A: accepting a new A version must leave the
// complete B document stale with a fresh audit record.
func TestPropagator_DownstreamGoesStale(t *testing.T) {
	ctx := context.Background()
	propagator, _, p := newTestPropagator(t, map[string][]string{"b": {"a"}})

	b1 := testutil.CreateTestDocument("proj-1", "b", testutil.WithState(models.LifecycleStateComplete))
	require.NoError(t, p.Documents().Create(ctx, b1))

	auditBefore, err := p.Audit().ListByProject(ctx, "proj-1")
	require.NoError(t, err)

	staled, err := propagator.Propagate(ctx, "proj-1", "a")
	require.NoError(t, err)
	assert.Equal(t, []string{b1.ID}, staled)

	updated, err := p.Documents().GetByID(ctx, b1.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LifecycleStateStale, updated.LifecycleState)
	assert.True(t, updated.StateChangedAt.After(b1.StateChangedAt) || updated.StateChangedAt.Equal(b1.StateChangedAt))

	auditAfter, err := p.Audit().ListByProject(ctx, "proj-1")
	require.NoError(t, err)
	assert.Len(t, auditAfter, len(auditBefore)+1)
}

func TestPropagator_Idempotent(t *testing.T) {
	ctx := context.Background()
	propagator, _, p := newTestPropagator(t, map[string][]string{"b": {"a"}})

	b1 := testutil.CreateTestDocument("proj-1", "b", testutil.WithState(models.LifecycleStatePartial))
	require.NoError(t, p.Documents().Create(ctx, b1))

	first, err := propagator.Propagate(ctx, "proj-1", "a")
	require.NoError(t, err)
	assert.Len(t, first, 1)

	second, err := propagator.Propagate(ctx, "proj-1", "a")
	require.NoError(t, err)
	assert.Empty(t, second, "propagating twice stales nothing new")
}

func TestPropagator_TransitiveAndSelective(t *testing.T) {
	ctx := context.Background()
	propagator, _, p := newTestPropagator(t, map[string][]string{
		"b": {"a"},
		"c": {"b"},
	})

	b1 := testutil.CreateTestDocument("proj-1", "b", testutil.WithState(models.LifecycleStateComplete))
	c1 := testutil.CreateTestDocument("proj-1", "c", testutil.WithState(models.LifecycleStateComplete))
	generating := testutil.CreateTestDocument("proj-1", "b", testutil.WithState(models.LifecycleStateGenerating))
	generating.IsLatest = false
	otherProject := testutil.CreateTestDocument("proj-2", "b", testutil.WithState(models.LifecycleStateComplete))

	for _, document := range []*models.Document{b1, c1, generating, otherProject} {
		require.NoError(t, p.Documents().Create(ctx, document))
	}

	staled, err := propagator.Propagate(ctx, "proj-1", "a")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{b1.ID, c1.ID}, staled)

	untouched, err := p.Documents().GetByID(ctx, otherProject.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LifecycleStateComplete, untouched.LifecycleState)
}

func TestPropagator_NoDependents(t *testing.T) {
	ctx := context.Background()
	propagator, _, _ := newTestPropagator(t, map[string][]string{"b": {"a"}})

	staled, err := propagator.Propagate(ctx, "proj-1", "b")
	require.NoError(t, err)
	assert.Empty(t, staled)
}
