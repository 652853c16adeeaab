package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/inkwell-ai/inkwell/pkg/models"
)

// ArtifactInvoker fulfils the generation contract from a directory the
// external generation backend drops artifacts into: one JSON document per
// node, named <node_id>.json. A missing artifact is a generation failure
// and is routed through the retry policy like a failed call.
type ArtifactInvoker struct {
	dir string
}

func NewArtifactInvoker(dir string) *ArtifactInvoker {
	return &ArtifactInvoker{dir: dir}
}

func (a *ArtifactInvoker) Invoke(ctx context.Context, node *models.Node, state models.ContextState) (models.NodeResult, error) {
	if err := ctx.Err(); err != nil {
		return models.NodeResult{}, err
	}

	path := filepath.Join(a.dir, node.ID+".json")

	data, err := os.ReadFile(path)
	if err != nil {
		return models.NodeResult{}, fmt.Errorf("no artifact for node %s at %s: %w", node.ID, path, err)
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return models.NodeResult{}, fmt.Errorf("malformed artifact for node %s: %w", node.ID, err)
	}

	return models.NodeResult{
		NodeID:      node.ID,
		Status:      models.NodeStatusSuccess,
		Data:        payload,
		CompletedAt: time.Now().UTC(),
	}, nil
}
