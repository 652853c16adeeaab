// Package file provides file-based persistence for local development and
// tests. Entities are stored as one JSON document per file under a root
// directory.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/inkwell-ai/inkwell/pkg/persistence"
)

// Persistence implements persistence.Persistence on the local filesystem.
// A single mutex serializes writes so the optimistic version check is
// atomic; file persistence is for tests and single-process development, not
// for contended deployments.
type Persistence struct {
	root string
	mu   sync.Mutex

	definitions *DefinitionRepository
	executions  *ExecutionRepository
	documents   *DocumentRepository
	audit       *AuditRepository
	projects    *ProjectRepository
}

// NewPersistence creates a file persistence layer rooted at the given
// directory. Accepts plain paths and file:// URLs.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	p := &Persistence{root: cleanRoot}
	p.definitions = &DefinitionRepository{persistence: p}
	p.executions = &ExecutionRepository{persistence: p}
	p.documents = &DocumentRepository{persistence: p}
	p.audit = &AuditRepository{persistence: p}
	p.projects = &ProjectRepository{persistence: p}

	return p
}

func (p *Persistence) Definitions() persistence.DefinitionRepository {
	return p.definitions
}

func (p *Persistence) Executions() persistence.ExecutionRepository {
	return p.executions
}

func (p *Persistence) Documents() persistence.DocumentRepository {
	return p.documents
}

func (p *Persistence) Audit() persistence.AuditRepository {
	return p.audit
}

func (p *Persistence) Projects() persistence.ProjectRepository {
	return p.projects
}

// HealthCheck verifies the root directory exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close performs any necessary cleanup. Nothing to release for files.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

func (p *Persistence) dir(kind string) (string, error) {
	dir := filepath.Join(p.root, kind)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s directory: %w", kind, err)
	}

	return dir, nil
}

func (p *Persistence) writeEntity(kind, id string, entity any) error {
	dir, err := p.dir(kind)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(entity, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s %s: %w", kind, id, err)
	}

	path := filepath.Join(dir, id+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s %s: %w", kind, id, err)
	}

	return nil
}

func (p *Persistence) readEntity(kind, id string, entity any) (bool, error) {
	path := filepath.Join(p.root, kind, id+".json")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to read %s %s: %w", kind, id, err)
	}

	if err := json.Unmarshal(data, entity); err != nil {
		return false, fmt.Errorf("failed to decode %s %s: %w", kind, id, err)
	}

	return true, nil
}

func (p *Persistence) removeEntity(kind, id string) error {
	path := filepath.Join(p.root, kind, id+".json")

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s %s: %w", kind, id, err)
	}

	return nil
}

func (p *Persistence) listIDs(kind string) ([]string, error) {
	dir := filepath.Join(p.root, kind)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to list %s: %w", kind, err)
	}

	var ids []string

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}

		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}

	return ids, nil
}
