package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-ai/inkwell/pkg/models"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadStations(t *testing.T) {
	path := writeFile(t, t.TempDir(), "stations.yaml", `
stations:
  - id: qa
    label: Quality
    order: 3
  - id: intake
    label: Intake
    order: 1
  - id: draft
    label: Draft
    order: 2
`)

	stations, err := LoadStations(path)
	require.NoError(t, err)
	require.Len(t, stations, 3)
	assert.Equal(t, "intake", stations[0].ID)
	assert.Equal(t, "draft", stations[1].ID)
	assert.Equal(t, "qa", stations[2].ID)
}

func TestLoadStations_DuplicateID(t *testing.T) {
	path := writeFile(t, t.TempDir(), "stations.yaml", `
stations:
  - id: qa
  - id: qa
`)

	_, err := LoadStations(path)
	assert.Error(t, err)
}

func TestLoadDocTypes(t *testing.T) {
	path := writeFile(t, t.TempDir(), "doctypes.yaml", `
doc_types:
  - id: brief
    workflow_id: wf-brief
    required_sections: [goal]
  - id: outline
    workflow_id: wf-outline
    depends_on: [brief]
    required_sections: [chapters]
  - id: chapter
    workflow_id: wf-chapter
    depends_on: [outline]
`)

	docTypes, graph, err := LoadDocTypes(path)
	require.NoError(t, err)
	require.Len(t, docTypes, 3)

	assert.Equal(t, []string{"outline", "chapter"}, graph.Dependents("brief"))

	required := RequiredSections(docTypes)
	assert.Equal(t, []string{"chapters"}, required["outline"])
	assert.Empty(t, required["chapter"])
}

func TestLoadDocTypes_UndeclaredDependency(t *testing.T) {
	path := writeFile(t, t.TempDir(), "doctypes.yaml", `
doc_types:
  - id: outline
    depends_on: [brief]
`)

	_, _, err := LoadDocTypes(path)
	assert.Error(t, err)
}

func TestLoadDocTypes_CyclicGraphFatal(t *testing.T) {
	path := writeFile(t, t.TempDir(), "doctypes.yaml", `
doc_types:
  - id: a
    depends_on: [b]
  - id: b
    depends_on: [a]
`)

	_, _, err := LoadDocTypes(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrCyclicDependencyGraph)
}

func TestLoadBundle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "article.json", `{"type": "object"}`)
	manifest := writeFile(t, dir, "bundle.yaml", `
schemas:
  docdef:article: article.json
`)

	raw, err := LoadBundle(manifest)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type": "object"}`, string(raw["docdef:article"]))
}

func TestLoadBundle_MissingSchemaFile(t *testing.T) {
	dir := t.TempDir()
	manifest := writeFile(t, dir, "bundle.yaml", `
schemas:
  docdef:article: missing.json
`)

	_, err := LoadBundle(manifest)
	assert.Error(t, err)
}

func TestLoadDefinition(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "wf.json", `{
		"workflow_id": "wf-article",
		"version": 1,
		"status": "accepted",
		"nodes": [
			{"node_id": "draft", "station": {"id": "draft", "label": "Draft", "order": 1}, "type": "generation"},
			{"node_id": "done", "station": {"id": "done", "label": "Done", "order": 2}, "type": "terminal", "outcome": "complete"}
		],
		"edges": [
			{"from": "draft", "to": "done", "condition": "drafted"}
		]
	}`)

	definition, err := LoadDefinition(path)
	require.NoError(t, err)
	assert.Equal(t, "wf-article", definition.WorkflowID)
	assert.Len(t, definition.Nodes, 2)
}

func TestLoadDefinition_InvalidGraph(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "wf.json", `{
		"workflow_id": "wf-broken",
		"version": 1,
		"status": "accepted",
		"nodes": [
			{"node_id": "draft", "station": {"id": "draft"}, "type": "generation"}
		],
		"edges": []
	}`)

	_, err := LoadDefinition(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInvalidDefinition)
}

func TestLoadDefinitionsDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", `{
		"workflow_id": "wf-a",
		"version": 1,
		"status": "accepted",
		"nodes": [
			{"node_id": "draft", "station": {"id": "draft"}, "type": "generation"},
			{"node_id": "done", "station": {"id": "done"}, "type": "terminal", "outcome": "complete"}
		],
		"edges": [
			{"from": "draft", "to": "done", "condition": "drafted"}
		]
	}`)

	definitions, err := LoadDefinitionsDir(dir)
	require.NoError(t, err)
	require.Len(t, definitions, 1)
	assert.Equal(t, "wf-a", definitions[0].WorkflowID)
}
