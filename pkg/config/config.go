// Package config provides configuration loading for stations, document
// types, and the schema bundle manifest.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/inkwell-ai/inkwell/pkg/models"
)

// StationsFile represents the structure of the stations.yaml file. Stations
// are a display vocabulary; the engine treats them as opaque metadata.
type StationsFile struct {
	Stations []models.Station `yaml:"stations"`
}

// DocTypesFile represents the structure of the doctypes.yaml file.
type DocTypesFile struct {
	DocTypes []DocTypeConfig `yaml:"doc_types"`
}

// DocTypeConfig declares one document type: the types it depends on for
// staleness propagation and the sections an artifact must carry before the
// document may be marked complete.
type DocTypeConfig struct {
	ID               string   `yaml:"id"`
	WorkflowID       string   `yaml:"workflow_id"`
	DependsOn        []string `yaml:"depends_on"`
	RequiredSections []string `yaml:"required_sections"`
}

// BundleManifest maps docdef schema refs to the schema files of the bundle.
type BundleManifest struct {
	Schemas map[string]string `yaml:"schemas"`
}

// LoadStations loads the station vocabulary from a YAML file, ordered by
// the declared display order.
func LoadStations(path string) ([]models.Station, error) {
	var file StationsFile
	if err := loadYAML(path, &file); err != nil {
		return nil, err
	}

	if len(file.Stations) == 0 {
		return nil, fmt.Errorf("stations file %s declares no stations", path)
	}

	seen := make(map[string]bool, len(file.Stations))

	for i, station := range file.Stations {
		if station.ID == "" {
			return nil, fmt.Errorf("stations[%d]: id is required", i)
		}

		if seen[station.ID] {
			return nil, fmt.Errorf("stations[%d]: duplicate station id %q", i, station.ID)
		}

		seen[station.ID] = true
	}

	sort.SliceStable(file.Stations, func(i, j int) bool {
		return file.Stations[i].Order < file.Stations[j].Order
	})

	return file.Stations, nil
}

// LoadDocTypes loads document type declarations and builds the validated
// dependency graph. A cyclic graph is a fatal configuration error.
func LoadDocTypes(path string) ([]DocTypeConfig, *models.DocTypeGraph, error) {
	var file DocTypesFile
	if err := loadYAML(path, &file); err != nil {
		return nil, nil, err
	}

	dependsOn := make(map[string][]string, len(file.DocTypes))
	seen := make(map[string]bool, len(file.DocTypes))

	for i, docType := range file.DocTypes {
		if docType.ID == "" {
			return nil, nil, fmt.Errorf("doc_types[%d]: id is required", i)
		}

		if seen[docType.ID] {
			return nil, nil, fmt.Errorf("doc_types[%d]: duplicate doc type id %q", i, docType.ID)
		}

		seen[docType.ID] = true
		dependsOn[docType.ID] = docType.DependsOn
	}

	for _, docType := range file.DocTypes {
		for _, dep := range docType.DependsOn {
			if !seen[dep] {
				return nil, nil, fmt.Errorf("doc type %q depends on undeclared type %q", docType.ID, dep)
			}
		}
	}

	graph, err := models.NewDocTypeGraph(dependsOn)
	if err != nil {
		return nil, nil, err
	}

	return file.DocTypes, graph, nil
}

// RequiredSections flattens doc type configs into the map the lifecycle
// manager consumes.
func RequiredSections(docTypes []DocTypeConfig) map[string][]string {
	required := make(map[string][]string, len(docTypes))
	for _, docType := range docTypes {
		required[docType.ID] = docType.RequiredSections
	}

	return required
}

// LoadBundle reads the schema bundle manifest and the schema documents it
// references. Paths in the manifest are resolved relative to the manifest
// file.
func LoadBundle(manifestPath string) (map[string][]byte, error) {
	var manifest BundleManifest
	if err := loadYAML(manifestPath, &manifest); err != nil {
		return nil, err
	}

	if len(manifest.Schemas) == 0 {
		return nil, fmt.Errorf("bundle manifest %s declares no schemas", manifestPath)
	}

	base := filepath.Dir(manifestPath)
	raw := make(map[string][]byte, len(manifest.Schemas))

	for ref, schemaPath := range manifest.Schemas {
		if !filepath.IsAbs(schemaPath) {
			schemaPath = filepath.Join(base, schemaPath)
		}

		data, err := os.ReadFile(schemaPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read schema %s for ref %q: %w", schemaPath, ref, err)
		}

		raw[ref] = data
	}

	return raw, nil
}

func loadYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse YAML config %s: %w", path, err)
	}

	return nil
}
