package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"markbind/internal/domain"
	"markbind/internal/store"
)

// isJSON reports whether path names a JSON document; anything else is YAML.
func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

// loadDocument reads a document file.
func loadDocument(path string) (*store.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	var doc store.Document
	if isJSON(path) {
		err = json.Unmarshal(data, &doc)
	} else {
		err = yaml.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if doc.ID == "" {
		doc.ID = domain.NewID()
	}
	return doc.Normalize(), nil
}

// saveDocument writes doc back to path in the format its extension names.
// The file is replaced atomically.
func saveDocument(path string, doc *store.Document) error {
	var buf bytes.Buffer
	if isJSON(path) {
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode document: %w", err)
		}
	} else {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode document: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("encode document: %w", err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	return nil
}

// resolveDataset finds a dataset by ID, falling back to a unique name.
func resolveDataset(doc *store.Document, ref string) (*domain.Dataset, error) {
	if ds, err := doc.Dataset(ref); err == nil {
		return ds, nil
	}
	var found *domain.Dataset
	for _, ds := range doc.ListDatasets() {
		if ds.Name != ref {
			continue
		}
		if found != nil {
			return nil, domain.ErrConflict("dataset name %q is ambiguous; use its id", ref)
		}
		found = ds
	}
	if found == nil {
		return nil, domain.ErrNotFound("dataset %q not found", ref)
	}
	return found, nil
}

// resolveMark finds a mark by ID, falling back to a unique name.
func resolveMark(doc *store.Document, ref string) (*domain.Mark, error) {
	if m, err := doc.Mark(ref); err == nil {
		return m, nil
	}
	var found *domain.Mark
	for _, m := range doc.ListMarks() {
		if m.Name != ref {
			continue
		}
		if found != nil {
			return nil, domain.ErrConflict("mark name %q is ambiguous; use its id", ref)
		}
		found = m
	}
	if found == nil {
		return nil, domain.ErrNotFound("mark %q not found", ref)
	}
	return found, nil
}
