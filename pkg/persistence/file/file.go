// Package file provides file-based persistence: one JSON document per workflow and per execution.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/storeflow/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root          string
	workflowRepo  *WorkflowRepository
	executionRepo *ExecutionRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:          cleanRoot,
		workflowRepo:  &WorkflowRepository{docs: &documentStore{dir: filepath.Join(cleanRoot, "workflows")}},
		executionRepo: &ExecutionRepository{docs: &documentStore{dir: filepath.Join(cleanRoot, "executions")}},
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists and is writable.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if err := os.MkdirAll(fp.root, 0750); err != nil {
		return fmt.Errorf("file persistence root unavailable: %w", err)
	}

	probe, err := os.CreateTemp(fp.root, ".health-*")
	if err != nil {
		return fmt.Errorf("file persistence root not writable: %w", err)
	}

	_ = probe.Close()

	return os.Remove(probe.Name())
}

func (fp *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return fp.workflowRepo
}

func (fp *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return fp.executionRepo
}

// validateID validates that the ID is safe for file operations.
func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", persistence.ErrInvalidID)
	}

	if strings.Contains(id, "..") || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %q contains invalid characters", persistence.ErrInvalidID, id)
	}

	return nil
}

// documentStore reads and writes one JSON file per id inside dir.
type documentStore struct {
	mu  sync.RWMutex
	dir string
}

func (s *documentStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *documentStore) read(id string, out any) (bool, error) {
	body, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}

		return false, err
	}

	return true, json.Unmarshal(body, out)
}

// write replaces the document atomically so readers never see a partial file.
func (s *documentStore) write(id string, value any) error {
	if err := os.MkdirAll(s.dir, 0750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", s.dir, err)
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, "."+id+"-*")
	if err != nil {
		return err
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return err
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())

		return err
	}

	return os.Rename(tmp.Name(), s.path(id))
}

func (s *documentStore) remove(id string) (bool, error) {
	err := os.Remove(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	return err == nil, err
}

// ids lists every stored document id.
func (s *documentStore) ids() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, err
	}

	ids := make([]string, 0, len(entries))

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}

		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}

	return ids, nil
}
