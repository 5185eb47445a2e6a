// Package definition reads and writes workflow definitions as YAML documents.
package definition

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dukex/storeflow/pkg/models"
	"github.com/dukex/storeflow/pkg/workflow"
	"gopkg.in/yaml.v3"
)

var ErrEmptyDefinition = errors.New("definition contains no workflows")

// Store is the part of the workflow engine an import writes through.
type Store interface {
	GetWorkflow(ctx context.Context, id string) (*models.Workflow, error)
	CreateWorkflow(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error)
	UpdateWorkflow(ctx context.Context, id string, patch workflow.WorkflowPatch) (*models.Workflow, error)
}

// Parse decodes every YAML document in r into a workflow. Field names follow the JSON API.
func Parse(r io.Reader) ([]*models.Workflow, error) {
	decoder := yaml.NewDecoder(r)

	var workflows []*models.Workflow

	for index := 0; ; index++ {
		var document any

		err := decoder.Decode(&document)
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("document %d: %w", index, err)
		}

		if document == nil {
			continue
		}

		data, err := json.Marshal(document)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", index, err)
		}

		var wf models.Workflow
		if err := json.Unmarshal(data, &wf); err != nil {
			return nil, fmt.Errorf("document %d: %w", index, err)
		}

		workflows = append(workflows, &wf)
	}

	if len(workflows) == 0 {
		return nil, ErrEmptyDefinition
	}

	return workflows, nil
}

func ParseFile(path string) ([]*models.Workflow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	workflows, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return workflows, nil
}

// Export writes the workflows as a multi-document YAML stream that Parse reads back.
// No workflows write nothing.
func Export(w io.Writer, workflows []*models.Workflow) error {
	if len(workflows) == 0 {
		return nil
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)

	for _, wf := range workflows {
		data, err := json.Marshal(wf)
		if err != nil {
			return fmt.Errorf("workflow %s: %w", wf.ID, err)
		}

		var document any

		decoder := json.NewDecoder(bytes.NewReader(data))
		decoder.UseNumber()

		if err := decoder.Decode(&document); err != nil {
			return fmt.Errorf("workflow %s: %w", wf.ID, err)
		}

		if err := encoder.Encode(numbersToNative(document)); err != nil {
			return fmt.Errorf("workflow %s: %w", wf.ID, err)
		}
	}

	return encoder.Close()
}

// numbersToNative turns json.Number leaves into int64 or float64 so YAML renders them unquoted.
func numbersToNative(value any) any {
	switch v := value.(type) {
	case map[string]any:
		for key, item := range v {
			v[key] = numbersToNative(item)
		}

		return v
	case []any:
		for i, item := range v {
			v[i] = numbersToNative(item)
		}

		return v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}

		if f, err := v.Float64(); err == nil {
			return f
		}

		return v.String()
	default:
		return v
	}
}

// Result reports what an import did with one workflow.
type Result struct {
	Workflow *models.Workflow
	Created  bool
}

// Import creates each workflow, or replaces the definition of an existing one with the same id.
// It stops at the first workflow the store rejects.
func Import(ctx context.Context, store Store, workflows []*models.Workflow) ([]Result, error) {
	results := make([]Result, 0, len(workflows))

	for _, wf := range workflows {
		if wf.ID != "" {
			_, err := store.GetWorkflow(ctx, wf.ID)

			switch {
			case err == nil:
				updated, err := store.UpdateWorkflow(ctx, wf.ID, replacement(wf))
				if err != nil {
					return results, fmt.Errorf("failed to update workflow %s: %w", wf.ID, err)
				}

				results = append(results, Result{Workflow: updated})

				continue
			case !workflow.IsNotFound(err):
				return results, err
			}
		}

		created, err := store.CreateWorkflow(ctx, wf)
		if err != nil {
			return results, fmt.Errorf("failed to create workflow %q: %w", wf.Name, err)
		}

		results = append(results, Result{Workflow: created, Created: true})
	}

	return results, nil
}

func replacement(wf *models.Workflow) workflow.WorkflowPatch {
	status := wf.Status
	if status == "" {
		status = models.WorkflowStatusDraft
	}

	nodes := wf.Nodes
	if nodes == nil {
		nodes = []*models.WorkflowNode{}
	}

	triggers := wf.Triggers
	if triggers == nil {
		triggers = []models.WorkflowTrigger{}
	}

	variables := wf.Variables
	if variables == nil {
		variables = map[string]any{}
	}

	return workflow.WorkflowPatch{
		Name:        &wf.Name,
		Description: &wf.Description,
		Category:    &wf.Category,
		Status:      &status,
		Owner:       &wf.Owner,
		Nodes:       nodes,
		Triggers:    triggers,
		Variables:   variables,
	}
}
