package services

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-linkage/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-linkage/pkg/models"
)

// mockLoader serves in-memory files and counts loads per location.
type mockLoader struct {
	mu    sync.Mutex
	files map[string][][]string
	errs  map[string]error
	calls map[string]int
}

func newMockLoader() *mockLoader {
	return &mockLoader{
		files: make(map[string][][]string),
		errs:  make(map[string]error),
		calls: make(map[string]int),
	}
}

// add registers a file; the first row is the header.
func (m *mockLoader) add(location string, rows ...[]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[location] = rows
}

func (m *mockLoader) fail(location string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[location] = err
}

func (m *mockLoader) loads(location string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[location]
}

func (m *mockLoader) Load(ctx context.Context, location string) ([][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[location]++
	if err := m.errs[location]; err != nil {
		return nil, err
	}
	rows, ok := m.files[location]
	if !ok {
		return nil, &apperrors.LoadError{Location: location, Reason: "file does not exist"}
	}
	return rows, nil
}

// newTable builds a table whose location is its name.
func newTable(projectID uuid.UUID, name string, kind models.TableKind, header ...string) *models.Table {
	t := &models.Table{
		ID:        uuid.New(),
		ProjectID: projectID,
		Name:      name,
		Kind:      kind,
		Location:  name + ".csv",
	}
	t.Columns = ColumnsFromHeader(t.ID, header)
	return t
}

// indexOf builds a value index from data rows.
func indexOf(t *models.Table, rows ...[]string) *ValueIndex {
	return BuildValueIndex(t, rows, DefaultSampleLimit)
}

func row(cells ...string) []string { return cells }
