package repositories

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-linkage/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-linkage/pkg/models"
)

// MemoryStore is an in-process metadata store used by the CLI and by service
// tests. It applies the same cascade rules as the PostgreSQL schema.
type MemoryStore struct {
	mu     sync.RWMutex
	tables []*models.Table
	links  []*models.Link
	rules  []*models.ValidationRule
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Tables returns the store's TableRepository.
func (s *MemoryStore) Tables() TableRepository { return &memoryTables{s} }

// Links returns the store's LinkRepository.
func (s *MemoryStore) Links() LinkRepository { return &memoryLinks{s} }

// Rules returns the store's RuleRepository.
func (s *MemoryStore) Rules() RuleRepository { return &memoryRules{s} }

func copyTable(t *models.Table) *models.Table {
	c := *t
	c.Columns = make([]*models.Column, len(t.Columns))
	for i, col := range t.Columns {
		c.Columns[i] = copyColumn(col)
	}
	return &c
}

func copyColumn(col *models.Column) *models.Column {
	c := *col
	c.SampleValues = append([]string{}, col.SampleValues...)
	if col.LinkedToColumnID != nil {
		id := *col.LinkedToColumnID
		c.LinkedToColumnID = &id
	}
	return &c
}

// findColumn must be called with s.mu held.
func (s *MemoryStore) findColumn(projectID, columnID uuid.UUID) *models.Column {
	for _, t := range s.tables {
		if t.ProjectID != projectID {
			continue
		}
		if c := t.ColumnByID(columnID); c != nil {
			return c
		}
	}
	return nil
}

// ============================================================================
// Tables
// ============================================================================

type memoryTables struct{ s *MemoryStore }

var _ TableRepository = (*memoryTables)(nil)

func (r *memoryTables) Create(_ context.Context, table *models.Table) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, t := range r.s.tables {
		if t.ProjectID == table.ProjectID && t.Name == table.Name {
			return fmt.Errorf("table %q: %w", table.Name, apperrors.ErrConflict)
		}
	}
	if table.CreatedAt.IsZero() {
		table.CreatedAt = time.Now().UTC()
	}
	r.s.tables = append(r.s.tables, copyTable(table))
	return nil
}

func (r *memoryTables) GetByID(_ context.Context, projectID, tableID uuid.UUID) (*models.Table, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, t := range r.s.tables {
		if t.ProjectID == projectID && t.ID == tableID {
			return copyTable(t), nil
		}
	}
	return nil, fmt.Errorf("table %s: %w", tableID, apperrors.ErrNotFound)
}

func (r *memoryTables) ListByProject(_ context.Context, projectID uuid.UUID) ([]*models.Table, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*models.Table, 0)
	for _, t := range r.s.tables {
		if t.ProjectID == projectID {
			out = append(out, copyTable(t))
		}
	}
	return out, nil
}

func (r *memoryTables) ColumnsOf(ctx context.Context, projectID, tableID uuid.UUID) ([]*models.Column, error) {
	t, err := r.GetByID(ctx, projectID, tableID)
	if err != nil {
		return nil, err
	}
	return t.Columns, nil
}

func (r *memoryTables) Delete(_ context.Context, projectID, tableID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	idx := -1
	for i, t := range r.s.tables {
		if t.ProjectID == projectID && t.ID == tableID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("table %s: %w", tableID, apperrors.ErrNotFound)
	}

	removed := r.s.tables[idx]
	r.s.tables = append(r.s.tables[:idx], r.s.tables[idx+1:]...)

	gone := make(map[uuid.UUID]bool, len(removed.Columns))
	for _, c := range removed.Columns {
		gone[c.ID] = true
	}

	links := r.s.links[:0]
	for _, l := range r.s.links {
		if gone[l.CheckedColumnID] || gone[l.ReferenceColumnID] {
			continue
		}
		if l.Metadata.ForbiddenTableID != nil && *l.Metadata.ForbiddenTableID == tableID {
			l.Metadata.ForbiddenTableID = nil
		}
		if l.Metadata.CodebookTableID != nil && *l.Metadata.CodebookTableID == tableID {
			l.Metadata.CodebookTableID = nil
		}
		links = append(links, l)
	}
	r.s.links = links

	rules := r.s.rules[:0]
	for _, rule := range r.s.rules {
		if rule.TableID != tableID {
			rules = append(rules, rule)
		}
	}
	r.s.rules = rules

	for _, t := range r.s.tables {
		for _, c := range t.Columns {
			if c.LinkedToColumnID != nil && gone[*c.LinkedToColumnID] {
				c.LinkedToColumnID = nil
			}
		}
	}
	return nil
}

func (r *memoryTables) UpdateStats(_ context.Context, projectID, tableID uuid.UUID, rowCount int, stats []models.ColumnStats) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, t := range r.s.tables {
		if t.ProjectID != projectID || t.ID != tableID {
			continue
		}
		t.RowCount = rowCount
		for _, st := range stats {
			if c := t.ColumnByID(st.ColumnID); c != nil {
				c.UniqueCount = st.UniqueCount
				c.NullCount = st.NullCount
				c.SampleValues = append([]string{}, st.SampleValues...)
			}
		}
		return nil
	}
	return fmt.Errorf("table %s: %w", tableID, apperrors.ErrNotFound)
}

func (r *memoryTables) UpdateColumnFlags(_ context.Context, projectID, columnID uuid.UUID, flags ColumnFlags) (*models.Column, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c := r.s.findColumn(projectID, columnID)
	if c == nil {
		return nil, fmt.Errorf("column %s: %w", columnID, apperrors.ErrNotFound)
	}
	if flags.IsPrimaryKey != nil {
		c.IsPrimaryKey = *flags.IsPrimaryKey
	}
	if flags.IsValidationScope != nil {
		c.IsValidationScope = *flags.IsValidationScope
	}
	return copyColumn(c), nil
}

func (r *memoryTables) SetLinkedTo(_ context.Context, projectID, columnID uuid.UUID, linkedTo *uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c := r.s.findColumn(projectID, columnID)
	if c == nil {
		return fmt.Errorf("column %s: %w", columnID, apperrors.ErrNotFound)
	}
	if linkedTo == nil {
		c.LinkedToColumnID = nil
		return nil
	}
	id := *linkedTo
	c.LinkedToColumnID = &id
	return nil
}

// ============================================================================
// Links
// ============================================================================

type memoryLinks struct{ s *MemoryStore }

var _ LinkRepository = (*memoryLinks)(nil)

func (r *memoryLinks) ListByProject(_ context.Context, projectID uuid.UUID) ([]*models.Link, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*models.Link, 0)
	for _, l := range r.s.links {
		if l.ProjectID == projectID {
			c := *l
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *memoryLinks) GetByCheckedColumn(_ context.Context, projectID, columnID uuid.UUID) (*models.Link, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, l := range r.s.links {
		if l.ProjectID == projectID && l.CheckedColumnID == columnID {
			c := *l
			return &c, nil
		}
	}
	return nil, nil
}

func (r *memoryLinks) Apply(_ context.Context, link *models.Link) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if link.CheckedColumnID == link.ReferenceColumnID {
		return fmt.Errorf("link column %s to itself: %w", link.CheckedColumnID, apperrors.ErrConflict)
	}
	if r.s.findColumn(link.ProjectID, link.CheckedColumnID) == nil {
		return fmt.Errorf("column %s: %w", link.CheckedColumnID, apperrors.ErrNotFound)
	}
	if r.s.findColumn(link.ProjectID, link.ReferenceColumnID) == nil {
		return fmt.Errorf("column %s: %w", link.ReferenceColumnID, apperrors.ErrNotFound)
	}

	link.UpdatedAt = time.Now().UTC()
	for i, l := range r.s.links {
		if l.ProjectID == link.ProjectID && l.CheckedColumnID == link.CheckedColumnID {
			link.ID = l.ID
			c := *link
			r.s.links[i] = &c
			return nil
		}
	}

	if link.ID == uuid.Nil {
		link.ID = uuid.New()
	}
	c := *link
	r.s.links = append(r.s.links, &c)
	return nil
}

func (r *memoryLinks) Delete(_ context.Context, projectID, linkID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for i, l := range r.s.links {
		if l.ProjectID == projectID && l.ID == linkID {
			r.s.links = append(r.s.links[:i], r.s.links[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("link %s: %w", linkID, apperrors.ErrNotFound)
}

// ============================================================================
// Rules
// ============================================================================

type memoryRules struct{ s *MemoryStore }

var _ RuleRepository = (*memoryRules)(nil)

func (r *memoryRules) Create(_ context.Context, rule *models.ValidationRule) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	c := *rule
	r.s.rules = append(r.s.rules, &c)
	return nil
}

func (r *memoryRules) GetByID(_ context.Context, projectID, ruleID uuid.UUID) (*models.ValidationRule, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, rule := range r.s.rules {
		if rule.ProjectID == projectID && rule.ID == ruleID {
			c := *rule
			return &c, nil
		}
	}
	return nil, fmt.Errorf("rule %s: %w", ruleID, apperrors.ErrNotFound)
}

func (r *memoryRules) ListByProject(_ context.Context, projectID uuid.UUID) ([]*models.ValidationRule, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*models.ValidationRule, 0)
	for _, rule := range r.s.rules {
		if rule.ProjectID == projectID {
			c := *rule
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *memoryRules) Delete(_ context.Context, projectID, ruleID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for i, rule := range r.s.rules {
		if rule.ProjectID == projectID && rule.ID == ruleID {
			r.s.rules = append(r.s.rules[:i], r.s.rules[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("rule %s: %w", ruleID, apperrors.ErrNotFound)
}

func (r *memoryRules) DeleteByProject(_ context.Context, projectID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	kept := r.s.rules[:0]
	for _, rule := range r.s.rules {
		if rule.ProjectID == projectID {
			n++
			continue
		}
		kept = append(kept, rule)
	}
	r.s.rules = kept
	return n, nil
}
