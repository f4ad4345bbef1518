package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-linkage/pkg/loader"
	"github.com/ekaya-inc/ekaya-linkage/pkg/models"
	"github.com/ekaya-inc/ekaya-linkage/pkg/repositories"
	"github.com/ekaya-inc/ekaya-linkage/pkg/services"
)

// Workspace is a manifest loaded into an in-memory project.
type Workspace struct {
	ProjectID uuid.UUID
	Manifest  *Manifest

	Tables     services.TableService
	Discovery  services.DiscoveryService
	Links      services.LinkService
	Validation services.ValidationService
	Rules      services.RuleService

	byName map[string]*models.Table
}

// OpenWorkspace registers the manifest's tables, links and rules. File paths
// resolve against baseDir.
func OpenWorkspace(ctx context.Context, m *Manifest, baseDir string, logger *zap.Logger) (*Workspace, error) {
	var comma rune
	if m.Comma != "" {
		comma = []rune(m.Comma)[0]
	}
	fileLoader, err := loader.NewFileLoader(loader.Options{
		BaseDir:  baseDir,
		Encoding: m.Encoding,
		Comma:    comma,
	})
	if err != nil {
		return nil, fmt.Errorf("create loader: %w", err)
	}
	return openWorkspace(ctx, m, fileLoader, logger)
}

func openWorkspace(ctx context.Context, m *Manifest, l loader.TabularLoader, logger *zap.Logger) (*Workspace, error) {
	store := repositories.NewMemoryStore()
	w := &Workspace{
		ProjectID:  uuid.New(),
		Manifest:   m,
		Tables:     services.NewTableService(store.Tables(), l, logger),
		Discovery:  services.NewDiscoveryService(store.Tables(), store.Links(), l, m.Validation, logger),
		Links:      services.NewLinkService(store.Tables(), store.Links(), logger),
		Validation: services.NewValidationService(store.Tables(), store.Links(), store.Rules(), l, services.NewLocalRunLocker(), m.Validation, logger),
		Rules:      services.NewRuleService(store.Tables(), store.Rules(), l, m.Validation, logger),
		byName:     make(map[string]*models.Table, len(m.Tables)),
	}

	for _, spec := range m.Tables {
		t, err := w.Tables.Register(ctx, w.ProjectID, services.RegisterTableRequest{
			Name:        spec.Name,
			Kind:        models.TableKind(spec.Kind),
			Location:    filepath.ToSlash(spec.Path),
			PrimaryKey:  spec.PrimaryKey,
			ScopeColumn: spec.ScopeColumn,
		})
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", spec.Path, err)
		}
		w.byName[t.Name] = t
	}

	for _, spec := range m.Links {
		if err := w.applyLink(ctx, spec); err != nil {
			return nil, fmt.Errorf("link %s -> %s: %w", spec.Checked, spec.Reference, err)
		}
	}

	for _, spec := range m.Rules {
		t, ok := w.byName[spec.Table]
		if !ok {
			return nil, fmt.Errorf("rule on %s.%s: unknown table", spec.Table, spec.Column)
		}
		params, err := spec.RawParams()
		if err != nil {
			return nil, err
		}
		_, err = w.Rules.Create(ctx, w.ProjectID, services.CreateRuleRequest{
			TableID:     t.ID,
			Column:      spec.Column,
			RuleType:    models.RuleType(spec.Type),
			Description: spec.Description,
			Params:      params,
		})
		if err != nil {
			return nil, fmt.Errorf("rule on %s.%s: %w", spec.Table, spec.Column, err)
		}
	}

	return w, nil
}

func (w *Workspace) applyLink(ctx context.Context, spec LinkSpec) error {
	checked, err := w.ResolveColumn(spec.Checked)
	if err != nil {
		return err
	}
	reference, err := w.ResolveColumn(spec.Reference)
	if err != nil {
		return err
	}
	req := services.CreateLinkRequest{
		CheckedColumnID:   checked.ID,
		ReferenceColumnID: reference.ID,
		IsKey:             spec.Key,
	}
	if spec.ForbiddenTable != "" {
		t, ok := w.byName[spec.ForbiddenTable]
		if !ok {
			return fmt.Errorf("unknown forbidden table %q", spec.ForbiddenTable)
		}
		req.ForbiddenTableID = &t.ID
	}
	if spec.CodebookTable != "" {
		t, ok := w.byName[spec.CodebookTable]
		if !ok {
			return fmt.Errorf("unknown codebook table %q", spec.CodebookTable)
		}
		req.CodebookTableID = &t.ID
	}
	_, err = w.Links.Create(ctx, w.ProjectID, req)
	return err
}

// ResolveColumn finds the column named by "table.column". The longest matching
// table name wins, so table names may themselves contain dots.
func (w *Workspace) ResolveColumn(ref string) (*models.Column, error) {
	names := make([]string, 0, len(w.byName))
	for name := range w.byName {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })

	for _, name := range names {
		if !strings.HasPrefix(ref, name+".") {
			continue
		}
		column := strings.TrimPrefix(ref, name+".")
		if c := w.byName[name].ColumnByName(column); c != nil {
			return c, nil
		}
		return nil, fmt.Errorf("table %s has no column %q", name, column)
	}
	return nil, fmt.Errorf("unknown column %q, expected table.column", ref)
}

// Table returns a registered table by name.
func (w *Workspace) Table(name string) (*models.Table, bool) {
	t, ok := w.byName[name]
	return t, ok
}
