package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ekaya-inc/ekaya-linkage/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-linkage/pkg/config"
	"github.com/ekaya-inc/ekaya-linkage/pkg/loader"
	"github.com/ekaya-inc/ekaya-linkage/pkg/models"
	"github.com/ekaya-inc/ekaya-linkage/pkg/repositories"
	"github.com/ekaya-inc/ekaya-linkage/pkg/retry"
)

// ValidationService runs every check of a project and assembles the report.
type ValidationService interface {
	// Validate checks the project's TARGET tables. When tableIDs is non-empty only
	// those tables are checked. Domain findings never fail the call.
	Validate(ctx context.Context, projectID uuid.UUID, tableIDs []uuid.UUID) (*models.ValidationReport, error)
}

type validationService struct {
	tableRepo repositories.TableRepository
	linkRepo  repositories.LinkRepository
	ruleRepo  repositories.RuleRepository
	loader    loader.TabularLoader
	locker    RunLocker
	cfg       config.ValidationConfig
	logger    *zap.Logger
}

var _ ValidationService = (*validationService)(nil)

// NewValidationService creates a new validation service. A nil locker allows
// concurrent runs of the same project.
func NewValidationService(
	tableRepo repositories.TableRepository,
	linkRepo repositories.LinkRepository,
	ruleRepo repositories.RuleRepository,
	l loader.TabularLoader,
	locker RunLocker,
	cfg config.ValidationConfig,
	logger *zap.Logger,
) ValidationService {
	return &validationService{
		tableRepo: tableRepo,
		linkRepo:  linkRepo,
		ruleRepo:  ruleRepo,
		loader:    l,
		locker:    locker,
		cfg:       cfg,
		logger:    logger.Named("validation"),
	}
}

// checkUnit is one independently executed check. Each unit counts once in the summary.
type checkUnit struct {
	name string
	run  func(ctx context.Context, rc *RunContext) (*unitResult, error)
}

type unitResult struct {
	errors         []models.IntegrityError
	reconciliation []models.ReconciliationFinding
	forbidden      []models.ForbiddenError
	ruleFailures   []models.RuleFailure
	setupErrors    []apperrors.SetupError
	failed         bool
}

// projectModel indexes the metadata of one run.
type projectModel struct {
	tables  []*models.Table
	byTable map[uuid.UUID]*models.Table
	byCol   map[uuid.UUID]*models.Table
	cols    map[uuid.UUID]*models.Column
	linkOf  map[uuid.UUID]*models.Link
}

func newProjectModel(tables []*models.Table, links []*models.Link) *projectModel {
	m := &projectModel{
		tables:  tables,
		byTable: make(map[uuid.UUID]*models.Table, len(tables)),
		byCol:   make(map[uuid.UUID]*models.Table),
		cols:    make(map[uuid.UUID]*models.Column),
		linkOf:  make(map[uuid.UUID]*models.Link, len(links)),
	}
	for _, t := range tables {
		m.byTable[t.ID] = t
		for _, c := range t.Columns {
			m.byCol[c.ID] = t
			m.cols[c.ID] = c
		}
	}
	// Last write wins per checked column.
	for _, l := range links {
		m.linkOf[l.CheckedColumnID] = l
	}
	return m
}

func (s *validationService) Validate(ctx context.Context, projectID uuid.UUID, tableIDs []uuid.UUID) (*models.ValidationReport, error) {
	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, projectID)
		if err != nil {
			return nil, err
		}
		defer unlock()
	}

	tables, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() ([]*models.Table, error) {
		return s.tableRepo.ListByProject(ctx, projectID)
	})
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	links, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() ([]*models.Link, error) {
		return s.linkRepo.ListByProject(ctx, projectID)
	})
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	rules, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() ([]*models.ValidationRule, error) {
		return s.ruleRepo.ListByProject(ctx, projectID)
	})
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}

	report := models.NewValidationReport()
	model := newProjectModel(tables, links)

	inScope := make(map[uuid.UUID]bool)
	if len(tableIDs) > 0 {
		for _, id := range tableIDs {
			if model.byTable[id] == nil {
				report.Warnings = append(report.Warnings, fmt.Sprintf("Table %s is not registered", id))
				continue
			}
			inScope[id] = true
		}
	} else {
		for _, t := range tables {
			inScope[t.ID] = true
		}
	}

	units, setupErrors, warnings := s.planUnits(model, inScope, rules)
	report.SetupErrors = append(report.SetupErrors, setupErrors...)
	report.Warnings = append(report.Warnings, warnings...)

	rc := NewRunContext(s.loader, s.cfg.SampleLimit, s.logger)
	results := make([]*unitResult, len(units))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers())
	for i, u := range units {
		g.Go(func() error {
			res, err := u.run(gctx, rc)
			if err != nil {
				return fmt.Errorf("%s: %w", u.name, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("run checks: %w", err)
	}

	failed := len(setupErrors)
	for _, r := range results {
		report.Errors = append(report.Errors, r.errors...)
		report.Reconciliation = append(report.Reconciliation, r.reconciliation...)
		report.Forbidden = append(report.Forbidden, r.forbidden...)
		report.RuleFailures = append(report.RuleFailures, r.ruleFailures...)
		report.SetupErrors = append(report.SetupErrors, r.setupErrors...)
		if r.failed {
			failed++
		}
	}

	loadWarnings := rc.Warnings()
	sort.Strings(loadWarnings)
	report.Warnings = append(report.Warnings, loadWarnings...)

	report.Summary = models.ReportSummary{
		TotalChecks: len(units) + len(setupErrors),
		Failed:      failed,
	}
	report.Summary.Passed = report.Summary.TotalChecks - failed

	s.logger.Info("Validation finished",
		zap.String("project_id", projectID.String()),
		zap.Int("checks", report.Summary.TotalChecks),
		zap.Int("failed", report.Summary.Failed),
		zap.Int("warnings", len(report.Warnings)))

	return report, nil
}

// reconPair collects the links between one checked table and one source table.
type reconPair struct {
	target *models.Table
	source *models.Table
	key    *models.Link
	values []*models.Link
}

// planUnits classifies links into checks. Links that cannot be resolved become
// setup errors here and count as failed checks.
func (s *validationService) planUnits(m *projectModel, inScope map[uuid.UUID]bool, rules []*models.ValidationRule) ([]checkUnit, []apperrors.SetupError, []string) {
	var units []checkUnit
	var setupErrors []apperrors.SetupError
	var warnings []string

	var pairs []*reconPair
	pairIdx := make(map[[2]uuid.UUID]*reconPair)

	checkedLinks := make([]*models.Link, 0, len(m.linkOf))
	for _, t := range m.tables {
		for _, c := range t.Columns {
			if l, ok := m.linkOf[c.ID]; ok {
				checkedLinks = append(checkedLinks, l)
			}
		}
	}

	for _, l := range checkedLinks {
		target := m.byCol[l.CheckedColumnID]
		if target.Kind != models.TableKindTarget || !inScope[target.ID] {
			continue
		}
		checked := m.cols[l.CheckedColumnID]

		ref := m.cols[l.ReferenceColumnID]
		refTable := m.byCol[l.ReferenceColumnID]
		if ref == nil {
			setupErrors = append(setupErrors, apperrors.SetupError{
				Pair:    target.Name + "." + checked.Name,
				Kind:    apperrors.SetupMissingTable,
				Message: fmt.Sprintf("Reference of %s.%s no longer exists", target.Name, checked.Name),
			})
			continue
		}

		switch refTable.Kind {
		case models.TableKindSource:
			key := [2]uuid.UUID{target.ID, refTable.ID}
			p, ok := pairIdx[key]
			if !ok {
				p = &reconPair{target: target, source: refTable}
				pairIdx[key] = p
				pairs = append(pairs, p)
			}
			if l.Metadata.IsKey && p.key == nil {
				p.key = l
			} else {
				p.values = append(p.values, l)
			}
		case models.TableKindTarget, models.TableKindRange:
			units = append(units, s.integrityUnit(target, checked, refTable, ref))
		case models.TableKindForbidden:
			units = append(units, s.forbiddenUnit(target, checked, refTable, ref))
		}

		if id := l.Metadata.ForbiddenTableID; id != nil {
			bl := m.byTable[*id]
			if bl == nil {
				setupErrors = append(setupErrors, missingTableError(target, checked, *id))
			} else if col := bl.LookupColumn(); col == nil {
				setupErrors = append(setupErrors, missingKeyError(target, bl))
			} else if refTable.Kind != models.TableKindForbidden || bl.ID != refTable.ID {
				units = append(units, s.forbiddenUnit(target, checked, bl, col))
			}
		}

		// Codebooks outside a reconciliation pair are checked as plain allow-lists.
		if id := l.Metadata.CodebookTableID; id != nil && refTable.Kind != models.TableKindSource {
			cb := m.byTable[*id]
			if cb == nil {
				setupErrors = append(setupErrors, missingTableError(target, checked, *id))
			} else if col := cb.LookupColumn(); col == nil {
				setupErrors = append(setupErrors, missingKeyError(target, cb))
			} else {
				units = append(units, s.integrityUnit(target, checked, cb, col))
			}
		}
	}

	for _, p := range pairs {
		in, errs := s.reconcilePlan(m, p)
		setupErrors = append(setupErrors, errs...)
		units = append(units, s.reconcileUnit(in))
	}

	for _, rule := range rules {
		table := m.byTable[rule.TableID]
		if table == nil || !inScope[table.ID] {
			continue
		}
		if rule.Predicate == nil {
			warnings = append(warnings, fmt.Sprintf("Rule %s on %s.%s skipped: invalid parameters", rule.ID, table.Name, rule.Column))
			continue
		}
		units = append(units, s.ruleUnit(table, rule))
	}

	return units, setupErrors, warnings
}

func missingTableError(target *models.Table, checked *models.Column, id uuid.UUID) apperrors.SetupError {
	return apperrors.SetupError{
		Pair:    target.Name + "." + checked.Name,
		Kind:    apperrors.SetupMissingTable,
		Message: fmt.Sprintf("Table %s referenced by %s.%s does not exist", id, target.Name, checked.Name),
	}
}

func missingKeyError(target, keyTable *models.Table) apperrors.SetupError {
	return apperrors.SetupError{
		Pair:    PairName(target.Name, keyTable.Name),
		Kind:    apperrors.SetupMissingKey,
		Message: fmt.Sprintf("No Primary Key defined for %s", keyTable.Name),
	}
}

// boundColumn is a column together with the table whose file holds it.
type boundColumn struct {
	table  *models.Table
	column *models.Column
}

// missingColumnErrors reports linked columns that are absent from their loaded
// files, one setup error per table.
func missingColumnErrors(ctx context.Context, rc *RunContext, pair string, cols ...boundColumn) ([]apperrors.SetupError, error) {
	var order []*models.Table
	byTable := make(map[uuid.UUID][]*models.Column)
	for _, bc := range cols {
		if bc.column == nil {
			continue
		}
		if _, ok := byTable[bc.table.ID]; !ok {
			order = append(order, bc.table)
		}
		byTable[bc.table.ID] = append(byTable[bc.table.ID], bc.column)
	}

	var errs []apperrors.SetupError
	for _, t := range order {
		missing, err := rc.MissingColumns(ctx, t, byTable[t.ID]...)
		if err != nil {
			return nil, err
		}
		if len(missing) == 0 {
			continue
		}
		names := make([]string, 0, len(missing))
		seen := make(map[string]bool, len(missing))
		for _, c := range missing {
			if !seen[c.Name] {
				seen[c.Name] = true
				names = append(names, c.Name)
			}
		}
		errs = append(errs, apperrors.SetupError{
			Pair: pair,
			Kind: apperrors.SetupMissingColumn,
			Message: fmt.Sprintf("Table %s is missing %s in its file: %s",
				t.Name, CountNoun(len(names), "column"), strings.Join(names, ", ")),
		})
	}
	return errs, nil
}

// reconcilePlan resolves the column pairs, codebooks and scope filter of a pair.
// The row data is attached when the unit runs.
func (s *validationService) reconcilePlan(m *projectModel, p *reconPair) (*reconcilePlan, []apperrors.SetupError) {
	plan := &reconcilePlan{
		in: ReconcileInput{Source: p.source, Target: p.target},
	}
	var errs []apperrors.SetupError

	if p.key != nil {
		plan.in.Key = &ColumnPair{
			Source: m.cols[p.key.ReferenceColumnID],
			Target: m.cols[p.key.CheckedColumnID],
		}
	}

	for _, l := range p.values {
		cp := ColumnPair{
			Source: m.cols[l.ReferenceColumnID],
			Target: m.cols[l.CheckedColumnID],
		}
		if id := l.Metadata.CodebookTableID; id != nil {
			cb := m.byTable[*id]
			if cb == nil {
				errs = append(errs, missingTableError(p.target, cp.Target, *id))
			} else if cb.LookupColumn() == nil {
				errs = append(errs, missingKeyError(p.target, cb))
			} else {
				plan.codebooks = append(plan.codebooks, codebookRef{pairIndex: len(plan.in.Values), table: cb, column: cb.LookupColumn()})
			}
		}
		plan.in.Values = append(plan.in.Values, cp)
	}

	if scopeCol := p.source.ScopeColumn(); scopeCol != nil {
		if l, ok := m.linkOf[scopeCol.ID]; ok && m.cols[l.ReferenceColumnID] != nil {
			plan.scope = &scopeRef{
				column:    scopeCol,
				refTable:  m.byCol[l.ReferenceColumnID],
				refColumn: m.cols[l.ReferenceColumnID],
			}
		}
	}

	return plan, errs
}

type codebookRef struct {
	pairIndex int
	table     *models.Table
	column    *models.Column
}

type scopeRef struct {
	column    *models.Column
	refTable  *models.Table
	refColumn *models.Column
}

type reconcilePlan struct {
	in        ReconcileInput
	codebooks []codebookRef
	scope     *scopeRef
}

// columns lists every column the pair reads, grouped by the table holding it.
func (p *reconcilePlan) columns() []boundColumn {
	in := p.in
	cols := []boundColumn{
		{table: in.Source, column: in.Key.Source},
		{table: in.Target, column: in.Key.Target},
	}
	for _, cp := range in.Values {
		cols = append(cols, boundColumn{table: in.Source, column: cp.Source}, boundColumn{table: in.Target, column: cp.Target})
	}
	for _, cb := range p.codebooks {
		cols = append(cols, boundColumn{table: cb.table, column: cb.column})
	}
	if p.scope != nil {
		cols = append(cols,
			boundColumn{table: in.Source, column: p.scope.column},
			boundColumn{table: p.scope.refTable, column: p.scope.refColumn})
	}
	return cols
}

func (s *validationService) reconcileUnit(plan *reconcilePlan) checkUnit {
	return checkUnit{
		name: "reconcile " + PairName(plan.in.Target.Name, plan.in.Source.Name),
		run: func(ctx context.Context, rc *RunContext) (*unitResult, error) {
			in := plan.in
			in.Values = append([]ColumnPair{}, plan.in.Values...)

			if in.Key != nil {
				setupErrs, err := missingColumnErrors(ctx, rc, PairName(in.Target.Name, in.Source.Name), plan.columns()...)
				if err != nil {
					return nil, err
				}
				if len(setupErrs) > 0 {
					return &unitResult{setupErrors: setupErrs, failed: true}, nil
				}
				if in.SourceRows, err = rc.Rows(ctx, in.Source); err != nil {
					return nil, err
				}
				if in.TargetRows, err = rc.Rows(ctx, in.Target); err != nil {
					return nil, err
				}
			}
			for _, cb := range plan.codebooks {
				values, err := rc.ValueSet(ctx, cb.table, cb.column)
				if err != nil {
					return nil, err
				}
				in.Values[cb.pairIndex].Codebook = &Codebook{
					Ref:    ColumnRef{Table: cb.table.Name, Column: cb.column.Name},
					Values: values,
				}
			}
			if plan.scope != nil {
				allowed, err := rc.ValueSet(ctx, plan.scope.refTable, plan.scope.refColumn)
				if err != nil {
					return nil, err
				}
				in.Scope = &ScopeFilter{Column: plan.scope.column, Allowed: allowed}
			}

			res := Reconcile(in)
			return &unitResult{
				reconciliation: res.Findings,
				setupErrors:    res.SetupErrors,
				failed:         res.Failed(),
			}, nil
		},
	}
}

func (s *validationService) integrityUnit(fkTable *models.Table, fkCol *models.Column, pkTable *models.Table, pkCol *models.Column) checkUnit {
	return checkUnit{
		name: fmt.Sprintf("integrity %s.%s -> %s.%s", fkTable.Name, fkCol.Name, pkTable.Name, pkCol.Name),
		run: func(ctx context.Context, rc *RunContext) (*unitResult, error) {
			setupErrs, err := missingColumnErrors(ctx, rc, fkTable.Name+"."+fkCol.Name,
				boundColumn{table: fkTable, column: fkCol}, boundColumn{table: pkTable, column: pkCol})
			if err != nil {
				return nil, err
			}
			if len(setupErrs) > 0 {
				return &unitResult{setupErrors: setupErrs, failed: true}, nil
			}

			fkValues, err := rc.ColumnValues(ctx, fkTable, fkCol)
			if err != nil {
				return nil, err
			}
			pkValues, err := rc.ValueSet(ctx, pkTable, pkCol)
			if err != nil {
				return nil, err
			}
			res := &unitResult{}
			if e := CheckIntegrity(
				ColumnRef{Table: fkTable.Name, Column: fkCol.Name}, fkValues,
				ColumnRef{Table: pkTable.Name, Column: pkCol.Name}, pkValues,
				s.cfg.MaxShownValues,
			); e != nil {
				res.errors = []models.IntegrityError{*e}
				res.failed = true
			}
			return res, nil
		},
	}
}

func (s *validationService) forbiddenUnit(table *models.Table, col *models.Column, blTable *models.Table, blCol *models.Column) checkUnit {
	return checkUnit{
		name: fmt.Sprintf("forbidden %s.%s in %s.%s", table.Name, col.Name, blTable.Name, blCol.Name),
		run: func(ctx context.Context, rc *RunContext) (*unitResult, error) {
			setupErrs, err := missingColumnErrors(ctx, rc, table.Name+"."+col.Name,
				boundColumn{table: table, column: col}, boundColumn{table: blTable, column: blCol})
			if err != nil {
				return nil, err
			}
			if len(setupErrs) > 0 {
				return &unitResult{setupErrors: setupErrs, failed: true}, nil
			}

			values, err := rc.ColumnValues(ctx, table, col)
			if err != nil {
				return nil, err
			}
			blacklist, err := rc.ValueSet(ctx, blTable, blCol)
			if err != nil {
				return nil, err
			}
			res := &unitResult{}
			if e := CheckForbidden(
				ColumnRef{Table: table.Name, Column: col.Name}, values,
				ColumnRef{Table: blTable.Name, Column: blCol.Name}, blacklist,
				s.cfg.MaxShownValues,
			); e != nil {
				res.forbidden = []models.ForbiddenError{*e}
				res.failed = true
			}
			return res, nil
		},
	}
}

func (s *validationService) ruleUnit(table *models.Table, rule *models.ValidationRule) checkUnit {
	return checkUnit{
		name: fmt.Sprintf("rule %s on %s.%s", rule.RuleType, table.Name, rule.Column),
		run: func(ctx context.Context, rc *RunContext) (*unitResult, error) {
			failure, setupErr, err := evaluateRuleOnTable(ctx, rc, table, rule, s.cfg.MaxRuleSamples)
			if err != nil {
				return nil, err
			}
			res := &unitResult{}
			if setupErr != nil {
				res.setupErrors = []apperrors.SetupError{*setupErr}
				res.failed = true
			}
			if failure != nil {
				res.ruleFailures = []models.RuleFailure{*failure}
				res.failed = true
			}
			return res, nil
		},
	}
}

// evaluateRuleOnTable loads the columns a rule reads and evaluates it. A rule
// naming a column the table lacks yields a setup error; a passing rule yields
// neither a failure nor a setup error.
func evaluateRuleOnTable(ctx context.Context, rc *RunContext, table *models.Table, rule *models.ValidationRule, maxSamples int) (*models.RuleFailure, *apperrors.SetupError, error) {
	cols := make([]*models.Column, 0, 2)
	for _, name := range rule.ReferencedColumns() {
		col := table.ColumnByName(name)
		if col == nil {
			return nil, &apperrors.SetupError{
				Pair:    table.Name + "." + rule.Column,
				Kind:    apperrors.SetupMissingColumn,
				Message: fmt.Sprintf("Rule %s references unknown column %s.%s", rule.ID, table.Name, name),
			}, nil
		}
		cols = append(cols, col)
	}

	missing, err := rc.MissingColumns(ctx, table, cols...)
	if err != nil {
		return nil, nil, err
	}
	if len(missing) > 0 {
		return nil, &apperrors.SetupError{
			Pair:    table.Name + "." + rule.Column,
			Kind:    apperrors.SetupMissingColumn,
			Message: fmt.Sprintf("Rule %s reads column %s.%s that is missing in its file", rule.ID, table.Name, missing[0].Name),
		}, nil
	}

	columns := make(map[string][]string, len(cols))
	for _, col := range cols {
		values, err := rc.ColumnValues(ctx, table, col)
		if err != nil {
			return nil, nil, err
		}
		columns[col.Name] = values
	}

	outcome, err := EvaluateRule(rule, columns, maxSamples)
	if err != nil {
		return nil, nil, err
	}
	if outcome.FailedCount == 0 {
		return nil, nil, nil
	}
	return &models.RuleFailure{
		RuleID:      rule.ID,
		Table:       table.Name,
		Column:      rule.Column,
		RuleType:    rule.RuleType,
		Description: rule.Description,
		FailedCount: outcome.FailedCount,
		Samples:     outcome.Samples,
	}, nil, nil
}

func (s *validationService) workers() int {
	if s.cfg.Workers > 0 {
		return s.cfg.Workers
	}
	return 1
}
