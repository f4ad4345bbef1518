package services

import (
	"context"
	"fmt"

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

// DiscoveryResult is the outcome of a discovery run.
type DiscoveryResult struct {
	Suggestions []models.LinkSuggestion `json:"suggestions"`
	Warnings    []string                `json:"warnings"`
}

// DiscoveryService proposes links for a project and applies accepted suggestions.
type DiscoveryService interface {
	// Discover indexes every table of the project, refreshes column statistics
	// and returns link suggestions not already reflected by an applied link.
	Discover(ctx context.Context, projectID uuid.UUID, mode DiscoveryMode) (*DiscoveryResult, error)

	// Apply persists accepted suggestions as links. A later suggestion for the
	// same checked column replaces the earlier one.
	Apply(ctx context.Context, projectID uuid.UUID, suggestions []models.LinkSuggestion) ([]*models.Link, error)
}

type discoveryService struct {
	tableRepo repositories.TableRepository
	linkRepo  repositories.LinkRepository
	loader    loader.TabularLoader
	engine    *DiscoveryEngine
	cfg       config.ValidationConfig
	logger    *zap.Logger
}

var _ DiscoveryService = (*discoveryService)(nil)

// NewDiscoveryService creates a new discovery service.
func NewDiscoveryService(
	tableRepo repositories.TableRepository,
	linkRepo repositories.LinkRepository,
	l loader.TabularLoader,
	cfg config.ValidationConfig,
	logger *zap.Logger,
) DiscoveryService {
	return &discoveryService{
		tableRepo: tableRepo,
		linkRepo:  linkRepo,
		loader:    l,
		engine:    NewDiscoveryEngine(cfg, logger),
		cfg:       cfg,
		logger:    logger.Named("discovery"),
	}
}

func (s *discoveryService) Discover(ctx context.Context, projectID uuid.UUID, mode DiscoveryMode) (*DiscoveryResult, error) {
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

	rc := NewRunContext(s.loader, s.cfg.SampleLimit, s.logger)
	indexes := make([]*ValueIndex, len(tables))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers())
	for i, t := range tables {
		g.Go(func() error {
			vi, err := rc.Index(gctx, t)
			if err != nil {
				return err
			}
			indexes[i] = vi
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("index tables: %w", err)
	}

	for _, vi := range indexes {
		if err := s.tableRepo.UpdateStats(ctx, projectID, vi.Table.ID, vi.RowCount, vi.Stats()); err != nil {
			return nil, fmt.Errorf("update statistics of %s: %w", vi.Table.Name, err)
		}
	}

	suggestions := s.engine.Discover(indexes, withColumnLinks(links, tables), mode)

	s.logger.Info("Discovery finished",
		zap.String("project_id", projectID.String()),
		zap.String("mode", string(mode)),
		zap.Int("tables", len(tables)),
		zap.Int("suggestions", len(suggestions)))

	return &DiscoveryResult{
		Suggestions: suggestions,
		Warnings:    rc.Warnings(),
	}, nil
}

// withColumnLinks adds the LinkedToColumnID edges recorded on columns to the
// applied links, so both count as already reflected.
func withColumnLinks(links []*models.Link, tables []*models.Table) []*models.Link {
	out := append([]*models.Link{}, links...)
	for _, t := range tables {
		for _, c := range t.Columns {
			if c.LinkedToColumnID != nil {
				out = append(out, &models.Link{CheckedColumnID: c.ID, ReferenceColumnID: *c.LinkedToColumnID})
			}
		}
	}
	return out
}

func (s *discoveryService) Apply(ctx context.Context, projectID uuid.UUID, suggestions []models.LinkSuggestion) ([]*models.Link, error) {
	tables, err := s.tableRepo.ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	columns := make(map[uuid.UUID]*models.Column)
	for _, t := range tables {
		for _, c := range t.Columns {
			columns[c.ID] = c
		}
	}

	applied := make([]*models.Link, 0, len(suggestions))
	for i := range suggestions {
		sg := &suggestions[i]
		if sg.SourceColumnID == sg.TargetColumnID {
			return nil, fmt.Errorf("%w: suggestion %d links column %s to itself", apperrors.ErrInvalidLink, i, sg.TargetColumnID)
		}
		if columns[sg.TargetColumnID] == nil || columns[sg.SourceColumnID] == nil {
			return nil, fmt.Errorf("%w: suggestion %d references an unknown column", apperrors.ErrInvalidLink, i)
		}

		link := &models.Link{
			ProjectID:         projectID,
			CheckedColumnID:   sg.TargetColumnID,
			ReferenceColumnID: sg.SourceColumnID,
			Metadata:          sg.Metadata(),
		}
		if err := s.linkRepo.Apply(ctx, link); err != nil {
			return nil, fmt.Errorf("apply link: %w", err)
		}
		ref := sg.SourceColumnID
		if err := s.tableRepo.SetLinkedTo(ctx, projectID, sg.TargetColumnID, &ref); err != nil {
			return nil, fmt.Errorf("record linked column: %w", err)
		}

		// Key mappings and referenced columns become primary keys of their tables.
		if sg.IsKey || sg.Kind == models.SuggestionKindReference {
			pk := true
			if _, err := s.tableRepo.UpdateColumnFlags(ctx, projectID, sg.SourceColumnID, repositories.ColumnFlags{IsPrimaryKey: &pk}); err != nil {
				return nil, fmt.Errorf("mark primary key: %w", err)
			}
		}
		if sg.IsKey {
			pk := true
			if _, err := s.tableRepo.UpdateColumnFlags(ctx, projectID, sg.TargetColumnID, repositories.ColumnFlags{IsPrimaryKey: &pk}); err != nil {
				return nil, fmt.Errorf("mark primary key: %w", err)
			}
		}
		applied = append(applied, link)
	}

	s.logger.Info("Applied suggestions",
		zap.String("project_id", projectID.String()),
		zap.Int("links", len(applied)))

	return applied, nil
}

func (s *discoveryService) workers() int {
	if s.cfg.Workers > 0 {
		return s.cfg.Workers
	}
	return 1
}
