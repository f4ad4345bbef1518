package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-linkage/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-linkage/pkg/models"
	"github.com/ekaya-inc/ekaya-linkage/pkg/repositories"
)

// CreateLinkRequest is a link drawn by the user rather than accepted from discovery.
type CreateLinkRequest struct {
	CheckedColumnID   uuid.UUID  `json:"checked_column_id"`
	ReferenceColumnID uuid.UUID  `json:"reference_column_id"`
	IsKey             bool       `json:"is_key"`
	ForbiddenTableID  *uuid.UUID `json:"forbidden_table_id,omitempty"`
	CodebookTableID   *uuid.UUID `json:"codebook_table_id,omitempty"`
}

// LinkService manages applied links.
type LinkService interface {
	// Create stores a manual link, replacing any link of the checked column.
	Create(ctx context.Context, projectID uuid.UUID, req CreateLinkRequest) (*models.Link, error)

	// List returns all links of a project.
	List(ctx context.Context, projectID uuid.UUID) ([]*models.Link, error)

	// Delete removes a link.
	Delete(ctx context.Context, projectID, linkID uuid.UUID) error
}

type linkService struct {
	tableRepo repositories.TableRepository
	linkRepo  repositories.LinkRepository
	logger    *zap.Logger
}

var _ LinkService = (*linkService)(nil)

// NewLinkService creates a new link service.
func NewLinkService(tableRepo repositories.TableRepository, linkRepo repositories.LinkRepository, logger *zap.Logger) LinkService {
	return &linkService{
		tableRepo: tableRepo,
		linkRepo:  linkRepo,
		logger:    logger.Named("links"),
	}
}

func (s *linkService) Create(ctx context.Context, projectID uuid.UUID, req CreateLinkRequest) (*models.Link, error) {
	if req.CheckedColumnID == req.ReferenceColumnID {
		return nil, fmt.Errorf("%w: column cannot reference itself", apperrors.ErrInvalidLink)
	}

	tables, err := s.tableRepo.ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	if findColumn(tables, req.CheckedColumnID) == nil {
		return nil, fmt.Errorf("%w: unknown checked column %s", apperrors.ErrInvalidLink, req.CheckedColumnID)
	}
	if findColumn(tables, req.ReferenceColumnID) == nil {
		return nil, fmt.Errorf("%w: unknown reference column %s", apperrors.ErrInvalidLink, req.ReferenceColumnID)
	}
	for _, id := range []*uuid.UUID{req.ForbiddenTableID, req.CodebookTableID} {
		if id != nil && findTable(tables, *id) == nil {
			return nil, fmt.Errorf("%w: unknown table %s", apperrors.ErrInvalidLink, *id)
		}
	}

	link := &models.Link{
		ProjectID:         projectID,
		CheckedColumnID:   req.CheckedColumnID,
		ReferenceColumnID: req.ReferenceColumnID,
		Metadata: models.LinkMetadata{
			IsKey:            req.IsKey,
			ForbiddenTableID: req.ForbiddenTableID,
			CodebookTableID:  req.CodebookTableID,
		},
	}
	if err := s.linkRepo.Apply(ctx, link); err != nil {
		return nil, fmt.Errorf("apply link: %w", err)
	}
	ref := req.ReferenceColumnID
	if err := s.tableRepo.SetLinkedTo(ctx, projectID, req.CheckedColumnID, &ref); err != nil {
		return nil, fmt.Errorf("record linked column: %w", err)
	}
	return link, nil
}

func (s *linkService) List(ctx context.Context, projectID uuid.UUID) ([]*models.Link, error) {
	links, err := s.linkRepo.ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	return links, nil
}

func (s *linkService) Delete(ctx context.Context, projectID, linkID uuid.UUID) error {
	links, err := s.linkRepo.ListByProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("list links: %w", err)
	}
	var checked uuid.UUID
	for _, l := range links {
		if l.ID == linkID {
			checked = l.CheckedColumnID
		}
	}
	if checked == uuid.Nil {
		return fmt.Errorf("link %s: %w", linkID, apperrors.ErrNotFound)
	}

	if err := s.linkRepo.Delete(ctx, projectID, linkID); err != nil {
		return fmt.Errorf("delete link: %w", err)
	}
	if err := s.tableRepo.SetLinkedTo(ctx, projectID, checked, nil); err != nil {
		return fmt.Errorf("clear linked column: %w", err)
	}
	return nil
}

func findTable(tables []*models.Table, id uuid.UUID) *models.Table {
	for _, t := range tables {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func findColumn(tables []*models.Table, id uuid.UUID) *models.Column {
	for _, t := range tables {
		if c := t.ColumnByID(id); c != nil {
			return c
		}
	}
	return nil
}
