package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-linkage/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-linkage/pkg/database"
	"github.com/ekaya-inc/ekaya-linkage/pkg/models"
)

// LinkRepository defines data access for accepted links.
type LinkRepository interface {
	// ListByProject returns all links of a project.
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Link, error)

	// GetByCheckedColumn returns the link of a checked column, or nil if it has none.
	GetByCheckedColumn(ctx context.Context, projectID, columnID uuid.UUID) (*models.Link, error)

	// Apply creates or replaces the link of link.CheckedColumnID. The stored ID
	// and timestamp are written back into link.
	Apply(ctx context.Context, link *models.Link) error

	// Delete removes a link.
	Delete(ctx context.Context, projectID, linkID uuid.UUID) error
}

type linkRepository struct{}

var _ LinkRepository = (*linkRepository)(nil)

// NewLinkRepository creates a PostgreSQL link repository.
func NewLinkRepository() LinkRepository {
	return &linkRepository{}
}

const linkSelect = `
	SELECT id, project_id, checked_column_id, reference_column_id,
	       is_key, forbidden_table_id, codebook_table_id, auto_discovered, score, updated_at
	FROM linkage_links`

func (r *linkRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Link, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	rows, err := scope.Conn.Query(ctx, linkSelect+`
		WHERE project_id = $1
		ORDER BY updated_at ASC, id ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	defer rows.Close()

	links := make([]*models.Link, 0)
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating links: %w", err)
	}
	return links, nil
}

func (r *linkRepository) GetByCheckedColumn(ctx context.Context, projectID, columnID uuid.UUID) (*models.Link, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	l, err := scanLink(scope.Conn.QueryRow(ctx, linkSelect+`
		WHERE project_id = $1 AND checked_column_id = $2`, projectID, columnID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get link: %w", err)
	}
	return l, nil
}

func (r *linkRepository) Apply(ctx context.Context, link *models.Link) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	if link.ID == uuid.Nil {
		link.ID = uuid.New()
	}
	m := link.Metadata

	err := scope.Conn.QueryRow(ctx, `
		INSERT INTO linkage_links (id, project_id, checked_column_id, reference_column_id,
		                           is_key, forbidden_table_id, codebook_table_id, auto_discovered, score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (checked_column_id) DO UPDATE SET
			reference_column_id = EXCLUDED.reference_column_id,
			is_key = EXCLUDED.is_key,
			forbidden_table_id = EXCLUDED.forbidden_table_id,
			codebook_table_id = EXCLUDED.codebook_table_id,
			auto_discovered = EXCLUDED.auto_discovered,
			score = EXCLUDED.score,
			updated_at = now()
		RETURNING id, updated_at`,
		link.ID, link.ProjectID, link.CheckedColumnID, link.ReferenceColumnID,
		m.IsKey, m.ForbiddenTableID, m.CodebookTableID, m.AutoDiscovered, m.Score,
	).Scan(&link.ID, &link.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to apply link: %w", err)
	}
	return nil
}

func (r *linkRepository) Delete(ctx context.Context, projectID, linkID uuid.UUID) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	tag, err := scope.Conn.Exec(ctx, `
		DELETE FROM linkage_links WHERE project_id = $1 AND id = $2`, projectID, linkID)
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("link %s: %w", linkID, apperrors.ErrNotFound)
	}
	return nil
}

func scanLink(row pgx.Row) (*models.Link, error) {
	var l models.Link
	err := row.Scan(&l.ID, &l.ProjectID, &l.CheckedColumnID, &l.ReferenceColumnID,
		&l.Metadata.IsKey, &l.Metadata.ForbiddenTableID, &l.Metadata.CodebookTableID,
		&l.Metadata.AutoDiscovered, &l.Metadata.Score, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}
