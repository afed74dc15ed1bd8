package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atedays1/ate-days-homebase-sub000/internal/domain"
)

const documentColumns = `d.id, d.name, d.content_type, d.source_hash, d.size_bytes, d.created_at,
	(SELECT COUNT(*) FROM document_chunks c WHERE c.document_id = d.id)`

type DocumentRepository struct {
	db dbtx
}

func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: pool}
}

func NewDocumentRepositoryWithTx(tx pgx.Tx) *DocumentRepository {
	return &DocumentRepository{db: tx}
}

func (r *DocumentRepository) Create(ctx context.Context, d *domain.Document) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO documents (id, name, content_type, source_hash, size_bytes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		d.ID, d.Name, d.ContentType, d.SourceHash, d.SizeBytes, d.CreatedAt,
	)
	return err
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents d WHERE d.id = $1`,
		id,
	)
	return scanDocument(row)
}

func (r *DocumentRepository) GetByName(ctx context.Context, name string) (*domain.Document, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents d WHERE d.name = $1`,
		name,
	)
	return scanDocument(row)
}

// Delete removes the document; its chunks go with it via ON DELETE CASCADE.
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func (r *DocumentRepository) List(ctx context.Context) ([]*domain.Document, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+documentColumns+` FROM documents d ORDER BY d.created_at DESC, d.name`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]*domain.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, d)
	}
	return results, rows.Err()
}

func (r *DocumentRepository) NamesByIDs(ctx context.Context, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	rows, err := r.db.Query(ctx, `SELECT id, name FROM documents WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		names[id] = name
	}
	return names, rows.Err()
}

func scanDocument(row pgx.Row) (*domain.Document, error) {
	var d domain.Document
	var contentType string
	err := row.Scan(&d.ID, &d.Name, &contentType, &d.SourceHash, &d.SizeBytes, &d.CreatedAt, &d.ChunkCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, err
	}
	d.ContentType = domain.ContentType(contentType)
	return &d, nil
}
