package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/atedays1/ate-days-homebase-sub000/internal/domain"
)

const documentColumns = `d.id, d.name, d.content_type, d.source_hash, d.size_bytes, d.created_at,
	(SELECT COUNT(*) FROM document_chunks c WHERE c.document_id = d.id)`

// DocumentRepository persists documents in SQLite.
type DocumentRepository struct {
	db querier
}

func (r *DocumentRepository) Create(ctx context.Context, d *domain.Document) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO documents (id, name, content_type, source_hash, size_bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID, d.Name, string(d.ContentType), d.SourceHash, d.SizeBytes, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents d WHERE d.id = ?`, id)
	return scanDocument(row)
}

func (r *DocumentRepository) GetByName(ctx context.Context, name string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents d WHERE d.name = ?`, name)
	return scanDocument(row)
}

// Delete removes the document and, through the foreign key, its chunks.
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func (r *DocumentRepository) List(ctx context.Context) ([]*domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents d ORDER BY d.created_at DESC, d.name`)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
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

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM documents WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying document names: %w", err)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var d domain.Document
	var contentType string
	err := row.Scan(&d.ID, &d.Name, &contentType, &d.SourceHash, &d.SizeBytes, &d.CreatedAt, &d.ChunkCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, err
	}
	d.ContentType = domain.ContentType(contentType)
	return &d, nil
}
