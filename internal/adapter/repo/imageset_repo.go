package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"genbot/internal/domain"
)

// ImageSetRepositoryPG implements domain.ImageSetRepository backed by
// PostgreSQL. Set deletion cascades to its image rows in the schema.
type ImageSetRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewImageSetRepository creates a new ImageSetRepositoryPG.
func NewImageSetRepository(pool *pgxpool.Pool) *ImageSetRepositoryPG {
	return &ImageSetRepositoryPG{pool: pool}
}

// Create opens a new named set for the owner.
func (r *ImageSetRepositoryPG) Create(ctx context.Context, ownerID int64, name string) (*domain.ImageSet, error) {
	query := `
INSERT INTO image_sets (owner_id, name)
VALUES ($1, $2)
RETURNING id, owner_id, name, created_at;
`
	var set domain.ImageSet
	if err := r.pool.QueryRow(ctx, query, ownerID, name).Scan(&set.ID, &set.OwnerID, &set.Name, &set.CreatedAt); err != nil {
		return nil, err
	}
	return &set, nil
}

// GetByID fetches a set, scoped to its owner.
func (r *ImageSetRepositoryPG) GetByID(ctx context.Context, id, ownerID int64) (*domain.ImageSet, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, owner_id, name, created_at FROM image_sets WHERE id = $1 AND owner_id = $2`, id, ownerID)
	var set domain.ImageSet
	if err := row.Scan(&set.ID, &set.OwnerID, &set.Name, &set.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &set, nil
}

// ListByOwner returns the owner's sets in creation order.
func (r *ImageSetRepositoryPG) ListByOwner(ctx context.Context, ownerID int64) ([]domain.ImageSet, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, owner_id, name, created_at FROM image_sets WHERE owner_id = $1 ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sets []domain.ImageSet
	for rows.Next() {
		var set domain.ImageSet
		if err := rows.Scan(&set.ID, &set.OwnerID, &set.Name, &set.CreatedAt); err != nil {
			return nil, err
		}
		sets = append(sets, set)
	}
	return sets, rows.Err()
}

// Delete removes the set and, via the schema cascade, its image rows.
func (r *ImageSetRepositoryPG) Delete(ctx context.Context, id, ownerID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM image_sets WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AddImage appends one image to the set.
func (r *ImageSetRepositoryPG) AddImage(ctx context.Context, setID int64, filePath, contentHash string) (*domain.SetImage, error) {
	query := `
INSERT INTO set_images (set_id, file_path, content_hash)
VALUES ($1, $2, $3)
RETURNING id, set_id, file_path, content_hash, created_at;
`
	var img domain.SetImage
	if err := r.pool.QueryRow(ctx, query, setID, filePath, contentHash).Scan(&img.ID, &img.SetID, &img.FilePath, &img.ContentHash, &img.CreatedAt); err != nil {
		return nil, err
	}
	return &img, nil
}

// ListImages returns the set's images in creation order.
func (r *ImageSetRepositoryPG) ListImages(ctx context.Context, setID int64) ([]domain.SetImage, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, set_id, file_path, content_hash, created_at FROM set_images WHERE set_id = $1 ORDER BY created_at, id`, setID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []domain.SetImage
	for rows.Next() {
		var img domain.SetImage
		if err := rows.Scan(&img.ID, &img.SetID, &img.FilePath, &img.ContentHash, &img.CreatedAt); err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// UpdateImagePath repairs a dangling stored path.
func (r *ImageSetRepositoryPG) UpdateImagePath(ctx context.Context, imageID int64, filePath string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE set_images SET file_path = $2 WHERE id = $1`, imageID, filePath)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
