package repositories

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"example.com/pxr/services/ctoken/internal/models"
)

// RowHashRepository provides access to row hash and document data.
// The forwarding and ingestion services depend on this interface only,
// never on the query builder behind it.
type RowHashRepository interface {
	// WithTx runs fn inside a database transaction. The repository passed
	// to fn is scoped to that transaction; returning an error rolls the
	// whole transaction back.
	WithTx(ctx context.Context, fn func(RowHashRepository) error) error

	// InsertRow persists a row hash together with its documents.
	InsertRow(ctx context.Context, row *models.RowHash) error

	// FindUnsent returns up to count unsent, non-disabled rows starting at
	// offset, ordered by id ascending, with non-disabled documents loaded.
	FindUnsent(ctx context.Context, offset, count int) ([]models.RowHash, error)

	// CountUnsent returns the number of unsent, non-disabled rows.
	CountUnsent(ctx context.Context) (int64, error)

	// MarkSent flips the given rows to the sent status.
	MarkSent(ctx context.Context, ids []int64, updatedBy string) error

	// FindLatestRow returns the most recent row for the key, ordered by
	// created_at descending with nulls last, or nil when none exists.
	FindLatestRow(ctx context.Context, person, event, thing string) (*models.RowHash, error)

	// FindLatestDocument returns the most recent document with the given
	// identifier under a row, or nil when none exists.
	FindLatestDocument(ctx context.Context, rowHashID int64, docIdentifier string) (*models.Document, error)
}

// rowHashRepository is the GORM implementation of RowHashRepository.
type rowHashRepository struct {
	db *gorm.DB
}

// NewRowHashRepository creates a new row hash repository.
func NewRowHashRepository(db *gorm.DB) RowHashRepository {
	return &rowHashRepository{db: db}
}

// WithTx runs fn against a transaction-scoped repository.
func (r *rowHashRepository) WithTx(ctx context.Context, fn func(RowHashRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&rowHashRepository{db: tx})
	})
}

// InsertRow persists a row hash and its documents.
func (r *rowHashRepository) InsertRow(ctx context.Context, row *models.RowHash) error {
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return errors.Wrap(err, "failed to insert row hash")
	}
	return nil
}

// FindUnsent returns a window of unsent rows with their documents.
func (r *rowHashRepository) FindUnsent(ctx context.Context, offset, count int) ([]models.RowHash, error) {
	var rows []models.RowHash
	err := r.db.WithContext(ctx).
		Preload("Documents", "is_disabled = ?", false).
		Where("status = ? AND is_disabled = ?", models.StatusUnsent, false).
		Order("id ASC").
		Offset(offset).
		Limit(count).
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to find unsent rows")
	}
	return rows, nil
}

// CountUnsent counts the unsent rows.
func (r *rowHashRepository) CountUnsent(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.RowHash{}).
		Where("status = ? AND is_disabled = ?", models.StatusUnsent, false).
		Count(&count).Error
	if err != nil {
		return 0, errors.Wrap(err, "failed to count unsent rows")
	}
	return count, nil
}

// MarkSent marks the given rows as sent.
func (r *rowHashRepository) MarkSent(ctx context.Context, ids []int64, updatedBy string) error {
	if len(ids) == 0 {
		return nil
	}
	result := r.db.WithContext(ctx).
		Model(&models.RowHash{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"status":     models.StatusSent,
			"updated_by": updatedBy,
		})
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to mark rows as sent")
	}
	if result.RowsAffected != int64(len(ids)) {
		return errors.Errorf("expected to mark %d rows as sent, marked %d", len(ids), result.RowsAffected)
	}
	return nil
}

// FindLatestRow returns the latest row for a (person, event, thing) key.
func (r *rowHashRepository) FindLatestRow(ctx context.Context, person, event, thing string) (*models.RowHash, error) {
	var row models.RowHash
	err := r.db.WithContext(ctx).
		Where("person_identifier = ? AND event_identifier = ? AND thing_identifier = ?", person, event, thing).
		Order("created_at DESC NULLS LAST").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to find latest row")
	}
	return &row, nil
}

// FindLatestDocument returns the latest document with an identifier under a row.
func (r *rowHashRepository) FindLatestDocument(ctx context.Context, rowHashID int64, docIdentifier string) (*models.Document, error) {
	var doc models.Document
	err := r.db.WithContext(ctx).
		Where("row_hash_id = ? AND doc_identifier = ?", rowHashID, docIdentifier).
		Order("created_at DESC NULLS LAST").
		First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to find latest document")
	}
	return &doc, nil
}
