package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"example.com/pxr/services/ctoken/internal/cmatrix"
	"example.com/pxr/services/ctoken/internal/metrics"
	"example.com/pxr/services/ctoken/internal/models"
	"example.com/pxr/services/ctoken/internal/notifier"
	"example.com/pxr/services/ctoken/internal/repositories"
	"example.com/pxr/services/ctoken/internal/tracing"
)

// notifyTimeout bounds the post-commit store-event notification.
const notifyTimeout = 30 * time.Second

// CTokenService persists Local-CToken submissions as flat row hashes and
// notifies the book-management service after commit.
type CTokenService struct {
	repo     repositories.RowHashRepository
	notifier notifier.Notifier
	metrics  *metrics.Metrics
	tracer   tracing.Tracer
}

// NewCTokenService creates a new Local-CToken service.
func NewCTokenService(
	repo repositories.RowHashRepository,
	bookNotifier notifier.Notifier,
	metricsCollector *metrics.Metrics,
	tracer tracing.Tracer,
) *CTokenService {
	return &CTokenService{
		repo:     repo,
		notifier: bookNotifier,
		metrics:  metricsCollector,
		tracer:   tracer,
	}
}

// StoreSubmission persists all three channels of a submission inside one
// transaction: one unsent row per (event, thing) pairing for add and
// update, and for delete a reconstruction of the prior state followed by an
// identifier-only delete row. After the transaction commits the
// book-management service is notified asynchronously; a failed notification
// is logged and never affects the committed rows.
func (s *CTokenService) StoreSubmission(ctx context.Context, sub *cmatrix.Submission, operator string) error {
	txn := s.tracer.StartTransaction("store-local-ctoken")
	defer s.tracer.EndTransaction(txn)

	var deleteRecords []notifier.DeleteRecord
	err := s.repo.WithTx(ctx, func(tx repositories.RowHashRepository) error {
		if err := s.insertMatrices(ctx, tx, sub.Add, models.RowTypeAdd, operator); err != nil {
			return err
		}
		if err := s.insertMatrices(ctx, tx, sub.Update, models.RowTypeUpdate, operator); err != nil {
			return err
		}
		records, err := s.insertDeletes(ctx, tx, sub.Delete, operator)
		if err != nil {
			return err
		}
		deleteRecords = records
		return nil
	})
	if err != nil {
		s.tracer.RecordError(txn, err)
		s.metrics.IncrementCounter("submissions_failed")
		return NewServiceError(KindSaveFailed, err)
	}

	s.metrics.IncrementCounter("submissions_stored")

	// Post-commit store-event notification, fire-and-forget.
	payload := &notifier.StoreEventNotification{
		Add:    sub.Add,
		Update: sub.Update,
		Delete: deleteRecords,
	}
	go func() {
		nctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := s.notifier.NotifyStoreEvent(nctx, payload); err != nil {
			log.Error().Err(err).Msg("Failed to notify book-manage of store event")
			s.metrics.IncrementCounter("store_event_notifications_failed")
		}
	}()

	return nil
}

// insertMatrices creates one unsent row per (event, thing) pairing. Every
// row of a group carries the group's full document set.
func (s *CTokenService) insertMatrices(
	ctx context.Context,
	tx repositories.RowHashRepository,
	matrices []cmatrix.Matrix,
	rowType models.RowType,
	operator string,
) error {
	for i := range matrices {
		matrix := &matrices[i]
		for t := range matrix.Thing {
			row := rowFromMatrix(matrix, &matrix.Thing[t], rowType, operator)
			if err := tx.InsertRow(ctx, row); err != nil {
				return err
			}
			s.metrics.IncrementCounter("rows_ingested")
		}
	}
	return nil
}

// insertDeletes reconstructs the latest prior state for every deletion key,
// then persists an identifier-only delete row. Missing prior rows or
// documents are tolerated and simply leave gaps in the reconstruction.
func (s *CTokenService) insertDeletes(
	ctx context.Context,
	tx repositories.RowHashRepository,
	matrices []cmatrix.DeleteMatrix,
	operator string,
) ([]notifier.DeleteRecord, error) {
	records := make([]notifier.DeleteRecord, 0, len(matrices))

	for i := range matrices {
		matrix := &matrices[i]
		var (
			deletedDocs   []notifier.DeletedDocument
			deletedThings []notifier.DeletedThing
			deletedEvent  *notifier.DeletedEvent
		)

		for t := range matrix.Thing {
			thing := &matrix.Thing[t]
			prior, err := tx.FindLatestRow(ctx, matrix.UserID, matrix.Event.EventIdentifier, thing.ThingIdentifier)
			if err != nil {
				return nil, err
			}
			if prior != nil {
				docs, err := s.reconstructDocuments(ctx, tx, prior.ID, matrix.Document)
				if err != nil {
					return nil, err
				}
				deletedDocs = append(deletedDocs, docs...)
				deletedThings = append(deletedThings, deletedThingFromRow(prior))
				if deletedEvent == nil {
					deletedEvent = deletedEventFromRow(prior)
				}
			}

			row := deleteRowFromMatrix(matrix, thing.ThingIdentifier, operator)
			if err := tx.InsertRow(ctx, row); err != nil {
				return nil, err
			}
			s.metrics.IncrementCounter("rows_ingested")
		}

		records = append(records, notifier.DeleteRecord{
			UserID:   matrix.UserID,
			Document: deletedDocs,
			Event:    deletedEvent,
			Thing:    deletedThings,
		})
	}

	return records, nil
}

// reconstructDocuments looks up the latest document for every requested
// identifier under the prior row. Absent documents are skipped.
func (s *CTokenService) reconstructDocuments(
	ctx context.Context,
	tx repositories.RowHashRepository,
	priorRowID int64,
	requested []cmatrix.DeleteDocument,
) ([]notifier.DeletedDocument, error) {
	var docs []notifier.DeletedDocument
	for _, req := range requested {
		doc, err := tx.FindLatestDocument(ctx, priorRowID, req.DocIdentifier)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			continue
		}
		docs = append(docs, notifier.DeletedDocument{
			SerialNumber:         doc.ID,
			DocIdentifier:        doc.DocIdentifier,
			DocCatalogCode:       doc.DocCatalogCode,
			DocCatalogVersion:    doc.DocCatalogVersion,
			DocCreateAt:          doc.DocCreateAt,
			DocActorCode:         doc.DocActorCode,
			DocActorVersion:      doc.DocActorVersion,
			DocAppCatalogCode:    doc.DocAppCatalogCode,
			DocAppCatalogVersion: doc.DocAppCatalogVersion,
		})
	}
	return docs, nil
}

// rowFromMatrix builds a full-field unsent row for one (event, thing) pair.
func rowFromMatrix(matrix *cmatrix.Matrix, thing *cmatrix.Thing, rowType models.RowType, operator string) *models.RowHash {
	documents := make([]models.Document, 0, len(matrix.Document))
	for _, doc := range matrix.Document {
		documents = append(documents, models.Document{
			DocIdentifier:        doc.DocIdentifier,
			DocCatalogCode:       doc.DocCatalogCode,
			DocCatalogVersion:    doc.DocCatalogVersion,
			DocCreateAt:          doc.DocCreateAt,
			DocActorCode:         doc.DocActorCode,
			DocActorVersion:      doc.DocActorVersion,
			DocAppCatalogCode:    doc.DocAppCatalogCode,
			DocAppCatalogVersion: doc.DocAppCatalogVersion,
			CreatedBy:            operator,
			UpdatedBy:            operator,
		})
	}

	return &models.RowHash{
		Type:             rowType,
		Status:           models.StatusUnsent,
		PersonIdentifier: matrix.UserID,

		EventIdentifier:        matrix.Event.EventIdentifier,
		EventCatalogCode:       matrix.Event.EventCatalogCode,
		EventCatalogVersion:    matrix.Event.EventCatalogVersion,
		EventStartAt:           matrix.Event.EventStartAt,
		EventEndAt:             matrix.Event.EventEndAt,
		EventActorCode:         matrix.Event.EventActorCode,
		EventActorVersion:      matrix.Event.EventActorVersion,
		EventAppCatalogCode:    matrix.Event.EventAppCatalogCode,
		EventAppCatalogVersion: matrix.Event.EventAppCatalogVersion,

		ThingIdentifier:        thing.ThingIdentifier,
		ThingCatalogCode:       thing.ThingCatalogCode,
		ThingCatalogVersion:    thing.ThingCatalogVersion,
		ThingActorCode:         thing.ThingActorCode,
		ThingActorVersion:      thing.ThingActorVersion,
		ThingAppCatalogCode:    thing.ThingAppCatalogCode,
		ThingAppCatalogVersion: thing.ThingAppCatalogVersion,
		RowHash:                thing.RowHash,
		RowHashCreateAt:        thing.RowHashCreateAt,

		CreatedBy: operator,
		UpdatedBy: operator,
		Documents: documents,
	}
}

// deleteRowFromMatrix builds the identifier-only row recording a deletion.
func deleteRowFromMatrix(matrix *cmatrix.DeleteMatrix, thingIdentifier, operator string) *models.RowHash {
	documents := make([]models.Document, 0, len(matrix.Document))
	for _, doc := range matrix.Document {
		documents = append(documents, models.Document{
			DocIdentifier: doc.DocIdentifier,
			CreatedBy:     operator,
			UpdatedBy:     operator,
		})
	}

	return &models.RowHash{
		Type:             models.RowTypeDelete,
		Status:           models.StatusUnsent,
		PersonIdentifier: matrix.UserID,
		EventIdentifier:  matrix.Event.EventIdentifier,
		ThingIdentifier:  thingIdentifier,
		CreatedBy:        operator,
		UpdatedBy:        operator,
		Documents:        documents,
	}
}

func deletedEventFromRow(row *models.RowHash) *notifier.DeletedEvent {
	return &notifier.DeletedEvent{
		EventIdentifier:        row.EventIdentifier,
		EventCatalogCode:       row.EventCatalogCode,
		EventCatalogVersion:    row.EventCatalogVersion,
		EventStartAt:           row.EventStartAt,
		EventEndAt:             row.EventEndAt,
		EventActorCode:         row.EventActorCode,
		EventActorVersion:      row.EventActorVersion,
		EventAppCatalogCode:    row.EventAppCatalogCode,
		EventAppCatalogVersion: row.EventAppCatalogVersion,
	}
}

func deletedThingFromRow(row *models.RowHash) notifier.DeletedThing {
	return notifier.DeletedThing{
		ThingIdentifier:        row.ThingIdentifier,
		ThingCatalogCode:       row.ThingCatalogCode,
		ThingCatalogVersion:    row.ThingCatalogVersion,
		ThingActorCode:         row.ThingActorCode,
		ThingActorVersion:      row.ThingActorVersion,
		ThingAppCatalogCode:    row.ThingAppCatalogCode,
		ThingAppCatalogVersion: row.ThingAppCatalogVersion,
		RowHash:                row.RowHash,
		RowHashCreateAt:        row.RowHashCreateAt,
	}
}
