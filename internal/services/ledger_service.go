package services

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/pxr/services/ctoken/internal/cmatrix"
	"example.com/pxr/services/ctoken/internal/ledger"
	"example.com/pxr/services/ctoken/internal/metrics"
	"example.com/pxr/services/ctoken/internal/repositories"
	"example.com/pxr/services/ctoken/internal/search"
	"example.com/pxr/services/ctoken/internal/tracing"

	cachepkg "example.com/pxr/services/ctoken/internal/cache"
)

// LedgerService owns the ledger forwarding pipeline: it reads unsent rows,
// aggregates them into CMatrix groups, marks them sent and calls the CToken
// ledger service, all inside one transaction.
type LedgerService struct {
	repo    repositories.RowHashRepository
	ledger  ledger.Client
	cache   *cachepkg.RedisCache
	elastic *search.ElasticClient
	metrics *metrics.Metrics
	tracer  tracing.Tracer
	tz      *time.Location
}

// NewLedgerService creates a new ledger forwarding service. The cache and
// elastic clients are optional; pass nil to disable them.
func NewLedgerService(
	repo repositories.RowHashRepository,
	ledgerClient ledger.Client,
	cache *cachepkg.RedisCache,
	elastic *search.ElasticClient,
	metricsCollector *metrics.Metrics,
	tracer tracing.Tracer,
	tz *time.Location,
) *LedgerService {
	return &LedgerService{
		repo:    repo,
		ledger:  ledgerClient,
		cache:   cache,
		elastic: elastic,
		metrics: metricsCollector,
		tracer:  tracer,
		tz:      tz,
	}
}

// ForwardBatch processes one window of unsent rows inside a single
// transaction: read up to count rows from offset, aggregate the add, update
// and delete channels, mark every read row sent, and call the ledger when
// any channel is non-empty. Every row read is marked sent, including rows
// that only merged into an earlier group: each physical row independently
// represents a sent fact. Any failure rolls the whole transaction back and
// leaves the window unsent for a later retry.
func (s *LedgerService) ForwardBatch(ctx context.Context, offset, count int, operator string) error {
	txn := s.tracer.StartTransaction("forward-ledger-batch")
	defer s.tracer.EndTransaction(txn)

	var (
		rowsRead     int
		addGroups    []cmatrix.Matrix
		updateGroups []cmatrix.Matrix
		deleteGroups []cmatrix.Matrix
	)

	err := s.repo.WithTx(ctx, func(tx repositories.RowHashRepository) error {
		span := s.tracer.StartSpan("find-unsent-rows", txn)
		rows, err := tx.FindUnsent(ctx, offset, count)
		span.End()
		if err != nil {
			return err
		}
		rowsRead = len(rows)
		if rowsRead == 0 {
			return nil
		}

		addRows, updateRows, deleteRows := cmatrix.Partition(rows)
		addGroups = cmatrix.Aggregate(addRows)
		updateGroups = cmatrix.Aggregate(updateRows)
		deleteGroups = cmatrix.Aggregate(deleteRows)

		ids := make([]int64, 0, len(rows))
		for i := range rows {
			ids = append(ids, rows[i].ID)
		}
		markSpan := s.tracer.StartSpan("mark-rows-sent", txn)
		err = tx.MarkSent(ctx, ids, operator)
		markSpan.End()
		if err != nil {
			return err
		}

		req := ledger.BuildRequest(addGroups, updateGroups, deleteGroups, s.tz)
		if req.IsEmpty() {
			return nil
		}
		callSpan := s.tracer.StartSpan("post-ledger", txn)
		err = s.ledger.PostLocal(ctx, req)
		callSpan.End()
		return err
	})
	if err != nil {
		s.tracer.RecordError(txn, err)
		s.metrics.IncrementCounter("ledger_forwards_failed")
		switch {
		case errors.Is(err, ledger.ErrRejected):
			return NewServiceError(KindLedgerRejected, err)
		case errors.Is(err, ledger.ErrUnavailable):
			return NewServiceError(KindLedgerUnavailable, err)
		default:
			return NewServiceError(KindSaveFailed, err)
		}
	}

	if rowsRead == 0 {
		return nil
	}

	s.metrics.IncrementCounter("ledger_forwards")
	s.metrics.IncrementCounterBy("rows_forwarded", int64(rowsRead))

	if s.cache != nil {
		if err := s.cache.InvalidateUnsentCount(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to invalidate unsent count cache")
		}
	}

	// Best-effort audit trail of the forwarded window.
	if s.elastic != nil {
		batch := &search.ForwardedBatch{
			Offset:       offset,
			Count:        count,
			RowsRead:     rowsRead,
			AddGroups:    len(addGroups),
			UpdateGroups: len(updateGroups),
			DeleteGroups: len(deleteGroups),
			ForwardedAt:  time.Now(),
		}
		if err := s.elastic.IndexForwardedBatch(ctx, batch); err != nil {
			log.Warn().Err(err).Msg("Failed to index forwarded batch audit record")
		}
	}

	log.Info().
		Int("rows", rowsRead).
		Int("add_groups", len(addGroups)).
		Int("update_groups", len(updateGroups)).
		Int("delete_groups", len(deleteGroups)).
		Msg("Ledger batch forwarded")

	return nil
}

// UnsentCount returns the number of rows still awaiting forwarding, served
// from the short-TTL cache when possible.
func (s *LedgerService) UnsentCount(ctx context.Context) (int64, error) {
	if s.cache != nil {
		if count, ok := s.cache.GetUnsentCount(ctx); ok {
			return count, nil
		}
	}

	count, err := s.repo.CountUnsent(ctx)
	if err != nil {
		return 0, NewServiceError(KindSaveFailed, err)
	}

	if s.cache != nil {
		if err := s.cache.SetUnsentCount(ctx, count); err != nil {
			log.Warn().Err(err).Msg("Failed to cache unsent count")
		}
	}
	return count, nil
}

// DrainBacklog repeatedly forwards windows from offset zero until no unsent
// rows remain. Marked rows leave the unsent set, so the next window always
// starts at the head of what is left.
func (s *LedgerService) DrainBacklog(ctx context.Context, batchCount int, operator string) error {
	for {
		count, err := s.repo.CountUnsent(ctx)
		if err != nil {
			return NewServiceError(KindSaveFailed, err)
		}
		if count == 0 {
			return nil
		}
		if err := s.ForwardBatch(ctx, 0, batchCount, operator); err != nil {
			return err
		}
	}
}
