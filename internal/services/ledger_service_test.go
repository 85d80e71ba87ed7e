package services

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/pxr/services/ctoken/config"
	"example.com/pxr/services/ctoken/internal/ledger"
	"example.com/pxr/services/ctoken/internal/metrics"
	"example.com/pxr/services/ctoken/internal/models"
	"example.com/pxr/services/ctoken/internal/repositories"
	"example.com/pxr/services/ctoken/internal/tracing"
)

// fakeRowHashRepo is an in-memory RowHashRepository. WithTx runs fn against
// a deep copy and only publishes the copy back on success, so rollback
// behavior can be asserted without a database.
type fakeRowHashRepo struct {
	rows      []models.RowHash
	nextRowID int64
	nextDocID int64
	insertErr error
}

func newFakeRepo() *fakeRowHashRepo {
	return &fakeRowHashRepo{nextRowID: 1, nextDocID: 1}
}

func (f *fakeRowHashRepo) clone() *fakeRowHashRepo {
	c := &fakeRowHashRepo{
		nextRowID: f.nextRowID,
		nextDocID: f.nextDocID,
		insertErr: f.insertErr,
	}
	c.rows = make([]models.RowHash, len(f.rows))
	for i := range f.rows {
		c.rows[i] = f.rows[i]
		c.rows[i].Documents = append([]models.Document(nil), f.rows[i].Documents...)
	}
	return c
}

func (f *fakeRowHashRepo) WithTx(ctx context.Context, fn func(repositories.RowHashRepository) error) error {
	tx := f.clone()
	if err := fn(tx); err != nil {
		return err
	}
	*f = *tx
	return nil
}

func (f *fakeRowHashRepo) InsertRow(ctx context.Context, row *models.RowHash) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	row.ID = f.nextRowID
	f.nextRowID++
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Unix(row.ID, 0)
	}
	for i := range row.Documents {
		row.Documents[i].ID = f.nextDocID
		f.nextDocID++
		row.Documents[i].RowHashID = row.ID
	}
	stored := *row
	stored.Documents = append([]models.Document(nil), row.Documents...)
	f.rows = append(f.rows, stored)
	return nil
}

func (f *fakeRowHashRepo) FindUnsent(ctx context.Context, offset, count int) ([]models.RowHash, error) {
	var unsent []models.RowHash
	for i := range f.rows {
		row := f.rows[i]
		if row.Status != models.StatusUnsent || row.IsDisabled {
			continue
		}
		row.Documents = append([]models.Document(nil), row.Documents...)
		unsent = append(unsent, row)
	}
	if offset >= len(unsent) {
		return nil, nil
	}
	unsent = unsent[offset:]
	if count < len(unsent) {
		unsent = unsent[:count]
	}
	return unsent, nil
}

func (f *fakeRowHashRepo) CountUnsent(ctx context.Context) (int64, error) {
	var count int64
	for i := range f.rows {
		if f.rows[i].Status == models.StatusUnsent && !f.rows[i].IsDisabled {
			count++
		}
	}
	return count, nil
}

func (f *fakeRowHashRepo) MarkSent(ctx context.Context, ids []int64, updatedBy string) error {
	var marked int64
	for _, id := range ids {
		for i := range f.rows {
			if f.rows[i].ID == id {
				f.rows[i].Status = models.StatusSent
				f.rows[i].UpdatedBy = updatedBy
				marked++
				break
			}
		}
	}
	if marked != int64(len(ids)) {
		return errors.Errorf("expected to mark %d rows as sent, marked %d", len(ids), marked)
	}
	return nil
}

func (f *fakeRowHashRepo) FindLatestRow(ctx context.Context, person, event, thing string) (*models.RowHash, error) {
	var latest *models.RowHash
	for i := range f.rows {
		row := &f.rows[i]
		if row.PersonIdentifier != person || row.EventIdentifier != event || row.ThingIdentifier != thing {
			continue
		}
		if latest == nil || !row.CreatedAt.Before(latest.CreatedAt) {
			latest = row
		}
	}
	if latest == nil {
		return nil, nil
	}
	copied := *latest
	copied.Documents = append([]models.Document(nil), latest.Documents...)
	return &copied, nil
}

func (f *fakeRowHashRepo) FindLatestDocument(ctx context.Context, rowHashID int64, docIdentifier string) (*models.Document, error) {
	var latest *models.Document
	for i := range f.rows {
		for d := range f.rows[i].Documents {
			doc := &f.rows[i].Documents[d]
			if doc.RowHashID != rowHashID || doc.DocIdentifier != docIdentifier {
				continue
			}
			if latest == nil || !doc.CreatedAt.Before(latest.CreatedAt) {
				latest = doc
			}
		}
	}
	if latest == nil {
		return nil, nil
	}
	copied := *latest
	return &copied, nil
}

// Mock ledger client for testing
type MockLedgerClient struct {
	mock.Mock
}

func (m *MockLedgerClient) PostLocal(ctx context.Context, req *ledger.Request) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func seedUnsentRow(t *testing.T, repo *fakeRowHashRepo, rowType models.RowType, event, thing string, docs ...string) {
	t.Helper()
	row := &models.RowHash{
		Type:             rowType,
		Status:           models.StatusUnsent,
		PersonIdentifier: "user-1",
		EventIdentifier:  event,
		ThingIdentifier:  thing,
		RowHash:          "hash-" + thing,
		CreatedBy:        "tester",
		UpdatedBy:        "tester",
	}
	for _, doc := range docs {
		row.Documents = append(row.Documents, models.Document{DocIdentifier: doc})
	}
	require.NoError(t, repo.InsertRow(context.Background(), row))
}

func newTestLedgerService(t *testing.T, repo *fakeRowHashRepo, client ledger.Client) *LedgerService {
	t.Helper()
	tracer, err := tracing.NewTracer(config.TracingConfig{})
	require.NoError(t, err)
	return NewLedgerService(repo, client, nil, nil, metrics.NewMetrics(), tracer, time.UTC)
}

func TestForwardBatchMarksEveryReadRowSent(t *testing.T) {
	repo := newFakeRepo()
	seedUnsentRow(t, repo, models.RowTypeAdd, "event-a", "thing-1", "doc-1")
	seedUnsentRow(t, repo, models.RowTypeAdd, "event-a", "thing-2", "doc-2")
	seedUnsentRow(t, repo, models.RowTypeUpdate, "event-b", "thing-3")

	var captured *ledger.Request
	client := new(MockLedgerClient)
	client.On("PostLocal", mock.Anything, mock.AnythingOfType("*ledger.Request")).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(*ledger.Request)
		}).
		Return(nil)

	service := newTestLedgerService(t, repo, client)

	err := service.ForwardBatch(context.Background(), 0, 100, "tester")
	require.NoError(t, err)

	// Both rows of event-a folded into one group with two things.
	require.NotNil(t, captured)
	require.Len(t, captured.Add, 1)
	require.Len(t, captured.Add[0].Thing, 2)
	require.Len(t, captured.Update, 1)
	require.Empty(t, captured.Delete)

	for _, row := range repo.rows {
		require.Equal(t, models.StatusSent, row.Status)
		require.Equal(t, "tester", row.UpdatedBy)
	}
	client.AssertExpectations(t)
}

func TestForwardBatchRollsBackWhenLedgerUnavailable(t *testing.T) {
	repo := newFakeRepo()
	seedUnsentRow(t, repo, models.RowTypeAdd, "event-a", "thing-1")
	seedUnsentRow(t, repo, models.RowTypeAdd, "event-b", "thing-2")

	client := new(MockLedgerClient)
	client.On("PostLocal", mock.Anything, mock.Anything).
		Return(errors.Wrap(ledger.ErrUnavailable, "status 503"))

	service := newTestLedgerService(t, repo, client)

	err := service.ForwardBatch(context.Background(), 0, 100, "tester")
	require.Error(t, err)

	var svcErr *ServiceError
	require.True(t, errors.As(err, &svcErr))
	require.Equal(t, KindLedgerUnavailable, svcErr.Kind)

	// The transaction rolled back: every row is still unsent.
	for _, row := range repo.rows {
		require.Equal(t, models.StatusUnsent, row.Status)
	}
}

func TestForwardBatchRejectionRollsBack(t *testing.T) {
	repo := newFakeRepo()
	seedUnsentRow(t, repo, models.RowTypeAdd, "event-a", "thing-1")

	client := new(MockLedgerClient)
	client.On("PostLocal", mock.Anything, mock.Anything).
		Return(errors.Wrap(ledger.ErrRejected, "status 400"))

	service := newTestLedgerService(t, repo, client)

	err := service.ForwardBatch(context.Background(), 0, 100, "tester")
	require.Error(t, err)

	var svcErr *ServiceError
	require.True(t, errors.As(err, &svcErr))
	require.Equal(t, KindLedgerRejected, svcErr.Kind)
	require.Equal(t, models.StatusUnsent, repo.rows[0].Status)
}

func TestForwardBatchEmptyWindowSkipsLedger(t *testing.T) {
	repo := newFakeRepo()
	client := new(MockLedgerClient)
	service := newTestLedgerService(t, repo, client)

	err := service.ForwardBatch(context.Background(), 0, 100, "tester")
	require.NoError(t, err)

	client.AssertNotCalled(t, "PostLocal", mock.Anything, mock.Anything)
}

func TestForwardBatchMarksDuplicateThingRows(t *testing.T) {
	repo := newFakeRepo()
	seedUnsentRow(t, repo, models.RowTypeAdd, "event-a", "thing-1")
	seedUnsentRow(t, repo, models.RowTypeAdd, "event-a", "thing-1")

	var captured *ledger.Request
	client := new(MockLedgerClient)
	client.On("PostLocal", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(*ledger.Request)
		}).
		Return(nil)

	service := newTestLedgerService(t, repo, client)

	err := service.ForwardBatch(context.Background(), 0, 100, "tester")
	require.NoError(t, err)

	// One thing on the wire, but both physical rows leave the unsent set.
	require.Len(t, captured.Add, 1)
	require.Len(t, captured.Add[0].Thing, 1)
	for _, row := range repo.rows {
		require.Equal(t, models.StatusSent, row.Status)
	}
}

func TestDrainBacklogForwardsEverything(t *testing.T) {
	repo := newFakeRepo()
	for i := 0; i < 5; i++ {
		seedUnsentRow(t, repo, models.RowTypeAdd, "event-a", "thing-"+string(rune('a'+i)))
	}

	client := new(MockLedgerClient)
	client.On("PostLocal", mock.Anything, mock.Anything).Return(nil)

	service := newTestLedgerService(t, repo, client)

	err := service.DrainBacklog(context.Background(), 2, "tester")
	require.NoError(t, err)

	count, err := repo.CountUnsent(context.Background())
	require.NoError(t, err)
	require.Zero(t, count)
	client.AssertNumberOfCalls(t, "PostLocal", 3)
}

func TestUnsentCount(t *testing.T) {
	repo := newFakeRepo()
	seedUnsentRow(t, repo, models.RowTypeAdd, "event-a", "thing-1")
	seedUnsentRow(t, repo, models.RowTypeDelete, "event-a", "thing-1")

	service := newTestLedgerService(t, repo, new(MockLedgerClient))

	count, err := service.UnsentCount(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
}
