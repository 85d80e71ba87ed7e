package cmatrix

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/pxr/services/ctoken/internal/models"
)

func int64Ptr(v int64) *int64 {
	return &v
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func addRow(id int64, event, thing string, docs ...string) models.RowHash {
	row := models.RowHash{
		ID:               id,
		Type:             models.RowTypeAdd,
		Status:           models.StatusUnsent,
		PersonIdentifier: "user-1",
		EventIdentifier:  event,
		ThingIdentifier:  thing,
		RowHash:          "hash-" + thing,
	}
	for _, doc := range docs {
		row.Documents = append(row.Documents, models.Document{DocIdentifier: doc})
	}
	return row
}

func TestPartitionSplitsByRowType(t *testing.T) {
	rows := []models.RowHash{
		{ID: 1, Type: models.RowTypeAdd},
		{ID: 2, Type: models.RowTypeUpdate},
		{ID: 3, Type: models.RowTypeDelete},
		{ID: 4, Type: models.RowTypeAdd},
	}

	add, update, del := Partition(rows)

	require.Len(t, add, 2)
	require.Len(t, update, 1)
	require.Len(t, del, 1)
	require.Equal(t, int64(1), add[0].ID)
	require.Equal(t, int64(4), add[1].ID)
	require.Equal(t, int64(2), update[0].ID)
	require.Equal(t, int64(3), del[0].ID)
}

func TestPartitionUnknownTypeFallsToDelete(t *testing.T) {
	rows := []models.RowHash{
		{ID: 1, Type: models.RowType(99)},
	}

	add, update, del := Partition(rows)

	require.Empty(t, add)
	require.Empty(t, update)
	require.Len(t, del, 1)
}

func TestAggregateGroupsRowsByEvent(t *testing.T) {
	rows := []models.RowHash{
		addRow(1, "event-a", "thing-1", "doc-1"),
		addRow(2, "event-b", "thing-2", "doc-2"),
		addRow(3, "event-a", "thing-3", "doc-3"),
	}

	groups := Aggregate(rows)

	require.Len(t, groups, 2)

	// Groups appear in first-seen order.
	require.Equal(t, "event-a", groups[0].Event.EventIdentifier)
	require.Equal(t, "event-b", groups[1].Event.EventIdentifier)

	// Both things of event-a merged into one group, in row order.
	require.Len(t, groups[0].Thing, 2)
	require.Equal(t, "thing-1", groups[0].Thing[0].ThingIdentifier)
	require.Equal(t, "thing-3", groups[0].Thing[1].ThingIdentifier)
	require.Len(t, groups[0].Document, 2)
	require.Equal(t, "doc-1", groups[0].Document[0].DocIdentifier)
	require.Equal(t, "doc-3", groups[0].Document[1].DocIdentifier)

	require.Len(t, groups[1].Thing, 1)
	require.Equal(t, "thing-2", groups[1].Thing[0].ThingIdentifier)
}

func TestAggregateFirstRowWinsEventFields(t *testing.T) {
	first := addRow(1, "event-a", "thing-1")
	first.EventCatalogCode = int64Ptr(100)
	first.EventStartAt = timePtr(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	second := addRow(2, "event-a", "thing-2")
	second.EventCatalogCode = int64Ptr(999)

	groups := Aggregate([]models.RowHash{first, second})

	require.Len(t, groups, 1)
	require.Equal(t, int64(100), *groups[0].Event.EventCatalogCode)
	require.NotNil(t, groups[0].Event.EventStartAt)
}

func TestAggregateDedupsDocumentsFirstWins(t *testing.T) {
	first := addRow(1, "event-a", "thing-1")
	first.Documents = []models.Document{
		{DocIdentifier: "doc-1", DocCatalogCode: int64Ptr(10)},
	}
	second := addRow(2, "event-a", "thing-2")
	second.Documents = []models.Document{
		{DocIdentifier: "doc-1", DocCatalogCode: int64Ptr(20)},
		{DocIdentifier: "doc-2", DocCatalogCode: int64Ptr(30)},
	}

	groups := Aggregate([]models.RowHash{first, second})

	require.Len(t, groups, 1)
	require.Len(t, groups[0].Document, 2)
	require.Equal(t, "doc-1", groups[0].Document[0].DocIdentifier)
	require.Equal(t, int64(10), *groups[0].Document[0].DocCatalogCode)
	require.Equal(t, "doc-2", groups[0].Document[1].DocIdentifier)
}

func TestAggregateDedupsThingsFirstWins(t *testing.T) {
	first := addRow(1, "event-a", "thing-1")
	first.RowHash = "hash-first"
	duplicate := addRow(2, "event-a", "thing-1")
	duplicate.RowHash = "hash-second"

	groups := Aggregate([]models.RowHash{first, duplicate})

	require.Len(t, groups, 1)
	require.Len(t, groups[0].Thing, 1)
	require.Equal(t, "hash-first", groups[0].Thing[0].RowHash)
}

func TestAggregateRowWithoutDocuments(t *testing.T) {
	groups := Aggregate([]models.RowHash{addRow(1, "event-a", "thing-1")})

	require.Len(t, groups, 1)
	require.Empty(t, groups[0].Document)
	require.Len(t, groups[0].Thing, 1)
}

func TestAggregateEmptyInput(t *testing.T) {
	require.Empty(t, Aggregate(nil))
}
