package ledger

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/pxr/services/ctoken/internal/cmatrix"
)

func int64Ptr(v int64) *int64 {
	return &v
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func TestBuildRequestFormatsTimestampsInZone(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	start := time.Date(2026, 8, 30, 1, 2, 3, 450_000_000, time.UTC)
	groups := []cmatrix.Matrix{{
		UserID: "user-1",
		Event: cmatrix.Event{
			EventIdentifier: "event-a",
			EventStartAt:    timePtr(start),
		},
		Thing: []cmatrix.Thing{{
			ThingIdentifier: "thing-1",
			RowHash:         "abc123",
			RowHashCreateAt: timePtr(start),
		}},
	}}

	req := BuildRequest(groups, nil, nil, tokyo)

	require.Len(t, req.Add, 1)
	require.Equal(t, "2026-08-30T10:02:03.450+0900", *req.Add[0].Event.EventStartAt)
	require.Nil(t, req.Add[0].Event.EventEndAt)
	require.Equal(t, "2026-08-30T10:02:03.450+0900", *req.Add[0].Thing[0].RowHashCreateAt)
}

func TestBuildRequestKeepsNumbersAndNulls(t *testing.T) {
	groups := []cmatrix.Matrix{{
		UserID: "user-1",
		Document: []cmatrix.Document{{
			DocIdentifier:  "doc-1",
			DocCatalogCode: int64Ptr(1000120),
		}},
		Event: cmatrix.Event{
			EventIdentifier:  "event-a",
			EventCatalogCode: int64Ptr(1000811),
		},
		Thing: []cmatrix.Thing{{
			ThingIdentifier: "thing-1",
			RowHash:         "abc123",
		}},
	}}

	req := BuildRequest(nil, groups, nil, time.UTC)
	body, err := json.Marshal(req)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &decoded))

	update := decoded["update"].([]interface{})[0].(map[string]interface{})
	require.Equal(t, "user-1", update["1_1"])

	event := update["event"].(map[string]interface{})
	require.Equal(t, "event-a", event["3_1_1"])
	require.Equal(t, float64(1000811), event["3_1_2_1"])
	require.Nil(t, event["3_1_2_2"])
	require.Nil(t, event["3_2_1"])

	doc := update["document"].([]interface{})[0].(map[string]interface{})
	require.Equal(t, "doc-1", doc["2_n_1_1"])
	require.Equal(t, float64(1000120), doc["2_n_1_2_1"])

	thing := update["thing"].([]interface{})[0].(map[string]interface{})
	require.Equal(t, "thing-1", thing["4_1_1"])
	require.Equal(t, "abc123", thing["rowHash"])
}

func TestBuildRequestDeleteCarriesIdentifiersOnly(t *testing.T) {
	groups := []cmatrix.Matrix{{
		UserID: "user-1",
		Document: []cmatrix.Document{{
			DocIdentifier:  "doc-1",
			DocCatalogCode: int64Ptr(1000120),
		}},
		Event: cmatrix.Event{
			EventIdentifier:  "event-a",
			EventCatalogCode: int64Ptr(1000811),
		},
		Thing: []cmatrix.Thing{{
			ThingIdentifier: "thing-1",
			RowHash:         "should-not-appear",
		}},
	}}

	req := BuildRequest(nil, nil, groups, time.UTC)
	body, err := json.Marshal(req)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &decoded))

	del := decoded["delete"].([]interface{})[0].(map[string]interface{})
	require.Equal(t, "user-1", del["1_1"])

	event := del["event"].(map[string]interface{})
	require.Equal(t, "event-a", event["3_1_1"])
	require.NotContains(t, event, "3_1_2_1")

	thing := del["thing"].([]interface{})[0].(map[string]interface{})
	require.Equal(t, "thing-1", thing["4_1_1"])
	require.NotContains(t, thing, "rowHash")

	doc := del["document"].([]interface{})[0].(map[string]interface{})
	require.Equal(t, "doc-1", doc["2_n_1_1"])
	require.NotContains(t, doc, "2_n_1_2_1")
}

func TestIsEmpty(t *testing.T) {
	require.True(t, BuildRequest(nil, nil, nil, time.UTC).IsEmpty())

	groups := []cmatrix.Matrix{{
		UserID: "user-1",
		Event:  cmatrix.Event{EventIdentifier: "event-a"},
		Thing:  []cmatrix.Thing{{ThingIdentifier: "thing-1"}},
	}}
	require.False(t, BuildRequest(groups, nil, nil, time.UTC).IsEmpty())
	require.False(t, BuildRequest(nil, groups, nil, time.UTC).IsEmpty())
	require.False(t, BuildRequest(nil, nil, groups, time.UTC).IsEmpty())
}
