package ledger

import (
	"time"

	"example.com/pxr/services/ctoken/internal/cmatrix"
)

// TimeLayout is the wire format for timestamps sent to the ledger service.
const TimeLayout = "2006-01-02T15:04:05.000Z0700"

// Request is the differential-registration payload of the CToken ledger
// service. Field keys follow the ledger's flat field-tag scheme.
type Request struct {
	Add    []WireMatrix       `json:"add"`
	Update []WireMatrix       `json:"update"`
	Delete []WireDeleteMatrix `json:"delete"`
}

// WireMatrix is one canonicalized CMatrix group.
type WireMatrix struct {
	UserID   string         `json:"1_1"`
	Document []WireDocument `json:"document"`
	Event    WireEvent      `json:"event"`
	Thing    []WireThing    `json:"thing"`
}

// WireDocument is a canonicalized document entry.
type WireDocument struct {
	DocIdentifier        string  `json:"2_n_1_1"`
	DocCatalogCode       *int64  `json:"2_n_1_2_1"`
	DocCatalogVersion    *int64  `json:"2_n_1_2_2"`
	DocCreateAt          *string `json:"2_n_2_1"`
	DocActorCode         *int64  `json:"2_n_3_1_1"`
	DocActorVersion      *int64  `json:"2_n_3_1_2"`
	DocAppCatalogCode    *int64  `json:"2_n_3_5_1"`
	DocAppCatalogVersion *int64  `json:"2_n_3_5_2"`
}

// WireEvent is a canonicalized event entry.
type WireEvent struct {
	EventIdentifier        string  `json:"3_1_1"`
	EventCatalogCode       *int64  `json:"3_1_2_1"`
	EventCatalogVersion    *int64  `json:"3_1_2_2"`
	EventStartAt           *string `json:"3_2_1"`
	EventEndAt             *string `json:"3_2_2"`
	EventActorCode         *int64  `json:"3_5_1_1"`
	EventActorVersion      *int64  `json:"3_5_1_2"`
	EventAppCatalogCode    *int64  `json:"3_5_5_1"`
	EventAppCatalogVersion *int64  `json:"3_5_5_2"`
}

// WireThing is a canonicalized thing entry.
type WireThing struct {
	ThingIdentifier        string  `json:"4_1_1"`
	ThingCatalogCode       *int64  `json:"4_1_2_1"`
	ThingCatalogVersion    *int64  `json:"4_1_2_2"`
	ThingActorCode         *int64  `json:"4_4_1_1"`
	ThingActorVersion      *int64  `json:"4_4_1_2"`
	ThingAppCatalogCode    *int64  `json:"4_4_5_1"`
	ThingAppCatalogVersion *int64  `json:"4_4_5_2"`
	RowHash                string  `json:"rowHash"`
	RowHashCreateAt        *string `json:"rowHashCreateAt"`
}

// WireDeleteMatrix carries the identifier-only projection used on the
// delete channel.
type WireDeleteMatrix struct {
	UserID   string               `json:"1_1"`
	Document []WireDeleteDocument `json:"document"`
	Event    WireDeleteEvent      `json:"event"`
	Thing    []WireDeleteThing    `json:"thing"`
}

// WireDeleteDocument identifies a deleted document.
type WireDeleteDocument struct {
	DocIdentifier string `json:"2_n_1_1"`
}

// WireDeleteEvent identifies the event of a deletion.
type WireDeleteEvent struct {
	EventIdentifier string `json:"3_1_1"`
}

// WireDeleteThing identifies a deleted thing.
type WireDeleteThing struct {
	ThingIdentifier string `json:"4_1_1"`
}

// BuildRequest canonicalizes the three aggregated channels into the ledger
// wire format: numeric fields stay numbers or become explicit nulls,
// timestamps are formatted in tz, delete entries keep identifiers only.
func BuildRequest(add, update, del []cmatrix.Matrix, tz *time.Location) *Request {
	return &Request{
		Add:    buildMatrices(add, tz),
		Update: buildMatrices(update, tz),
		Delete: buildDeleteMatrices(del),
	}
}

func buildMatrices(groups []cmatrix.Matrix, tz *time.Location) []WireMatrix {
	out := make([]WireMatrix, 0, len(groups))
	for _, group := range groups {
		documents := make([]WireDocument, 0, len(group.Document))
		for _, doc := range group.Document {
			documents = append(documents, WireDocument{
				DocIdentifier:        doc.DocIdentifier,
				DocCatalogCode:       doc.DocCatalogCode,
				DocCatalogVersion:    doc.DocCatalogVersion,
				DocCreateAt:          formatTime(doc.DocCreateAt, tz),
				DocActorCode:         doc.DocActorCode,
				DocActorVersion:      doc.DocActorVersion,
				DocAppCatalogCode:    doc.DocAppCatalogCode,
				DocAppCatalogVersion: doc.DocAppCatalogVersion,
			})
		}

		things := make([]WireThing, 0, len(group.Thing))
		for _, thing := range group.Thing {
			things = append(things, WireThing{
				ThingIdentifier:        thing.ThingIdentifier,
				ThingCatalogCode:       thing.ThingCatalogCode,
				ThingCatalogVersion:    thing.ThingCatalogVersion,
				ThingActorCode:         thing.ThingActorCode,
				ThingActorVersion:      thing.ThingActorVersion,
				ThingAppCatalogCode:    thing.ThingAppCatalogCode,
				ThingAppCatalogVersion: thing.ThingAppCatalogVersion,
				RowHash:                thing.RowHash,
				RowHashCreateAt:        formatTime(thing.RowHashCreateAt, tz),
			})
		}

		out = append(out, WireMatrix{
			UserID:   group.UserID,
			Document: documents,
			Event: WireEvent{
				EventIdentifier:        group.Event.EventIdentifier,
				EventCatalogCode:       group.Event.EventCatalogCode,
				EventCatalogVersion:    group.Event.EventCatalogVersion,
				EventStartAt:           formatTime(group.Event.EventStartAt, tz),
				EventEndAt:             formatTime(group.Event.EventEndAt, tz),
				EventActorCode:         group.Event.EventActorCode,
				EventActorVersion:      group.Event.EventActorVersion,
				EventAppCatalogCode:    group.Event.EventAppCatalogCode,
				EventAppCatalogVersion: group.Event.EventAppCatalogVersion,
			},
			Thing: things,
		})
	}
	return out
}

func buildDeleteMatrices(groups []cmatrix.Matrix) []WireDeleteMatrix {
	out := make([]WireDeleteMatrix, 0, len(groups))
	for _, group := range groups {
		documents := make([]WireDeleteDocument, 0, len(group.Document))
		for _, doc := range group.Document {
			documents = append(documents, WireDeleteDocument{DocIdentifier: doc.DocIdentifier})
		}
		things := make([]WireDeleteThing, 0, len(group.Thing))
		for _, thing := range group.Thing {
			things = append(things, WireDeleteThing{ThingIdentifier: thing.ThingIdentifier})
		}
		out = append(out, WireDeleteMatrix{
			UserID:   group.UserID,
			Document: documents,
			Event:    WireDeleteEvent{EventIdentifier: group.Event.EventIdentifier},
			Thing:    things,
		})
	}
	return out
}

// IsEmpty reports whether the request carries no groups on any channel.
func (r *Request) IsEmpty() bool {
	return len(r.Add) == 0 && len(r.Update) == 0 && len(r.Delete) == 0
}

// formatTime renders a timestamp in the ledger wire format, or nil.
func formatTime(t *time.Time, tz *time.Location) *string {
	if t == nil {
		return nil
	}
	s := t.In(tz).Format(TimeLayout)
	return &s
}
