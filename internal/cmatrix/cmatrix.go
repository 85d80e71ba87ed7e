package cmatrix

import (
	"time"
)

// Submission is one inbound Local-CToken registration: three channels of
// CMatrix groupings. Add and update carry full field values, delete carries
// identifying keys only.
type Submission struct {
	Add    []Matrix       `json:"add"`
	Update []Matrix       `json:"update"`
	Delete []DeleteMatrix `json:"delete"`
}

// Matrix is one CMatrix group: a person, one event and the documents and
// things recorded under it.
type Matrix struct {
	UserID   string     `json:"userId"`
	Document []Document `json:"document"`
	Event    Event      `json:"event"`
	Thing    []Thing    `json:"thing"`
}

// Document carries the full field values of one document.
type Document struct {
	DocIdentifier        string     `json:"docIdentifier"`
	DocCatalogCode       *int64     `json:"docCatalogCode"`
	DocCatalogVersion    *int64     `json:"docCatalogVersion"`
	DocCreateAt          *time.Time `json:"docCreateAt"`
	DocActorCode         *int64     `json:"docActorCode"`
	DocActorVersion      *int64     `json:"docActorVersion"`
	DocAppCatalogCode    *int64     `json:"docAppCatalogCode"`
	DocAppCatalogVersion *int64     `json:"docAppCatalogVersion"`
}

// Event carries the full field values of one event.
type Event struct {
	EventIdentifier        string     `json:"eventIdentifier"`
	EventCatalogCode       *int64     `json:"eventCatalogCode"`
	EventCatalogVersion    *int64     `json:"eventCatalogVersion"`
	EventStartAt           *time.Time `json:"eventStartAt"`
	EventEndAt             *time.Time `json:"eventEndAt"`
	EventActorCode         *int64     `json:"eventActorCode"`
	EventActorVersion      *int64     `json:"eventActorVersion"`
	EventAppCatalogCode    *int64     `json:"eventAppCatalogCode"`
	EventAppCatalogVersion *int64     `json:"eventAppCatalogVersion"`
}

// Thing carries the full field values of one thing, including its row hash.
type Thing struct {
	ThingIdentifier        string     `json:"thingIdentifier"`
	ThingCatalogCode       *int64     `json:"thingCatalogCode"`
	ThingCatalogVersion    *int64     `json:"thingCatalogVersion"`
	ThingActorCode         *int64     `json:"thingActorCode"`
	ThingActorVersion      *int64     `json:"thingActorVersion"`
	ThingAppCatalogCode    *int64     `json:"thingAppCatalogCode"`
	ThingAppCatalogVersion *int64     `json:"thingAppCatalogVersion"`
	RowHash                string     `json:"rowHash"`
	RowHashCreateAt        *time.Time `json:"rowHashCreateAt"`
}

// DeleteMatrix is a delete-channel group; it arrives with identifiers only.
type DeleteMatrix struct {
	UserID   string           `json:"userId"`
	Document []DeleteDocument `json:"document"`
	Event    DeleteEvent      `json:"event"`
	Thing    []DeleteThing    `json:"thing"`
}

// DeleteDocument identifies a document being deleted.
type DeleteDocument struct {
	DocIdentifier string `json:"docIdentifier"`
}

// DeleteEvent identifies the event a deletion belongs to.
type DeleteEvent struct {
	EventIdentifier string `json:"eventIdentifier"`
}

// DeleteThing identifies a thing being deleted.
type DeleteThing struct {
	ThingIdentifier string `json:"thingIdentifier"`
}
