package cmatrix

import (
	"example.com/pxr/services/ctoken/internal/models"
)

// Partition splits rows into the add, update and delete channels by row type.
// Channels never mix: a row belongs to exactly one of the three slices.
func Partition(rows []models.RowHash) (add, update, del []models.RowHash) {
	for _, row := range rows {
		switch row.Type {
		case models.RowTypeAdd:
			add = append(add, row)
		case models.RowTypeUpdate:
			update = append(update, row)
		default:
			del = append(del, row)
		}
	}
	return add, update, del
}

// Aggregate folds flat rows into one Matrix per distinct event identifier,
// in first-seen order. The first row of an event contributes its event
// fields, its documents in source order and one thing. Later rows of the
// same event merge in: documents are deduplicated by docIdentifier and
// things by thingIdentifier, first occurrence winning in both cases.
func Aggregate(rows []models.RowHash) []Matrix {
	groups := make([]Matrix, 0, len(rows))
	for i := range rows {
		row := &rows[i]
		merged := false
		for g := range groups {
			if groups[g].Event.EventIdentifier == row.EventIdentifier {
				mergeRow(&groups[g], row)
				merged = true
				break
			}
		}
		if !merged {
			groups = append(groups, newGroup(row))
		}
	}
	return groups
}

// newGroup builds a Matrix from the first row seen for an event.
func newGroup(row *models.RowHash) Matrix {
	documents := make([]Document, 0, len(row.Documents))
	for i := range row.Documents {
		documents = append(documents, documentFromRow(&row.Documents[i]))
	}
	return Matrix{
		UserID:   row.PersonIdentifier,
		Document: documents,
		Event:    eventFromRow(row),
		Thing:    []Thing{thingFromRow(row)},
	}
}

// mergeRow appends a later row's documents and thing to an existing group,
// skipping identifiers already present.
func mergeRow(group *Matrix, row *models.RowHash) {
	for i := range row.Documents {
		doc := &row.Documents[i]
		exists := false
		for _, have := range group.Document {
			if have.DocIdentifier == doc.DocIdentifier {
				exists = true
				break
			}
		}
		if !exists {
			group.Document = append(group.Document, documentFromRow(doc))
		}
	}

	for _, have := range group.Thing {
		if have.ThingIdentifier == row.ThingIdentifier {
			return
		}
	}
	group.Thing = append(group.Thing, thingFromRow(row))
}

func eventFromRow(row *models.RowHash) Event {
	return Event{
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

func thingFromRow(row *models.RowHash) Thing {
	return Thing{
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

func documentFromRow(doc *models.Document) Document {
	return Document{
		DocIdentifier:        doc.DocIdentifier,
		DocCatalogCode:       doc.DocCatalogCode,
		DocCatalogVersion:    doc.DocCatalogVersion,
		DocCreateAt:          doc.DocCreateAt,
		DocActorCode:         doc.DocActorCode,
		DocActorVersion:      doc.DocActorVersion,
		DocAppCatalogCode:    doc.DocAppCatalogCode,
		DocAppCatalogVersion: doc.DocAppCatalogVersion,
	}
}
