package domain

import "time"

// MaxNoteLength bounds the free text attached to a card.
const MaxNoteLength = 10000

// Note is optional free text attached 1:1 to a card by card id.
type Note struct {
	CardID    string    `json:"cardId"`
	Text      string    `json:"text"`
	UpdatedAt time.Time `json:"updatedAt"`
}
