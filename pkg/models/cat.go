package models

import "time"

// Cat is a persisted catalog image. CatID is the upstream catalog's
// identity string and is unique across all stored cats; Image is the
// blob reference returned by the sink the payload was written through.
type Cat struct {
	ID        int64     `db:"id"         json:"id"`
	CatID     string    `db:"cat_id"     json:"cat_id"`
	Width     int       `db:"width"      json:"width"`
	Height    int       `db:"height"     json:"height"`
	Image     string    `db:"image"      json:"image"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	Tags      []*Tag    `db:"-"          json:"tags"`
}

// Tag is a categorical label derived from breed temperament text.
// Names are stored with their original casing but are unique under
// case-insensitive comparison.
type Tag struct {
	ID        int64     `db:"id"         json:"id"`
	Name      string    `db:"name"       json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
