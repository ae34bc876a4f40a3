package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Universe struct {
	bun.BaseModel `bun:"table:universes"`

	ID        string    `bun:"id,pk" json:"id"`
	Slug      string    `bun:"slug,notnull,unique" json:"slug"`
	Name      string    `bun:"name,notnull" json:"name"`
	Emoji     string    `bun:"emoji,nullzero" json:"emoji,omitempty"`
	Color     string    `bun:"color,nullzero" json:"color,omitempty"`
	Gradient  string    `bun:"gradient,nullzero" json:"gradient,omitempty"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`

	Boxes []*Box `bun:"rel:has-many,join:id=universe_id" json:"boxes,omitempty"`
}

type Box struct {
	bun.BaseModel `bun:"table:boxes"`

	ID         string    `bun:"id,pk" json:"id"`
	UniverseID string    `bun:"universe_id,notnull" json:"universe_id"`
	Name       string    `bun:"name,notnull" json:"name"`
	Img        string    `bun:"img,nullzero" json:"img,omitempty"`
	CreatedAt  time.Time `bun:"created_at,notnull" json:"created_at"`

	Universe *Universe `bun:"rel:belongs-to,join:universe_id=id" json:"universe,omitempty"`
	Items    []*Item   `bun:"rel:has-many,join:id=box_id" json:"items,omitempty"`
}

type Item struct {
	bun.BaseModel `bun:"table:items"`

	ID        string    `bun:"id,pk" json:"id"`
	BoxID     string    `bun:"box_id,notnull" json:"box_id"`
	Name      string    `bun:"name,notnull" json:"name"`
	Img       string    `bun:"img,nullzero" json:"img,omitempty"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}

// UniverseMeta is the slim universe view the flow endpoints return next to
// a revealed box.
type UniverseMeta struct {
	Slug     string `json:"slug"`
	Name     string `json:"name"`
	Emoji    string `json:"emoji,omitempty"`
	Color    string `json:"color,omitempty"`
	Gradient string `json:"gradient,omitempty"`
}

func (u *Universe) Meta() UniverseMeta {
	return UniverseMeta{
		Slug:     u.Slug,
		Name:     u.Name,
		Emoji:    u.Emoji,
		Color:    u.Color,
		Gradient: u.Gradient,
	}
}

// BoxSummary is a box with its item count, used by the public universe
// listing so clients can show box sizes without loading items.
type BoxSummary struct {
	Box
	ItemCount int `json:"item_count"`
}

type UniverseListing struct {
	Universe
	BoxSummaries []BoxSummary `json:"boxes_summary,omitempty"`
}
