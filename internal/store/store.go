package store

import (
	"context"
	"errors"

	"github.com/kiranshivaraju/catstealer/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	// Fetch pipeline.
	ExistingCatIDs(ctx context.Context) (map[string]struct{}, error)
	TagsByLowerName(ctx context.Context) (map[string]*models.Tag, error)
	CreateCatsBatch(ctx context.Context, cats []*models.Cat) (int, error)

	// Read API.
	GetCat(ctx context.Context, id int64) (*models.Cat, error)
	ListCats(ctx context.Context, filter CatFilter) ([]*models.Cat, int, error)
}

// CatFilter narrows and pages the cat listing. Tag is an exact tag-name
// match; empty means no tag filter.
type CatFilter struct {
	Tag   string
	Page  int
	Limit int
}
