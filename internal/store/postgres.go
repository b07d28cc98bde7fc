package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/catstealer/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Fetch pipeline ---

func (s *PostgresStore) ExistingCatIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.pool.Query(ctx, `SELECT cat_id FROM cats`)
	if err != nil {
		return nil, fmt.Errorf("list cat ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan cat id: %w", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

func (s *PostgresStore) TagsByLowerName(ctx context.Context) (map[string]*models.Tag, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, created_at FROM tags`)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	tags := make(map[string]*models.Tag)
	for rows.Next() {
		var t models.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags[strings.ToLower(t.Name)] = &t
	}
	return tags, rows.Err()
}

// CreateCatsBatch persists staged cats, their new tags, and the
// cat-tag associations in a single transaction. Staged tags are shared
// pointers: a tag appearing on several cats is inserted once and its
// generated id reused.
func (s *PostgresStore) CreateCatsBatch(ctx context.Context, cats []*models.Cat) (int, error) {
	if len(cats) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, cat := range cats {
		for _, tag := range cat.Tags {
			if tag.ID != 0 {
				continue
			}
			err := tx.QueryRow(ctx,
				`INSERT INTO tags (name, created_at) VALUES ($1, $2) RETURNING id`,
				tag.Name, tag.CreatedAt,
			).Scan(&tag.ID)
			if err != nil {
				if isDuplicateKeyError(err) {
					return 0, fmt.Errorf("insert tag %q: %w", tag.Name, ErrDuplicateKey)
				}
				return 0, fmt.Errorf("insert tag %q: %w", tag.Name, err)
			}
		}

		err := tx.QueryRow(ctx,
			`INSERT INTO cats (cat_id, width, height, image, created_at)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			cat.CatID, cat.Width, cat.Height, cat.Image, cat.CreatedAt,
		).Scan(&cat.ID)
		if err != nil {
			if isDuplicateKeyError(err) {
				return 0, fmt.Errorf("insert cat %q: %w", cat.CatID, ErrDuplicateKey)
			}
			return 0, fmt.Errorf("insert cat %q: %w", cat.CatID, err)
		}

		for _, tag := range cat.Tags {
			if _, err := tx.Exec(ctx,
				`INSERT INTO cat_tags (cat_id, tag_id) VALUES ($1, $2)`,
				cat.ID, tag.ID); err != nil {
				return 0, fmt.Errorf("associate cat %q with tag %q: %w", cat.CatID, tag.Name, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit batch: %w", err)
	}
	return len(cats), nil
}

// --- Read API ---

func (s *PostgresStore) GetCat(ctx context.Context, id int64) (*models.Cat, error) {
	var c models.Cat
	err := s.pool.QueryRow(ctx,
		`SELECT id, cat_id, width, height, image, created_at FROM cats WHERE id = $1`, id,
	).Scan(&c.ID, &c.CatID, &c.Width, &c.Height, &c.Image, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get cat: %w", err)
	}

	tagsByCat, err := s.loadTags(ctx, []int64{c.ID})
	if err != nil {
		return nil, err
	}
	c.Tags = tagsByCat[c.ID]
	return &c, nil
}

func (s *PostgresStore) ListCats(ctx context.Context, filter CatFilter) ([]*models.Cat, int, error) {
	where := ""
	args := []any{}
	if filter.Tag != "" {
		where = `WHERE EXISTS (
			SELECT 1 FROM cat_tags ct JOIN tags t ON t.id = ct.tag_id
			WHERE ct.cat_id = cats.id AND t.name = $1)`
		args = append(args, filter.Tag)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM cats " + where
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count cats: %w", err)
	}

	// Normalize pagination
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	dataQuery := fmt.Sprintf(
		`SELECT id, cat_id, width, height, image, created_at FROM cats %s
		 ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list cats: %w", err)
	}
	defer rows.Close()

	var cats []*models.Cat
	var ids []int64
	for rows.Next() {
		var c models.Cat
		if err := rows.Scan(&c.ID, &c.CatID, &c.Width, &c.Height, &c.Image, &c.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan cat: %w", err)
		}
		cats = append(cats, &c)
		ids = append(ids, c.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	tagsByCat, err := s.loadTags(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for _, c := range cats {
		c.Tags = tagsByCat[c.ID]
	}
	return cats, total, nil
}

// loadTags fetches tags for a set of cat ids in one query.
func (s *PostgresStore) loadTags(ctx context.Context, catIDs []int64) (map[int64][]*models.Tag, error) {
	byCat := make(map[int64][]*models.Tag, len(catIDs))
	if len(catIDs) == 0 {
		return byCat, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT ct.cat_id, t.id, t.name, t.created_at
		 FROM cat_tags ct JOIN tags t ON t.id = ct.tag_id
		 WHERE ct.cat_id = ANY($1) ORDER BY t.name`, catIDs)
	if err != nil {
		return nil, fmt.Errorf("load cat tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var catID int64
		var t models.Tag
		if err := rows.Scan(&catID, &t.ID, &t.Name, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan cat tag: %w", err)
		}
		byCat[catID] = append(byCat[catID], &t)
	}
	return byCat, rows.Err()
}

// isDuplicateKeyError reports whether err is a Postgres unique violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
