package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"
	"unicode"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/catstealer/internal/api/response"
	"github.com/kiranshivaraju/catstealer/internal/cache"
	"github.com/kiranshivaraju/catstealer/internal/store"
	"github.com/kiranshivaraju/catstealer/pkg/models"
)

const listCacheTTL = 30 * time.Second

// CatReader defines the read operations the cat handlers depend on.
type CatReader interface {
	GetCat(ctx context.Context, id int64) (*models.Cat, error)
	ListCats(ctx context.Context, filter store.CatFilter) ([]*models.Cat, int, error)
}

// NewListCatsHandler returns an http.HandlerFunc for GET /api/v1/cats.
// List responses are cached briefly so pollers hammering the same page
// do not hit Postgres on every request.
func NewListCatsHandler(st CatReader, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := queryInt(r, "page", 1)
		limit := queryInt(r, "limit", 20)
		if page < 1 {
			page = 1
		}
		if limit < 1 {
			limit = 20
		}
		if limit > 100 {
			limit = 100
		}

		tag := r.URL.Query().Get("tag")
		if !lettersOnly(tag) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"tag must contain only letters", nil)
			return
		}

		key := cache.CatsListKey(page, limit, tag)
		if raw, ok, err := c.Get(r.Context(), key); err == nil && ok {
			var cached cachedCatList
			if err := json.Unmarshal(raw, &cached); err == nil {
				response.Collection(w, cached.Cats, cached.Meta)
				return
			}
		}

		cats, total, err := st.ListCats(r.Context(), store.CatFilter{
			Tag:   tag,
			Page:  page,
			Limit: limit,
		})
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		items := make([]catResponse, 0, len(cats))
		for _, cat := range cats {
			items = append(items, toCatResponse(cat))
		}
		meta := response.PaginationMeta{
			Page:    page,
			Limit:   limit,
			Total:   total,
			HasNext: page*limit < total,
		}

		if raw, err := json.Marshal(cachedCatList{Cats: items, Meta: meta}); err == nil {
			if err := c.Set(r.Context(), key, raw, listCacheTTL); err != nil {
				slog.Debug("cats list cache write failed", "error", err)
			}
		}

		response.Collection(w, items, meta)
	}
}

// NewGetCatHandler returns an http.HandlerFunc for GET /api/v1/cats/{catID}.
func NewGetCatHandler(st CatReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "catID"), 10, 64)
		if err != nil || id <= 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"catID must be a positive integer", nil)
			return
		}

		cat, err := st.GetCat(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "CAT_NOT_FOUND",
					"No cat exists with the given id", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, toCatResponse(cat))
	}
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func lettersOnly(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

func toCatResponse(cat *models.Cat) catResponse {
	tags := make([]string, 0, len(cat.Tags))
	for _, t := range cat.Tags {
		tags = append(tags, t.Name)
	}
	return catResponse{
		ID:        cat.ID,
		CatID:     cat.CatID,
		Width:     cat.Width,
		Height:    cat.Height,
		Image:     cat.Image,
		CreatedAt: cat.CreatedAt.UTC().Format(time.RFC3339),
		Tags:      tags,
	}
}

type catResponse struct {
	ID        int64    `json:"id"`
	CatID     string   `json:"cat_id"`
	Width     int      `json:"width"`
	Height    int      `json:"height"`
	Image     string   `json:"image"`
	CreatedAt string   `json:"created_at"`
	Tags      []string `json:"tags"`
}

type cachedCatList struct {
	Cats []catResponse           `json:"cats"`
	Meta response.PaginationMeta `json:"meta"`
}
