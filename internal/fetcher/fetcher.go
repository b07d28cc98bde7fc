// Package fetcher runs one cat-fetch job end to end: query the catalog,
// dedupe against storage, download payloads, derive tags, commit a batch.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/kiranshivaraju/catstealer/internal/blob"
	"github.com/kiranshivaraju/catstealer/internal/catapi"
	"github.com/kiranshivaraju/catstealer/pkg/models"
)

const (
	maxExtLen  = 4 // including the dot
	defaultExt = ".jpg"
)

// Repository is the narrow store contract the orchestrator commits through.
type Repository interface {
	ExistingCatIDs(ctx context.Context) (map[string]struct{}, error)
	TagsByLowerName(ctx context.Context) (map[string]*models.Tag, error)
	CreateCatsBatch(ctx context.Context, cats []*models.Cat) (int, error)
}

// Registry is the slice of the job registry the orchestrator reports into.
type Registry interface {
	MarkRunning(id string)
	MarkSucceeded(id string, result models.JobResult)
	MarkFailed(id, message string)
}

// Fetcher holds one job's dependency bundle. Build a fresh one per work
// item so nothing request-scoped leaks between jobs.
type Fetcher struct {
	catalog  catapi.Client
	sink     blob.Sink
	repo     Repository
	registry Registry
}

func New(catalog catapi.Client, sink blob.Sink, repo Repository, registry Registry) *Fetcher {
	return &Fetcher{catalog: catalog, sink: sink, repo: repo, registry: registry}
}

// Fetch produces up to count new cats from the catalog and commits them
// as one batch. Per-item failures (bad URL, empty payload, write error)
// skip the item; cancellation and storage failures abandon the job. The
// job always ends in a terminal state.
func (f *Fetcher) Fetch(ctx context.Context, jobID string, count int) {
	defer func() {
		// Last-resort guard: a panic below must not leave the job running.
		// MarkFailed is a no-op if a terminal state was already recorded.
		if p := recover(); p != nil {
			slog.Error("fetch job panicked", "job_id", jobID, "panic", p)
			f.registry.MarkFailed(jobID, "internal error")
		}
	}()

	f.registry.MarkRunning(jobID)

	images, err := f.catalog.FetchImages(ctx, count)
	if err != nil {
		f.registry.MarkFailed(jobID, failureMessage("fetching images", err))
		return
	}
	if len(images) == 0 {
		f.registry.MarkSucceeded(jobID, models.JobResult{NewCats: 0})
		return
	}

	// One round trip each for the dedupe keys; the maps double as the
	// staging area for ids and tags added during this batch.
	knownIDs, err := f.repo.ExistingCatIDs(ctx)
	if err != nil {
		f.registry.MarkFailed(jobID, failureMessage("loading known cat ids", err))
		return
	}
	tagsByLower, err := f.repo.TagsByLowerName(ctx)
	if err != nil {
		f.registry.MarkFailed(jobID, failureMessage("loading tags", err))
		return
	}

	var batch []*models.Cat
	for _, img := range images {
		if img.ID == "" || img.URL == "" {
			continue
		}
		if _, known := knownIDs[img.ID]; known {
			continue
		}

		data, err := f.catalog.Download(ctx, img.URL)
		if err != nil {
			if cancelled(err) {
				// Shutdown, not a flaky image: abandon the whole job.
				f.registry.MarkFailed(jobID, failureMessage("downloading image", err))
				return
			}
			slog.Warn("skipping image", "job_id", jobID, "cat_id", img.ID, "error", err)
			continue
		}

		key := img.ID + extensionFor(img.URL)
		ref, err := f.sink.Write(ctx, key, data)
		if err != nil {
			if cancelled(err) {
				f.registry.MarkFailed(jobID, failureMessage("storing image", err))
				return
			}
			slog.Warn("skipping image", "job_id", jobID, "cat_id", img.ID, "error", err)
			continue
		}

		cat := &models.Cat{
			CatID:     img.ID,
			Width:     img.Width,
			Height:    img.Height,
			Image:     ref,
			CreatedAt: time.Now().UTC(),
			Tags:      resolveTags(img, tagsByLower),
		}

		batch = append(batch, cat)
		knownIDs[img.ID] = struct{}{}
	}

	if len(batch) == 0 {
		f.registry.MarkSucceeded(jobID, models.JobResult{NewCats: 0})
		return
	}

	added, err := f.repo.CreateCatsBatch(ctx, batch)
	if err != nil {
		f.registry.MarkFailed(jobID, failureMessage("saving cats", err))
		return
	}

	f.registry.MarkSucceeded(jobID, models.JobResult{NewCats: added})
}

// resolveTags derives tags from the first breed's temperament string,
// reusing tags already stored or staged earlier in this batch. New tags
// are registered in tagsByLower so later images share them.
func resolveTags(img models.CatImage, tagsByLower map[string]*models.Tag) []*models.Tag {
	if len(img.Breeds) == 0 {
		return nil
	}

	var tags []*models.Tag
	for _, name := range splitTemperament(img.Breeds[0].Temperament) {
		lower := strings.ToLower(name)
		tag, ok := tagsByLower[lower]
		if !ok {
			tag = &models.Tag{Name: name, CreatedAt: time.Now().UTC()}
			tagsByLower[lower] = tag
		}
		tags = append(tags, tag)
	}
	return tags
}

// splitTemperament splits a comma-separated temperament string into
// trimmed, non-empty, case-insensitively unique tag names. Order and the
// first-seen casing are preserved.
func splitTemperament(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}

	seen := make(map[string]bool)
	var names []string
	for _, part := range strings.Split(s, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		lower := strings.ToLower(name)
		if seen[lower] {
			continue
		}
		seen[lower] = true
		names = append(names, name)
	}
	return names
}

// extensionFor derives a file extension from the URL path. Missing or
// suspiciously long extensions fall back to .jpg.
func extensionFor(imageURL string) string {
	u, err := url.Parse(imageURL)
	if err != nil {
		return defaultExt
	}
	ext := path.Ext(u.Path)
	if ext == "" || len(ext) > maxExtLen {
		return defaultExt
	}
	return ext
}

func cancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func failureMessage(op string, err error) string {
	if cancelled(err) {
		return fmt.Sprintf("%s: cancelled: %v", op, err)
	}
	return fmt.Sprintf("%s: %v", op, err)
}
