package fetcher_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kiranshivaraju/catstealer/internal/catapi"
	"github.com/kiranshivaraju/catstealer/internal/fetcher"
	"github.com/kiranshivaraju/catstealer/internal/jobs"
	"github.com/kiranshivaraju/catstealer/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Fakes ---

type fakeCatalog struct {
	images       []models.CatImage
	fetchErr     error
	downloadErrs map[string]error // image URL -> error
	downloads    []string
	cancelOn     string // cancel this context func when downloading this URL
	cancel       context.CancelFunc
}

func (f *fakeCatalog) FetchImages(ctx context.Context, limit int) ([]models.CatImage, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if limit < len(f.images) {
		return f.images[:limit], nil
	}
	return f.images, nil
}

func (f *fakeCatalog) Download(ctx context.Context, imageURL string) ([]byte, error) {
	f.downloads = append(f.downloads, imageURL)
	if f.cancelOn == imageURL {
		f.cancel()
		return nil, context.Canceled
	}
	if err := f.downloadErrs[imageURL]; err != nil {
		return nil, err
	}
	return []byte("image-bytes"), nil
}

type fakeSink struct {
	written  map[string][]byte
	writeErr map[string]error // key -> error
}

func newFakeSink() *fakeSink {
	return &fakeSink{written: make(map[string][]byte), writeErr: make(map[string]error)}
}

func (f *fakeSink) Write(ctx context.Context, key string, data []byte) (string, error) {
	if err := f.writeErr[key]; err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.written[key] = data
	return key, nil
}

// fakeRepo persists across Fetch calls so cross-job dedupe is observable.
type fakeRepo struct {
	ids       map[string]struct{}
	tags      map[string]*models.Tag
	committed [][]*models.Cat
	commitErr error
	nextTagID int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		ids:  make(map[string]struct{}),
		tags: make(map[string]*models.Tag),
	}
}

func (f *fakeRepo) ExistingCatIDs(ctx context.Context) (map[string]struct{}, error) {
	out := make(map[string]struct{}, len(f.ids))
	for id := range f.ids {
		out[id] = struct{}{}
	}
	return out, nil
}

func (f *fakeRepo) TagsByLowerName(ctx context.Context) (map[string]*models.Tag, error) {
	out := make(map[string]*models.Tag, len(f.tags))
	for k, v := range f.tags {
		out[k] = v
	}
	return out, nil
}

func (f *fakeRepo) CreateCatsBatch(ctx context.Context, cats []*models.Cat) (int, error) {
	if f.commitErr != nil {
		return 0, f.commitErr
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	for _, cat := range cats {
		f.ids[cat.CatID] = struct{}{}
		for _, tag := range cat.Tags {
			if tag.ID == 0 {
				f.nextTagID++
				tag.ID = f.nextTagID
			}
			f.tags[strings.ToLower(tag.Name)] = tag
		}
	}
	f.committed = append(f.committed, cats)
	return len(cats), nil
}

type env struct {
	catalog  *fakeCatalog
	sink     *fakeSink
	repo     *fakeRepo
	registry *jobs.Registry
	fetcher  *fetcher.Fetcher
}

func newEnv(catalog *fakeCatalog) *env {
	e := &env{
		catalog:  catalog,
		sink:     newFakeSink(),
		repo:     newFakeRepo(),
		registry: jobs.NewRegistry(0),
	}
	e.fetcher = fetcher.New(e.catalog, e.sink, e.repo, e.registry)
	return e
}

func (e *env) run(t *testing.T, count int) models.Job {
	t.Helper()
	id := e.registry.Create()
	e.fetcher.Fetch(context.Background(), id, count)
	return e.registry.Get(id)
}

func img(id, url string, temperament string) models.CatImage {
	ci := models.CatImage{ID: id, URL: url, Width: 640, Height: 480}
	if temperament != "" {
		ci.Breeds = []models.Breed{{Name: "SomeBreed", Temperament: temperament}}
	}
	return ci
}

// --- Tests ---

func TestFetch_HappyPath(t *testing.T) {
	e := newEnv(&fakeCatalog{images: []models.CatImage{
		img("a1", "https://cdn.example.com/a1.jpg", "Playful, Curious"),
		img("a2", "https://cdn.example.com/a2.png", ""),
	}})

	job := e.run(t, 2)

	assert.Equal(t, models.JobStatusSucceeded, job.Status)
	require.NotNil(t, job.Result)
	assert.Equal(t, 2, job.Result.NewCats)
	require.NotNil(t, job.StartedAt)
	require.NotNil(t, job.FinishedAt)

	require.Len(t, e.repo.committed, 1)
	batch := e.repo.committed[0]
	require.Len(t, batch, 2)
	assert.Equal(t, "a1", batch[0].CatID)
	assert.Equal(t, "a1.jpg", batch[0].Image)
	assert.Equal(t, 640, batch[0].Width)
	require.Len(t, batch[0].Tags, 2)
	assert.Equal(t, "Playful", batch[0].Tags[0].Name)
	assert.Equal(t, "Curious", batch[0].Tags[1].Name)
	assert.Empty(t, batch[1].Tags)

	assert.Contains(t, e.sink.written, "a1.jpg")
	assert.Contains(t, e.sink.written, "a2.png")
}

func TestFetch_EmptyCatalogSucceedsWithZero(t *testing.T) {
	e := newEnv(&fakeCatalog{})

	job := e.run(t, 5)

	assert.Equal(t, models.JobStatusSucceeded, job.Status)
	require.NotNil(t, job.Result)
	assert.Zero(t, job.Result.NewCats)
	assert.Empty(t, e.repo.committed)
}

func TestFetch_CatalogFailureFailsJob(t *testing.T) {
	e := newEnv(&fakeCatalog{fetchErr: catapi.ErrCatAPIUnreachable})

	job := e.run(t, 5)

	assert.Equal(t, models.JobStatusFailed, job.Status)
	require.NotNil(t, job.ErrorMessage)
	assert.Contains(t, *job.ErrorMessage, "fetching images")
	assert.Empty(t, e.repo.committed)
}

func TestFetch_SkipsKnownIDs(t *testing.T) {
	e := newEnv(&fakeCatalog{images: []models.CatImage{
		img("a1", "https://cdn.example.com/a1.jpg", ""),
		img("a2", "https://cdn.example.com/a2.jpg", ""),
	}})
	e.repo.ids["a1"] = struct{}{} // a1 stolen in some earlier batch

	job := e.run(t, 2)

	assert.Equal(t, models.JobStatusSucceeded, job.Status)
	assert.Equal(t, 1, job.Result.NewCats)
	require.Len(t, e.repo.committed, 1)
	require.Len(t, e.repo.committed[0], 1)
	assert.Equal(t, "a2", e.repo.committed[0][0].CatID)
	// No download attempted for the known id.
	assert.Equal(t, []string{"https://cdn.example.com/a2.jpg"}, e.catalog.downloads)
}

func TestFetch_SkipsDuplicateIDsWithinBatch(t *testing.T) {
	e := newEnv(&fakeCatalog{images: []models.CatImage{
		img("dup", "https://cdn.example.com/one.jpg", ""),
		img("dup", "https://cdn.example.com/two.jpg", ""),
	}})

	job := e.run(t, 2)

	assert.Equal(t, 1, job.Result.NewCats)
	require.Len(t, e.repo.committed[0], 1)
	assert.Equal(t, "dup.jpg", e.repo.committed[0][0].Image)
	// First occurrence wins: only its URL is ever downloaded.
	assert.Equal(t, []string{"https://cdn.example.com/one.jpg"}, e.catalog.downloads)
}

func TestFetch_SkipsBlankIDAndURL(t *testing.T) {
	e := newEnv(&fakeCatalog{images: []models.CatImage{
		img("", "https://cdn.example.com/no-id.jpg", ""),
		img("no-url", "", ""),
		img("ok", "https://cdn.example.com/ok.jpg", ""),
	}})

	job := e.run(t, 3)

	assert.Equal(t, models.JobStatusSucceeded, job.Status)
	assert.Equal(t, 1, job.Result.NewCats)
}

func TestFetch_PartialDownloadFailureTolerated(t *testing.T) {
	e := newEnv(&fakeCatalog{
		images: []models.CatImage{
			img("a1", "https://cdn.example.com/a1.jpg", ""),
			img("a2", "https://cdn.example.com/a2.jpg", ""),
			img("a3", "https://cdn.example.com/a3.jpg", ""),
		},
		downloadErrs: map[string]error{
			"https://cdn.example.com/a2.jpg": catapi.ErrEmptyPayload,
		},
	})

	job := e.run(t, 3)

	assert.Equal(t, models.JobStatusSucceeded, job.Status)
	assert.Equal(t, 2, job.Result.NewCats)
	require.Len(t, e.repo.committed, 1)
	assert.Equal(t, "a1", e.repo.committed[0][0].CatID)
	assert.Equal(t, "a3", e.repo.committed[0][1].CatID)
}

func TestFetch_SinkFailureSkipsItem(t *testing.T) {
	e := newEnv(&fakeCatalog{images: []models.CatImage{
		img("a1", "https://cdn.example.com/a1.jpg", ""),
		img("a2", "https://cdn.example.com/a2.jpg", ""),
	}})
	e.sink.writeErr["a1.jpg"] = errors.New("disk full")

	job := e.run(t, 2)

	assert.Equal(t, models.JobStatusSucceeded, job.Status)
	assert.Equal(t, 1, job.Result.NewCats)
	assert.Equal(t, "a2", e.repo.committed[0][0].CatID)
}

func TestFetch_AllItemsSkippedSucceedsWithZero(t *testing.T) {
	e := newEnv(&fakeCatalog{
		images: []models.CatImage{
			img("a1", "https://cdn.example.com/a1.jpg", ""),
		},
		downloadErrs: map[string]error{
			"https://cdn.example.com/a1.jpg": catapi.ErrCatAPIStatus,
		},
	})

	job := e.run(t, 1)

	assert.Equal(t, models.JobStatusSucceeded, job.Status)
	assert.Zero(t, job.Result.NewCats)
	assert.Empty(t, e.repo.committed)
}

func TestFetch_CancellationMidDownloadFailsJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	catalog := &fakeCatalog{
		images: []models.CatImage{
			img("a1", "https://cdn.example.com/a1.jpg", ""),
			img("a2", "https://cdn.example.com/a2.jpg", ""),
		},
		cancelOn: "https://cdn.example.com/a2.jpg",
		cancel:   cancel,
	}
	e := newEnv(catalog)

	id := e.registry.Create()
	e.fetcher.Fetch(ctx, id, 2)
	job := e.registry.Get(id)

	// Cancellation is batch-fatal: the job fails and nothing is committed,
	// not even the image that downloaded cleanly.
	assert.Equal(t, models.JobStatusFailed, job.Status)
	require.NotNil(t, job.ErrorMessage)
	assert.Contains(t, *job.ErrorMessage, "cancelled")
	assert.Empty(t, e.repo.committed)
}

func TestFetch_CommitFailureFailsJob(t *testing.T) {
	e := newEnv(&fakeCatalog{images: []models.CatImage{
		img("a1", "https://cdn.example.com/a1.jpg", ""),
	}})
	e.repo.commitErr = errors.New("deadlock detected")

	job := e.run(t, 1)

	assert.Equal(t, models.JobStatusFailed, job.Status)
	require.NotNil(t, job.ErrorMessage)
	assert.Contains(t, *job.ErrorMessage, "saving cats")
	assert.Contains(t, *job.ErrorMessage, "deadlock detected")
}

func TestFetch_TagCaseFoldingWithinBatch(t *testing.T) {
	e := newEnv(&fakeCatalog{images: []models.CatImage{
		img("a1", "https://cdn.example.com/a1.jpg", "Playful, curious"),
		img("a2", "https://cdn.example.com/a2.jpg", "playful, Curious"),
	}})

	job := e.run(t, 2)
	require.Equal(t, models.JobStatusSucceeded, job.Status)

	batch := e.repo.committed[0]
	require.Len(t, batch[0].Tags, 2)
	require.Len(t, batch[1].Tags, 2)
	// Same tag objects, first-seen casing wins.
	assert.Same(t, batch[0].Tags[0], batch[1].Tags[0])
	assert.Same(t, batch[0].Tags[1], batch[1].Tags[1])
	assert.Equal(t, "Playful", batch[1].Tags[0].Name)
	assert.Equal(t, "curious", batch[1].Tags[1].Name)
}

func TestFetch_TagCaseFoldingAcrossJobs(t *testing.T) {
	e := newEnv(&fakeCatalog{images: []models.CatImage{
		img("a1", "https://cdn.example.com/a1.jpg", "Playful, curious"),
	}})
	job := e.run(t, 1)
	require.Equal(t, models.JobStatusSucceeded, job.Status)

	e.catalog.images = []models.CatImage{
		img("b1", "https://cdn.example.com/b1.jpg", "playful, Curious"),
	}
	job = e.run(t, 1)
	require.Equal(t, models.JobStatusSucceeded, job.Status)

	// Exactly two tag rows total across both jobs.
	assert.Len(t, e.repo.tags, 2)
	assert.Equal(t, "Playful", e.repo.tags["playful"].Name)
	assert.Equal(t, "curious", e.repo.tags["curious"].Name)
}

func TestFetch_TemperamentDedupeWithinString(t *testing.T) {
	e := newEnv(&fakeCatalog{images: []models.CatImage{
		img("a1", "https://cdn.example.com/a1.jpg", " Playful ,, playful,PLAYFUL , Calm"),
	}})

	e.run(t, 1)

	tags := e.repo.committed[0][0].Tags
	require.Len(t, tags, 2)
	assert.Equal(t, "Playful", tags[0].Name)
	assert.Equal(t, "Calm", tags[1].Name)
}

func TestFetch_OnlyFirstBreedContributesTags(t *testing.T) {
	ci := img("a1", "https://cdn.example.com/a1.jpg", "Gentle")
	ci.Breeds = append(ci.Breeds, models.Breed{Name: "Other", Temperament: "Feral, Wild"})
	e := newEnv(&fakeCatalog{images: []models.CatImage{ci}})

	e.run(t, 1)

	tags := e.repo.committed[0][0].Tags
	require.Len(t, tags, 1)
	assert.Equal(t, "Gentle", tags[0].Name)
}

func TestFetch_ExtensionDerivation(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"plain jpg", "https://cdn.example.com/cat.jpg", "x.jpg"},
		{"png with query", "https://cdn.example.com/cat.png?size=full", "x.png"},
		{"no extension", "https://cdn.example.com/cat", "x.jpg"},
		{"too long", "https://cdn.example.com/cat.jpeg", "x.jpg"},
		{"gif", "https://cdn.example.com/cat.gif", "x.gif"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(&fakeCatalog{images: []models.CatImage{img("x", tt.url, "")}})
			e.run(t, 1)
			assert.Contains(t, e.sink.written, tt.want)
		})
	}
}

func TestFetch_RerunWithSameCatalogAddsNothing(t *testing.T) {
	images := []models.CatImage{
		img("a1", "https://cdn.example.com/a1.jpg", ""),
		img("a2", "https://cdn.example.com/a2.jpg", ""),
	}
	e := newEnv(&fakeCatalog{images: images})

	first := e.run(t, 2)
	assert.Equal(t, 2, first.Result.NewCats)

	second := e.run(t, 2)
	assert.Equal(t, models.JobStatusSucceeded, second.Status)
	assert.Zero(t, second.Result.NewCats)
	assert.Len(t, e.repo.committed, 1, "second run must not commit")
}
