package evidence

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-github/v74/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folio0/folio/internal/log"
)

func TestDedupe_KeepsHighestRerank(t *testing.T) {
	chunks := []Chunk{
		{ID: "a", SourceID: "doc1", Offset: 0, Rerank: 0.3, Reranked: true},
		{ID: "b", SourceID: "doc1", Offset: 0, Rerank: 0.9, Reranked: true},
		{ID: "c", SourceID: "doc1", Offset: 1, Rerank: 0.1, Reranked: true},
	}

	out := Dedupe(chunks)

	require.Len(t, out, 2)
	assert.Equal(t, "b", out[0].ID, "duplicate should resolve to highest rerank score")
	assert.Equal(t, "c", out[1].ID)
}

func TestDedupe_PrefersRerankedOverSimilarity(t *testing.T) {
	chunks := []Chunk{
		{ID: "a", SourceID: "doc1", Offset: 0, Similarity: 0.99},
		{ID: "b", SourceID: "doc1", Offset: 0, Rerank: 0.2, Reranked: true},
	}

	out := Dedupe(chunks)

	require.Len(t, out, 1)
	assert.Equal(t, "b", out[0].ID)
}

func TestDedupe_FallsBackToSimilarity(t *testing.T) {
	chunks := []Chunk{
		{ID: "a", SourceID: "doc1", Offset: 0, Similarity: 0.5},
		{ID: "b", SourceID: "doc1", Offset: 0, Similarity: 0.8},
	}

	out := Dedupe(chunks)

	require.Len(t, out, 1)
	assert.Equal(t, "b", out[0].ID)
}

func TestDedupe_PreservesOrder(t *testing.T) {
	chunks := []Chunk{
		{ID: "a", SourceID: "s1", Offset: 0},
		{ID: "b", SourceID: "s2", Offset: 0},
		{ID: "c", SourceID: "s3", Offset: 0},
	}

	out := Dedupe(chunks)

	require.Len(t, out, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{out[0].ID, out[1].ID, out[2].ID})
}

func TestNewVectorStore_RejectsUnknownScope(t *testing.T) {
	_, err := NewVectorStore(nil, nil, "everything", log.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownScope)
}

func TestVectorStore_Name(t *testing.T) {
	s, err := NewVectorStore(nil, nil, ScopeProfessional, log.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "vector/professional", s.Name())
}

// fakeRepoLister returns a fixed repository list.
type fakeRepoLister struct {
	repos []*github.Repository
	err   error
}

func (f *fakeRepoLister) ListByUser(_ context.Context, _ string, _ *github.RepositoryListByUserOptions) ([]*github.Repository, *github.Response, error) {
	return f.repos, nil, f.err
}

func repo(fullName, lang, desc string, topics ...string) *github.Repository {
	return &github.Repository{
		FullName:    github.Ptr(fullName),
		Language:    github.Ptr(lang),
		Description: github.Ptr(desc),
		Topics:      topics,
	}
}

func TestGitHubRepos_Query_RanksByOverlap(t *testing.T) {
	lister := &fakeRepoLister{repos: []*github.Repository{
		repo("owner/vision-models", "Python", "computer vision research models", "vision", "deep-learning"),
		repo("owner/dotfiles", "Shell", "personal dotfiles"),
		repo("owner/vision-tools", "Go", "tools for vision pipelines", "vision"),
	}}
	g := NewGitHubReposWithLister(lister, "owner", log.NewNop())

	chunks, err := g.Query(context.Background(), "computer vision research", 10)
	require.NoError(t, err)

	require.Len(t, chunks, 2, "repo with no term overlap should be dropped")
	assert.Equal(t, "github:owner/vision-models", chunks[0].ID)
	assert.Greater(t, chunks[0].Similarity, chunks[1].Similarity)
	assert.Equal(t, "github", chunks[0].Provenance)
}

func TestGitHubRepos_Query_TopKTruncation(t *testing.T) {
	lister := &fakeRepoLister{repos: []*github.Repository{
		repo("owner/a", "Go", "golang project"),
		repo("owner/b", "Go", "golang library"),
		repo("owner/c", "Go", "golang tool"),
	}}
	g := NewGitHubReposWithLister(lister, "owner", log.NewNop())

	chunks, err := g.Query(context.Background(), "golang", 2)
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
}

func TestGitHubRepos_Query_ZeroTopK(t *testing.T) {
	g := NewGitHubReposWithLister(&fakeRepoLister{}, "owner", log.NewNop())

	chunks, err := g.Query(context.Background(), "anything", 0)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestFeed_Query(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "conference talks", r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[
			{"id":"post-1","source":"blog","offset":0,"text":"Gave a talk on distributed systems.","score":0.82},
			{"id":"post-2","source":"blog","offset":1,"text":"","score":0.5}
		]}`))
	}))
	defer srv.Close()

	f := NewFeed(srv.URL, "", 100, log.NewNop())

	chunks, err := f.Query(context.Background(), "conference talks", 5)
	require.NoError(t, err)

	require.Len(t, chunks, 1, "items with empty text should be dropped")
	assert.Equal(t, "post-1", chunks[0].ID)
	assert.Equal(t, "feed", chunks[0].Provenance)
	assert.InDelta(t, 0.82, chunks[0].Similarity, 1e-9)
}

func TestFeed_Query_NotFoundIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFeed(srv.URL, "", 100, log.NewNop())

	chunks, err := f.Query(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestFeed_Query_ServerErrorIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewFeed(srv.URL, "", 100, log.NewNop())

	_, err := f.Query(context.Background(), "anything", 5)
	require.Error(t, err)
}
