package evidence

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/go-github/v74/github"
)

// maxReposPerPage bounds the repository listing; profiles with more public
// repositories than this are truncated to the most recently updated ones.
const maxReposPerPage = 100

// RepoLister is the subset of the go-github Repositories service used by the
// adapter. Interface defined by the consumer for testability.
type RepoLister interface {
	ListByUser(ctx context.Context, user string, opts *github.RepositoryListByUserOptions) ([]*github.Repository, *github.Response, error)
}

// GitHubRepos exposes public repository metadata as evidence chunks.
// Relevance is lexical term overlap between the sub-query and the repository
// description text; there is no embedding index behind this source.
type GitHubRepos struct {
	repos  RepoLister
	owner  string
	logger *slog.Logger
}

// NewGitHubRepos creates the adapter for one GitHub account. Pass token ""
// for anonymous access (rate-limited by GitHub).
func NewGitHubRepos(owner, token string, logger *slog.Logger) *GitHubRepos {
	if logger == nil {
		logger = slog.Default()
	}
	client := github.NewClient(nil)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	return &GitHubRepos{repos: client.Repositories, owner: owner, logger: logger}
}

// NewGitHubReposWithLister creates the adapter with a custom lister (tests).
func NewGitHubReposWithLister(lister RepoLister, owner string, logger *slog.Logger) *GitHubRepos {
	if logger == nil {
		logger = slog.Default()
	}
	return &GitHubRepos{repos: lister, owner: owner, logger: logger}
}

// Name implements Adapter.
func (g *GitHubRepos) Name() string {
	return "github"
}

// Query lists the owner's public repositories and returns the topK whose
// metadata best overlaps the sub-query terms. Repositories with zero overlap
// are dropped, so an unrelated query yields an empty result.
func (g *GitHubRepos) Query(ctx context.Context, subQuery string, topK int) ([]Chunk, error) {
	if topK <= 0 {
		return nil, nil
	}

	repos, _, err := g.repos.ListByUser(ctx, g.owner, &github.RepositoryListByUserOptions{
		Sort:        "updated",
		ListOptions: github.ListOptions{PerPage: maxReposPerPage},
	})
	if err != nil {
		return nil, fmt.Errorf("listing repositories for %s: %w", g.owner, err)
	}

	terms := queryTerms(subQuery)
	var chunks []Chunk
	for _, repo := range repos {
		text := describeRepo(repo)
		score := termOverlap(terms, text)
		if score == 0 {
			continue
		}
		chunks = append(chunks, Chunk{
			ID:         "github:" + repo.GetFullName(),
			SourceID:   "github:" + repo.GetFullName(),
			Offset:     0,
			Text:       text,
			Similarity: score,
			Provenance: g.Name(),
		})
	}

	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].Similarity != chunks[j].Similarity {
			return chunks[i].Similarity > chunks[j].Similarity
		}
		return chunks[i].SourceID < chunks[j].SourceID
	})
	if len(chunks) > topK {
		chunks = chunks[:topK]
	}

	g.logger.Debug("github search complete", "owner", g.owner, "hits", len(chunks))
	return chunks, nil
}

// describeRepo renders repository metadata as one evidence text.
func describeRepo(repo *github.Repository) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Repository %s", repo.GetFullName())
	if lang := repo.GetLanguage(); lang != "" {
		fmt.Fprintf(&b, " (%s)", lang)
	}
	if desc := repo.GetDescription(); desc != "" {
		fmt.Fprintf(&b, ": %s", desc)
	}
	if topics := repo.Topics; len(topics) > 0 {
		fmt.Fprintf(&b, ". Topics: %s.", strings.Join(topics, ", "))
	}
	if stars := repo.GetStargazersCount(); stars > 0 {
		fmt.Fprintf(&b, " Stars: %d.", stars)
	}
	return b.String()
}

// queryTerms lowercases and splits a query into terms, dropping short stop-ish
// words that would match everything.
func queryTerms(q string) []string {
	fields := strings.FieldsFunc(strings.ToLower(q), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	terms := fields[:0]
	for _, f := range fields {
		if len(f) >= 3 {
			terms = append(terms, f)
		}
	}
	return terms
}

// termOverlap returns the fraction of query terms present in text, in [0, 1].
func termOverlap(terms []string, text string) float64 {
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	hits := 0
	for _, t := range terms {
		if strings.Contains(lower, t) {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}
