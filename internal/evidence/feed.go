package evidence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// feedRequestTimeout bounds a single feed HTTP call. The per-agent timeout
// still applies on top via the request context.
const feedRequestTimeout = 8 * time.Second

// feedItem is the wire format of one public-activity search hit.
// The feed service contract is fixed: GET {base}/search?q=...&limit=N.
type feedItem struct {
	ID     string  `json:"id"`
	Source string  `json:"source"`
	Offset int     `json:"offset"`
	Text   string  `json:"text"`
	Score  float64 `json:"score"`
}

type feedResponse struct {
	Items []feedItem `json:"items"`
}

// Feed queries a public-activity feed service (social posts, talks,
// community activity) for persona evidence. Calls are rate limited so a
// burst of sessions cannot hammer the upstream service.
type Feed struct {
	client  *resty.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewFeed creates the feed adapter. rps bounds outbound request rate;
// values <= 0 fall back to 1 request per second.
func NewFeed(baseURL, apiKey string, rps float64, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	if rps <= 0 {
		rps = 1
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(feedRequestTimeout).
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		client.SetHeader("Authorization", "Bearer "+apiKey)
	}

	return &Feed{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:  logger,
	}
}

// Name implements Adapter.
func (f *Feed) Name() string {
	return "feed"
}

// Query searches the feed service. A 404 or empty item list is a normal
// no-evidence outcome; transport errors and non-2xx statuses are errors the
// owning agent isolates.
func (f *Feed) Query(ctx context.Context, subQuery string, topK int) ([]Chunk, error) {
	if topK <= 0 {
		return nil, nil
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("feed rate limit wait: %w", err)
	}

	var body feedResponse
	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParam("q", subQuery).
		SetQueryParam("limit", fmt.Sprintf("%d", topK)).
		SetResult(&body).
		Get("/search")
	if err != nil {
		return nil, fmt.Errorf("feed request: %w", err)
	}
	if resp.StatusCode() == 404 {
		return nil, nil
	}
	if resp.IsError() {
		return nil, fmt.Errorf("feed request failed: %s", resp.Status())
	}

	chunks := make([]Chunk, 0, len(body.Items))
	for _, item := range body.Items {
		if item.Text == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			ID:         item.ID,
			SourceID:   item.Source,
			Offset:     item.Offset,
			Text:       item.Text,
			Similarity: item.Score,
			Provenance: f.Name(),
		})
	}

	f.logger.Debug("feed search complete", "hits", len(chunks))
	return chunks, nil
}
