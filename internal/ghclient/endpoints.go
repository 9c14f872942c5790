package ghclient

import (
	"context"
	"fmt"
	"net/url"
)

// RateLimitStatus mirrors the upstream GET /rate_limit payload shape closely
// enough for the orchestrator to persist a snapshot.
type RateLimitStatus struct {
	Resource  string
	Limit     int
	Remaining int
	ResetUnix int64
}

// RateLimit calls GET /rate_limit using the core bucket.
func (c *Client) RateLimit(ctx context.Context) (*RateLimitStatus, error) {
	resp, err := c.Do(ctx, Request{Path: "/rate_limit", Bucket: BucketCore})
	if err != nil {
		return nil, err
	}
	m, ok := resp.JSON.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("ghclient: unexpected rate_limit payload shape")
	}
	core, _ := m["resources"].(map[string]any)["core"].(map[string]any)
	return &RateLimitStatus{
		Resource:  "core",
		Limit:     toInt(core["limit"]),
		Remaining: toInt(core["remaining"]),
		ResetUnix: toInt64(core["reset"]),
	}, nil
}

// SearchResult is the subset of the upstream search-repositories payload
// the discovery pipeline consumes.
type SearchResult struct {
	TotalCount        int
	IncompleteResults bool
	Items             []SearchRepoItem
}

// SearchRepoItem is one repository as returned by the search endpoint.
type SearchRepoItem struct {
	FullName    string
	Stars       int
	Forks       int
	Topics      []string
	Language    string
	License     string
	PushedAt    string
	Archived    bool
	Fork        bool
}

// SearchRepositories calls GET /search/repositories?q=... using the search
// bucket, requesting page `page` (1-indexed) at perPage results.
func (c *Client) SearchRepositories(ctx context.Context, query string, page, perPage int) (*SearchResult, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("page", fmt.Sprintf("%d", page))
	q.Set("per_page", fmt.Sprintf("%d", perPage))

	resp, err := c.Do(ctx, Request{Path: "/search/repositories", Bucket: BucketSearch, Query: q})
	if err != nil {
		return nil, err
	}

	m, ok := resp.JSON.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("ghclient: unexpected search payload shape")
	}

	result := &SearchResult{
		TotalCount:        toInt(m["total_count"]),
		IncompleteResults: toBool(m["incomplete_results"]),
	}

	items, _ := m["items"].([]any)
	for _, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		owner, _ := item["owner"].(map[string]any)
		ownerLogin, _ := owner["login"].(string)
		name, _ := item["name"].(string)
		fullName := fmt.Sprintf("%s/%s", ownerLogin, name)
		if v, ok := item["full_name"].(string); ok && v != "" {
			fullName = v
		}

		license, _ := item["license"].(map[string]any)
		licenseID, _ := license["spdx_id"].(string)

		var topics []string
		if raw, ok := item["topics"].([]any); ok {
			for _, t := range raw {
				if s, ok := t.(string); ok {
					topics = append(topics, s)
				}
			}
		}

		result.Items = append(result.Items, SearchRepoItem{
			FullName: fullName,
			Stars:    toInt(item["stargazers_count"]),
			Forks:    toInt(item["forks_count"]),
			Topics:   topics,
			Language: stringOrEmpty(item["language"]),
			License:  licenseID,
			PushedAt: stringOrEmpty(item["pushed_at"]),
			Archived: toBool(item["archived"]),
			Fork:     toBool(item["fork"]),
		})
	}

	return result, nil
}

// Readme is the raw result of fetching a repository's README.
type Readme struct {
	Content   []byte
	ETag      string
	SourceURL string
}

// FetchReadme calls GET /repos/{owner}/{name}/readme with the raw accept
// media type, using the core bucket. Returns a *Error with
// Kind == KindReadmeMissing on 404, which the pipeline treats as non-fatal.
func (c *Client) FetchReadme(ctx context.Context, fullName string) (*Readme, error) {
	resp, err := c.Do(ctx, Request{
		Path:   "/repos/" + fullName + "/readme",
		Accept: "application/vnd.github.raw",
		Bucket: BucketCore,
	})
	if err != nil {
		return nil, err
	}
	return &Readme{
		Content:   resp.Raw,
		ETag:      resp.Headers.Get("ETag"),
		SourceURL: c.baseURL + "/repos/" + fullName + "/readme",
	}, nil
}

func toInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	default:
		return 0
	}
}

func toBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func stringOrEmpty(v any) string {
	s, _ := v.(string)
	return s
}
