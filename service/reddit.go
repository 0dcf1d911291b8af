package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

const redditBaseURL = "https://www.reddit.com"

// RedditPost is the subset of a listing child the watchers use.
type RedditPost struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Subreddit   string `json:"subreddit"`
	SelfText    string `json:"selftext"`
	Permalink   string `json:"permalink"`
	Score       int    `json:"score"`
	NumComments int    `json:"num_comments"`
}

// URL returns the full reddit.com permalink.
func (p *RedditPost) URL() string {
	return redditBaseURL + p.Permalink
}

// Reddit reads public listing endpoints. No OAuth, just the descriptive
// User-Agent reddit's API rules ask for.
type Reddit struct {
	baseURL   string
	userAgent string
	rest      *resty.Client
}

// NewReddit returns a listing client identifying as userAgent.
func NewReddit(userAgent string) *Reddit {
	return &Reddit{
		baseURL:   redditBaseURL,
		userAgent: userAgent,
		rest:      resty.New().SetTimeout(15 * time.Second),
	}
}

// Hot returns the hot listing for one or more subreddits ("a+b" form).
func (r *Reddit) Hot(ctx context.Context, subreddits string, limit int) ([]RedditPost, error) {
	var out struct {
		Data struct {
			Children []struct {
				Data RedditPost `json:"data"`
			} `json:"children"`
		} `json:"data"`
	}
	resp, err := r.rest.R().
		SetContext(ctx).
		SetHeader("User-Agent", r.userAgent).
		SetQueryParam("limit", strconv.Itoa(limit)).
		SetResult(&out).
		Get(fmt.Sprintf("%s/r/%s/hot.json", r.baseURL, subreddits))
	if err != nil {
		return nil, fmt.Errorf("reddit hot %s: %w", subreddits, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("reddit hot %s: status %s", subreddits, resp.Status())
	}

	posts := make([]RedditPost, 0, len(out.Data.Children))
	for _, c := range out.Data.Children {
		posts = append(posts, c.Data)
	}
	return posts, nil
}
