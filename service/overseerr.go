package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// MediaStatusAvailable is the Overseerr media status meaning the item
// is fully available on Plex.
const MediaStatusAvailable = 5

// MediaInfo is Overseerr's record of a library item.
type MediaInfo struct {
	ID          int    `json:"id"`
	Status      int    `json:"status"`
	RatingKey   string `json:"ratingKey"`
	RatingKey4k string `json:"ratingKey4k"`
}

// PlexRatingKey returns whichever Plex rating key is set.
func (m *MediaInfo) PlexRatingKey() string {
	if m == nil {
		return ""
	}
	if m.RatingKey != "" {
		return m.RatingKey
	}
	return m.RatingKey4k
}

// Available reports whether the item is already watchable on Plex.
func (m *MediaInfo) Available() bool {
	return m != nil && m.Status >= MediaStatusAvailable
}

// SearchResult is one row of an Overseerr search.
type SearchResult struct {
	ID           int        `json:"id"`
	MediaType    string     `json:"mediaType"`
	Title        string     `json:"title"`
	Name         string     `json:"name"`
	ReleaseDate  string     `json:"releaseDate"`
	FirstAirDate string     `json:"firstAirDate"`
	Overview     string     `json:"overview"`
	PosterPath   string     `json:"posterPath"`
	MediaInfo    *MediaInfo `json:"mediaInfo"`
}

// DisplayTitle returns "Title (Year)" using whichever fields the media
// type populates: movies carry title/releaseDate, TV carries
// name/firstAirDate.
func (r *SearchResult) DisplayTitle() string {
	title := r.Title
	if title == "" {
		title = r.Name
	}
	if title == "" {
		title = "Unknown"
	}
	date := r.ReleaseDate
	if date == "" {
		date = r.FirstAirDate
	}
	if len(date) >= 4 {
		return fmt.Sprintf("%s (%s)", title, date[:4])
	}
	return title
}

// MediaRequest is a submitted Overseerr request.
type MediaRequest struct {
	ID    int        `json:"id"`
	Media *MediaInfo `json:"media"`
}

// Overseerr is a client for an Overseerr server's v1 API.
type Overseerr struct {
	baseURL string
	apiKey  string
	rest    *resty.Client
}

// NewOverseerr returns a client for the server at baseURL.
func NewOverseerr(baseURL, apiKey string) *Overseerr {
	return &Overseerr{
		baseURL: strings.TrimRight(baseURL, "/") + "/api/v1",
		apiKey:  apiKey,
		rest:    resty.New().SetTimeout(15 * time.Second),
	}
}

// Search queries Overseerr for movies and TV shows.
func (o *Overseerr) Search(ctx context.Context, query string) ([]SearchResult, error) {
	var out struct {
		Results []SearchResult `json:"results"`
	}
	resp, err := o.rest.R().
		SetContext(ctx).
		SetHeader("X-Api-Key", o.apiKey).
		SetQueryParam("query", query).
		SetQueryParam("page", "1").
		SetResult(&out).
		Get(o.baseURL + "/search")
	if err != nil {
		return nil, fmt.Errorf("overseerr search: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("overseerr search: status %s", resp.Status())
	}
	return out.Results, nil
}

// RequestMedia submits a request for a TMDB title.
func (o *Overseerr) RequestMedia(ctx context.Context, mediaType string, tmdbID int) (*MediaRequest, error) {
	var out MediaRequest
	resp, err := o.rest.R().
		SetContext(ctx).
		SetHeader("X-Api-Key", o.apiKey).
		SetBody(map[string]any{"mediaType": mediaType, "mediaId": tmdbID}).
		SetResult(&out).
		Post(o.baseURL + "/request")
	if err != nil {
		return nil, fmt.Errorf("overseerr request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("overseerr request: status %s", resp.Status())
	}
	return &out, nil
}

// RequestStatus fetches a request by ID, including its media status.
func (o *Overseerr) RequestStatus(ctx context.Context, requestID int) (*MediaRequest, error) {
	var out MediaRequest
	resp, err := o.rest.R().
		SetContext(ctx).
		SetHeader("X-Api-Key", o.apiKey).
		SetResult(&out).
		Get(fmt.Sprintf("%s/request/%d", o.baseURL, requestID))
	if err != nil {
		return nil, fmt.Errorf("overseerr request %d: %w", requestID, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("overseerr request %d: status %s", requestID, resp.Status())
	}
	return &out, nil
}

// Media fetches a library item by Overseerr media ID.
func (o *Overseerr) Media(ctx context.Context, mediaID int) (*MediaInfo, error) {
	var out MediaInfo
	resp, err := o.rest.R().
		SetContext(ctx).
		SetHeader("X-Api-Key", o.apiKey).
		SetResult(&out).
		Get(fmt.Sprintf("%s/media/%d", o.baseURL, mediaID))
	if err != nil {
		return nil, fmt.Errorf("overseerr media %d: %w", mediaID, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("overseerr media %d: status %s", mediaID, resp.Status())
	}
	return &out, nil
}

// PlexWebLink builds a deep link into the Plex web app for a rating
// key. serverID is the Plex server's machine identifier.
func PlexWebLink(plexURL, serverID, ratingKey string) string {
	return fmt.Sprintf("%s/web/index.html#!/server/%s/details?key=/library/metadata/%s",
		strings.TrimRight(plexURL, "/"), serverID, ratingKey)
}
