package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// GiphyBaseURL is the sticker endpoint root.
const GiphyBaseURL = "https://api.giphy.com/v1/stickers"

// Giphy searches GIPHY stickers.
type Giphy struct {
	APIKey  string
	BaseURL string
	Limit   int
	Rating  string
	Client  *http.Client
}

// NewGiphy returns a provider with the editor's defaults: 30 results, rated g.
func NewGiphy(apiKey string) *Giphy {
	return &Giphy{
		APIKey:  apiKey,
		BaseURL: GiphyBaseURL,
		Limit:   30,
		Rating:  "g",
		Client:  defaultClient(15 * time.Second),
	}
}

type giphyRendition struct {
	URL string `json:"url"`
}

type giphyResponse struct {
	Data []struct {
		ID     string `json:"id"`
		Title  string `json:"title"`
		Images struct {
			Original    giphyRendition `json:"original"`
			FixedHeight giphyRendition `json:"fixed_height"`
		} `json:"images"`
	} `json:"data"`
	Meta struct {
		Msg string `json:"msg"`
	} `json:"meta"`
}

// Search implements StickerProvider. Results without a usable URL are
// dropped.
func (g *Giphy) Search(ctx context.Context, query string) ([]Sticker, error) {
	if g.APIKey == "" {
		return nil, fmt.Errorf("giphy: %w", ErrNotConfigured)
	}

	params := url.Values{}
	params.Set("api_key", g.APIKey)
	params.Set("limit", strconv.Itoa(g.Limit))
	params.Set("rating", g.Rating)
	endpoint := "/trending"
	if q := strings.TrimSpace(query); q != "" {
		endpoint = "/search"
		params.Set("q", q)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(g.BaseURL, "/")+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("giphy: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := do(g.Client, req, func(b []byte) string {
		var r giphyResponse
		if json.Unmarshal(b, &r) == nil {
			return r.Meta.Msg
		}
		return ""
	})
	if err != nil {
		return nil, fmt.Errorf("giphy: %w", err)
	}

	var resp giphyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("giphy: decode response: %w", err)
	}
	out := make([]Sticker, 0, len(resp.Data))
	for _, item := range resp.Data {
		u := item.Images.Original.URL
		if u == "" {
			u = item.Images.FixedHeight.URL
		}
		if u == "" {
			continue
		}
		title := item.Title
		if title == "" {
			title = "Sticker"
		}
		out = append(out, Sticker{ID: item.ID, URL: u, Title: title})
	}
	return out, nil
}
