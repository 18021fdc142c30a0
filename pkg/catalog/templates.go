package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Template endpoint defaults.
const (
	ImgflipURL  = "https://api.imgflip.com/get_memes"
	MemegenURL  = "https://api.memegen.link/templates"
	TemplateTTL = time.Hour
)

// Template is a blank meme image offered as a starting background.
type Template struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	URL    string `json:"url"`
	Source string `json:"source"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// TemplateProvider lists meme templates whose name contains query, or all of
// them for an empty query.
type TemplateProvider interface {
	Templates(ctx context.Context, query string) ([]Template, error)
}

// Templates merges the imgflip and memegen catalogs. Either source may fail
// on its own; the call fails only when both do. The merged list is cached
// for TTL.
type Templates struct {
	ImgflipURL string
	MemegenURL string
	TTL        time.Duration
	Client     *http.Client

	mu      sync.Mutex
	cached  []Template
	fetched time.Time
}

// NewTemplates returns a provider for the public endpoints. No key is needed.
func NewTemplates() *Templates {
	return &Templates{
		ImgflipURL: ImgflipURL,
		MemegenURL: MemegenURL,
		TTL:        TemplateTTL,
		Client:     defaultClient(15 * time.Second),
	}
}

// Templates implements TemplateProvider.
func (t *Templates) Templates(ctx context.Context, query string) ([]Template, error) {
	all, err := t.all(ctx)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return all, nil
	}
	out := make([]Template, 0)
	for _, tpl := range all {
		if strings.Contains(strings.ToLower(tpl.Name), q) {
			out = append(out, tpl)
		}
	}
	return out, nil
}

func (t *Templates) all(ctx context.Context) ([]Template, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cached != nil && time.Since(t.fetched) < t.TTL {
		return t.cached, nil
	}

	var (
		wg         sync.WaitGroup
		flip, mg   []Template
		errA, errB error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		flip, errA = t.imgflip(ctx)
	}()
	go func() {
		defer wg.Done()
		mg, errB = t.memegen(ctx)
	}()
	wg.Wait()

	if errA != nil && errB != nil {
		return nil, fmt.Errorf("templates: %w", errors.Join(errA, errB))
	}
	for _, err := range []error{errA, errB} {
		if err != nil {
			logrus.WithError(err).Warn("template source failed, serving the other")
		}
	}
	merged := make([]Template, 0, len(flip)+len(mg))
	merged = append(merged, flip...)
	merged = append(merged, mg...)

	// A partial result is served but not cached, so the failed side is
	// retried on the next call.
	if errA == nil && errB == nil {
		t.cached, t.fetched = merged, time.Now()
	}
	return merged, nil
}

func (t *Templates) getJSON(ctx context.Context, endpoint string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	body, err := do(t.Client, req, nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

type imgflipResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Memes []struct {
			ID     string `json:"id"`
			Name   string `json:"name"`
			URL    string `json:"url"`
			Width  int    `json:"width"`
			Height int    `json:"height"`
		} `json:"memes"`
	} `json:"data"`
	ErrorMessage string `json:"error_message"`
}

func (t *Templates) imgflip(ctx context.Context) ([]Template, error) {
	var resp imgflipResponse
	if err := t.getJSON(ctx, t.ImgflipURL, &resp); err != nil {
		return nil, fmt.Errorf("imgflip: %w", err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("imgflip: %s", resp.ErrorMessage)
	}
	out := make([]Template, 0, len(resp.Data.Memes))
	for _, m := range resp.Data.Memes {
		if m.URL == "" {
			continue
		}
		out = append(out, Template{
			ID:     "if-" + m.ID,
			Name:   m.Name,
			URL:    m.URL,
			Source: "imgflip",
			Width:  m.Width,
			Height: m.Height,
		})
	}
	return out, nil
}

type memegenTemplate struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Blank string `json:"blank"`
}

func (t *Templates) memegen(ctx context.Context) ([]Template, error) {
	var resp []memegenTemplate
	if err := t.getJSON(ctx, t.MemegenURL, &resp); err != nil {
		return nil, fmt.Errorf("memegen: %w", err)
	}
	out := make([]Template, 0, len(resp))
	for _, m := range resp {
		if m.Blank == "" {
			continue
		}
		out = append(out, Template{
			ID:     "mg-" + m.ID,
			Name:   m.Name,
			URL:    m.Blank,
			Source: "memegen",
		})
	}
	return out, nil
}
