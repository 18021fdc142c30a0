// Package catalog holds the outside services the editor consults: a sticker
// search provider and a generative caption/image-edit service. Their
// failures are returned to the caller and never touch editor state.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

var ErrNotConfigured = errors.New("service not configured")

// Sticker is one search result.
type Sticker struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

// StickerProvider searches a sticker library. An empty query returns the
// trending set.
type StickerProvider interface {
	Search(ctx context.Context, query string) ([]Sticker, error)
}

// Generator suggests captions for an image and edits images from a text
// instruction.
type Generator interface {
	Captions(ctx context.Context, img image.Image, topic string) ([]string, error)
	EditImage(ctx context.Context, img image.Image, instruction string) ([]byte, error)
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
}

const maxResponseBytes = 64 << 20

func defaultClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// do sends req and returns the body of a 2xx response. Other statuses are
// turned into errors carrying describe's reading of the body.
func do(client *http.Client, req *http.Request, describe func([]byte) string) ([]byte, error) {
	log := logrus.WithFields(logrus.Fields{"method": req.Method, "host": req.URL.Host, "path": req.URL.Path})
	start := time.Now()

	resp, err := client.Do(req)
	if err != nil {
		log.WithError(err).Warn("request failed")
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", req.URL.Path, err)
	}
	log = log.WithFields(logrus.Fields{"status": resp.StatusCode, "elapsed": time.Since(start)})
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := http.StatusText(resp.StatusCode)
		if describe != nil {
			if d := describe(body); d != "" {
				msg = d
			}
		}
		log.Warn("request rejected")
		return nil, fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, msg)
	}
	log.Debug("request done")
	return body, nil
}
