package catalog

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"math"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"golang.org/x/image/draw"
)

// OpenAI-compatible endpoint defaults.
const (
	OpenAIBaseURL     = "https://api.openai.com"
	DefaultChatModel  = "gpt-4o-mini"
	DefaultImageModel = "gpt-image-1"
	MaxImageSide      = 1024
)

var ErrNoImage = errors.New("no image in response")

// OpenAI talks to an OpenAI-compatible API for captions and image edits.
type OpenAI struct {
	APIKey     string
	BaseURL    string
	Model      string
	ImageModel string
	Client     *http.Client
}

// NewOpenAI returns a client; empty baseURL and model use the defaults.
func NewOpenAI(apiKey, baseURL, model string) *OpenAI {
	if baseURL == "" {
		baseURL = OpenAIBaseURL
	}
	if model == "" {
		model = DefaultChatModel
	}
	return &OpenAI{
		APIKey:     apiKey,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Model:      model,
		ImageModel: DefaultImageModel,
		Client:     defaultClient(5 * time.Minute),
	}
}

type literalType string

const (
	literalText     literalType = "text"
	literalImageURL literalType = "image_url"
)

type textPart struct {
	Type literalType `json:"type"`
	Text string      `json:"text"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type imagePart struct {
	Type     literalType `json:"type"`
	ImageURL imageURL    `json:"image_url"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or a slice of parts
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type imagesResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
		URL     string `json:"url"`
	} `json:"data"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func describeAPIError(b []byte) string {
	var e apiError
	if json.Unmarshal(b, &e) == nil {
		return e.Error.Message
	}
	return ""
}

func captionPrompt(topic string) string {
	p := "Analyze this image and generate 5 funny, witty, short meme-style captions for it. " +
		"Make them varied in tone (sarcastic, wholesome, relatable)."
	if t := strings.TrimSpace(topic); t != "" {
		p += fmt.Sprintf(" IMPORTANT: The captions MUST be specifically related to the following topic or context: %q.", t)
	}
	return p + " Return a JSON object with a 'captions' key containing a list of strings."
}

// Captions asks the chat model for meme captions describing img, optionally
// steered towards topic.
func (o *OpenAI) Captions(ctx context.Context, img image.Image, topic string) ([]string, error) {
	if o.APIKey == "" {
		return nil, fmt.Errorf("captions: %w", ErrNotConfigured)
	}
	data, err := encodeForUpload(img)
	if err != nil {
		return nil, fmt.Errorf("captions: %w", err)
	}

	reqBody := chatRequest{
		Model: o.Model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []any{
				imagePart{Type: literalImageURL, ImageURL: imageURL{URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)}},
				textPart{Type: literalText, Text: captionPrompt(topic)},
			},
		}},
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	body, err := o.postJSON(ctx, "/v1/chat/completions", reqBody)
	if err != nil {
		return nil, fmt.Errorf("captions: %w", err)
	}

	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("captions: decode response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, nil
	}
	msg := resp.Choices[0].Message
	if msg.Refusal != "" {
		return nil, fmt.Errorf("captions: refused: %s", msg.Refusal)
	}
	return ParseCaptions(msg.Content), nil
}

// ParseCaptions reads a model reply: a {"captions": [...]} object, a bare
// JSON array, or one caption per line.
func ParseCaptions(content string) []string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimSuffix(strings.TrimPrefix(content, "```"), "```")
	content = strings.TrimSpace(content)

	var obj struct {
		Captions []string `json:"captions"`
	}
	if json.Unmarshal([]byte(content), &obj) == nil && obj.Captions != nil {
		return obj.Captions
	}
	var arr []string
	if json.Unmarshal([]byte(content), &arr) == nil {
		return arr
	}

	var out []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*•0123456789.) ")
		line = strings.Trim(line, `"`)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// EditImage applies instruction to img and returns the encoded result.
func (o *OpenAI) EditImage(ctx context.Context, img image.Image, instruction string) ([]byte, error) {
	if o.APIKey == "" {
		return nil, fmt.Errorf("edit image: %w", ErrNotConfigured)
	}
	data, err := encodeForUpload(img)
	if err != nil {
		return nil, fmt.Errorf("edit image: %w", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("model", o.ImageModel)
	mw.WriteField("prompt", instruction)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="image.png"`)
	h.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("edit image: %w", err)
	}
	part.Write(data)
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("edit image: %w", err)
	}

	req, err := o.newRequest(ctx, "/v1/images/edits", &buf)
	if err != nil {
		return nil, fmt.Errorf("edit image: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	body, err := do(o.Client, req, describeAPIError)
	if err != nil {
		return nil, fmt.Errorf("edit image: %w", err)
	}
	out, err := o.imageResult(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("edit image: %w", err)
	}
	return out, nil
}

// GenerateImage creates a square image from prompt.
func (o *OpenAI) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	if o.APIKey == "" {
		return nil, fmt.Errorf("generate image: %w", ErrNotConfigured)
	}
	body, err := o.postJSON(ctx, "/v1/images/generations", map[string]any{
		"model":  o.ImageModel,
		"prompt": prompt,
		"n":      1,
		"size":   "1024x1024",
	})
	if err != nil {
		return nil, fmt.Errorf("generate image: %w", err)
	}
	out, err := o.imageResult(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("generate image: %w", err)
	}
	return out, nil
}

func (o *OpenAI) imageResult(ctx context.Context, body []byte) ([]byte, error) {
	var resp imagesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, ErrNoImage
	}
	d := resp.Data[0]
	switch {
	case d.B64JSON != "":
		return base64.StdEncoding.DecodeString(d.B64JSON)
	case d.URL != "":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.URL, nil)
		if err != nil {
			return nil, err
		}
		return do(o.Client, req, nil)
	}
	return nil, ErrNoImage
}

func (o *OpenAI) newRequest(ctx context.Context, path string, body *bytes.Buffer) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+o.APIKey)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (o *OpenAI) postJSON(ctx context.Context, path string, v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	req, err := o.newRequest(ctx, path, bytes.NewBuffer(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return do(o.Client, req, describeAPIError)
}

// encodeForUpload downscales img to fit MaxImageSide and encodes it as PNG.
func encodeForUpload(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, errors.New("no image")
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > MaxImageSide || h > MaxImageSide {
		ratio := math.Min(float64(MaxImageSide)/float64(w), float64(MaxImageSide)/float64(h))
		w = max(1, int(math.Round(float64(w)*ratio)))
		h = max(1, int(math.Round(float64(h)*ratio)))
		dst := image.NewNRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		img = dst
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode upload: %w", err)
	}
	return buf.Bytes(), nil
}
