// Package ollama implements the boxconv Detector and TextReader interfaces with a vision model
// served by Ollama.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/ollama/ollama/api"
	"github.com/sensorable/boxconv"
)

// DetectPrompt asks the model for licence plate boxes.
const DetectPrompt = `You are a licence plate locator.

Return JSON only:
{"objects": [{"label": "licence_plate", "confidence": 0.0, "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0}}]}

RULES
- x and y are the top-left corner, w and h the size. All values are normalized to [0,1] (NOT pixels).
- One entry per visible licence plate. Return {"objects": []} if there is none.
- JSON only. No markdown, no code fences, no comments.`

// ReadPrompt asks the model for the text in a cropped plate.
const ReadPrompt = `Read the licence plate in this image.

Return JSON only: {"text": "PLATE TEXT", "confidence": 0.0}

RULES
- Copy the characters exactly as printed, without guessing missing ones.
- Return {"text": "", "confidence": 0.0} if nothing is readable.
- JSON only. No markdown, no code fences, no comments.`

// Client wraps the Ollama API client.
type Client struct {
	Model        string
	DetectPrompt string
	ReadPrompt   string
	Timeout      time.Duration // Applied when the context has no deadline.

	client *api.Client
}

// NewClient creates a client for the Ollama server at serverURL. Any path in the URL, such as
// /api/chat, is ignored.
func NewClient(serverURL, model string) (*Client, error) {
	parsedURL, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid URL %q: scheme and host are required", serverURL)
	}
	baseURL := &url.URL{Scheme: parsedURL.Scheme, Host: parsedURL.Host}

	return &Client{
		Model:        model,
		DetectPrompt: DetectPrompt,
		ReadPrompt:   ReadPrompt,
		Timeout:      300 * time.Second,
		client:       api.NewClient(baseURL, http.DefaultClient),
	}, nil
}

// Detect implements boxconv.Detector.
func (c *Client) Detect(ctx context.Context, img image.Image) ([]boxconv.Detection, error) {
	raw, err := c.chat(ctx, c.DetectPrompt, img)
	if err != nil {
		return nil, err
	}
	size := img.Bounds().Size()
	return parseDetections(raw, size.X, size.Y)
}

// ReadText implements boxconv.TextReader.
func (c *Client) ReadText(ctx context.Context, img image.Image) ([]boxconv.TextResult, error) {
	raw, err := c.chat(ctx, c.ReadPrompt, img)
	if err != nil {
		return nil, err
	}
	return parseText(raw)
}

// chat sends the prompt with img, encoded as JPEG, and returns the reply.
func (c *Client) chat(ctx context.Context, prompt string, img image.Image) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}

	streamFalse := false
	req := &api.ChatRequest{
		Model: c.Model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: prompt,
				Images:  []api.ImageData{api.ImageData(buf.Bytes())},
			},
		},
		Stream:  &streamFalse,
		Options: map[string]any{"temperature": 0},
	}

	var content strings.Builder
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat error: %w", err)
	}
	if content.Len() == 0 {
		return "", fmt.Errorf("empty response from ollama")
	}

	return content.String(), nil
}

// normBox is a box normalized to the image size.
type normBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

type detectionsReply struct {
	Objects []struct {
		Label      string  `json:"label"`
		Confidence float64 `json:"confidence"`
		Box        normBox `json:"box"`
	} `json:"objects"`
}

// parseDetections converts the model reply to pixel coordinates in a width x height image.
func parseDetections(raw string, width, height int) ([]boxconv.Detection, error) {
	var reply detectionsReply
	if err := json.Unmarshal([]byte(sanitizeModelJSON(raw)), &reply); err != nil {
		return nil, fmt.Errorf("failed to parse detections: %w", err)
	}

	w, h := float64(width), float64(height)
	detections := make([]boxconv.Detection, 0, len(reply.Objects))
	for _, o := range reply.Objects {
		b := o.Box
		detections = append(detections, boxconv.Detection{
			Label:      o.Label,
			Confidence: clamp01(o.Confidence),
			Coords: [4]float64{
				clamp01(b.X) * w,
				clamp01(b.Y) * h,
				clamp01(b.X+b.W) * w,
				clamp01(b.Y+b.H) * h,
			},
		})
	}
	return detections, nil
}

type textReply struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// parseText converts the model reply to text results. An empty text yields no result.
func parseText(raw string) ([]boxconv.TextResult, error) {
	var reply textReply
	if err := json.Unmarshal([]byte(sanitizeModelJSON(raw)), &reply); err != nil {
		return nil, fmt.Errorf("failed to parse text: %w", err)
	}
	text := strings.TrimSpace(reply.Text)
	if text == "" {
		return nil, nil
	}
	return []boxconv.TextResult{{Text: text, Confidence: clamp01(reply.Confidence)}}, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

var (
	reBlockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLineComment  = regexp.MustCompile(`(?m)^\s*//.*$`)
	reTrailing     = regexp.MustCompile(`,(\s*[}\]])`)
)

// sanitizeModelJSON removes code fences, comments and trailing commas, and keeps only the
// outermost {...} of the reply.
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present.
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}

	raw = reBlockComment.ReplaceAllString(raw, "")
	raw = reLineComment.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
