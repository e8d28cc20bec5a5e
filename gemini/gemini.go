// Package gemini speaks the Google Generative Language REST API: explicit
// context caching (cachedContents) and SSE streaming generation. The engine
// consumes the small Client contract; Fake stands in for tests.
package gemini

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Client is the streaming inference provider contract.
type Client interface {
	// CreateCache stores content provider-side for reuse across requests,
	// returning the cache handle. The cache is only valid for the exact
	// model it was created against.
	CreateCache(ctx context.Context, model, content string, ttl time.Duration) (string, error)

	// Generate issues a streaming generation call. Text deltas arrive on
	// the returned channel as they are decoded; a terminal event carries
	// any mid-stream error. The channel closes when the stream ends.
	Generate(ctx context.Context, req GenerateRequest) (<-chan StreamEvent, error)
}

// GenerateRequest carries one analysis request. Exactly one of
// CachedContent and SystemInstruction may be set.
type GenerateRequest struct {
	Model             string
	Audio             [][]byte // container pieces in order: header first
	MimeType          string
	Prompt            string
	SystemInstruction string // inline mode
	CachedContent     string // cache handle mode
}

type StreamEvent struct {
	Text string
	Err  error
}

type HTTP struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewHTTP(apiKey string) *HTTP {
	return NewHTTPWithBaseURL(apiKey, defaultBaseURL)
}

func NewHTTPWithBaseURL(apiKey, baseURL string) *HTTP {
	return &HTTP{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		// No client-level timeout: stream termination is the only
		// completion signal for generation calls.
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        1,
				MaxIdleConnsPerHost: 1,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		},
	}
}

type wireContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

type wirePart struct {
	Text       string          `json:"text,omitempty"`
	InlineData *wireInlineData `json:"inlineData,omitempty"`
}

type wireInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"` // base64 encoded
}

type cacheRequest struct {
	Model             string       `json:"model"`
	SystemInstruction *wireContent `json:"systemInstruction"`
	TTL               string       `json:"ttl"`
}

type cacheResponse struct {
	Name string `json:"name"`
}

type generateRequest struct {
	Contents          []wireContent `json:"contents"`
	SystemInstruction *wireContent  `json:"systemInstruction,omitempty"`
	CachedContent     string        `json:"cachedContent,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

func (c *HTTP) CreateCache(ctx context.Context, model, content string, ttl time.Duration) (string, error) {
	body := cacheRequest{
		Model: "models/" + model,
		SystemInstruction: &wireContent{
			Parts: []wirePart{{Text: content}},
		},
		TTL: fmt.Sprintf("%ds", int(ttl.Seconds())),
	}
	reqBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshaling cache request: %w", err)
	}

	url := c.baseURL + "/cachedContents?key=" + c.apiKey
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(resp.StatusCode, respBody)
	}

	var cr cacheResponse
	if err := json.Unmarshal(respBody, &cr); err != nil {
		return "", fmt.Errorf("parsing cache response: %w", err)
	}
	if cr.Name == "" {
		return "", fmt.Errorf("cache response missing name")
	}
	return cr.Name, nil
}

func (c *HTTP) Generate(ctx context.Context, req GenerateRequest) (<-chan StreamEvent, error) {
	parts := make([]wirePart, 0, len(req.Audio)+1)
	for _, piece := range req.Audio {
		parts = append(parts, wirePart{
			InlineData: &wireInlineData{
				MimeType: req.MimeType,
				Data:     base64.StdEncoding.EncodeToString(piece),
			},
		})
	}
	if req.Prompt != "" {
		parts = append(parts, wirePart{Text: req.Prompt})
	}

	greq := generateRequest{
		Contents: []wireContent{{Role: "user", Parts: parts}},
	}
	switch {
	case req.CachedContent != "":
		greq.CachedContent = req.CachedContent
	case req.SystemInstruction != "":
		greq.SystemInstruction = &wireContent{
			Parts: []wirePart{{Text: req.SystemInstruction}},
		}
	}

	reqBody, err := json.Marshal(greq)
	if err != nil {
		return nil, fmt.Errorf("marshaling generate request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s", c.baseURL, req.Model, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, classifyStatus(resp.StatusCode, respBody)
	}

	out := make(chan StreamEvent)
	go streamResponse(ctx, resp.Body, out)
	return out, nil
}

// streamResponse scans SSE data lines and forwards text deltas as they
// arrive; the response is never accumulated before handing off.
func streamResponse(ctx context.Context, body io.ReadCloser, out chan<- StreamEvent) {
	defer close(out)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			out <- StreamEvent{Err: ctx.Err()}
			return
		default:
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}

		var chunk generateResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue // skip malformed chunks
		}
		if len(chunk.Candidates) == 0 {
			continue
		}
		for _, part := range chunk.Candidates[0].Content.Parts {
			if part.Text != "" {
				out <- StreamEvent{Text: part.Text}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		out <- StreamEvent{Err: fmt.Errorf("reading stream: %w", err)}
	}
}
