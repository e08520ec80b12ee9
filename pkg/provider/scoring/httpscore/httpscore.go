// Package httpscore implements scoring.Provider against a remote
// pronunciation-assessment REST service.
//
// The service receives a multipart upload on POST <base>/v1/pronunciation with
// the fields "audio" (WAV file), "reference_text", "spoken_text" and
// "sample_rate", and answers with JSON scores on a 0–100 scale. Scores are
// converted to 0–1 and clamped before they leave this package.
//
// Requests are paced by a token-bucket limiter so a user hammering the score
// button cannot exceed the service quota.
package httpscore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/MrWong99/readalong/pkg/provider/scoring"
)

const (
	defaultRate  = rate.Limit(2) // requests per second
	defaultBurst = 4
	endpointPath = "/v1/pronunciation"
)

// Option configures a Provider.
type Option func(*Provider)

// WithAPIKey sets the bearer token.
func WithAPIKey(key string) Option {
	return func(p *Provider) { p.apiKey = key }
}

// WithModel selects a server-side scoring model.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithRateLimit overrides the request rate and burst.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(p *Provider) { p.limiter = rate.NewLimiter(r, burst) }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider is a rate-limited client for the scoring service.
type Provider struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

var _ scoring.Provider = (*Provider)(nil)

// New returns a Provider for the service at baseURL.
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("httpscore: baseURL must not be empty")
	}
	p := &Provider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(defaultRate, defaultBurst),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// response mirrors the service's JSON body.
type response struct {
	Overall  float64 `json:"overall"`
	Accuracy float64 `json:"accuracy"`
	Fluency  float64 `json:"fluency"`
	Rhythm   float64 `json:"rhythm"`
	Feedback string  `json:"feedback"`
	Words    []struct {
		Word  string  `json:"word"`
		Score float64 `json:"score"`
		Issue string  `json:"issue"`
	} `json:"words"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Score uploads the recording and returns the converted assessment.
func (p *Provider) Score(ctx context.Context, req scoring.Request) (*scoring.Score, error) {
	if len(req.Audio) == 0 {
		return nil, errors.New("httpscore: empty audio")
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("httpscore: rate limit: %w", err)
	}

	body, contentType, err := p.encode(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+endpointPath, body)
	if err != nil {
		return nil, fmt.Errorf("httpscore: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("httpscore: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("httpscore: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var er errorResponse
		if json.Unmarshal(data, &er) == nil && er.Error != "" {
			return nil, fmt.Errorf("httpscore: server returned HTTP %d: %s", resp.StatusCode, er.Error)
		}
		return nil, fmt.Errorf("httpscore: server returned HTTP %d", resp.StatusCode)
	}

	var r response
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("httpscore: decode response: %w", err)
	}
	return convert(r), nil
}

func (p *Provider) encode(req scoring.Request) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("audio", "recording.wav")
	if err != nil {
		return nil, "", fmt.Errorf("httpscore: create form file: %w", err)
	}
	if _, err := fw.Write(req.Audio); err != nil {
		return nil, "", fmt.Errorf("httpscore: write audio: %w", err)
	}
	fields := [][2]string{
		{"reference_text", req.OriginalText},
		{"spoken_text", req.SpokenText},
		{"model", p.model},
	}
	if req.Format.SampleRate > 0 {
		fields = append(fields, [2]string{"sample_rate", strconv.Itoa(req.Format.SampleRate)})
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("httpscore: write %s: %w", f[0], err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("httpscore: close multipart writer: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

// percent converts a 0–100 value to the clamped 0–1 scale.
func percent(v float64) float64 {
	return scoring.Clamp(v / 100)
}

func convert(r response) *scoring.Score {
	s := &scoring.Score{
		Overall:  percent(r.Overall),
		Accuracy: percent(r.Accuracy),
		Fluency:  percent(r.Fluency),
		Rhythm:   percent(r.Rhythm),
		Feedback: r.Feedback,
	}
	for _, w := range r.Words {
		s.Words = append(s.Words, scoring.WordScore{
			Word:  w.Word,
			Score: percent(w.Score),
			Issue: w.Issue,
		})
	}
	return s
}
