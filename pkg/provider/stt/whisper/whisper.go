// Package whisper provides an STT provider backed by a whisper.cpp server.
//
// whisper.cpp is a batch engine: the provider talks to a running
// whisper-server binary (POST /inference) and simulates streaming by
// buffering PCM, cutting utterances at pauses with an energy-based silence
// detector, and submitting each utterance as one inference request. Results
// are requested as verbose_json so segment and word timings survive.
//
// Each committed utterance is emitted as a partial and a final carrying the
// same text. Finalize submits whatever is still buffered and returns once the
// resulting final has been queued.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080",
//	    whisper.WithLanguage("en"),
//	    whisper.WithSilenceThreshold(500*time.Millisecond),
//	)
//	handle, err := p.StartStream(ctx, cfg)
//	handle.SendAudio(pcmChunk)
//	handle.Finalize(ctx)
//	transcript := <-handle.Finals()
//	handle.Close()
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/readalong/pkg/audio"
	"github.com/MrWong99/readalong/pkg/provider/stt"
)

const (
	// defaultRMSThreshold is the RMS amplitude (16-bit sample units) below
	// which a chunk counts as silence.
	defaultRMSThreshold = 300.0

	defaultLanguage          = "en"
	defaultSampleRate        = 16000
	defaultSilenceThreshold  = 800 * time.Millisecond
	defaultMaxBufferDuration = 30 * time.Second
)

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the server (e.g.,
// "base.en"). When empty the server uses whichever model it was started with.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the language code sent to the server. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithSilenceThreshold sets how long a pause after speech must last before
// the buffered utterance is submitted. Zero disables pause detection, so
// audio is only submitted on Finalize, Close or when the buffer is full.
func WithSilenceThreshold(d time.Duration) Option {
	return func(p *Provider) { p.silenceThreshold = d }
}

// WithMaxBufferDuration caps how much audio accumulates before a submission
// is forced. Defaults to 30 s.
func WithMaxBufferDuration(d time.Duration) Option {
	return func(p *Provider) { p.maxBuffer = d }
}

// WithHTTPClient overrides the HTTP client used for inference requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements stt.Provider backed by a whisper.cpp HTTP server.
// Each session keeps its own buffer and goroutine.
type Provider struct {
	serverURL        string
	model            string
	language         string
	silenceThreshold time.Duration
	maxBuffer        time.Duration
	httpClient       *http.Client
}

// New creates a Provider for the server at serverURL
// (e.g., "http://localhost:8080").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:        strings.TrimRight(serverURL, "/"),
		language:         defaultLanguage,
		silenceThreshold: defaultSilenceThreshold,
		maxBuffer:        defaultMaxBufferDuration,
		httpClient:       &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a session. No network traffic happens until the first
// utterance is submitted, so the only failure is an already-cancelled ctx.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: start stream: %w", err)
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	f := audio.Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels}
	if f.SampleRate <= 0 {
		f.SampleRate = defaultSampleRate
	}
	if f.Channels <= 0 {
		f.Channels = 1
	}

	prompt := make([]string, 0, len(cfg.Keywords))
	for _, kw := range cfg.Keywords {
		prompt = append(prompt, kw.Keyword)
	}

	s := &session{
		p:        p,
		language: lang,
		format:   f,
		prompt:   strings.Join(prompt, ", "),
		audioCh:  make(chan []byte, 256),
		flushCh:  make(chan chan error),
		partials: make(chan stt.Transcript, 64),
		finals:   make(chan stt.Transcript, 64),
		done:     make(chan struct{}),
	}
	s.wg.Add(1)
	go s.processLoop(ctx)
	return s, nil
}

// session implements stt.SessionHandle. Buffer state is owned by
// processLoop.
type session struct {
	p        *Provider
	language string
	format   audio.Format
	prompt   string

	audioCh  chan []byte
	flushCh  chan chan error
	partials chan stt.Transcript
	finals   chan stt.Transcript

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// SendAudio queues a chunk of 16-bit PCM.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return fmt.Errorf("whisper: %w", stt.ErrSessionClosed)
	default:
	}
	select {
	case s.audioCh <- chunk:
		return nil
	case <-s.done:
		return fmt.Errorf("whisper: %w", stt.ErrSessionClosed)
	}
}

func (s *session) Partials() <-chan stt.Transcript { return s.partials }

func (s *session) Finals() <-chan stt.Transcript { return s.finals }

// Finalize submits any buffered audio and waits for the inference result.
func (s *session) Finalize(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case s.flushCh <- reply:
	case <-s.done:
		return fmt.Errorf("whisper: %w", stt.ErrSessionClosed)
	case <-ctx.Done():
		return fmt.Errorf("whisper: finalize: %w", ctx.Err())
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return fmt.Errorf("whisper: finalize: %w", ctx.Err())
	}
}

// Close ends the session. Audio still buffered is submitted first so that a
// caller that skipped Finalize still gets its last final.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

// utterance is the audio accumulated since the last submission.
type utterance struct {
	pcm       []byte
	offset    time.Duration // start of pcm relative to the session start
	hadSpeech bool
	silence   time.Duration
}

func (s *session) processLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)

	var (
		cur      utterance
		received time.Duration
	)
	maxBytes := int(int64(s.format.BytesPerSecond()) * int64(s.p.maxBuffer) / int64(time.Second))

	flush := func(fctx context.Context) error {
		u := cur
		cur = utterance{offset: received}
		if len(u.pcm) == 0 || !u.hadSpeech {
			return nil
		}
		t, err := s.infer(fctx, u.pcm, u.offset)
		if err != nil {
			return err
		}
		if strings.TrimSpace(t.Text) == "" {
			return nil
		}
		partial := t
		partial.IsFinal = false
		select {
		case s.partials <- partial:
		default:
		}
		select {
		case s.finals <- t:
		default:
		}
		return nil
	}

	// flushDetached uses a fresh context since ctx may already be done.
	flushDetached := func() {
		fc, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = flush(fc)
	}

	// drain takes audio queued ahead of a flush request.
	drain := func() {
		for {
			select {
			case chunk := <-s.audioCh:
				s.accept(&cur, chunk)
				received += s.format.Duration(len(chunk))
			default:
				return
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			flushDetached()
			return
		case <-s.done:
			drain()
			flushDetached()
			return

		case reply := <-s.flushCh:
			drain()
			reply <- flush(ctx)

		case chunk := <-s.audioCh:
			cutAtPause := s.accept(&cur, chunk)
			received += s.format.Duration(len(chunk))
			if cutAtPause || (maxBytes > 0 && len(cur.pcm) >= maxBytes) {
				if err := flush(ctx); err != nil {
					// Interim submissions are best effort; Finalize reports
					// errors to the caller.
					continue
				}
			}
		}
	}
}

// accept appends chunk to u and reports whether a pause long enough to cut
// the utterance has been reached. Leading silence is dropped but still
// advances the utterance offset.
func (s *session) accept(u *utterance, chunk []byte) bool {
	d := s.format.Duration(len(chunk))
	if audio.RMS(chunk) < defaultRMSThreshold {
		if !u.hadSpeech {
			u.offset += d
			return false
		}
		u.silence += d
		u.pcm = append(u.pcm, chunk...)
		return s.p.silenceThreshold > 0 && u.silence >= s.p.silenceThreshold
	}
	u.hadSpeech = true
	u.silence = 0
	u.pcm = append(u.pcm, chunk...)
	return false
}

// inferResponse is the verbose_json body returned by whisper-server.
type inferResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		Text       string  `json:"text"`
		Start      float64 `json:"start"`
		End        float64 `json:"end"`
		AvgLogprob float64 `json:"avg_logprob"`
		Words      []struct {
			Word        string  `json:"word"`
			Start       float64 `json:"start"`
			End         float64 `json:"end"`
			Probability float64 `json:"probability"`
		} `json:"words"`
	} `json:"segments"`
}

// infer POSTs pcm as a WAV upload and converts the response into a final
// transcript whose timings are shifted by offset.
func (s *session) infer(ctx context.Context, pcm []byte, offset time.Duration) (stt.Transcript, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(audio.EncodeWAV(pcm, s.format)); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: write wav data: %w", err)
	}
	fields := map[string]string{
		"response_format": "verbose_json",
		"language":        s.language,
		"model":           s.p.model,
		"prompt":          s.prompt,
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return stt.Transcript{}, fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.p.serverURL+"/inference", &body)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.p.httpClient.Do(req)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return stt.Transcript{}, fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: read response body: %w", err)
	}
	var r inferResponse
	if err := json.Unmarshal(data, &r); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	return toTranscript(r, offset, s.format.Duration(len(pcm))), nil
}

// toTranscript converts a verbose_json response. Segments without word
// timings become one word-less entry each so callers still see their
// boundaries.
func toTranscript(r inferResponse, offset, length time.Duration) stt.Transcript {
	t := stt.Transcript{
		Text:      strings.TrimSpace(r.Text),
		IsFinal:   true,
		Timestamp: offset,
		Duration:  length,
	}

	var confSum float64
	var confN int
	for _, seg := range r.Segments {
		if len(seg.Words) == 0 {
			conf := 0.0
			if seg.AvgLogprob != 0 {
				conf = math.Exp(seg.AvgLogprob)
			}
			t.Words = append(t.Words, stt.WordDetail{
				Word:       strings.TrimSpace(seg.Text),
				Start:      offset + seconds(seg.Start),
				End:        offset + seconds(seg.End),
				Confidence: conf,
			})
			confSum += conf
			confN++
			continue
		}
		for _, w := range seg.Words {
			t.Words = append(t.Words, stt.WordDetail{
				Word:       strings.TrimSpace(w.Word),
				Start:      offset + seconds(w.Start),
				End:        offset + seconds(w.End),
				Confidence: w.Probability,
			})
			confSum += w.Probability
			confN++
		}
	}
	if confN > 0 {
		t.Confidence = confSum / float64(confN)
	}
	if t.Text == "" && len(r.Segments) > 0 {
		parts := make([]string, 0, len(r.Segments))
		for _, seg := range r.Segments {
			parts = append(parts, strings.TrimSpace(seg.Text))
		}
		t.Text = strings.Join(parts, " ")
	}
	return t
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}
