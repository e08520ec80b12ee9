// Package deepgram provides an stt.Provider backed by the Deepgram streaming
// WebSocket API.
//
// Audio is written as binary frames; results come back as JSON "Results"
// messages with interim_results enabled. Finalize sends Deepgram's Finalize
// control message and waits for the result flagged from_finalize, which is
// how a practice recording obtains its authoritative transcript before the
// socket is torn down.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/readalong/pkg/provider/stt"
)

const (
	defaultEndpoint   = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "en"
	defaultSampleRate = 16000
)

var (
	msgFinalize    = []byte(`{"type":"Finalize"}`)
	msgCloseStream = []byte(`{"type":"CloseStream"}`)
)

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model (e.g., "nova-3").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the default recognition language.
func WithLanguage(language string) Option {
	return func(p *Provider) { p.language = language }
}

// WithEndpoint overrides the WebSocket endpoint. Used by tests and
// self-hosted deployments.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) { p.endpoint = endpoint }
}

// Provider implements stt.Provider for Deepgram.
type Provider struct {
	apiKey   string
	endpoint string
	model    string
	language string
}

var _ stt.Provider = (*Provider)(nil)

// New creates a Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		endpoint: defaultEndpoint,
		model:    defaultModel,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream dials Deepgram and starts the read and write loops.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	wsURL, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &session{
		conn:      conn,
		cancel:    cancel,
		out:       make(chan outbound, 256),
		partials:  make(chan stt.Transcript, 64),
		finals:    make(chan stt.Transcript, 64),
		finalized: make(chan struct{}, 1),
		done:      make(chan struct{}),
		readDone:  make(chan struct{}),
	}
	s.wg.Add(2)
	go s.writeLoop(sctx)
	go s.readLoop(sctx)
	return s, nil
}

func (p *Provider) buildURL(cfg stt.StreamConfig) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}
	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr <= 0 {
		sr = defaultSampleRate
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sr))
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	if cfg.Channels > 0 {
		q.Set("channels", strconv.Itoa(cfg.Channels))
	}
	for _, kw := range cfg.Keywords {
		q.Add("keywords", fmt.Sprintf("%s:%g", kw.Keyword, kw.Boost))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type outbound struct {
	typ  websocket.MessageType
	data []byte
}

// session implements stt.SessionHandle.
type session struct {
	conn   *websocket.Conn
	cancel context.CancelFunc

	out       chan outbound
	partials  chan stt.Transcript
	finals    chan stt.Transcript
	finalized chan struct{}

	done     chan struct{}
	readDone chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
}

func (s *session) enqueue(m outbound) error {
	select {
	case <-s.done:
		return fmt.Errorf("deepgram: %w", stt.ErrSessionClosed)
	default:
	}
	select {
	case s.out <- m:
		return nil
	case <-s.done:
		return fmt.Errorf("deepgram: %w", stt.ErrSessionClosed)
	}
}

// SendAudio queues a PCM chunk.
func (s *session) SendAudio(chunk []byte) error {
	return s.enqueue(outbound{typ: websocket.MessageBinary, data: chunk})
}

func (s *session) Partials() <-chan stt.Transcript { return s.partials }

func (s *session) Finals() <-chan stt.Transcript { return s.finals }

// Finalize queues the Finalize control message behind any pending audio and
// waits for the flagged result.
func (s *session) Finalize(ctx context.Context) error {
	if err := s.enqueue(outbound{typ: websocket.MessageText, data: msgFinalize}); err != nil {
		return err
	}
	select {
	case <-s.finalized:
		return nil
	case <-s.readDone:
		return nil
	case <-s.done:
		return fmt.Errorf("deepgram: %w", stt.ErrSessionClosed)
	case <-ctx.Done():
		return fmt.Errorf("deepgram: finalize: %w", ctx.Err())
	}
}

// Close asks Deepgram to close the stream, then tears the connection down.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		wctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = s.conn.Write(wctx, websocket.MessageText, msgCloseStream)
		cancel()
		s.cancel()
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
		s.wg.Wait()
	})
	return nil
}

func (s *session) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case m := <-s.out:
			if err := s.conn.Write(ctx, m.typ, m.data); err != nil {
				slog.Debug("deepgram: write failed", "err", err)
				return
			}
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *session) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.readDone)
	defer close(s.partials)
	defer close(s.finals)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			return
		}
		t, fromFinalize, ok := parseResponse(msg)
		if !ok {
			continue
		}
		dst := s.partials
		if t.IsFinal {
			dst = s.finals
		}
		select {
		case dst <- t:
		case <-s.done:
			return
		}
		if fromFinalize {
			select {
			case s.finalized <- struct{}{}:
			default:
			}
		}
	}
}

// response is the subset of a Deepgram "Results" message we consume.
type response struct {
	Type         string  `json:"type"`
	IsFinal      bool    `json:"is_final"`
	FromFinalize bool    `json:"from_finalize"`
	Start        float64 `json:"start"`
	Duration     float64 `json:"duration"`
	Channel      struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
			Words      []struct {
				Word           string  `json:"word"`
				PunctuatedWord string  `json:"punctuated_word"`
				Start          float64 `json:"start"`
				End            float64 `json:"end"`
				Confidence     float64 `json:"confidence"`
			} `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

// parseResponse converts a raw message into a Transcript. ok is false for
// messages that carry no result (metadata, speech-started events, ...).
func parseResponse(data []byte) (t stt.Transcript, fromFinalize, ok bool) {
	var resp response
	if err := json.Unmarshal(data, &resp); err != nil {
		return stt.Transcript{}, false, false
	}
	if resp.Type != "Results" || len(resp.Channel.Alternatives) == 0 {
		return stt.Transcript{}, false, false
	}

	alt := resp.Channel.Alternatives[0]
	words := make([]stt.WordDetail, 0, len(alt.Words))
	for _, w := range alt.Words {
		text := w.PunctuatedWord
		if text == "" {
			text = w.Word
		}
		words = append(words, stt.WordDetail{
			Word:       text,
			Start:      seconds(w.Start),
			End:        seconds(w.End),
			Confidence: w.Confidence,
		})
	}
	return stt.Transcript{
		Text:       alt.Transcript,
		IsFinal:    resp.IsFinal,
		Confidence: alt.Confidence,
		Words:      words,
		Timestamp:  seconds(resp.Start),
		Duration:   seconds(resp.Duration),
	}, resp.FromFinalize, true
}
