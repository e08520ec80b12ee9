package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/readalong/pkg/provider/stt"
	sttmock "github.com/MrWong99/readalong/pkg/provider/stt/mock"
)

func TestSTTFallback_StartStream(t *testing.T) {
	t.Parallel()
	cfg := stt.StreamConfig{SampleRate: 16000, Channels: 1, Language: "en-US"}

	t.Run("primary", func(t *testing.T) {
		t.Parallel()
		sess := sttmock.NewSession()
		primary := &sttmock.Provider{Session: sess}
		backup := &sttmock.Provider{}

		f := NewSTTFallback(primary, "deepgram", FallbackConfig{})
		f.AddFallback("whisper", backup)

		h, err := f.StartStream(context.Background(), cfg)
		if err != nil {
			t.Fatalf("StartStream: %v", err)
		}
		if h != stt.SessionHandle(sess) {
			t.Error("handle is not the primary's session")
		}
		if backup.CallCount() != 0 {
			t.Error("backup should not be called")
		}
		if got := primary.StartStreamCalls[0].Cfg.Language; got != "en-US" {
			t.Errorf("forwarded language = %q", got)
		}
	})

	t.Run("failover", func(t *testing.T) {
		t.Parallel()
		primary := &sttmock.Provider{StartStreamErr: errors.New("dial refused")}
		sess := sttmock.NewSession()
		backup := &sttmock.Provider{Session: sess}

		f := NewSTTFallback(primary, "deepgram", FallbackConfig{})
		f.AddFallback("whisper", backup)

		h, err := f.StartStream(context.Background(), cfg)
		if err != nil {
			t.Fatalf("StartStream: %v", err)
		}
		if h != stt.SessionHandle(sess) {
			t.Error("handle is not the backup's session")
		}
	})

	t.Run("all fail", func(t *testing.T) {
		t.Parallel()
		f := NewSTTFallback(&sttmock.Provider{StartStreamErr: errors.New("down")}, "deepgram", FallbackConfig{})
		if _, err := f.StartStream(context.Background(), cfg); !errors.Is(err, ErrAllFailed) {
			t.Errorf("err = %v, want ErrAllFailed", err)
		}
		if len(f.Breakers()) != 1 {
			t.Errorf("Breakers() = %d, want 1", len(f.Breakers()))
		}
	})
}
