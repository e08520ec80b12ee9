package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const wavHeaderSize = 44

// ErrNotWAV is returned by DecodeWAV for input that is not 16-bit PCM WAV.
var ErrNotWAV = errors.New("audio: not a 16-bit PCM WAV stream")

// EncodeWAV wraps pcm in a canonical 44-byte RIFF/WAVE header.
func EncodeWAV(pcm []byte, f Format) []byte {
	buf := make([]byte, wavHeaderSize+len(pcm))
	putWAVHeader(buf, f, len(pcm))
	copy(buf[wavHeaderSize:], pcm)
	return buf
}

func putWAVHeader(buf []byte, f Format, dataSize int) {
	blockAlign := f.Channels * 2
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(f.SampleRate*blockAlign))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
}

// DecodeWAV parses a RIFF/WAVE stream and returns its format and PCM payload.
// Chunks other than "fmt " and "data" are skipped.
func DecodeWAV(r io.Reader) (Format, []byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Format{}, nil, fmt.Errorf("audio: read wav: %w", err)
	}
	if len(data) < 12 || !bytes.Equal(data[0:4], []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WAVE")) {
		return Format{}, nil, ErrNotWAV
	}

	var (
		f       Format
		haveFmt bool
	)
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		end := body + size
		if end > len(data) {
			end = len(data)
		}
		switch id {
		case "fmt ":
			if end-body < 16 {
				return Format{}, nil, ErrNotWAV
			}
			if binary.LittleEndian.Uint16(data[body:]) != 1 || binary.LittleEndian.Uint16(data[body+14:]) != 16 {
				return Format{}, nil, ErrNotWAV
			}
			f.Channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			f.SampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return Format{}, nil, ErrNotWAV
			}
			return f, data[body:end], nil
		}
		// Chunks are padded to an even size.
		pos = end + size%2
	}
	return Format{}, nil, ErrNotWAV
}

// WAVWriter streams PCM into a WAV container on a seekable writer, patching
// the header sizes on Close.
type WAVWriter struct {
	w      io.WriteSeeker
	format Format
	n      int
	closed bool
}

// NewWAVWriter writes a placeholder header to w and returns a writer for the
// PCM payload.
func NewWAVWriter(w io.WriteSeeker, f Format) (*WAVWriter, error) {
	hdr := make([]byte, wavHeaderSize)
	putWAVHeader(hdr, f, 0)
	if _, err := w.Write(hdr); err != nil {
		return nil, fmt.Errorf("audio: write wav header: %w", err)
	}
	return &WAVWriter{w: w, format: f}, nil
}

// Write appends PCM to the data chunk.
func (ww *WAVWriter) Write(pcm []byte) (int, error) {
	if ww.closed {
		return 0, errors.New("audio: write to closed wav writer")
	}
	n, err := ww.w.Write(pcm)
	ww.n += n
	return n, err
}

// Len returns the number of PCM bytes written so far.
func (ww *WAVWriter) Len() int { return ww.n }

// Close rewrites the header with the final sizes. It does not close the
// underlying writer.
func (ww *WAVWriter) Close() error {
	if ww.closed {
		return nil
	}
	ww.closed = true
	hdr := make([]byte, wavHeaderSize)
	putWAVHeader(hdr, ww.format, ww.n)
	if _, err := ww.w.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("audio: seek wav header: %w", err)
	}
	if _, err := ww.w.Write(hdr); err != nil {
		return fmt.Errorf("audio: patch wav header: %w", err)
	}
	_, err := ww.w.Seek(0, io.SeekEnd)
	return err
}
