package audiofile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/aiff"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

// Format identifies a container.
type Format int

const (
	// FormatUnknown is any unrecognized container.
	FormatUnknown Format = iota
	// FormatWAV is RIFF WAVE PCM.
	FormatWAV
	// FormatAIFF is Apple AIFF PCM.
	FormatAIFF
	// FormatMP3 is MPEG-1/2 layer III.
	FormatMP3
)

func (f Format) String() string {
	switch f {
	case FormatWAV:
		return "wav"
	case FormatAIFF:
		return "aiff"
	case FormatMP3:
		return "mp3"
	default:
		return "unknown"
	}
}

// FormatFromPath guesses the container from the file extension.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave":
		return FormatWAV
	case ".aif", ".aiff", ".aifc":
		return FormatAIFF
	case ".mp3":
		return FormatMP3
	default:
		return FormatUnknown
	}
}

// Load opens and decodes the file at path.
func Load(path string) (*Clip, error) {
	format := FormatFromPath(path)
	if format == FormatUnknown {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	clip, err := Decode(f, format)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}

	return clip, nil
}

// Decode reads a whole clip from r.
func Decode(r io.ReadSeeker, format Format) (*Clip, error) {
	switch format {
	case FormatWAV:
		return decodeWAV(r)
	case FormatAIFF:
		return decodeAIFF(r)
	case FormatMP3:
		return decodeMP3(r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

func decodeWAV(r io.ReadSeeker) (*Clip, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%w: not a PCM wav stream", ErrInvalidFile)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}

	// 8-bit WAV is unsigned.
	offset := 0
	if d.BitDepth == 8 {
		offset = 128
	}

	return intBufferClip(buf, int(d.BitDepth), offset)
}

func decodeAIFF(r io.ReadSeeker) (*Clip, error) {
	d := aiff.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%w: not an aiff stream", ErrInvalidFile)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}

	return intBufferClip(buf, int(d.BitDepth), 0)
}

func intBufferClip(buf *audio.IntBuffer, bitDepth, offset int) (*Clip, error) {
	if buf == nil || buf.Format == nil || buf.Format.NumChannels <= 0 {
		return nil, fmt.Errorf("%w: missing format", ErrInvalidFile)
	}
	if bitDepth <= 0 || bitDepth > 32 {
		return nil, fmt.Errorf("%w: bit depth %d", ErrInvalidFile, bitDepth)
	}

	channels := buf.Format.NumChannels
	frames := len(buf.Data) / channels
	if frames == 0 {
		return nil, ErrEmptyClip
	}

	scale := 1 / float64(int64(1)<<(bitDepth-1))
	samples := make([]float64, frames*channels)
	for i := range samples {
		samples[i] = float64(buf.Data[i]-offset) * scale
	}

	return NewClip(samples, channels, float64(buf.Format.SampleRate))
}

// MP3 output from go-mp3 is always 16-bit little-endian stereo.
func decodeMP3(r io.Reader) (*Clip, error) {
	d, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}

	const channels = 2
	pcm, err := io.ReadAll(d)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}

	n := len(pcm) / 2 / channels * channels
	if n == 0 {
		return nil, ErrEmptyClip
	}

	samples := make([]float64, n)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(pcm[2*i:]))
		samples[i] = float64(v) / 32768
	}

	return NewClip(samples, channels, float64(d.SampleRate()))
}
