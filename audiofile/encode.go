package audiofile

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavPCM = 1

// EncodeWAV writes clip as integer PCM WAV with the given bit depth
// (8, 16, 24 or 32). Samples outside [-1, 1] are clipped.
func EncodeWAV(w io.WriteSeeker, clip *Clip, bitDepth int) error {
	switch bitDepth {
	case 8, 16, 24, 32:
	default:
		return fmt.Errorf("wav bit depth must be 8, 16, 24 or 32: %d", bitDepth)
	}
	if clip == nil || clip.Frames() == 0 {
		return ErrEmptyClip
	}

	rate := int(math.Round(clip.SampleRate))
	enc := wav.NewEncoder(w, rate, bitDepth, clip.Channels, wavPCM)

	full := float64(int64(1)<<(bitDepth-1) - 1)
	offset := 0
	if bitDepth == 8 {
		offset = 128
	}

	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: clip.Channels,
			SampleRate:  rate,
		},
		Data:           make([]int, len(clip.Samples)),
		SourceBitDepth: bitDepth,
	}
	for i, v := range clip.Samples {
		if math.IsNaN(v) {
			v = 0
		}
		v = math.Max(-1, math.Min(1, v))
		buf.Data[i] = int(math.Round(v*full)) + offset
	}

	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("audiofile: write wav: %w", err)
	}

	return enc.Close()
}

// SaveWAV writes clip to path as 16-bit WAV, creating parent directories.
func SaveWAV(path string, clip *Clip) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := EncodeWAV(f, clip, 16); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}
