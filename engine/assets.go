package engine

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/cwbudde/soundtoy/audiofile"
)

// AudioFile names one bundled tape loop.
type AudioFile struct {
	Name      string
	Extension string
}

// FileName returns the name with its extension.
func (f AudioFile) FileName() string {
	return f.Name + "." + f.Extension
}

// DefaultAudioFiles are the bundled tape loops, in slot order.
var DefaultAudioFiles = []AudioFile{
	{Name: "Phonogeneli", Extension: "aif"},
	{Name: "060", Extension: "aif"},
	{Name: "Basic Bells 1", Extension: "wav"},
	{Name: "047", Extension: "aif"},
}

// AssetOpener decodes a bundled loop.
type AssetOpener func(f AudioFile) (*audiofile.Clip, error)

// DirAssets opens bundled loops from dir. A missing file is reported as
// [ErrMissingAsset].
func DirAssets(dir string) AssetOpener {
	return func(f AudioFile) (*audiofile.Clip, error) {
		clip, err := audiofile.Load(filepath.Join(dir, f.FileName()))
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingAsset, f.FileName())
		}

		return clip, err
	}
}
