package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zurustar/rolandseq/pkg/fileutil"
)

// DefaultSoundFontName is the default SoundFont filename to search for.
const DefaultSoundFontName = "GeneralUser-GS.sf2"

// ErrNoOutput はポートもSoundFontも見つからない場合のエラー
var ErrNoOutput = errors.New("no output: specify --port or provide a SoundFont")

// findSoundFont searches for a SoundFont file in the following order:
// 1. The explicitly configured path
// 2. DefaultSoundFontName next to the MIDI file
// 3. DefaultSoundFontName in the current directory
//
// Every lookup ignores the case of the file name.
func findSoundFont(explicit, midiPath string) (string, error) {
	// 1. 明示指定されたパスは見つからなければエラー
	if explicit != "" {
		path, err := fileutil.Resolve(explicit)
		if err != nil {
			return "", fmt.Errorf("soundfont %s: %w", explicit, err)
		}
		return path, nil
	}

	// 2, 3. MIDIファイルと同じディレクトリ、カレントディレクトリの順に検索
	var dirs []string
	if midiPath != "" {
		dirs = append(dirs, filepath.Dir(midiPath))
	}
	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs, wd)
	}
	path, err := fileutil.Search(DefaultSoundFontName, dirs...)
	if err != nil {
		return "", ErrNoOutput
	}
	return path, nil
}
