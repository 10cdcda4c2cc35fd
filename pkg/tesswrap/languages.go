package tesswrap

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const trainedDataExt = ".traineddata"

// SplitLanguages splits a `+` separated language string, dropping empty elements.
func SplitLanguages(languages string) []string {
	var langs []string
	for _, l := range strings.Split(languages, "+") {
		if l = strings.TrimSpace(l); l != "" {
			langs = append(langs, l)
		}
	}
	return langs
}

// CheckTrainedData returns nil if dataPath contains a trained data model for every configured language.
// If not, the error reports the first missing language file.
// An empty dataPath is not checked; the engine's default location is used then.
func CheckTrainedData(dataPath, languages string) error {
	langs := SplitLanguages(languages)
	if len(langs) == 0 {
		return errors.New("no language configured")
	}
	if dataPath == "" {
		return nil
	}
	for _, lang := range langs {
		p := filepath.Join(dataPath, lang+trainedDataExt)
		info, err := os.Stat(p)
		if err != nil {
			return fmt.Errorf("trained data for '%s' not found: %w", lang, err)
		}
		if info.IsDir() || info.Size() == 0 {
			return fmt.Errorf("trained data for '%s' is not a regular, non-empty file: %s", lang, p)
		}
	}
	return nil
}

// checkLangsAvailable compares the configured languages to the ones an engine reports as installed.
func checkLangsAvailable(languages string, available []string) error {
	for _, elem := range SplitLanguages(languages) {
		if !slices.Contains(available, elem) {
			return fmt.Errorf("'%s' is not among the installed languages %v", elem, available)
		}
	}
	return nil
}
