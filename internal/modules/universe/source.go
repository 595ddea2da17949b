// Package universe provides the instrument list for a rebalance run.
package universe

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// FileSource reads instrument symbols from a flat text file, one symbol per
// line. Blank lines and lines starting with '#' are ignored. Symbols are
// upper-cased and deduplicated.
type FileSource struct {
	path string
	log  zerolog.Logger
}

// NewFileSource creates a new file-backed instrument source
func NewFileSource(path string, log zerolog.Logger) *FileSource {
	return &FileSource{
		path: path,
		log:  log.With().Str("component", "universe").Logger(),
	}
}

// Symbols returns the deduplicated set of instrument symbols
func (s *FileSource) Symbols() (map[string]bool, error) {
	file, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open tickers file: %w", err)
	}
	defer file.Close()

	symbols := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		symbols[strings.ToUpper(line)] = true
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tickers file: %w", err)
	}

	if len(symbols) == 0 {
		return nil, fmt.Errorf("tickers file %s contains no symbols", s.path)
	}

	s.log.Info().Int("count", len(symbols)).Msg("Loaded instrument list")

	return symbols, nil
}
