package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNoSymbols is returned when the symbols file has no entries.
var ErrNoSymbols = errors.New("symbols file is empty")

// LoadSymbols reads one symbol per line, trimming whitespace and skipping
// blank lines. Order is preserved.
func LoadSymbols(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open symbols file: %w", err)
	}
	defer f.Close()

	var symbols []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		s := strings.TrimSpace(scanner.Text())
		if s == "" {
			continue
		}
		symbols = append(symbols, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read symbols file: %w", err)
	}

	if len(symbols) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoSymbols)
	}
	return symbols, nil
}
