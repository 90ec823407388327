package feed

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// LoadFilter reads an instrument list, one code per line. Blank lines are
// skipped, duplicates dropped and the file order kept.
func LoadFilter(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening filter list: %w", err)
	}
	defer f.Close()
	return ReadFilter(f)
}

// ReadFilter is LoadFilter over an io.Reader.
func ReadFilter(r io.Reader) ([]string, error) {
	var codes []string
	seen := make(map[string]struct{})
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		code := strings.TrimSpace(sc.Text())
		if code == "" {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading filter list: %w", err)
	}
	return codes, nil
}
