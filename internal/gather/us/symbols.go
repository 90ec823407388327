package us

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strings"
)

// LoadCSVSymbols reads the first column ("symbol") from a CSV file. The file
// must have a header row. Symbols are upper-cased.
func LoadCSVSymbols(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening CSV %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading CSV %s: %w", path, err)
	}

	if len(records) < 2 {
		return nil, nil
	}

	symbols := make([]string, 0, len(records)-1)
	for _, row := range records[1:] {
		if len(row) > 0 {
			sym := strings.TrimSpace(row[0])
			if sym != "" {
				symbols = append(symbols, strings.ToUpper(sym))
			}
		}
	}
	return symbols, nil
}

// Universe merges the configured symbols with those of an optional CSV file,
// upper-cased, deduplicated and sorted.
func Universe(symbols []string, csvPath string) ([]string, error) {
	all := append([]string(nil), symbols...)
	if csvPath != "" {
		fromCSV, err := LoadCSVSymbols(csvPath)
		if err != nil {
			return nil, err
		}
		all = append(all, fromCSV...)
	}

	seen := make(map[string]struct{}, len(all))
	out := make([]string, 0, len(all))
	for _, s := range all {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}
