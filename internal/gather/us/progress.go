package us

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	progressFile  = ".progress"
	completedFile = ".last-completed"
)

// progressTracker makes a gathering run resumable. It remembers, for one end
// date, which symbols were fetched (with or without bars) so a restarted run
// skips them, and marks the date completed once every symbol is done.
//
// Layout under dir: .progress holds the end date on its first line followed
// by one "<status> <SYMBOL>" line per finished symbol; .last-completed holds
// the last fully gathered end date.
type progressTracker struct {
	mu      sync.Mutex
	dir     string
	endDate string
	done    map[string]bool // symbol -> had bars
	file    *os.File
	writer  *bufio.Writer
}

// newProgressTracker opens the tracker for endDate under dir. Progress left
// by a run for a different end date is discarded.
func newProgressTracker(dir, endDate string) (*progressTracker, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating progress dir: %w", err)
	}
	pt := &progressTracker{
		dir:     dir,
		endDate: endDate,
		done:    make(map[string]bool),
	}

	path := filepath.Join(dir, progressFile)
	fresh := true
	if data, err := os.ReadFile(path); err == nil {
		lines := strings.Split(string(data), "\n")
		if strings.TrimSpace(lines[0]) == endDate {
			fresh = false
			for _, line := range lines[1:] {
				status, sym, ok := strings.Cut(strings.TrimSpace(line), " ")
				if !ok || sym == "" {
					continue
				}
				pt.done[sym] = status == "bars"
			}
		}
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if fresh {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", progressFile, err)
	}
	pt.file = f
	pt.writer = bufio.NewWriter(f)
	if fresh {
		if _, err := pt.writer.WriteString(endDate + "\n"); err != nil {
			f.Close()
			return nil, err
		}
		if err := pt.writer.Flush(); err != nil {
			f.Close()
			return nil, err
		}
	}
	return pt, nil
}

// IsDone reports whether symbol was already fetched for this end date.
func (p *progressTracker) IsDone(symbol string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.done[symbol]
	return ok
}

// Counts returns how many finished symbols had bars and how many were empty.
func (p *progressTracker) Counts() (hits, empty int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, had := range p.done {
		if had {
			hits++
		} else {
			empty++
		}
	}
	return hits, empty
}

// MarkDone records a batch of finished symbols. hits holds the ones that
// returned bars.
func (p *progressTracker) MarkDone(symbols []string, hits map[string]struct{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, sym := range symbols {
		if _, ok := p.done[sym]; ok {
			continue
		}
		_, had := hits[sym]
		p.done[sym] = had
		status := "empty"
		if had {
			status = "bars"
		}
		if _, err := p.writer.WriteString(status + " " + sym + "\n"); err != nil {
			return fmt.Errorf("writing %s: %w", progressFile, err)
		}
	}
	return p.writer.Flush()
}

// MarkCompleted records the end date as fully gathered.
func (p *progressTracker) MarkCompleted() error {
	return os.WriteFile(filepath.Join(p.dir, completedFile), []byte(p.endDate), 0o644)
}

// IsCompleted reports whether the end date was already fully gathered.
func (p *progressTracker) IsCompleted() bool {
	data, err := os.ReadFile(filepath.Join(p.dir, completedFile))
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(data)) == p.endDate
}

// Close flushes and closes the progress file.
func (p *progressTracker) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.writer.Flush(); err != nil {
		p.file.Close()
		return err
	}
	return p.file.Close()
}
