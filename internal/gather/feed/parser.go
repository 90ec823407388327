// Package feed reads the fixed-width daily quote files published by the
// exchange and loads them into price series or the bar store.
package feed

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"turtle/internal/domain"
)

// Record is one parsed quote line. Prices and volume are already scaled down
// by 100.
type Record struct {
	Date   time.Time
	Code   string
	Type   string
	Name   string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Bar converts r to a daily bar.
func (r Record) Bar() domain.Bar {
	return domain.Bar{
		Symbol: r.Code,
		Date:   r.Date,
		Open:   r.Open,
		High:   r.High,
		Low:    r.Low,
		Close:  r.Close,
		Volume: r.Volume,
	}
}

// Quote record layout: record type, yyyyMMdd date, 2 ignored, 12 code,
// 3 market type, 12 short name, 17 ignored, open, high and low, 13 ignored,
// close, 49 ignored, volume.
var lineRe = regexp.MustCompile(`^\d\d(\d{8})..(.{12})(.{3})(.{12}).{17}(\d{13})(\d{13})(\d{13}).{13}(\d{13}).{49}(\d{18})`)

// Header and trailer record types carry no quotes.
const (
	recordHeader  = "00"
	recordTrailer = "99"
)

// ParseLine parses one quote line.
func ParseLine(line string) (Record, error) {
	m := lineRe.FindStringSubmatch(line)
	if m == nil {
		return Record{}, fmt.Errorf("line does not match quote layout: %w", domain.ErrMalformedData)
	}

	date, err := time.Parse("20060102", m[1])
	if err != nil {
		return Record{}, fmt.Errorf("date %q: %w", m[1], domain.ErrMalformedData)
	}

	var nums [5]float64
	for i, raw := range []string{m[5], m[6], m[7], m[8], m[9]} {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Record{}, fmt.Errorf("number %q: %w", raw, domain.ErrMalformedData)
		}
		nums[i] = float64(v) / 100
	}

	return Record{
		Date:   date,
		Code:   strings.TrimSpace(m[2]),
		Type:   strings.TrimSpace(m[3]),
		Name:   strings.TrimSpace(m[4]),
		Open:   nums[0],
		High:   nums[1],
		Low:    nums[2],
		Close:  nums[3],
		Volume: nums[4],
	}, nil
}

// Parse reads quote lines from r and calls fn for each record. Blank lines
// and header/trailer records are skipped. A malformed line stops the parse
// with an error naming its line number.
func Parse(r io.Reader, fn func(Record) error) error {
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.HasPrefix(line, recordHeader) || strings.HasPrefix(line, recordTrailer) {
			continue
		}
		rec, err := ParseLine(line)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return sc.Err()
}
