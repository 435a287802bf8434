// Package staging lists and opens the raw files waiting to be loaded. A
// staging area is a flat directory of harvest logs and price documents,
// either on the local filesystem or under an S3 prefix.
package staging

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"sort"
	"time"
)

// Object is one file in a staging area. Name is relative to the area root.
type Object struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Source is a staging area.
type Source interface {
	// List returns the files at the top level of the area, sorted by name.
	List(ctx context.Context) ([]Object, error)

	// Open returns the content of a file. The caller closes it.
	Open(ctx context.Context, name string) (io.ReadCloser, error)

	// Put writes a file, replacing any existing one.
	Put(ctx context.Context, name string, r io.Reader) error

	// String describes the location for logs.
	String() string
}

var (
	harvestName = regexp.MustCompile(`^harvest_log_(\d{4}-\d{2}-\d{2})\.csv$`)
	priceName   = regexp.MustCompile(`^market_prices_(\d{4}-\d{2}-\d{2})\.json$`)
)

// HarvestFileName returns the staging name of the harvest log for date.
func HarvestFileName(date string) string { return fmt.Sprintf("harvest_log_%s.csv", date) }

// PriceFileName returns the staging name of the price document for date.
func PriceFileName(date string) string { return fmt.Sprintf("market_prices_%s.json", date) }

// HarvestDate returns the date encoded in a harvest log name.
func HarvestDate(name string) (string, bool) {
	m := harvestName.FindStringSubmatch(name)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Pair is the harvest log and price document of one day.
type Pair struct {
	Date    string
	Harvest string
	Prices  string
}

// Pairs matches harvest logs with the price document of the same date,
// keeping only dates equal to date when it is not empty. Files without a
// partner, or with unrecognized names, are returned as orphans.
func Pairs(objects []Object, date string) (pairs []Pair, orphans []string) {
	harvest := make(map[string]string)
	prices := make(map[string]string)
	for _, o := range objects {
		if m := harvestName.FindStringSubmatch(o.Name); m != nil {
			if date == "" || m[1] == date {
				harvest[m[1]] = o.Name
			}
			continue
		}
		if m := priceName.FindStringSubmatch(o.Name); m != nil {
			if date == "" || m[1] == date {
				prices[m[1]] = o.Name
			}
			continue
		}
		orphans = append(orphans, o.Name)
	}

	for d, h := range harvest {
		p, ok := prices[d]
		if !ok {
			orphans = append(orphans, h)
			continue
		}
		pairs = append(pairs, Pair{Date: d, Harvest: h, Prices: p})
		delete(prices, d)
	}
	for _, p := range prices {
		orphans = append(orphans, p)
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Date < pairs[j].Date })
	sort.Strings(orphans)
	return pairs, orphans
}

// Discover lists src and pairs its files.
func Discover(ctx context.Context, src Source, date string) ([]Pair, []string, error) {
	objects, err := src.List(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list %s: %w", src, err)
	}
	pairs, orphans := Pairs(objects, date)
	return pairs, orphans, nil
}
