package record

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"
)

// maxLineSize bounds one record line.
const maxLineSize = 4 << 20

// DiscoverFiles returns the sorted, deduplicated absolute paths of regular
// files matching any of patterns. "**" matches across directories.
func DiscoverFiles(patterns ...string) ([]string, error) {
	seen := make(map[string]bool)
	var result []string

	for _, pattern := range patterns {
		// Make pattern absolute for consistent paths.
		if !filepath.IsAbs(pattern) {
			wd, err := os.Getwd()
			if err != nil {
				return nil, err
			}
			pattern = filepath.Join(wd, pattern)
		}

		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("glob %s: %w", pattern, err)
		}
		for _, m := range matches {
			abs, err := filepath.Abs(m)
			if err != nil {
				continue
			}
			info, err := os.Stat(abs)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			if !seen[abs] {
				seen[abs] = true
				result = append(result, abs)
			}
		}
	}
	slices.Sort(result)
	return result, nil
}

// ReadFile parses every record of path. Blank lines and lines starting with
// '#' are skipped. Records without an id get "path:line".
func ReadFile(ctx context.Context, path string, opts Options) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64<<10), maxLineSize)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		if lineNo%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		r, err := ParseLine(line, opts)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		r.Source = path + ":" + strconv.Itoa(lineNo)
		records = append(records, r)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return records, nil
}

// Load reads the records of every file matching patterns, with at most
// workers files open at once. Records are returned in file order, then
// line order.
func Load(ctx context.Context, patterns []string, opts Options, workers int) ([]Record, error) {
	paths, err := DiscoverFiles(patterns...)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no files match %q", patterns)
	}
	if workers <= 0 {
		workers = 1
	}

	perFile := make([][]Record, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range paths {
		g.Go(func() error {
			records, err := ReadFile(gctx, path, opts)
			if err != nil {
				return err
			}
			perFile[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return slices.Concat(perFile...), nil
}
