package excerpt

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"sieve/internal/callgroup"
	"sieve/internal/document"
	"sieve/internal/logging"
	"sieve/internal/store"
	"sieve/internal/termoffset"
)

// Transform adds excerpts to documents. Apply may be called concurrently
// for different documents; identical lookups in flight at the same time
// share one scan.
type Transform struct {
	// Fields selects the fields to excerpt and their windows.
	Fields Fields

	// Scanner serves the excerpt lookups. It must know the excerpt stage
	// (see RegisterStage).
	Scanner store.Scanner

	// Limiter paces lookups when set.
	Limiter *rate.Limiter

	// Priority of the excerpt stage in lookup scans.
	Priority int

	Logger *slog.Logger

	lookups callgroup.Group[lookupKey, lookupResult]
}

type lookupKey struct {
	field, recordID string
	start, end      int
}

type lookupResult struct {
	text  string
	found bool
}

// Apply reads the phrase indexes off doc, looks up an excerpt for every
// position of a configured field and stores the distinct excerpts, sorted,
// under HIT_EXCERPT. Documents not marked to keep, or without phrase
// indexes, are left unchanged.
func (t *Transform) Apply(ctx context.Context, doc *document.Document) error {
	if doc == nil || !doc.ToKeep {
		return nil
	}
	attr, ok := doc.First(document.PhraseIndexesAttr)
	if !ok {
		return nil
	}
	logger := logging.For(t.Logger, "excerpt")
	indexes, err := termoffset.ParsePhraseIndexes(attr.Value)
	if err != nil {
		logger.Warn("ignoring unreadable phrase indexes", "error", err)
		return nil
	}

	found := make(map[string]bool)
	for _, field := range t.Fields.Names() {
		window := t.Fields[field]
		for _, pos := range indexes.Positions(field) {
			start, end := Widen(pos.Start, pos.End, window)
			key := lookupKey{field: field, recordID: pos.RecordID, start: start, end: end}
			res, _, err := t.lookups.Do(ctx, key, func() (lookupResult, error) {
				text, ok, err := t.lookup(ctx, logger, key)
				return lookupResult{text: text, found: ok}, err
			})
			if err != nil {
				return fmt.Errorf("excerpt lookup for %s: %w", pos.RecordID, err)
			}
			if res.found && res.text != "" {
				found[res.text] = true
			}
		}
	}
	if len(found) == 0 {
		return nil
	}

	excerpts := make([]string, 0, len(found))
	for text := range found {
		excerpts = append(excerpts, text)
	}
	slices.Sort(excerpts)
	attrs := make([]document.Attribute, len(excerpts))
	for i, text := range excerpts {
		attrs[i] = document.Attribute{Value: text, Visibility: doc.Visibility, Timestamp: doc.Timestamp, ToKeep: true}
	}
	doc.Put(document.HitExcerptAttr, attrs...)
	return nil
}

// lookup fetches the tokens [k.start, k.end) of k.field in record k.recordID.
func (t *Transform) lookup(ctx context.Context, logger *slog.Logger, k lookupKey) (string, bool, error) {
	row, family, ok := strings.Cut(k.recordID, "\x00")
	if !ok {
		logger.Warn("phrase position without a column family", "record", k.recordID)
		return "", false, nil
	}
	if t.Limiter != nil {
		if err := t.Limiter.Wait(ctx); err != nil {
			return "", false, err
		}
	}

	req := store.ScanRequest{
		Ranges: []store.Range{store.Prefix(store.Key{Row: row, ColumnFamily: family}, store.RowColFam)},
		Stages: []store.Stage{{
			Priority: t.Priority,
			Name:     KindExcerpt,
			Kind:     KindExcerpt,
			Options: map[string]string{
				OptField: k.field,
				OptStart: strconv.Itoa(k.start),
				OptEnd:   strconv.Itoa(k.end),
			},
		}},
	}
	for e, err := range t.Scanner.Scan(ctx, req) {
		if err != nil {
			return "", false, err
		}
		gotField, text, ok := strings.Cut(e.Key.ColumnQualifier, "\x00")
		if !ok || gotField != k.field {
			logger.Warn("unexpected excerpt result", "key", e.Key.String())
			return "", false, nil
		}
		return text, true, nil
	}
	return "", false, nil
}
