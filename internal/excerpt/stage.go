package excerpt

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"sieve/internal/logging"
	"sieve/internal/store"
)

// Stage kind and options of the excerpt stage.
const (
	KindExcerpt = "excerpt"

	OptField = "field"
	OptStart = "start"
	OptEnd   = "end"
)

// PhraseQualifier is the qualifier of an excerpt result: the field, a NUL
// byte and the excerpt text.
func PhraseQualifier(field, phrase string) string {
	return field + "\x00" + phrase
}

// RegisterStage adds the excerpt stage to reg. The stage consumes the
// term-frequency entries of one record and yields a single entry whose
// qualifier is PhraseQualifier(field, text) for the tokens [start, end) of
// field, or nothing when none of those tokens are stored.
func RegisterStage(reg *store.Registry, logger *slog.Logger) {
	logger = logging.For(logger, "excerpt-stage")
	reg.Register(KindExcerpt, func(st store.Stage) (store.Filter, error) {
		return newStage(st, logger)
	})
}

type stageOptions struct {
	field      string
	start, end int
}

func parseStage(st store.Stage) (stageOptions, error) {
	var o stageOptions
	var ok bool
	if o.field, ok = st.Option(OptField); !ok || o.field == "" {
		return o, fmt.Errorf("%w: missing %s", store.ErrStageOption, OptField)
	}
	var err error
	if o.start, err = intOption(st, OptStart); err != nil {
		return o, err
	}
	if o.end, err = intOption(st, OptEnd); err != nil {
		return o, err
	}
	if o.end <= o.start {
		return o, fmt.Errorf("%w: empty token range [%d, %d)", store.ErrStageOption, o.start, o.end)
	}
	return o, nil
}

func intOption(st store.Stage, name string) (int, error) {
	v, ok := st.Option(name)
	if !ok {
		return 0, fmt.Errorf("%w: missing %s", store.ErrStageOption, name)
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s=%q", store.ErrStageOption, name, v)
	}
	return n, nil
}

func newStage(st store.Stage, logger *slog.Logger) (store.Filter, error) {
	o, err := parseStage(st)
	if err != nil {
		return nil, err
	}
	return func(_ context.Context, in iter.Seq2[store.Entry, error]) iter.Seq2[store.Entry, error] {
		return func(yield func(store.Entry, error) bool) {
			tokens := make(map[int]string)
			var first *store.Key
			for e, err := range in {
				if err != nil {
					yield(store.Entry{}, err)
					return
				}
				field, term, ok := parseTermKey(e.Key.ColumnQualifier)
				if !ok || field != o.field {
					continue
				}
				offsets, err := decodeOffsets(e.Value)
				if err != nil {
					logger.Warn("skipping malformed term entry", "key", e.Key.String(), "error", err)
					continue
				}
				for _, off := range offsets {
					if off >= o.start && off < o.end {
						tokens[off] = term
					}
				}
				if first == nil {
					k := e.Key
					first = &k
				}
			}
			if len(tokens) == 0 {
				return
			}
			yield(store.Entry{Key: store.Key{
				Row:             first.Row,
				ColumnFamily:    first.ColumnFamily,
				ColumnQualifier: PhraseQualifier(o.field, phrase(tokens)),
				Visibility:      first.Visibility,
				Timestamp:       first.Timestamp,
			}}, nil)
		}
	}, nil
}

// phrase joins tokens in offset order. Gaps are skipped.
func phrase(tokens map[int]string) string {
	offsets := make([]int, 0, len(tokens))
	for off := range tokens {
		offsets = append(offsets, off)
	}
	slices.Sort(offsets)
	words := make([]string, len(offsets))
	for i, off := range offsets {
		words[i] = tokens[off]
	}
	return strings.Join(words, " ")
}
