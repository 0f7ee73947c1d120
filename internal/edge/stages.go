package edge

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"sieve/internal/codec"
	"sieve/internal/eval"
	"sieve/internal/logging"
	"sieve/internal/store"
)

// Stage kinds.
const (
	KindDateRange  = "date-range"
	KindLoadDate   = "load-date"
	KindDateType   = "date-type"
	KindExpression = "expression"
)

// Stage options.
const (
	OptBegin     = "begin"
	OptEnd       = "end"
	OptSkipLimit = "skip_limit"
	OptScanLimit = "scan_limit"
	OptDateType  = "date_type"
	OptQuery     = "query"
	OptPrefilter = "prefilter"
	OptStats     = "stats"
)

// ErrScanLimit is yielded when a date filter examined more entries than its
// scan_limit allows.
var ErrScanLimit = errors.New("date filter scan limit reached")

// Prefilter maps a field to the values an edge must have for that field.
// It is checked before the expression is evaluated.
type Prefilter map[string][]string

// EncodePrefilter serializes p for the prefilter option.
func EncodePrefilter(p Prefilter) (string, error) {
	return codec.Encode(base64.StdEncoding, p)
}

// DecodePrefilter parses the prefilter option.
func DecodePrefilter(s string) (Prefilter, error) {
	var p Prefilter
	if err := codec.Decode(base64.StdEncoding, s, &p); err != nil {
		return nil, fmt.Errorf("prefilter: %w", err)
	}
	return p, nil
}

// Allows reports whether ctx has, for every prefilter field, one of the
// allowed values.
func (p Prefilter) Allows(ctx *eval.Context) bool {
	for field, allowed := range p {
		ok := false
		for _, v := range ctx.Values(field) {
			if slices.Contains(allowed, v.Normalized) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// RegisterStages adds the edge stage kinds to reg. Malformed entries are
// logged and dropped by the stages.
func RegisterStages(reg *store.Registry, logger *slog.Logger) {
	logger = logging.For(logger, "edge-filter")
	reg.Register(KindDateRange, func(st store.Stage) (store.Filter, error) {
		return newDateRange(st, logger)
	})
	reg.Register(KindLoadDate, func(st store.Stage) (store.Filter, error) {
		return newLoadDate(st, logger)
	})
	reg.Register(KindDateType, func(st store.Stage) (store.Filter, error) {
		return newDateType(st, logger)
	})
	reg.Register(KindExpression, func(st store.Stage) (store.Filter, error) {
		return newExpression(st, logger)
	})
}

// dateBounds are the options shared by the date filters.
type dateBounds struct {
	begin, end string
	skipLimit  int
	scanLimit  int64
}

func parseDateBounds(st store.Stage) (dateBounds, error) {
	var b dateBounds
	var err error
	if b.begin, err = dateOption(st, OptBegin); err != nil {
		return b, err
	}
	if b.end, err = dateOption(st, OptEnd); err != nil {
		return b, err
	}
	if b.begin > b.end {
		return b, fmt.Errorf("%w: begin %s is after end %s", store.ErrStageOption, b.begin, b.end)
	}
	// skip_limit is validated; the filter cannot seek, so it has no further
	// effect.
	if v, ok := st.Option(OptSkipLimit); ok {
		if b.skipLimit, err = strconv.Atoi(v); err != nil || b.skipLimit < 0 {
			return b, fmt.Errorf("%w: %s=%q", store.ErrStageOption, OptSkipLimit, v)
		}
	}
	if v, ok := st.Option(OptScanLimit); ok {
		if b.scanLimit, err = strconv.ParseInt(v, 10, 64); err != nil || b.scanLimit < 0 {
			return b, fmt.Errorf("%w: %s=%q", store.ErrStageOption, OptScanLimit, v)
		}
	}
	return b, nil
}

func dateOption(st store.Stage, name string) (string, error) {
	v, ok := st.Option(name)
	if !ok {
		return "", fmt.Errorf("%w: missing %s", store.ErrStageOption, name)
	}
	if _, err := time.Parse(DateLayout, v); err != nil {
		return "", fmt.Errorf("%w: %s=%q is not a %s date", store.ErrStageOption, name, v, DateLayout)
	}
	return v, nil
}

func (b dateBounds) contains(date string) bool {
	return date >= b.begin && date <= b.end
}

// limited wraps keep with the scan limit: after scanLimit entries the scan
// ends with ErrScanLimit.
func (b dateBounds) limited(keep func(store.Entry) (bool, error)) func(store.Entry) (bool, error) {
	if b.scanLimit == 0 {
		return keep
	}
	var scanned int64
	return func(e store.Entry) (bool, error) {
		scanned++
		if scanned > b.scanLimit {
			return false, fmt.Errorf("%w (%d)", ErrScanLimit, b.scanLimit)
		}
		return keep(e)
	}
}

func newDateRange(st store.Stage, _ *slog.Logger) (store.Filter, error) {
	b, err := parseDateBounds(st)
	if err != nil {
		return nil, err
	}
	return store.Predicate(b.limited(func(e store.Entry) (bool, error) {
		date, _, _ := strings.Cut(e.Key.ColumnQualifier, "/")
		return b.contains(date), nil
	})), nil
}

func newLoadDate(st store.Stage, logger *slog.Logger) (store.Filter, error) {
	b, err := parseDateBounds(st)
	if err != nil {
		return nil, err
	}
	dt, err := stageDateType(st)
	if err != nil {
		return nil, err
	}
	if !dt.IsLoad() {
		return nil, fmt.Errorf("%w: %s=%s is not a load date type", store.ErrStageOption, OptDateType, dt)
	}
	return store.Predicate(b.limited(func(e store.Entry) (bool, error) {
		edge, err := Decode(e)
		if err != nil {
			logger.Warn("dropping malformed edge", "key", e.Key.String(), "error", err)
			return false, nil
		}
		if edge.LoadDate.IsZero() || !dt.Accepts(edge.DateCode) {
			return false, nil
		}
		return b.contains(edge.LoadDate.Format(DateLayout)), nil
	})), nil
}

func stageDateType(st store.Stage) (DateType, error) {
	v, ok := st.Option(OptDateType)
	if !ok {
		return "", fmt.Errorf("%w: missing %s", store.ErrStageOption, OptDateType)
	}
	dt, err := ParseDateType(v)
	if err != nil {
		return "", fmt.Errorf("%w: %w", store.ErrStageOption, err)
	}
	return dt, nil
}

func newDateType(st store.Stage, logger *slog.Logger) (store.Filter, error) {
	dt, err := stageDateType(st)
	if err != nil {
		return nil, err
	}
	return store.Predicate(func(e store.Entry) (bool, error) {
		p, err := splitKey(e.Key)
		if err != nil {
			logger.Warn("dropping malformed edge", "key", e.Key.String(), "error", err)
			return false, nil
		}
		return dt.Accepts(p.code), nil
	}), nil
}

func newExpression(st store.Stage, logger *slog.Logger) (store.Filter, error) {
	query, ok := st.Option(OptQuery)
	if !ok || strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: missing %s", store.ErrStageOption, OptQuery)
	}
	ev, err := eval.CompileQuery(query, eval.Options{})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", store.ErrStageOption, OptQuery, err)
	}

	var prefilter Prefilter
	if v, ok := st.Option(OptPrefilter); ok {
		if prefilter, err = DecodePrefilter(v); err != nil {
			return nil, fmt.Errorf("%w: %w", store.ErrStageOption, err)
		}
	}

	includeStats := false
	if v, ok := st.Option(OptStats); ok {
		if includeStats, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("%w: %s=%q", store.ErrStageOption, OptStats, v)
		}
	}

	return store.Predicate(func(e store.Entry) (bool, error) {
		edge, err := Decode(e)
		if err != nil {
			logger.Warn("dropping malformed edge", "key", e.Key.String(), "error", err)
			return false, nil
		}
		if edge.Stats() && !includeStats {
			return false, nil
		}
		ctx := edge.Context()
		if !prefilter.Allows(ctx) {
			return false, nil
		}
		return ev.Match(ctx), nil
	}), nil
}
