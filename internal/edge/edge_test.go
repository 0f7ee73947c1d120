package edge

import (
	"context"
	"testing"
	"time"

	"sieve/internal/store"
	"sieve/internal/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func sampleEdges() []Edge {
	return []Edge{
		{Source: "alice", Sink: "bob", Type: "EMAIL", Relation: "TO-FROM", Date: day("20240101"), DateCode: CodeEvent, LoadDate: day("20240105"), Count: 3},
		{Source: "alice", Sink: "carol", Type: "EMAIL", Relation: "TO-FROM", Date: day("20240201"), DateCode: CodeActivity, LoadDate: day("20240202"), Count: 1},
		{Source: "alice", Sink: "dave", Type: "PHONE", Relation: "CALLER-CALLEE", Attribute1: "mobile", Date: day("20240301"), DateCode: CodeBoth, Count: 7},
		{Source: "alice", Sink: "", Type: StatsType, Relation: "DEGREE", Date: day("20240101"), DateCode: CodeEvent, Count: 3},
		{Source: "bob", Sink: "alice", Type: "EMAIL", Relation: "FROM-TO", Date: day("20240101"), DateCode: CodeEvent, LoadDate: day("20240105"), Count: 3},
	}
}

func loadEdges(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New()
	for _, e := range sampleEdges() {
		entry, err := e.Entry()
		require.NoError(t, err)
		require.NoError(t, s.Put(context.Background(), entry))
	}
	return s
}

func TestEdgeRoundTrip(t *testing.T) {
	for _, e := range sampleEdges() {
		entry, err := e.Entry()
		require.NoError(t, err)
		got, err := Decode(entry)
		require.NoError(t, err)
		assert.Equal(t, e, got)
	}
}

func TestEdgeKeyLayout(t *testing.T) {
	e := sampleEdges()[2]
	k := e.Key()
	assert.Equal(t, "alice\x00dave", k.Row)
	assert.Equal(t, "PHONE/CALLER-CALLEE", k.ColumnFamily)
	assert.Equal(t, "20240301/mobile///B", k.ColumnQualifier)
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name  string
		entry store.Entry
	}{
		{"row without sink", store.Entry{Key: store.Key{Row: "nosink", ColumnQualifier: "20240101////E"}}},
		{"short qualifier", store.Entry{Key: store.Key{Row: "a\x00b", ColumnQualifier: "20240101/E"}}},
		{"bad date", store.Entry{Key: store.Key{Row: "a\x00b", ColumnQualifier: "2024xx01////E"}}},
		{"bad value", store.Entry{Key: store.Key{Row: "a\x00b", ColumnQualifier: "20240101////E"}, Value: []byte{0xc1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.entry)
			assert.ErrorIs(t, err, ErrMalformedEdge)
		})
	}
}

func TestContext(t *testing.T) {
	ctx := sampleEdges()[0].Context()
	assert.Equal(t, "alice", ctx.Values(FieldSource)[0].Normalized)
	assert.Equal(t, "20240105", ctx.Values(FieldLoadDate)[0].Normalized)
	assert.Equal(t, "3", ctx.Values(FieldCount)[0].Normalized)
	assert.Empty(t, ctx.Values(FieldAttribute1))
}

func TestParseDateType(t *testing.T) {
	tests := []struct {
		in      string
		want    DateType
		wantErr bool
	}{
		{"activity_load", ActivityLoad, false},
		{"", Event, false},
		{"sometimes", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			dt, err := ParseDateType(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, dt)
		})
	}
	assert.True(t, ActivityLoad.IsLoad())
}

func TestDateTypeAccepts(t *testing.T) {
	tests := []struct {
		dt   DateType
		code string
		want bool
	}{
		{Event, CodeEvent, true},
		{Event, CodeActivity, false},
		{Event, CodeBoth, true},
		{Activity, CodeEvent, false},
		{Activity, CodeActivity, true},
		{Load, CodeEvent, true},
		{ActivityLoad, CodeBoth, true},
		{Any, CodeActivity, true},
		{AnyLoad, CodeEvent, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.dt)+"/"+tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.dt.Accepts(tt.code))
		})
	}
}

func scan(t *testing.T, s *memory.Store, stages ...store.Stage) ([]Edge, error) {
	t.Helper()
	reg := store.NewRegistry()
	RegisterStages(reg, nil)
	entries, err := store.Collect(store.NewScanner(s, reg).Scan(context.Background(), store.ScanRequest{Stages: stages}))
	if err != nil {
		return nil, err
	}
	out := make([]Edge, len(entries))
	for i, e := range entries {
		out[i], err = Decode(e)
		require.NoError(t, err)
	}
	return out, nil
}

func sinks(edges []Edge) []string {
	out := make([]string, len(edges))
	for i, e := range edges {
		out[i] = e.Source + ">" + e.Sink
	}
	return out
}

func TestDateRangeStage(t *testing.T) {
	s := loadEdges(t)
	got, err := scan(t, s, store.Stage{Priority: 30, Kind: KindDateRange, Options: map[string]string{
		OptBegin: "20240101", OptEnd: "20240201", OptSkipLimit: "10", OptScanLimit: "100",
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice>", "alice>bob", "alice>carol", "bob>alice"}, sinks(got))

	_, err = scan(t, s, store.Stage{Kind: KindDateRange, Options: map[string]string{
		OptBegin: "20240101", OptEnd: "20240201", OptScanLimit: "2",
	}})
	assert.ErrorIs(t, err, ErrScanLimit)

	_, err = scan(t, s, store.Stage{Kind: KindDateRange, Options: map[string]string{OptBegin: "20240301", OptEnd: "20240101"}})
	assert.ErrorIs(t, err, store.ErrStageOption)
}

func TestLoadDateStage(t *testing.T) {
	s := loadEdges(t)
	tests := []struct {
		name     string
		end      string
		dateType DateType
		want     []string
		wantErr  error
	}{
		{"load", "20240131", Load, []string{"alice>bob", "bob>alice"}, nil},
		{"any load", "20241231", AnyLoad, []string{"alice>bob", "alice>carol", "bob>alice"}, nil},
		{"event is not a load type", "20241231", Event, nil, store.ErrStageOption},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := scan(t, s, store.Stage{Kind: KindLoadDate, Options: map[string]string{
				OptBegin: "20240101", OptEnd: tt.end, OptDateType: string(tt.dateType),
			}})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, sinks(got))
		})
	}
}

func TestDateTypeStage(t *testing.T) {
	s := loadEdges(t)
	got, err := scan(t, s, store.Stage{Kind: KindDateType, Options: map[string]string{OptDateType: string(Activity)}})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice>carol", "alice>dave"}, sinks(got))
}

func TestExpressionStage(t *testing.T) {
	s := loadEdges(t)
	prefilter, err := EncodePrefilter(Prefilter{FieldSink: {"carol", "dave"}})
	require.NoError(t, err)

	tests := []struct {
		name    string
		options map[string]string
		want    []string
		wantErr error
	}{
		{
			name:    "query",
			options: map[string]string{OptQuery: "SOURCE == 'alice' && TYPE == 'EMAIL'"},
			want:    []string{"alice>bob", "alice>carol"},
		},
		{
			// Statistics edges pass only when requested.
			name:    "stats",
			options: map[string]string{OptQuery: "SOURCE == 'alice' && COUNT == 3", OptStats: "true"},
			want:    []string{"alice>", "alice>bob"},
		},
		{
			name:    "prefilter",
			options: map[string]string{OptQuery: "SOURCE == 'alice'", OptPrefilter: prefilter},
			want:    []string{"alice>carol", "alice>dave"},
		},
		{
			name:    "bad query",
			options: map[string]string{OptQuery: "SOURCE =="},
			wantErr: store.ErrStageOption,
		},
		{
			name:    "bad prefilter",
			options: map[string]string{OptQuery: "A == 1", OptPrefilter: "%%%"},
			wantErr: store.ErrStageOption,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := scan(t, s, store.Stage{Kind: KindExpression, Options: tt.options})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, sinks(got))
		})
	}
}

func TestPrefilterRoundTrip(t *testing.T) {
	p := Prefilter{FieldType: {"EMAIL"}, FieldRelation: {"TO-FROM", "FROM-TO"}}
	s, err := EncodePrefilter(p)
	require.NoError(t, err)
	got, err := DecodePrefilter(s)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}
