package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentOrdering(t *testing.T) {
	d := New("PUBLIC", 100)
	d.Put("B", Attribute{Value: "1"})
	d.Add("A", Attribute{Value: "x"}, Attribute{Value: "y"})
	d.Put("B", Attribute{Value: "2"})

	assert.Equal(t, []string{"B", "A"}, d.Names())
	assert.Equal(t, []string{"2"}, d.Values("B"))
	assert.Equal(t, []string{"x", "y"}, d.Values("A"))
	assert.True(t, d.ToKeep)

	d.Remove("B")
	assert.Equal(t, []string{"A"}, d.Names())
	assert.False(t, d.Has("B"))
	assert.Equal(t, 1, d.Len())
}

func TestDocumentZeroValue(t *testing.T) {
	var d Document
	d.Add("F", Attribute{Value: "v"})
	first, ok := d.First("F")
	require.True(t, ok)
	assert.Equal(t, "v", first.Value)

	_, ok = d.First("missing")
	assert.False(t, ok)
}

func TestVisibilityFor(t *testing.T) {
	d := New("", 0)
	d.Add("BAR", Attribute{Value: "boom", Visibility: "A&B"}, Attribute{Value: "bang", Visibility: "C"})

	vis, ok := d.VisibilityFor("BAR", "bang")
	require.True(t, ok)
	assert.Equal(t, "C", vis)

	_, ok = d.VisibilityFor("BAR", "nope")
	assert.False(t, ok)
	_, ok = d.VisibilityFor("FOO", "boom")
	assert.False(t, ok)
}

func TestHitTerms(t *testing.T) {
	d := New("", 0)
	d.Add(HitTermAttr,
		Attribute{Value: "BAR:boom", Visibility: "A"},
		Attribute{Value: "URL:http://x", Visibility: "B"},
		Attribute{Value: "malformed"},
	)

	hits := d.HitTerms()
	require.Len(t, hits, 2)
	assert.Equal(t, HitTerm{Field: "BAR", Value: "boom", Visibility: "A"}, hits[0])
	assert.Equal(t, "URL:http://x", hits[1].String())
}
