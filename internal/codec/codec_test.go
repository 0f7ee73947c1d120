package codec

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	in := map[string][]string{"TYPE": {"MY_EDGE"}, "RELATION": {"A-B", "B-A"}}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawURLEncoding} {
		token, err := Encode(enc, in)
		require.NoError(t, err)

		var out map[string][]string
		require.NoError(t, Decode(enc, token, &out))
		assert.Equal(t, in, out)
	}
}

func TestURLTokenIsURLSafe(t *testing.T) {
	token, err := Encode(base64.RawURLEncoding, strings.Repeat("some payload ", 50))
	require.NoError(t, err)
	assert.NotContains(t, token, "+")
	assert.NotContains(t, token, "/")
	assert.NotContains(t, token, "=")
}

func TestDecodeCorrupt(t *testing.T) {
	var out map[string]string
	for _, token := range []string{"!!!", base64.StdEncoding.EncodeToString([]byte("not zstd"))} {
		err := Decode(base64.StdEncoding, token, &out)
		assert.ErrorIs(t, err, ErrCorrupt, token)
	}
}
