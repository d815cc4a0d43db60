package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceRoundTrip(t *testing.T) {
	for _, src := range []Source{SourceNotes, SourceConversation} {
		parsed, err := ParseSource(src.String())
		require.NoError(t, err)
		assert.Equal(t, src, parsed)
	}
}

func TestParseSource_Unknown(t *testing.T) {
	_, err := ParseSource("browser-history")
	assert.Error(t, err)
}
