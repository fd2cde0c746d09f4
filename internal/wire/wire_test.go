package wire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalParseRoundTrip(t *testing.T) {
	sent := time.Date(2026, 3, 4, 5, 6, 7, 123456789, time.UTC)
	h := Request(4096, MinBlockSize, sent)

	buf := make([]byte, HeaderSize)
	h.Marshal(buf)

	parsed, err := Parse(buf)
	require.NoError(t, err)
	assert.Equal(t, h.ThisBlockSize, parsed.ThisBlockSize)
	assert.Equal(t, h.RequestBlockSize, parsed.RequestBlockSize)
	assert.Equal(t, h.SentSec, parsed.SentSec)
	assert.Equal(t, h.SentNsec, parsed.SentNsec)
	assert.True(t, h.SentTime().Equal(parsed.SentTime()), "timestamp must round-trip exactly")
}

func TestMarshalParseRoundTripNonNormalizedTimestamp(t *testing.T) {
	// A peer is free to send a nanoseconds field outside [0, 1e9); Parse
	// must carry it through unchanged rather than normalizing it, so a
	// later Response echoes the exact bytes received.
	h := Header{ThisBlockSize: 4096, RequestBlockSize: MinBlockSize, SentSec: 100, SentNsec: 2_500_000_000}

	buf := make([]byte, HeaderSize)
	h.Marshal(buf)

	parsed, err := Parse(buf)
	require.NoError(t, err)
	assert.Equal(t, h.SentSec, parsed.SentSec)
	assert.Equal(t, h.SentNsec, parsed.SentNsec)
}

func TestParseShortBufferErrors(t *testing.T) {
	_, err := Parse(make([]byte, HeaderSize-1))
	assert.ErrorIs(t, err, ErrShortHeader)
}

func TestValidThisBlockSizeBounds(t *testing.T) {
	assert.False(t, ValidThisBlockSize(MinBlockSize-1, 8192))
	assert.True(t, ValidThisBlockSize(MinBlockSize, 8192))
	assert.True(t, ValidThisBlockSize(8192, 8192))
	assert.False(t, ValidThisBlockSize(8193, 8192))
}

func TestValidRequestBlockSizeSpecialValues(t *testing.T) {
	assert.True(t, ValidRequestBlockSize(NoResponse, 8192))
	assert.True(t, ValidRequestBlockSize(ResponseMarker, 8192))
	assert.False(t, ValidRequestBlockSize(1, 8192))
	assert.True(t, ValidRequestBlockSize(MinBlockSize, 8192))
	assert.False(t, ValidRequestBlockSize(8193, 8192))
}

func TestResponseEchoesRequestTimestamp(t *testing.T) {
	sent := time.Now().UTC()
	req := Request(4096, 512, sent)
	resp := Response(req, 512)

	assert.Equal(t, int32(512), resp.ThisBlockSize)
	assert.Equal(t, ResponseMarker, resp.RequestBlockSize)
	assert.Equal(t, req.SentSec, resp.SentSec)
	assert.Equal(t, req.SentNsec, resp.SentNsec)
}
