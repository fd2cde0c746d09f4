// Package wire implements the fixed block header flowgrind prepends to
// every application-layer write: two 32-bit size fields in network byte
// order followed by a sender timestamp, used both to frame request/
// response blocks and to carry the round-trip/one-way timing samples the
// daemon reports on.
package wire

import (
	"encoding/binary"
	"errors"
	"time"
)

// HeaderSize is the wire size of Header in bytes: two int32 fields plus two
// int64 fields (seconds, nanoseconds). It is also MinBlockSize: the
// smallest block a flow can ever send, since every block must carry a
// header.
const HeaderSize = 4 + 4 + 8 + 8

// MinBlockSize equals HeaderSize; named separately because callers outside
// this package reason about it as a block-size bound, not a struct layout.
const MinBlockSize = HeaderSize

// ResponseMarker is the RequestBlockSize value used to mark a block as a
// response rather than a request.
const ResponseMarker int32 = -1

// NoResponse is the RequestBlockSize value used to mark a request block
// that expects no response.
const NoResponse int32 = 0

var ErrShortHeader = errors.New("wire: buffer shorter than header size")

// Header is the on-wire block header.
type Header struct {
	// ThisBlockSize is the total size, including the header, of the block
	// currently being sent.
	ThisBlockSize int32
	// RequestBlockSize is NoResponse, ResponseMarker, or the size the peer
	// must reply with, in [MinBlockSize, maxBlockSize].
	RequestBlockSize int32
	// SentSec/SentNsec are the raw seconds/nanoseconds fields of the
	// sender's timestamp, carried as the bytes read off the wire (not a
	// normalized time.Time) so a response can echo them back unchanged even
	// if a peer sent a nanoseconds value outside [0, 1e9). Use SentTime for
	// the normalized value when doing arithmetic on it.
	SentSec  int64
	SentNsec int64
}

// SentTime returns the header's timestamp as a normalized time.Time, for
// computing RTT/IAT/one-way delay against another time.Time.
func (h Header) SentTime() time.Time {
	return time.Unix(h.SentSec, h.SentNsec).UTC()
}

// Marshal serializes h into buf, which must be at least HeaderSize bytes.
func (h Header) Marshal(buf []byte) {
	binary.BigEndian.PutUint32(buf[0:4], uint32(h.ThisBlockSize))
	binary.BigEndian.PutUint32(buf[4:8], uint32(h.RequestBlockSize))
	binary.BigEndian.PutUint64(buf[8:16], uint64(h.SentSec))
	binary.BigEndian.PutUint64(buf[16:24], uint64(h.SentNsec))
}

// Parse reads a Header out of buf, which must be at least HeaderSize bytes.
// The timestamp fields are carried through verbatim, unnormalized, so a
// later Response built from this Header echoes the exact bytes received.
func Parse(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, ErrShortHeader
	}
	return Header{
		ThisBlockSize:    int32(binary.BigEndian.Uint32(buf[0:4])),
		RequestBlockSize: int32(binary.BigEndian.Uint32(buf[4:8])),
		SentSec:          int64(binary.BigEndian.Uint64(buf[8:16])),
		SentNsec:         int64(binary.BigEndian.Uint64(buf[16:24])),
	}, nil
}

// ValidThisBlockSize reports whether v is an acceptable ThisBlockSize for a
// flow whose blocks are bounded by [MinBlockSize, maxBlockSize].
func ValidThisBlockSize(v int32, maxBlockSize int32) bool {
	return v >= MinBlockSize && v <= maxBlockSize
}

// ValidRequestBlockSize reports whether v is an acceptable
// RequestBlockSize: NoResponse, ResponseMarker, or within
// [MinBlockSize, maxBlockSize].
func ValidRequestBlockSize(v int32, maxBlockSize int32) bool {
	if v == NoResponse || v == ResponseMarker {
		return true
	}
	return v >= MinBlockSize && v <= maxBlockSize
}

// Response builds the header for a response block of size responseSize,
// echoing the timestamp fields from the request header req as the exact
// bytes received, so the originator can compute round-trip time and a
// malformed/non-normalized sender value still echoes bit-identical.
func Response(req Header, responseSize int32) Header {
	return Header{
		ThisBlockSize:    responseSize,
		RequestBlockSize: ResponseMarker,
		SentSec:          req.SentSec,
		SentNsec:         req.SentNsec,
	}
}

// Request builds the header for a request block of size thisBlockSize,
// asking for a response of responseSize (NoResponse for none), stamped
// with sent as the send timestamp.
func Request(thisBlockSize, responseSize int32, sent time.Time) Header {
	return Header{
		ThisBlockSize:    thisBlockSize,
		RequestBlockSize: responseSize,
		SentSec:          sent.Unix(),
		SentNsec:         int64(sent.Nanosecond()),
	}
}
