package transfer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vsbridge/vsbridge/internal/xerrors"
)

// inBandTag is the literal ASCII prefix prepended to the first chunk's
// payload when the consumer cannot learn a chunked transfer's shape
// out-of-band (spec.md §4.4 "Header framing", §6 "In-band chunked header").
// This implementation always uses the in-band header for chunked writes,
// resolving the spec's Open Question in favor of the strictly safer option:
// the consumer only ever discovers a transfer from data_ready, never from a
// side channel, so the in-band header is mandatory per spec.md's own rule.
const inBandTagPrefix = "CHUNKED|"

// formatInBandHeader renders "CHUNKED|<total>|<chunk_size>|<N>|".
func formatInBandHeader(total, chunkSize uint64, n uint32) []byte {
	return []byte(fmt.Sprintf("%s%d|%d|%d|", inBandTagPrefix, total, chunkSize, n))
}

// parseInBandHeader strips and parses the tag from the front of data,
// returning the remaining payload bytes. A malformed tag is a ProtocolError
// (spec.md §7).
func parseInBandHeader(channelName string, data []byte) (total, chunkSize uint64, n uint32, rest []byte, err error) {
	s := string(data)
	if !strings.HasPrefix(s, inBandTagPrefix) {
		return 0, 0, 0, nil, xerrors.New(xerrors.KindProtocol, channelName, errMalformedHeader("missing CHUNKED| tag"))
	}
	s = s[len(inBandTagPrefix):]

	fields := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		idx := strings.IndexByte(s, '|')
		if idx < 0 {
			return 0, 0, 0, nil, xerrors.New(xerrors.KindProtocol, channelName, errMalformedHeader("truncated CHUNKED| tag"))
		}
		fields = append(fields, s[:idx])
		s = s[idx+1:]
	}

	total, err1 := strconv.ParseUint(fields[0], 10, 64)
	chunkSize, err2 := strconv.ParseUint(fields[1], 10, 64)
	n64, err3 := strconv.ParseUint(fields[2], 10, 32)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, 0, 0, nil, xerrors.New(xerrors.KindProtocol, channelName, errMalformedHeader("non-numeric CHUNKED| field"))
	}

	return total, chunkSize, uint32(n64), []byte(s), nil
}

func errMalformedHeader(msg string) error { return malformedHeaderError(msg) }

type malformedHeaderError string

func (e malformedHeaderError) Error() string { return "malformed in-band chunk header: " + string(e) }
