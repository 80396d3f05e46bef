package discord

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lacing returns the segment table entries for a packet of size n.
func lacing(n int) []byte {
	var table []byte
	for ; n >= 255; n -= 255 {
		table = append(table, 255)
	}
	return append(table, byte(n))
}

// oggPage encodes packets as one page. A non-nil continued packet is appended
// without its final lacing value, so it spills over to the next page.
func oggPage(packets [][]byte, continued []byte) []byte {
	var table, body []byte
	for _, p := range packets {
		table = append(table, lacing(len(p))...)
		body = append(body, p...)
	}
	if continued != nil {
		for i := 0; i < len(continued)/255; i++ {
			table = append(table, 255)
		}
		body = append(body, continued...)
	}

	header := make([]byte, oggPageHeaderSize)
	copy(header, oggCapture)
	header[26] = byte(len(table))

	page := append(header, table...)
	return append(page, body...)
}

func readAll(t *testing.T, r *oggReader) [][]byte {
	t.Helper()
	var packets [][]byte
	for {
		p, err := r.NextPacket()
		if errors.Is(err, io.EOF) {
			return packets
		}
		require.NoError(t, err)
		packets = append(packets, p)
	}
}

func TestOggReader_SkipsHeaders(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(oggPage([][]byte{append([]byte("OpusHead"), 1, 2, 0, 0)}, nil))
	stream.Write(oggPage([][]byte{append([]byte("OpusTags"), 0, 0, 0, 0)}, nil))
	stream.Write(oggPage([][]byte{{0xAA, 0x01}, {0xBB, 0x02, 0x03}}, nil))

	packets := readAll(t, newOggReader(&stream))
	assert.Equal(t, [][]byte{{0xAA, 0x01}, {0xBB, 0x02, 0x03}}, packets)
}

func TestOggReader_LongPacket(t *testing.T) {
	long := bytes.Repeat([]byte{0x7F}, 600)

	var stream bytes.Buffer
	stream.Write(oggPage([][]byte{long, {0x01}}, nil))

	packets := readAll(t, newOggReader(&stream))
	require.Len(t, packets, 2)
	assert.Equal(t, long, packets[0])
	assert.Equal(t, []byte{0x01}, packets[1])
}

func TestOggReader_PacketSpanningPages(t *testing.T) {
	head := bytes.Repeat([]byte{0x10}, 255)
	tail := []byte{0x20, 0x21}

	var stream bytes.Buffer
	stream.Write(oggPage(nil, head))
	stream.Write(oggPage([][]byte{tail}, nil))

	packets := readAll(t, newOggReader(&stream))
	require.Len(t, packets, 1)
	assert.Equal(t, append(append([]byte{}, head...), tail...), packets[0])
}

func TestOggReader_ResyncsOnGarbage(t *testing.T) {
	var stream bytes.Buffer
	stream.WriteString("garbage")
	stream.Write(oggPage([][]byte{{0x42}}, nil))

	packets := readAll(t, newOggReader(&stream))
	assert.Equal(t, [][]byte{{0x42}}, packets)
}

func TestOggReader_TruncatedPage(t *testing.T) {
	page := oggPage([][]byte{{0x01, 0x02, 0x03, 0x04}}, nil)

	r := newOggReader(bytes.NewReader(page[:len(page)-2]))
	_, err := r.NextPacket()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestOggReader_RejectsUnknownVersion(t *testing.T) {
	page := oggPage([][]byte{{0x01}}, nil)
	page[4] = 1

	_, err := newOggReader(bytes.NewReader(page)).NextPacket()
	assert.ErrorIs(t, err, errOggVersion)
}
