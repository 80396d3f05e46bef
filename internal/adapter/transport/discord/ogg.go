package discord

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

const (
	oggPageHeaderSize = 27
	oggMaxSegments    = 255
)

var (
	oggCapture = []byte("OggS")
	opusHead   = []byte("OpusHead")
	opusTags   = []byte("OpusTags")
)

// errOggVersion is returned for pages with an unknown stream structure version.
var errOggVersion = errors.New("unsupported ogg version")

// oggReader splits an Ogg Opus stream into Opus packets.
// Header packets (OpusHead, OpusTags) are dropped.
type oggReader struct {
	r       *bufio.Reader
	header  [oggPageHeaderSize]byte
	segs    [oggMaxSegments]byte
	partial bytes.Buffer
	pending [][]byte
}

func newOggReader(r io.Reader) *oggReader {
	return &oggReader{r: bufio.NewReaderSize(r, 16*1024)}
}

// NextPacket returns the next audio packet. At the end of the stream it returns io.EOF.
func (o *oggReader) NextPacket() ([]byte, error) {
	for len(o.pending) == 0 {
		if err := o.readPage(); err != nil {
			return nil, err
		}
	}
	packet := o.pending[0]
	o.pending = o.pending[1:]
	return packet, nil
}

func (o *oggReader) readPage() error {
	if err := o.sync(); err != nil {
		return err
	}
	if _, err := io.ReadFull(o.r, o.header[:]); err != nil {
		return unexpected(err)
	}
	if o.header[4] != 0 {
		return errOggVersion
	}

	count := int(o.header[26])
	table := o.segs[:count]
	if _, err := io.ReadFull(o.r, table); err != nil {
		return unexpected(err)
	}

	for _, size := range table {
		if _, err := io.CopyN(&o.partial, o.r, int64(size)); err != nil {
			return unexpected(err)
		}
		// A lacing value below 255 ends the packet; 255 continues it, possibly on the next page
		if size < 255 {
			o.emit()
		}
	}
	return nil
}

// sync skips bytes until the next capture pattern.
func (o *oggReader) sync() error {
	for {
		sig, err := o.r.Peek(len(oggCapture))
		if err != nil {
			if errors.Is(err, io.EOF) && len(sig) > 0 {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		if bytes.Equal(sig, oggCapture) {
			return nil
		}
		if _, err := o.r.Discard(1); err != nil {
			return err
		}
	}
}

func (o *oggReader) emit() {
	data := o.partial.Bytes()
	defer o.partial.Reset()

	if len(data) == 0 || bytes.HasPrefix(data, opusHead) || bytes.HasPrefix(data, opusTags) {
		return
	}
	packet := make([]byte, len(data))
	copy(packet, data)
	o.pending = append(o.pending, packet)
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
