package fix

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrIncomplete signals that no full frame is buffered yet.
	errIncomplete = errors.New("fix: incomplete frame")

	// ErrBadChecksum signals a frame whose CheckSum(10) did not verify.
	ErrBadChecksum = errors.New("fix: checksum mismatch")
)

var beginMarker = []byte("8=" + BeginString + SOH)

// Parser accumulates raw socket bytes and yields complete messages.
// A malformed frame is discarded (the buffer skips to the next BeginString)
// and reported as an error; the caller's loop continues.
type Parser struct {
	buf bytes.Buffer
}

// NewParser returns an empty parser.
func NewParser() *Parser {
	return &Parser{}
}

// Write appends raw bytes from the socket.
func (p *Parser) Write(data []byte) {
	p.buf.Write(data)
}

// Next extracts the next complete message. It returns (nil, nil) when the
// buffer holds no full frame yet.
func (p *Parser) Next() (*Message, error) {
	for {
		msg, err := p.next()
		if err == errIncomplete {
			return nil, nil
		}
		return msg, err
	}
}

func (p *Parser) next() (*Message, error) {
	data := p.buf.Bytes()

	start := bytes.Index(data, beginMarker)
	if start < 0 {
		// Keep a tail in case the marker arrives split across reads.
		if p.buf.Len() > len(beginMarker) {
			p.buf.Next(p.buf.Len() - len(beginMarker))
		}
		return nil, errIncomplete
	}
	if start > 0 {
		p.buf.Next(start)
		data = p.buf.Bytes()
	}

	// BodyLength(9) must immediately follow BeginString.
	rest := data[len(beginMarker):]
	if !bytes.HasPrefix(rest, []byte("9=")) {
		if len(rest) < 2 {
			return nil, errIncomplete
		}
		return nil, p.discard("missing BodyLength")
	}
	lenEnd := bytes.IndexByte(rest, SOH[0])
	if lenEnd < 0 {
		return nil, errIncomplete
	}
	bodyLen, err := strconv.Atoi(string(rest[2:lenEnd]))
	if err != nil || bodyLen < 0 {
		return nil, p.discard("bad BodyLength")
	}

	headerLen := len(beginMarker) + lenEnd + 1
	trailerStart := headerLen + bodyLen
	// Trailer is "10=NNN" + SOH.
	frameLen := trailerStart + 7
	if len(data) < frameLen {
		return nil, errIncomplete
	}

	trailer := data[trailerStart:frameLen]
	if !bytes.HasPrefix(trailer, []byte("10=")) || trailer[6] != SOH[0] {
		return nil, p.discard("missing CheckSum")
	}
	want, err := strconv.Atoi(string(trailer[3:6]))
	if err != nil {
		return nil, p.discard("bad CheckSum field")
	}
	sum := 0
	for _, c := range data[:trailerStart] {
		sum += int(c)
	}
	if sum%256 != want {
		p.buf.Next(frameLen)
		return nil, ErrBadChecksum
	}

	msg := NewMessage()
	for _, raw := range bytes.Split(data[:trailerStart], []byte(SOH)) {
		if len(raw) == 0 {
			continue
		}
		eq := bytes.IndexByte(raw, '=')
		if eq <= 0 {
			continue
		}
		tag, err := strconv.Atoi(string(raw[:eq]))
		if err != nil {
			continue
		}
		msg.Append(tag, string(raw[eq+1:]))
	}
	msg.Append(TagCheckSum, string(trailer[3:6]))

	p.buf.Next(frameLen)
	return msg, nil
}

// discard drops the broken frame head so the parser can resynchronise on the
// next BeginString, and reports why.
func (p *Parser) discard(reason string) error {
	p.buf.Next(len(beginMarker))
	return fmt.Errorf("fix: malformed frame: %s", reason)
}
