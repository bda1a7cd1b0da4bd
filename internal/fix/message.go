// Package fix implements the FIX 4.4 tag=value subset spoken with the broker:
// message encoding with BodyLength/CheckSum framing, a streaming parser, and
// the per-channel session engine.
package fix

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// SOH is the FIX field delimiter.
const SOH = "\x01"

// BeginString is the only protocol version the broker dialect uses.
const BeginString = "FIX.4.4"

// UTCTimeFormat is the SendingTime/TransactTime layout (tag 52/60).
const UTCTimeFormat = "20060102-15:04:05.000"

type field struct {
	tag   int
	value string
}

// Message is an ordered list of tag=value fields. Order matters on the wire:
// header fields are appended first, then the body, in append order.
type Message struct {
	fields []field
}

// NewMessage returns an empty message.
func NewMessage() *Message {
	return &Message{}
}

// Append adds a tag=value pair at the end of the message.
func (m *Message) Append(tag int, value string) {
	m.fields = append(m.fields, field{tag: tag, value: value})
}

// AppendInt adds an integer field.
func (m *Message) AppendInt(tag, value int) {
	m.Append(tag, strconv.Itoa(value))
}

// AppendDecimal adds a decimal field rendered without exponent notation.
func (m *Message) AppendDecimal(tag int, value decimal.Decimal) {
	m.Append(tag, value.String())
}

// Get returns the first value for tag.
func (m *Message) Get(tag int) (string, bool) {
	for _, f := range m.fields {
		if f.tag == tag {
			return f.value, true
		}
	}
	return "", false
}

// GetOr returns the first value for tag, or def when absent.
func (m *Message) GetOr(tag int, def string) string {
	if v, ok := m.Get(tag); ok {
		return v
	}
	return def
}

// GetDecimal parses the first value for tag as a decimal.
func (m *Message) GetDecimal(tag int) (decimal.Decimal, bool) {
	v, ok := m.Get(tag)
	if !ok {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// MsgType returns tag 35.
func (m *Message) MsgType() string {
	return m.GetOr(TagMsgType, "")
}

// Fields yields every tag/value pair in wire order.
func (m *Message) Fields(fn func(tag int, value string)) {
	for _, f := range m.fields {
		fn(f.tag, f.value)
	}
}

// String renders the message with pipes instead of SOH for logging.
func (m *Message) String() string {
	var b strings.Builder
	for _, f := range m.fields {
		fmt.Fprintf(&b, "%d=%s|", f.tag, f.value)
	}
	return b.String()
}

// Encode serialises the message, inserting BodyLength(9) after BeginString(8)
// and appending CheckSum(10). The first field must be tag 8.
func (m *Message) Encode() ([]byte, error) {
	if len(m.fields) == 0 || m.fields[0].tag != TagBeginString {
		return nil, fmt.Errorf("fix: message must start with BeginString, got %s", m.String())
	}

	var body strings.Builder
	for _, f := range m.fields[1:] {
		body.WriteString(strconv.Itoa(f.tag))
		body.WriteByte('=')
		body.WriteString(f.value)
		body.WriteString(SOH)
	}

	var out strings.Builder
	out.WriteString("8=")
	out.WriteString(m.fields[0].value)
	out.WriteString(SOH)
	out.WriteString("9=")
	out.WriteString(strconv.Itoa(body.Len()))
	out.WriteString(SOH)
	out.WriteString(body.String())

	sum := 0
	for _, c := range []byte(out.String()) {
		sum += int(c)
	}
	fmt.Fprintf(&out, "10=%03d%s", sum%256, SOH)

	return []byte(out.String()), nil
}
