package envelope

import (
	"bytes"
	"fmt"
	"strconv"
)

// DefaultSeparator is the single-byte field separator used by the file
// transport wire format.
var DefaultSeparator = []byte(",")

// DecodeError describes malformed wire bytes: too few fields, a bad
// terminator, or a bad protocol identifier.
type DecodeError struct {
	Reason string
	Data   []byte
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode envelope: %s (%d bytes)", e.Reason, len(e.Data))
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Encode serializes an envelope as
//
//	<to><sep><sender><sep><protocol_id><sep><message><sep>
//
// The payload is written verbatim, with no escaping. Reversibility is
// guaranteed by Decode's rejoin of trailing fields, not by quoting.
func Encode(env *Envelope, sep []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(env.To) + len(env.Sender) + len(env.Message) + 4*len(sep) + 32)
	buf.WriteString(env.To)
	buf.Write(sep)
	buf.WriteString(env.Sender)
	buf.Write(sep)
	buf.WriteString(env.ProtocolID.String())
	buf.Write(sep)
	buf.Write(env.Message)
	buf.Write(sep)
	return buf.Bytes()
}

// Decode parses one wire record back into an envelope.
//
// The input must split into at least 5 separator-delimited fields and the
// final field must be empty or a single newline. The first three fields are
// positional; everything between the third separator and the terminator is
// rejoined (separators included) to reconstruct the payload, because the
// payload may itself contain the separator.
func Decode(data, sep []byte) (*Envelope, error) {
	parts := bytes.Split(data, sep)
	if len(parts) < 5 {
		return nil, &DecodeError{Reason: "expected at least 5 separator-delimited fields", Data: data}
	}
	last := parts[len(parts)-1]
	if len(last) != 0 && !bytes.Equal(last, []byte("\n")) {
		return nil, &DecodeError{Reason: "record not terminated by separator", Data: data}
	}

	// Some transports prepend NUL bytes to the first field; strip them.
	to := string(bytes.TrimLeft(parts[0], "\x00"))
	sender := string(parts[1])

	pid, err := ParseProtocolID(string(parts[2]))
	if err != nil {
		return nil, &DecodeError{Reason: "bad protocol identifier", Data: data, Err: err}
	}

	message := bytes.Join(parts[3:len(parts)-1], sep)
	message = maybeUnescape(message)

	return &Envelope{To: to, Sender: sender, ProtocolID: pid, Message: message}, nil
}

// maybeUnescape detects payloads injected by naive text tools (shell echo
// writes literal `\x..` sequences instead of raw bytes) and un-escapes
// them. Best effort only: anything that does not round-trip cleanly is
// returned unchanged.
func maybeUnescape(message []byte) []byte {
	if !bytes.Contains(message, []byte(`\x`)) {
		return message
	}
	unquoted, err := strconv.Unquote(`"` + string(message) + `"`)
	if err != nil {
		return message
	}
	return []byte(unquoted)
}

// SplitRecords splits the raw contents of an inbox file into discrete
// envelope records. A record consists of three separator-delimited fields
// followed by an arbitrary-content payload field ending at the next record
// boundary (separator + newline) or at the end of the buffer. The returned
// records exclude the trailing newline and preserve file order.
func SplitRecords(data, sep []byte) [][]byte {
	var records [][]byte
	boundary := append(append([]byte{}, sep...), '\n')

	for len(data) > 0 {
		// Skip the three positional fields.
		pos := 0
		fields := 0
		for fields < 3 {
			idx := bytes.Index(data[pos:], sep)
			if idx < 0 {
				// Trailing garbage with no full header; emit as one record
				// so the decoder can reject and log it.
				records = append(records, data)
				return records
			}
			pos += idx + len(sep)
			fields++
		}

		// Payload runs until the next boundary or end of buffer.
		end := bytes.Index(data[pos:], boundary)
		if end < 0 {
			records = append(records, bytes.TrimSuffix(data, []byte("\n")))
			return records
		}
		record := data[:pos+end+len(sep)]
		records = append(records, record)
		data = data[pos+end+len(boundary):]
	}
	return records
}
