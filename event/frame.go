package event

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/force-h2020/wfmanager/errors"
)

// ProtocolVersion is sent in HELLO frames.
const ProtocolVersion = "1"

// FrameKind is the first word of a frame.
type FrameKind string

// Frame kinds
const (
	FrameHello   FrameKind = "HELLO"
	FrameGoodbye FrameKind = "GOODBYE"
	FrameMessage FrameKind = "MESSAGE"
	FrameUnknown FrameKind = ""
)

// KindOf returns the kind of a frame without validating the rest of it.
func KindOf(frame []byte) FrameKind {
	word, _, _ := bytes.Cut(frame, []byte(" "))
	switch k := FrameKind(word); k {
	case FrameHello, FrameGoodbye, FrameMessage:
		return k
	}
	return FrameUnknown
}

func malformed(method string, frame []byte) error {
	return errors.WrapInvalid(fmt.Errorf("%w: malformed frame %q", errors.ErrInvalidData, truncate(frame)),
		"event", method, "parse frame")
}

func truncate(frame []byte) string {
	const limit = 64
	if len(frame) > limit {
		return string(frame[:limit]) + "..."
	}
	return string(frame)
}

// FormatHello builds "HELLO <identifier> <version>".
func FormatHello(identifier, version string) []byte {
	return []byte(string(FrameHello) + " " + identifier + " " + version)
}

// ParseHello splits a HELLO frame.
func ParseHello(frame []byte) (identifier, version string, err error) {
	parts := strings.Fields(string(frame))
	if len(parts) != 3 || parts[0] != string(FrameHello) {
		return "", "", malformed("ParseHello", frame)
	}
	return parts[1], parts[2], nil
}

// FormatGoodbye builds "GOODBYE <identifier>".
func FormatGoodbye(identifier string) []byte {
	return []byte(string(FrameGoodbye) + " " + identifier)
}

// ParseGoodbye splits a GOODBYE frame.
func ParseGoodbye(frame []byte) (identifier string, err error) {
	parts := strings.Fields(string(frame))
	if len(parts) != 2 || parts[0] != string(FrameGoodbye) {
		return "", malformed("ParseGoodbye", frame)
	}
	return parts[1], nil
}

// FormatMessage builds "MESSAGE <identifier> <payload>".
func FormatMessage(identifier string, payload []byte) []byte {
	out := make([]byte, 0, len(FrameMessage)+len(identifier)+len(payload)+2)
	out = append(out, FrameMessage...)
	out = append(out, ' ')
	out = append(out, identifier...)
	out = append(out, ' ')
	return append(out, payload...)
}

// ParseMessage splits a MESSAGE frame. The payload is everything after the
// identifier and may contain spaces.
func ParseMessage(frame []byte) (identifier string, payload []byte, err error) {
	rest, ok := bytes.CutPrefix(frame, []byte(string(FrameMessage)+" "))
	if !ok {
		return "", nil, malformed("ParseMessage", frame)
	}
	id, payload, ok := bytes.Cut(rest, []byte(" "))
	if !ok || len(id) == 0 || len(payload) == 0 {
		return "", nil, malformed("ParseMessage", frame)
	}
	return string(id), payload, nil
}
