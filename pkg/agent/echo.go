package agent

import (
	"fmt"
	"strings"
)

// EchoPrefix is the "Name(@id): " header some backends repeat at the start of
// a reply.
func EchoPrefix(name, id string) string {
	return fmt.Sprintf("%s(@%s): ", name, id)
}

// StripEcho removes every leading occurrence of prefix from text.
func StripEcho(text, prefix string) string {
	if prefix == "" {
		return text
	}
	for strings.HasPrefix(text, prefix) {
		text = text[len(prefix):]
	}
	return text
}

// echoStripper is the streaming form of StripEcho. Output is held back only
// while everything seen so far could still be the start of an echo.
type echoStripper struct {
	prefix string
	buf    string
	done   bool
}

func newEchoStripper(prefix string) *echoStripper {
	return &echoStripper{prefix: prefix, done: prefix == ""}
}

// Feed consumes a chunk and returns the text that can be emitted now.
func (e *echoStripper) Feed(chunk string) string {
	if e.done {
		return chunk
	}
	e.buf += chunk
	for strings.HasPrefix(e.buf, e.prefix) {
		e.buf = e.buf[len(e.prefix):]
	}
	if e.buf == "" || strings.HasPrefix(e.prefix, e.buf) {
		return ""
	}
	e.done = true
	out := e.buf
	e.buf = ""
	return out
}

// Flush returns whatever is still held back at end of stream.
func (e *echoStripper) Flush() string {
	e.done = true
	out := e.buf
	e.buf = ""
	return out
}
