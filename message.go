package drc

import "strings"

// Message is a single relayed payload split into its parts.
//
// The tag is asserted by the client and is never checked against the
// connection identity.
type Message struct {
	Tag  []byte
	Body []byte
}

// Empty reports whether the message carries nothing worth relaying:
// an empty tag, or a body that is empty or whitespace once read as text.
func (m Message) Empty() bool {
	return len(m.Tag) == 0 || strings.TrimSpace(string(m.Body)) == ""
}

func (m Message) String() string {
	return string(m.Tag) + ": " + string(m.Body)
}
