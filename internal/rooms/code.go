package rooms

import (
	"crypto/rand"
)

// codeAlphabet excludes ambiguous characters (0/O, 1/l) so codes survive being
// read aloud or written down.
const (
	codeAlphabet = "abcdefghijkmnpqrstuvwxyz23456789"
	codeLength   = 8
)

// NewCode generates a random join code.
func NewCode() string {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		panic("rooms: crypto/rand unavailable: " + err.Error())
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf)
}
