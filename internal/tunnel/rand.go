package tunnel

import "crypto/rand"

// randRead is the process-wide RNG entry point used by the record codec
// for padding and IV seeds. Declared as a var rather than called directly
// from crypto/rand so tests can substitute a deterministic source.
var randRead = func(buf []byte) error {
	_, err := rand.Read(buf)
	return err
}
