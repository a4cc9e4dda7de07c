package translator

import "errors"

// ErrInvalidPacket is returned when an input buffer is too short or
// carries an unrecognized IP version nibble. It is not retryable; the
// caller is expected to drop the packet.
var ErrInvalidPacket = errors.New("translator: invalid packet")

// ErrOutOfMemory is returned when a buffer allocation failed. The
// Translator remains in a consistent state after returning this error.
//
// Not currently returned anywhere: Go allocation failures panic rather
// than surfacing as an error. Declared for callers that want to match
// on the full set of translator error kinds.
var ErrOutOfMemory = errors.New("translator: out of memory")
