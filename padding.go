package echo

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
)

const paddingBlock = 512

// pad serializes data as a big-endian u64 length prefix followed by the
// bytes themselves, then fills with random bytes (not zero, so padding-only
// tails never resemble a short real payload at the same offset) up to the
// next multiple of paddingBlock.
func pad(data []byte) ([]byte, error) {
	headerLen := 8 + len(data)
	total := ((headerLen + paddingBlock - 1) / paddingBlock) * paddingBlock
	if total == 0 {
		total = paddingBlock
	}

	out := make([]byte, total)
	binary.BigEndian.PutUint64(out[:8], uint64(len(data)))
	copy(out[8:], data)
	if _, err := io.ReadFull(rand.Reader, out[headerLen:]); err != nil {
		panic(fmt.Errorf("echo: reading padding fill: %w", err))
	}
	return out, nil
}

// unpad reverses pad, discarding the random fill.
func unpad(buf []byte) ([]byte, bool) {
	if len(buf) < 8 || len(buf)%paddingBlock != 0 {
		return nil, false
	}
	n := binary.BigEndian.Uint64(buf[:8])
	if n > uint64(len(buf)-8) {
		return nil, false
	}
	return append([]byte(nil), buf[8:8+n]...), true
}
