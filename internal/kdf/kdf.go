// Package kdf implements the HKDF-SHA256 derivation graph shared by every
// higher layer: a domain-separation salt, a sequence of length-prefixed,
// marker-framed input items (to prevent telescoping across calls with a
// variable number of inputs), and labeled expand calls.
package kdf

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	inputMarker = 0x01
	endMarker   = 0x00
)

// Extractor accumulates length-prefixed input items under a salt before
// producing a pseudorandom key. The zero value is not usable; construct one
// with Extract.
type Extractor struct {
	salt []byte
	buf  []byte
}

// Extract begins a new extraction under salt. salt is a protocol constant;
// callers must pass it verbatim.
func Extract(salt []byte) *Extractor {
	return &Extractor{salt: salt}
}

// Input feeds one length-prefixed item into the running extraction. Order
// matters: feeding the same items in a different order yields a different
// key.
func (e *Extractor) Input(item []byte) *Extractor {
	e.buf = append(e.buf, inputMarker)
	var length [8]byte
	binary.BigEndian.PutUint64(length[:], uint64(len(item)))
	e.buf = append(e.buf, length[:]...)
	e.buf = append(e.buf, item...)
	return e
}

// Finalize closes the input sequence and returns an Expander over the
// resulting pseudorandom key.
func (e *Extractor) Finalize() *Expander {
	ikm := append(append([]byte(nil), e.buf...), endMarker)
	prk := hkdf.Extract(sha256.New, ikm, e.salt)
	return &Expander{prk: prk}
}

// Expander produces labeled outputs from a pseudorandom key.
type Expander struct {
	prk []byte
}

// Expand fills out with key material labeled by info. info is a protocol
// constant; callers must pass it verbatim.
func (x *Expander) Expand(info []byte, out []byte) error {
	r := hkdf.Expand(sha256.New, x.prk, info)
	if _, err := io.ReadFull(r, out); err != nil {
		return fmt.Errorf("expand %q: %w", info, err)
	}
	return nil
}

// ExpandN is a convenience wrapper returning a freshly-allocated slice of n
// bytes, matching most call sites where the output never escapes as a
// pre-sized buffer.
func (x *Expander) ExpandN(info []byte, n int) ([]byte, error) {
	out := make([]byte, n)
	if err := x.Expand(info, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ConstantTimeEqual compares two byte slices without leaking timing
// information, per the protocol's requirement that shared-secret-equal
// checks use a constant-time comparator.
func ConstantTimeEqual(a, b []byte) bool {
	return hmac.Equal(a, b)
}
