// Package fingerprint renders a UserId in forms a person can compare out of
// band: hex groups, an emoji sequence, a memorable pseudonym, and a QR code.
package fingerprint
