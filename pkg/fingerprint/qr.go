package fingerprint

import (
	"bytes"

	"github.com/mdp/qrterminal/v3"

	"github.com/massalabs/echo/pkg/identity"
)

// QrCode renders the id's base64 form as a terminal QR code.
func QrCode(id identity.UserId) ([]byte, error) {
	var buffer bytes.Buffer
	qrterminal.Generate(Base64(id), qrterminal.L, &buffer)
	return buffer.Bytes(), nil
}
