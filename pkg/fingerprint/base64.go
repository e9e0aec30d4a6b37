package fingerprint

import (
	"encoding/base64"

	"github.com/massalabs/echo/pkg/identity"
)

func Base64(id identity.UserId) string {
	return base64.RawURLEncoding.EncodeToString(id.Bytes())
}
