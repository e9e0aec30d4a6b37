package fingerprint

import (
	"encoding/binary"

	"github.com/massalabs/echo/pkg/identity"
)

var emojiList = []string{
	"ğŸ˜", "ğŸ‘»", "ğŸ‘", "ğŸ‘‘", "ğŸƒ", "ğŸ˜", "ğŸ˜", "ğŸ˜‚",
	"ğŸ¶", "ğŸ±", "ğŸ¦", "ğŸ¹", "ğŸ°", "ğŸ¦Š", "ğŸ»", "ğŸ¼",
	"ğŸŒ¸", "ğŸŒ¼", "ğŸª·", "ğŸŒ¹", "ğŸŒº", "ğŸ", "ğŸŒ³", "ğŸŒµ",
	"ğŸ", "ğŸŒ", "ğŸ‡", "ğŸ“", "ğŸ’", "ğŸ•", "ğŸ”", "ğŸŸ",
	"â˜•ï¸", "ğŸ¦", "ğŸ¥•", "â˜€ï¸", "ğŸŒ™", "â„ï¸", "â˜ï¸", "ğŸ§‚",
	"ğŸ’¡", "ğŸ¹", "ğŸ’", "ğŸ“·", "ğŸ€", "ğŸ®", "ğŸ²", "ğŸ©",
	"â¤ï¸", "ğŸ", "â°", "ğŸ’", "ğŸ§²", "ğŸ”‘", "ğŸš—ï¸", "ğŸš€",
	"âœ¨", "ğŸ”¥", "ğŸŒˆ", "ğŸ‰", "ğŸ¶", "ğŸ”’", "ğŸ“Œ", "âœ…",
}

// Emoji maps the id to eight emojis. The id is already a uniform digest, so
// each emoji reads a distinct 4-byte window of it directly.
func Emoji(id identity.UserId) []string {
	offset := 0
	l := uint32(len(emojiList))
	emojis := make([]string, 8)
	for i := 0; i < 8; i++ {
		offset = i * 4
		num := binary.BigEndian.Uint32(id[offset : offset+4])
		emojis[i] = emojiList[num%l]
	}
	return emojis
}
