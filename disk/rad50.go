package disk

import (
	"fmt"
	"strings"
)

// RADIX-50 packs three characters from a fixed forty symbol alphabet into
// one 16-bit word. RT-11 stores the six character file name and the three
// character file type as three such words in every directory entry.

const RAD50_ALPHABET = " ABCDEFGHIJKLMNOPQRSTUVWXYZ$.?0123456789"

const RAD50_RADIX = 40
const RAD50_WORD_LIMIT = RAD50_RADIX * RAD50_RADIX * RAD50_RADIX
const RAD50_PLACEHOLDER = byte('?')

// Rad50Decode unpacks one word into its three symbols, most significant
// first. Words at or beyond RAD50_WORD_LIMIT push the leading symbol index
// out of the alphabet; that symbol decodes as RAD50_PLACEHOLDER. Only the
// leading symbol can overflow.
func Rad50Decode(word int) string {
	out := make([]byte, 3)
	for i := 2; i >= 0; i-- {
		out[i] = RAD50_ALPHABET[word%RAD50_RADIX]
		word /= RAD50_RADIX
	}
	if word > 0 {
		out[0] = RAD50_PLACEHOLDER
	}
	return string(out)
}

// Rad50WordValid reports whether every symbol index in the word falls
// inside the alphabet.
func Rad50WordValid(word int) bool {
	return word >= 0 && word < RAD50_WORD_LIMIT
}

// Rad50Encode packs up to three characters into one word. Characters
// outside the alphabet encode as space, input shorter than three
// characters is space padded on the right.
func Rad50Encode(text string) int {
	text = strings.ToUpper(text)
	word := 0
	for i := 0; i < 3; i++ {
		idx := 0
		if i < len(text) {
			if p := strings.IndexByte(RAD50_ALPHABET, text[i]); p >= 0 {
				idx = p
			}
		}
		word = word*RAD50_RADIX + idx
	}
	return word
}

// Rad50DecodeName recovers the name and type from words 1-3 of a directory
// entry. The first two words concatenate into the name, the third is the
// type; both are right trimmed. ok is false when the trimmed name is empty.
func Rad50DecodeName(w1, w2, w3 int) (string, string, bool) {
	name := strings.TrimRight(Rad50Decode(w1)+Rad50Decode(w2), " ")
	ext := strings.TrimRight(Rad50Decode(w3), " ")
	if name == "" {
		return "", "", false
	}
	return name, ext, true
}

// Rad50EncodeName packs a name/type pair back into the three word on-disk
// form, padding each field with trailing spaces.
func Rad50EncodeName(name, ext string) (int, int, int) {
	padded := fmt.Sprintf("%-6s", strings.ToUpper(name))
	return Rad50Encode(padded[0:3]), Rad50Encode(padded[3:6]), Rad50Encode(ext)
}
