package canonicalize

import (
	"sync"
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// compareUTF16 orders strings by their UTF-16 code units. This differs from
// byte order only when a supplementary-plane character meets a BMP character
// at or above U+E000.
func compareUTF16(a, b string) int {
	for a != "" && b != "" {
		ra, na := utf8.DecodeRuneInString(a)
		rb, nb := utf8.DecodeRuneInString(b)
		if ra != rb {
			a1, a2 := utf16Units(ra)
			b1, b2 := utf16Units(rb)
			if a1 != b1 {
				return cmpRune(a1, b1)
			}
			return cmpRune(a2, b2)
		}
		a, b = a[na:], b[nb:]
	}
	switch {
	case a == "" && b == "":
		return 0
	case a == "":
		return -1
	}
	return 1
}

func utf16Units(r rune) (rune, rune) {
	if r >= 0x10000 {
		return utf16.EncodeRune(r)
	}
	return r, 0
}

func cmpRune(a, b rune) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Collators keep internal buffers and are not safe for concurrent use.
var collators = sync.Pool{
	New: func() any { return collate.New(language.Und) },
}

func acquireCollator() *collate.Collator {
	return collators.Get().(*collate.Collator)
}

func releaseCollator(c *collate.Collator) {
	collators.Put(c)
}
