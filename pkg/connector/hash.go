package connector

import "unicode/utf16"

// hash33 derives the ptqrtoken query parameter from the qrsig cookie. It is
// the page script's rolling hash evaluated over UTF-16 code units in 32-bit
// integer arithmetic, masked to 31 bits.
func hash33(s string) int {
	var e int32
	for _, c := range utf16.Encode([]rune(s)) {
		e += (e << 5) + int32(c)
	}
	return int(e & 0x7FFFFFFF)
}
