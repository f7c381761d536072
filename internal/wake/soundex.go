package wake

// soundexDigit maps consonants to Soundex digit classes. Letters absent from
// the table (vowels, h, w, y) contribute nothing to the code.
var soundexDigit = map[byte]byte{
	'b': '1', 'f': '1', 'p': '1', 'v': '1',
	'c': '2', 'g': '2', 'j': '2', 'k': '2', 'q': '2', 's': '2', 'x': '2', 'z': '2',
	'd': '3', 't': '3',
	'l': '4',
	'm': '5', 'n': '5',
	'r': '6',
}

// soundexCode encodes a lowercase alphabetic word as a 4-character phonetic
// code: the uppercased first letter followed by digit classes for subsequent
// consonants, consecutive duplicates collapsed, zero-padded or truncated to
// four characters. The empty word encodes as "0000".
//
// Unlike the census Soundex, vowels do not separate duplicate digits: the
// code matches only on consonant skeletons, which is what makes transcription
// vowel drift ("apartmint") collide with the intended phrase.
func soundexCode(word string) string {
	if word == "" {
		return "0000"
	}

	code := make([]byte, 0, 4)
	code = append(code, word[0]-'a'+'A')

	for i := 1; i < len(word) && len(code) < 4; i++ {
		digit, ok := soundexDigit[word[i]]
		if !ok {
			continue
		}
		if code[len(code)-1] == digit {
			continue
		}
		code = append(code, digit)
	}

	for len(code) < 4 {
		code = append(code, '0')
	}
	return string(code)
}
