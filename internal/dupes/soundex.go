package dupes

var soundexCodes = map[byte]byte{
	'b': '1', 'f': '1', 'p': '1', 'v': '1',
	'c': '2', 'g': '2', 'j': '2', 'k': '2', 'q': '2', 's': '2', 'x': '2', 'z': '2',
	'd': '3', 't': '3',
	'l': '4',
	'm': '5', 'n': '5',
	'r': '6',
}

// soundex computes the classic four-character Soundex code for a
// lowercased name. Non-letter input yields an empty code.
func soundex(name string) string {
	var letters []byte
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'a' && c <= 'z' {
			letters = append(letters, c)
		}
	}
	if len(letters) == 0 {
		return ""
	}
	code := []byte{letters[0] - 'a' + 'A'}
	last := soundexCodes[letters[0]]
	for _, c := range letters[1:] {
		digit := soundexCodes[c]
		if digit == 0 {
			// h and w do not reset the previous code; vowels do.
			if c != 'h' && c != 'w' {
				last = 0
			}
			continue
		}
		if digit != last {
			code = append(code, digit)
			if len(code) == 4 {
				break
			}
		}
		last = digit
	}
	for len(code) < 4 {
		code = append(code, '0')
	}
	return string(code)
}
