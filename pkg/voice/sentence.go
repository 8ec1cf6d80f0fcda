package voice

// splitSentences cuts complete sentences off the front of buf. A sentence
// ends at '.', '!' or '?' followed by a space, and keeps that space. The
// unterminated tail is returned as rest.
//
// Abbreviations are not special-cased: "Mr. Smith" splits after "Mr. ".
func splitSentences(buf string) (sentences []string, rest string) {
	start := 0
	for i := 0; i+1 < len(buf); i++ {
		switch buf[i] {
		case '.', '!', '?':
			if buf[i+1] == ' ' {
				sentences = append(sentences, buf[start:i+2])
				start = i + 2
				i++
			}
		}
	}
	return sentences, buf[start:]
}
