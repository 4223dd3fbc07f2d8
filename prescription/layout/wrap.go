package layout

import "strings"

// Wrap breaks text into lines no wider than maxWidth according to width.
// Lines only break between words; a word wider than maxWidth gets a line of
// its own. Newlines start a new paragraph and blank lines are kept, except at
// the end of the text.
func Wrap(text string, maxWidth float64, width func(string) float64) []string {
	var lines []string
	for _, paragraph := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		words := strings.Fields(paragraph)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		current := words[0]
		for _, word := range words[1:] {
			candidate := current + " " + word
			if width(candidate) <= maxWidth {
				current = candidate
				continue
			}
			lines = append(lines, current)
			current = word
		}
		lines = append(lines, current)
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
