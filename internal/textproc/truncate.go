package textproc

// Truncate cuts text to at most maxChars runes, preferring the last word
// boundary when it falls past 80% of the limit, and appends "..." to mark
// the cut.
func Truncate(text string, maxChars int) string {
	if maxChars <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}

	cut := runes[:maxChars]
	lastSpace := -1
	for i := len(cut) - 1; i >= 0; i-- {
		if cut[i] == ' ' {
			lastSpace = i
			break
		}
	}

	if float64(lastSpace) > float64(maxChars)*0.8 {
		return string(cut[:lastSpace]) + "..."
	}
	return string(cut) + "..."
}
