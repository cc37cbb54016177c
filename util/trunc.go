package util

// TruncateRightWithSuffix keeps the first n runes of text and only appends the suffix if truncation happens.
func TruncateRightWithSuffix(text string, n int, suffix string) string {
	if n <= 0 {
		return suffix
	}

	rs := make([]rune, 0, n)
	truncated := false
	for i, r := range text {
		if i >= n {
			truncated = true
			break
		}

		rs = append(rs, r)
	}

	if truncated {
		for _, r := range suffix {
			rs = append(rs, r)
		}
	}

	return string(rs)
}
