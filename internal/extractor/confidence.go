package extractor

// Score sums the confidence signals:
//
//	length > 1000          +3
//	length > 500           +2
//	otherwise              +1
//	structured data found  +2
//	title and byline       +1
func Score(length int, hasStructured, hasTitleAndByline bool) int {
	score := 1
	switch {
	case length > 1000:
		score = 3
	case length > 500:
		score = 2
	}
	if hasStructured {
		score += 2
	}
	if hasTitleAndByline {
		score++
	}
	return score
}

// ConfidenceFor maps a score to its label: 5 and up is high, 3 and up medium.
func ConfidenceFor(score int) Confidence {
	switch {
	case score >= 5:
		return ConfidenceHigh
	case score >= 3:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}
