package similarity

// Describe puts a similarity score into words.
func Describe(score float64) string {
	switch {
	case score >= 0.85:
		return "highly similar"
	case score >= 0.65:
		return "similar"
	case score >= 0.4:
		return "somewhat similar"
	default:
		return "loosely related"
	}
}
