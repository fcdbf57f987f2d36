package text

// stopWords is the English stop-word list excluded from word frequencies.
// Contractions are listed without apostrophes because the tokenizer splits on them.
var stopWords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		"about", "above", "after", "again", "against", "all", "am", "an", "and", "any",
		"are", "aren", "as", "at", "be", "because", "been", "before", "being", "below",
		"between", "both", "but", "by", "can", "cannot", "could", "couldn", "did", "didn",
		"do", "does", "doesn", "doing", "don", "down", "during", "each", "few", "for",
		"from", "further", "had", "hadn", "has", "hasn", "have", "haven", "having", "he",
		"ll", "her", "here", "hers", "herself", "him", "himself", "his", "how", "if",
		"in", "into", "is", "isn", "it", "its", "itself", "let", "me", "more",
		"most", "mustn", "my", "myself", "no", "nor", "not", "of", "off", "on",
		"once", "only", "or", "other", "ought", "our", "ours", "ourselves", "out", "over",
		"own", "same", "shan", "she", "should", "shouldn", "so", "some", "such", "than",
		"that", "the", "their", "theirs", "them", "themselves", "then", "there", "these", "they",
		"re", "ve", "this", "those", "through", "to", "too", "under", "until", "up",
		"very", "was", "wasn", "we", "were", "weren", "what", "when", "where", "which",
		"while", "who", "whom", "why", "with", "won", "would", "wouldn", "you", "your",
		"yours", "yourself", "yourselves",
	} {
		stopWords[w] = struct{}{}
	}
}

// IsStopWord reports whether the case-folded token is a stop word.
func IsStopWord(token string) bool {
	_, ok := stopWords[token]
	return ok
}
