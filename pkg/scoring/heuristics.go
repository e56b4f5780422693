package scoring

import (
	"math"
	"strings"
	"unicode"
)

// small polarity lexicons, enough to separate clearly positive and negative
// answers without a model call
var positiveWords = map[string]bool{
	"good": true, "great": true, "excellent": true, "best": true, "better": true,
	"improve": true, "improves": true, "improved": true, "effective": true,
	"benefit": true, "benefits": true, "helpful": true, "success": true,
	"successful": true, "strong": true, "positive": true, "easy": true,
	"fast": true, "reliable": true, "clear": true, "valuable": true,
}

var negativeWords = map[string]bool{
	"bad": true, "poor": true, "worst": true, "worse": true, "fail": true,
	"fails": true, "failed": true, "failure": true, "problem": true,
	"problems": true, "difficult": true, "slow": true, "weak": true,
	"negative": true, "risk": true, "risks": true, "error": true,
	"errors": true, "broken": true, "wrong": true, "harmful": true,
}

// Sentiment scores text polarity on a 0-100 scale, 50 is neutral
func Sentiment(text string) float64 {
	words := tokenize(text)
	if len(words) == 0 {
		return 50
	}

	var pos, neg int
	for _, w := range words {
		if positiveWords[w] {
			pos++
		}
		if negativeWords[w] {
			neg++
		}
	}
	if pos+neg == 0 {
		return 50
	}

	// polarity in [-1, 1] mapped to [0, 100]
	polarity := float64(pos-neg) / float64(pos+neg)
	return 50 + polarity*50
}

// SemanticRelevance measures token overlap between answer and content on a
// 0-100 scale (Jaccard over unique words)
func SemanticRelevance(answer, content string) float64 {
	answerWords := uniqueWords(answer)
	contentWords := uniqueWords(content)
	if len(answerWords) == 0 || len(contentWords) == 0 {
		return 0
	}

	var shared int
	for w := range answerWords {
		if contentWords[w] {
			shared++
		}
	}
	union := len(answerWords) + len(contentWords) - shared
	return float64(shared) / float64(union) * 100
}

// geo score weights, citation heaviest: the product measures citability
const (
	geoAccuracyWeight  = 0.3
	geoCitationWeight  = 0.4
	geoRelevanceWeight = 0.2
	geoSentimentWeight = 0.1
)

// GeoScore blends the individual signals into the 0-100 composite
func GeoScore(accuracy, citation, relevance, sentiment float64) float64 {
	score := accuracy*geoAccuracyWeight +
		citation*geoCitationWeight +
		relevance*geoRelevanceWeight +
		sentiment*geoSentimentWeight
	return math.Round(score*10) / 10
}

// Cosine computes cosine similarity of two vectors in [0, 1], zero for
// mismatched or empty inputs
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		sim = 0
	}
	return sim
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func uniqueWords(text string) map[string]bool {
	words := map[string]bool{}
	for _, w := range tokenize(text) {
		if len(w) > 2 { // skip stopword-sized tokens
			words[w] = true
		}
	}
	return words
}
