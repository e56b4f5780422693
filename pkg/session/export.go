package session

import (
	"context"
	"fmt"
	"strings"
)

// Export renders a session's transcript as formatted text for download and
// suggests a file name. Unknown ids return an error.
func (t *Tracker) Export(ctx context.Context, id string) (name, transcript string, err error) {
	s, err := t.sessions.Get(ctx, id)
	if err != nil {
		return "", "", fmt.Errorf("get session for export: %w", err)
	}
	if s == nil {
		return "", "", fmt.Errorf("session %s not found", id)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Session: %s\n", s.Name))
	sb.WriteString(fmt.Sprintf("Date: %s\n", s.Timestamp.Format("2006-01-02 15:04:05")))
	if s.Model != "" {
		sb.WriteString(fmt.Sprintf("Model: %s\n", s.Model))
	}
	sb.WriteString(fmt.Sprintf("Questions: %d\n", s.Statistics.TotalQuestions))
	sb.WriteString(fmt.Sprintf("Total cost: $%.4f\n", s.Statistics.TotalCost))
	sb.WriteString(strings.Repeat("=", 60) + "\n\n")

	for i, item := range s.QAData {
		sb.WriteString(fmt.Sprintf("Q%d: %s\n", i+1, item.Question))
		if item.Answered() {
			sb.WriteString(fmt.Sprintf("A%d: %s\n", i+1, item.Answer))
			sb.WriteString(fmt.Sprintf("    accuracy=%.1f citation=%.1f geo=%.1f tokens=%d cost=$%.4f\n",
				item.Accuracy, item.CitationLikelihood, item.GeoScore, item.TotalTokens, item.Cost))
		} else {
			sb.WriteString(fmt.Sprintf("A%d: (not generated)\n", i+1))
		}
		sb.WriteString("\n")
	}

	name = fmt.Sprintf("%s.txt", strings.ReplaceAll(strings.ToLower(s.Name), " ", "-"))
	return name, sb.String(), nil
}
