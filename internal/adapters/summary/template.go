package summary

import (
	"context"
	"strings"

	"github.com/abhishekh011/chatbotDemo/internal/domain"
)

// TemplateSummarizer writes notes without calling out to a model. It is the
// default outside GCP and what the tests use.
type TemplateSummarizer struct{}

func NewTemplateSummarizer() *TemplateSummarizer {
	return &TemplateSummarizer{}
}

func (TemplateSummarizer) Summarize(_ context.Context, in domain.SummaryInput) (string, error) {
	lines := answerLines(in.Responses)
	if len(lines) == 0 {
		return "No answers recorded yet.", nil
	}

	var b strings.Builder
	for _, l := range lines {
		b.WriteString("- ")
		b.WriteString(l)
		b.WriteString("\n")
	}
	if in.Eligible {
		b.WriteString("Meets the surgery-candidate screen (severe pain, conservative treatment tried).")
	} else {
		b.WriteString("Does not meet the surgery-candidate screen; physical therapy consultation first.")
	}
	return b.String(), nil
}
