package summary

import (
	"fmt"
	"strings"

	"github.com/abhishekh011/chatbotDemo/internal/domain"
)

const systemPrompt = `
You write short hand-off notes for an orthopaedic clinic's intake team.

The patient answered a fixed knee questionnaire. Your job:
- Restate the answers as 3-5 plain bullet points.
- State whether the patient met the surgery-candidate screen and which follow-up fits.
- Do NOT diagnose, do NOT give medical advice, do NOT invent facts that are not in the answers.
- Write in English, clinical but plain. No greeting, no sign-off.
`

// stepLabels names the questionnaire answers in notes.
var stepLabels = []struct {
	step  domain.Step
	label string
}{
	{domain.StepAge, "Age"},
	{domain.StepPain, "Pain"},
	{domain.StepSurgery, "Previous knee surgery"},
	{domain.StepTreatments, "Tried conservative treatment"},
	{domain.StepRecommendation, "Chosen follow-up"},
}

// answerLines lists the answered questions in questionnaire order.
func answerLines(responses domain.ResponseMap) []string {
	var lines []string
	for _, sl := range stepLabels {
		if a := responses.Get(sl.step); a != "" {
			lines = append(lines, fmt.Sprintf("%s: %s", sl.label, a))
		}
	}
	return lines
}

// Prompt represents the system prompt + the content to send as "user".
type Prompt struct {
	System string
	User   string
}

// BuildPrompt renders the answers into a prompt for a language model.
func BuildPrompt(in domain.SummaryInput) Prompt {
	var user strings.Builder
	user.WriteString("Questionnaire answers:\n")
	for _, line := range answerLines(in.Responses) {
		user.WriteString("- ")
		user.WriteString(line)
		user.WriteString("\n")
	}
	fmt.Fprintf(&user, "\nSurgery-candidate screen met: %t\n", in.Eligible)
	fmt.Fprintf(&user, "Questionnaire position: %s\n", in.Step)

	return Prompt{
		System: systemPrompt,
		User:   user.String(),
	}
}
