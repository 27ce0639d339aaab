package flow

import "github.com/abhishekh011/chatbotDemo/internal/domain"

// Bot copy. Kept verbatim: front ends and the care team match on it.
const (
	GreetingText = "Hello! I'm here to help assess your knee condition. Would you like to start the evaluation?"

	AgeQuestion        = "What is your age?"
	PainQuestion       = "How severe is your knee pain on a scale of 1-10?"
	SurgeryQuestion    = "Have you had any previous knee surgeries?"
	TreatmentsQuestion = "Have you tried conservative treatments like physical therapy?"

	FarewellText   = "No problem! Feel free to return when you're ready."
	EligibleText   = "Based on your responses, you may be a candidate for knee surgery. Would you like to proceed with the KOOS survey?"
	IneligibleText = "Based on your responses, we recommend scheduling a consultation with our physical therapy team first."
	SurveyLinkText = "Great! Here's the link to the KOOS survey: [KOOS Survey Link]. After completing the survey, our team will review your responses and contact you."
	ScheduleText   = "I'll help you schedule an appointment. Please click here to access our scheduling system: [Scheduling Link]"
	StartOverText  = "Would you like to start over?"
)

// Prompt is a bot message before it is stamped with ids and times.
type Prompt struct {
	Text    string
	Options []domain.Answer
}

// OptionStrings returns the options as plain strings.
func (p Prompt) OptionStrings() []string {
	out := make([]string, len(p.Options))
	for i, o := range p.Options {
		out[i] = string(o)
	}
	return out
}

var (
	greeting = Prompt{
		Text:    GreetingText,
		Options: []domain.Answer{domain.AnswerStartEvaluation, domain.AnswerMaybeLater},
	}
	ageQuestion = Prompt{
		Text:    AgeQuestion,
		Options: []domain.Answer{domain.AnswerAgeUnder18, domain.AnswerAge18To40, domain.AnswerAge41To60, domain.AnswerAgeOver60},
	}
	painQuestion = Prompt{
		Text:    PainQuestion,
		Options: []domain.Answer{domain.AnswerPainMild, domain.AnswerPainModerate, domain.AnswerPainSevere},
	}
	surgeryQuestion = Prompt{
		Text:    SurgeryQuestion,
		Options: []domain.Answer{domain.AnswerYes, domain.AnswerNo},
	}
	treatmentsQuestion = Prompt{
		Text:    TreatmentsQuestion,
		Options: []domain.Answer{domain.AnswerYes, domain.AnswerNo},
	}
	farewell = Prompt{
		Text:    FarewellText,
		Options: []domain.Answer{domain.AnswerStartOver},
	}
	eligibleResult = Prompt{
		Text:    EligibleText,
		Options: []domain.Answer{domain.AnswerTakeSurvey, domain.AnswerScheduleConsultation},
	}
	ineligibleResult = Prompt{
		Text:    IneligibleText,
		Options: []domain.Answer{domain.AnswerSchedulePT, domain.AnswerStartOver},
	}
	surveyLink = Prompt{
		Text:    SurveyLinkText,
		Options: []domain.Answer{domain.AnswerStartOver},
	}
	scheduleLink = Prompt{
		Text:    ScheduleText,
		Options: []domain.Answer{domain.AnswerStartOver},
	}
	startOver = Prompt{
		Text:    StartOverText,
		Options: []domain.Answer{domain.AnswerStartOver},
	}
)

// Greeting is the first message of every transcript.
func Greeting() Prompt {
	return greeting
}

// IsRestart reports whether an option is the "Start Over" button. Front ends
// route it to a reset instead of submitting it.
func IsRestart(option string) bool {
	return option == string(domain.AnswerStartOver)
}

// ScriptEntry describes the question asked to move into a step.
type ScriptEntry struct {
	Step   domain.Step
	Prompt Prompt
}

// Script returns the linear question sequence, greeting first, for clients
// that want to render the questionnaire on their own.
func Script() []ScriptEntry {
	return []ScriptEntry{
		{Step: domain.StepInitial, Prompt: greeting},
		{Step: domain.StepAge, Prompt: ageQuestion},
		{Step: domain.StepPain, Prompt: painQuestion},
		{Step: domain.StepSurgery, Prompt: surgeryQuestion},
		{Step: domain.StepTreatments, Prompt: treatmentsQuestion},
	}
}
