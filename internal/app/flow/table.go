package flow

import "github.com/abhishekh011/chatbotDemo/internal/domain"

// Outcome is what a single submission resolves to.
type Outcome struct {
	// Reply is nil when the selection has no scripted answer (an unrecognised
	// choice at the recommendation step). The session still advances.
	Reply *Prompt
	Next  domain.Step
}

// Next is the transition table. It is total: every (step, selection) pair
// yields an Outcome. responses must already contain the current selection.
func Next(step domain.Step, selection string, responses domain.ResponseMap) Outcome {
	answer := domain.Answer(selection)

	switch step {
	case domain.StepInitial:
		if answer == domain.AnswerStartEvaluation {
			return reply(ageQuestion, domain.StepAge)
		}
		// Declining leaves the step untouched; only "Start Over" gets the user going again.
		return reply(farewell, domain.StepInitial)
	case domain.StepAge:
		return reply(painQuestion, domain.StepPain)
	case domain.StepPain:
		return reply(surgeryQuestion, domain.StepSurgery)
	case domain.StepSurgery:
		return reply(treatmentsQuestion, domain.StepTreatments)
	case domain.StepTreatments:
		if Eligible(responses) {
			return reply(eligibleResult, domain.StepRecommendation)
		}
		return reply(ineligibleResult, domain.StepRecommendation)
	case domain.StepRecommendation:
		switch answer {
		case domain.AnswerTakeSurvey:
			return reply(surveyLink, domain.StepFinal)
		case domain.AnswerSchedulePT, domain.AnswerScheduleConsultation:
			return reply(scheduleLink, domain.StepFinal)
		default:
			return Outcome{Next: domain.StepFinal}
		}
	default:
		return reply(startOver, domain.StepInitial)
	}
}

// Eligible is the surgery-candidate rule: severe pain and conservative
// treatment already tried.
func Eligible(responses domain.ResponseMap) bool {
	return responses.Get(domain.StepPain) == domain.AnswerPainSevere &&
		responses.Get(domain.StepTreatments) == domain.AnswerYes
}

// ReferralFor maps a recommendation-step selection to the referral it asks for.
func ReferralFor(step domain.Step, selection string) (domain.ReferralKind, bool) {
	if step != domain.StepRecommendation {
		return "", false
	}
	switch domain.Answer(selection) {
	case domain.AnswerTakeSurvey:
		return domain.ReferralSurvey, true
	case domain.AnswerSchedulePT, domain.AnswerScheduleConsultation:
		return domain.ReferralScheduling, true
	}
	return "", false
}

func reply(p Prompt, next domain.Step) Outcome {
	return Outcome{Reply: &p, Next: next}
}
