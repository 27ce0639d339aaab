package domain

// Answer is the literal option text a user picked at a step.
// Selections are not validated, so any string converts to an Answer,
// but the constants below are the only values the questionnaire offers.
type Answer string

const (
	AnswerStartEvaluation Answer = "Yes, start evaluation"
	AnswerMaybeLater      Answer = "No, maybe later"

	AnswerAgeUnder18 Answer = "Under 18"
	AnswerAge18To40  Answer = "18-40"
	AnswerAge41To60  Answer = "41-60"
	AnswerAgeOver60  Answer = "Over 60"

	AnswerPainMild     Answer = "1-3 (Mild)"
	AnswerPainModerate Answer = "4-7 (Moderate)"
	AnswerPainSevere   Answer = "8-10 (Severe)"

	AnswerYes Answer = "Yes"
	AnswerNo  Answer = "No"

	AnswerTakeSurvey           Answer = "Take KOOS Survey"
	AnswerScheduleConsultation Answer = "Schedule Consultation"
	AnswerSchedulePT           Answer = "Schedule PT"

	AnswerStartOver Answer = "Start Over"
)

// ResponseMap records the answer given at each visited step.
type ResponseMap map[Step]Answer

// Get returns the answer recorded for step, or "" when the step was not answered.
func (m ResponseMap) Get(step Step) Answer {
	if m == nil {
		return ""
	}
	return m[step]
}

// Clone returns an independent copy; a nil map clones to an empty one.
func (m ResponseMap) Clone() ResponseMap {
	out := make(ResponseMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Strings converts the map to plain string keys and values, the shape
// stores and JSON responses use.
func (m ResponseMap) Strings() map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[string(k)] = string(v)
	}
	return out
}

// ResponseMapFromStrings is the inverse of Strings.
func ResponseMapFromStrings(in map[string]string) ResponseMap {
	out := make(ResponseMap, len(in))
	for k, v := range in {
		out[Step(k)] = Answer(v)
	}
	return out
}
