package domain

import "time"

type SessionID string
type UserID string
type MessageID string
type ReferralID string

type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// Step identifies where a session is in the questionnaire.
type Step string

const (
	StepInitial        Step = "initial"
	StepAge            Step = "age"
	StepPain           Step = "pain"
	StepSurgery        Step = "surgery"
	StepTreatments     Step = "treatments"
	StepRecommendation Step = "recommendation"
	StepFinal          Step = "final"
)

// Steps lists every step in questionnaire order.
var Steps = []Step{
	StepInitial,
	StepAge,
	StepPain,
	StepSurgery,
	StepTreatments,
	StepRecommendation,
	StepFinal,
}

// Valid reports whether s is one of the known steps.
func (s Step) Valid() bool {
	for _, v := range Steps {
		if v == s {
			return true
		}
	}
	return false
}

// Channel is the front end a session was opened from.
type Channel string

const (
	ChannelAPI      Channel = "api"
	ChannelWeb      Channel = "web"
	ChannelTelegram Channel = "telegram"
)

type Timestamp = time.Time
