package flow_test

import (
	"testing"

	"github.com/abhishekh011/chatbotDemo/internal/app/flow"
	"github.com/abhishekh011/chatbotDemo/internal/domain"
)

func TestEligible(t *testing.T) {
	cases := []struct {
		pain, treatments domain.Answer
		want             bool
	}{
		{domain.AnswerPainSevere, domain.AnswerYes, true},
		{domain.AnswerPainSevere, domain.AnswerNo, false},
		{domain.AnswerPainModerate, domain.AnswerYes, false},
		{domain.AnswerPainMild, domain.AnswerNo, false},
		{"", "", false},
	}

	for _, tc := range cases {
		responses := domain.ResponseMap{
			domain.StepPain:       tc.pain,
			domain.StepTreatments: tc.treatments,
		}
		if got := flow.Eligible(responses); got != tc.want {
			t.Errorf("Eligible(%q, %q) = %v, want %v", tc.pain, tc.treatments, got, tc.want)
		}
	}
}

func TestReferralFor(t *testing.T) {
	cases := []struct {
		step      domain.Step
		selection string
		want      domain.ReferralKind
		ok        bool
	}{
		{domain.StepRecommendation, "Take KOOS Survey", domain.ReferralSurvey, true},
		{domain.StepRecommendation, "Schedule PT", domain.ReferralScheduling, true},
		{domain.StepRecommendation, "Schedule Consultation", domain.ReferralScheduling, true},
		{domain.StepRecommendation, "Start Over", "", false},
		{domain.StepFinal, "Take KOOS Survey", "", false},
	}

	for _, tc := range cases {
		got, ok := flow.ReferralFor(tc.step, tc.selection)
		if got != tc.want || ok != tc.ok {
			t.Errorf("ReferralFor(%s, %q) = (%q, %v), want (%q, %v)", tc.step, tc.selection, got, ok, tc.want, tc.ok)
		}
	}
}

func TestNextIsTotal(t *testing.T) {
	for _, step := range domain.Steps {
		for _, sel := range []string{"", "Yes", "garbage", "Start Over"} {
			out := flow.Next(step, sel, domain.ResponseMap{step: domain.Answer(sel)})
			if !out.Next.Valid() {
				t.Fatalf("Next(%s, %q) produced invalid step %q", step, sel, out.Next)
			}
			if out.Reply == nil && step != domain.StepRecommendation {
				t.Fatalf("Next(%s, %q) produced no reply", step, sel)
			}
		}
	}
}
