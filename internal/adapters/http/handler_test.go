package httpadapter_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	httpadapter "github.com/abhishekh011/chatbotDemo/internal/adapters/http"
	"github.com/abhishekh011/chatbotDemo/internal/adapters/storage/memory"
	"github.com/abhishekh011/chatbotDemo/internal/adapters/summary"
	"github.com/abhishekh011/chatbotDemo/internal/app/conversation"
	"github.com/abhishekh011/chatbotDemo/internal/app/flow"
	"github.com/abhishekh011/chatbotDemo/internal/app/referral"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()

	sessionStore := memory.NewSessionStore()
	messageStore := memory.NewMessageStore()
	referralStore := memory.NewReferralStore()
	summarizer := summary.NewTemplateSummarizer()

	convSvc := conversation.NewService(
		sessionStore,
		messageStore,
		summarizer,
		referral.NewRecorder(referralStore, summarizer),
		0,
	)
	t.Cleanup(convSvc.Close)

	return httpadapter.NewServer(convSvc, referral.NewService(referralStore))
}

func do(t *testing.T, srv http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
}

type sessionBody struct {
	Session struct {
		ID        string            `json:"id"`
		Step      string            `json:"step"`
		Responses map[string]string `json:"responses"`
	} `json:"session"`
	Greeting struct {
		Text    string   `json:"text"`
		Options []string `json:"options"`
	} `json:"greeting"`
	Messages []struct {
		Author string `json:"author"`
		Text   string `json:"text"`
	} `json:"messages"`
	Options []string `json:"options"`
}

func createSession(t *testing.T, srv http.Handler) string {
	t.Helper()
	w := do(t, srv, http.MethodPost, "/sessions", `{"user_id":"u1"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var body sessionBody
	decode(t, w, &body)
	if body.Greeting.Text != flow.GreetingText {
		t.Fatalf("unexpected greeting %q", body.Greeting.Text)
	}
	return body.Session.ID
}

func submit(t *testing.T, srv http.Handler, id, selection string) map[string]any {
	t.Helper()
	payload, _ := json.Marshal(map[string]string{"selection": selection})
	w := do(t, srv, http.MethodPost, "/sessions/"+id+"/messages", string(payload))
	if w.Code != http.StatusOK {
		t.Fatalf("submit %q: expected 200, got %d: %s", selection, w.Code, w.Body.String())
	}
	var out map[string]any
	decode(t, w, &out)
	return out
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, http.MethodGet, "/healthz", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestCreateSessionValidation(t *testing.T) {
	srv := newTestServer(t)

	cases := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing user", `{}`},
		{"unknown channel", `{"user_id":"u1","channel":"fax"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, srv, http.MethodPost, "/sessions", tc.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
		})
	}
}

func TestSubmitAndGetSession(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv)

	out := submit(t, srv, id, "Yes, start evaluation")

	if out["step"] != "age" {
		t.Fatalf("expected step age, got %v", out["step"])
	}
	reply, ok := out["reply"].(map[string]any)
	if !ok || reply["text"] != flow.AgeQuestion {
		t.Fatalf("expected age question reply, got %v", out["reply"])
	}

	w := do(t, srv, http.MethodGet, "/sessions/"+id, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body sessionBody
	decode(t, w, &body)
	if len(body.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(body.Messages))
	}
	if len(body.Options) != 4 || body.Options[0] != "Under 18" {
		t.Fatalf("expected age options, got %v", body.Options)
	}
	if body.Session.Responses["initial"] != "Yes, start evaluation" {
		t.Fatalf("expected recorded answer, got %v", body.Session.Responses)
	}
}

func TestUnknownSessionIs404(t *testing.T) {
	srv := newTestServer(t)

	for _, tc := range []struct{ method, path, body string }{
		{http.MethodGet, "/sessions/missing", ""},
		{http.MethodPost, "/sessions/missing/messages", `{"selection":"Yes"}`},
		{http.MethodPost, "/sessions/missing/reset", ""},
		{http.MethodGet, "/sessions/missing/summary", ""},
	} {
		w := do(t, srv, tc.method, tc.path, tc.body)
		if w.Code != http.StatusNotFound {
			t.Fatalf("%s %s: expected 404, got %d", tc.method, tc.path, w.Code)
		}
	}
}

func TestResetReturnsGreetingOnly(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv)
	submit(t, srv, id, "Yes, start evaluation")
	submit(t, srv, id, "Over 60")

	w := do(t, srv, http.MethodPost, "/sessions/"+id+"/reset", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body sessionBody
	decode(t, w, &body)
	if len(body.Messages) != 1 || body.Messages[0].Text != flow.GreetingText {
		t.Fatalf("expected [greeting], got %+v", body.Messages)
	}
	if body.Session.Step != "initial" || len(body.Session.Responses) != 0 {
		t.Fatalf("expected clean session, got %+v", body.Session)
	}
}

func TestEligibleFlowSummaryAndReferrals(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv)
	for _, sel := range []string{"Yes, start evaluation", "41-60", "8-10 (Severe)", "No", "Yes"} {
		submit(t, srv, id, sel)
	}
	out := submit(t, srv, id, "Schedule Consultation")
	if out["referral"] == nil {
		t.Fatalf("expected a referral in the response")
	}

	w := do(t, srv, http.MethodGet, "/sessions/"+id+"/summary", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var sum struct {
		Eligible bool   `json:"eligible"`
		Summary  string `json:"summary"`
	}
	decode(t, w, &sum)
	if !sum.Eligible || sum.Summary == "" {
		t.Fatalf("expected eligible summary, got %+v", sum)
	}

	w = do(t, srv, http.MethodGet, "/referrals?limit=5", "")
	var refs struct {
		Referrals []struct {
			Kind string `json:"kind"`
		} `json:"referrals"`
	}
	decode(t, w, &refs)
	if len(refs.Referrals) != 1 || refs.Referrals[0].Kind != "scheduling" {
		t.Fatalf("expected one scheduling referral, got %+v", refs.Referrals)
	}

	if w := do(t, srv, http.MethodGet, "/referrals?limit=abc", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", w.Code)
	}
}

func TestFlowListsScript(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, http.MethodGet, "/flow", "")

	var steps []struct {
		Step string `json:"step"`
		Text string `json:"text"`
	}
	decode(t, w, &steps)
	if len(steps) != 5 || steps[0].Step != "initial" || steps[4].Text != flow.TreatmentsQuestion {
		t.Fatalf("unexpected script %+v", steps)
	}
}

func TestChatPageStartOverResets(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/chat", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", w.Code)
	}
	location := w.Header().Get("Location")
	if !strings.HasPrefix(location, "/chat/") {
		t.Fatalf("unexpected redirect %q", location)
	}

	post := func(option string) {
		form := url.Values{"option": {option}}
		req := httptest.NewRequest(http.MethodPost, location, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, req)
		if w.Code != http.StatusSeeOther {
			t.Fatalf("option %q: expected redirect, got %d", option, w.Code)
		}
	}
	post("No, maybe later")
	post("Start Over")

	w = httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, location, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	page := w.Body.String()
	if strings.Contains(page, "Feel free to return") {
		t.Fatalf("expected farewell to be cleared by Start Over")
	}
	if !strings.Contains(page, "Yes, start evaluation") {
		t.Fatalf("expected greeting options on the page")
	}
}
