package dialogue_test

import (
	"context"
	"strings"
	"testing"

	"github.com/PabloGalante/carebot/internal/adapters/dialogue"
	"github.com/PabloGalante/carebot/internal/domain"
)

const testScript = `
rules:
  - name: headache
    contains: ["HEADACHE"]
    responses:
      - text: "Can you describe the pain?"
        quick_replies:
          - title: Sharp
            payload: /sharp
  - name: book
    payloads: ["/book_appointment"]
    responses:
      - custom:
          appointment_confirmed: true
          appointment_id: A-7
        quick_replies: []
  - name: shadowed
    contains: ["headache"]
    responses:
      - text: "never"
`

func TestScriptedDialogue_Rules(t *testing.T) {
	s, err := dialogue.ParseScript([]byte(testScript))
	if err != nil {
		t.Fatalf("ParseScript: %v", err)
	}
	d := dialogue.NewScriptedDialogueFromScript(s)
	ctx := context.Background()

	frags, err := d.Exchange(ctx, "s-1", "I have a headache")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if len(frags) != 1 || frags[0].Text != "Can you describe the pain?" {
		t.Fatalf("expected headache rule, got %+v", frags)
	}
	if len(frags[0].QuickReplies) != 1 || frags[0].QuickReplies[0].Payload != "/sharp" {
		t.Fatalf("unexpected quick replies %+v", frags[0].QuickReplies)
	}

	frags, _ = d.Exchange(ctx, "s-1", "/book_appointment")
	if len(frags) != 1 || !frags[0].Custom.Truthy(domain.KeyAppointmentConfirmed) {
		t.Fatalf("expected appointment rule, got %+v", frags)
	}
	if frags[0].QuickReplies == nil {
		t.Fatalf("expected empty quick replies to be present")
	}

	frags, _ = d.Exchange(ctx, "s-1", "/book_appointment_later")
	if len(frags) != 1 || !strings.Contains(frags[0].Text, "/book_appointment_later") {
		t.Fatalf("payload rules must match exactly; expected echo fallback, got %+v", frags)
	}
}

func TestScriptedDialogue_EmbeddedScriptLoads(t *testing.T) {
	d, err := dialogue.NewScriptedDialogue("")
	if err != nil {
		t.Fatalf("NewScriptedDialogue: %v", err)
	}

	for _, payload := range []string{"/report_symptom", "/book_appointment", "/ask_health_advice", "/request_human_handover", "/emergency_help", "/provide_feedback"} {
		frags, err := d.Exchange(context.Background(), "s-1", payload)
		if err != nil {
			t.Fatalf("Exchange(%s): %v", payload, err)
		}
		if len(frags) == 0 {
			t.Errorf("expected a scripted reply for %s", payload)
		}
	}

	if err := d.Probe(context.Background()); err != nil {
		t.Fatalf("Probe: %v", err)
	}
}

func TestScriptedDialogue_MissingFile(t *testing.T) {
	if _, err := dialogue.NewScriptedDialogue("/nonexistent/script.yaml"); err == nil {
		t.Fatal("expected error for missing script")
	}
}
