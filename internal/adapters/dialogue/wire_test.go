package dialogue

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/PabloGalante/carebot/internal/domain"
)

func TestToFragments_DroppedAttachmentIsLogged(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	frags := toFragments([]wireFragment{
		{Text: "see below", Attachment: &wireAttachment{Type: "video", Payload: map[string]any{"src": "x"}}},
		{Text: "a picture", Attachment: &wireAttachment{Type: "image", Payload: map[string]any{"src": "a.png"}}},
	}, log)

	if len(frags) != 2 {
		t.Fatalf("expected 2 fragments, got %d", len(frags))
	}
	if frags[0].Text != "see below" || frags[0].Attachment != nil {
		t.Fatalf("expected text kept and attachment dropped, got %+v", frags[0])
	}
	if img, ok := frags[1].Attachment.(domain.ImageAttachment); !ok || img.Src != "a.png" {
		t.Fatalf("expected image attachment, got %+v", frags[1].Attachment)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected exactly one log entry, got %q: %v", buf.String(), err)
	}
	if entry["level"] != "WARN" || entry["msg"] != "dropping unsupported attachment" || entry["type"] != "video" {
		t.Fatalf("unexpected log entry %v", entry)
	}
}
