package dialogue

import (
	"errors"
	"log/slog"

	"github.com/PabloGalante/carebot/internal/domain"
)

// ─────────────────────────────────────────────
// Webhook DTOs (shared by the REST client and YAML scripts)
// ─────────────────────────────────────────────

type webhookRequest struct {
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

type wireButton struct {
	Title   string `json:"title" yaml:"title"`
	Payload string `json:"payload" yaml:"payload"`
}

type wireAttachment struct {
	Type    string         `json:"type" yaml:"type"`
	Payload map[string]any `json:"payload" yaml:"payload"`
}

type wireFragment struct {
	Text         string          `json:"text,omitempty" yaml:"text,omitempty"`
	Image        string          `json:"image,omitempty" yaml:"image,omitempty"`
	Buttons      []wireButton    `json:"buttons,omitempty" yaml:"buttons,omitempty"`
	Attachment   *wireAttachment `json:"attachment,omitempty" yaml:"attachment,omitempty"`
	QuickReplies []wireButton    `json:"quick_replies" yaml:"quick_replies"`
	Custom       map[string]any  `json:"custom,omitempty" yaml:"custom,omitempty"`
}

func toFragments(in []wireFragment, log *slog.Logger) []domain.Fragment {
	out := make([]domain.Fragment, 0, len(in))
	for i, w := range in {
		out = append(out, toFragment(w, i, log))
	}
	return out
}

func toFragment(w wireFragment, index int, log *slog.Logger) domain.Fragment {
	f := domain.Fragment{
		Text:    w.Text,
		Buttons: toButtons(w.Buttons),
	}

	switch {
	case w.Attachment != nil:
		att, err := domain.DecodeAttachment(w.Attachment.Type, w.Attachment.Payload)
		switch {
		case errors.Is(err, domain.ErrUnknownAttachment):
			log.Warn("dropping unsupported attachment", "index", index, "type", w.Attachment.Type)
		case err != nil:
			log.Warn("dropping undecodable attachment", "index", index, "type", w.Attachment.Type, "error", err)
		default:
			f.Attachment = att
		}
	case w.Image != "":
		f.Attachment = domain.ImageAttachment{Src: w.Image}
	}

	if w.QuickReplies != nil {
		f.QuickReplies = make([]domain.QuickReply, 0, len(w.QuickReplies))
		for _, q := range w.QuickReplies {
			f.QuickReplies = append(f.QuickReplies, domain.QuickReply{Label: q.Title, Payload: q.Payload})
		}
	}

	if w.Custom != nil {
		f.Custom = domain.CustomData(w.Custom)
	}

	return f
}

func toButtons(in []wireButton) []domain.Button {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.Button, 0, len(in))
	for _, b := range in {
		out = append(out, domain.Button{Label: b.Title, Payload: b.Payload})
	}
	return out
}
