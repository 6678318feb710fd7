package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// AttachmentKind is the wire tag of an attachment variant.
type AttachmentKind string

const (
	AttachmentImage    AttachmentKind = "image"
	AttachmentCard     AttachmentKind = "card"
	AttachmentCarousel AttachmentKind = "carousel"
)

// ErrUnknownAttachment is returned when an attachment tag is not one of the known kinds.
var ErrUnknownAttachment = errors.New("unknown attachment type")

// Attachment is a closed set of rich content variants.
// Only the types in this file implement it.
type Attachment interface {
	Kind() AttachmentKind
	isAttachment()
}

type ImageAttachment struct {
	Src string
}

type CardAttachment struct {
	Card Card
}

type CarouselAttachment struct {
	Elements []Card
}

// Card is the payload of a card attachment and of each carousel element.
type Card struct {
	Title    string
	Subtitle string
	ImageURL string
	Buttons  []Button
}

func (ImageAttachment) Kind() AttachmentKind    { return AttachmentImage }
func (CardAttachment) Kind() AttachmentKind     { return AttachmentCard }
func (CarouselAttachment) Kind() AttachmentKind { return AttachmentCarousel }

func (ImageAttachment) isAttachment()    {}
func (CardAttachment) isAttachment()     {}
func (CarouselAttachment) isAttachment() {}

// DecodeAttachment builds an Attachment from its tag and a loosely typed payload,
// as found in webhook JSON or YAML scripts.
func DecodeAttachment(kind string, payload map[string]any) (Attachment, error) {
	switch AttachmentKind(kind) {
	case AttachmentImage:
		return ImageAttachment{Src: getString(payload, "src")}, nil
	case AttachmentCard:
		return CardAttachment{Card: decodeCard(payload)}, nil
	case AttachmentCarousel:
		raw, _ := payload["elements"].([]any)
		elems := make([]Card, 0, len(raw))
		for _, item := range raw {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			elems = append(elems, decodeCard(obj))
		}
		return CarouselAttachment{Elements: elems}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAttachment, kind)
	}
}

// EncodeAttachment is the inverse of DecodeAttachment.
func EncodeAttachment(a Attachment) (string, map[string]any) {
	switch v := a.(type) {
	case ImageAttachment:
		return string(AttachmentImage), map[string]any{"src": v.Src}
	case CardAttachment:
		return string(AttachmentCard), encodeCard(v.Card)
	case CarouselAttachment:
		elems := make([]any, 0, len(v.Elements))
		for _, c := range v.Elements {
			elems = append(elems, encodeCard(c))
		}
		return string(AttachmentCarousel), map[string]any{"elements": elems}
	default:
		return "", nil
	}
}

type attachmentEnvelope struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

// MarshalAttachment encodes an attachment as {"type": ..., "payload": {...}}.
// A nil attachment encodes to nil.
func MarshalAttachment(a Attachment) ([]byte, error) {
	if a == nil {
		return nil, nil
	}
	kind, payload := EncodeAttachment(a)
	return json.Marshal(attachmentEnvelope{Type: kind, Payload: payload})
}

// UnmarshalAttachment decodes the format written by MarshalAttachment.
// Empty input decodes to a nil attachment.
func UnmarshalAttachment(b []byte) (Attachment, error) {
	if len(b) == 0 || string(b) == "null" {
		return nil, nil
	}
	var env attachmentEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decode attachment: %w", err)
	}
	return DecodeAttachment(env.Type, env.Payload)
}

func decodeCard(m map[string]any) Card {
	return Card{
		Title:    getString(m, "title"),
		Subtitle: getString(m, "subtitle"),
		ImageURL: getString(m, "image_url"),
		Buttons:  decodeButtons(m["buttons"]),
	}
}

func encodeCard(c Card) map[string]any {
	buttons := make([]any, 0, len(c.Buttons))
	for _, b := range c.Buttons {
		buttons = append(buttons, map[string]any{"title": b.Label, "payload": b.Payload})
	}
	return map[string]any{
		"title":     c.Title,
		"subtitle":  c.Subtitle,
		"image_url": c.ImageURL,
		"buttons":   buttons,
	}
}

func decodeButtons(raw any) []Button {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	var out []Button
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, Button{
			Label:   getString(obj, "title"),
			Payload: getString(obj, "payload"),
		})
	}
	return out
}

func getString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
