package llms

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/jpeg"
	_ "image/gif"
	_ "image/png"
	"net/http"
	"strings"

	"github.com/penguin-run/penguin/pkg/session"
)

const maxImageDimension = 1024

// FormatMessages converts a session's history into the provider-wire
// Message shape and applies system-role handling (spec.md §4.5 step 1):
// when hoistSystem is true (Anthropic, Gemini), SYSTEM-category messages are
// excluded from the returned slice and concatenated into systemPrompt
// instead; otherwise they are inlined as ordinary role "system" messages.
func FormatMessages(history []session.Message, hoistSystem bool) (messages []Message, systemPrompt string) {
	var systemParts []string
	for _, m := range history {
		if m.Category == session.CategorySystem {
			systemParts = append(systemParts, m.Text)
			if !hoistSystem {
				messages = append(messages, Message{Role: "system", Content: m.Text})
			}
			continue
		}
		messages = append(messages, toWireMessage(m))
	}
	if hoistSystem {
		systemPrompt = strings.Join(systemParts, "\n\n")
	}
	return Sanitize(messages), systemPrompt
}

func toWireMessage(m session.Message) Message {
	wire := Message{
		Role:       roleString(m.Role),
		Content:    m.Text,
		ToolCallID: m.ToolCallID,
	}
	for _, p := range m.Parts {
		switch p.Type {
		case session.PartText:
			if wire.Content == "" {
				wire.Content = p.Text
			}
		case session.PartImage:
			wire.Images = append(wire.Images, normalizeImage(p))
		}
	}
	return wire
}

func roleString(r session.Role) string {
	return string(r)
}

// normalizeImage passes a remote URL through untouched, or re-encodes a
// local/data-URI image: decode, resize to fit within 1024x1024, re-encode as
// JPEG, per spec.md §4.5 step 1.
func normalizeImage(p session.Part) Image {
	if p.ImageURL != "" {
		return Image{URL: p.ImageURL}
	}

	raw := p.ImageDataURI
	if idx := strings.Index(raw, ","); idx >= 0 && strings.HasPrefix(raw, "data:") {
		raw = raw[idx+1:]
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return Image{DataURI: p.ImageDataURI, MimeType: detectImageMediaType(nil)}
	}

	resized, mime, err := resizeAndReencode(data)
	if err != nil {
		return Image{DataURI: p.ImageDataURI, MimeType: detectImageMediaType(data)}
	}
	return Image{
		DataURI:  "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(resized),
		MimeType: mime,
	}
}

func resizeAndReencode(data []byte) ([]byte, string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", err
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w > maxImageDimension || h > maxImageDimension {
		img = downscale(img, maxImageDimension)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), "image/jpeg", nil
}

// downscale does a nearest-neighbor resize so the longer edge fits within
// maxDim. Good enough for vision-input size reduction; providers re-encode
// on their end regardless.
func downscale(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	scale := float64(maxDim) / float64(max(w, h))
	newW, newH := int(float64(w)*scale), int(float64(h)*scale)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	for y := 0; y < newH; y++ {
		for x := 0; x < newW; x++ {
			srcX := bounds.Min.X + x*w/newW
			srcY := bounds.Min.Y + y*h/newH
			dst.Set(x, y, img.At(srcX, srcY))
		}
	}
	return dst
}

// detectImageMediaType sniffs the MIME type from magic bytes, falling back
// to JPEG, grounded on hector's pkg/llms/media_type.go.
func detectImageMediaType(data []byte) string {
	if len(data) == 0 {
		return "image/jpeg"
	}
	if detected := http.DetectContentType(data); strings.HasPrefix(detected, "image/") {
		return detected
	}
	return "image/jpeg"
}
