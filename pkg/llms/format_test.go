package llms

import (
	"testing"

	"github.com/penguin-run/penguin/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatMessagesHoistsSystem(t *testing.T) {
	history := []session.Message{
		session.NewMessage(session.RoleSystem, "be helpful", session.CategorySystem),
		session.NewMessage(session.RoleUser, "hi", session.CategoryDialog),
	}

	wire, systemPrompt := FormatMessages(history, true)

	assert.Equal(t, "be helpful", systemPrompt)
	require.Len(t, wire, 1)
	assert.Equal(t, "user", wire[0].Role)
}

func TestFormatMessagesInlinesSystemWhenNotHoisting(t *testing.T) {
	history := []session.Message{
		session.NewMessage(session.RoleSystem, "be helpful", session.CategorySystem),
		session.NewMessage(session.RoleUser, "hi", session.CategoryDialog),
	}

	wire, systemPrompt := FormatMessages(history, false)

	assert.Empty(t, systemPrompt)
	require.Len(t, wire, 2)
	assert.Equal(t, "system", wire[0].Role)
}

func TestFormatMessagesPassesThroughRemoteImageURL(t *testing.T) {
	msg := session.NewMessage(session.RoleUser, "", session.CategoryDialog)
	msg.Parts = []session.Part{{Type: session.PartImage, ImageURL: "https://example.com/cat.png"}}
	history := []session.Message{msg}

	wire, _ := FormatMessages(history, false)

	require.Len(t, wire, 1)
	require.Len(t, wire[0].Images, 1)
	assert.Equal(t, "https://example.com/cat.png", wire[0].Images[0].URL)
}
