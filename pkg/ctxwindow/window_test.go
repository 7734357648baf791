package ctxwindow

import (
	"strings"
	"testing"

	"github.com/penguin-run/penguin/pkg/model"
	"github.com/penguin-run/penguin/pkg/perrors"
	"github.com/penguin-run/penguin/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSpec(maxHistory int) *model.ModelSpec {
	return model.NewModelSpec(model.Options{
		ModelID:                "test-model",
		MaxContextWindowTokens: int(float64(maxHistory) / 0.85),
	})
}

func TestTrimKeepsRecentDialogPair(t *testing.T) {
	spec := testSpec(2000)
	w := New(spec, EstimatorCounter{}, nil)

	sess := session.New("agent-1")
	sess.Messages = append(sess.Messages, session.NewMessage(session.RoleSystem, "sys", session.CategorySystem))
	longText := strings.Repeat("word ", 500)
	for i := 0; i < 20; i++ {
		sess.Messages = append(sess.Messages, session.NewMessage(session.RoleUser, longText, session.CategoryDialog))
		sess.Messages = append(sess.Messages, session.NewMessage(session.RoleAssistant, longText, session.CategoryDialog))
	}

	err := w.Trim(sess)
	require.NoError(t, err)

	// System message never trimmed.
	assert.Equal(t, session.CategorySystem, sess.Messages[0].Category)

	// Last two DIALOG messages (the most recent user+assistant pair) survive.
	var lastTwoDialog []session.Message
	for _, m := range sess.Messages {
		if m.Category == session.CategoryDialog {
			lastTwoDialog = append(lastTwoDialog, m)
		}
	}
	require.True(t, len(lastTwoDialog) >= 2)
	assert.Equal(t, session.RoleUser, lastTwoDialog[len(lastTwoDialog)-2].Role)
	assert.Equal(t, session.RoleAssistant, lastTwoDialog[len(lastTwoDialog)-1].Role)

	usage := w.TokenUsage(sess)
	assert.LessOrEqual(t, usage.CurrentTotal, usage.MaxTokens)
	assert.NotEmpty(t, w.truncations)
}

func TestTrimNeverRemovesSystem(t *testing.T) {
	spec := testSpec(50) // tiny budget
	w := New(spec, EstimatorCounter{}, nil)

	sess := session.New("agent-1")
	sess.Messages = append(sess.Messages, session.NewMessage(session.RoleSystem, strings.Repeat("x", 2000), session.CategorySystem))

	_ = w.Trim(sess)
	require.Len(t, sess.Messages, 1)
	assert.Equal(t, session.CategorySystem, sess.Messages[0].Category)
}

func TestTrimReturnsContextTooLargeWhenOnlyProtectedRemain(t *testing.T) {
	spec := testSpec(10) // impossibly tiny budget
	w := New(spec, EstimatorCounter{}, nil)

	sess := session.New("agent-1")
	sess.Messages = append(sess.Messages, session.NewMessage(session.RoleSystem, strings.Repeat("x", 500), session.CategorySystem))
	sess.Messages = append(sess.Messages, session.NewMessage(session.RoleUser, strings.Repeat("x", 500), session.CategoryDialog))
	sess.Messages = append(sess.Messages, session.NewMessage(session.RoleAssistant, strings.Repeat("x", 500), session.CategoryDialog))

	err := w.Trim(sess)
	require.Error(t, err)
	var cle *perrors.ContextLengthExceededError
	require.ErrorAs(t, err, &cle)
}
