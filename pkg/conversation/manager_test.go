package conversation

import (
	"strings"
	"testing"

	"github.com/penguin-run/penguin/pkg/checkpoint"
	"github.com/penguin-run/penguin/pkg/ctxwindow"
	"github.com/penguin-run/penguin/pkg/model"
	"github.com/penguin-run/penguin/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	data map[string]*session.Session
}

func newMemStore() *memStore { return &memStore{data: make(map[string]*session.Session)} }

func (s *memStore) Save(sess *session.Session) error {
	s.data[sess.ID] = sess.Clone()
	return nil
}
func (s *memStore) Load(id string) (*session.Session, error) {
	sess, ok := s.data[id]
	if !ok {
		return nil, assert.AnError
	}
	return sess.Clone(), nil
}
func (s *memStore) List() ([]session.Summary, error) { return nil, nil }
func (s *memStore) Delete(id string) error {
	delete(s.data, id)
	return nil
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	spec := model.NewModelSpec(model.Options{ModelID: "test-model", MaxContextWindowTokens: 100000})
	window := ctxwindow.New(spec, ctxwindow.EstimatorCounter{}, nil)
	return New(Options{
		AgentID:   "agent-1",
		Window:    window,
		Store:     newMemStore(),
		Retention: checkpoint.DefaultRetention(),
	})
}

func TestAddMessagePreservesAppendOrder(t *testing.T) {
	m := newTestManager(t)
	_, err := m.AddMessage(session.RoleUser, "first", session.CategoryDialog, nil)
	require.NoError(t, err)
	_, err = m.AddMessage(session.RoleAssistant, "second", session.CategoryDialog, nil)
	require.NoError(t, err)

	hist := m.GetHistory(false)
	require.Len(t, hist, 2)
	assert.Equal(t, "first", hist[0].Text)
	assert.Equal(t, "second", hist[1].Text)
}

func TestSetSystemPromptStaysUnique(t *testing.T) {
	m := newTestManager(t)
	m.SetSystemPrompt("v1")
	_, _ = m.AddMessage(session.RoleUser, "hi", session.CategoryDialog, nil)
	m.SetSystemPrompt("v2")

	hist := m.GetHistory(false)
	systemCount := 0
	for _, msg := range hist {
		if msg.Category == session.CategorySystem {
			systemCount++
			assert.Equal(t, "v2", msg.Text)
		}
	}
	assert.Equal(t, 1, systemCount)
}

func TestResetPreservesAgentID(t *testing.T) {
	m := newTestManager(t)
	_, _ = m.AddMessage(session.RoleUser, "hi", session.CategoryDialog, nil)
	originalAgent := m.Session().AgentID

	m.Reset()

	assert.Equal(t, originalAgent, m.Session().AgentID)
	assert.Empty(t, m.GetHistory(false))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	m := newTestManager(t)
	m.SetSystemPrompt("persisted prompt")
	_, _ = m.AddMessage(session.RoleUser, "hello", session.CategoryDialog, nil)
	require.NoError(t, m.Save())

	id := m.Session().ID
	m.Reset()
	require.NoError(t, m.Load(id))

	assert.Equal(t, "persisted prompt", m.Session().SystemPrompt)
	hist := m.GetHistory(false)
	require.Len(t, hist, 2)
}

func TestSharedSessionAppendsToParent(t *testing.T) {
	parent := newTestManager(t)
	spec := model.NewModelSpec(model.Options{ModelID: "test-model", MaxContextWindowTokens: 100000})
	childWindow := ctxwindow.New(spec, ctxwindow.EstimatorCounter{}, nil)
	child := New(Options{
		AgentID:   "agent-2",
		Window:    childWindow,
		Store:     newMemStore(),
		Retention: checkpoint.DefaultRetention(),
		Shared:    parent,
	})

	_, err := child.AddMessage(session.RoleUser, "from child", session.CategoryDialog, nil)
	require.NoError(t, err)

	assert.Equal(t, parent.Session().ID, child.Session().ID)
	assert.Len(t, parent.GetHistory(false), 1)
}

func TestGetTokenUsageReflectsTrim(t *testing.T) {
	m := newTestManager(t)
	_, err := m.AddMessage(session.RoleUser, strings.Repeat("word ", 50), session.CategoryDialog, nil)
	require.NoError(t, err)

	usage := m.GetTokenUsage()
	assert.Greater(t, usage.CurrentTotal, 0)
	assert.LessOrEqual(t, usage.CurrentTotal, usage.MaxTokens)
}
