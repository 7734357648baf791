package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	sess := New("agent-1")
	sess.Title = "hello"
	sess.Messages = append(sess.Messages, NewMessage(RoleUser, "hi", CategoryDialog))

	require.NoError(t, store.Save(sess))

	loaded, err := store.Load(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, loaded.ID)
	assert.Equal(t, "hello", loaded.Title)
	require.Len(t, loaded.Messages, 1)
	assert.Equal(t, "hi", loaded.Messages[0].Text)
}

func TestFileStoreListReturnsSummaries(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	s1 := New("agent-1")
	s1.Title = "one"
	s1.Messages = []Message{NewMessage(RoleUser, "a", CategoryDialog), NewMessage(RoleAssistant, "b", CategoryDialog)}
	require.NoError(t, store.Save(s1))

	summaries, err := store.List()
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "one", summaries[0].Title)
	assert.Equal(t, 2, summaries[0].MessageCount)
}

func TestFileStoreListSkipsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	good := New("agent-1")
	require.NoError(t, store.Save(good))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "corrupt.json"), []byte("{not json"), 0o644))

	summaries, err := store.List()
	require.NoError(t, err)
	require.Len(t, summaries, 1)
}

func TestFileStoreDeleteAbsentIsNotError(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	assert.NoError(t, store.Delete("nope"))
}

func TestCloneIsIndependent(t *testing.T) {
	sess := New("agent-1")
	sess.Messages = []Message{NewMessage(RoleUser, "hi", CategoryDialog)}
	clone := sess.Clone()
	clone.Messages[0].Text = "mutated"
	assert.Equal(t, "hi", sess.Messages[0].Text)
}
