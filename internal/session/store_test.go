package session

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRoundTrip(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "state", "session.json"))

	sess := Session{
		SubjectType: SubjectTeacher,
		SubjectID:   "t-204",
		Token:       "tok",
		IssuedAt:    time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.Save(sess))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, sess.SubjectType, loaded.SubjectType)
	assert.Equal(t, sess.SubjectID, loaded.SubjectID)
	assert.Equal(t, sess.Token, loaded.Token)
	assert.True(t, loaded.Valid())
}

func TestStoreLoadMissing(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "session.json"))

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestStoreClear(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "session.json"))
	require.NoError(t, store.Save(Session{SubjectType: SubjectAdmin, SubjectID: "a-1"}))

	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear()) // already gone

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSessionValid(t *testing.T) {
	assert.False(t, Session{}.Valid())
	assert.False(t, Session{SubjectType: SubjectAdmin}.Valid())
	assert.False(t, Session{SubjectID: "a-1"}.Valid())
	assert.True(t, Session{SubjectType: SubjectAdmin, SubjectID: "a-1"}.Valid())
}
