package storage

import (
	"context"
	"testing"

	"main/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryUserStoreFindByEmail(t *testing.T) {
	store := NewMemoryUserStore(User{
		Email:       "Ada@Example.edu",
		SubjectType: "teacher",
		EmployeeID:  "t-204",
		FullName:    "Ada Lovelace",
		Active:      true,
	})

	u, err := store.FindByEmail(context.Background(), "ada@example.edu")
	require.NoError(t, err)
	assert.Equal(t, "t-204", u.SubjectID())
	assert.Equal(t, session.SubjectTeacher, u.Subject())

	_, err = store.FindByEmail(context.Background(), "nobody@example.edu")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserSubjectIDFallsBackToEmail(t *testing.T) {
	u := User{Email: "a@b.c"}
	assert.Equal(t, "a@b.c", u.SubjectID())
}
