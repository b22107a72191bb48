package storage

import (
	"context"
	"time"

	"main/internal/session"

	"github.com/yanun0323/errors"
)

var ErrUserNotFound = errors.New("storage: user not found")

// User is one account able to log in and join the realtime audience of its
// subject type.
type User struct {
	ID             uint   `gorm:"primaryKey"`
	Email          string `gorm:"uniqueIndex;size:255"`
	HashedPassword string `gorm:"size:255"`
	SubjectType    string `gorm:"size:16;index"`
	EmployeeID     string `gorm:"size:64"`
	FullName       string `gorm:"size:255"`
	Department     string `gorm:"size:255"`
	Active         bool   `gorm:"default:true"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SubjectID is the identity the realtime connection is scoped by.
func (u User) SubjectID() string {
	if u.EmployeeID != "" {
		return u.EmployeeID
	}
	return u.Email
}

func (u User) Subject() session.SubjectType {
	return session.SubjectType(u.SubjectType)
}

// UserStore looks accounts up for authentication.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (User, error)
}
