package storage

import (
	"context"

	"github.com/yanun0323/errors"
	"gorm.io/gorm"
)

// PostgresUserStore backs UserStore with a gorm connection pool.
type PostgresUserStore struct {
	db *gorm.DB
}

func NewPostgresUserStore(db *gorm.DB) (*PostgresUserStore, error) {
	if db == nil {
		return nil, errors.New("storage: nil db")
	}
	return &PostgresUserStore{db: db}, nil
}

// Migrate creates or updates the users table.
func (s *PostgresUserStore) Migrate() error {
	if err := s.db.AutoMigrate(&User{}); err != nil {
		return errors.Wrap(err, "migrate users")
	}
	return nil
}

// Upsert creates the account or refreshes an existing one, keyed by email.
func (s *PostgresUserStore) Upsert(ctx context.Context, u User) error {
	var existing User
	err := s.db.WithContext(ctx).Where("email = ?", u.Email).First(&existing).Error
	switch {
	case err == nil:
		u.ID = existing.ID
		u.CreatedAt = existing.CreatedAt
		if err := s.db.WithContext(ctx).Save(&u).Error; err != nil {
			return errors.Wrap(err, "update user")
		}
		return nil
	case err == gorm.ErrRecordNotFound:
		if err := s.db.WithContext(ctx).Create(&u).Error; err != nil {
			return errors.Wrap(err, "create user")
		}
		return nil
	default:
		return errors.Wrap(err, "query user by email")
	}
}

func (s *PostgresUserStore) FindByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return User{}, ErrUserNotFound
		}
		return User{}, errors.Wrap(err, "query user by email")
	}
	return user, nil
}
