package domain

import (
	"context"
	"errors"
	"time"
)

var ErrUserNotFound = errors.New("user_not_found")

// User is an application account as stored in the auth schema.
type User struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Email     string    `gorm:"column:email"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (User) TableName() string {
	return "auth_users"
}

type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
}
