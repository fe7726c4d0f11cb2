package repository

import (
	"time"

	"github.com/nimasrn/studio-gateway/internal/model"
)

type UserEntity struct {
	ID        int64     `db:"id"         gorm:"primaryKey;autoIncrement;column:id"`
	Email     string    `db:"email"      gorm:"column:email;not null;uniqueIndex"`
	FirstName string    `db:"first_name" gorm:"column:first_name"`
	LastName  string    `db:"last_name"  gorm:"column:last_name"`
	Role      string    `db:"role"       gorm:"column:role;not null;default:USER;index"`
	CreatedAt time.Time `db:"created_at" gorm:"column:created_at;autoCreateTime"`
}

func (UserEntity) TableName() string {
	return "users"
}

func toUserEntity(m *model.User) *UserEntity {
	if m == nil {
		return nil
	}
	return &UserEntity{
		ID:        m.ID,
		Email:     m.Email,
		FirstName: m.FirstName,
		LastName:  m.LastName,
		Role:      string(m.Role),
		CreatedAt: m.CreatedAt,
	}
}

func toUserModel(e *UserEntity) *model.User {
	if e == nil {
		return nil
	}
	return &model.User{
		ID:        e.ID,
		Email:     e.Email,
		FirstName: e.FirstName,
		LastName:  e.LastName,
		Role:      model.UserRole(e.Role),
		CreatedAt: e.CreatedAt,
	}
}

func toUserModels(entities []*UserEntity) []*model.User {
	if entities == nil {
		return nil
	}
	models := make([]*model.User, len(entities))
	for i, e := range entities {
		models[i] = toUserModel(e)
	}
	return models
}
