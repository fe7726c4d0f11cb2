package repository

import (
	"context"
	"errors"

	"github.com/nimasrn/studio-gateway/internal/model"
	"github.com/nimasrn/studio-gateway/pkg/pg"
	"gorm.io/gorm"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepository struct {
	*pg.DB
}

func NewUserRepository(db *pg.DB) *UserRepository {
	return &UserRepository{
		db,
	}
}

func (r *UserRepository) Create(ctx context.Context, u *model.User) (*model.User, error) {
	entity := toUserEntity(u)
	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, err
	}
	return toUserModel(entity), nil
}

func (r *UserRepository) Get(ctx context.Context, id int64) (*model.User, error) {
	var entity UserEntity
	if err := r.Read(ctx).Where("id = ?", id).First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return toUserModel(&entity), nil
}

func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	err := r.Read(ctx).Model(&UserEntity{}).Count(&total).Error
	return total, err
}

func (r *UserRepository) ListByRole(ctx context.Context, role model.UserRole) ([]*model.User, error) {
	var entities []*UserEntity
	err := r.Read(ctx).
		Where("role = ?", string(role)).
		Order("id").
		Find(&entities).
		Error
	if err != nil {
		return nil, err
	}
	return toUserModels(entities), nil
}
