package repository

import (
	"context"
	"errors"
	"time"

	"github.com/nimasrn/studio-gateway/internal/model"
	"github.com/nimasrn/studio-gateway/pkg/pg"
	"gorm.io/gorm"
)

var (
	ErrClassNotFound = errors.New("class not found")
	ErrEventNotFound = errors.New("event not found")
)

// CatalogRepository reads classes and events with their venue and host.
// The catalog is owned by the admin side; nothing here writes it.
type CatalogRepository struct {
	*pg.DB
}

func NewCatalogRepository(db *pg.DB) *CatalogRepository {
	return &CatalogRepository{
		db,
	}
}

func (r *CatalogRepository) GetClass(ctx context.Context, id int64) (*model.ClassDetails, error) {
	var entity ClassEntity
	err := r.Read(ctx).
		Preload("Venue").
		Preload("Instructor").
		Where("id = ?", id).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClassNotFound
		}
		return nil, err
	}
	return toClassModel(&entity), nil
}

func (r *CatalogRepository) GetEvent(ctx context.Context, id int64) (*model.EventDetails, error) {
	var entity EventEntity
	err := r.Read(ctx).
		Preload("Venue").
		Preload("Organizer").
		Where("id = ?", id).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return toEventModel(&entity), nil
}

// ClassesStartingBetween returns classes with from <= start_time < to.
func (r *CatalogRepository) ClassesStartingBetween(ctx context.Context, from, to time.Time) ([]*model.ClassDetails, error) {
	var entities []*ClassEntity
	err := r.Read(ctx).
		Preload("Venue").
		Preload("Instructor").
		Where("start_time >= ? AND start_time < ?", from, to).
		Order("start_time").
		Find(&entities).
		Error
	if err != nil {
		return nil, err
	}
	out := make([]*model.ClassDetails, len(entities))
	for i, e := range entities {
		out[i] = toClassModel(e)
	}
	return out, nil
}

// EventsStartingBetween returns events with from <= start_time < to.
func (r *CatalogRepository) EventsStartingBetween(ctx context.Context, from, to time.Time) ([]*model.EventDetails, error) {
	var entities []*EventEntity
	err := r.Read(ctx).
		Preload("Venue").
		Preload("Organizer").
		Where("start_time >= ? AND start_time < ?", from, to).
		Order("start_time").
		Find(&entities).
		Error
	if err != nil {
		return nil, err
	}
	out := make([]*model.EventDetails, len(entities))
	for i, e := range entities {
		out[i] = toEventModel(e)
	}
	return out, nil
}
