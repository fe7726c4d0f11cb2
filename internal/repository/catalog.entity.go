package repository

import (
	"time"

	"github.com/nimasrn/studio-gateway/internal/model"
)

type VenueEntity struct {
	ID      int64  `db:"id"      gorm:"primaryKey;autoIncrement;column:id"`
	Name    string `db:"name"    gorm:"column:name;not null"`
	Address string `db:"address" gorm:"column:address"`
	City    string `db:"city"    gorm:"column:city"`
}

func (VenueEntity) TableName() string {
	return "venues"
}

type InstructorEntity struct {
	ID     int64  `db:"id"      gorm:"primaryKey;autoIncrement;column:id"`
	UserID *int64 `db:"user_id" gorm:"column:user_id;index"`
	Name   string `db:"name"    gorm:"column:name;not null"`
	Email  string `db:"email"   gorm:"column:email"`
}

func (InstructorEntity) TableName() string {
	return "instructors"
}

type ClassEntity struct {
	ID           int64             `db:"id"            gorm:"primaryKey;autoIncrement;column:id"`
	Title        string            `db:"title"         gorm:"column:title;not null"`
	StartTime    time.Time         `db:"start_time"    gorm:"column:start_time;not null;index"`
	EndTime      time.Time         `db:"end_time"      gorm:"column:end_time;not null"`
	VenueID      *int64            `db:"venue_id"      gorm:"column:venue_id"`
	InstructorID *int64            `db:"instructor_id" gorm:"column:instructor_id"`
	Venue        *VenueEntity      `gorm:"foreignKey:VenueID"`
	Instructor   *InstructorEntity `gorm:"foreignKey:InstructorID"`
}

func (ClassEntity) TableName() string {
	return "classes"
}

type EventEntity struct {
	ID          int64        `db:"id"           gorm:"primaryKey;autoIncrement;column:id"`
	Title       string       `db:"title"        gorm:"column:title;not null"`
	StartTime   time.Time    `db:"start_time"   gorm:"column:start_time;not null;index"`
	EndTime     time.Time    `db:"end_time"     gorm:"column:end_time;not null"`
	VenueID     *int64       `db:"venue_id"     gorm:"column:venue_id"`
	OrganizerID *int64       `db:"organizer_id" gorm:"column:organizer_id"`
	Venue       *VenueEntity `gorm:"foreignKey:VenueID"`
	Organizer   *UserEntity  `gorm:"foreignKey:OrganizerID"`
}

func (EventEntity) TableName() string {
	return "events"
}

func toVenueModel(e *VenueEntity) *model.Venue {
	if e == nil {
		return nil
	}
	return &model.Venue{ID: e.ID, Name: e.Name, Address: e.Address, City: e.City}
}

func toInstructorModel(e *InstructorEntity) *model.Instructor {
	if e == nil {
		return nil
	}
	return &model.Instructor{ID: e.ID, UserID: e.UserID, Name: e.Name, Email: e.Email}
}

func toClassModel(e *ClassEntity) *model.ClassDetails {
	if e == nil {
		return nil
	}
	return &model.ClassDetails{
		ID:         e.ID,
		Title:      e.Title,
		StartTime:  e.StartTime,
		EndTime:    e.EndTime,
		Venue:      toVenueModel(e.Venue),
		Instructor: toInstructorModel(e.Instructor),
	}
}

func toEventModel(e *EventEntity) *model.EventDetails {
	if e == nil {
		return nil
	}
	return &model.EventDetails{
		ID:        e.ID,
		Title:     e.Title,
		StartTime: e.StartTime,
		EndTime:   e.EndTime,
		Venue:     toVenueModel(e.Venue),
		Organizer: toUserModel(e.Organizer),
	}
}
