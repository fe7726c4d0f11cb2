package model

import (
	"strings"
	"time"
)

type UserRole string

const (
	RoleUser       UserRole = "USER"
	RoleInstructor UserRole = "INSTRUCTOR"
	RoleAdmin      UserRole = "ADMIN"
)

type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      UserRole  `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func (u *User) FullName() string {
	if u == nil {
		return ""
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// DisplayName falls back to the email when no name is on file.
func (u *User) DisplayName() string {
	if n := u.FullName(); n != "" {
		return n
	}
	if u == nil {
		return ""
	}
	return u.Email
}

type Venue struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	City    string `json:"city"`
}

type Instructor struct {
	ID     int64  `json:"id"`
	UserID *int64 `json:"user_id,omitempty"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

type ClassDetails struct {
	ID         int64       `json:"id"`
	Title      string      `json:"title"`
	StartTime  time.Time   `json:"start_time"`
	EndTime    time.Time   `json:"end_time"`
	Venue      *Venue      `json:"venue,omitempty"`
	Instructor *Instructor `json:"instructor,omitempty"`
}

type EventDetails struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Venue     *Venue    `json:"venue,omitempty"`
	Organizer *User     `json:"organizer,omitempty"`
}

func (c *ClassDetails) VenueName() string {
	if c == nil || c.Venue == nil {
		return ""
	}
	return c.Venue.Name
}

func (e *EventDetails) VenueName() string {
	if e == nil || e.Venue == nil {
		return ""
	}
	return e.Venue.Name
}
