// Package models defines the core data structures for fitness records
// stored in the local collections.
package models

import "time"

// Collection identifies a named record collection in the local store.
type Collection string

const (
	// Exercises holds the exercise catalog (append-only).
	Exercises Collection = "exercises"
	// Workouts holds composed workout plans (append-only).
	Workouts Collection = "workouts"
	// Logs holds per-day workout log entries.
	Logs Collection = "logs"
	// AchievementsCol holds unlocked achievements.
	AchievementsCol Collection = "achievements"
	// Users holds the local user profile.
	Users Collection = "users"
)

// Collections lists every known collection in a stable order.
var Collections = []Collection{Exercises, Workouts, Logs, AchievementsCol, Users}

// Known reports whether c names a known collection.
func Known(c Collection) bool {
	for _, k := range Collections {
		if k == c {
			return true
		}
	}
	return false
}

// Record is implemented by every typed record kind. The store addresses
// records only through this interface; the concrete shape stays with the
// collection that owns it.
type Record interface {
	// RecordID returns the unique identifier of the record.
	RecordID() string
	// SetRecordID assigns the identifier (used when the store generates one).
	SetRecordID(id string)
	// Created returns the record creation timestamp.
	Created() time.Time
	// SetCreated assigns the creation timestamp.
	SetCreated(t time.Time)
}

// Meta carries the fields common to every record kind.
type Meta struct {
	// ID is the unique identifier for the record.
	ID string `json:"id"`
	// CreatedAt is when the record was first persisted.
	CreatedAt time.Time `json:"created_at"`
}

func (m *Meta) RecordID() string { return m.ID }

func (m *Meta) SetRecordID(id string) { m.ID = id }

func (m *Meta) Created() time.Time { return m.CreatedAt }

func (m *Meta) SetCreated(t time.Time) { m.CreatedAt = t }

// Exercise is one entry of the exercise catalog.
type Exercise struct {
	Meta
	// Name is the display name of the exercise.
	Name string `json:"name" validate:"required"`
	// MuscleGroup is the primary muscle group targeted.
	MuscleGroup string `json:"muscle_group" validate:"required"`
	// Equipment lists required equipment, if any.
	Equipment string `json:"equipment,omitempty"`
	// Description holds user-facing instructions.
	Description string `json:"description,omitempty"`
}

// Workout is a named composition of exercises.
type Workout struct {
	Meta
	// Name is the display name of the workout.
	Name string `json:"name" validate:"required"`
	// ExerciseIDs references the exercises making up the workout.
	ExerciseIDs []string `json:"exercise_ids" validate:"required,min=1"`
	// Difficulty is a free-form difficulty label.
	Difficulty string `json:"difficulty,omitempty"`
}

// LogEntry records one performed workout on a given date.
type LogEntry struct {
	Meta
	// WorkoutID references the workout that was performed.
	WorkoutID string `json:"workout_id" validate:"required"`
	// Date is the day of the workout in YYYY-MM-DD form.
	Date string `json:"date" validate:"required"`
	// DurationMin is the workout duration in minutes.
	DurationMin int `json:"duration_min,omitempty"`
	// Notes holds free-form user notes.
	Notes string `json:"notes,omitempty"`
}

// Achievement marks a gamification milestone as unlocked.
type Achievement struct {
	Meta
	// Code is the stable achievement identifier.
	Code string `json:"code" validate:"required"`
	// Title is the user-facing achievement name.
	Title string `json:"title" validate:"required"`
	// UnlockedAt is when the achievement was earned.
	UnlockedAt time.Time `json:"unlocked_at,omitempty"`
}

// UserProfile holds the local user's profile data.
type UserProfile struct {
	Meta
	// Name is the user's display name.
	Name string `json:"name" validate:"required"`
	// WeightKg is the user's body weight in kilograms.
	WeightKg float64 `json:"weight_kg,omitempty"`
	// HeightCm is the user's height in centimeters.
	HeightCm float64 `json:"height_cm,omitempty"`
	// Goal is a free-form training goal.
	Goal string `json:"goal,omitempty"`
}
