package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/atinyakov/FitVault/internal/models"
)

// validate checks the declarative `validate` tags on record types.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Schema describes how the store treats one collection: how its records
// decode from storage, whether IDs are append-only, and what it is seeded
// with when empty.
type Schema struct {
	// Decode parses the stored JSON array into records.
	Decode func(data []byte) ([]models.Record, error)
	// Check verifies a record is of the collection's kind and passes its
	// required-field set.
	Check func(rec models.Record) error
	// AppendOnly rejects duplicate record IDs on upsert.
	AppendOnly bool
	// AutoID assigns a generated ID and timestamp on upsert when absent.
	AutoID bool
	// Seed returns the default content for an empty collection.
	Seed func() []models.Record
}

// decodeSlice decodes a JSON array of concrete record pointers.
func decodeSlice[T any, PT interface {
	*T
	models.Record
}](data []byte) ([]models.Record, error) {
	var rows []PT
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	out := make([]models.Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, r)
	}
	return out, nil
}

// checkKind validates that rec is of the expected concrete kind and passes
// the declarative field checks.
func checkKind[T any, PT interface {
	*T
	models.Record
}](rec models.Record) error {
	r, ok := rec.(PT)
	if !ok {
		return fmt.Errorf("%w: unexpected record kind %T", ErrValidation, rec)
	}
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// schemas maps each collection to its declared behavior.
var schemas = map[models.Collection]Schema{
	models.Exercises: {
		Decode:     decodeSlice[models.Exercise],
		Check:      checkKind[models.Exercise],
		AppendOnly: true,
		Seed:       seedExercises,
	},
	models.Workouts: {
		Decode:     decodeSlice[models.Workout],
		Check:      checkKind[models.Workout],
		AppendOnly: true,
	},
	models.Logs: {
		Decode: decodeSlice[models.LogEntry],
		Check:  checkKind[models.LogEntry],
		AutoID: true,
	},
	models.AchievementsCol: {
		Decode: decodeSlice[models.Achievement],
		Check:  checkKind[models.Achievement],
	},
	models.Users: {
		Decode: decodeSlice[models.UserProfile],
		Check:  checkKind[models.UserProfile],
	},
}

// schemaFor returns the schema for a collection, or ErrUnknownCollection.
func schemaFor(col models.Collection) (Schema, error) {
	s, ok := schemas[col]
	if !ok {
		return Schema{}, fmt.Errorf("%w: %q", ErrUnknownCollection, col)
	}
	return s, nil
}

// DecodeRecords parses a stored JSON array for a collection into records.
func DecodeRecords(col models.Collection, data []byte) ([]models.Record, error) {
	schema, err := schemaFor(col)
	if err != nil {
		return nil, err
	}
	return schema.Decode(data)
}

// seedExercises is the default exercise catalog for a fresh store.
func seedExercises() []models.Record {
	now := time.Now().UTC()
	mk := func(id, name, group, equipment string) models.Record {
		e := &models.Exercise{Name: name, MuscleGroup: group, Equipment: equipment}
		e.ID = id
		e.CreatedAt = now
		return e
	}
	return []models.Record{
		mk("ex_squat", "Barbell Squat", "legs", "barbell"),
		mk("ex_bench", "Bench Press", "chest", "barbell"),
		mk("ex_deadlift", "Deadlift", "back", "barbell"),
		mk("ex_pullup", "Pull-Up", "back", "bar"),
		mk("ex_plank", "Plank", "core", ""),
	}
}
