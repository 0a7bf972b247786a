package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptRecord is the server-tracked row of an attempt.
type AttemptRecord struct {
	ID             uuid.UUID     `json:"id"`
	TestID         int64         `json:"test_id"`
	ProfileID      string        `json:"profile_id"`
	Status         AttemptStatus `json:"status"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     *time.Time    `json:"finished_at,omitempty"`
	Score          *float64      `json:"score,omitempty"`
	Correct        *int          `json:"correct,omitempty"`
	ElapsedSeconds *int          `json:"elapsed_seconds,omitempty"`
}

// TestDefinition is a complete test with graded options, used for seeding.
type TestDefinition struct {
	Title         string     `json:"title" binding:"required,min=3,max=255"`
	Description   string     `json:"description"`
	AvailableTime int        `json:"available_time" binding:"min=0"`
	Questions     []Question `json:"questions" binding:"required,min=1,dive"`
}
