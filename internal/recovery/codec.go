package recovery

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stemsi/exstem-session/internal/model"
)

var errMissingSavedAt = errors.New("snapshot has no saved_at")

// Encode serializes a snapshot into its stored JSON form.
func Encode(p model.SavedProgress) ([]byte, error) {
	if p.Answers == nil {
		p.Answers = []model.QuestionAttempt{}
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// Decode parses a stored snapshot. A snapshot without saved_at is rejected.
func Decode(data []byte) (model.SavedProgress, error) {
	var p model.SavedProgress
	if err := json.Unmarshal(data, &p); err != nil {
		return model.SavedProgress{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if p.SavedAt.IsZero() {
		return model.SavedProgress{}, errMissingSavedAt
	}
	return p, nil
}
