package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/database"
	"github.com/stemsi/exstem-session/internal/logger"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/repository"
	"github.com/stemsi/exstem-session/internal/validator"
)

// seed-tests loads test definitions from a JSON file (one object or an array)
// and inserts each one with its questions and answers.
func main() {
	var file string
	var dryRun bool
	flag.StringVar(&file, "file", "", "Path to a JSON file of test definitions")
	flag.BoolVar(&dryRun, "dry-run", false, "Validate the file without writing to the database")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	validator.Setup()

	if file == "" {
		fmt.Println("Usage: seed-tests -file tests.json [-dry-run]")
		os.Exit(2)
	}

	raw, err := os.ReadFile(file)
	if err != nil {
		log.Fatal().Err(err).Str("file", file).Msg("Failed to read file")
	}
	defs, err := parseDefinitions(raw)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to parse test definitions")
	}

	for i := range defs {
		if errs := validator.Struct(&defs[i]); errs != nil {
			log.Fatal().Int("index", i).Interface("errors", errs).Msg("Invalid test definition")
		}
		if err := checkAnswerKey(&defs[i]); err != nil {
			log.Fatal().Err(err).Int("index", i).Msg("Invalid test definition")
		}
	}
	log.Info().Int("tests", len(defs)).Msg("Definitions valid")
	if dryRun {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	repo := repository.NewTestRepository(pool)
	for i := range defs {
		id, err := repo.Create(ctx, &defs[i])
		if err != nil {
			log.Fatal().Err(err).Str("title", defs[i].Title).Msg("Failed to create test")
		}
		log.Info().Int64("test_id", id).
			Str("title", defs[i].Title).
			Int("questions", len(defs[i].Questions)).
			Msg("Test created")
	}
}

func parseDefinitions(raw []byte) ([]model.TestDefinition, error) {
	var defs []model.TestDefinition
	if err := json.Unmarshal(raw, &defs); err == nil {
		return defs, nil
	}
	var one model.TestDefinition
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, err
	}
	return []model.TestDefinition{one}, nil
}

// checkAnswerKey requires exactly one correct option per question.
func checkAnswerKey(def *model.TestDefinition) error {
	for qi, q := range def.Questions {
		correct := 0
		for _, a := range q.Answers {
			if a.IsCorrect != nil && *a.IsCorrect {
				correct++
			}
		}
		if correct != 1 {
			return fmt.Errorf("question %d has %d correct answers, want 1", qi+1, correct)
		}
	}
	return nil
}
