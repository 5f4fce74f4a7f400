package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/examflow/examflow-backend/internal/config"
	"github.com/examflow/examflow-backend/internal/database"
	"github.com/examflow/examflow-backend/internal/logger"
	"github.com/examflow/examflow-backend/internal/service"
	"github.com/google/uuid"
)

// issue-token mints one admin access token from the command line.
func main() {
	var (
		examID   string
		student  string
		maxUsage int
		hours    float64
	)
	flag.StringVar(&examID, "exam", "", "Exam ID (required)")
	flag.StringVar(&student, "student", "", "Student name bound to the token")
	flag.IntVar(&maxUsage, "max-usage", 1, "Number of sessions the token may open")
	flag.Float64Var(&hours, "hours", 24, "Validity in hours")
	flag.Parse()

	id, err := uuid.Parse(examID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error: -exam must be a valid exam ID")
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stores, err := database.OpenStores(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer stores.Close()

	tokens := service.NewTokenService(stores.Tokens, stores.Assessments, cfg.DefaultTokenTTL, log)
	tok, exam, err := tokens.Issue(ctx, service.IssueInput{
		ExamID:         id,
		StudentName:    student,
		MaxUsage:       maxUsage,
		ExpiresInHours: hours,
	})
	if err != nil {
		if errors.Is(err, service.ErrExamNotFound) {
			fmt.Fprintf(os.Stderr, "Error: exam %s not found\n", id)
			os.Exit(1)
		}
		log.Fatal().Err(err).Msg("Failed to issue token")
	}

	fmt.Printf("Token:   %s\n", tok.Code)
	fmt.Printf("Exam:    %s\n", exam.Title)
	fmt.Printf("Uses:    %d\n", tok.MaxUsage)
	fmt.Printf("Expires: %s\n", tok.ExpiresAt.Format(time.RFC3339))
}
