// Package eval is an offline evaluation harness for the explanation
// pipeline: it replays a JSON case file and scores the output.
package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/charlesblakely0701-star/post-explainer/internal/domain"
)

// keywordPassThreshold is the minimum keyword coverage for a case to pass.
const keywordPassThreshold = 0.5

// Case is one evaluation input.
type Case struct {
	ID               string   `json:"id"`
	PostText         string   `json:"post_text"`
	ImageURL         string   `json:"image_url,omitempty"`
	ExpectedKeywords []string `json:"expected_keywords"`
	MinBullets       int      `json:"min_bullets"`
}

// CaseResult is one scored evaluation output.
type CaseResult struct {
	ID              string  `json:"id"`
	Passed          bool    `json:"passed"`
	KeywordCoverage float64 `json:"keyword_coverage"`
	BulletCount     int     `json:"bullet_count"`
	CitationCount   int     `json:"citation_count"`
	SourceCount     int     `json:"source_count"`
	LatencyMS       int64   `json:"latency_ms"`
	Error           string  `json:"error,omitempty"`
}

// Report aggregates one evaluation run.
type Report struct {
	RunID     string       `json:"run_id"`
	StartedAt time.Time    `json:"started_at"`
	Cases     []CaseResult `json:"cases"`
	PassRate  float64      `json:"pass_rate"`
}

// Explainer is the pipeline surface the runner needs. Callers hand in a
// service built with a fresh cache so every case computes from scratch.
type Explainer interface {
	Explain(ctx context.Context, post domain.Post) (domain.Explanation, error)
}

// Runner replays evaluation cases against the pipeline.
type Runner struct {
	explainer Explainer
	logger    *zap.Logger
}

// NewRunner creates an evaluation runner.
func NewRunner(explainer Explainer, logger *zap.Logger) *Runner {
	return &Runner{explainer: explainer, logger: logger}
}

// LoadCases reads an evaluation case file.
func LoadCases(path string) ([]Case, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cases: %w", err)
	}
	var cases []Case
	if err := json.Unmarshal(raw, &cases); err != nil {
		return nil, fmt.Errorf("parse cases: %w", err)
	}
	if len(cases) == 0 {
		return nil, fmt.Errorf("case file %s is empty", path)
	}
	return cases, nil
}

// Run executes every case sequentially and aggregates the report.
func (r *Runner) Run(ctx context.Context, cases []Case) Report {
	report := Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Cases:     make([]CaseResult, 0, len(cases)),
	}

	passed := 0
	for _, c := range cases {
		result := r.runCase(ctx, c)
		if result.Passed {
			passed++
		}
		r.logger.Info("Evaluated case",
			zap.String("case", c.ID),
			zap.Bool("passed", result.Passed),
			zap.Float64("keyword_coverage", result.KeywordCoverage),
			zap.Int("bullets", result.BulletCount),
			zap.Int64("latency_ms", result.LatencyMS),
		)
		report.Cases = append(report.Cases, result)
	}

	if len(report.Cases) > 0 {
		report.PassRate = float64(passed) / float64(len(report.Cases))
	}
	return report
}

func (r *Runner) runCase(ctx context.Context, c Case) CaseResult {
	result := CaseResult{ID: c.ID}

	start := time.Now()
	exp, err := r.explainer.Explain(ctx, domain.Post{Text: c.PostText, ImageURL: c.ImageURL})
	result.LatencyMS = time.Since(start).Milliseconds()

	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.BulletCount = len(exp.Bullets)
	result.SourceCount = len(exp.Sources)
	for _, b := range exp.Bullets {
		result.CitationCount += len(b.CitedIDs)
	}
	result.KeywordCoverage = keywordCoverage(exp.Bullets, c.ExpectedKeywords)

	result.Passed = result.BulletCount >= c.MinBullets &&
		result.KeywordCoverage >= keywordPassThreshold
	return result
}

// keywordCoverage is the fraction of expected keywords present in the
// joined bullet text, case-insensitive. No keywords means full coverage.
func keywordCoverage(bullets []domain.Bullet, keywords []string) float64 {
	if len(keywords) == 0 {
		return 1
	}

	var joined strings.Builder
	for _, b := range bullets {
		joined.WriteString(strings.ToLower(b.Text))
		joined.WriteByte('\n')
	}
	text := joined.String()

	found := 0
	for _, kw := range keywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			found++
		}
	}
	return float64(found) / float64(len(keywords))
}

// WriteReport writes the report as indented JSON.
func WriteReport(path string, report Report) error {
	raw, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
