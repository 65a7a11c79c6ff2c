package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Interaction is one row of the interaction log.
type Interaction struct {
	ID            string
	Timestamp     time.Time
	TraceID       string
	Mode          string
	Outcome       string
	RelevanceTier string
	QuestionChars int
	AnswerChars   int
	Sources       int
	Latency       time.Duration
	Error         string
}

// WriteInteraction appends an entry to the interaction log. ID and
// Timestamp are filled in when empty.
func (s *Store) WriteInteraction(ctx context.Context, in Interaction) error {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO interactions
			(id, ts, trace_id, mode, outcome, relevance_tier, question_chars, answer_chars, sources, latency_ms, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ID, in.Timestamp.UTC(), in.TraceID, in.Mode, in.Outcome, nullString(in.RelevanceTier),
		in.QuestionChars, in.AnswerChars, in.Sources, in.Latency.Milliseconds(), nullString(in.Error),
	)
	if err != nil {
		return fmt.Errorf("store: write interaction: %w", err)
	}
	return nil
}

// RecentInteractions returns the newest entries first.
func (s *Store) RecentInteractions(ctx context.Context, limit int) ([]Interaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, trace_id, mode, outcome, relevance_tier, question_chars, answer_chars, sources, latency_ms, error_message
		FROM interactions
		ORDER BY ts DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query interactions: %w", err)
	}
	defer rows.Close()

	var out []Interaction
	for rows.Next() {
		var (
			in        Interaction
			tier, msg sql.NullString
			latencyMS int64
		)
		if err := rows.Scan(&in.ID, &in.Timestamp, &in.TraceID, &in.Mode, &in.Outcome, &tier,
			&in.QuestionChars, &in.AnswerChars, &in.Sources, &latencyMS, &msg); err != nil {
			return nil, fmt.Errorf("store: scan interaction: %w", err)
		}
		in.RelevanceTier = tier.String
		in.Error = msg.String
		in.Latency = time.Duration(latencyMS) * time.Millisecond
		out = append(out, in)
	}
	return out, rows.Err()
}

// OutcomeCounts tallies interactions per outcome since the given time.
func (s *Store) OutcomeCounts(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT outcome, COUNT(*) FROM interactions WHERE ts >= ? GROUP BY outcome", since.UTC())
	if err != nil {
		return nil, fmt.Errorf("store: count outcomes: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			outcome string
			n       int
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("store: scan outcome count: %w", err)
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
