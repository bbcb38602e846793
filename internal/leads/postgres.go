package leads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/KauaneAlmeida/back-end-teste/internal/intake"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// upsertColumns are overwritten on conflict unless the stored lead is
// completed and the incoming one is not.
var upsertColumns = []string{
	"stage", "name", "phone", "email", "legal_area", "case_details", "urgency",
	"qualification_score", "summary", "answers", "correlation_id",
}

var upsertAssignments = func() string {
	const keep = "intake_leads.stage = 'completed' AND EXCLUDED.stage <> 'completed'"
	parts := make([]string, 0, len(upsertColumns)+1)
	for _, col := range upsertColumns {
		parts = append(parts, fmt.Sprintf("%s = CASE WHEN %s THEN intake_leads.%s ELSE EXCLUDED.%s END", col, keep, col, col))
	}
	parts = append(parts, fmt.Sprintf("updated_at = CASE WHEN %s THEN intake_leads.updated_at ELSE now() END", keep))
	return strings.Join(parts, ",\n\t\t\t")
}()

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) SaveLead(ctx context.Context, rec intake.LeadRecord) (string, error) {
	answers, err := json.Marshal(rec.Answers)
	if err != nil {
		return "", fmt.Errorf("encode answers: %w", err)
	}

	var id string
	err = r.pool.QueryRow(ctx, `
		INSERT INTO intake_leads (
			conversation_id, session_id, platform, stage, name, phone, email,
			legal_area, case_details, urgency, qualification_score, summary,
			answers, correlation_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)
		ON CONFLICT (conversation_id) DO UPDATE SET `+upsertAssignments+`
		RETURNING id::text
	`,
		rec.ConversationID, rec.SessionID, string(rec.Platform), rec.Stage, rec.Name, rec.Phone, rec.Email,
		rec.LegalArea, rec.CaseDetails, rec.Urgency, rec.QualificationScore, rec.Summary,
		answers, rec.CorrelationID, rec.CreatedAt,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert lead: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) FindByConversation(ctx context.Context, conversationID string) (intake.LeadRecord, error) {
	var rec intake.LeadRecord
	var platform string
	var answers []byte
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, conversation_id, session_id, platform, stage, name, phone, email,
			legal_area, case_details, urgency, qualification_score, summary, answers,
			correlation_id, created_at
		FROM intake_leads
		WHERE conversation_id = $1
	`, conversationID).Scan(
		&rec.ID, &rec.ConversationID, &rec.SessionID, &platform, &rec.Stage, &rec.Name, &rec.Phone, &rec.Email,
		&rec.LegalArea, &rec.CaseDetails, &rec.Urgency, &rec.QualificationScore, &rec.Summary, &answers,
		&rec.CorrelationID, &rec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return intake.LeadRecord{}, ErrNotFound
	}
	if err != nil {
		return intake.LeadRecord{}, err
	}
	rec.Platform = intake.Platform(platform)
	if err := json.Unmarshal(answers, &rec.Answers); err != nil {
		return intake.LeadRecord{}, fmt.Errorf("decode answers: %w", err)
	}
	return rec, nil
}
