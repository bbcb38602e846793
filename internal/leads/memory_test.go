package leads

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/KauaneAlmeida/back-end-teste/internal/intake"
)

func TestSaveLeadUpsertsOnConversation(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	rec := intake.LeadRecord{ConversationID: "conv-1", Stage: intake.LeadStageCompleted, Name: "João Silva", CreatedAt: time.Now()}

	first, err := repo.SaveLead(ctx, rec)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	rec.Stage = intake.LeadStageQualified
	rec.Name = "João da Silva"
	second, err := repo.SaveLead(ctx, rec)
	if err != nil {
		t.Fatalf("save again: %v", err)
	}

	if first != second || repo.Count() != 1 {
		t.Fatalf("expected one lead, got ids %s/%s and count %d", first, second, repo.Count())
	}
	got, err := repo.FindByConversation(ctx, "conv-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Stage != intake.LeadStageCompleted || got.Name != "João Silva" {
		t.Fatalf("expected the completed snapshot to survive a late qualified save, got %+v", got)
	}
}

func TestCompletedSaveOverwritesQualified(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	rec := intake.LeadRecord{ConversationID: "conv-2", Stage: intake.LeadStageQualified, CaseDetails: "fui preso", CreatedAt: time.Now()}
	if _, err := repo.SaveLead(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	rec.Stage = intake.LeadStageCompleted
	rec.CaseDetails = "fui preso ontem em flagrante"
	if _, err := repo.SaveLead(ctx, rec); err != nil {
		t.Fatalf("save again: %v", err)
	}

	got, _ := repo.FindByConversation(ctx, "conv-2")
	if got.Stage != intake.LeadStageCompleted || got.CaseDetails != "fui preso ontem em flagrante" {
		t.Fatalf("unexpected lead %+v", got)
	}
}

func TestUpsertGuardsEveryColumn(t *testing.T) {
	for _, col := range upsertColumns {
		want := col + " = CASE WHEN intake_leads.stage = 'completed' AND EXCLUDED.stage <> 'completed' THEN intake_leads." + col
		if !strings.Contains(upsertAssignments, want) {
			t.Fatalf("column %s is not guarded in %q", col, upsertAssignments)
		}
	}
}

func TestFindUnknownConversation(t *testing.T) {
	if _, err := NewMemoryRepository().FindByConversation(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
