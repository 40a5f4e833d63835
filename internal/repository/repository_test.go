package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"gopherai-assistant/internal/model"
)

type recordRepository interface {
	Create(ctx context.Context, record *model.Record) error
	ListByPartition(ctx context.Context, partition model.Partition, limit int) ([]model.Record, error)
	Close() error
}

func repositories(t *testing.T) map[string]recordRepository {
	t.Helper()
	sqliteRepo, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { sqliteRepo.Close() })
	return map[string]recordRepository{
		"memory": NewMemoryRepository(),
		"sqlite": sqliteRepo,
	}
}

func TestRepository_ListNewestFirstPerPartition(t *testing.T) {
	ctx := context.Background()
	alice := model.Partition{AppID: "app", UserID: "alice"}
	bob := model.Partition{AppID: "app", UserID: "bob"}
	base := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 3; i++ {
				rec := model.NewInteraction(alice, "answer", fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
				rec.ID = fmt.Sprintf("alice-%d", i)
				rec.Timestamp = base.Add(time.Duration(i) * time.Millisecond)
				if err := repo.Create(ctx, rec); err != nil {
					t.Fatalf("Create: %v", err)
				}
			}
			fb := model.NewFeedback(alice, "alice-2", false)
			fb.ID = "alice-fb"
			fb.Timestamp = base.Add(10 * time.Millisecond)
			if err := repo.Create(ctx, fb); err != nil {
				t.Fatalf("Create feedback: %v", err)
			}
			other := model.NewInteraction(bob, "generate", "poem", "roses")
			other.ID = "bob-0"
			other.Timestamp = base
			if err := repo.Create(ctx, other); err != nil {
				t.Fatalf("Create: %v", err)
			}

			got, err := repo.ListByPartition(ctx, alice, 0)
			if err != nil {
				t.Fatalf("ListByPartition: %v", err)
			}
			wantIDs := []string{"alice-fb", "alice-2", "alice-1", "alice-0"}
			if len(got) != len(wantIDs) {
				t.Fatalf("len = %d, want %d", len(got), len(wantIDs))
			}
			for i, id := range wantIDs {
				if got[i].ID != id {
					t.Errorf("got[%d].ID = %s, want %s", i, got[i].ID, id)
				}
			}
			if got[0].FeedbackValue == nil || *got[0].FeedbackValue {
				t.Errorf("feedback value = %v, want false", got[0].FeedbackValue)
			}
			if got[0].ForInteractionID != "alice-2" || got[0].Type != model.TypeFeedback {
				t.Errorf("feedback record = %+v", got[0])
			}
			if got[1].FeedbackValue != nil {
				t.Errorf("interaction feedback value = %v, want unset", *got[1].FeedbackValue)
			}
			if !got[3].Timestamp.Equal(base) {
				t.Errorf("timestamp = %v, want %v", got[3].Timestamp, base)
			}

			limited, err := repo.ListByPartition(ctx, alice, 2)
			if err != nil {
				t.Fatalf("ListByPartition: %v", err)
			}
			if len(limited) != 2 {
				t.Errorf("limited len = %d, want 2", len(limited))
			}
		})
	}
}

func TestRepository_ZeroLimitListsWholePartition(t *testing.T) {
	ctx := context.Background()
	p := model.Partition{AppID: "app", UserID: "heavy"}
	base := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 600; i++ {
				rec := model.NewInteraction(p, "answer", "q", "a")
				rec.ID = fmt.Sprintf("r-%03d", i)
				rec.Timestamp = base.Add(time.Duration(i) * time.Millisecond)
				if err := repo.Create(ctx, rec); err != nil {
					t.Fatalf("Create: %v", err)
				}
			}
			got, err := repo.ListByPartition(ctx, p, 0)
			if err != nil {
				t.Fatalf("ListByPartition: %v", err)
			}
			if len(got) != 600 {
				t.Fatalf("len = %d, want 600", len(got))
			}
			if got[0].ID != "r-599" || got[599].ID != "r-000" {
				t.Errorf("order: head %s tail %s", got[0].ID, got[599].ID)
			}
		})
	}
}

func TestMemoryRepository_DuplicateID(t *testing.T) {
	repo := NewMemoryRepository()
	rec := model.NewInteraction(model.Partition{AppID: "a", UserID: "u"}, "answer", "q", "a")
	rec.ID = "same"
	if err := repo.Create(context.Background(), rec); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Create(context.Background(), rec); err == nil {
		t.Fatal("expected duplicate id error")
	}
}
