package models

import (
	"context"
	"testing"
	"time"
)

func TestFindProcessableQueueIdsOrdersByOldestPendingWork(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	newer, err := CreateOrderQueue(db, 1, QueueTypeUnshipped)
	if err != nil {
		t.Fatalf("CreateOrderQueue: %v", err)
	}
	older, err := CreateOrderQueue(db, 1, QueueTypeUnshipped)
	if err != nil {
		t.Fatalf("CreateOrderQueue: %v", err)
	}

	// the line in the second header is older, so that header goes first
	base := time.Now().UTC().Add(-time.Hour)
	for _, seed := range []struct {
		queue     *OrderQueue
		createdAt time.Time
	}{
		{newer, base.Add(30 * time.Minute)},
		{older, base},
	} {
		line, err := AddOrderQueueLine(db, seed.queue, "order-"+seed.createdAt.Format("150405"), []byte("[]"))
		if err != nil {
			t.Fatalf("AddOrderQueueLine: %v", err)
		}
		if err := db.Model(&OrderQueueLine{}).Where("id = ?", line.ID).
			Update("created_at", seed.createdAt).Error; err != nil {
			t.Fatalf("backdate line: %v", err)
		}
	}

	ids, err := FindProcessableQueueIds(ctx, 1, QueueTypeUnshipped)
	if err != nil {
		t.Fatalf("FindProcessableQueueIds: %v", err)
	}
	if len(ids) != 2 || ids[0] != older.ID || ids[1] != newer.ID {
		t.Fatalf("ids = %v, want [%d %d]", ids, older.ID, newer.ID)
	}
}

func TestFindProcessableQueueIdsSkipsParkedAndForeignQueues(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	parked, _ := CreateOrderQueue(db, 1, QueueTypeUnshipped)
	if _, err := AddOrderQueueLine(db, parked, "a", []byte("[]")); err != nil {
		t.Fatalf("AddOrderQueueLine: %v", err)
	}
	if err := MarkQueueActionRequired(db, parked.ID); err != nil {
		t.Fatalf("MarkQueueActionRequired: %v", err)
	}

	otherInstance, _ := CreateOrderQueue(db, 2, QueueTypeUnshipped)
	if _, err := AddOrderQueueLine(db, otherInstance, "b", []byte("[]")); err != nil {
		t.Fatalf("AddOrderQueueLine: %v", err)
	}

	shipped, _ := CreateOrderQueue(db, 1, QueueTypeShipped)
	if _, err := AddOrderQueueLine(db, shipped, "c", []byte("[]")); err != nil {
		t.Fatalf("AddOrderQueueLine: %v", err)
	}

	ids, err := FindProcessableQueueIds(ctx, 1, QueueTypeUnshipped)
	if err != nil {
		t.Fatalf("FindProcessableQueueIds: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("ids = %v, want none", ids)
	}
}

func TestRollupQueueState(t *testing.T) {
	db := setupTestDB(t)

	cases := []struct {
		name   string
		states []string
		want   string
	}{
		{"all done", []string{QueueLineStateDone, QueueLineStateDone}, QueueStateDone},
		{"done and cancelled", []string{QueueLineStateDone, QueueLineStateCancel}, QueueStateDone},
		{"only failed", []string{QueueLineStateFailed, QueueLineStateFailed}, QueueStateFailed},
		{"mixed progress", []string{QueueLineStateDone, QueueLineStateDraft}, QueueStatePartial},
		{"failed with draft", []string{QueueLineStateFailed, QueueLineStateDraft}, QueueStatePartial},
		{"untouched", []string{QueueLineStateDraft}, QueueStateDraft},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			queue, err := CreateOrderQueue(db, 1, QueueTypeUnshipped)
			if err != nil {
				t.Fatalf("CreateOrderQueue: %v", err)
			}
			for i, state := range tc.states {
				line, err := AddOrderQueueLine(db, queue, "o", []byte("[]"))
				if err != nil {
					t.Fatalf("AddOrderQueueLine %d: %v", i, err)
				}
				if err := db.Model(&OrderQueueLine{}).Where("id = ?", line.ID).
					Update("state", state).Error; err != nil {
					t.Fatalf("set line state: %v", err)
				}
			}
			got, err := RollupQueueState(db, queue.ID)
			if err != nil {
				t.Fatalf("RollupQueueState: %v", err)
			}
			if got != tc.want {
				t.Fatalf("state = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestResetFailedQueueLines(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	queue, _ := CreateOrderQueue(db, 1, QueueTypeUnshipped)
	failed, _ := AddOrderQueueLine(db, queue, "a", []byte("[]"))
	done, _ := AddOrderQueueLine(db, queue, "b", []byte("[]"))
	_ = db.Model(&OrderQueueLine{}).Where("id = ?", failed.ID).Update("state", QueueLineStateFailed).Error
	_ = db.Model(&OrderQueueLine{}).Where("id = ?", done.ID).Update("state", QueueLineStateDone).Error
	_ = MarkQueueActionRequired(db, queue.ID)
	for i := 0; i < 4; i++ {
		if _, err := IncrementQueueProcessCount(db, queue.ID); err != nil {
			t.Fatalf("IncrementQueueProcessCount: %v", err)
		}
	}

	reset, err := ResetFailedQueueLines(ctx, queue.ID)
	if err != nil {
		t.Fatalf("ResetFailedQueueLines: %v", err)
	}
	if reset != 1 {
		t.Fatalf("reset %d lines, want 1", reset)
	}

	got, err := GetOrderQueue(ctx, queue.ID)
	if err != nil {
		t.Fatalf("GetOrderQueue: %v", err)
	}
	if got.ProcessCount != 0 || got.State != QueueStateDraft {
		t.Fatalf("queue not reset: count=%d state=%s", got.ProcessCount, got.State)
	}
	if got.IsActionRequired == nil || *got.IsActionRequired {
		t.Fatal("action-required flag not cleared")
	}

	lines, err := GetDraftQueueLines(ctx, queue.ID)
	if err != nil {
		t.Fatalf("GetDraftQueueLines: %v", err)
	}
	if len(lines) != 1 || lines[0].ID != failed.ID {
		t.Fatalf("draft lines = %+v, want only the failed line back", lines)
	}
}

func TestDeleteQueueIfEmpty(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	empty, _ := CreateOrderQueue(db, 1, QueueTypeUnshipped)
	if err := DeleteQueueIfEmpty(db, empty.ID); err != nil {
		t.Fatalf("DeleteQueueIfEmpty: %v", err)
	}
	if _, err := GetOrderQueue(ctx, empty.ID); err == nil {
		t.Fatal("empty queue not deleted")
	}

	kept, _ := CreateOrderQueue(db, 1, QueueTypeUnshipped)
	if _, err := AddOrderQueueLine(db, kept, "a", []byte("[]")); err != nil {
		t.Fatalf("AddOrderQueueLine: %v", err)
	}
	if err := DeleteQueueIfEmpty(db, kept.ID); err != nil {
		t.Fatalf("DeleteQueueIfEmpty: %v", err)
	}
	if _, err := GetOrderQueue(ctx, kept.ID); err != nil {
		t.Fatalf("queue with lines was deleted: %v", err)
	}
}
