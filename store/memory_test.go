package store

import (
	"context"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"taskhub/model"
)

func TestMemoryUserStore_InsertAndFind(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryUserStore()

	u, err := s.Insert(ctx, &model.User{Username: "alice", Email: "alice@example.com", Role: model.RoleMember})
	if err != nil {
		t.Fatalf("Insert error: %v", err)
	}
	if u.ID.IsZero() {
		t.Fatal("Insert should assign an id")
	}

	byID, err := s.FindByID(ctx, u.ID)
	if err != nil || byID.Username != "alice" {
		t.Errorf("FindByID = %+v, %v", byID, err)
	}
	byEmail, err := s.FindByEmail(ctx, "alice@example.com")
	if err != nil || byEmail.ID != u.ID {
		t.Errorf("FindByEmail = %+v, %v", byEmail, err)
	}
	if _, err := s.FindByID(ctx, primitive.NewObjectID()); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryUserStore_Duplicate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryUserStore()

	s.Insert(ctx, &model.User{Username: "alice", Email: "alice@example.com"})

	if _, err := s.Insert(ctx, &model.User{Username: "alice", Email: "other@example.com"}); err != ErrDuplicate {
		t.Errorf("duplicate username: got %v, want ErrDuplicate", err)
	}
	if _, err := s.Insert(ctx, &model.User{Username: "other", Email: "alice@example.com"}); err != ErrDuplicate {
		t.Errorf("duplicate email: got %v, want ErrDuplicate", err)
	}
}

func TestMemoryTaskStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryTaskStore()

	task, err := s.Insert(ctx, &model.Task{
		Title:      "write minutes",
		Status:     model.StatusPending,
		Priority:   model.PriorityMedium,
		AssignedTo: primitive.NewObjectID(),
		CreatedBy:  primitive.NewObjectID(),
		Tags:       []string{"a", "b"},
	})
	if err != nil {
		t.Fatalf("Insert error: %v", err)
	}
	if task.CreatedAt.IsZero() || task.UpdatedAt.IsZero() {
		t.Error("timestamps should be set on insert")
	}

	got, err := s.FindByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("FindByID error: %v", err)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "a" || got.Tags[1] != "b" {
		t.Errorf("tags round-trip = %v, want [a b]", got.Tags)
	}

	// Mutating the returned copy must not touch the stored record.
	got.Title = "mutated"
	again, _ := s.FindByID(ctx, task.ID)
	if again.Title != "write minutes" {
		t.Error("FindByID should return a copy")
	}
}

func TestMemoryTaskStore_SaveBumpsUpdatedAt(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryTaskStore()

	task, _ := s.Insert(ctx, &model.Task{Title: "t"})
	before := task.UpdatedAt

	time.Sleep(2 * time.Millisecond)
	task.Status = model.StatusCompleted
	saved, err := s.Save(ctx, task)
	if err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if !saved.UpdatedAt.After(before) {
		t.Error("Save should bump updatedAt")
	}

	missing := task.Clone()
	missing.ID = primitive.NewObjectID()
	if _, err := s.Save(ctx, missing); err != ErrNotFound {
		t.Errorf("Save missing = %v, want ErrNotFound", err)
	}
}

func TestMemoryTaskStore_Delete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryTaskStore()

	task, _ := s.Insert(ctx, &model.Task{Title: "t"})
	if err := s.DeleteByID(ctx, task.ID); err != nil {
		t.Fatalf("DeleteByID error: %v", err)
	}
	if _, err := s.FindByID(ctx, task.ID); err != ErrNotFound {
		t.Errorf("after delete: got %v, want ErrNotFound", err)
	}
	if err := s.DeleteByID(ctx, task.ID); err != ErrNotFound {
		t.Errorf("double delete: got %v, want ErrNotFound", err)
	}
}

func TestMemoryTaskStore_FindAllOrder(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryTaskStore()

	first, _ := s.Insert(ctx, &model.Task{Title: "first"})
	time.Sleep(2 * time.Millisecond)
	s.Insert(ctx, &model.Task{Title: "second"})
	time.Sleep(2 * time.Millisecond)

	// Touch the first task so it becomes the most recently updated.
	first.Priority = model.PriorityHigh
	s.Save(ctx, first)

	tasks, err := s.FindAll(ctx)
	if err != nil {
		t.Fatalf("FindAll error: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("len = %d, want 2", len(tasks))
	}
	if tasks[0].Title != "first" {
		t.Errorf("FindAll[0] = %q, want most recently updated first", tasks[0].Title)
	}
}

func TestMemoryTaskStore_CountByStatus(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryTaskStore()

	me := primitive.NewObjectID()
	other := primitive.NewObjectID()

	s.Insert(ctx, &model.Task{Title: "a", Status: model.StatusPending, AssignedTo: me, CreatedBy: other})
	s.Insert(ctx, &model.Task{Title: "b", Status: model.StatusPending, AssignedTo: other, CreatedBy: me})
	s.Insert(ctx, &model.Task{Title: "c", Status: model.StatusCompleted, AssignedTo: me, CreatedBy: me})
	s.Insert(ctx, &model.Task{Title: "d", Status: model.StatusCompleted, AssignedTo: other, CreatedBy: other})

	counts, err := s.CountByStatus(ctx, me)
	if err != nil {
		t.Fatalf("CountByStatus error: %v", err)
	}
	if counts[model.StatusPending] != 2 {
		t.Errorf("pending = %d, want 2", counts[model.StatusPending])
	}
	if counts[model.StatusCompleted] != 1 {
		t.Errorf("completed = %d, want 1", counts[model.StatusCompleted])
	}
}
