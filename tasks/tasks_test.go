package tasks

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"taskhub/errors"
	"taskhub/identity"
	"taskhub/logging"
	"taskhub/model"
	"taskhub/store"
)

type fixture struct {
	handlers *Handlers
	tasks    *store.MemoryTaskStore
	users    *store.MemoryUserStore
	admin    *identity.Identity
	alice    *identity.Identity // regular member
	bob      *identity.Identity // regular member
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	users := store.NewMemoryUserStore()

	seed := func(username string, role model.Role) *identity.Identity {
		u, err := users.Insert(ctx, &model.User{
			Username: username,
			Email:    username + "@example.com",
			Role:     role,
		})
		if err != nil {
			t.Fatalf("seeding %s: %v", username, err)
		}
		return identity.FromUser(u)
	}

	taskStore := store.NewMemoryTaskStore()
	log := logging.New()
	log.SetLevel(logging.LevelError)

	return &fixture{
		handlers: NewHandlers(taskStore, users, log),
		tasks:    taskStore,
		users:    users,
		admin:    seed("root", model.RoleAdmin),
		alice:    seed("alice", model.RoleMember),
		bob:      seed("bob", model.RoleMember),
	}
}

func (f *fixture) create(t *testing.T, actor *identity.Identity, in CreateInput) *MutationResult {
	t.Helper()
	result, err := f.handlers.Create(context.Background(), actor, in)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	return result
}

func (f *fixture) updateInput(fields map[string]interface{}) *UpdateInput {
	in := &UpdateInput{}
	for k, v := range fields {
		in.Requested = append(in.Requested, k)
		switch k {
		case FieldStatus:
			s := model.Status(v.(string))
			in.Status = &s
		case FieldPriority:
			p := model.Priority(v.(string))
			in.Priority = &p
		case FieldAssignedTo:
			id := v.(string)
			in.AssignedTo = &id
		}
	}
	return in
}

// --- Create ---

func TestCreateSelfAssign(t *testing.T) {
	f := newFixture(t)

	result := f.create(t, f.alice, CreateInput{
		Title:      "write minutes",
		AssignedTo: f.alice.ID.Hex(),
		Tags:       []string{"a", "b"},
	})

	if result.Kind != MutationCreated {
		t.Errorf("Kind = %v", result.Kind)
	}
	task := result.Task
	if task.Status != model.StatusPending {
		t.Errorf("Status = %v, want pending", task.Status)
	}
	if task.Priority != model.PriorityMedium {
		t.Errorf("Priority = %v, want default medium", task.Priority)
	}
	if task.CreatedBy.Username != "alice" || task.AssignedTo.Username != "alice" {
		t.Errorf("joined refs = %+v / %+v", task.CreatedBy, task.AssignedTo)
	}
	if !reflect.DeepEqual(task.Tags, []string{"a", "b"}) {
		t.Errorf("tags = %v, want [a b] in order", task.Tags)
	}

	// Round-trip through the store preserves tag order.
	got, err := f.handlers.Get(context.Background(), f.alice, task.ID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if !reflect.DeepEqual(got.Tags, []string{"a", "b"}) {
		t.Errorf("round-trip tags = %v, want [a b]", got.Tags)
	}
}

func TestCreateForOtherForbiddenForMember(t *testing.T) {
	f := newFixture(t)

	_, err := f.handlers.Create(context.Background(), f.alice, CreateInput{
		Title:      "delegate this",
		AssignedTo: f.bob.ID.Hex(),
	})
	if !errors.Is(err, errors.CodeForbidden) {
		t.Fatalf("code = %v, want FORBIDDEN", errors.CodeOf(err))
	}

	all, _ := f.tasks.FindAll(context.Background())
	if len(all) != 0 {
		t.Error("forbidden create must not persist")
	}
}

func TestCreateForOtherAllowedForAdmin(t *testing.T) {
	f := newFixture(t)

	result := f.create(t, f.admin, CreateInput{
		Title:      "review incident",
		AssignedTo: f.bob.ID.Hex(),
	})

	if result.Task.AssignedTo.Username != "bob" {
		t.Errorf("AssignedTo = %+v, want bob", result.Task.AssignedTo)
	}
	if result.Task.CreatedBy.Username != "root" {
		t.Errorf("CreatedBy = %+v, want root", result.Task.CreatedBy)
	}
	if result.AssigneeID != f.bob.ID.Hex() {
		t.Errorf("AssigneeID = %q", result.AssigneeID)
	}
}

func TestCreateUnresolvedAssignee(t *testing.T) {
	f := newFixture(t)

	_, err := f.handlers.Create(context.Background(), f.admin, CreateInput{
		Title:      "ghost assignment",
		AssignedTo: primitive.NewObjectID().Hex(),
	})
	if !errors.Is(err, errors.CodeInvalidReference) {
		t.Fatalf("code = %v, want INVALID_REFERENCE", errors.CodeOf(err))
	}
}

func TestCreatePastDueDateFailsBeforePersistence(t *testing.T) {
	f := newFixture(t)

	yesterday := time.Now().Add(-24 * time.Hour)
	_, err := f.handlers.Create(context.Background(), f.alice, CreateInput{
		Title:      "too late",
		AssignedTo: f.alice.ID.Hex(),
		DueDate:    &yesterday,
	})
	if !errors.Is(err, errors.CodeValidation) {
		t.Fatalf("code = %v, want VALIDATION", errors.CodeOf(err))
	}

	all, _ := f.tasks.FindAll(context.Background())
	if len(all) != 0 {
		t.Error("validation failure must precede any persistence call")
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	self := f.alice.ID.Hex()

	long := make([]byte, model.TitleMaxLen+1)
	for i := range long {
		long[i] = 'x'
	}

	tests := []struct {
		name string
		in   CreateInput
	}{
		{"empty title", CreateInput{Title: "   ", AssignedTo: self}},
		{"title too long", CreateInput{Title: string(long), AssignedTo: self}},
		{"bad priority", CreateInput{Title: "t", AssignedTo: self, Priority: "critical"}},
		{"bad assignee id", CreateInput{Title: "t", AssignedTo: "not-an-id"}},
		{"empty tag", CreateInput{Title: "t", AssignedTo: self, Tags: []string{"ok", " "}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.handlers.Create(context.Background(), f.alice, tt.in)
			if !errors.Is(err, errors.CodeValidation) {
				t.Errorf("code = %v, want VALIDATION", errors.CodeOf(err))
			}
		})
	}
}

func TestCreateLimitsCountCharacters(t *testing.T) {
	f := newFixture(t)
	self := f.alice.ID.Hex()

	// 120 three-byte characters: within the 200-character title limit
	// even though the byte length is 360.
	title := strings.Repeat("日", 120)
	result := f.create(t, f.alice, CreateInput{
		Title:       title,
		Description: strings.Repeat("誌", model.DescriptionMaxLen),
		AssignedTo:  self,
		Tags:        []string{strings.Repeat("é", model.TagMaxLen)},
	})
	if result.Task.Title != title {
		t.Errorf("Title = %q, want the multibyte title unchanged", result.Task.Title)
	}

	// One character over still fails.
	_, err := f.handlers.Create(context.Background(), f.alice, CreateInput{
		Title:      strings.Repeat("日", model.TitleMaxLen+1),
		AssignedTo: self,
	})
	if !errors.Is(err, errors.CodeValidation) {
		t.Errorf("code = %v, want VALIDATION", errors.CodeOf(err))
	}
}

// --- Update ---

func TestUpdateCreatorMaySetPriority(t *testing.T) {
	f := newFixture(t)

	// Alice creates for herself, then an admin reassigns to Bob:
	// Alice remains creator but is no longer the assignee.
	created := f.create(t, f.alice, CreateInput{Title: "handover", AssignedTo: f.alice.ID.Hex()})
	f.handlers.Update(context.Background(), f.admin, created.TaskID,
		f.updateInput(map[string]interface{}{FieldAssignedTo: f.bob.ID.Hex()}))

	result, err := f.handlers.Update(context.Background(), f.alice, created.TaskID,
		f.updateInput(map[string]interface{}{FieldPriority: "urgent"}))
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if result.Task.Priority != model.PriorityUrgent {
		t.Errorf("Priority = %v, want urgent", result.Task.Priority)
	}
	if result.Reassigned {
		t.Error("priority change must not be flagged as reassignment")
	}
}

func TestUpdateAtomicDenial(t *testing.T) {
	f := newFixture(t)

	created := f.create(t, f.alice, CreateInput{Title: "handover", AssignedTo: f.alice.ID.Hex()})
	f.handlers.Update(context.Background(), f.admin, created.TaskID,
		f.updateInput(map[string]interface{}{FieldAssignedTo: f.bob.ID.Hex()}))

	id, _ := primitive.ObjectIDFromHex(created.TaskID)
	before, _ := f.tasks.FindByID(context.Background(), id)

	// Creator requests status (allowed) and assignedTo (not allowed)
	// in the same call: the entire update must fail.
	_, err := f.handlers.Update(context.Background(), f.alice, created.TaskID,
		f.updateInput(map[string]interface{}{
			FieldStatus:     "completed",
			FieldAssignedTo: f.alice.ID.Hex(),
		}))
	if !errors.Is(err, errors.CodeForbidden) {
		t.Fatalf("code = %v, want FORBIDDEN", errors.CodeOf(err))
	}

	after, _ := f.tasks.FindByID(context.Background(), id)
	if !reflect.DeepEqual(before, after) {
		t.Errorf("denied update mutated the record:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestUpdateAssigneeOnlyStatus(t *testing.T) {
	f := newFixture(t)

	created := f.create(t, f.admin, CreateInput{Title: "assigned work", AssignedTo: f.bob.ID.Hex()})

	// Bob is assignee only: status is allowed.
	result, err := f.handlers.Update(context.Background(), f.bob, created.TaskID,
		f.updateInput(map[string]interface{}{FieldStatus: "in_progress"}))
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if result.Task.Status != model.StatusInProgress {
		t.Errorf("Status = %v", result.Task.Status)
	}

	// Priority is not.
	_, err = f.handlers.Update(context.Background(), f.bob, created.TaskID,
		f.updateInput(map[string]interface{}{FieldPriority: "high"}))
	if !errors.Is(err, errors.CodeForbidden) {
		t.Errorf("code = %v, want FORBIDDEN", errors.CodeOf(err))
	}
}

func TestUpdateUnrelatedActorForbidden(t *testing.T) {
	f := newFixture(t)

	created := f.create(t, f.alice, CreateInput{Title: "private", AssignedTo: f.alice.ID.Hex()})

	_, err := f.handlers.Update(context.Background(), f.bob, created.TaskID,
		f.updateInput(map[string]interface{}{FieldStatus: "completed"}))
	if !errors.Is(err, errors.CodeForbidden) {
		t.Errorf("code = %v, want FORBIDDEN", errors.CodeOf(err))
	}
}

func TestUpdateUnknownFieldForbidden(t *testing.T) {
	f := newFixture(t)

	created := f.create(t, f.admin, CreateInput{Title: "locked title", AssignedTo: f.admin.ID.Hex()})

	// Even an admin may not update fields outside the policy table.
	in := &UpdateInput{Requested: []string{"title"}}
	_, err := f.handlers.Update(context.Background(), f.admin, created.TaskID, in)
	if !errors.Is(err, errors.CodeForbidden) {
		t.Errorf("code = %v, want FORBIDDEN", errors.CodeOf(err))
	}
}

func TestUpdateReassignment(t *testing.T) {
	f := newFixture(t)

	created := f.create(t, f.admin, CreateInput{Title: "shift work", AssignedTo: f.alice.ID.Hex()})

	result, err := f.handlers.Update(context.Background(), f.admin, created.TaskID,
		f.updateInput(map[string]interface{}{FieldAssignedTo: f.bob.ID.Hex()}))
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}

	if !result.Reassigned {
		t.Fatal("Reassigned should be true")
	}
	if result.PrevAssigneeID != f.alice.ID.Hex() {
		t.Errorf("PrevAssigneeID = %q, want alice", result.PrevAssigneeID)
	}
	if result.AssigneeID != f.bob.ID.Hex() {
		t.Errorf("AssigneeID = %q, want bob", result.AssigneeID)
	}
}

func TestUpdateSameAssigneeNotReassignment(t *testing.T) {
	f := newFixture(t)

	created := f.create(t, f.admin, CreateInput{Title: "steady", AssignedTo: f.alice.ID.Hex()})

	result, err := f.handlers.Update(context.Background(), f.admin, created.TaskID,
		f.updateInput(map[string]interface{}{FieldAssignedTo: f.alice.ID.Hex()}))
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if result.Reassigned {
		t.Error("assigning to the current assignee is not a reassignment")
	}
}

func TestUpdateReassignToUnknownUser(t *testing.T) {
	f := newFixture(t)

	created := f.create(t, f.admin, CreateInput{Title: "dangling", AssignedTo: f.alice.ID.Hex()})

	_, err := f.handlers.Update(context.Background(), f.admin, created.TaskID,
		f.updateInput(map[string]interface{}{FieldAssignedTo: primitive.NewObjectID().Hex()}))
	if !errors.Is(err, errors.CodeInvalidReference) {
		t.Errorf("code = %v, want INVALID_REFERENCE", errors.CodeOf(err))
	}
}

func TestUpdateMissingTask(t *testing.T) {
	f := newFixture(t)

	_, err := f.handlers.Update(context.Background(), f.admin, primitive.NewObjectID().Hex(),
		f.updateInput(map[string]interface{}{FieldStatus: "completed"}))
	if !errors.Is(err, errors.CodeNotFound) {
		t.Errorf("code = %v, want NOT_FOUND", errors.CodeOf(err))
	}

	_, err = f.handlers.Update(context.Background(), f.admin, "not-an-id",
		f.updateInput(map[string]interface{}{FieldStatus: "completed"}))
	if !errors.Is(err, errors.CodeValidation) {
		t.Errorf("code = %v, want VALIDATION", errors.CodeOf(err))
	}
}

// --- Delete ---

func TestDeleteByCreator(t *testing.T) {
	f := newFixture(t)

	created := f.create(t, f.alice, CreateInput{Title: "ephemeral", AssignedTo: f.alice.ID.Hex()})

	result, err := f.handlers.Delete(context.Background(), f.alice, created.TaskID)
	if err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if result.Kind != MutationDeleted || result.TaskID != created.TaskID {
		t.Errorf("result = %+v", result)
	}
	if result.Task != nil {
		t.Error("deleted result must not carry a task record")
	}

	if _, err := f.handlers.Get(context.Background(), f.alice, created.TaskID); !errors.Is(err, errors.CodeNotFound) {
		t.Error("task should be gone after delete")
	}
}

func TestDeleteCapturesAssigneeBeforeDeletion(t *testing.T) {
	f := newFixture(t)

	created := f.create(t, f.admin, CreateInput{Title: "doomed", AssignedTo: f.bob.ID.Hex()})

	result, err := f.handlers.Delete(context.Background(), f.admin, created.TaskID)
	if err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if result.AssigneeID != f.bob.ID.Hex() {
		t.Errorf("AssigneeID = %q, want the assignee captured before deletion", result.AssigneeID)
	}
}

func TestDeleteForbiddenForAssignee(t *testing.T) {
	f := newFixture(t)

	created := f.create(t, f.admin, CreateInput{Title: "not yours", AssignedTo: f.bob.ID.Hex()})

	_, err := f.handlers.Delete(context.Background(), f.bob, created.TaskID)
	if !errors.Is(err, errors.CodeForbidden) {
		t.Errorf("code = %v, want FORBIDDEN", errors.CodeOf(err))
	}
}

// --- Read paths ---

func TestListJoinsAndAdminDirectory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.create(t, f.alice, CreateInput{Title: "one", AssignedTo: f.alice.ID.Hex()})
	f.create(t, f.admin, CreateInput{Title: "two", AssignedTo: f.bob.ID.Hex()})

	memberList, err := f.handlers.List(ctx, f.alice)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(memberList.Tasks) != 2 {
		t.Errorf("len(Tasks) = %d, want 2", len(memberList.Tasks))
	}
	if memberList.Users != nil {
		t.Error("members must not receive the user directory")
	}

	adminList, err := f.handlers.List(ctx, f.admin)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(adminList.Users) != 3 {
		t.Errorf("len(Users) = %d, want 3", len(adminList.Users))
	}
}

func TestListToleratesDanglingAssignee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created := f.create(t, f.admin, CreateInput{Title: "orphan", AssignedTo: f.bob.ID.Hex()})
	f.users.Delete(f.bob.ID)

	list, err := f.handlers.List(ctx, f.admin)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}

	var found *model.TaskView
	for _, task := range list.Tasks {
		if task.ID == created.TaskID {
			found = task
		}
	}
	if found == nil {
		t.Fatal("task missing from list")
	}
	if found.AssignedTo.Username != model.UnknownUsername {
		t.Errorf("dangling assignee rendered as %q, want %q", found.AssignedTo.Username, model.UnknownUsername)
	}
}

func TestGetStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.create(t, f.alice, CreateInput{Title: "a", AssignedTo: f.alice.ID.Hex()})
	f.create(t, f.alice, CreateInput{Title: "b", AssignedTo: f.alice.ID.Hex()})
	f.create(t, f.admin, CreateInput{Title: "unrelated", AssignedTo: f.admin.ID.Hex()})

	f.handlers.Update(ctx, f.alice, a.TaskID,
		f.updateInput(map[string]interface{}{FieldStatus: "completed"}))

	stats, err := f.handlers.GetStats(ctx, f.alice)
	if err != nil {
		t.Fatalf("GetStats error: %v", err)
	}
	if stats.Pending != 1 || stats.Completed != 1 || stats.Total != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

// --- Input parsing ---

func TestParseUpdateInput(t *testing.T) {
	in, err := ParseUpdateInput([]byte(`{"status":"completed","title":"sneaky"}`))
	if err != nil {
		t.Fatalf("ParseUpdateInput error: %v", err)
	}

	if in.Status == nil || *in.Status != model.StatusCompleted {
		t.Errorf("Status = %v", in.Status)
	}
	if len(in.Requested) != 2 {
		t.Errorf("Requested = %v, want both keys including the unknown one", in.Requested)
	}

	hasTitle := false
	for _, k := range in.Requested {
		if k == "title" {
			hasTitle = true
		}
	}
	if !hasTitle {
		t.Error("unknown keys must be kept for the policy check")
	}
}

func TestParseUpdateInputInvalid(t *testing.T) {
	if _, err := ParseUpdateInput([]byte(`not json`)); !errors.Is(err, errors.CodeValidation) {
		t.Errorf("code = %v, want VALIDATION", errors.CodeOf(err))
	}
}
