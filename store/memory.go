package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"taskhub/model"
)

// MemoryUserStore is an in-memory UserStore for tests and dev mode.
type MemoryUserStore struct {
	mu    sync.RWMutex
	users map[primitive.ObjectID]model.User
}

// NewMemoryUserStore creates an empty in-memory user store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[primitive.ObjectID]model.User)}
}

// Insert adds a new user.
func (s *MemoryUserStore) Insert(ctx context.Context, u *model.User) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Email == u.Email || existing.Username == u.Username {
			return nil, ErrDuplicate
		}
	}

	inserted := *u
	if inserted.ID.IsZero() {
		inserted.ID = primitive.NewObjectID()
	}
	if inserted.CreatedAt.IsZero() {
		inserted.CreatedAt = time.Now().UTC()
	}
	s.users[inserted.ID] = inserted
	return &inserted, nil
}

// FindByID returns the user with the given id.
func (s *MemoryUserStore) FindByID(ctx context.Context, id primitive.ObjectID) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

// FindByEmail returns the user with the given email.
func (s *MemoryUserStore) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.findBy(func(u model.User) bool { return u.Email == email })
}

// FindByUsername returns the user with the given username.
func (s *MemoryUserStore) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.findBy(func(u model.User) bool { return u.Username == username })
}

func (s *MemoryUserStore) findBy(match func(model.User) bool) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if match(u) {
			found := u
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

// List returns all users sorted by username.
func (s *MemoryUserStore) List(ctx context.Context) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].Username < users[j].Username
	})
	return users, nil
}

// Delete removes a user. Used by tests to produce dangling references.
func (s *MemoryUserStore) Delete(id primitive.ObjectID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
}

// MemoryTaskStore is an in-memory TaskStore for tests and dev mode.
type MemoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[primitive.ObjectID]*model.Task
}

// NewMemoryTaskStore creates an empty in-memory task store.
func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{tasks: make(map[primitive.ObjectID]*model.Task)}
}

// Insert persists a new task.
func (s *MemoryTaskStore) Insert(ctx context.Context, t *model.Task) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := t.Clone()
	if inserted.ID.IsZero() {
		inserted.ID = primitive.NewObjectID()
	}
	now := time.Now().UTC()
	inserted.CreatedAt = now
	inserted.UpdatedAt = now
	if inserted.Tags == nil {
		inserted.Tags = []string{}
	}
	s.tasks[inserted.ID] = inserted
	return inserted.Clone(), nil
}

// FindByID returns the task with the given id.
func (s *MemoryTaskStore) FindByID(ctx context.Context, id primitive.ObjectID) (*model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

// Save replaces the stored record, bumping updatedAt.
func (s *MemoryTaskStore) Save(ctx context.Context, t *model.Task) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[t.ID]; !ok {
		return nil, ErrNotFound
	}
	saved := t.Clone()
	saved.UpdatedAt = time.Now().UTC()
	s.tasks[t.ID] = saved
	return saved.Clone(), nil
}

// DeleteByID removes the task.
func (s *MemoryTaskStore) DeleteByID(ctx context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(s.tasks, id)
	return nil
}

// FindAll returns every task sorted by updatedAt descending.
func (s *MemoryTaskStore) FindAll(ctx context.Context) ([]model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]model.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, *t.Clone())
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].UpdatedAt.After(tasks[j].UpdatedAt)
	})
	return tasks, nil
}

// CountByStatus groups the user's created or assigned tasks by status.
func (s *MemoryTaskStore) CountByStatus(ctx context.Context, userID primitive.ObjectID) (map[model.Status]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[model.Status]int)
	for _, t := range s.tasks {
		if t.AssignedTo == userID || t.CreatedBy == userID {
			counts[t.Status]++
		}
	}
	return counts, nil
}
