package store

import (
	"encoding/json"

	"task-api/api"
)

// Store holds every task and user in memory. It is not safe for concurrent
// use; wrap it in a Guarded.
type Store struct {
	tasks map[uint64]api.Task
	users map[uint64]api.User
}

func New() *Store {
	return &Store{
		tasks: make(map[uint64]api.Task),
		users: make(map[uint64]api.User),
	}
}

// InsertTask inserts t or overwrites the task with the same ID.
func (s *Store) InsertTask(t api.Task) {
	s.tasks[t.ID] = t
}

func (s *Store) GetTask(id uint64) (api.Task, bool) {
	t, ok := s.tasks[id]
	return t, ok
}

// GetAllTasks returns the tasks in no particular order.
func (s *Store) GetAllTasks() []api.Task {
	tasks := make([]api.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	return tasks
}

func (s *Store) DeleteTask(id uint64) {
	delete(s.tasks, id)
}

// UpdateTask is an upsert, same as InsertTask. It does not require the task
// to exist.
func (s *Store) UpdateTask(t api.Task) {
	s.tasks[t.ID] = t
}

// InsertUser does not check whether the username is already taken.
func (s *Store) InsertUser(u api.User) {
	s.users[u.ID] = u
}

// FindUserByUsername returns the first user with the given username. When
// several users share it, which one wins depends on map iteration order.
func (s *Store) FindUserByUsername(name string) (api.User, bool) {
	for _, u := range s.users {
		if u.Username == name {
			return u, true
		}
	}
	return api.User{}, false
}

func (s *Store) GetAllUsers() []api.User {
	users := make([]api.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	return users
}

func (s *Store) TaskCount() int { return len(s.tasks) }

func (s *Store) UserCount() int { return len(s.users) }

// document is the persisted layout: {"tasks":{"1":{...}},"users":{...}}.
type document struct {
	Tasks map[uint64]api.Task `json:"tasks"`
	Users map[uint64]api.User `json:"users"`
}

func (s *Store) MarshalJSON() ([]byte, error) {
	return json.Marshal(document{Tasks: s.tasks, Users: s.users})
}

// UnmarshalJSON re-keys every entry by its own ID.
func (s *Store) UnmarshalJSON(b []byte) error {
	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		return err
	}
	fresh := New()
	for _, t := range doc.Tasks {
		fresh.InsertTask(t)
	}
	for _, u := range doc.Users {
		fresh.InsertUser(u)
	}
	*s = *fresh
	return nil
}
