package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"

	"task-api/api"
	"task-api/store"
)

// maxBodyBytes caps every JSON request body.
const maxBodyBytes = 2 << 20

var (
	errMissingField = errors.New("missing field")
	errTrailingData = errors.New("trailing data after JSON body")
)

type server struct {
	db  *store.Guarded
	log hclog.Logger
}

// taskBody and userBody mirror api.Task and api.User with pointer fields so
// that an absent field can be told apart from a zero value.
type taskBody struct {
	ID        *uint64 `json:"id"`
	Name      *string `json:"name"`
	Completed *bool   `json:"completed"`
}

func (b taskBody) task() (api.Task, error) {
	if b.ID == nil || b.Name == nil || b.Completed == nil {
		return api.Task{}, errMissingField
	}
	return api.Task{ID: *b.ID, Name: *b.Name, Completed: *b.Completed}, nil
}

type userBody struct {
	ID       *uint64 `json:"id"`
	Username *string `json:"username"`
	Password *string `json:"password"`
}

func (b userBody) user() (api.User, error) {
	if b.ID == nil || b.Username == nil || b.Password == nil {
		return api.User{}, errMissingField
	}
	return api.User{ID: *b.ID, Username: *b.Username, Password: *b.Password}, nil
}

func (s *server) createTask(w http.ResponseWriter, r *http.Request) {
	t, ok := s.readTask(w, r)
	if !ok {
		return
	}
	s.db.InsertTask(r.Context(), t)
	w.WriteHeader(http.StatusOK)
}

func (s *server) getTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.db.GetAllTasks())
}

func (s *server) updateTask(w http.ResponseWriter, r *http.Request) {
	t, ok := s.readTask(w, r)
	if !ok {
		return
	}
	s.db.UpdateTask(r.Context(), t)
	w.WriteHeader(http.StatusOK)
}

func (s *server) getTask(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	t, ok := s.db.GetTask(id)
	if !ok {
		http.Error(w, "Task not found", http.StatusNotFound)
		return
	}
	writeJSON(w, t)
}

func (s *server) deleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	s.db.DeleteTask(r.Context(), id)
	w.WriteHeader(http.StatusOK)
}

func (s *server) register(w http.ResponseWriter, r *http.Request) {
	u, ok := s.readUser(w, r, "Values are not following rules")
	if !ok {
		return
	}
	s.db.InsertUser(r.Context(), u)
	w.WriteHeader(http.StatusOK)
}

// login only checks that the username is registered; the password is not
// compared.
func (s *server) login(w http.ResponseWriter, r *http.Request) {
	u, ok := s.readUser(w, r, "Invalid Username or Password")
	if !ok {
		return
	}
	stored, ok := s.db.FindUserByUsername(u.Username)
	if !ok || stored.Username != u.Username {
		http.Error(w, "Invalid Username or Password", http.StatusBadRequest)
		return
	}
	w.Write([]byte("User Logged in!"))
}

func (s *server) readTask(w http.ResponseWriter, r *http.Request) (api.Task, bool) {
	var b taskBody
	err := decodeJSON(w, r, &b)
	if err == nil {
		var t api.Task
		if t, err = b.task(); err == nil {
			return t, true
		}
	}
	s.rejectBody(w, r, err, "Values are not following rules")
	return api.Task{}, false
}

func (s *server) readUser(w http.ResponseWriter, r *http.Request, msg string) (api.User, bool) {
	var b userBody
	err := decodeJSON(w, r, &b)
	if err == nil {
		var u api.User
		if u, err = b.user(); err == nil {
			return u, true
		}
	}
	s.rejectBody(w, r, err, msg)
	return api.User{}, false
}

// rejectBody answers 413 for an oversized body and 400 with msg otherwise.
func (s *server) rejectBody(w http.ResponseWriter, r *http.Request, err error, msg string) {
	s.log.Debug("rejected request body", "method", r.Method, "path", r.URL.Path, "error", err)
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		http.Error(w, "Payload too large", http.StatusRequestEntityTooLarge)
		return
	}
	http.Error(w, msg, http.StatusBadRequest)
}

// decodeJSON reads exactly one JSON value from the request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errTrailingData
		}
		return err
	}
	return nil
}

// taskID parses the {id} route variable. Anything that is not a uint64 is
// treated as an unknown route.
func taskID(r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Values are not getting turned right", http.StatusInternalServerError)
	}
}
