// Package fakedrive is an in-process Drive v2 backend for tests. It serves
// the subset of the API drivevfs uses, counts calls per kind, and lets tests
// inject failures or block requests at a chosen point.
package fakedrive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	drive "google.golang.org/api/drive/v2"
)

// RootID is the ID of the pre-created root folder.
const RootID = "root"

const (
	googleAppsPrefix = "application/vnd.google-apps."
	folderMimeType   = googleAppsPrefix + "folder"
)

// Kind identifies a class of backend call.
type Kind string

// Call kinds.
const (
	KindGet      Kind = "get"
	KindList     Kind = "list"
	KindCreate   Kind = "create"
	KindUpload   Kind = "upload"
	KindDownload Kind = "download"
)

type object struct {
	id       string
	title    string
	mimeType string
	parent   string
	content  []byte
	modified time.Time
	version  int
	editable bool
	starred  bool
}

// Server is a fake Drive v2 API on an httptest server.
type Server struct {
	srv *httptest.Server

	mu       sync.Mutex
	objects  map[string]*object
	children map[string][]string
	nextID   int
	calls    map[Kind]int
	failures map[Kind]failure
	token    string
	reject   int

	hookMu sync.Mutex
	hook   func(Kind, *http.Request)
}

type failure struct {
	id     string // empty matches every id
	status int
}

// New starts a fake backend and closes it when the test ends.
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		objects:  map[string]*object{},
		children: map[string][]string{},
		calls:    map[Kind]int{},
		failures: map[Kind]failure{},
	}

	s.objects[RootID] = &object{id: RootID, title: "My Drive", mimeType: folderMimeType, editable: true, version: 1}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /drive/v2/files/{id}", s.wrap(KindGet, s.handleGet))
	mux.HandleFunc("GET /drive/v2/files/{id}/children", s.wrap(KindList, s.handleList))
	mux.HandleFunc("POST /drive/v2/files", s.wrap(KindCreate, s.handleCreate))
	mux.HandleFunc("PUT /upload/drive/v2/files/{id}", s.wrap(KindUpload, s.handleUpload))
	mux.HandleFunc("GET /download/{id}", s.wrap(KindDownload, s.handleDownload))

	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)

	return s
}

// BaseURL is the metadata API root.
func (s *Server) BaseURL() string { return s.srv.URL + "/drive/v2" }

// UploadURL is the upload API root.
func (s *Server) UploadURL() string { return s.srv.URL + "/upload/drive/v2" }

// Client returns an HTTP client for the server.
func (s *Server) Client() *http.Client { return s.srv.Client() }

// RequireToken makes the server reject any Authorization header other than
// "<scheme> tok".
func (s *Server) RequireToken(tok string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = tok
}

// RejectNext answers the next n requests with 401.
func (s *Server) RejectNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reject = n
}

// Fail answers every call of kind for id (any id when empty) with status.
// A zero status clears the failure.
func (s *Server) Fail(kind Kind, id string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if status == 0 {
		delete(s.failures, kind)
		return
	}

	s.failures[kind] = failure{id: id, status: status}
}

// OnRequest installs a hook that runs before every call is handled, outside
// the server lock. Tests use it to block or observe requests.
func (s *Server) OnRequest(hook func(Kind, *http.Request)) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()

	s.hook = hook
}

// Calls returns how many calls of kind have been handled.
func (s *Server) Calls(kind Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls[kind]
}

// ResetCalls zeroes every call counter.
func (s *Server) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = map[Kind]int{}
}

// AddFolder creates a folder under parent and returns its ID.
func (s *Server) AddFolder(parent, title string) string {
	return s.add(parent, title, folderMimeType, nil)
}

// AddFile creates a file under parent and returns its ID. Duplicate titles
// are allowed, as on the real backend.
func (s *Server) AddFile(parent, title, mimeType string, content []byte) string {
	return s.add(parent, title, mimeType, content)
}

// Content returns an object's stored bytes.
func (s *Server) Content(id string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.objects[id]
	if !ok {
		return nil, false
	}

	return bytes.Clone(o.content), true
}

// ETag returns an object's current etag.
func (s *Server) ETag(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.objects[id]
	if !ok {
		return ""
	}

	return o.etag()
}

// Find returns the ID of the first child of parent named title.
func (s *Server) Find(parent, title string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.children[parent] {
		if s.objects[id].title == title {
			return id, true
		}
	}

	return "", false
}

// Remove deletes an object from the backend without touching any client cache.
func (s *Server) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.objects[id]
	if !ok {
		return
	}

	delete(s.objects, id)

	kids := s.children[o.parent]
	for i, k := range kids {
		if k == id {
			s.children[o.parent] = append(kids[:i:i], kids[i+1:]...)
			break
		}
	}
}

// SetEditable toggles an object's editable flag.
func (s *Server) SetEditable(id string, editable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o, ok := s.objects[id]; ok {
		o.editable = editable
	}
}

// SetStarred toggles an object's starred label.
func (s *Server) SetStarred(id string, starred bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o, ok := s.objects[id]; ok {
		o.starred = starred
	}
}

func (s *Server) add(parent, title, mimeType string, content []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.addLocked(parent, title, mimeType, content)
}

func (s *Server) addLocked(parent, title, mimeType string, content []byte) string {
	s.nextID++
	id := fmt.Sprintf("obj-%d", s.nextID)

	s.objects[id] = &object{
		id:       id,
		title:    title,
		mimeType: mimeType,
		parent:   parent,
		content:  bytes.Clone(content),
		modified: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(s.nextID) * time.Minute),
		version:  1,
		editable: true,
	}
	s.children[parent] = append(s.children[parent], id)

	return id
}

func (o *object) etag() string {
	return fmt.Sprintf(`"%s-v%d"`, o.id, o.version)
}

func (s *Server) resource(o *object) *drive.File {
	f := &drive.File{
		Id:           o.id,
		Title:        o.title,
		MimeType:     o.mimeType,
		Editable:     o.editable,
		Etag:         o.etag(),
		ModifiedDate: o.modified.Format(time.RFC3339),
		Labels:       &drive.FileLabels{Starred: o.starred},
	}

	if o.parent != "" {
		f.Parents = []*drive.ParentReference{{Id: o.parent}}
	}

	// Native Google types (folders, Docs) have no binary content.
	if !strings.HasPrefix(o.mimeType, googleAppsPrefix) {
		f.FileSize = int64(len(o.content))
		f.DownloadUrl = s.srv.URL + "/download/" + o.id
	}

	return f
}

// wrap runs the hook, counts the call, and applies auth and injected failures.
func (s *Server) wrap(kind Kind, h func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.hookMu.Lock()
		hook := s.hook
		s.hookMu.Unlock()

		if hook != nil {
			hook(kind, r)
		}

		s.mu.Lock()
		s.calls[kind]++

		if s.reject > 0 {
			s.reject--
			s.mu.Unlock()
			writeError(w, http.StatusUnauthorized, "Invalid Credentials")

			return
		}

		if s.token != "" && !validAuth(r.Header.Get("Authorization"), s.token) {
			s.mu.Unlock()
			writeError(w, http.StatusUnauthorized, "Invalid Credentials")

			return
		}

		if f, ok := s.failures[kind]; ok && (f.id == "" || f.id == r.PathValue("id")) {
			s.mu.Unlock()
			_, _ = io.Copy(io.Discard, r.Body) //nolint:errcheck // drain before failing
			writeError(w, f.status, http.StatusText(f.status))

			return
		}
		s.mu.Unlock()

		h(w, r)
	}
}

func validAuth(header, tok string) bool {
	_, got, ok := strings.Cut(header, " ")

	return ok && got == tok
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	o, ok := s.objects[r.PathValue("id")]

	var f *drive.File
	if ok {
		f = s.resource(o)
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "File not found: "+r.PathValue("id"))
		return
	}

	writeJSON(w, f)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s.mu.Lock()
	o, ok := s.objects[id]

	var list drive.ChildList
	if ok {
		list.Etag = fmt.Sprintf(`"children-%s-%d"`, id, len(s.children[id])+o.version)
		for _, kid := range s.children[id] {
			list.Items = append(list.Items, &drive.ChildReference{Id: kid})
		}
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "File not found: "+id)
		return
	}

	if r.URL.Query().Get("q") != "trashed=false" {
		writeError(w, http.StatusBadRequest, "unexpected query")
		return
	}

	writeJSON(w, &list)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req drive.File
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Title == "" || len(req.Parents) != 1 {
		writeError(w, http.StatusBadRequest, "title and exactly one parent required")
		return
	}

	s.mu.Lock()
	if _, ok := s.objects[req.Parents[0].Id]; !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "parent not found")

		return
	}

	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	id := s.addLocked(req.Parents[0].Id, req.Title, mimeType, nil)
	f := s.resource(s.objects[id])
	s.mu.Unlock()

	writeJSON(w, f)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("uploadType") != "media" {
		writeError(w, http.StatusBadRequest, "uploadType=media required")
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	o, ok := s.objects[r.PathValue("id")]

	var f *drive.File
	if ok {
		o.content = data
		o.version++
		o.modified = o.modified.Add(time.Hour)
		f = s.resource(o)
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}

	writeJSON(w, f)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	o, ok := s.objects[r.PathValue("id")]

	var (
		content  []byte
		modified time.Time
		title    string
	)

	if ok {
		content = bytes.Clone(o.content)
		modified = o.modified
		title = o.title
	}
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	http.ServeContent(w, r, title, modified, bytes.NewReader(content))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test server
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck // test server
		"error": map[string]any{"code": status, "message": msg},
	})
}
