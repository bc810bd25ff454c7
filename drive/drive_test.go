package drive

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/drivebridge/drivebridge/cache"
	"github.com/drivebridge/drivebridge/resilience"
)

var (
	nameRe   = regexp.MustCompile(`name = '((?:[^'\\]|\\.)*)'`)
	parentRe = regexp.MustCompile(`'((?:[^'\\]|\\.)*)' in parents`)
)

// fakeDrive is an in-memory stand-in for the storage API.
type fakeDrive struct {
	srv *httptest.Server

	mu     sync.Mutex
	files  map[string]*File
	nextID int

	// failRemaining makes the next N requests answer 503 with a
	// backendError envelope.
	failRemaining int

	// chunkFailAt makes the Nth session chunk answer 503.
	chunkFailAt int

	listCalls     int
	createCalls   int
	deleteCalls   int
	uploadCalls   int
	sessionStarts int
	chunkPuts     int
	statusQueries int

	sessions   map[string]*fakeSession
	sessionSeq int

	// lastUpload captures the decoded parts of the most recent upload.
	lastUploadMeta    map[string]any
	lastUploadContent []byte
}

// fakeSession is one in-progress resumable upload on the fake server.
type fakeSession struct {
	name    string
	parents []string
	mime    string
	total   int64
	data    []byte
}

func newFakeDrive(t *testing.T) *fakeDrive {
	t.Helper()
	f := &fakeDrive{
		files:    make(map[string]*File),
		sessions: make(map[string]*fakeSession),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /files", f.handleList)
	mux.HandleFunc("POST /files", f.handleCreate)
	mux.HandleFunc("DELETE /files/{id}", f.handleDelete)
	mux.HandleFunc("POST /upload/files", f.handleUpload)
	mux.HandleFunc("PUT /upload/session/{id}", f.handleSessionPut)
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		failing := f.failRemaining > 0
		if failing {
			f.failRemaining--
		}
		f.mu.Unlock()
		if failing {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"error":{"code":503,"message":"Backend Error","errors":[{"reason":"backendError"}]}}`)
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeDrive) addFolder(name, parentID string) *File {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addLocked(name, folderMimeType, parentID)
}

func (f *fakeDrive) addFile(name, parentID string) *File {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addLocked(name, "text/plain", parentID)
}

func (f *fakeDrive) addLocked(name, mimeType, parentID string) *File {
	f.nextID++
	file := &File{
		ID:       fmt.Sprintf("id-%d", f.nextID),
		Name:     name,
		MimeType: mimeType,
		Parents:  []string{parentID},
	}
	f.files[file.ID] = file
	return file
}

func unescapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\'`, `'`)
	return strings.ReplaceAll(s, `\\`, `\`)
}

func (f *fakeDrive) handleList(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++

	q := r.URL.Query().Get("q")
	var name, parent string
	if m := nameRe.FindStringSubmatch(q); m != nil {
		name = unescapeQuery(m[1])
	}
	if m := parentRe.FindStringSubmatch(q); m != nil {
		parent = unescapeQuery(m[1])
	}
	wantFolder := strings.Contains(q, "mimeType = '"+folderMimeType+"'")
	excludeFolder := strings.Contains(q, "mimeType != '"+folderMimeType+"'")

	var matches []File
	for _, file := range f.files {
		if file.Name != name {
			continue
		}
		if parent != "" && (len(file.Parents) == 0 || file.Parents[0] != parent) {
			continue
		}
		isFolder := file.MimeType == folderMimeType
		if wantFolder && !isFolder {
			continue
		}
		if excludeFolder && isFolder {
			continue
		}
		matches = append(matches, *file)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"files": matches})
}

func (f *fakeDrive) handleCreate(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++

	var body struct {
		Name     string   `json:"name"`
		MimeType string   `json:"mimeType"`
		Parents  []string `json:"parents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	parent := "root"
	if len(body.Parents) > 0 {
		parent = body.Parents[0]
	}
	file := f.addLocked(body.Name, body.MimeType, parent)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(file)
}

func (f *fakeDrive) handleDelete(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++

	id := r.PathValue("id")
	if _, ok := f.files[id]; !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"code":404,"message":"File not found","errors":[{"reason":"notFound"}]}}`)
		return
	}
	delete(f.files, id)
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeDrive) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("uploadType") == "resumable" {
		f.handleStartSession(w, r)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadCalls++

	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		http.Error(w, "expected multipart body", http.StatusBadRequest)
		return
	}

	reader := multipart.NewReader(r.Body, params["boundary"])

	metaPart, err := reader.NextPart()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var meta map[string]any
	if err := json.NewDecoder(metaPart).Decode(&meta); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	mediaPart, err := reader.NextPart()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	content, err := io.ReadAll(mediaPart)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.lastUploadMeta = meta
	f.lastUploadContent = content

	parent := "root"
	if parents, ok := meta["parents"].([]any); ok && len(parents) > 0 {
		parent = parents[0].(string)
	}
	name, _ := meta["name"].(string)
	file := f.addLocked(name, mediaPart.Header.Get("Content-Type"), parent)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(file)
}

func (f *fakeDrive) handleStartSession(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessionStarts++

	var meta struct {
		Name    string   `json:"name"`
		Parents []string `json:"parents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&meta); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	total, err := strconv.ParseInt(r.Header.Get("X-Upload-Content-Length"), 10, 64)
	if err != nil {
		http.Error(w, "bad X-Upload-Content-Length", http.StatusBadRequest)
		return
	}

	f.sessionSeq++
	id := fmt.Sprintf("sess-%d", f.sessionSeq)
	f.sessions[id] = &fakeSession{
		name:    meta.Name,
		parents: meta.Parents,
		mime:    r.Header.Get("X-Upload-Content-Type"),
		total:   total,
	}
	w.Header().Set("Location", f.srv.URL+"/upload/session/"+id)
	w.WriteHeader(http.StatusOK)
}

func (f *fakeDrive) handleSessionPut(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.sessions[r.PathValue("id")]
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"code":404,"message":"Upload session not found","errors":[{"reason":"notFound"}]}}`)
		return
	}

	contentRange := r.Header.Get("Content-Range")
	if strings.HasPrefix(contentRange, "bytes */") {
		f.statusQueries++
		f.finishSessionPutLocked(w, s)
		return
	}

	f.chunkPuts++
	if f.chunkFailAt > 0 && f.chunkPuts == f.chunkFailAt {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error":{"code":503,"message":"Backend Error","errors":[{"reason":"backendError"}]}}`)
		return
	}

	var start, end, total int64
	if _, err := fmt.Sscanf(contentRange, "bytes %d-%d/%d", &start, &end, &total); err != nil {
		http.Error(w, "bad Content-Range", http.StatusBadRequest)
		return
	}
	if start != int64(len(s.data)) {
		http.Error(w, "chunk offset does not match received bytes", http.StatusBadRequest)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil || int64(len(body)) != end-start+1 {
		http.Error(w, "chunk body does not match Content-Range", http.StatusBadRequest)
		return
	}
	s.data = append(s.data, body...)

	f.finishSessionPutLocked(w, s)
}

// finishSessionPutLocked answers a session request: the created file once all
// bytes arrived, otherwise 308 with the confirmed range.
func (f *fakeDrive) finishSessionPutLocked(w http.ResponseWriter, s *fakeSession) {
	if int64(len(s.data)) == s.total {
		parent := "root"
		if len(s.parents) > 0 {
			parent = s.parents[0]
		}
		file := f.addLocked(s.name, s.mime, parent)
		f.lastUploadContent = append([]byte(nil), s.data...)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(file)
		return
	}
	if len(s.data) > 0 {
		w.Header().Set("Range", fmt.Sprintf("bytes=0-%d", len(s.data)-1))
	}
	w.WriteHeader(http.StatusPermanentRedirect)
}

// testClient builds a client against the fake server with fast retries.
func testClient(t *testing.T, f *fakeDrive, opts ...func(*Config)) *Client {
	t.Helper()

	retry, err := resilience.NewRetryPolicy(resilience.RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}

	config := Config{
		BaseURL:       f.srv.URL,
		UploadBaseURL: f.srv.URL + "/upload",
		TokenSource:   oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-token"}),
		Executor:      resilience.NewExecutor(resilience.WithRetryPolicy(retry)),
		Cache:         cache.NewMemoryCache(cache.DefaultPolicy()),
	}
	for _, opt := range opts {
		opt(&config)
	}

	client, err := NewClient(config)
	if err != nil {
		t.Fatal(err)
	}
	return client
}
