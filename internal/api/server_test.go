package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/tab_arbor/internal/restore"
	"github.com/dgnsrekt/tab_arbor/internal/snapshot"
)

type stubService struct {
	records map[string]*snapshot.Record
}

func newStubService() *stubService {
	return &stubService{records: make(map[string]*snapshot.Record)}
}

func (s *stubService) CreateSnapshot(_ context.Context, name string, autoSave bool) (*snapshot.Record, error) {
	rec := &snapshot.Record{
		ID:         snapshot.NewID(),
		CreatedAt:  time.Now().UTC(),
		Name:       name,
		IsAutoSave: autoSave,
		Data:       snapshot.Data{Tabs: []snapshot.TabRecord{}},
	}
	s.records[rec.ID] = rec
	return rec, nil
}

func (s *stubService) RestoreSnapshot(_ context.Context, payload []byte, _ bool) (restore.Result, error) {
	rec, err := snapshot.Decode(payload)
	if err != nil {
		return restore.Result{}, err
	}
	if err := rec.Validate(); err != nil {
		return restore.Result{}, err
	}
	return restore.Result{SnapshotID: rec.ID, Created: len(rec.Data.Tabs)}, nil
}

func (s *stubService) RestoreByID(_ context.Context, id string, _ bool) (restore.Result, error) {
	rec, ok := s.records[id]
	if !ok {
		return restore.Result{}, snapshot.NewError(snapshot.CodeNotFound, "snapshot "+id+" not found", nil)
	}
	return restore.Result{SnapshotID: rec.ID, Created: len(rec.Data.Tabs)}, nil
}

func (s *stubService) GetSnapshot(_ context.Context, id string) (*snapshot.Record, error) {
	rec, ok := s.records[id]
	if !ok {
		return nil, snapshot.NewError(snapshot.CodeNotFound, "snapshot "+id+" not found", nil)
	}
	return rec, nil
}

func (s *stubService) ListSnapshots(context.Context) ([]snapshot.Meta, error) {
	out := make([]snapshot.Meta, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.Meta())
	}
	return out, nil
}

func (s *stubService) DeleteSnapshot(_ context.Context, id string) error {
	delete(s.records, id)
	return nil
}

func (s *stubService) CountSnapshots(context.Context) (int, error) {
	return len(s.records), nil
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestCreateThenGetSnapshot(t *testing.T) {
	h := NewServer(newStubService())

	w := doRequest(t, h, http.MethodPost, "/api/v1/snapshots", `{"name":"my tabs"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var created snapshot.Record
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created.Name != "my tabs" {
		t.Fatalf("created name = %q", created.Name)
	}

	w = doRequest(t, h, http.MethodGet, "/api/v1/snapshots/"+created.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestGetUnknownSnapshotIs404(t *testing.T) {
	h := NewServer(newStubService())
	w := doRequest(t, h, http.MethodGet, "/api/v1/snapshots/snapshot-missing", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestRestoreMalformedPayloadIs400(t *testing.T) {
	h := NewServer(newStubService())
	w := doRequest(t, h, http.MethodPost, "/api/v1/snapshots/restore", `{"jsonData":"{\"nope\":true}"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400; body = %s", w.Code, w.Body.String())
	}
}

func TestRestorePayloadReportsCreated(t *testing.T) {
	rec := &snapshot.Record{
		ID:        snapshot.NewID(),
		CreatedAt: time.Now().UTC(),
		Name:      "wire",
		Data: snapshot.Data{
			Tabs: []snapshot.TabRecord{{Index: 0, URL: "https://a.example"}},
		},
	}
	payload, err := snapshot.Encode(rec)
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	body, err := json.Marshal(map[string]any{"jsonData": string(payload), "closeCurrentTabs": true})
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}

	h := NewServer(newStubService())
	w := doRequest(t, h, http.MethodPost, "/api/v1/snapshots/restore", string(body))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var result restore.Result
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.SnapshotID != rec.ID || result.Created != 1 {
		t.Fatalf("result = %+v", result)
	}
}

func TestCountEndpoint(t *testing.T) {
	svc := newStubService()
	if _, err := svc.CreateSnapshot(context.Background(), "one", false); err != nil {
		t.Fatalf("seed: %v", err)
	}
	h := NewServer(svc)

	w := doRequest(t, h, http.MethodGet, "/api/v1/snapshots/count", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var out struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode count: %v", err)
	}
	if out.Count != 1 {
		t.Fatalf("count = %d, want 1", out.Count)
	}
}

func TestDocsServed(t *testing.T) {
	h := NewServer(newStubService())
	w := doRequest(t, h, http.MethodGet, "/docs", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `data-theme="dark"`) {
		t.Fatalf("docs missing dark theme marker")
	}
}
