package snapshot

import (
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// IDPrefix marks every snapshot id. Export files are recognised by it.
const IDPrefix = "snapshot-"

// View is a named grouping of tabs. Views are immutable once persisted
// inside a snapshot.
type View struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// TabRecord is one tab's serialized attributes. Index is a snapshot-local
// ordinal, not a live browser tab id; ParentIndex references another
// record's Index within the same snapshot.
type TabRecord struct {
	Index       int    `json:"index"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	ParentIndex *int   `json:"parentIndex"`
	ViewID      string `json:"viewId"`
	IsExpanded  bool   `json:"isExpanded"`
	Pinned      bool   `json:"pinned"`
}

// Data holds the nested payload of a snapshot. Groups is reserved and
// carried through opaquely.
type Data struct {
	Views  []View            `json:"views"`
	Tabs   []TabRecord       `json:"tabs"`
	Groups []json.RawMessage `json:"groups"`
}

// Record is the canonical on-disk shape of a snapshot. Identity is ID;
// a re-save with the same id is a full replacement.
type Record struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"createdAt"`
	Name       string    `json:"name"`
	IsAutoSave bool      `json:"isAutoSave"`
	Data       Data      `json:"data"`
}

// UnmarshalJSON accepts both wire forms of createdAt: an RFC3339 string
// or epoch milliseconds. Encode always emits the string form; payloads
// from other producers may carry the numeric one.
func (r *Record) UnmarshalJSON(data []byte) error {
	type plain Record
	aux := struct {
		CreatedAt json.RawMessage `json:"createdAt"`
		plain
	}{plain: plain(*r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	created, err := parseCreatedAt(aux.CreatedAt)
	if err != nil {
		return err
	}
	*r = Record(aux.plain)
	r.CreatedAt = created
	return nil
}

func parseCreatedAt(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, nil
	}
	var ms int64
	if err := json.Unmarshal(raw, &ms); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	var t time.Time
	if err := json.Unmarshal(raw, &t); err != nil {
		return time.Time{}, fmt.Errorf("createdAt must be RFC3339 or epoch milliseconds: %w", err)
	}
	return t, nil
}

// Meta is the listing projection of a Record.
type Meta struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"createdAt"`
	IsAutoSave bool      `json:"isAutoSave"`
	TabCount   int       `json:"tabCount"`
}

// NewID returns a fresh snapshot id.
func NewID() string {
	return IDPrefix + uuid.NewString()
}

// Encode serializes a record to its UTF-8 JSON wire form.
func Encode(r *Record) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("snapshot: encode %s: %w", r.ID, err)
	}
	return data, nil
}

// EncodeIndent serializes a record for export files.
func EncodeIndent(r *Record) ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("snapshot: encode %s: %w", r.ID, err)
	}
	return data, nil
}

// Decode parses and validates a snapshot payload. Structurally invalid
// input yields a MALFORMED_SNAPSHOT error and no partial record.
func Decode(payload []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, NewError(CodeMalformed, "unparseable snapshot JSON", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Validate checks the structural invariants of a record: id shape, tabs
// present, unique non-negative indexes, parent references resolving to an
// existing index, and acyclic parent chains.
func (r *Record) Validate() error {
	if !strings.HasPrefix(r.ID, IDPrefix) {
		return NewError(CodeMalformed, fmt.Sprintf("snapshot id %q missing %q prefix", r.ID, IDPrefix), nil)
	}
	if r.Data.Tabs == nil {
		return NewError(CodeMalformed, "snapshot has no data.tabs", nil)
	}

	byIndex := make(map[int]*TabRecord, len(r.Data.Tabs))
	for i := range r.Data.Tabs {
		t := &r.Data.Tabs[i]
		if t.Index < 0 {
			return NewError(CodeMalformed, fmt.Sprintf("tab index %d is negative", t.Index), nil)
		}
		if _, dup := byIndex[t.Index]; dup {
			return NewError(CodeMalformed, fmt.Sprintf("duplicate tab index %d", t.Index), nil)
		}
		byIndex[t.Index] = t
	}

	for _, t := range r.Data.Tabs {
		if t.ParentIndex == nil {
			continue
		}
		if *t.ParentIndex == t.Index {
			return NewError(CodeMalformed, fmt.Sprintf("tab %d is its own parent", t.Index), nil)
		}
		if _, ok := byIndex[*t.ParentIndex]; !ok {
			return NewError(CodeMalformed, fmt.Sprintf("tab %d references missing parent index %d", t.Index, *t.ParentIndex), nil)
		}
	}

	// Parent chains must terminate within |tabs| hops; anything longer is
	// a cycle.
	limit := len(r.Data.Tabs)
	for _, t := range r.Data.Tabs {
		cur := t.ParentIndex
		for hop := 0; cur != nil; hop++ {
			if hop >= limit {
				return NewError(CodeMalformed, fmt.Sprintf("cyclic parent chain at tab %d", t.Index), nil)
			}
			cur = byIndex[*cur].ParentIndex
		}
	}
	return nil
}

// HasView reports whether the given view id exists in the record.
func (r *Record) HasView(viewID string) bool {
	for _, v := range r.Data.Views {
		if v.ID == viewID {
			return true
		}
	}
	return false
}

// Meta returns the listing projection of the record.
func (r *Record) Meta() Meta {
	return Meta{
		ID:         r.ID,
		Name:       r.Name,
		CreatedAt:  r.CreatedAt,
		IsAutoSave: r.IsAutoSave,
		TabCount:   len(r.Data.Tabs),
	}
}

// IsSnapshotPayload is the conformance check for "is this a snapshot
// file": id is a string with the snapshot prefix, createdAt and name are
// present, isAutoSave is boolean, and data.views / data.tabs are
// sequences.
func IsSnapshotPayload(payload []byte) bool {
	var probe struct {
		ID         *string         `json:"id"`
		CreatedAt  json.RawMessage `json:"createdAt"`
		Name       *string         `json:"name"`
		IsAutoSave *bool           `json:"isAutoSave"`
		Data       *struct {
			Views json.RawMessage `json:"views"`
			Tabs  json.RawMessage `json:"tabs"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return false
	}
	if probe.ID == nil || !strings.HasPrefix(*probe.ID, IDPrefix) {
		return false
	}
	if len(probe.CreatedAt) == 0 || probe.Name == nil || probe.IsAutoSave == nil {
		return false
	}
	if probe.Data == nil || !isJSONArray(probe.Data.Views) || !isJSONArray(probe.Data.Tabs) {
		return false
	}
	return true
}

func isJSONArray(raw json.RawMessage) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '[':
			return true
		default:
			return false
		}
	}
	return false
}
