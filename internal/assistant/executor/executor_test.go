package executor

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/ontime-erp/assistant/internal/assistant/intent"
	"github.com/ontime-erp/assistant/internal/assistant/store"
)

// stubStore is an in-memory Store with programmable permissions and
// failure injection.
type stubStore struct {
	records map[string]map[string]*store.Record // type -> id -> record
	perms   map[string]bool                     // "user/type/action" -> allowed
	nextID  int
	failOn  string // method name that should return an error
}

func newStubStore() *stubStore {
	return &stubStore{
		records: map[string]map[string]*store.Record{},
		perms:   map[string]bool{},
	}
}

func (s *stubStore) allow(user, recordType, action string) {
	s.perms[user+"/"+recordType+"/"+action] = true
}

func (s *stubStore) put(recordType, id string, fields map[string]any) {
	if s.records[recordType] == nil {
		s.records[recordType] = map[string]*store.Record{}
	}
	s.records[recordType][id] = &store.Record{ID: id, Type: recordType, Fields: fields}
}

func (s *stubStore) CreateRecord(_ context.Context, recordType string, fields map[string]any) (string, error) {
	if s.failOn == "CreateRecord" {
		return "", fmt.Errorf("injected store failure")
	}
	s.nextID++
	id := fmt.Sprintf("REC-%04d", s.nextID)
	s.put(recordType, id, fields)
	return id, nil
}

func (s *stubStore) GetRecord(_ context.Context, recordType, id string) (*store.Record, error) {
	rec, ok := s.records[recordType][id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return rec, nil
}

func (s *stubStore) ListRecords(_ context.Context, recordType string, _ store.Query) ([]*store.Record, error) {
	if s.failOn == "ListRecords" {
		return nil, fmt.Errorf("injected store failure")
	}
	var out []*store.Record
	for _, rec := range s.records[recordType] {
		out = append(out, rec)
	}
	return out, nil
}

func (s *stubStore) UpdateRecord(_ context.Context, recordType, id string, fields map[string]any) error {
	rec, ok := s.records[recordType][id]
	if !ok {
		return store.ErrNotFound
	}
	for k, v := range fields {
		rec.Fields[k] = v
	}
	return nil
}

func (s *stubStore) DeleteRecord(_ context.Context, recordType, id string) error {
	if _, ok := s.records[recordType][id]; !ok {
		return store.ErrNotFound
	}
	delete(s.records[recordType], id)
	return nil
}

func (s *stubStore) CountByGroup(_ context.Context, recordType, groupBy string, _ map[string]intent.Filter) (map[string]int, error) {
	counts := map[string]int{}
	for _, rec := range s.records[recordType] {
		key, _ := rec.Fields[groupBy].(string)
		if key == "" {
			key = "(none)"
		}
		counts[key]++
	}
	return counts, nil
}

func (s *stubStore) HasPermission(_ context.Context, user, recordType, action string) (bool, error) {
	if s.perms[user+"/*/*"] {
		return true, nil
	}
	return s.perms[user+"/"+recordType+"/"+action], nil
}

func TestExecuteCreate(t *testing.T) {
	s := newStubStore()
	s.allow("alice", "Customer", "create")
	e := New(s, nil)

	res := e.Execute(context.Background(), "alice", intent.Intent{
		Kind:       intent.KindCreate,
		TargetType: "Customer",
		Parameters: map[string]any{"customer_name": "Acme Corp"},
		Language:   intent.LangEnglish,
	})
	if res.Kind != ResultSuccess {
		t.Fatalf("result = %+v, want success", res)
	}
	if !strings.Contains(res.Message, "Created Customer") {
		t.Errorf("message = %q", res.Message)
	}
	if len(s.records["Customer"]) != 1 {
		t.Errorf("store holds %d customers, want 1", len(s.records["Customer"]))
	}
}

func TestExecutePermissionDenied(t *testing.T) {
	s := newStubStore()
	// alice can read but not delete.
	s.allow("alice", "Customer", "read")
	s.put("Customer", "ACME", map[string]any{})
	e := New(s, nil)

	res := e.Execute(context.Background(), "alice", intent.Intent{
		Kind:       intent.KindDelete,
		TargetType: "Customer",
		Filters:    map[string]intent.Filter{"name": {Op: "=", Value: "ACME"}},
		Language:   intent.LangEnglish,
	})
	if res.Kind != ResultError {
		t.Fatalf("result = %+v, want error", res)
	}
	if !strings.Contains(res.Message, "permission") {
		t.Errorf("message = %q, want permission denial", res.Message)
	}
	// The record must survive.
	if _, ok := s.records["Customer"]["ACME"]; !ok {
		t.Error("denied delete still removed the record")
	}
}

func TestExecutePermissionCheckedBeforeExecution(t *testing.T) {
	s := newStubStore()
	s.failOn = "CreateRecord"
	e := New(s, nil)

	// No permission: the denial must surface, not the injected store failure,
	// proving the store was never reached.
	res := e.Execute(context.Background(), "nobody", intent.Intent{
		Kind:       intent.KindCreate,
		TargetType: "Customer",
		Language:   intent.LangEnglish,
	})
	if res.Kind != ResultError || !strings.Contains(res.Message, "permission") {
		t.Fatalf("result = %+v, want permission denial", res)
	}
}

func TestExecuteUnknownRecordType(t *testing.T) {
	s := newStubStore()
	s.allow("alice", "*", "*")
	e := New(s, nil)

	res := e.Execute(context.Background(), "alice", intent.Intent{
		Kind:       intent.KindCreate,
		TargetType: "Spaceship",
		Language:   intent.LangEnglish,
	})
	if res.Kind != ResultError {
		t.Fatalf("result = %+v, want error", res)
	}
	if !strings.Contains(res.Message, "Spaceship") {
		t.Errorf("message = %q, want record type named", res.Message)
	}
}

func TestExecuteReadSingle(t *testing.T) {
	s := newStubStore()
	s.allow("alice", "Customer", "read")
	s.put("Customer", "ACME", map[string]any{"customer_name": "Acme Corp"})
	e := New(s, nil)

	res := e.Execute(context.Background(), "alice", intent.Intent{
		Kind:       intent.KindRead,
		TargetType: "Customer",
		Filters:    map[string]intent.Filter{"name": {Op: "=", Value: "ACME"}},
		Language:   intent.LangEnglish,
	})
	if res.Kind != ResultSuccess {
		t.Fatalf("result = %+v, want success", res)
	}
	rec, ok := res.Payload.(*store.Record)
	if !ok || rec.ID != "ACME" {
		t.Errorf("payload = %#v, want record ACME", res.Payload)
	}
}

func TestExecuteReadList(t *testing.T) {
	s := newStubStore()
	s.allow("alice", "Item", "read")
	s.put("Item", "WID-1", map[string]any{"item_name": "Widget"})
	s.put("Item", "WID-2", map[string]any{"item_name": "Gadget"})
	e := New(s, nil)

	res := e.Execute(context.Background(), "alice", intent.Intent{
		Kind:       intent.KindRead,
		TargetType: "Item",
		Language:   intent.LangEnglish,
	})
	if res.Kind != ResultSuccess {
		t.Fatalf("result = %+v, want success", res)
	}
	if !strings.Contains(res.Message, "2") {
		t.Errorf("message = %q, want count of 2", res.Message)
	}
}

func TestExecuteUpdate(t *testing.T) {
	s := newStubStore()
	s.allow("alice", "Customer", "write")
	s.put("Customer", "ACME", map[string]any{"phone": "555-0000"})
	e := New(s, nil)

	res := e.Execute(context.Background(), "alice", intent.Intent{
		Kind:       intent.KindUpdate,
		TargetType: "Customer",
		Filters:    map[string]intent.Filter{"name": {Op: "=", Value: "ACME"}},
		Parameters: map[string]any{"phone": "555-0100"},
		Language:   intent.LangEnglish,
	})
	if res.Kind != ResultSuccess {
		t.Fatalf("result = %+v, want success", res)
	}
	if s.records["Customer"]["ACME"].Fields["phone"] != "555-0100" {
		t.Error("update did not reach the store")
	}
}

func TestExecuteUpdateRequiresIdentifier(t *testing.T) {
	s := newStubStore()
	s.allow("alice", "Customer", "write")
	e := New(s, nil)

	res := e.Execute(context.Background(), "alice", intent.Intent{
		Kind:       intent.KindUpdate,
		TargetType: "Customer",
		Parameters: map[string]any{"phone": "555-0100"},
		Language:   intent.LangEnglish,
	})
	if res.Kind != ResultError {
		t.Fatalf("result = %+v, want error", res)
	}
	if !strings.Contains(res.Message, "identifier required") {
		t.Errorf("message = %q, want it to name the missing identifier", res.Message)
	}
}

func TestExecuteUpdateRequiresAssignments(t *testing.T) {
	s := newStubStore()
	s.allow("alice", "Customer", "write")
	s.put("Customer", "ACME", map[string]any{})
	e := New(s, nil)

	res := e.Execute(context.Background(), "alice", intent.Intent{
		Kind:       intent.KindUpdate,
		TargetType: "Customer",
		Filters:    map[string]intent.Filter{"name": {Op: "=", Value: "ACME"}},
		Language:   intent.LangEnglish,
	})
	if res.Kind != ResultError {
		t.Fatalf("result = %+v, want error", res)
	}
	if !strings.Contains(res.Message, "what to change") {
		t.Errorf("message = %q, want assignment prompt", res.Message)
	}
}

func TestExecuteDeleteRequiresIdentifier(t *testing.T) {
	s := newStubStore()
	s.allow("alice", "Item", "delete")
	s.put("Item", "WID-1", map[string]any{})
	e := New(s, nil)

	res := e.Execute(context.Background(), "alice", intent.Intent{
		Kind:       intent.KindDelete,
		TargetType: "Item",
		Language:   intent.LangEnglish,
	})
	if res.Kind != ResultError {
		t.Fatalf("result = %+v, want error", res)
	}
	if !strings.Contains(res.Message, "identifier required") {
		t.Errorf("message = %q, want it to name the missing identifier", res.Message)
	}
	// No guessing: the record must still exist.
	if _, ok := s.records["Item"]["WID-1"]; !ok {
		t.Error("delete without identifier removed a record")
	}
}

func TestExecuteNotFound(t *testing.T) {
	s := newStubStore()
	s.allow("alice", "*", "*")
	e := New(s, nil)

	res := e.Execute(context.Background(), "alice", intent.Intent{
		Kind:       intent.KindDelete,
		TargetType: "Customer",
		Filters:    map[string]intent.Filter{"name": {Op: "=", Value: "GHOST"}},
		Language:   intent.LangEnglish,
	})
	if res.Kind != ResultError {
		t.Fatalf("result = %+v, want error", res)
	}
	if !strings.Contains(res.Message, "GHOST") {
		t.Errorf("message = %q, want missing identifier named", res.Message)
	}
}

func TestExecuteReport(t *testing.T) {
	s := newStubStore()
	s.allow("alice", "SalesInvoice", "read")
	s.put("SalesInvoice", "INV-1", map[string]any{"customer": "Acme"})
	s.put("SalesInvoice", "INV-2", map[string]any{"customer": "Acme"})
	s.put("SalesInvoice", "INV-3", map[string]any{"customer": "Globex"})
	e := New(s, nil)

	res := e.Execute(context.Background(), "alice", intent.Intent{
		Kind:       intent.KindReport,
		TargetType: "SalesInvoice",
		GroupBy:    "customer",
		Language:   intent.LangEnglish,
	})
	if res.Kind != ResultSuccess {
		t.Fatalf("result = %+v, want success", res)
	}
	payload, ok := res.Payload.(map[string]any)
	if !ok {
		t.Fatalf("payload = %#v, want map", res.Payload)
	}
	summary, ok := payload["summary"].(map[string]int)
	if !ok {
		t.Fatalf("summary = %#v, want counts", payload["summary"])
	}
	if summary["Acme"] != 2 || summary["Globex"] != 1 {
		t.Errorf("summary = %v, want Acme:2 Globex:1", summary)
	}
	if payload["total"] != 3 {
		t.Errorf("total = %v, want 3", payload["total"])
	}
}

func TestExecuteNavigate(t *testing.T) {
	e := New(newStubStore(), nil)

	res := e.Execute(context.Background(), "alice", intent.Intent{
		Kind:       intent.KindNavigate,
		Parameters: map[string]any{"path": "/app/customer"},
		Language:   intent.LangEnglish,
	})
	if res.Kind != ResultNavigation {
		t.Fatalf("result = %+v, want navigation", res)
	}
	if res.Path != "/app/customer" {
		t.Errorf("path = %q, want /app/customer", res.Path)
	}
}

func TestExecuteArabicMessages(t *testing.T) {
	s := newStubStore()
	e := New(s, nil)

	res := e.Execute(context.Background(), "alice", intent.Intent{
		Kind:       intent.KindDelete,
		TargetType: "Customer",
		Filters:    map[string]intent.Filter{"name": {Op: "=", Value: "ACME"}},
		Language:   intent.LangArabic,
	})
	if res.Kind != ResultError {
		t.Fatalf("result = %+v, want error", res)
	}
	if intent.DetectLanguage(res.Message) != intent.LangArabic {
		t.Errorf("message %q is not Arabic", res.Message)
	}
}

// panicStore panics inside a store call to exercise the recovery boundary.
type panicStore struct{ stubStore }

func (p *panicStore) CreateRecord(context.Context, string, map[string]any) (string, error) {
	panic("boom")
}

func TestExecuteRecoversFromPanic(t *testing.T) {
	s := &panicStore{stubStore: *newStubStore()}
	s.allow("alice", "Customer", "create")
	e := New(s, nil)

	res := e.Execute(context.Background(), "alice", intent.Intent{
		Kind:       intent.KindCreate,
		TargetType: "Customer",
		Language:   intent.LangEnglish,
	})
	if res.Kind != ResultError {
		t.Fatalf("result = %+v, want error after panic", res)
	}
}
