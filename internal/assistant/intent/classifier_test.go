package intent

import (
	"testing"
	"time"
)

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	c, err := New()
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	// Pin "today" so the "$today" filter sentinel is stable.
	c.now = func() time.Time {
		return time.Date(2025, 4, 15, 12, 0, 0, 0, time.UTC)
	}
	return c
}

func TestClassifyCreate(t *testing.T) {
	c := newTestClassifier(t)

	tests := []struct {
		name      string
		query     string
		target    string
		paramKey  string
		paramWant any
	}{
		{"customer named", "Create a customer named Acme Corp", "Customer", "customer_name", "Acme Corp"},
		{"customer called", "add a new customer called globex", "Customer", "customer_name", "Globex"},
		{"supplier", "create a supplier named Initech", "Supplier", "supplier_name", "Initech"},
		{"item", "add an item called Blue Widget", "Item", "item_name", "Blue Widget"},
		{"item group for", "create an item group for raw materials", "ItemGroup", "item_group_name", "Raw Materials"},
		{"arabic customer", "انشئ عميل باسم شركة النور", "Customer", "customer_name", "شركة النور"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := c.Classify(tc.query)
			if in.Kind != KindCreate {
				t.Fatalf("kind = %s, want create", in.Kind)
			}
			if in.TargetType != tc.target {
				t.Errorf("target = %s, want %s", in.TargetType, tc.target)
			}
			if got := in.Parameters[tc.paramKey]; got != tc.paramWant {
				t.Errorf("param %s = %v, want %v", tc.paramKey, got, tc.paramWant)
			}
		})
	}
}

func TestClassifyItemGroupBeatsItem(t *testing.T) {
	c := newTestClassifier(t)

	// "item group" contains "item"; the more specific rule is ordered first
	// and must win.
	in := c.Classify("create an item group named Consumables")
	if in.TargetType != "ItemGroup" {
		t.Fatalf("target = %s, want ItemGroup", in.TargetType)
	}
	if in.Parameters["is_group"] != true {
		t.Errorf("is_group = %v, want true", in.Parameters["is_group"])
	}
}

func TestClassifyOverdueInvoices(t *testing.T) {
	c := newTestClassifier(t)

	in := c.Classify("show me overdue invoices")
	if in.Kind != KindRead || in.TargetType != "SalesInvoice" {
		t.Fatalf("got %s/%s, want read/SalesInvoice", in.Kind, in.TargetType)
	}

	due, ok := in.Filters["due_date"]
	if !ok {
		t.Fatal("missing due_date filter")
	}
	if due.Op != "<=" || due.Value != "2025-04-15" {
		t.Errorf("due_date filter = %+v, want <= 2025-04-15", due)
	}

	out, ok := in.Filters["outstanding_amount"]
	if !ok {
		t.Fatal("missing outstanding_amount filter")
	}
	if out.Op != ">" {
		t.Errorf("outstanding_amount op = %s, want >", out.Op)
	}

	if in.OrderBy != "due_date" {
		t.Errorf("order_by = %s, want due_date", in.OrderBy)
	}
	if in.Pagination.Limit != DefaultLimit {
		t.Errorf("limit = %d, want %d", in.Pagination.Limit, DefaultLimit)
	}
}

func TestClassifyMonthWindow(t *testing.T) {
	c := newTestClassifier(t)

	tests := []string{
		"show me invoices for april",
		"اعرض فواتير لشهر ابريل",
	}
	for _, q := range tests {
		in := c.Classify(q)
		if in.Kind != KindRead || in.TargetType != "SalesInvoice" {
			t.Fatalf("%q: got %s/%s, want read/SalesInvoice", q, in.Kind, in.TargetType)
		}
		f, ok := in.Filters["posting_date"]
		if !ok {
			t.Fatalf("%q: missing posting_date filter", q)
		}
		if f.Op != "between" || f.From != "2025-04-01" || f.To != "2025-04-30" {
			t.Errorf("%q: posting_date filter = %+v", q, f)
		}
	}
}

func TestClassifyReport(t *testing.T) {
	c := newTestClassifier(t)

	in := c.Classify("give me a sales report for april")
	if in.Kind != KindReport || in.TargetType != "SalesInvoice" {
		t.Fatalf("got %s/%s, want report/SalesInvoice", in.Kind, in.TargetType)
	}
	if in.GroupBy != "customer" {
		t.Errorf("group_by = %s, want customer", in.GroupBy)
	}
	if _, ok := in.Filters["posting_date"]; !ok {
		t.Error("missing posting_date month window")
	}
}

func TestClassifyUpdate(t *testing.T) {
	c := newTestClassifier(t)

	in := c.Classify("update customer Acme Corp set phone to 555-0100 and change territory to West")
	if in.Kind != KindUpdate || in.TargetType != "Customer" {
		t.Fatalf("got %s/%s, want update/Customer", in.Kind, in.TargetType)
	}
	id, ok := in.Identifier()
	if !ok || id != "Acme Corp" {
		t.Errorf("identifier = %q (%v), want Acme Corp", id, ok)
	}
	if in.Parameters["phone"] != "555-0100" {
		t.Errorf("phone = %v, want 555-0100", in.Parameters["phone"])
	}
	if in.Parameters["territory"] != "West" {
		t.Errorf("territory = %v, want West", in.Parameters["territory"])
	}
}

func TestClassifyUpdateWithoutIdentifier(t *testing.T) {
	c := newTestClassifier(t)

	// "customer" is the last word, so no identifier span follows. The intent
	// still classifies; the executor is the layer that rejects it.
	in := c.Classify("update the customer")
	if in.Kind != KindUpdate {
		t.Fatalf("kind = %s, want update", in.Kind)
	}
	if _, ok := in.Identifier(); ok {
		t.Error("Identifier() found one in a query with no identifier span")
	}
}

func TestClassifyDelete(t *testing.T) {
	c := newTestClassifier(t)

	in := c.Classify("delete item Blue Widget")
	if in.Kind != KindDelete || in.TargetType != "Item" {
		t.Fatalf("got %s/%s, want delete/Item", in.Kind, in.TargetType)
	}
	id, ok := in.Identifier()
	if !ok || id != "Blue Widget" {
		t.Errorf("identifier = %q (%v), want Blue Widget", id, ok)
	}
}

func TestClassifyNavigate(t *testing.T) {
	c := newTestClassifier(t)

	tests := []struct {
		query string
		path  string
	}{
		{"open the customers screen", "/app/customer"},
		{"take me to invoices", "/app/sales-invoice"},
		{"افتح صفحة العملاء", "/app/customer"},
	}
	for _, tc := range tests {
		in := c.Classify(tc.query)
		if in.Kind != KindNavigate {
			t.Fatalf("%q: kind = %s, want navigate", tc.query, in.Kind)
		}
		if in.Parameters["path"] != tc.path {
			t.Errorf("%q: path = %v, want %s", tc.query, in.Parameters["path"], tc.path)
		}
	}
}

func TestClassifyKnowledgeKinds(t *testing.T) {
	c := newTestClassifier(t)

	tests := []struct {
		query string
		kind  Kind
	}{
		{"what is a sales invoice?", KindExplain},
		{"explain the meaning of stock entry", KindExplain},
		{"how do i submit a purchase order", KindSteps},
		{"ما هي خطوات اغلاق الفاتورة", KindSteps},
		{"write a script that renames all items", KindGenerateScript},
	}
	for _, tc := range tests {
		in := c.Classify(tc.query)
		if in.Kind != tc.kind {
			t.Errorf("%q: kind = %s, want %s", tc.query, in.Kind, tc.kind)
		}
		if in.Parameters["text"] != tc.query {
			t.Errorf("%q: text param = %v", tc.query, in.Parameters["text"])
		}
	}
}

func TestClassifyChatFallback(t *testing.T) {
	c := newTestClassifier(t)

	tests := []string{
		"good morning",
		"tell me a joke about accountants",
		"صباح الخير",
	}
	for _, q := range tests {
		in := c.Classify(q)
		if in.Kind != KindChat {
			t.Errorf("%q: kind = %s, want chat", q, in.Kind)
		}
		if in.Parameters["text"] != q {
			t.Errorf("%q: text param = %v", q, in.Parameters["text"])
		}
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	c := newTestClassifier(t)

	q := "show me overdue invoices for april"
	first := c.Classify(q)
	for i := 0; i < 10; i++ {
		again := c.Classify(q)
		if again.Kind != first.Kind || again.TargetType != first.TargetType {
			t.Fatalf("classification changed between runs: %+v vs %+v", first, again)
		}
	}
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		text string
		want Language
	}{
		{"create a customer", LangEnglish},
		{"انشئ عميل", LangArabic},
		{"create عميل mixed", LangArabic},
		{"", LangEnglish},
		{"12345 !?", LangEnglish},
	}
	for _, tc := range tests {
		if got := DetectLanguage(tc.text); got != tc.want {
			t.Errorf("DetectLanguage(%q) = %s, want %s", tc.text, got, tc.want)
		}
	}
}

func TestLoadRulesValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty table", `rules: []`},
		{"unknown kind", `
rules:
  - name: bad
    kind: teleport
    triggers: [{en: ["x"]}]
`},
		{"record command without target", `
rules:
  - name: bad
    kind: create
    triggers: [{en: ["x"]}]
`},
		{"navigate without path", `
rules:
  - name: bad
    kind: navigate
    triggers: [{en: ["x"]}]
`},
		{"no triggers", `
rules:
  - name: bad
    kind: explain
    triggers: []
`},
		{"bad filter op", `
rules:
  - name: bad
    kind: read
    target: Customer
    triggers: [{en: ["x"]}]
    filters: [{field: a, op: "~", value: 1}]
`},
		{"duplicate names", `
rules:
  - name: twin
    kind: explain
    triggers: [{en: ["x"]}]
  - name: twin
    kind: explain
    triggers: [{en: ["y"]}]
`},
		{"duplicate trigger signature", `
rules:
  - name: first
    kind: explain
    triggers: [{en: ["what is"]}]
  - name: shadowed
    kind: steps
    triggers: [{en: ["what is"]}]
`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewFromRules([]byte(tc.yaml)); err == nil {
				t.Error("NewFromRules() accepted an invalid table")
			}
		})
	}
}

func TestEmbeddedRulesLoad(t *testing.T) {
	if _, err := New(); err != nil {
		t.Fatalf("embedded rule table failed to load: %v", err)
	}
}
