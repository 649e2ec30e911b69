// Package executor runs structured record commands against the store.
//
// The executor is the only component allowed to mutate business records from
// natural-language input.  Every command passes three gates before touching
// the store: the target type must be registered, the acting user must hold
// the matching capability, and destructive commands must pin an explicit
// record identifier.  Failures of any gate come back as an error Result, not
// a Go error: the caller always gets something presentable to the user.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ontime-erp/assistant/internal/assistant/intent"
	"github.com/ontime-erp/assistant/internal/assistant/store"
)

// Store is the persistence surface the executor needs.
type Store interface {
	CreateRecord(ctx context.Context, recordType string, fields map[string]any) (string, error)
	GetRecord(ctx context.Context, recordType, id string) (*store.Record, error)
	ListRecords(ctx context.Context, recordType string, q store.Query) ([]*store.Record, error)
	UpdateRecord(ctx context.Context, recordType, id string, fields map[string]any) error
	DeleteRecord(ctx context.Context, recordType, id string) error
	CountByGroup(ctx context.Context, recordType, groupBy string, filters map[string]intent.Filter) (map[string]int, error)
	HasPermission(ctx context.Context, user, recordType, action string) (bool, error)
}

var (
	// ErrUnknownRecordType means the intent targets a type outside the registry.
	ErrUnknownRecordType = errors.New("unknown record type")
	// ErrPermissionDenied means the user lacks the capability for the action.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrIdentifierRequired means an Update or Delete arrived without a pinned
	// record identifier.  Guessing the target is never acceptable.
	ErrIdentifierRequired = errors.New("record identifier required")
	// ErrNoAssignments means an Update carried no field overwrites.
	ErrNoAssignments = errors.New("no field assignments")
	// ErrNotExecutable means the intent kind is not a record command or
	// navigation and belongs to the language-model path instead.
	ErrNotExecutable = errors.New("intent is not executable")
)

// knownTypes is the registry of record types the executor will operate on.
// An intent targeting anything else is rejected before any store access.
var knownTypes = map[string]struct{}{
	"Customer":      {},
	"Supplier":      {},
	"Item":          {},
	"ItemGroup":     {},
	"SalesInvoice":  {},
	"PurchaseOrder": {},
	"Quotation":     {},
	"Employee":      {},
}

// ResultKind classifies an execution outcome.
type ResultKind string

const (
	// ResultSuccess carries a message and optionally a data payload.
	ResultSuccess ResultKind = "success"
	// ResultNavigation instructs the presentation layer to open Path.
	ResultNavigation ResultKind = "navigation"
	// ResultError carries a user-presentable failure message.
	ResultError ResultKind = "error"
)

// Result is the uniform outcome of executing an intent.
type Result struct {
	Kind    ResultKind `json:"kind"`
	Message string     `json:"message"`
	Payload any        `json:"payload,omitempty"`
	Path    string     `json:"path,omitempty"`
}

// Executor dispatches record commands.
type Executor struct {
	store Store
	log   *slog.Logger
}

// New returns an Executor backed by s.
func New(s Store, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{store: s, log: log}
}

// Execute runs a record command or navigation intent on behalf of user.
// It never returns a Go error or lets a panic escape: any failure inside the
// dispatch becomes an error Result so one malformed command cannot take the
// chat surface down with it.
func (e *Executor) Execute(ctx context.Context, user string, in intent.Intent) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("command execution panicked",
				"kind", in.Kind, "target", in.TargetType, "panic", r)
			res = errorResult(in.Language,
				"Something went wrong while executing the command.",
				"حدث خطأ أثناء تنفيذ الأمر.")
		}
	}()

	out, err := e.execute(ctx, user, in)
	if err != nil {
		return e.resultForError(in, err)
	}
	return out
}

func (e *Executor) execute(ctx context.Context, user string, in intent.Intent) (Result, error) {
	if in.Kind == intent.KindNavigate {
		path, _ := in.Parameters["path"].(string)
		if path == "" {
			return Result{}, fmt.Errorf("navigate intent without a path")
		}
		return Result{
			Kind:    ResultNavigation,
			Path:    path,
			Message: localize(in.Language, "Opening "+path, "جارٍ فتح "+path),
		}, nil
	}

	if !in.Kind.IsRecordCommand() {
		return Result{}, ErrNotExecutable
	}
	if _, ok := knownTypes[in.TargetType]; !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownRecordType, in.TargetType)
	}

	allowed, err := e.store.HasPermission(ctx, user, in.TargetType, actionFor(in.Kind))
	if err != nil {
		return Result{}, fmt.Errorf("check permission: %w", err)
	}
	if !allowed {
		e.log.Warn("command denied",
			"user", user, "kind", in.Kind, "target", in.TargetType)
		return Result{}, ErrPermissionDenied
	}

	switch in.Kind {
	case intent.KindCreate:
		return e.create(ctx, in)
	case intent.KindRead:
		return e.read(ctx, in)
	case intent.KindUpdate:
		return e.update(ctx, in)
	case intent.KindDelete:
		return e.delete(ctx, in)
	case intent.KindReport:
		return e.report(ctx, in)
	}
	return Result{}, ErrNotExecutable
}

// actionFor maps an intent kind onto the capability it requires.
func actionFor(k intent.Kind) string {
	switch k {
	case intent.KindCreate:
		return "create"
	case intent.KindUpdate:
		return "write"
	case intent.KindDelete:
		return "delete"
	default: // read, report
		return "read"
	}
}

func (e *Executor) create(ctx context.Context, in intent.Intent) (Result, error) {
	fields := make(map[string]any, len(in.Parameters))
	for k, v := range in.Parameters {
		fields[k] = v
	}
	id, err := e.store.CreateRecord(ctx, in.TargetType, fields)
	if err != nil {
		return Result{}, fmt.Errorf("create %s: %w", in.TargetType, err)
	}
	e.log.Info("record created", "type", in.TargetType, "id", id)
	return Result{
		Kind: ResultSuccess,
		Message: localize(in.Language,
			fmt.Sprintf("Created %s %s.", in.TargetType, id),
			fmt.Sprintf("تم إنشاء %s برقم %s.", in.TargetType, id)),
		Payload: map[string]any{"name": id, "record_type": in.TargetType},
	}, nil
}

func (e *Executor) read(ctx context.Context, in intent.Intent) (Result, error) {
	if id, ok := in.Identifier(); ok {
		rec, err := e.store.GetRecord(ctx, in.TargetType, id)
		if err != nil {
			return Result{}, fmt.Errorf("get %s %s: %w", in.TargetType, id, err)
		}
		return Result{
			Kind:    ResultSuccess,
			Message: localize(in.Language, "Found 1 record.", "تم العثور على سجل واحد."),
			Payload: rec,
		}, nil
	}

	recs, err := e.store.ListRecords(ctx, in.TargetType, queryFrom(in))
	if err != nil {
		return Result{}, fmt.Errorf("list %s: %w", in.TargetType, err)
	}
	return Result{
		Kind: ResultSuccess,
		Message: localize(in.Language,
			fmt.Sprintf("Found %d record(s).", len(recs)),
			fmt.Sprintf("تم العثور على %d سجل.", len(recs))),
		Payload: recs,
	}, nil
}

func (e *Executor) update(ctx context.Context, in intent.Intent) (Result, error) {
	id, ok := in.Identifier()
	if !ok {
		return Result{}, ErrIdentifierRequired
	}
	if len(in.Parameters) == 0 {
		return Result{}, ErrNoAssignments
	}
	if err := e.store.UpdateRecord(ctx, in.TargetType, id, in.Parameters); err != nil {
		return Result{}, fmt.Errorf("update %s %s: %w", in.TargetType, id, err)
	}
	e.log.Info("record updated", "type", in.TargetType, "id", id, "fields", len(in.Parameters))
	return Result{
		Kind: ResultSuccess,
		Message: localize(in.Language,
			fmt.Sprintf("Updated %s %s.", in.TargetType, id),
			fmt.Sprintf("تم تحديث %s %s.", in.TargetType, id)),
		Payload: map[string]any{"name": id, "record_type": in.TargetType},
	}, nil
}

func (e *Executor) delete(ctx context.Context, in intent.Intent) (Result, error) {
	id, ok := in.Identifier()
	if !ok {
		return Result{}, ErrIdentifierRequired
	}
	if err := e.store.DeleteRecord(ctx, in.TargetType, id); err != nil {
		return Result{}, fmt.Errorf("delete %s %s: %w", in.TargetType, id, err)
	}
	e.log.Info("record deleted", "type", in.TargetType, "id", id)
	return Result{
		Kind: ResultSuccess,
		Message: localize(in.Language,
			fmt.Sprintf("Deleted %s %s.", in.TargetType, id),
			fmt.Sprintf("تم حذف %s %s.", in.TargetType, id)),
	}, nil
}

func (e *Executor) report(ctx context.Context, in intent.Intent) (Result, error) {
	recs, err := e.store.ListRecords(ctx, in.TargetType, queryFrom(in))
	if err != nil {
		return Result{}, fmt.Errorf("list %s: %w", in.TargetType, err)
	}

	payload := map[string]any{"rows": recs}
	if in.GroupBy != "" {
		counts, err := e.store.CountByGroup(ctx, in.TargetType, in.GroupBy, in.Filters)
		if err != nil {
			return Result{}, fmt.Errorf("summarize %s by %s: %w", in.TargetType, in.GroupBy, err)
		}
		total := 0
		for _, n := range counts {
			total += n
		}
		payload["summary"] = counts
		payload["total"] = total
	}

	return Result{
		Kind: ResultSuccess,
		Message: localize(in.Language,
			fmt.Sprintf("Report ready: %d row(s).", len(recs)),
			fmt.Sprintf("التقرير جاهز: %d صف.", len(recs))),
		Payload: payload,
	}, nil
}

// queryFrom converts the list-shaping parts of an intent into a store query.
func queryFrom(in intent.Intent) store.Query {
	return store.Query{
		Filters: in.Filters,
		Fields:  in.ResultFields,
		OrderBy: in.OrderBy,
		Offset:  in.Pagination.Offset,
		Limit:   in.Pagination.Limit,
	}
}

// resultForError maps execution errors onto user-presentable error Results.
// The raw error stays in the log; the user sees a stable bilingual message.
func (e *Executor) resultForError(in intent.Intent, err error) Result {
	e.log.Error("command failed",
		"kind", in.Kind, "target", in.TargetType, "error", err)

	switch {
	case errors.Is(err, ErrUnknownRecordType):
		return errorResult(in.Language,
			fmt.Sprintf("I don't know the record type %q.", in.TargetType),
			fmt.Sprintf("نوع السجل %q غير معروف.", in.TargetType))
	case errors.Is(err, ErrPermissionDenied):
		return errorResult(in.Language,
			fmt.Sprintf("You don't have permission to %s %s records.", actionFor(in.Kind), in.TargetType),
			"ليس لديك صلاحية لتنفيذ هذا الأمر.")
	case errors.Is(err, ErrIdentifierRequired):
		return errorResult(in.Language,
			fmt.Sprintf("Record identifier required: please specify which %s (for example: %s ACME-001).",
				in.TargetType, strings.ToLower(in.TargetType)),
			"معرف السجل مطلوب: يرجى تحديد اسم السجل المطلوب.")
	case errors.Is(err, ErrNoAssignments):
		return errorResult(in.Language,
			`Please specify what to change (for example: "set phone to 555-0100").`,
			"يرجى تحديد الحقل والقيمة الجديدة.")
	case errors.Is(err, store.ErrNotFound):
		id, _ := in.Identifier()
		return errorResult(in.Language,
			fmt.Sprintf("%s %q was not found.", in.TargetType, id),
			fmt.Sprintf("السجل %q غير موجود.", id))
	default:
		return errorResult(in.Language,
			"The command could not be completed.",
			"تعذر تنفيذ الأمر.")
	}
}

func errorResult(lang intent.Language, en, ar string) Result {
	return Result{Kind: ResultError, Message: localize(lang, en, ar)}
}

// localize picks the message variant for the detected query language.
func localize(lang intent.Language, en, ar string) string {
	if lang == intent.LangArabic {
		return ar
	}
	return en
}
