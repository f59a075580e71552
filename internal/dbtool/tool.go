package dbtool

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/querybot/internal/normalize"
	"github.com/kalambet/querybot/internal/storage"
)

// Selecter runs read-only statements.
type Selecter interface {
	Select(ctx context.Context, query string, args ...any) (storage.Rows, error)
}

// Rule names reported for answers that did not come from a translation.
const (
	RuleUnsupported = "unsupported"
	RuleUnsafe      = "unsafe"
)

// Answer is the outcome of one question.
type Answer struct {
	Rule   string
	SQL    string
	Result normalize.Value
}

// Tool translates questions and runs them against a Selecter.
type Tool struct {
	db     Selecter
	logger *slog.Logger
}

func New(db Selecter, logger *slog.Logger) *Tool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tool{db: db, logger: logger}
}

// Answer translates question and executes it. Unrecognized questions and
// statements that fail CheckSafe produce a string result, not an error; an
// error means the database itself failed.
//
// A result of exactly one row and one column collapses to that scalar. Any
// other result is a sequence of records whose fields follow the SELECT list.
func (t *Tool) Answer(ctx context.Context, question string, userID int64) (Answer, error) {
	tr, ok := Translate(question, userID)
	if !ok {
		t.logger.Debug("question not recognized", "question", question)
		return Answer{Rule: RuleUnsupported, Result: normalize.String(Unsupported)}, nil
	}
	if err := CheckSafe(tr.SQL); err != nil {
		t.logger.Warn("rejected statement", "rule", tr.Rule, "error", err)
		return Answer{Rule: RuleUnsafe, SQL: tr.SQL, Result: normalize.String(UnsafeMessage)}, nil
	}

	rows, err := t.db.Select(ctx, tr.SQL, tr.Args...)
	if err != nil {
		return Answer{}, fmt.Errorf("running %s: %w", tr.Rule, err)
	}
	t.logger.Debug("answered", "rule", tr.Rule, "rows", len(rows.Values))
	return Answer{Rule: tr.Rule, SQL: tr.SQL, Result: rowsValue(rows)}, nil
}

func rowsValue(rows storage.Rows) normalize.Value {
	if len(rows.Values) == 1 && len(rows.Columns) == 1 {
		return cellValue(rows.Values[0][0])
	}
	items := make([]normalize.Value, 0, len(rows.Values))
	for _, row := range rows.Values {
		rec := normalize.NewRecord()
		for i, col := range rows.Columns {
			rec.Set(col, cellValue(row[i]))
		}
		items = append(items, normalize.Object(rec))
	}
	return normalize.Sequence(items...)
}

func cellValue(v any) normalize.Value {
	switch x := v.(type) {
	case nil:
		return normalize.Null()
	case string:
		return normalize.String(x)
	case []byte:
		return normalize.String(string(x))
	case int64:
		return normalize.Number(float64(x))
	case float64:
		return normalize.Number(x)
	case bool:
		return normalize.Bool(x)
	case time.Time:
		return normalize.String(x.UTC().Format(time.RFC3339))
	}
	return normalize.String(fmt.Sprint(v))
}
