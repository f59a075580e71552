package conversation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kalambet/querybot/internal/intent"
	"github.com/kalambet/querybot/internal/normalize"
	"github.com/kalambet/querybot/internal/queryservice"
)

// fakeAsker implements Asker for testing.
type fakeAsker struct {
	mu     sync.Mutex
	calls  []string
	userID int
	fn     func(ctx context.Context, question string) (normalize.Value, error)
}

func (f *fakeAsker) Ask(ctx context.Context, question string, userID int) (normalize.Value, error) {
	f.mu.Lock()
	f.calls = append(f.calls, question)
	f.userID = userID
	f.mu.Unlock()
	return f.fn(ctx, question)
}

func (f *fakeAsker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func returning(doc string) func(context.Context, string) (normalize.Value, error) {
	return func(context.Context, string) (normalize.Value, error) {
		return normalize.Parse([]byte(doc))
	}
}

func lastMessage(t *testing.T, c *Controller) Message {
	t.Helper()
	m, ok := c.Log().Last()
	if !ok {
		t.Fatal("log is empty")
	}
	return m
}

func TestSubmit_LocalHelpIsSynchronous(t *testing.T) {
	asker := &fakeAsker{fn: returning(`"unused"`)}
	c := New(asker, Options{})
	defer c.Close()

	if !c.Submit("explain quantum physics") {
		t.Fatal("Submit returned false")
	}

	if n := asker.callCount(); n != 0 {
		t.Errorf("Query Service called %d times, want 0", n)
	}
	msgs := c.Log().Messages()
	if len(msgs) != 2 {
		t.Fatalf("len(log) = %d, want 2", len(msgs))
	}
	help := msgs[1]
	if help.Role != RoleBot || help.Kind != KindHelp {
		t.Errorf("reply = %s/%s, want bot/help", help.Role, help.Kind)
	}
	found := false
	for _, ex := range intent.ExampleQueries() {
		if strings.Contains(help.Text, ex) {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("help text has no example query: %q", help.Text)
	}
	if c.Awaiting() {
		t.Error("Awaiting() = true after local reply")
	}
}

func TestSubmit_NetworkFailure(t *testing.T) {
	asker := &fakeAsker{fn: func(context.Context, string) (normalize.Value, error) {
		return normalize.Value{}, &queryservice.NetworkError{Err: errors.New("connection refused")}
	}}
	c := New(asker, Options{})
	defer c.Close()

	c.Submit("how many users")
	c.Wait()

	got := lastMessage(t, c)
	want := "Connection error: Unable to reach the server. Please check if the backend is running. Please try again."
	if got.Text != want {
		t.Errorf("Text = %q, want %q", got.Text, want)
	}
	if got.Kind != KindError || !got.Failed() {
		t.Errorf("Kind = %s, want error", got.Kind)
	}
	if got.Err == nil {
		t.Error("Err not retained")
	}
	if c.Awaiting() {
		t.Error("Awaiting() = true after failure")
	}
}

func TestSubmit_UnwrapsServiceResult(t *testing.T) {
	asker := &fakeAsker{fn: returning(`{"id":7,"queryText":"list users","responseText":[{"username":"alice"},{"username":"bob"}],"createdAt":"2026-03-01T10:00:00Z","user":{"id":1,"username":"admin"}}`)}
	c := New(asker, Options{UserID: 4})
	defer c.Close()

	c.Submit("  list users  ")
	c.Wait()

	got := lastMessage(t, c)
	if got.Text != "alice\nbob" {
		t.Errorf("Text = %q, want %q", got.Text, "alice\nbob")
	}
	if got.RemoteID != "7" {
		t.Errorf("RemoteID = %q, want 7", got.RemoteID)
	}
	if want := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC); !got.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, want)
	}
	if got.User.Record() == nil || got.User.Record().Len() != 2 {
		t.Errorf("User = %+v, want the user record", got.User)
	}
	if got.SourceQuery != "list users" {
		t.Errorf("SourceQuery = %q, want trimmed text", got.SourceQuery)
	}
	if got.RawPayload.Record() == nil {
		t.Error("RawPayload does not hold the raw result")
	}
	if asker.calls[0] != "list users" || asker.userID != 4 {
		t.Errorf("asked %q as user %d", asker.calls[0], asker.userID)
	}
}

func TestSubmit_RawResultWithoutWrapper(t *testing.T) {
	asker := &fakeAsker{fn: returning(`{"count":5}`)}
	c := New(asker, Options{})
	defer c.Close()

	c.Submit("how many users")
	c.Wait()

	got := lastMessage(t, c)
	if got.Text != "5" || got.Kind != KindNormal || got.RemoteID != "" {
		t.Errorf("reply = %+v", got)
	}
}

func TestSubmit_BlankIsIgnored(t *testing.T) {
	c := New(&fakeAsker{fn: returning(`1`)}, Options{})
	defer c.Close()

	for _, in := range []string{"", "   ", "\n\t"} {
		if c.Submit(in) {
			t.Errorf("Submit(%q) = true, want false", in)
		}
	}
	if n := c.Log().Len(); n != 0 {
		t.Errorf("len(log) = %d, want 0", n)
	}
}

func TestSubmit_CompletionOrder(t *testing.T) {
	release := make(chan struct{})
	asker := &fakeAsker{fn: func(ctx context.Context, q string) (normalize.Value, error) {
		if strings.Contains(q, "slow") {
			<-release
			return normalize.String("slow answer"), nil
		}
		return normalize.String("fast answer"), nil
	}}
	c := New(asker, Options{})
	defer c.Close()

	c.Submit("count users slow")
	if !c.Awaiting() {
		t.Error("Awaiting() = false with a call in flight")
	}
	c.Submit("count users fast")

	deadline := time.After(2 * time.Second)
	for c.Log().Len() < 3 {
		select {
		case <-deadline:
			t.Fatal("fast reply never arrived")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if !c.Awaiting() {
		t.Error("Awaiting() = false while the slow call is outstanding")
	}
	close(release)
	c.Wait()

	var texts []string
	for _, m := range c.Log().Messages() {
		texts = append(texts, m.Text)
	}
	want := []string{"count users slow", "count users fast", "fast answer", "slow answer"}
	if strings.Join(texts, "|") != strings.Join(want, "|") {
		t.Errorf("log = %q, want %q", texts, want)
	}
	if c.Awaiting() {
		t.Error("Awaiting() = true after all calls finished")
	}
}

func TestSubmit_IDsIncrease(t *testing.T) {
	c := New(&fakeAsker{fn: returning(`[]`)}, Options{Greeting: Greeting})
	defer c.Close()

	c.Submit("hello")
	c.Submit("how many reports")
	c.Submit("what time is it")
	c.Wait()

	msgs := c.Log().Messages()
	if len(msgs) != 7 {
		t.Fatalf("len(log) = %d, want 7", len(msgs))
	}
	if msgs[0].Text != Greeting || msgs[0].Role != RoleBot {
		t.Errorf("first message = %+v, want greeting", msgs[0])
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].ID <= msgs[i-1].ID {
			t.Errorf("ID[%d] = %d not after %d", i, msgs[i].ID, msgs[i-1].ID)
		}
	}
}

func TestSubmit_BoundedInFlight(t *testing.T) {
	var cur, peak atomic.Int32
	asker := &fakeAsker{fn: func(context.Context, string) (normalize.Value, error) {
		n := cur.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		cur.Add(-1)
		return normalize.Number(1), nil
	}}
	c := New(asker, Options{MaxInFlight: 2})
	defer c.Close()

	for i := 0; i < 10; i++ {
		c.Submit("count users")
	}
	c.Wait()

	if p := peak.Load(); p > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", p)
	}
	if n := asker.callCount(); n != 10 {
		t.Errorf("calls = %d, want 10", n)
	}
	if n := c.Log().Len(); n != 20 {
		t.Errorf("len(log) = %d, want 20", n)
	}
}

func TestClose_DropsOrphanedCompletion(t *testing.T) {
	started := make(chan struct{})
	asker := &fakeAsker{fn: func(ctx context.Context, _ string) (normalize.Value, error) {
		close(started)
		<-ctx.Done()
		return normalize.String("late"), nil
	}}
	c := New(asker, Options{})

	c.Submit("how many users")
	<-started
	c.Close()

	msgs := c.Log().Messages()
	if len(msgs) != 1 || msgs[0].Role != RoleUser {
		t.Errorf("log = %+v, want only the user message", msgs)
	}
	if c.Submit("how many users") {
		t.Error("Submit after Close = true")
	}
	if c.Awaiting() {
		t.Error("Awaiting() = true after Close")
	}
	c.Close()
}

func TestAsk_Synchronous(t *testing.T) {
	asker := &fakeAsker{fn: returning(`{"username":"bob"}`)}
	c := New(asker, Options{})
	defer c.Close()

	got, err := c.Ask(context.Background(), "What is the name of user 3?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if got.Text != "The username is: bob" {
		t.Errorf("Text = %q", got.Text)
	}
	if c.Awaiting() {
		t.Error("Awaiting() = true after Ask returned")
	}

	local, err := c.Ask(context.Background(), "what's the weather today?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if local.Kind != KindHelp || !strings.HasPrefix(local.Text, "I can't provide weather information") {
		t.Errorf("local reply = %+v", local)
	}

	if _, err := c.Ask(context.Background(), " "); !errors.Is(err, ErrEmpty) {
		t.Errorf("Ask(blank) err = %v, want ErrEmpty", err)
	}
}

func TestAsk_HTTPErrorTemplate(t *testing.T) {
	asker := &fakeAsker{fn: func(context.Context, string) (normalize.Value, error) {
		return normalize.Value{}, &queryservice.HTTPError{Status: 400, StatusText: "Bad Request", Body: `{"error":"User not found"}`}
	}}
	c := New(asker, Options{})
	defer c.Close()

	got, err := c.Ask(context.Background(), "count users")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	want := `Server error: 400 Bad Request - {"error":"User not found"}. Please try again.`
	if got.Text != want {
		t.Errorf("Text = %q, want %q", got.Text, want)
	}
}

func TestAsk_AfterClose(t *testing.T) {
	c := New(&fakeAsker{fn: returning(`1`)}, Options{})
	c.Close()
	if _, err := c.Ask(context.Background(), "count users"); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}

func TestOnAppend(t *testing.T) {
	var mu sync.Mutex
	var seen []Kind
	c := New(&fakeAsker{fn: returning(`1`)}, Options{OnAppend: func(m Message) {
		mu.Lock()
		seen = append(seen, m.Kind)
		mu.Unlock()
	}})
	defer c.Close()

	c.Submit("hello")
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != KindNormal || seen[1] != KindHelp {
		t.Errorf("seen = %v, want [normal help]", seen)
	}
}

func TestAttach(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o600); err != nil {
		t.Fatal(err)
	}

	c := New(&fakeAsker{fn: returning(`1`)}, Options{})
	defer c.Close()

	got, err := c.Attach(path)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if got.Text != "📎 Uploaded file: notes.txt" || got.Kind != KindFile || got.Role != RoleUser {
		t.Errorf("message = %+v", got)
	}
	if got.Attachment == nil || got.Attachment.Size != 5 || got.Attachment.Name != "notes.txt" {
		t.Errorf("Attachment = %+v", got.Attachment)
	}
	if c.Log().Len() != 1 {
		t.Errorf("len(log) = %d, want 1 (no reply to a file)", c.Log().Len())
	}
}

func TestAttach_MalformedPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.pdf")
	if err := os.WriteFile(path, []byte("not really a pdf"), 0o600); err != nil {
		t.Fatal(err)
	}

	c := New(&fakeAsker{fn: returning(`1`)}, Options{})
	defer c.Close()

	got, err := c.Attach(path)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if got.Attachment.Pages != 0 {
		t.Errorf("Pages = %d, want 0", got.Attachment.Pages)
	}
}

func TestAttach_Errors(t *testing.T) {
	c := New(&fakeAsker{fn: returning(`1`)}, Options{})
	defer c.Close()

	if _, err := c.Attach(filepath.Join(t.TempDir(), "missing.csv")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file err = %v, want ErrNotExist", err)
	}
	if _, err := c.Attach(t.TempDir()); err == nil {
		t.Error("Attach(dir) succeeded, want error")
	}
}
