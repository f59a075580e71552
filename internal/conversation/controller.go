package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/kalambet/querybot/internal/intent"
	"github.com/kalambet/querybot/internal/metrics"
	"github.com/kalambet/querybot/internal/normalize"
	"github.com/kalambet/querybot/internal/queryservice"
)

const (
	DefaultUserID      = 1
	DefaultMaxInFlight = 8

	Greeting = "Hello! I'm your AI assistant. I can help you with database-related questions about users, questions, and reports. How can I help you today?"
)

// ErrEmpty is returned by Ask for blank input.
var ErrEmpty = errors.New("empty utterance")

// Asker answers a question on behalf of a user. *queryservice.Client
// satisfies it.
type Asker interface {
	Ask(ctx context.Context, question string, userID int) (normalize.Value, error)
}

// Options configures a Controller. Zero values select defaults.
type Options struct {
	UserID      int
	MaxInFlight int64
	// Greeting, when set, is appended as the first bot message.
	Greeting string
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	// OnAppend is called after every successful append, outside any lock.
	OnAppend func(Message)
}

// Controller routes utterances and records the exchange in its Log.
type Controller struct {
	asker    Asker
	log      *Log
	userID   int
	session  string
	logger   *slog.Logger
	metrics  *metrics.Metrics
	onAppend func(Message)

	sem    *semaphore.Weighted
	group  errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	idle    *sync.Cond
	pending int
	closed  bool
}

// New creates a Controller with a fresh Log.
func New(asker Asker, opts Options) *Controller {
	if opts.UserID == 0 {
		opts.UserID = DefaultUserID
	}
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = DefaultMaxInFlight
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		asker:    asker,
		log:      NewLog(),
		userID:   opts.UserID,
		session:  uuid.New().String(),
		metrics:  opts.Metrics,
		onAppend: opts.OnAppend,
		sem:      semaphore.NewWeighted(opts.MaxInFlight),
		ctx:      ctx,
		cancel:   cancel,
	}
	c.logger = opts.Logger.With("session", c.session)
	c.idle = sync.NewCond(&c.mu)

	if opts.Greeting != "" {
		c.append(Message{Role: RoleBot, Kind: KindNormal, Text: opts.Greeting})
	}
	return c
}

// Log returns the transcript.
func (c *Controller) Log() *Log { return c.log }

// Session returns the unique id of this conversation.
func (c *Controller) Session() string { return c.session }

// Awaiting reports whether any Query Service call is outstanding.
func (c *Controller) Awaiting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending > 0
}

// Submit records a user utterance and produces its reply. Local replies are
// appended before Submit returns; remote ones are appended by a background
// call in completion order. Blank input and submissions after Close are
// ignored and report false.
func (c *Controller) Submit(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	if _, err := c.append(Message{Role: RoleUser, Kind: KindNormal, Text: text}); err != nil {
		return false
	}

	if d := c.classify(text); !d.Remote {
		c.append(helpMessage(text))
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.pending++
	c.group.Go(func() error {
		defer c.finish()
		if err := c.sem.Acquire(c.ctx, 1); err != nil {
			return nil
		}
		defer c.sem.Release(1)

		c.append(c.query(c.ctx, text))
		return nil
	})
	return true
}

// Ask is the synchronous form of Submit. It returns the reply once it has
// been appended. Query failures are reported in the reply, not as an error.
func (c *Controller) Ask(ctx context.Context, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrEmpty
	}
	if _, err := c.append(Message{Role: RoleUser, Kind: KindNormal, Text: text}); err != nil {
		return Message{}, err
	}

	if d := c.classify(text); !d.Remote {
		return c.append(helpMessage(text))
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Message{}, ErrClosed
	}
	c.pending++
	c.mu.Unlock()
	defer c.finish()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return Message{}, err
	}
	defer c.sem.Release(1)

	return c.append(c.query(ctx, text))
}

// Wait blocks until no Query Service call is in flight.
func (c *Controller) Wait() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.pending > 0 {
		c.idle.Wait()
	}
}

// Close ends the session. Outstanding calls are cancelled and their replies
// dropped; Close returns once every background call has exited.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.log.Close()
	c.cancel()
	_ = c.group.Wait()
}

func (c *Controller) finish() {
	c.mu.Lock()
	c.pending--
	if c.pending == 0 {
		c.idle.Broadcast()
	}
	c.mu.Unlock()
}

func (c *Controller) classify(text string) intent.Decision {
	d := intent.Classify(text)
	c.metrics.Decision(string(d.Reason), d.Remote)
	c.logger.Debug("utterance classified", "reason", d.Reason, "rule", d.Rule, "remote", d.Remote)
	return d
}

func (c *Controller) append(m Message) (Message, error) {
	stored, err := c.log.Append(m)
	if err != nil {
		c.logger.Debug("message dropped", "role", m.Role, "kind", m.Kind, "error", err)
		return Message{}, err
	}
	if c.onAppend != nil {
		c.onAppend(stored)
	}
	return stored, nil
}

// query calls the service and builds the bot reply for either outcome.
func (c *Controller) query(ctx context.Context, text string) Message {
	done := c.metrics.QueryStarted()
	start := time.Now()

	v, err := c.asker.Ask(ctx, text, c.userID)
	if err != nil {
		kind := queryservice.Classify(err)
		done(kind.Kind.String())
		if ctx.Err() == nil {
			c.logger.Warn("query failed", "kind", kind.Kind, "error", err)
		}
		return Message{
			Role:        RoleBot,
			Kind:        KindError,
			Text:        kind.Message(),
			SourceQuery: text,
			Err:         err,
		}
	}
	done("")
	c.logger.Debug("query answered", "elapsed", time.Since(start))
	return reply(text, v)
}

func helpMessage(text string) Message {
	return Message{
		Role:        RoleBot,
		Kind:        KindHelp,
		Text:        intent.HelpText(text),
		SourceQuery: text,
	}
}
