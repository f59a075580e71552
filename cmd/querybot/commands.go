package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/kalambet/querybot/internal/config"
	"github.com/kalambet/querybot/internal/conversation"
	"github.com/kalambet/querybot/internal/intent"
	"github.com/kalambet/querybot/internal/metrics"
	"github.com/kalambet/querybot/internal/normalize"
	"github.com/kalambet/querybot/internal/queryservice"
	"github.com/kalambet/querybot/internal/storage"
)

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive session",
	Long: `Start an interactive session with the Query Service.

Questions about users, queries and reports are sent to the service; anything
else is answered locally with examples of what can be asked. Replies are
printed as they arrive, so several questions can be in flight at once.

Commands inside the session:
  /attach <path>   record a file upload in the transcript
  /help            list example questions
  /quit            leave without waiting for outstanding replies`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		addr, _ := cmd.Flags().GetString("metrics-addr")
		if addr == "" {
			addr = cfg.Metrics.Addr
		}
		var m *metrics.Metrics
		if addr != "" {
			m = metrics.New()
			stop := startMetricsServer(addr, m)
			defer stop()
		}

		opts := conversation.Options{
			UserID:      cfg.API.UserID,
			MaxInFlight: int64(cfg.Session.MaxInFlight),
			Metrics:     m,
		}
		if cfg.Session.Greeting {
			opts.Greeting = conversation.Greeting
		}
		client := queryservice.NewClient(cfg.API.BaseURL, cfg.API.TimeoutDuration())
		return runChat(cmd.InOrStdin(), cmd.OutOrStdout(), client, opts)
	},
}

func init() {
	chatCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address (overrides metrics.addr)")
}

// runChat reads utterances from in until EOF or /quit. On EOF it waits for
// outstanding replies before returning.
func runChat(in io.Reader, out io.Writer, asker conversation.Asker, opts conversation.Options) error {
	var mu sync.Mutex
	show := func(m conversation.Message) {
		// The terminal already shows what the user typed.
		if m.Role == conversation.RoleUser && m.Kind != conversation.KindFile {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		printMessage(out, m)
	}
	opts.OnAppend = show

	c := conversation.New(asker, opts)
	defer c.Close()

	mu.Lock()
	fmt.Fprintln(out, colorize(colorCyan, "Type a question, /attach <path>, /help or /quit."))
	mu.Unlock()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/help":
			mu.Lock()
			for _, q := range intent.ExampleQueries() {
				fmt.Fprintf(out, "  • %s\n", q)
			}
			mu.Unlock()
		case line == "/attach" || strings.HasPrefix(line, "/attach "):
			path := strings.TrimSpace(strings.TrimPrefix(line, "/attach"))
			if path == "" {
				mu.Lock()
				fmt.Fprintln(out, "usage: /attach <path>")
				mu.Unlock()
				continue
			}
			if _, err := c.Attach(path); err != nil {
				mu.Lock()
				fmt.Fprintln(out, colorize(colorRed, "✗ "+err.Error()))
				mu.Unlock()
			}
		default:
			c.Submit(line)
		}
	}
	c.Wait()
	return scanner.Err()
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a single question and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, userID, err := newQueryClient()
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")
		return runAsk(cmd.Context(), cmd.OutOrStdout(), client, userID, strings.Join(args, " "), asJSON)
	},
}

func init() {
	askCmd.Flags().Bool("json", false, "print the raw service result instead of display text")
}

func runAsk(ctx context.Context, out io.Writer, asker conversation.Asker, userID int, question string, asJSON bool) error {
	c := conversation.New(asker, conversation.Options{UserID: userID, MaxInFlight: 1})
	defer c.Close()

	msg, err := c.Ask(ctx, question)
	if errors.Is(err, conversation.ErrEmpty) {
		return fmt.Errorf("question is empty")
	}
	if err != nil {
		return err
	}
	if msg.Failed() {
		return errors.New(msg.Text)
	}

	if asJSON {
		b, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("encoding reply: %w", err)
		}
		fmt.Fprintln(out, string(b))
		return nil
	}
	fmt.Fprintln(out, msg.Text)
	return nil
}

// --- classify ---

var classifyCmd = &cobra.Command{
	Use:   "classify <text>",
	Short: "Show how an utterance would be routed",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		return runClassify(cmd.OutOrStdout(), strings.Join(args, " "), asJSON)
	},
}

func init() {
	classifyCmd.Flags().Bool("json", false, "print the decision as JSON")
}

func runClassify(out io.Writer, text string, asJSON bool) error {
	d := intent.Classify(text)
	if asJSON {
		return json.NewEncoder(out).Encode(d)
	}

	route := colorize(colorYellow, "local help")
	if d.Remote {
		route = colorize(colorGreen, "query service")
	}
	fmt.Fprintf(out, "%s (%s: %s)\n", route, d.Reason, d.Rule)
	if !d.Remote {
		fmt.Fprintf(out, "  help bucket: %s\n", intent.DetectBucket(text))
	}
	return nil
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List questions previously asked by the configured user",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, userID, err := newQueryClient()
		if err != nil {
			return err
		}
		if id, _ := cmd.Flags().GetInt("user"); id > 0 {
			userID = id
		}
		return runHistory(cmd.Context(), cmd.OutOrStdout(), client, userID)
	},
}

func init() {
	historyCmd.Flags().Int("user", 0, "user id (default: api.user_id)")
}

type historyLister interface {
	History(ctx context.Context, userID int) ([]queryservice.HistoryEntry, error)
}

func runHistory(ctx context.Context, out io.Writer, client historyLister, userID int) error {
	entries, err := client.History(ctx, userID)
	if err != nil {
		return errors.New(queryservice.Classify(err).Message())
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No questions found.")
		return nil
	}

	for _, e := range entries {
		fmt.Fprintf(out, "%s  %s\n", colorize(colorBold, e.CreatedAt.Local().Format("2006-01-02 15:04")), e.QueryText)
		for _, line := range strings.Split(normalize.Normalize(e.Answer()), "\n") {
			fmt.Fprintf(out, "    %s\n", line)
		}
	}
	return nil
}

// --- users ---

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage users of the Query Service",
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/users")
		if err != nil {
			return err
		}
		var users []storage.User
		if err := decodeJSON(resp, &users); err != nil {
			return err
		}

		if len(users) == 0 {
			fmt.Println("No users found.")
			return nil
		}
		for _, u := range users {
			fmt.Printf("%4d  %-12s %-24s %s\n", u.ID, u.Username, u.Email, u.Role)
		}
		return nil
	},
}

var usersAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Create a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		role, _ := cmd.Flags().GetString("role")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/api/users", map[string]string{
			"username": args[0],
			"email":    email,
			"role":     role,
		})
		if err != nil {
			return err
		}
		var u storage.User
		if err := decodeJSON(resp, &u); err != nil {
			return err
		}

		printSuccess("Created user %d (%s)", u.ID, u.Username)
		return nil
	},
}

var usersReportsCmd = &cobra.Command{
	Use:   "reports <id>",
	Short: "List a user's reports",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/users/"+args[0]+"/reports")
		if err != nil {
			return err
		}
		var reports []storage.Report
		if err := decodeJSON(resp, &reports); err != nil {
			return err
		}

		if len(reports) == 0 {
			fmt.Println("No reports found.")
			return nil
		}
		for _, r := range reports {
			fmt.Printf("%s  %s (%s)\n", r.CreatedAt.Format("2006-01-02"), colorize(colorBold, r.ReportName), r.ReportFile)
		}
		return nil
	},
}

func init() {
	usersAddCmd.Flags().String("email", "", "email address")
	usersAddCmd.Flags().String("role", "", "role (default: user)")
	usersCmd.AddCommand(usersListCmd)
	usersCmd.AddCommand(usersAddCmd)
	usersCmd.AddCommand(usersReportsCmd)
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and Query Service reachability",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client := &apiClient{
			baseURL:    strings.TrimRight(cfg.API.BaseURL, "/"),
			httpClient: &http.Client{Timeout: cfg.API.TimeoutDuration()},
		}

		if err := client.checkHealth(cmd.Context()); err != nil {
			printStatus("Query Service", "unreachable at %s", client.baseURL)
		} else {
			printStatus("Query Service", "running at %s", client.baseURL)
		}
		printStatus("User", "%d", cfg.API.UserID)
		printStatus("Timeout", "%s", cfg.API.Timeout)
		printStatus("Max in flight", "%d", cfg.Session.MaxInFlight)
		printStatus("Data dir", "%s", cfg.Storage.DataDir)
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorCyan, "($"+k.EnvVar+")"))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			fmt.Fprintf(os.Stderr, "valid keys: %s\n", strings.Join(config.ValidKeys(), ", "))
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a saved value so the default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
