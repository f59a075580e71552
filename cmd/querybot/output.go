package main

import (
	"fmt"
	"io"
	"os"

	"github.com/kalambet/querybot/internal/conversation"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

// printMessage renders one transcript entry. Help replies are yellow, failed
// replies red.
func printMessage(w io.Writer, m conversation.Message) {
	stamp := m.Timestamp.Local().Format("15:04:05")
	switch {
	case m.Role == conversation.RoleUser && m.Kind == conversation.KindFile:
		fmt.Fprintf(w, "%s %s\n", stamp, colorize(colorCyan, m.Text))
	case m.Role == conversation.RoleUser:
		fmt.Fprintf(w, "%s %s %s\n", stamp, colorize(colorBold, "you:"), m.Text)
	case m.Failed():
		fmt.Fprintf(w, "%s %s %s\n", stamp, colorize(colorBold, "bot:"), colorize(colorRed, m.Text))
	case m.Kind == conversation.KindHelp:
		fmt.Fprintf(w, "%s %s %s\n", stamp, colorize(colorBold, "bot:"), colorize(colorYellow, m.Text))
	default:
		fmt.Fprintf(w, "%s %s %s\n", stamp, colorize(colorBold, "bot:"), m.Text)
	}
}
