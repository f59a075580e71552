// Package dbtool answers natural-language questions about the demo database
// by translating them into read-only SQL.
//
// Translation is a fixed table of patterns, tried in order. A question no
// pattern recognizes is unsupported; callers answer it with Unsupported.
package dbtool

import (
	"regexp"
	"strconv"
	"strings"
)

// Unsupported is the answer for questions the translator does not recognize.
const Unsupported = "I can only answer safe database-related questions. Examples:\n" +
	"- How many users are there?\n" +
	"- What was the first question asked by User 1?\n" +
	"- Show me all reports for User 2."

// Translation is a parameterized statement produced for a question.
type Translation struct {
	Rule string
	SQL  string
	Args []any
}

// rule maps a question pattern to a statement. Capture group 1, when the
// pattern has one, is a user id or name passed to build.
type rule struct {
	name  string
	re    *regexp.Regexp
	build func(m []string, userID int64) (string, []any)
}

func static(sql string) func([]string, int64) (string, []any) {
	return func([]string, int64) (string, []any) { return sql, nil }
}

// byCapturedID binds the captured user number.
func byCapturedID(sql string) func([]string, int64) (string, []any) {
	return func(m []string, _ int64) (string, []any) {
		id, _ := strconv.ParseInt(m[1], 10, 64)
		return sql, []any{id}
	}
}

// byCurrentUser binds the id of the user asking.
func byCurrentUser(sql string) func([]string, int64) (string, []any) {
	return func(_ []string, userID int64) (string, []any) { return sql, []any{userID} }
}

func byCapturedName(sql string) func([]string, int64) (string, []any) {
	return func(m []string, _ int64) (string, []any) { return sql, []any{m[1]} }
}

const (
	userColumns     = `SELECT id, username, email, role FROM users`
	questionsOfUser = `SELECT query_text, created_at FROM queries WHERE user_id = ? ORDER BY created_at ASC, id ASC`
	reportsOfUser   = `SELECT report_name, report_file, created_at FROM reports WHERE user_id = ? ORDER BY created_at ASC, id ASC`
)

// The "user N" rules come before the name rules so "user 3" is never taken
// for a username.
var rules = []rule{
	{
		name:  "count-users",
		re:    regexp.MustCompile(`\b(how many users|number of users|count (?:all |the |total )?users|total users)\b`),
		build: static(`SELECT COUNT(*) AS count FROM users`),
	},
	{
		name:  "count-questions",
		re:    regexp.MustCompile(`\b(how many questions|number of questions|count (?:all |the |total )?questions|total (?:number of )?questions)\b`),
		build: static(`SELECT COUNT(*) AS count FROM queries`),
	},
	{
		name:  "count-reports",
		re:    regexp.MustCompile(`\b(how many reports|number of reports|count (?:all |the |total )?reports|total reports)\b`),
		build: static(`SELECT COUNT(*) AS count FROM reports`),
	},
	{
		name: "first-question",
		re:   regexp.MustCompile(`\bfirst (?:ever )?question (?:asked )?by user (\d+)\b`),
		build: byCapturedID(`SELECT query_text FROM queries WHERE user_id = ? ` +
			`ORDER BY created_at ASC, id ASC LIMIT 1`),
	},
	{
		name: "last-question",
		re:   regexp.MustCompile(`\b(?:last|latest|most recent) question (?:asked )?by user (\d+)\b`),
		build: byCapturedID(`SELECT query_text FROM queries WHERE user_id = ? ` +
			`ORDER BY created_at DESC, id DESC LIMIT 1`),
	},
	{
		name:  "questions-by-user",
		re:    regexp.MustCompile(`\bquestions (?:asked )?(?:by|from|of) user (\d+)\b`),
		build: byCapturedID(questionsOfUser),
	},
	{
		name:  "reports-for-user",
		re:    regexp.MustCompile(`\breports (?:for|of|by|from) user (\d+)\b`),
		build: byCapturedID(reportsOfUser),
	},
	{
		name:  "user-name",
		re:    regexp.MustCompile(`\b(?:user ?name|name) of user (\d+)\b`),
		build: byCapturedID(`SELECT username FROM users WHERE id = ?`),
	},
	{
		name:  "user-email",
		re:    regexp.MustCompile(`\bemail (?:address )?(?:of|for) user (\d+)\b`),
		build: byCapturedID(`SELECT email FROM users WHERE id = ?`),
	},
	{
		name:  "user-role",
		re:    regexp.MustCompile(`\brole (?:of|for) user (\d+)\b`),
		build: byCapturedID(`SELECT role FROM users WHERE id = ?`),
	},
	{
		name:  "who-is-user",
		re:    regexp.MustCompile(`\b(?:who is|details (?:of|for)|show me) user (\d+)\b`),
		build: byCapturedID(userColumns + ` WHERE id = ?`),
	},
	{
		name:  "my-questions",
		re:    regexp.MustCompile(`\b(my questions|questions (?:have )?i (?:have )?asked|what have i asked)\b`),
		build: byCurrentUser(questionsOfUser),
	},
	{
		name:  "my-reports",
		re:    regexp.MustCompile(`\bmy reports\b`),
		build: byCurrentUser(reportsOfUser),
	},
	{
		name: "questions-by-name",
		re:   regexp.MustCompile(`\bquestions (?:asked )?by ([a-z][a-z0-9_]*)\b`),
		build: byCapturedName(`SELECT q.query_text, q.created_at FROM queries q JOIN users u ON q.user_id = u.id ` +
			`WHERE LOWER(u.username) = ? ORDER BY q.created_at ASC, q.id ASC`),
	},
	{
		name: "users-by-role",
		re:   regexp.MustCompile(`\b(?:list|show|find)(?: me)?(?: all)?(?: the)? (admin|analyst|viewer)s?\b`),
		build: byCapturedName(userColumns + ` WHERE role = ? ORDER BY id ASC`),
	},
	{
		name:  "list-users",
		re:    regexp.MustCompile(`\b(?:list|show|find|get)(?: me)?(?: all)?(?: the)? users\b`),
		build: static(userColumns + ` ORDER BY id ASC`),
	},
	{
		name:  "list-reports",
		re:    regexp.MustCompile(`\b(?:list|show|find|get)(?: me)?(?: all)?(?: the)? reports\b`),
		build: static(`SELECT user_id, report_name, report_file, created_at FROM reports ORDER BY created_at ASC, id ASC`),
	},
}

// Translate returns the statement for question, asked by userID. The second
// result is false when no pattern matches.
func Translate(question string, userID int64) (Translation, bool) {
	q := strings.ToLower(strings.TrimSpace(question))
	for _, r := range rules {
		m := r.re.FindStringSubmatch(q)
		if m == nil {
			continue
		}
		// "questions by user" also satisfies the by-name pattern; skip it so
		// a non-numeric "user x" is not treated as the username "user".
		if r.name == "questions-by-name" && m[1] == "user" {
			continue
		}
		sql, args := r.build(m, userID)
		return Translation{Rule: r.name, SQL: sql, Args: args}, true
	}
	return Translation{}, false
}

// RuleNames lists the translation rules in evaluation order.
func RuleNames() []string {
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.name
	}
	return names
}
