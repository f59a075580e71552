package intent

import (
	"regexp"
	"strings"
)

var explicitPhrases = []string{
	"how many users are there",
	"how many users",
	"count users",
	"total users",
	"list users",
	"show users",
	"show me users",
	"all users",
	"how many questions",
	"count questions",
	"how many reports",
	"count reports",
}

var databaseKeywords = []string{
	"user",
	"users",
	"question",
	"questions",
	"report",
	"reports",
	"database",
	"count",
	"total",
}

var databasePatterns = patterns(
	`^how many .* (user|users|question|questions|report|reports)`,
	`^show me .* (user|users|question|questions|report|reports)`,
	`^list .* (user|users|question|questions|report|reports)`,
	`^what .* (name|username|email) .* (user|users)`,
	`^what was .* (first|last) .* (question|report)`,
	`^find .* (user|users|question|questions|report|reports)`,
	`^get .* (user|users|question|questions|report|reports)`,
	`^count .* (user|users|question|questions|report|reports)`,
	`^total .* (user|users|question|questions|report|reports)`,
	`who is user \d+`,
	`what is the .* of user \d+`,
)

var genericPatterns = concat(
	// capability
	patterns(
		`are you (able|capable) (to|of)`,
		`can you (add|create|delete|update|modify)`,
		`do you (know how|understand how)`,
		`what can you do`,
		`what are your capabilities`,
	),
	[]Rule{{Name: "help me with <no entity>", Match: helpWithoutEntity}},
	// weather
	patterns(
		`what.*weather`,
		`how.*weather`,
		`weather.*today`,
		`temperature.*today`,
	),
	// general knowledge
	patterns(
		`what is (the|a)`,
		`who is`,
		`where is`,
		`when is`,
		`why is`,
		`how does.*work`,
		`tell me about`,
		`explain`,
		`define`,
	),
	// AI and technology
	patterns(
		`what (is|are) (ai|artificial intelligence)`,
		`how (do|does) (you|ai|chatbot) work`,
		`what do you know about`,
	),
	// math, science, general help
	patterns(
		`help me (calculate|solve|understand)`,
		`what.*meaning`,
		`how to`,
		`can you help.*with`,
	),
	// time and date
	patterns(
		`what.*time`,
		`what.*date`,
		`what.*day`,
	),
	[]Rule{{Name: "question without entity noun", Match: questionWithoutEntity}},
)

// entityNoun matches the nouns that mark an utterance as being about the
// database. Used by the question-mark catch-all.
var entityNoun = regexp.MustCompile(`\b(user|users|question|questions|report|reports|database|count|list|show|find|total)\b`)

// questionWithoutEntity matches a single-line utterance ending in '?' that
// names none of the entity nouns.
func questionWithoutEntity(s string) bool {
	if strings.Contains(s, "\n") || !strings.HasSuffix(s, "?") {
		return false
	}
	return !entityNoun.MatchString(s)
}

// helpWithoutEntity matches "help me with" when the rest of that line
// mentions no user, question or report.
func helpWithoutEntity(s string) bool {
	const prefix = "help me with "
	for rest := s; ; {
		i := strings.Index(rest, prefix)
		if i < 0 {
			return false
		}
		tail := rest[i+len(prefix):]
		if line, _, ok := strings.Cut(tail, "\n"); ok {
			tail = line
		}
		if !strings.Contains(tail, "user") && !strings.Contains(tail, "question") && !strings.Contains(tail, "report") {
			return true
		}
		rest = rest[i+1:]
	}
}

func phrases(list ...string) []Rule {
	rules := make([]Rule, len(list))
	for i, p := range list {
		p := p
		rules[i] = Rule{Name: p, Match: func(s string) bool { return strings.Contains(s, p) }}
	}
	return rules
}

func patterns(exprs ...string) []Rule {
	rules := make([]Rule, len(exprs))
	for i, expr := range exprs {
		re := regexp.MustCompile(expr)
		rules[i] = Rule{Name: expr, Match: re.MatchString}
	}
	return rules
}

func concat(groups ...[]Rule) []Rule {
	var out []Rule
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
