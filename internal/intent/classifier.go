package intent

import "strings"

// Reason names the cascade stage that produced a Decision.
type Reason string

const (
	ReasonExplicitPhrase  Reason = "explicit-phrase"
	ReasonDatabasePattern Reason = "db-pattern"
	ReasonGenericPattern  Reason = "generic-pattern"
	ReasonKeywordFallback Reason = "keyword-fallback"
	ReasonDefault         Reason = "default"
)

// Decision is the routing verdict for one utterance.
type Decision struct {
	Remote bool   `json:"remote"`
	Reason Reason `json:"reason"`
	// Rule is the phrase or pattern that matched, for auditing.
	Rule string `json:"rule"`
}

// Rule is a single named predicate. Predicates receive the lowercased,
// trimmed utterance.
type Rule struct {
	Name  string
	Match func(s string) bool
}

// Stage is one step of the cascade. Every rule in a stage yields the same
// decision.
type Stage struct {
	Reason Reason
	Remote bool
	Rules  []Rule
}

// Stages returns the cascade in evaluation order. The order is part of the
// classifier's contract: generic patterns deliberately overlap database
// questions and only lose because they run later.
func Stages() []Stage {
	out := make([]Stage, len(cascade))
	copy(out, cascade)
	return out
}

// Classify routes an utterance to the Query Service or to local help.
// Matching is case-insensitive and ignores surrounding whitespace; the first
// matching rule wins. Classify never fails.
func Classify(utterance string) Decision {
	s := strings.ToLower(strings.TrimSpace(utterance))
	for _, st := range cascade {
		for _, r := range st.Rules {
			if r.Match(s) {
				return Decision{Remote: st.Remote, Reason: st.Reason, Rule: r.Name}
			}
		}
	}
	return Decision{Reason: ReasonDefault, Rule: "default"}
}

var cascade = []Stage{
	{Reason: ReasonExplicitPhrase, Remote: true, Rules: phrases(explicitPhrases...)},
	{Reason: ReasonDatabasePattern, Remote: true, Rules: databasePatterns},
	{Reason: ReasonGenericPattern, Remote: false, Rules: genericPatterns},
	{Reason: ReasonKeywordFallback, Remote: true, Rules: phrases(databaseKeywords...)},
	{Reason: ReasonDefault, Remote: false, Rules: []Rule{{Name: "default", Match: func(string) bool { return true }}}},
}
