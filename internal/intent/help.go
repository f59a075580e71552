package intent

import "strings"

// Bucket selects the preamble of a local help message.
type Bucket string

const (
	BucketWeather    Bucket = "weather"
	BucketTimeDate   Bucket = "time-date"
	BucketCapability Bucket = "capability"
	BucketDefault    Bucket = "default"
)

var preambles = map[Bucket]string{
	BucketWeather:    "I can't provide weather information as I'm a specialized database assistant for querying user data, questions, and reports.",
	BucketTimeDate:   "I can't provide current time or date information as I'm focused on database queries only.",
	BucketCapability: "I'm a specialized database assistant that can only answer questions about your database records (users, questions, and reports).",
	BucketDefault:    "I'm a specialized database assistant that can only help with queries about your database.",
}

var exampleQueries = []string{
	"How many users are there?",
	"What is the name of user 3?",
	"Show me all reports for User 2.",
	"List all users in the database.",
	"Count total questions asked.",
	"Find questions by User 3.",
	"What was the first question asked by User 1?",
}

const helpClosing = "Please ask me something about the data in your database! 📊"

// ExampleQueries returns the questions suggested in every help message.
func ExampleQueries() []string {
	out := make([]string, len(exampleQueries))
	copy(out, exampleQueries)
	return out
}

// DetectBucket picks the help bucket for text. Checks run in a fixed order,
// so "what time is the weather update" is a weather question.
func DetectBucket(text string) Bucket {
	s := strings.ToLower(text)
	switch {
	case strings.Contains(s, "weather"):
		return BucketWeather
	case strings.Contains(s, "time"), strings.Contains(s, "date"):
		return BucketTimeDate
	case strings.Contains(s, "capable"), strings.Contains(s, "can you"):
		return BucketCapability
	}
	return BucketDefault
}

// HelpText builds the canned reply for a question that is not routed to the
// Query Service. The question is quoted as typed.
func HelpText(question string) string {
	var b strings.Builder
	b.WriteString(preambles[DetectBucket(question)])
	b.WriteString("\n\nYour question \"")
	b.WriteString(question)
	b.WriteString("\" is outside my scope.\n\nHere are examples of questions I can help with:\n")
	for i, ex := range exampleQueries {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("• ")
		b.WriteString(ex)
	}
	b.WriteString("\n\n")
	b.WriteString(helpClosing)
	return b.String()
}
