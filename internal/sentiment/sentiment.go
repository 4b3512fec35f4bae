// Package sentiment scores member messages with a small lexical
// heuristic. The score annotates operator views and prompts; the decision
// engine never branches on it.
package sentiment

import (
	"regexp"
	"strings"
)

type Label string

const (
	Negative Label = "negative"
	Neutral  Label = "neutral"
	Positive Label = "positive"
)

// Result is one scored message. Score ranges -1.0 to 1.0.
type Result struct {
	Score float64 `json:"score"`
	Label Label   `json:"label"`
}

var negativeCues = []*regexp.Regexp{
	regexp.MustCompile(`\b(cancel|cancell?ing|cancell?ed|quit|refund)\b`),
	regexp.MustCompile(`\b(angry|furious|ridiculous|unacceptable|scam|theft)\b`),
	regexp.MustCompile(`\b(never|stop)\s+(again|contacting|texting|emailing)\b`),
	regexp.MustCompile(`\b(disappointed|frustrated|annoyed|upset)\b`),
	regexp.MustCompile(`\b(too expensive|waste of money|charged twice|overcharged)\b`),
}

var positiveCues = []*regexp.Regexp{
	regexp.MustCompile(`\b(love|loved|great|awesome|amazing|fantastic)\b`),
	regexp.MustCompile(`\b(thank(s| you)?|appreciate)\b`),
	regexp.MustCompile(`\b(sign me up|count me in|see you|i'?m in|sounds good)\b`),
	regexp.MustCompile(`\b(miss(ed)? (it|the gym|class|classes))\b`),
	regexp.MustCompile(`\b(back soon|rejoin|come back|returning)\b`),
}

// Score counts cue hits in both directions and maps the balance onto
// [-1, 1]. Empty or cue-free text is neutral.
func Score(text string) Result {
	lower := strings.ToLower(text)

	var neg, pos int
	for _, re := range negativeCues {
		neg += len(re.FindAllString(lower, -1))
	}
	for _, re := range positiveCues {
		pos += len(re.FindAllString(lower, -1))
	}

	total := neg + pos
	if total == 0 {
		return Result{Score: 0, Label: Neutral}
	}

	score := float64(pos-neg) / float64(total)
	label := Neutral
	switch {
	case score <= -0.25:
		label = Negative
	case score >= 0.25:
		label = Positive
	}
	return Result{Score: score, Label: label}
}
