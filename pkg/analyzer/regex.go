package analyzer

import (
	"context"
	"regexp"
	"strings"
)

// RegexName is the registry name of the in-process detector.
const RegexName = "regex"

// Labels produced by the in-process detector.
const (
	LabelEmail      = "EMAIL_ADDRESS"
	LabelPhone      = "PHONE_NUMBER"
	LabelIP         = "IP_ADDRESS"
	LabelURL        = "URL"
	LabelCreditCard = "CREDIT_CARD"
	LabelSSN        = "US_SSN"
)

// Scores for pattern matches. Checksum-validated matches score higher.
const (
	patternScore   = 0.85
	validatedScore = 1.0
)

type pattern struct {
	label    string
	re       *regexp.Regexp
	validate func(match string) bool
}

var defaultPatterns = []pattern{
	{
		label: LabelEmail,
		re:    regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9\-]+(?:\.[A-Za-z0-9\-]+)*\.[A-Za-z]{2,}`),
	},
	{
		label: LabelURL,
		re:    regexp.MustCompile(`\b(?:https?://|www\.)[^\s<>"']+`),
	},
	{
		label: LabelIP,
		re:    regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\.){3}(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\b`),
	},
	{
		label:    LabelSSN,
		re:       regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		validate: validSSN,
	},
	{
		label:    LabelCreditCard,
		re:       regexp.MustCompile(`\b(?:\d[ -]?){12,18}\d\b`),
		validate: luhn,
	},
	{
		label: LabelPhone,
		re:    regexp.MustCompile(`(?:\+1[ .\-]?)?(?:\(\d{3}\)\s?|\b\d{3}[ .\-])\d{3}[ .\-]\d{4}\b`),
	},
}

// Regex detects common PII with regular expressions. It is stateless and
// safe for concurrent use.
type Regex struct {
	patterns []pattern
}

// NewRegex returns the in-process detector.
func NewRegex() *Regex {
	return &Regex{patterns: defaultPatterns}
}

// Name implements Analyzer.
func (r *Regex) Name() string {
	return RegexName
}

// Analyze implements Analyzer. Empty texts yield no detections.
func (r *Regex) Analyze(ctx context.Context, texts []string) ([][]Detection, error) {
	out := make([][]Detection, len(texts))

	for i, text := range texts {
		err := ctx.Err()
		if err != nil {
			return nil, err
		}

		if strings.TrimSpace(text) == "" {
			continue
		}

		out[i] = r.detect(text)
	}

	return out, nil
}

func (r *Regex) detect(text string) []Detection {
	var found []Detection

	for _, p := range r.patterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			score := patternScore

			if p.validate != nil {
				if !p.validate(text[loc[0]:loc[1]]) {
					continue
				}

				score = validatedScore
			}

			found = append(found, Detection{Label: p.label, Start: loc[0], End: loc[1], Score: score})
		}
	}

	return found
}

// luhn reports whether the digits of s pass the Luhn checksum.
func luhn(s string) bool {
	sum, n := 0, 0

	for i := len(s) - 1; i >= 0; i-- {
		c := s[i]
		if c < '0' || c > '9' {
			continue
		}

		d := int(c - '0')
		if n%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}

		sum += d
		n++
	}

	return n >= 13 && sum%10 == 0
}

// validSSN rejects area, group and serial numbers never issued.
func validSSN(s string) bool {
	area, group, serial := s[0:3], s[4:6], s[7:11]

	return area != "000" && area != "666" && area[0] != '9' && group != "00" && serial != "0000"
}
