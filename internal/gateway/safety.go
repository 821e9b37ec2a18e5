package gateway

import (
	"regexp"
	"strings"
)

// Severity classifies a guard's finding. block terminates the pipeline;
// warn and info accumulate without stopping it (§4.D).
type Severity string

const (
	SeverityBlock Severity = "block"
	SeverityWarn  Severity = "warn"
	SeverityInfo  Severity = "info"
)

// GuardResult is what a single named guard returns.
type GuardResult struct {
	Passed   bool
	Severity Severity
	Reason   string
	Metadata map[string]string
}

// Guard evaluates one piece of text (an inbound message or a proposed
// reply) and reports a GuardResult.
type Guard struct {
	Name string
	Eval func(text string) GuardResult
}

// Pipeline is an ordered list of guards, run in declared order. The first
// passed=false with severity=block stops evaluation as "blocked"; warn and
// info findings accumulate in Findings regardless of outcome.
type Pipeline struct {
	Guards []Guard
}

// Outcome is the result of running a full pipeline over one piece of text.
type Outcome struct {
	Blocked  bool
	Reason   string
	Findings []GuardResult
}

// Run evaluates every guard in order, short-circuiting on the first block.
// A guard whose Eval panics is recovered and recorded as a warn-level info
// finding rather than stopping the pipeline (§4.D: "a guard raising an
// unexpected error ... does not stop the pipeline").
func (p *Pipeline) Run(text string) Outcome {
	var out Outcome
	for _, g := range p.Guards {
		result := p.evalSafely(g, text)
		out.Findings = append(out.Findings, result)
		if !result.Passed && result.Severity == SeverityBlock {
			out.Blocked = true
			out.Reason = result.Reason
			return out
		}
	}
	return out
}

func (p *Pipeline) evalSafely(g Guard, text string) (result GuardResult) {
	defer func() {
		if r := recover(); r != nil {
			result = GuardResult{Passed: true, Severity: SeverityWarn, Reason: "guard panicked"}
		}
	}()
	return g.Eval(text)
}

// InputPipeline builds the input-side pipeline (§4.D): prompt-injection,
// content filter, PII detector.
func InputPipeline() *Pipeline {
	return &Pipeline{Guards: []Guard{
		{Name: "prompt_injection", Eval: promptInjectionGuard},
		{Name: "content_filter", Eval: contentFilterGuard},
		{Name: "pii", Eval: piiGuard},
	}}
}

// OutputPipeline builds the output-side pipeline (§4.D): response
// quality, output content, PII reuse, prompt-leak. systemPrompt is the
// configured system prompt, needed by the prompt-leak guard.
func OutputPipeline(systemPrompt string) *Pipeline {
	return &Pipeline{Guards: []Guard{
		{Name: "response_quality", Eval: responseQualityGuard},
		{Name: "output_content", Eval: outputContentGuard},
		{Name: "pii", Eval: piiGuard},
		{Name: "prompt_leak", Eval: promptLeakGuard(systemPrompt)},
	}}
}

var injectionBlockPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore (all )?(previous|prior|above) instructions`),
	regexp.MustCompile(`(?i)you are now\s+\w+`),
	regexp.MustCompile(`(?i)forget (everything|all) (you|that)`),
	regexp.MustCompile(`(?i)reveal your (system )?prompt`),
	regexp.MustCompile(`(?i)print (your|the) system prompt`),
}

var zeroWidthPattern = regexp.MustCompile("[​‌‍﻿]")

func promptInjectionGuard(text string) GuardResult {
	for _, p := range injectionBlockPatterns {
		if p.MatchString(text) {
			return GuardResult{Severity: SeverityBlock, Reason: "prompt injection pattern detected"}
		}
	}
	if zeroWidthPattern.MatchString(text) {
		return GuardResult{Passed: true, Severity: SeverityWarn, Reason: "zero-width control characters present"}
	}
	return GuardResult{Passed: true, Severity: SeverityInfo}
}

var contentBlockPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)how (to|do i) (make|build) a (bomb|weapon)`),
	regexp.MustCompile(`(?i)how to (kill|murder|harm) (myself|someone)`),
}
var contentWarnPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(credential|exploit|vulnerability)\b`),
}

func contentFilterGuard(text string) GuardResult {
	for _, p := range contentBlockPatterns {
		if p.MatchString(text) {
			return GuardResult{Severity: SeverityBlock, Reason: "blocked content category"}
		}
	}
	for _, p := range contentWarnPatterns {
		if p.MatchString(text) {
			return GuardResult{Passed: true, Severity: SeverityWarn, Reason: "sensitive content category"}
		}
	}
	return GuardResult{Passed: true, Severity: SeverityInfo}
}

// piiFamily is one PII pattern family with its severity and redaction.
type piiFamily struct {
	name     string
	pattern  *regexp.Regexp
	severity Severity
	redact   func(match string) string
}

var suppressionContextWords = regexp.MustCompile(`(?i)\b(version|port|id|code|zip)\b`)

var piiFamilies = []piiFamily{
	{
		name:     "ssn",
		pattern:  regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		severity: SeverityBlock,
		redact:   func(string) string { return "[SSN-REDACTED]" },
	},
	{
		name:     "credit_card",
		pattern:  regexp.MustCompile(`\b(?:\d[ -]*?){13,16}\b`),
		severity: SeverityBlock,
		redact: func(match string) string {
			digits := strings.Map(func(r rune) rune {
				if r >= '0' && r <= '9' {
					return r
				}
				return -1
			}, match)
			if len(digits) < 4 {
				return "[CC-REDACTED]"
			}
			return "[CC-****" + digits[len(digits)-4:] + "]"
		},
	},
	{
		name:     "credential_mention",
		pattern:  regexp.MustCompile(`(?i)\b(password|api[_-]?key)\s*[:=]\s*\S+`),
		severity: SeverityBlock,
		redact:   func(string) string { return "[REDACTED]" },
	},
	{
		name:     "bank_account",
		pattern:  regexp.MustCompile(`(?i)\baccount\s*(number|#)\s*[:=]?\s*\d{6,17}\b`),
		severity: SeverityBlock,
		redact:   func(string) string { return "[ACCOUNT-REDACTED]" },
	},
	{
		name:     "email",
		pattern:  regexp.MustCompile(`\b[\w.+-]+@[\w-]+\.[\w.-]+\b`),
		severity: SeverityWarn,
		redact: func(match string) string {
			at := strings.Index(match, "@")
			if at <= 0 {
				return "[EMAIL-REDACTED]"
			}
			return match[:1] + "***@" + match[at+1:]
		},
	},
	{
		name:     "phone",
		pattern:  regexp.MustCompile(`\b\d[\d\-. ]{8,}\d\b`),
		severity: SeverityWarn,
		redact:   func(string) string { return "[PHONE-REDACTED]" },
	},
	{
		name:     "ip_address",
		pattern:  regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`),
		severity: SeverityWarn,
		redact:   func(string) string { return "[IP-REDACTED]" },
	},
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

// suppressFalsePositive applies the §4.D false-positive rules: an
// SSN-shaped number adjacent to "version/port/id/code/zip" is ignored, and
// a phone match with fewer than 10 digits is ignored.
func suppressFalsePositive(family piiFamily, text string, loc []int) bool {
	switch family.name {
	case "ssn":
		start := loc[0] - 20
		if start < 0 {
			start = 0
		}
		end := loc[1] + 20
		if end > len(text) {
			end = len(text)
		}
		return suppressionContextWords.MatchString(text[start:end])
	case "phone":
		return len(digitsOnly(text[loc[0]:loc[1]])) < 10
	}
	return false
}

func piiGuard(text string) GuardResult {
	var worst GuardResult = GuardResult{Passed: true, Severity: SeverityInfo}
	for _, family := range piiFamilies {
		loc := family.pattern.FindStringIndex(text)
		if loc == nil {
			continue
		}
		if suppressFalsePositive(family, text, loc) {
			continue
		}
		if family.severity == SeverityBlock {
			return GuardResult{Severity: SeverityBlock, Reason: "PII detected: " + family.name}
		}
		worst = GuardResult{Passed: true, Severity: SeverityWarn, Reason: "PII detected: " + family.name}
	}
	return worst
}

// RedactPII applies every family's redaction function to text, in family
// order. redact(redact(x)) == redact(x): redaction output never matches
// the families' own patterns again (the email family masks the local part
// as "x***@domain", which the email pattern does not match; the other
// families emit bracketed uppercase tokens).
func RedactPII(text string) string {
	for _, family := range piiFamilies {
		text = family.pattern.ReplaceAllStringFunc(text, family.redact)
	}
	return text
}

var trigramSplitter = regexp.MustCompile(`\s+`)
var stopwords = map[string]bool{"the": true, "a": true, "an": true, "and": true, "or": true, "but": true, "to": true, "of": true}
var overconfidentPhrases = []string{"definitely", "guaranteed", "100% certain", "absolutely sure"}
var uncertainTopicCues = []string{"might", "could be", "i think", "possibly", "not sure"}

func responseQualityGuard(text string) GuardResult {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < 5 {
		return GuardResult{Severity: SeverityBlock, Reason: "response too short"}
	}

	words := trigramSplitter.Split(trimmed, -1)
	if len(words) >= 3 {
		counts := make(map[string]int)
		var total int
		for i := 0; i+2 < len(words); i++ {
			trigram := strings.ToLower(words[i] + " " + words[i+1] + " " + words[i+2])
			counts[trigram]++
			total++
		}
		for trigram, count := range counts {
			if count >= 3 && total > 0 && float64(count)/float64(total) > 0.10 {
				return GuardResult{Passed: true, Severity: SeverityWarn, Reason: "repetitive trigram: " + trigram}
			}
		}
	}

	last := strings.ToLower(words[len(words)-1])
	last = strings.TrimRight(last, ".,!?;:")
	if stopwords[last] {
		return GuardResult{Passed: true, Severity: SeverityWarn, Reason: "response ends mid-thought"}
	}

	lower := strings.ToLower(trimmed)
	hasOverconfident := false
	for _, p := range overconfidentPhrases {
		if strings.Contains(lower, p) {
			hasOverconfident = true
			break
		}
	}
	if hasOverconfident {
		for _, cue := range uncertainTopicCues {
			if strings.Contains(lower, cue) {
				return GuardResult{Passed: true, Severity: SeverityWarn, Reason: "overconfident language on an uncertain topic"}
			}
		}
	}

	return GuardResult{Passed: true, Severity: SeverityInfo}
}

var destructiveShellPattern = regexp.MustCompile(`rm\s+-rf\s+/`)
var destructiveSQLPattern = regexp.MustCompile(`(?i)\b(DROP\s+TABLE|DELETE\s+FROM\s+\*|TRUNCATE)\b`)
var codeExecPattern = regexp.MustCompile(`(?i)\b(eval\(|exec\(|__import__\(|Runtime\.getRuntime)`)

func outputContentGuard(text string) GuardResult {
	switch {
	case destructiveShellPattern.MatchString(text):
		return GuardResult{Severity: SeverityBlock, Reason: "destructive shell pattern"}
	case destructiveSQLPattern.MatchString(text):
		return GuardResult{Severity: SeverityBlock, Reason: "destructive SQL pattern"}
	case codeExecPattern.MatchString(text):
		return GuardResult{Severity: SeverityBlock, Reason: "code execution attempt"}
	}
	return GuardResult{Passed: true, Severity: SeverityInfo}
}

var promptLeakDirectPattern = regexp.MustCompile(`(?i)my instructions say`)

// promptLeakGuard blocks a reply that directly claims to quote its
// instructions, or that reproduces >= 3 distinct fragments of the
// configured system prompt.
func promptLeakGuard(systemPrompt string) func(string) GuardResult {
	fragments := systemPromptFragments(systemPrompt)
	return func(text string) GuardResult {
		if promptLeakDirectPattern.MatchString(text) {
			return GuardResult{Severity: SeverityBlock, Reason: "direct prompt-leak phrasing"}
		}
		if len(fragments) == 0 {
			return GuardResult{Passed: true, Severity: SeverityInfo}
		}
		lower := strings.ToLower(text)
		matched := 0
		for _, frag := range fragments {
			if strings.Contains(lower, frag) {
				matched++
			}
		}
		if matched >= 3 {
			return GuardResult{Severity: SeverityBlock, Reason: "system prompt fragments leaked"}
		}
		return GuardResult{Passed: true, Severity: SeverityInfo}
	}
}

// systemPromptFragments splits a system prompt into distinct lowercase
// sentence-ish fragments of at least 8 words, long enough that an
// accidental 3-match is implausible.
func systemPromptFragments(systemPrompt string) []string {
	if systemPrompt == "" {
		return nil
	}
	var fragments []string
	for _, line := range strings.Split(systemPrompt, "\n") {
		words := strings.Fields(line)
		if len(words) >= 8 {
			fragments = append(fragments, strings.ToLower(strings.Join(words, " ")))
		}
	}
	return fragments
}
