package analyzer

import (
	"regexp"
	"strings"

	"github.com/easygenie/orchestrator/pkg/models"
)

// ── Pattern tables ───────────────────────────────────────────

var (
	completionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bin summary\b`),
		regexp.MustCompile(`(?i)\bto conclude\b`),
		regexp.MustCompile(`(?i)\bin conclusion\b`),
		regexp.MustCompile(`(?i)\boverall\b`),
		regexp.MustCompile(`(?i)\bfinally\b`),
	}
	incompletePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bi cannot\b`),
		regexp.MustCompile(`(?i)\bi can't\b`),
		regexp.MustCompile(`(?i)\bunable to\b`),
		regexp.MustCompile(`(?i)\bmore information needed\b`),
		regexp.MustCompile(`(?i)\bplease provide\b`),
		regexp.MustCompile(`(?i)\bplease clarify\b`),
	}
	clearPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bfor example\b`),
		regexp.MustCompile(`(?i)\bspecifically\b`),
		regexp.MustCompile(`(?i)\bin other words\b`),
		regexp.MustCompile(`(?i)\bthis means\b`),
		regexp.MustCompile(`(?i)\bstep \d`),
	}
	unclearPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bsomehow\b`),
		regexp.MustCompile(`(?i)\bsort of\b`),
		regexp.MustCompile(`(?i)\bkind of\b`),
		regexp.MustCompile(`(?i)\bmaybe\b`),
		regexp.MustCompile(`(?i)\bpossibly\b`),
		regexp.MustCompile(`(?i)\bit depends\b`),
	}
	structurePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?m)^\s*\d+[.)]\s`),
		regexp.MustCompile(`(?m)^\s*[-*•]\s`),
		regexp.MustCompile(`(?m)^\s*#{1,6}\s`),
		regexp.MustCompile(`(?m)^\s*\w[^\n]{0,60}:\s*$`),
	}
	uncertaintyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bi think\b`),
		regexp.MustCompile(`(?i)\bi believe\b`),
		regexp.MustCompile(`(?i)\bnot sure\b`),
		regexp.MustCompile(`(?i)\bmight be\b`),
		regexp.MustCompile(`(?i)\bcould be\b`),
	}
	contradictionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bhowever,? the opposite\b`),
		regexp.MustCompile(`(?i)\bon second thought\b`),
		regexp.MustCompile(`(?i)\bactually,? no\b`),
		regexp.MustCompile(`(?i)\bcorrection:\b`),
	}
	confidencePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bcertainly\b`),
		regexp.MustCompile(`(?i)\bdefinitely\b`),
		regexp.MustCompile(`(?i)\bclearly\b`),
		regexp.MustCompile(`(?i)\bprecisely\b`),
	}
	practicalPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\byou can\b`),
		regexp.MustCompile(`(?i)\btry\b`),
		regexp.MustCompile(`(?i)\buse\b`),
		regexp.MustCompile(`(?i)\bapply\b`),
		regexp.MustCompile(`(?i)\bimplement\b`),
		regexp.MustCompile(`(?i)\bfollow\b`),
	}
	actionablePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bfirst\b`),
		regexp.MustCompile(`(?i)\bnext\b`),
		regexp.MustCompile(`(?i)\bthen\b`),
		regexp.MustCompile(`(?i)\bstart by\b`),
		regexp.MustCompile(`(?i)\bstep\b`),
	}
	genericPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bit depends\b`),
		regexp.MustCompile(`(?i)\bthere are many\b`),
		regexp.MustCompile(`(?i)\bin general\b`),
		regexp.MustCompile(`(?i)\bvarious (?:ways|options|factors)\b`),
		regexp.MustCompile(`(?i)\bit is important to\b`),
	}
	transitionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\btherefore\b`),
		regexp.MustCompile(`(?i)\bfurthermore\b`),
		regexp.MustCompile(`(?i)\badditionally\b`),
		regexp.MustCompile(`(?i)\bas a result\b`),
		regexp.MustCompile(`(?i)\bconsequently\b`),
		regexp.MustCompile(`(?i)\bmoreover\b`),
	}
	abruptPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bunrelated(?:ly)?\b`),
		regexp.MustCompile(`(?i)\bchanging (?:the )?topic\b`),
		regexp.MustCompile(`(?i)\bon a different note\b`),
	}
	vaguePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bsomething\b`),
		regexp.MustCompile(`(?i)\bstuff\b`),
		regexp.MustCompile(`(?i)\bthings\b`),
		regexp.MustCompile(`(?i)\bsomewhat\b`),
		regexp.MustCompile(`(?i)\betc\.?`),
	}
	specificPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b\d+(?:\.\d+)?%?\b`),
		regexp.MustCompile(`\b[A-Z][a-z]+(?:[A-Z][a-z]+)+\b`), // CamelCase names
		regexp.MustCompile("`[^`]+`"),                         // inline code
		regexp.MustCompile(`(?i)\bversion \d`),
	}
	imperativePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?im)^\s*(?:run|open|click|create|install|set|add|remove|check|select)\b`),
	}
	listPattern = regexp.MustCompile(`(?m)^\s*(?:\d+[.)]|[-*•])\s`)

	wordPattern = regexp.MustCompile(`[A-Za-z]{3,}`)
)

func countMatches(patterns []*regexp.Regexp, s string) int {
	n := 0
	for _, p := range patterns {
		n += len(p.FindAllStringIndex(s, -1))
	}
	return n
}

// ── Relevance ────────────────────────────────────────────────

// termOverlap is the fraction of significant prompt terms that occur
// in the response.
func termOverlap(prompt, response string) float64 {
	promptTerms := wordPattern.FindAllString(strings.ToLower(prompt), -1)
	if len(promptTerms) == 0 {
		return 0.5
	}
	responseTerms := make(map[string]bool)
	for _, t := range wordPattern.FindAllString(strings.ToLower(response), -1) {
		responseTerms[t] = true
	}

	unique := make(map[string]bool, len(promptTerms))
	matched := 0
	for _, t := range promptTerms {
		if unique[t] {
			continue
		}
		unique[t] = true
		if responseTerms[t] {
			matched++
		}
	}
	return float64(matched) / float64(len(unique))
}

// scoreRelevance measures term overlap with the prompt plus small
// bonuses when the response names the tool or operation.
func scoreRelevance(in *Input) float64 {
	score := termOverlap(in.Prompt, in.Response)

	lower := strings.ToLower(in.Response)
	if in.Tool != "" && strings.Contains(lower, strings.ToLower(strings.ReplaceAll(in.Tool, "_", " "))) {
		score += 0.1
	}
	if in.Operation != "" && strings.Contains(lower, strings.ToLower(strings.ReplaceAll(in.Operation, "_", " "))) {
		score += 0.1
	}
	return clamp01(score)
}

// ── Completeness ─────────────────────────────────────────────

func scoreCompleteness(response string) float64 {
	score := 0.5

	score += 0.1 * float64(countMatches(completionPatterns, response))
	score -= 0.15 * float64(countMatches(incompletePatterns, response))

	switch n := len(response); {
	case n >= 200 && n <= 2000:
		score += 0.1
	case n < 200:
		score -= 0.2
	case n > 4000:
		score -= 0.1
	}

	trimmed := strings.TrimSpace(response)
	if strings.HasSuffix(trimmed, "...") || strings.HasSuffix(strings.ToLower(trimmed), "etc.") {
		score -= 0.2
	}
	return clamp01(score)
}

// ── Clarity ──────────────────────────────────────────────────

func sentences(s string) []string {
	parts := regexp.MustCompile(`[.!?]+\s+`).Split(s, -1)
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

func scoreClarity(response string) float64 {
	score := 0.5

	score += 0.05 * float64(countMatches(clearPatterns, response))
	score -= 0.1 * float64(countMatches(unclearPatterns, response))

	sents := sentences(response)
	if len(sents) > 0 {
		words := len(strings.Fields(response))
		avg := float64(words) / float64(len(sents))
		switch {
		case avg >= 15 && avg <= 25:
			score += 0.1
		case avg > 40:
			score -= 0.2
		case avg < 5:
			score -= 0.1
		}
	}

	if countMatches(structurePatterns, response) >= 2 {
		score += 0.15
	}
	return clamp01(score)
}

// ── Accuracy ─────────────────────────────────────────────────

// scoreAccuracy starts from trust and deducts for hedging and
// self-contradiction. True factual checking is out of reach for a
// local heuristic, so this approximates it via tone.
func scoreAccuracy(response string) float64 {
	score := 0.8
	score -= 0.1 * float64(countMatches(uncertaintyPatterns, response))
	score -= 0.2 * float64(countMatches(contradictionPatterns, response))
	score += 0.05 * float64(countMatches(confidencePatterns, response))
	return clamp01(score)
}

// ── Usefulness ───────────────────────────────────────────────

func scoreUsefulness(response string) float64 {
	score := 0.5
	score += 0.08 * float64(countMatches(practicalPatterns, response))
	if countMatches(actionablePatterns, response) >= 3 {
		score += 0.2
	}
	if countMatches(genericPatterns, response) >= 3 {
		score -= 0.3
	}
	return clamp01(score)
}

// ── Coherence ────────────────────────────────────────────────

func scoreCoherence(response string) float64 {
	score := 0.7

	transitions := float64(countMatches(transitionPatterns, response)) * 0.05
	if transitions > 0.2 {
		transitions = 0.2
	}
	score += transitions

	// A dominant topic word recurring across sentences suggests the
	// response stays on one subject.
	sents := sentences(response)
	if len(sents) > 1 {
		freq := make(map[string]int)
		for _, w := range wordPattern.FindAllString(strings.ToLower(response), -1) {
			if len(w) >= 5 {
				freq[w]++
			}
		}
		top := 0
		for _, n := range freq {
			if n > top {
				top = n
			}
		}
		if float64(top) >= float64(len(sents))*0.3 {
			score += 0.1
		}
	}

	if countMatches(abruptPatterns, response) > 0 {
		score -= 0.2
	}
	return clamp01(score)
}

// ── Specificity ──────────────────────────────────────────────

func scoreSpecificity(response string) float64 {
	score := 0.5

	specifics := float64(countMatches(specificPatterns, response)) * 0.05
	if specifics > 0.3 {
		specifics = 0.3
	}
	score += specifics

	score -= 0.08 * float64(countMatches(vaguePatterns, response))
	return clamp01(score)
}

// ── Actionability ────────────────────────────────────────────

func scoreActionability(response string) float64 {
	score := 0.3

	actions := float64(countMatches(practicalPatterns, response)) * 0.1
	if actions > 0.5 {
		actions = 0.5
	}
	score += actions

	imperatives := float64(countMatches(imperativePatterns, response)) * 0.1
	if imperatives > 0.3 {
		imperatives = 0.3
	}
	score += imperatives

	if listPattern.MatchString(response) {
		score += 0.2
	}
	return clamp01(score)
}

// ── Issue detection ──────────────────────────────────────────

func detectIssues(in *Input, scores map[models.Metric]float64) []models.Issue {
	var issues []models.Issue
	seen := make(map[models.Issue]bool)
	add := func(i models.Issue) {
		if !seen[i] {
			seen[i] = true
			issues = append(issues, i)
		}
	}

	if len(in.Response) < 50 {
		add(models.IssueIncomplete)
	}
	if len(in.Response) > 5000 {
		add(models.IssueExcessiveLength)
	}
	if countMatches(genericPatterns, in.Response) >= 3 {
		add(models.IssueTooGeneric)
	}
	if countMatches(incompletePatterns, in.Response) >= 2 {
		add(models.IssueIncomplete)
	}
	if len(in.Response) > 600 && countMatches(structurePatterns, in.Response) == 0 {
		add(models.IssuePoorStructure)
	}
	if countMatches(unclearPatterns, in.Response) >= 5 {
		add(models.IssueUnclearLanguage)
	}
	if termOverlap(in.Prompt, in.Response) < 0.2 {
		add(models.IssueOffTopic)
	}
	return issues
}

var issueSuggestions = map[models.Issue]string{
	models.IssueTooGeneric:      "Ask for concrete examples or constraints to get a more specific answer.",
	models.IssueIncomplete:      "Increase max tokens or rephrase the request to allow a complete answer.",
	models.IssueExcessiveLength: "Request a concise summary or set a tighter word limit.",
	models.IssuePoorStructure:   "Ask for a structured format such as a numbered list.",
	models.IssueUnclearLanguage: "Ask for a plainer explanation without hedging.",
	models.IssueOffTopic:        "Restate the question with the key terms the answer must address.",
}

func suggestions(issues []models.Issue) []string {
	if len(issues) == 0 {
		return nil
	}
	out := make([]string, 0, len(issues))
	for _, i := range issues {
		if s, ok := issueSuggestions[i]; ok {
			out = append(out, s)
		}
	}
	return out
}
