package relay

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/zhouzirui/z-lingo/backend/internal/service/links"
)

// RecoveryPath names how a structured response was obtained from the accumulated text.
type RecoveryPath string

const (
	PathJSON     RecoveryPath = "json"
	PathRepaired RecoveryPath = "repaired"
	PathFallback RecoveryPath = "fallback"
)

var (
	leadingFence  = regexp.MustCompile("^```[A-Za-z0-9_-]*[ \t]*\r?\n?")
	trailingFence = regexp.MustCompile("\r?\n?```$")
	markdownLink  = regexp.MustCompile(`\[([^\]\n]+)\]\(([^)\s]+)\)`)
)

// Envelope is the structured result recovered from a finished response.
type Envelope struct {
	Path RecoveryPath
	// Message is set only when the JSON envelope carried a string message field.
	Message    string
	HasMessage bool
	Candidates []links.Candidate
}

// Recover extracts {message, navigationLinks} from the accumulated model output.
// Missing closing braces are appended as a best-effort repair of truncated output;
// nothing else is repaired. When no JSON object can be parsed, markdown links are
// pulled from the raw text and the raw text stays the display message.
func Recover(accumulated string) Envelope {
	if obj, repaired, ok := parseEnvelopeObject(accumulated); ok {
		env := Envelope{Path: PathJSON}
		if repaired {
			env.Path = PathRepaired
		}
		if msg, ok := obj["message"].(string); ok {
			env.Message = msg
			env.HasMessage = true
		}
		if items, ok := obj["navigationLinks"].([]any); ok {
			env.Candidates = links.CandidatesFromJSON(items)
		}
		return env
	}

	return Envelope{Path: PathFallback, Candidates: ExtractMarkdownLinks(accumulated)}
}

func parseEnvelopeObject(accumulated string) (map[string]any, bool, bool) {
	trimmed := stripFence(strings.TrimSpace(accumulated))

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, false, false
	}
	candidate := trimmed[start : end+1]

	repaired := false
	if missing := strings.Count(candidate, "{") - strings.Count(candidate, "}"); missing > 0 {
		candidate += strings.Repeat("}", missing)
		repaired = true
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(candidate), &obj); err != nil {
		return nil, false, false
	}
	return obj, repaired, true
}

func stripFence(text string) string {
	text = leadingFence.ReplaceAllString(text, "")
	text = trailingFence.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// ExtractMarkdownLinks finds [label](url) references in free text.
func ExtractMarkdownLinks(text string) []links.Candidate {
	matches := markdownLink.FindAllStringSubmatch(text, -1)
	out := make([]links.Candidate, 0, len(matches))
	for _, m := range matches {
		out = append(out, links.NewCandidate(m[1], m[2]))
	}
	return out
}
