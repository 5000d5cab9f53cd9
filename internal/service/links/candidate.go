package links

import "github.com/zhouzirui/z-lingo/backend/internal/model/chat"

// Candidate is a navigation link exactly as the model produced it. Label and URL
// keep their decoded JSON types so that non-string values can be rejected.
type Candidate struct {
	Label any
	URL   any
}

// NewCandidate builds a candidate from plain strings, as found by markdown extraction.
func NewCandidate(label, url string) Candidate {
	return Candidate{Label: label, URL: url}
}

// CandidatesFromJSON converts a decoded navigationLinks array. Elements that are
// not objects become empty candidates and are dropped by the validator.
func CandidatesFromJSON(items []any) []Candidate {
	out := make([]Candidate, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			out = append(out, Candidate{})
			continue
		}
		out = append(out, Candidate{Label: obj["label"], URL: obj["url"]})
	}
	return out
}

// CandidatesFromLinks wraps already typed links, e.g. for re-validation.
func CandidatesFromLinks(items []chat.Link) []Candidate {
	out := make([]Candidate, 0, len(items))
	for _, item := range items {
		out = append(out, NewCandidate(item.Label, item.URL))
	}
	return out
}
