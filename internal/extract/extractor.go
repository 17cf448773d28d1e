package extract

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/anthropic/worklog/internal/model"
)

// Result caps. Output beyond these is truncated after sorting.
const (
	maxEntities  = 20
	maxDecisions = 10
	maxTopics    = 5
)

// Entity is a tracked mention of a file, component, function, or class.
type Entity struct {
	Name           string    `json:"name"`
	Type           string    `json:"type"` // file | component | function | class
	Mentions       int       `json:"mentions"`
	FirstMentioned time.Time `json:"firstMentioned"`
	LastMentioned  time.Time `json:"lastMentioned"`
}

// Decision is a recognized technology or approach choice.
type Decision struct {
	Description     string    `json:"description"`
	Timestamp       time.Time `json:"timestamp"`
	RelatedEntities []string  `json:"relatedEntities,omitempty"`
	Importance      string    `json:"importance"` // high | medium | low
}

// TechStack detects technologies mentioned across the prompts. First match
// wins per technology; the result is deduplicated in table order.
func TechStack(prompts []*model.Prompt) []string {
	var found []string
	for _, tech := range techStackTable {
		for _, p := range prompts {
			if matchAny(tech.Patterns, p.Text) {
				found = append(found, tech.Name)
				break
			}
		}
	}
	return found
}

// TechStackOfText is TechStack over a single text.
func TechStackOfText(text string) []string {
	var found []string
	for _, tech := range techStackTable {
		if matchAny(tech.Patterns, text) {
			found = append(found, tech.Name)
		}
	}
	return found
}

func matchAny(patterns []*regexp.Regexp, text string) bool {
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Entities classifies mentions across the prompts into files, components,
// functions, and classes, counting per-entity mentions. The result is
// sorted by mentions descending and capped at 20.
func Entities(prompts []*model.Prompt) []Entity {
	byName := make(map[string]*Entity)

	record := func(name, kind string, ts time.Time) {
		key := kind + ":" + name
		e, ok := byName[key]
		if !ok {
			e = &Entity{Name: name, Type: kind, FirstMentioned: ts, LastMentioned: ts}
			byName[key] = e
		}
		e.Mentions++
		if ts.Before(e.FirstMentioned) {
			e.FirstMentioned = ts
		}
		if ts.After(e.LastMentioned) {
			e.LastMentioned = ts
		}
	}

	for _, p := range prompts {
		for _, m := range fileEntityRe.FindAllStringSubmatch(p.Text, -1) {
			record(m[1], "file", p.Timestamp)
		}
		for _, m := range componentEntityRe.FindAllStringSubmatch(p.Text, -1) {
			if componentStoplist[m[1]] {
				continue
			}
			record(m[1], "component", p.Timestamp)
		}
		for _, m := range functionEntityRe.FindAllStringSubmatch(p.Text, -1) {
			record(m[1], "function", p.Timestamp)
		}
		for _, m := range hookEntityRe.FindAllStringSubmatch(p.Text, -1) {
			record(m[1], "function", p.Timestamp)
		}
		for _, m := range classEntityRe.FindAllStringSubmatch(p.Text, -1) {
			name := m[1]
			if name == "" {
				name = m[2]
			}
			record(name, "class", p.Timestamp)
		}
	}

	out := make([]Entity, 0, len(byName))
	for _, e := range byName {
		out = append(out, *e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Mentions != out[j].Mentions {
			return out[i].Mentions > out[j].Mentions
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > maxEntities {
		out = out[:maxEntities]
	}
	return out
}

// Decisions recognizes decision cues in the prompts. Similar descriptions
// (first 30 chars, case-insensitive) are deduplicated; capped at 10.
func Decisions(prompts []*model.Prompt) []Decision {
	var out []Decision
	seen := make(map[string]bool)

	for _, p := range prompts {
		for _, re := range decisionPatterns {
			for _, m := range re.FindAllStringSubmatch(p.Text, -1) {
				desc := strings.TrimSpace(m[1])
				if desc == "" {
					continue
				}

				key := strings.ToLower(desc)
				if len(key) > 30 {
					key = key[:30]
				}
				if seen[key] {
					continue
				}
				seen[key] = true

				out = append(out, Decision{
					Description:     desc,
					Timestamp:       p.Timestamp,
					RelatedEntities: sentenceEntities(desc),
					Importance:      importanceOf(desc),
				})
				if len(out) >= maxDecisions {
					return out
				}
			}
		}
	}
	return out
}

// sentenceEntities extracts a shallow entity list from a decision sentence.
func sentenceEntities(sentence string) []string {
	var names []string
	for _, m := range fileEntityRe.FindAllStringSubmatch(sentence, -1) {
		names = append(names, m[1])
	}
	for _, m := range componentEntityRe.FindAllStringSubmatch(sentence, -1) {
		if !componentStoplist[m[1]] {
			names = append(names, m[1])
		}
	}
	return names
}

// importanceOf scores a decision by keyword overlap.
func importanceOf(desc string) string {
	lower := strings.ToLower(desc)
	for _, w := range highImportanceWords {
		if strings.Contains(lower, w) {
			return "high"
		}
	}
	for _, w := range lowImportanceWords {
		if strings.Contains(lower, w) {
			return "low"
		}
	}
	return "medium"
}

// Topics counts topic-term occurrences and returns the top 5 by count.
func Topics(prompts []*model.Prompt) []string {
	counts := topicCounts(prompts)

	type tc struct {
		topic string
		n     int
	}
	var ranked []tc
	for topic, n := range counts {
		ranked = append(ranked, tc{topic, n})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].n != ranked[j].n {
			return ranked[i].n > ranked[j].n
		}
		return ranked[i].topic < ranked[j].topic
	})

	var out []string
	for _, r := range ranked {
		out = append(out, r.topic)
		if len(out) >= maxTopics {
			break
		}
	}
	return out
}

// TopicsOfText returns topics present in a single text, capped at 5.
func TopicsOfText(text string) []string {
	lower := strings.ToLower(text)
	var out []string
	for _, topic := range topicTable {
		if strings.Contains(lower, topic) {
			out = append(out, topic)
			if len(out) >= maxTopics {
				break
			}
		}
	}
	return out
}

func topicCounts(prompts []*model.Prompt) map[string]int {
	counts := make(map[string]int)
	for _, p := range prompts {
		lower := strings.ToLower(p.Text)
		for _, topic := range topicTable {
			if n := strings.Count(lower, topic); n > 0 {
				counts[topic] += n
			}
		}
	}
	return counts
}
