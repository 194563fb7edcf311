/*
Package scoring holds the tunable scoring-rule table used by tool
selection and routing: relevance weights per selection strategy, keyword
synonym groups, task-text triggers and rationale quality keywords.

The default table is embedded as TOML and can be replaced from a file so
tuning does not require code changes.
*/
package scoring

import (
	_ "embed"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
)

//go:embed rules.toml
var defaultRules []byte

// MaxQualityScore caps the rationale quality score.
const MaxQualityScore = 10

// Rules is the scoring-rule table.
type Rules struct {
	Strategies      map[string]map[string]float64 `toml:"strategies"`
	Synonyms        map[string][]string           `toml:"synonyms"`
	Triggers        map[string][]string           `toml:"triggers"`
	QualityKeywords []string                      `toml:"quality_keywords"`

	// parentOf maps a synonym to its parent keyword.
	parentOf map[string][]string
}

// LoadDefault parses the embedded rule table.
func LoadDefault() (*Rules, error) {
	return Load(defaultRules)
}

// LoadFile parses a rule table from disk.
func LoadFile(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read rules %s", path)
	}
	return Load(data)
}

// Load parses TOML rule data.
func Load(data []byte) (*Rules, error) {
	var r Rules
	if err := toml.Unmarshal(data, &r); err != nil {
		return nil, errors.Wrap(err, "failed to parse scoring rules")
	}
	for strategy, weights := range r.Strategies {
		for tool, w := range weights {
			if w < 0 {
				return nil, errors.Newf("strategy %q: negative weight %v for %q", strategy, w, tool)
			}
		}
	}
	r.index()
	return &r, nil
}

func (r *Rules) index() {
	r.parentOf = make(map[string][]string)
	for parent, syns := range r.Synonyms {
		for _, s := range syns {
			s = strings.ToLower(s)
			r.parentOf[s] = append(r.parentOf[s], strings.ToLower(parent))
		}
	}
	for k := range r.parentOf {
		sort.Strings(r.parentOf[k])
	}
	for i, k := range r.QualityKeywords {
		r.QualityKeywords[i] = strings.ToLower(k)
	}
}

// Weight returns the relevance weight of a tool under a strategy.
func (r *Rules) Weight(strategy, tool string) float64 {
	return r.Strategies[strategy][tool]
}

// MaxWeight returns the largest weight declared for a strategy.
func (r *Rules) MaxWeight(strategy string) float64 {
	max := 0.0
	for _, w := range r.Strategies[strategy] {
		if w > max {
			max = w
		}
	}
	return max
}

// ExpandKeywords adds synonym-group members to a keyword set. A synonym
// activates its parent and a parent activates its synonyms. The result is
// sorted and free of duplicates.
func (r *Rules) ExpandKeywords(keywords []string) []string {
	set := make(map[string]struct{}, len(keywords))
	for _, k := range keywords {
		set[k] = struct{}{}
	}
	for _, k := range keywords {
		for _, parent := range r.parentOf[k] {
			set[parent] = struct{}{}
			for _, s := range r.Synonyms[parent] {
				set[strings.ToLower(s)] = struct{}{}
			}
		}
		if syns, ok := r.Synonyms[k]; ok {
			for _, s := range syns {
				set[strings.ToLower(s)] = struct{}{}
			}
		}
	}

	out := make([]string, 0, len(set))
	for k := range set {
		if len(k) > MinKeywordLength {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// QualityScore counts distinct quality keywords present in text, capped
// at MaxQualityScore.
func (r *Rules) QualityScore(text string) float64 {
	text = strings.ToLower(text)
	n := 0
	for _, k := range r.QualityKeywords {
		if strings.Contains(text, k) {
			n++
		}
	}
	if n > MaxQualityScore {
		n = MaxQualityScore
	}
	return float64(n)
}

// TriggeredTools returns the tools whose trigger terms occur in text, in
// sorted order.
func (r *Rules) TriggeredTools(text string) []string {
	seen := make(map[string]struct{})
	for _, tok := range Tokenize(text) {
		for _, tool := range r.Triggers[tok] {
			seen[tool] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
