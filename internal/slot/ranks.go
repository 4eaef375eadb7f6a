// Package slot classifies people into fixed executive roles and resolves
// assignment conflicts deterministically.
package slot

import (
	"regexp"
	"strings"

	"github.com/sells-group/intent-core/internal/model"
)

// Classification is the outcome of the title classifier.
type Classification struct {
	Slot model.SlotType `json:"slot"`
	Rank int            `json:"rank"`
}

// titleRule maps title phrases to a slot and seniority rank. Rules are an
// explicit ordered table (first match wins) so tie-break behavior stays
// auditable.
type titleRule struct {
	phrases []string
	slot    model.SlotType
	rank    int
}

// titleRules is evaluated top to bottom. More specific phrases come before
// generic ones.
var titleRules = []titleRule{
	{
		phrases: []string{
			"chief human resources officer", "chief hr officer",
			"chief people officer", "chro",
		},
		slot: model.SlotHRExecutive,
		rank: 100,
	},
	{
		phrases: []string{
			"vp of human resources", "vice president of human resources",
			"vp of people", "vp hr", "head of human resources",
			"head of people", "head of hr",
		},
		slot: model.SlotHRExecutive,
		rank: 90,
	},
	{
		phrases: []string{
			"director of human resources", "human resources director",
			"hr director", "director of people", "people director",
		},
		slot: model.SlotHRManager,
		rank: 85,
	},
	{
		phrases: []string{
			"human resources manager", "hr manager",
			"people operations manager", "people ops manager",
		},
		slot: model.SlotHRManager,
		rank: 80,
	},
	{
		phrases: []string{
			"director of benefits", "benefits director",
		},
		slot: model.SlotBenefitsLead,
		rank: 65,
	},
	{
		phrases: []string{
			"benefits manager", "benefits lead", "benefits administrator",
			"total rewards",
		},
		slot: model.SlotBenefitsLead,
		rank: 60,
	},
	{
		phrases: []string{
			"payroll manager", "payroll administrator", "payroll specialist",
			"payroll",
		},
		slot: model.SlotPayrollAdmin,
		rank: 50,
	},
	{
		phrases: []string{
			"hr generalist", "hr specialist", "hr coordinator",
			"hr assistant", "human resources coordinator",
			"human resources assistant", "human resources generalist",
		},
		slot: model.SlotHRSupport,
		rank: 30,
	},
}

// phraseRes holds a compiled word-boundary matcher per rule, built once.
// Boundary matching keeps short acronyms like "chro" from firing inside
// unrelated words.
var phraseRes = compileRules()

func compileRules() []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(titleRules))
	for i, rule := range titleRules {
		quoted := make([]string, len(rule.phrases))
		for j, p := range rule.phrases {
			quoted[j] = regexp.QuoteMeta(p)
		}
		res[i] = regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`)
	}
	return res
}

var titleCleanRe = regexp.MustCompile(`[^a-z0-9&/ ]`)

func normalizeTitle(title string) string {
	t := strings.ToLower(strings.TrimSpace(title))
	t = strings.ReplaceAll(t, "&", " and ")
	t = strings.ReplaceAll(t, "/", " ")
	t = titleCleanRe.ReplaceAllString(t, " ")
	return strings.Join(strings.Fields(t), " ")
}

// ClassifyTitle maps a job title to a slot type and seniority rank via the
// ordered keyword table. The second return is false when no rule matches.
func ClassifyTitle(title string) (Classification, bool) {
	t := normalizeTitle(title)
	if t == "" {
		return Classification{}, false
	}
	for i, re := range phraseRes {
		if re.MatchString(t) {
			return Classification{Slot: titleRules[i].slot, Rank: titleRules[i].rank}, true
		}
	}
	return Classification{}, false
}
