package gaps

import (
	"sort"
	"strings"

	"visioncraft/internal/catalog"
	"visioncraft/internal/vision"
)

// Question priorities by source. Catalog-driven gap questions outrank the
// rule-table extras; within a tier, catalog declaration order decides.
const (
	priorityCriticalGap  = 90
	priorityImportantGap = 70
	priorityIndustry     = 60
	prioritySizeBucket   = 50
	priorityRecentTopic  = 40
)

// industryRule fires when the record's industry field contains a keyword.
type industryRule struct {
	keywords     []string
	text         string
	targetFields []string
	followUpType string
}

var industryRules = []industryRule{
	{
		keywords:     []string{"saas", "software", "tech"},
		text:         "For a software business, recurring revenue tells the story: what are your MRR and churn looking like?",
		targetFields: []string{"annual_revenue", "growth_rate"},
		followUpType: "industry",
	},
	{
		keywords:     []string{"retail", "ecommerce", "e-commerce", "shop"},
		text:         "Do you sell primarily online, through physical locations, or both?",
		targetFields: []string{"revenue_model"},
		followUpType: "industry",
	},
	{
		keywords:     []string{"health", "medical", "pharma"},
		text:         "How do regulatory or compliance requirements shape what you can offer?",
		targetFields: []string{"competitive_advantage"},
		followUpType: "industry",
	},
	{
		keywords:     []string{"consult", "agency", "services"},
		text:         "Is your work mostly retainer-based or project-based engagements?",
		targetFields: []string{"revenue_model", "products_services"},
		followUpType: "industry",
	},
}

// sizeRule fires based on the employee_count bucket.
type sizeRule struct {
	min, max     float64 // max exclusive; 0 max means unbounded
	text         string
	targetFields []string
}

var sizeRules = []sizeRule{
	{
		min: 1, max: 10,
		text:         "With a small team, focus matters most: what is the single most important goal right now?",
		targetFields: []string{"business_goals"},
	},
	{
		min: 10, max: 100,
		text:         "At your team size, scaling pains start to show: which milestone matters most in the next year?",
		targetFields: []string{"key_milestones"},
	},
	{
		min: 100, max: 0,
		text:         "At your scale, culture carries strategy: what values do you want every team to share?",
		targetFields: []string{"company_values"},
	},
}

// topicRule fires when the recent conversation mentions a keyword.
type topicRule struct {
	keywords     []string
	text         string
	targetFields []string
}

var topicRules = []topicRule{
	{
		keywords:     []string{"competitor", "competition", "rival"},
		text:         "You mentioned competitors — what sets you apart from them?",
		targetFields: []string{"competitive_advantage"},
	},
	{
		keywords:     []string{"launch", "release", "ship"},
		text:         "You mentioned an upcoming launch — what milestones lead up to it?",
		targetFields: []string{"key_milestones"},
	},
	{
		keywords:     []string{"funding", "investor", "raise"},
		text:         "Since funding came up: what revenue and growth numbers would you show an investor today?",
		targetFields: []string{"annual_revenue", "growth_rate"},
	},
}

// generateQuestions builds the full candidate list: catalog-driven gap
// questions first, then the industry, company-size, and recent-topic rule
// tables. Skipped fields are removed from every candidate's targets before
// ranking; candidates left with no targets are dropped.
func (s *Scorer) generateQuestions(cat *catalog.Catalog, rec *vision.VisionRecord, a Assessment, recentContext string) []Question {
	var out []Question

	for _, e := range cat.Entries() {
		if e.Category != catalog.CategoryCritical && e.Category != catalog.CategoryImportant {
			continue
		}
		if a.FieldScores[e.FieldName] >= catalog.WeakThresholds[e.Category] {
			continue
		}
		priority := priorityImportantGap
		if e.Category == catalog.CategoryCritical {
			priority = priorityCriticalGap
		}
		out = append(out, Question{
			Text:         e.Question,
			TargetFields: []string{e.FieldName},
			Priority:     priority,
			FollowUpType: e.FollowUpType,
		})
	}

	out = append(out, industryQuestions(rec)...)
	out = append(out, sizeQuestions(rec)...)
	out = append(out, topicQuestions(recentContext)...)

	out = filterSkipped(out, rec.SkipSet())

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return rankOrder(cat, out[i]) < rankOrder(cat, out[j])
	})

	return out
}

func industryQuestions(rec *vision.VisionRecord) []Question {
	industry, _ := rec.State["industry"].(string)
	if industry == "" {
		return nil
	}
	folded := strings.ToLower(industry)

	var out []Question
	for _, rule := range industryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(folded, kw) {
				out = append(out, Question{
					Text:         rule.text,
					TargetFields: append([]string(nil), rule.targetFields...),
					Priority:     priorityIndustry,
					FollowUpType: rule.followUpType,
				})
				break
			}
		}
	}
	return out
}

func sizeQuestions(rec *vision.VisionRecord) []Question {
	count := numericValue(rec.State["employee_count"])
	if count <= 0 {
		return nil
	}

	var out []Question
	for _, rule := range sizeRules {
		if count < rule.min {
			continue
		}
		if rule.max > 0 && count >= rule.max {
			continue
		}
		out = append(out, Question{
			Text:         rule.text,
			TargetFields: append([]string(nil), rule.targetFields...),
			Priority:     prioritySizeBucket,
			FollowUpType: "company_size",
		})
	}
	return out
}

func topicQuestions(recentContext string) []Question {
	if recentContext == "" {
		return nil
	}
	folded := strings.ToLower(recentContext)

	var out []Question
	for _, rule := range topicRules {
		for _, kw := range rule.keywords {
			if strings.Contains(folded, kw) {
				out = append(out, Question{
					Text:         rule.text,
					TargetFields: append([]string(nil), rule.targetFields...),
					Priority:     priorityRecentTopic,
					FollowUpType: "recent_context",
				})
				break
			}
		}
	}
	return out
}

// filterSkipped removes skipped fields from every candidate's targets and
// drops candidates that end up with none. No returned question may target
// a field the user declined to answer.
func filterSkipped(qs []Question, skip map[string]bool) []Question {
	if len(skip) == 0 {
		return qs
	}
	out := qs[:0]
	for _, q := range qs {
		kept := q.TargetFields[:0]
		for _, f := range q.TargetFields {
			if !skip[f] {
				kept = append(kept, f)
			}
		}
		if len(kept) == 0 {
			continue
		}
		q.TargetFields = kept
		out = append(out, q)
	}
	return out
}

// rankOrder returns the catalog position of a question's primary target,
// used to break priority ties deterministically.
func rankOrder(cat *catalog.Catalog, q Question) int {
	best := cat.Order("")
	for _, f := range q.TargetFields {
		if o := cat.Order(f); o < best {
			best = o
		}
	}
	return best
}
