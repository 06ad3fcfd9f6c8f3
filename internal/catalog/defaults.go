package catalog

// Default returns the built-in field catalog. Weights follow category
// importance: critical 10, important 6, metric 4, enhancement 3.
// Override rows via a YAML catalog file, not by editing this table.
func Default() *Catalog {
	c, err := New(defaultEntries())
	if err != nil {
		// The static table is validated by tests; a bad row is a programming error.
		panic(err)
	}
	return c
}

func defaultEntries() []Entry {
	return []Entry{
		// Stage: basic_info
		{
			FieldName:    "company_name",
			Weight:       10,
			Category:     CategoryCritical,
			Kind:         KindText,
			Stage:        StageBasicInfo,
			Question:     "What is the name of your company?",
			FollowUpType: "identity",
		},
		{
			FieldName:    "industry",
			Weight:       10,
			Category:     CategoryCritical,
			Kind:         KindText,
			Stage:        StageBasicInfo,
			Question:     "Which industry does your company operate in?",
			FollowUpType: "identity",
		},
		{
			FieldName:    "target_market",
			Weight:       10,
			Category:     CategoryCritical,
			Kind:         KindText,
			Stage:        StageBasicInfo,
			Question:     "Who is your target market? Describe your ideal customer.",
			FollowUpType: "identity",
		},
		{
			FieldName:    "employee_count",
			Weight:       4,
			Category:     CategoryMetric,
			Kind:         KindNumber,
			Stage:        StageBasicInfo,
			Question:     "How many people work at your company?",
			FollowUpType: "metric",
		},

		// Stage: strategy
		{
			FieldName:    "value_proposition",
			Weight:       6,
			Category:     CategoryImportant,
			Kind:         KindText,
			Stage:        StageStrategy,
			Question:     "What unique value do you deliver to your customers?",
			FollowUpType: "strategy",
		},
		{
			FieldName:    "products_services",
			Weight:       6,
			Category:     CategoryImportant,
			Kind:         KindList,
			Stage:        StageStrategy,
			Question:     "What are your main products or services?",
			FollowUpType: "strategy",
		},
		{
			FieldName:    "business_goals",
			Weight:       6,
			Category:     CategoryImportant,
			Kind:         KindList,
			Stage:        StageStrategy,
			Question:     "What are your top business goals for the next year?",
			FollowUpType: "strategy",
		},
		{
			FieldName:    "competitive_advantage",
			Weight:       6,
			Category:     CategoryImportant,
			Kind:         KindText,
			Stage:        StageStrategy,
			Question:     "What sets you apart from your competitors?",
			FollowUpType: "strategy",
		},
		{
			FieldName:    "revenue_model",
			Weight:       6,
			Category:     CategoryImportant,
			Kind:         KindText,
			Stage:        StageStrategy,
			Question:     "How does your company make money?",
			FollowUpType: "strategy",
		},

		// Stage: metrics
		{
			FieldName:    "annual_revenue",
			Weight:       4,
			Category:     CategoryMetric,
			Kind:         KindNumber,
			Stage:        StageMetrics,
			Question:     "What is your approximate annual revenue?",
			FollowUpType: "metric",
		},
		{
			FieldName:    "growth_rate",
			Weight:       4,
			Category:     CategoryMetric,
			Kind:         KindNumber,
			Stage:        StageMetrics,
			Question:     "What year-over-year growth rate are you seeing?",
			FollowUpType: "metric",
		},
		{
			FieldName:    "customer_count",
			Weight:       4,
			Category:     CategoryMetric,
			Kind:         KindNumber,
			Stage:        StageMetrics,
			Question:     "Roughly how many customers do you serve today?",
			FollowUpType: "metric",
		},

		// Stage: implementation
		{
			FieldName:    "key_milestones",
			Weight:       3,
			Category:     CategoryEnhancement,
			Kind:         KindList,
			Stage:        StageImplementation,
			Question:     "What milestones would make the next year a success?",
			FollowUpType: "planning",
		},
		{
			FieldName:    "key_partnerships",
			Weight:       3,
			Category:     CategoryEnhancement,
			Kind:         KindList,
			Stage:        StageImplementation,
			Question:     "Do you rely on any key partnerships or suppliers?",
			FollowUpType: "planning",
		},
		{
			FieldName:    "company_values",
			Weight:       3,
			Category:     CategoryEnhancement,
			Kind:         KindList,
			Stage:        StageImplementation,
			Question:     "What values guide how your company operates?",
			FollowUpType: "culture",
		},
		{
			FieldName:    "brand_voice",
			Weight:       3,
			Category:     CategoryEnhancement,
			Kind:         KindText,
			Stage:        StageImplementation,
			Question:     "How would you describe your brand's voice and tone?",
			FollowUpType: "culture",
		},
	}
}
