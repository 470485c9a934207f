package catalog

// Default returns the production question sequence. The last topic is
// the free-text comment the /comment shortcut jumps to; the 0-2 rating
// gate follows the sequence and is handled by the engine, not a topic.
func Default() *Catalog {
	return MustNew([]Topic{
		{
			ID:     "emotions",
			Title:  "Emotions",
			Prompt: "How are you feeling right now?",
			Choices: []Choice{
				{Label: "Great", FollowUp: "What contributes to it?"},
				{Label: "Okay"},
				{Label: "Bad", FollowUp: "What is dragging you down?"},
			},
			DefaultFollowUp: "Why do you think so?",
			Elaborate:       true,
		},
		{
			ID:     "energy",
			Title:  "Energy",
			Prompt: "How is your energy level today?",
			Choices: []Choice{
				{Label: "High"},
				{Label: "Medium"},
				{Label: "Low", FollowUp: "What drained it?"},
			},
			DefaultFollowUp: "What affected it?",
			Elaborate:       true,
		},
		{
			ID:     "attention",
			Title:  "Attention",
			Prompt: "How focused is your attention today?",
		},
		{
			ID:     "conscientiousness",
			Title:  "Conscientiousness",
			Prompt: "Did you keep the commitments you made to yourself today?",
			Choices: []Choice{
				{Label: "Yes", Skip: true},
				{Label: "Partly"},
				{Label: "No"},
			},
			DefaultFollowUp: "What got in the way?",
			Elaborate:       true,
		},
		{
			ID:     "planning",
			Title:  "Planning",
			Prompt: "Did the day go according to plan?",
			Choices: []Choice{
				{Label: "Yes"},
				{Label: "Partly"},
				{Label: "No"},
			},
			DefaultFollowUp: "What changed it?",
			Elaborate:       true,
		},
		{
			ID:     "stress",
			Title:  "Stress",
			Prompt: "How stressed were you today?",
			Choices: []Choice{
				{Label: "Not at all", Skip: true},
				{Label: "Somewhat"},
				{Label: "Very"},
			},
			DefaultFollowUp: "What was the main source?",
			Elaborate:       true,
		},
		{
			ID:     "regime",
			Title:  "Regime",
			Prompt: "Did you keep your daily regime — sleep, meals, exercise?",
			Choices: []Choice{
				{Label: "Yes", Skip: true},
				{Label: "No"},
			},
			DefaultFollowUp: "What slipped?",
			Elaborate:       true,
		},
		{
			ID:     "body",
			Title:  "Body",
			Prompt: "How does your body feel?",
		},
		{
			ID:     "reading",
			Title:  "Reading",
			Prompt: "Did you read today?",
			Choices: []Choice{
				{Label: "Yes", FollowUp: "What did you read?"},
				{Label: "No", Skip: true},
			},
			DefaultFollowUp: "What did you read?",
			Elaborate:       true,
		},
		{
			ID:     "comment",
			Title:  "Comment",
			Prompt: "Anything else worth noting about today?",
		},
	})
}
