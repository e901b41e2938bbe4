package composer

// Built-in stages for the renewal and onboarding playbooks. Text is left unhydrated here; the
// composer resolves {{...}} placeholders against the customer context afterwards.

func NewDefaultStageRegistry() *StageRegistry {
	return NewStageRegistry().MustRegister(BuiltinStages()...)
}

func BuiltinStages() []Stage {
	return []Stage{
		welcomeStage(),
		accountOverviewStage(),
		stakeholderStage(),
		riskReviewStage(),
		pricingStage(),
		actionPlanStage(),
		summaryStage(),
	}
}

func welcomeStage() Stage {
	return Stage{
		ID: "welcome",
		DefaultConfig: Config{
			"title":    "Getting started",
			"greeting": "Hi! Let's get {{customer.name}} ready for {{workflow.name}}.",
		},
		Schema: `{
			"type": "object",
			"properties": {
				"title": {"type": "string", "minLength": 1},
				"greeting": {"type": "string", "minLength": 1}
			},
			"required": ["title", "greeting"]
		}`,
		Build: func(cfg Config) Slide {
			return Slide{
				ID:    "welcome",
				Stage: "welcome",
				Title: cfg.String("title"),
				Chat: Chat{
					InitialBranch: "initial",
					Branches: map[string]Branch{
						"initial": {
							ID:       "initial",
							Response: cfg.String("greeting"),
							Buttons: []Button{
								{Label: "Let's go", Value: "start"},
								{Label: "Not now", Value: "later"},
							},
							NextBranches: map[string]string{"start": "ready", "later": "snooze"},
						},
						"ready": {ID: "ready", Response: "Great, we'll start with the account overview."},
						"snooze": {
							ID:       "snooze",
							Response: "No problem. When should I remind you?",
							Component: &Component{
								Type:  "snooze-picker",
								Props: map[string]interface{}{"options": []interface{}{1, 3, 7}},
							},
							StoreAs: "snooze_days",
						},
					},
				},
				Artifact: Artifact{Sections: []Section{{
					Type:    "header",
					Title:   "{{customer.name}}",
					Content: "Owner {{customer.owner_id}}, tier {{customer.tier}}",
				}}},
			}
		},
	}
}

func accountOverviewStage() Stage {
	return Stage{
		ID: "account-overview",
		DefaultConfig: Config{
			"title":        "Account overview",
			"show_tickets": true,
		},
		Build: func(cfg Config) Slide {
			sections := []Section{
				{
					Type:    "metrics",
					Title:   "Health",
					Content: "ARR {{customer.arr}}, health score {{customer.health_score}}",
				},
				{
					Type:    "contract",
					Title:   "Contract",
					Content: "{{contract.seats}} seats, ends {{contract.end_date}}",
				},
				{
					Type:    "renewal",
					Title:   "Renewal",
					Content: "Renews {{renewal.renewal_date}} at {{renewal.probability}}% probability",
				},
			}
			if cfg.Bool("show_tickets") {
				sections = append(sections, Section{
					Type:  "tickets",
					Title: "Open tickets",
					Data:  map[string]interface{}{"source": "tickets"},
				})
			}
			return Slide{
				ID:    "account-overview",
				Stage: "account-overview",
				Title: cfg.String("title"),
				Chat: Chat{
					InitialBranch: "initial",
					Branches: map[string]Branch{
						"initial": {
							ID:       "initial",
							Response: "Here's where {{customer.name}} stands today. Anything look off?",
							Buttons: []Button{
								{Label: "Looks right", Value: "ok"},
								{Label: "Something's wrong", Value: "issue"},
							},
							NextBranches: map[string]string{"ok": "done", "issue": "describe"},
						},
						"describe": {
							ID:           "describe",
							Response:     "Tell me what needs correcting.",
							Component:    &Component{Type: "textarea"},
							StoreAs:      "overview_correction",
							NextBranches: map[string]string{"submit": "done"},
						},
						"done": {ID: "done", Response: "Thanks, noted."},
					},
				},
				Artifact: Artifact{Sections: sections},
			}
		},
	}
}

func stakeholderStage() Stage {
	return Stage{
		ID: "stakeholders",
		DefaultConfig: Config{
			"title": "Stakeholders",
		},
		Build: func(cfg Config) Slide {
			return Slide{
				ID:    "stakeholders",
				Stage: "stakeholders",
				Title: cfg.String("title"),
				Chat: Chat{
					InitialBranch: "initial",
					Branches: map[string]Branch{
						"initial": {
							ID:       "initial",
							Response: "Is {{contacts.0.name}} still the right champion at {{customer.name}}?",
							Buttons: []Button{
								{Label: "Yes", Value: "confirm"},
								{Label: "Pick someone else", Value: "pick"},
							},
							NextBranches: map[string]string{"confirm": "confirmed", "pick": "pick"},
						},
						"pick": {
							ID:        "pick",
							Response:  "Who should we work with?",
							Component: &Component{Type: "contact-picker"},
							StoreAs:   "champion",
							Next:      "confirmed",
						},
						"confirmed": {ID: "confirmed", Response: "Champion set."},
					},
				},
				Artifact: Artifact{Sections: []Section{{
					Type:  "contacts",
					Title: "Contacts",
					Data:  map[string]interface{}{"source": "contacts"},
				}}},
			}
		},
	}
}

func riskReviewStage() Stage {
	return Stage{
		ID: "risk-review",
		DefaultConfig: Config{
			"title":   "Risk review",
			"signals": []interface{}{"budget", "champion", "competitor"},
		},
		Schema: `{
			"type": "object",
			"properties": {
				"title": {"type": "string"},
				"signals": {"type": "array", "items": {"type": "string"}, "minItems": 1}
			},
			"required": ["signals"]
		}`,
		Build: func(cfg Config) Slide {
			next := map[string]string{"*": "generic"}
			branches := map[string]Branch{
				"initial": {
					ID:           "initial",
					Response:     "What's the biggest risk to renewing {{customer.name}}?",
					NextBranches: next,
				},
				"generic": {
					ID: "generic",
					Generate: &Generate{
						System: "You are a customer success coach. Be concise.",
						Prompt: "Suggest a mitigation for this renewal risk at {{customer.name}}: {{variables.last_input}}",
					},
				},
			}
			for _, signal := range cfg.Strings("signals") {
				id := "risk-" + signal
				next[signal] = id
				branches[id] = Branch{
					ID:       id,
					Response: "Logged a " + signal + " risk. Want to add a mitigation task?",
					Buttons:  []Button{{Label: "Add task", Value: "task"}, {Label: "Skip", Value: "skip"}},
					NextBranches: map[string]string{
						"task": "task",
						"skip": "done",
					},
				}
			}
			branches["task"] = Branch{
				ID:           "task",
				Response:     "Describe the mitigation.",
				Component:    &Component{Type: "textarea"},
				StoreAs:      "mitigation",
				NextBranches: map[string]string{"submit": "done"},
			}
			branches["done"] = Branch{ID: "done", Response: "Risk review saved."}
			return Slide{
				ID:    "risk-review",
				Stage: "risk-review",
				Title: cfg.String("title"),
				Chat: Chat{
					InitialBranch:  "initial",
					FallbackPrompt: "The customer success manager wrote about {{customer.name}}: ",
					Branches:       branches,
				},
				Artifact: Artifact{Sections: []Section{{
					Type:    "risks",
					Title:   "Signals",
					Content: "Health score {{customer.health_score}}",
					Data:    map[string]interface{}{"signals": cfg.Strings("signals")},
				}}},
			}
		},
	}
}

func pricingStage() Stage {
	return Stage{
		ID: "pricing",
		DefaultConfig: Config{
			"title":        "Pricing",
			"increase_cap": 7,
		},
		Schema: `{
			"type": "object",
			"properties": {
				"title": {"type": "string"},
				"increase_cap": {"type": "number", "minimum": 0, "maximum": 100}
			},
			"required": ["increase_cap"]
		}`,
		Build: func(cfg Config) Slide {
			return Slide{
				ID:    "pricing",
				Stage: "pricing",
				Title: cfg.String("title"),
				Chat: Chat{
					InitialBranch: "initial",
					Branches: map[string]Branch{
						"initial": {
							ID:       "initial",
							Response: "Current ARR is {{customer.arr}}. What price are you proposing?",
							Component: &Component{
								Type:  "number-input",
								Props: map[string]interface{}{"max_increase_pct": cfg.Int("increase_cap", 7)},
							},
							StoreAs: "proposed_arr",
							Next:    "confirm",
						},
						"confirm": {ID: "confirm", Response: "Proposed {{variables.proposed_arr}}. I'll add it to the plan."},
					},
				},
				Artifact: Artifact{Sections: []Section{{
					Type:    "pricing",
					Title:   "Pricing",
					Content: "Expected ARR {{renewal.expected_arr}}",
				}}},
			}
		},
	}
}

func actionPlanStage() Stage {
	return Stage{
		ID: "action-plan",
		DefaultConfig: Config{
			"title": "Action plan",
			"tasks": []interface{}{"Schedule renewal call", "Send proposal"},
		},
		Build: func(cfg Config) Slide {
			tasks := make([]interface{}, 0)
			for _, t := range cfg.Strings("tasks") {
				tasks = append(tasks, t)
			}
			return Slide{
				ID:    "action-plan",
				Stage: "action-plan",
				Title: cfg.String("title"),
				Chat: Chat{
					InitialBranch: "initial",
					Branches: map[string]Branch{
						"initial": {
							ID:        "initial",
							Response:  "Here's the plan for {{customer.name}}. Adjust anything you need.",
							Component: &Component{Type: "checklist", Props: map[string]interface{}{"items": tasks}},
							StoreAs:   "plan",
							NextBranches: map[string]string{
								"submit": "done",
							},
						},
						"done": {ID: "done", Response: "Plan saved."},
					},
				},
				Artifact: Artifact{Sections: []Section{{
					Type:  "checklist",
					Title: cfg.String("title"),
					Data:  map[string]interface{}{"items": tasks},
				}}},
			}
		},
	}
}

func summaryStage() Stage {
	return Stage{
		ID:            "summary",
		DefaultConfig: Config{"title": "Summary"},
		Build: func(cfg Config) Slide {
			return Slide{
				ID:    "summary",
				Stage: "summary",
				Title: cfg.String("title"),
				Chat: Chat{
					InitialBranch: "initial",
					Branches: map[string]Branch{
						"initial": {
							ID:       "initial",
							Response: "That's everything for {{customer.name}}. Ready to wrap up?",
							Buttons:  []Button{{Label: "Finish", Value: "finish"}},
							NextBranches: map[string]string{
								"finish": "finished",
							},
						},
						"finished": {ID: "finished", Response: "All done."},
					},
				},
				Artifact: Artifact{Sections: []Section{{
					Type:    "summary",
					Title:   "Summary",
					Content: "Champion {{variables.champion}}, proposed ARR {{variables.proposed_arr}}",
				}}},
			}
		},
	}
}
