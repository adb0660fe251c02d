package content

import (
	"maps"
	"math/rand/v2"
	"strings"
)

// Category selects the fallback pool used when the completion service is unavailable.
type Category string

const (
	Motivation      Category = "motivation"
	EveningQuestion Category = "evening-question"
	WeeklyAdvice    Category = "weekly-advice"
	MorningExercise Category = "morning-exercise"
	QuestionOfDay   Category = "question-of-day"
)

// lastResort is returned for a category that has no pool at all.
const lastResort = "Keep going, every step counts."

// Pools maps a category to its candidate texts. Treat it as read-only once built.
type Pools map[Category][]string

// DefaultPools returns the built-in pools.
func DefaultPools() Pools {
	return Pools{
		Motivation: {
			"Every step is progress. Keep going!",
			"Small habits add up to big goals.",
			"Smile, you are doing a great job.",
		},
		EveningQuestion: {
			"How was your day? Care to share a few words?",
		},
		WeeklyAdvice: {
			"Try setting a small goal for next week and track it every day.",
		},
		MorningExercise: {
			"3 minutes of stretching: bends and rotations.",
			"5 minutes of light warm-up: squats and push-ups.",
			"Yoga: 5 poses in 7 minutes.",
		},
		QuestionOfDay: {
			"What inspired you this morning?",
			"What is one small goal for today?",
			"What do you want to do differently today?",
		},
	}
}

// Merge returns a copy of p where non-empty overrides replace whole categories.
// Blank entries in an override are dropped.
func (p Pools) Merge(overrides map[string][]string) Pools {
	out := maps.Clone(p)
	if out == nil {
		out = Pools{}
	}
	for name, texts := range overrides {
		var kept []string
		for _, t := range texts {
			if t = strings.TrimSpace(t); t != "" {
				kept = append(kept, t)
			}
		}
		if len(kept) > 0 {
			out[Category(name)] = kept
		}
	}
	return out
}

// Pick returns a pseudo-random entry of the category's pool.
func (p Pools) Pick(c Category) string {
	texts := p[c]
	if len(texts) == 0 {
		return lastResort
	}
	return texts[rand.IntN(len(texts))]
}
