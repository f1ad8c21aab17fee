// Package progress summarizes a user's debugging history.
package progress

import (
    "sort"

    "codetutor/voicedebug/internal/types"
)

type Achievement struct {
    Title       string `json:"title"`
    Description string `json:"description"`
}

type LanguageCount struct {
    Language types.Language `json:"language"`
    Sessions int            `json:"sessions"`
}

type Summary struct {
    TotalSessions   int             `json:"total_sessions"`
    VoiceSessions   int             `json:"voice_sessions"`
    MinutesSpent    int             `json:"minutes_spent"`
    LearningStreak  int             `json:"learning_streak"`
    AverageRating   float64         `json:"average_rating"`
    ByLanguage      []LanguageCount `json:"by_language"`
    ConceptsLearned []string        `json:"concepts_learned"`
    Achievements    []Achievement   `json:"achievements"`
}

type rule struct {
    Achievement
    ok func(sessions, streak, voice int) bool
}

var rules = []rule{
    {Achievement{"First Steps", "Completed your first debugging session"}, func(s, _, _ int) bool { return s >= 1 }},
    {Achievement{"Debugger", "Completed 10 debugging sessions"}, func(s, _, _ int) bool { return s >= 10 }},
    {Achievement{"Bug Hunter", "Completed 25 debugging sessions"}, func(s, _, _ int) bool { return s >= 25 }},
    {Achievement{"Consistent Learner", "3-day learning streak"}, func(_, st, _ int) bool { return st >= 3 }},
    {Achievement{"Week Warrior", "7-day learning streak"}, func(_, st, _ int) bool { return st >= 7 }},
    {Achievement{"Voice Master", "Used voice features 5 times"}, func(_, _, v int) bool { return v >= 5 }},
}

// Summarize builds the progress view from the profile and the user's records.
func Summarize(p types.Profile, records []types.SessionRecord) Summary {
    sum := Summary{
        TotalSessions:   len(records),
        LearningStreak:  p.LearningStreak,
        ByLanguage:      []LanguageCount{},
        ConceptsLearned: []string{},
        Achievements:    []Achievement{},
    }
    counts := map[types.Language]int{}
    seen := map[string]bool{}
    rated, ratingSum := 0, 0
    for _, r := range records {
        counts[r.ProgrammingLanguage]++
        if r.VoiceUsed {
            sum.VoiceSessions++
        }
        sum.MinutesSpent += r.SessionDuration
        if r.UserSatisfaction > 0 {
            rated++
            ratingSum += r.UserSatisfaction
        }
        for _, c := range r.ConceptsLearned {
            if !seen[c] {
                seen[c] = true
                sum.ConceptsLearned = append(sum.ConceptsLearned, c)
            }
        }
    }
    if rated > 0 {
        sum.AverageRating = float64(ratingSum) / float64(rated)
    }
    for lang, n := range counts {
        sum.ByLanguage = append(sum.ByLanguage, LanguageCount{Language: lang, Sessions: n})
    }
    sort.Slice(sum.ByLanguage, func(i, j int) bool {
        if sum.ByLanguage[i].Sessions != sum.ByLanguage[j].Sessions {
            return sum.ByLanguage[i].Sessions > sum.ByLanguage[j].Sessions
        }
        return sum.ByLanguage[i].Language < sum.ByLanguage[j].Language
    })
    for _, r := range rules {
        if r.ok(sum.TotalSessions, sum.LearningStreak, sum.VoiceSessions) {
            sum.Achievements = append(sum.Achievements, r.Achievement)
        }
    }
    return sum
}
