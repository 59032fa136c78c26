package model

import (
	"sort"
	"strings"
	"time"
	"unicode"
)

// Mood is a small ordered lattice: sad < neutral < happy < excited, with
// angry branching off neutral.
type Mood string

const (
	MoodSad     Mood = "sad"
	MoodNeutral Mood = "neutral"
	MoodHappy   Mood = "happy"
	MoodExcited Mood = "excited"
	MoodAngry   Mood = "angry"
)

var moodRank = map[Mood]int{
	MoodSad:     0,
	MoodNeutral: 1,
	MoodHappy:   2,
	MoodExcited: 3,
}

// StepToward moves at most one lattice step from m toward target. The single
// step per update damps mood oscillation between consecutive messages.
func (m Mood) StepToward(target Mood) Mood {
	if m == target {
		return m
	}
	// The angry branch connects only through neutral.
	if m == MoodAngry {
		return MoodNeutral
	}
	if target == MoodAngry {
		if m == MoodNeutral {
			return MoodAngry
		}
		target = MoodNeutral
	}
	cur, ok := moodRank[m]
	if !ok {
		return MoodNeutral
	}
	if moodRank[target] > cur {
		cur++
	} else if moodRank[target] < cur {
		cur--
	}
	for mood, r := range moodRank {
		if r == cur {
			return mood
		}
	}
	return MoodNeutral
}

const (
	maxTopics        = 5
	maxHighlights    = 10
	maxRecentOutputs = 5

	// Lexical overlap above this against any recent output flags a candidate
	// as a near-duplicate.
	SuppressThreshold = 0.65
)

// Highlight is a memorable conversation moment kept for prompt enrichment.
type Highlight struct {
	Text  string
	Score float64
	At    time.Time
}

// ConversationContext is the rolling per-conversation state consulted when
// producing conversational content. It lives in an idle-evicted cache, never
// in durable storage; losing it only degrades enrichment quality.
type ConversationContext struct {
	ConversationID string
	Mood           Mood
	Topics         []string // most recent first, capped
	Highlights     []Highlight
	RecentOutputs  []string
	UpdatedAt      time.Time
}

func NewConversationContext(conversationID string) *ConversationContext {
	return &ConversationContext{
		ConversationID: conversationID,
		Mood:           MoodNeutral,
		UpdatedAt:      time.Now(),
	}
}

// Fold merges one user message into the rolling state.
func (c *ConversationContext) Fold(message string) {
	c.Mood = c.Mood.StepToward(impliedMood(message))
	c.mergeTopics(ExtractTopics(message))
	if significant(message) {
		c.addHighlight(message)
	}
	c.UpdatedAt = time.Now()
}

// RecordOutput appends a produced output to the anti-repetition window.
func (c *ConversationContext) RecordOutput(text string) {
	c.RecentOutputs = append(c.RecentOutputs, text)
	if len(c.RecentOutputs) > maxRecentOutputs {
		c.RecentOutputs = c.RecentOutputs[len(c.RecentOutputs)-maxRecentOutputs:]
	}
	c.UpdatedAt = time.Now()
}

// TooSimilar reports whether candidate lexically overlaps any recent output
// above the suppression threshold.
func (c *ConversationContext) TooSimilar(candidate string) bool {
	cand := wordSet(candidate)
	if len(cand) == 0 {
		return false
	}
	for _, prev := range c.RecentOutputs {
		if wordOverlap(cand, wordSet(prev)) > SuppressThreshold {
			return true
		}
	}
	return false
}

func (c *ConversationContext) mergeTopics(topics []string) {
	for _, t := range topics {
		merged := make([]string, 0, maxTopics)
		merged = append(merged, t)
		for _, old := range c.Topics {
			if old != t {
				merged = append(merged, old)
			}
		}
		if len(merged) > maxTopics {
			merged = merged[:maxTopics]
		}
		c.Topics = merged
	}
}

func (c *ConversationContext) addHighlight(message string) {
	c.Highlights = append(c.Highlights, Highlight{
		Text:  message,
		Score: highlightScore(message),
		At:    time.Now(),
	})
	sort.SliceStable(c.Highlights, func(i, j int) bool {
		return c.Highlights[i].Score > c.Highlights[j].Score
	})
	if len(c.Highlights) > maxHighlights {
		c.Highlights = c.Highlights[:maxHighlights]
	}
}

// significant applies the length/punctuation heuristic for memory-worthy
// messages.
func significant(message string) bool {
	return len(message) >= 80 ||
		strings.ContainsAny(message, "!?")
}

func highlightScore(message string) float64 {
	score := float64(len(message)) / 20
	score += float64(strings.Count(message, "!")) * 2
	score += float64(strings.Count(message, "?"))
	return score
}

var moodKeywords = map[Mood][]string{
	MoodSad:     {"sad", "miss", "lonely", "cry", "sorry", "hurt", "depressed"},
	MoodHappy:   {"happy", "glad", "great", "nice", "love", "haha", "lol"},
	MoodExcited: {"amazing", "awesome", "incredible", "wow", "excited", "can't wait"},
	MoodAngry:   {"angry", "hate", "furious", "annoyed", "stupid", "shut up"},
}

func impliedMood(message string) Mood {
	lower := strings.ToLower(message)
	best := MoodNeutral
	bestHits := 0
	for mood, words := range moodKeywords {
		hits := 0
		for _, w := range words {
			if strings.Contains(lower, w) {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = mood, hits
		}
	}
	return best
}

var stopwords = map[string]struct{}{
	"about": {}, "after": {}, "again": {}, "being": {}, "could": {},
	"every": {}, "going": {}, "have": {}, "just": {}, "like": {},
	"really": {}, "that": {}, "their": {}, "there": {}, "these": {},
	"they": {}, "this": {}, "very": {}, "want": {}, "what": {},
	"when": {}, "where": {}, "which": {}, "will": {}, "with": {},
	"would": {}, "your": {},
}

// ExtractTopics pulls candidate topic words out of a message: lowercase
// alphabetic tokens of five letters or more, minus stopwords, first-seen
// order.
func ExtractTopics(message string) []string {
	fields := strings.FieldsFunc(strings.ToLower(message), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	seen := make(map[string]struct{}, len(fields))
	var topics []string
	for _, f := range fields {
		if len(f) < 5 {
			continue
		}
		if _, stop := stopwords[f]; stop {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		topics = append(topics, f)
	}
	return topics
}

func wordSet(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// wordOverlap is the overlap coefficient: |A n B| / min(|A|, |B|).
func wordOverlap(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	common := 0
	for w := range small {
		if _, ok := large[w]; ok {
			common++
		}
	}
	return float64(common) / float64(len(small))
}
