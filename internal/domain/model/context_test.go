//go:build !integration

package model

import (
	"fmt"
	"testing"
)

func TestMood_StepToward(t *testing.T) {
	t.Parallel()

	cases := []struct {
		from, target, want Mood
	}{
		{MoodNeutral, MoodExcited, MoodHappy},
		{MoodHappy, MoodExcited, MoodExcited},
		{MoodExcited, MoodSad, MoodHappy},
		{MoodSad, MoodSad, MoodSad},
		{MoodNeutral, MoodAngry, MoodAngry},
		{MoodHappy, MoodAngry, MoodNeutral},
		{MoodAngry, MoodHappy, MoodNeutral},
		{MoodAngry, MoodSad, MoodNeutral},
		{MoodSad, MoodExcited, MoodNeutral},
	}
	for _, c := range cases {
		if got := c.from.StepToward(c.target); got != c.want {
			t.Errorf("%s toward %s: got %s want %s", c.from, c.target, got, c.want)
		}
	}
}

func TestConversationContext_FoldMoodDamping(t *testing.T) {
	t.Parallel()

	c := NewConversationContext("conv-1")
	c.Fold("this is amazing, wow, I am so excited!")
	if c.Mood != MoodHappy {
		t.Fatalf("one message moves mood one step only, got %s", c.Mood)
	}
	c.Fold("still amazing and incredible, wow!")
	if c.Mood != MoodExcited {
		t.Fatalf("second excited message reaches excited, got %s", c.Mood)
	}
}

func TestConversationContext_TopicCap(t *testing.T) {
	t.Parallel()

	c := NewConversationContext("conv-1")
	for i := 0; i < 4; i++ {
		c.Fold(fmt.Sprintf("talking about subject%d today", i))
	}
	if len(c.Topics) > maxTopics {
		t.Fatalf("topics over cap: %d", len(c.Topics))
	}
	// Newest topic must survive the cap.
	c.Fold("now discussing telescopes instead")
	found := false
	for _, topic := range c.Topics {
		if topic == "telescopes" {
			found = true
		}
	}
	if !found {
		t.Fatalf("latest topic evicted, have %v", c.Topics)
	}
}

func TestConversationContext_Highlights(t *testing.T) {
	t.Parallel()

	c := NewConversationContext("conv-1")
	c.Fold("ok")
	if len(c.Highlights) != 0 {
		t.Fatal("trivial message must not become a highlight")
	}
	c.Fold("I finally got the job offer I have been dreaming about for three years!")
	if len(c.Highlights) != 1 {
		t.Fatalf("expected one highlight, got %d", len(c.Highlights))
	}

	for i := 0; i < maxHighlights+5; i++ {
		c.Fold(fmt.Sprintf("another big memorable moment number %d happened today!", i))
	}
	if len(c.Highlights) > maxHighlights {
		t.Fatalf("highlights over cap: %d", len(c.Highlights))
	}
}

func TestConversationContext_TooSimilar(t *testing.T) {
	t.Parallel()

	c := NewConversationContext("conv-1")
	c.RecordOutput("I would love to watch the stars with you tonight")

	if !c.TooSimilar("I would love to watch the stars with you tonight") {
		t.Fatal("exact repeat must be suppressed")
	}
	if !c.TooSimilar("would love to watch the stars tonight") {
		t.Fatal("near-duplicate must be suppressed")
	}
	if c.TooSimilar("let's grab coffee tomorrow morning instead") {
		t.Fatal("unrelated candidate must pass")
	}
	if c.TooSimilar("") {
		t.Fatal("empty candidate must pass")
	}
}

func TestConversationContext_OutputWindowSlides(t *testing.T) {
	t.Parallel()

	c := NewConversationContext("conv-1")
	c.RecordOutput("the very first reply about dragons and castles")
	for i := 0; i < maxRecentOutputs; i++ {
		c.RecordOutput(fmt.Sprintf("filler reply number %d about weather patterns", i))
	}
	if len(c.RecentOutputs) != maxRecentOutputs {
		t.Fatalf("window size %d, want %d", len(c.RecentOutputs), maxRecentOutputs)
	}
	if c.TooSimilar("the very first reply about dragons and castles") {
		t.Fatal("output outside the window must no longer suppress")
	}
}

func TestExtractTopics(t *testing.T) {
	t.Parallel()

	topics := ExtractTopics("I really want to visit Iceland and photograph those glaciers, glaciers again")
	want := map[string]bool{"visit": true, "iceland": true, "photograph": true, "glaciers": true, "those": true}
	if len(topics) != len(want) {
		t.Fatalf("got %v", topics)
	}
	for _, topic := range topics {
		if !want[topic] {
			t.Errorf("unexpected topic %q", topic)
		}
	}
}
