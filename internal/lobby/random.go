package lobby

import (
	"math/rand/v2"

	"github.com/jason-s-yu/musicquiz/internal/models"
	"github.com/jason-s-yu/musicquiz/internal/protocol"
)

const distractorCount = 3

// shuffle applies an in-place Fisher-Yates permutation.
func shuffle[T any](s []T) {
	rand.Shuffle(len(s), func(i, j int) { s[i], s[j] = s[j], s[i] })
}

// sample returns up to n elements of s chosen uniformly without replacement. s is not modified.
func sample[T any](s []T, n int) []T {
	if n > len(s) {
		n = len(s)
	}
	pool := make([]T, len(s))
	copy(pool, s)
	for i := 0; i < n; i++ {
		j := i + rand.IntN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:n]
}

// uniqueTitles returns one choice per distinct title in deck order, skipping exclude.
func uniqueTitles(deck []models.Clue, exclude string) []protocol.Choice {
	seen := make(map[string]struct{}, len(deck))
	out := make([]protocol.Choice, 0, len(deck))
	for _, c := range deck {
		if c.Title == exclude {
			continue
		}
		if _, ok := seen[c.Title]; ok {
			continue
		}
		seen[c.Title] = struct{}{}
		out = append(out, protocol.Choice{Title: c.Title, Game: c.Game})
	}
	return out
}

// choiceSet builds the multiple-choice options for a round: the correct clue plus up to three
// distinct distractors, in random order.
func choiceSet(correct models.Clue, deck []models.Clue) []protocol.Choice {
	choices := sample(uniqueTitles(deck, correct.Title), distractorCount)
	choices = append(choices, protocol.Choice{Title: correct.Title, Game: correct.Game})
	shuffle(choices)
	return choices
}

// answerList is the full shuffled set of titles used in hard mode.
func answerList(deck []models.Clue) []protocol.Choice {
	list := uniqueTitles(deck, "")
	shuffle(list)
	return list
}

// generateCode returns a four letter upper-case lobby code.
func generateCode() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	b := make([]byte, 4)
	for i := range b {
		b[i] = letters[rand.IntN(len(letters))]
	}
	return string(b)
}
