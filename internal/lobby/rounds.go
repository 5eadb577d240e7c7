package lobby

import (
	"math/rand/v2"
	"slices"
	"time"

	"github.com/jason-s-yu/musicquiz/internal/models"
	"github.com/jason-s-yu/musicquiz/internal/protocol"
)

// startRound presents the next unused clue, or ends the game once the round budget or the deck
// is exhausted.
func (l *Lobby) startRound() error {
	if l.round >= l.settings.RoundCount {
		return l.endGame()
	}
	candidates := make([]int, 0, len(l.deck))
	for i, c := range l.deck {
		if _, used := l.used[c.ID]; !used {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		l.log.Warnf("Deck exhausted after %d rounds", l.round)
		return l.endGame()
	}

	duration := time.Duration(l.settings.RoundDuration) * time.Second
	if err := l.armRoundTimer(duration); err != nil {
		return err
	}

	clue := l.deck[candidates[rand.IntN(len(candidates))]]
	l.used[clue.ID] = struct{}{}
	l.round++
	l.current = &clue
	l.phase = models.PhaseInProgress
	l.lastResult = nil
	clear(l.pending)
	clear(l.earned)
	for _, m := range l.players {
		m.joinedMidRound = false
	}

	payload := protocol.RoundStarted{
		Code:            l.Code,
		RoundNumber:     l.round,
		TotalRounds:     l.settings.RoundCount,
		Clue:            protocol.ClueRef{Link: clue.Link, Category: clue.Category, Game: clue.Game},
		DurationSeconds: l.settings.RoundDuration,
		Difficulty:      l.settings.Difficulty,
		EndsAt:          l.clock.Now().Add(duration),
	}
	if l.settings.Difficulty == models.DifficultyHard {
		payload.AnswerList = answerList(l.deck)
	} else {
		payload.Choices = choiceSet(clue, l.deck)
	}
	l.lastRound = &payload

	l.log.Infof("Round %d/%d started", l.round, l.settings.RoundCount)
	l.bc.Broadcast(l.Code, payload)
	l.record("round_started", map[string]any{
		"round":   l.round,
		"clue_id": clue.ID,
		"title":   clue.Title,
	})
	return nil
}

// endRound reveals the answer and schedules the next round. It runs at most once per round:
// whichever of the timer and the last answer gets here first wins.
func (l *Lobby) endRound() error {
	if l.phase != models.PhaseInProgress {
		return nil
	}
	l.cancelRoundTimer()
	l.phase = models.PhaseReview

	results := make([]protocol.Result, 0, len(l.players))
	for _, m := range l.players {
		row := protocol.Result{
			PlayerID:     m.ID,
			Name:         m.Name,
			Score:        m.Score,
			PointsEarned: l.earned[m.ID],
		}
		if ans, ok := l.pending[m.ID]; ok {
			row.Answer = &ans
			row.WasCorrect = ans == l.current.Title
		}
		results = append(results, row)
	}

	payload := protocol.RoundEnded{
		Code:           l.Code,
		RevealedAnswer: protocol.Choice{Title: l.current.Title, Game: l.current.Game},
		Results:        results,
		RoundNumber:    l.round,
		TotalRounds:    l.settings.RoundCount,
	}
	l.lastRound = nil
	l.lastResult = &payload

	if err := l.armReviewTimer(l.opts.ReviewDelay); err != nil {
		return err
	}
	l.log.Infof("Round %d/%d ended", l.round, l.settings.RoundCount)
	l.bc.Broadcast(l.Code, payload)
	l.record("round_ended", map[string]any{
		"round":   l.round,
		"results": results,
	})
	return nil
}

func (l *Lobby) endGame() error {
	l.cancelRoundTimer()
	l.cancelReviewTimer()
	l.phase = models.PhaseGameOver
	l.current = nil
	l.lastRound = nil

	ranked := slices.Clone(l.players)
	slices.SortStableFunc(ranked, func(a, b *member) int { return b.Score - a.Score })
	standings := make([]protocol.Standing, len(ranked))
	for i, m := range ranked {
		standings[i] = protocol.Standing{PlayerID: m.ID, Name: m.Name, Score: m.Score}
	}

	l.log.Infof("Game over after %d rounds", l.round)
	l.bc.Broadcast(l.Code, protocol.GameEnded{
		Code:           l.Code,
		FinalStandings: standings,
		TotalRounds:    l.settings.RoundCount,
	})
	l.record("match_ended", map[string]any{
		"rounds":    l.round,
		"standings": standings,
	})
	return nil
}

func (l *Lobby) armRoundTimer(d time.Duration) error {
	if l.reviewTimer != nil {
		return l.violation("round timer armed while review timer is live")
	}
	l.cancelRoundTimer()
	l.timerSeq++
	seq := l.timerSeq
	l.roundTimer = &armedTimer{seq: seq}
	l.roundTimer.timer = l.clock.AfterFunc(d, func() {
		l.post(func() { l.onRoundTimer(seq) })
	})
	return nil
}

func (l *Lobby) armReviewTimer(d time.Duration) error {
	if l.roundTimer != nil {
		return l.violation("review timer armed while round timer is live")
	}
	l.cancelReviewTimer()
	l.timerSeq++
	seq := l.timerSeq
	l.reviewTimer = &armedTimer{seq: seq}
	l.reviewTimer.timer = l.clock.AfterFunc(d, func() {
		l.post(func() { l.onReviewTimer(seq) })
	})
	return nil
}

func (l *Lobby) cancelRoundTimer() {
	if l.roundTimer != nil {
		l.roundTimer.timer.Stop()
		l.roundTimer = nil
	}
}

func (l *Lobby) cancelReviewTimer() {
	if l.reviewTimer != nil {
		l.reviewTimer.timer.Stop()
		l.reviewTimer = nil
	}
}

func (l *Lobby) onRoundTimer(seq uint64) {
	if l.roundTimer == nil || l.roundTimer.seq != seq {
		l.log.Debugf("Stale round timer %d ignored", seq)
		return
	}
	l.roundTimer = nil
	l.log.Debugf("Round %d timed out", l.round)
	if err := l.endRound(); err != nil {
		l.log.Errorf("Ending round %d: %v", l.round, err)
	}
}

func (l *Lobby) onReviewTimer(seq uint64) {
	if l.reviewTimer == nil || l.reviewTimer.seq != seq {
		l.log.Debugf("Stale review timer %d ignored", seq)
		return
	}
	l.reviewTimer = nil
	if err := l.startRound(); err != nil {
		l.log.Errorf("Starting round %d: %v", l.round+1, err)
	}
}
