package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sosialistaflokkurinn/ekklesia-elections/internal/model"
)

// TallyService computes election results from the closed ballot set.
// Results are derived data: cached in Redis, recomputed on demand.
type TallyService struct {
	elections electionReader
	ballots   ballotReader
	cache     *CacheService
}

type electionReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Election, error)
}

type ballotReader interface {
	ListByElection(ctx context.Context, electionID uuid.UUID) ([]model.Ballot, error)
}

func NewTallyService(elections electionReader, ballots ballotReader, cache *CacheService) *TallyService {
	return &TallyService{elections: elections, ballots: ballots, cache: cache}
}

// Tally returns the result for a closed election, serving from cache when
// possible.
func (s *TallyService) Tally(ctx context.Context, electionID uuid.UUID) (*model.TallyResult, error) {
	if s.cache != nil {
		if cached, err := s.cache.GetTally(ctx, electionID); err == nil && cached != nil {
			return cached, nil
		}
	}
	return s.Recompute(ctx, electionID)
}

// Recompute runs the count from scratch and refreshes the cache.
func (s *TallyService) Recompute(ctx context.Context, electionID uuid.UUID) (*model.TallyResult, error) {
	e, err := s.elections.GetByID(ctx, electionID)
	if err != nil {
		return nil, err
	}
	if e.Status != model.StatusClosed && e.Status != model.StatusArchived {
		return nil, &model.StateError{Current: e.Status, Requested: model.StatusClosed}
	}

	ballots, err := s.ballots.ListByElection(ctx, electionID)
	if err != nil {
		return nil, fmt.Errorf("load ballots: %w", err)
	}

	var result *model.TallyResult
	if e.IsRanked {
		result = RunSTV(e, ballots)
	} else {
		result = RunPlurality(e, ballots)
	}

	if s.cache != nil {
		// Cache failure never fails the tally itself.
		if err := s.cache.SetTally(ctx, electionID, result); err != nil {
			log.Warn().Err(err).Str("election_id", electionID.String()).Msg("cache: store tally failed")
		}
	}
	return result, nil
}

// ballotState tracks one ballot through the STV count: its remaining
// preference list and its current transfer weight.
type ballotState struct {
	prefs  []string
	weight float64
}

// RunSTV counts a ranked election with the single transferable vote method
// and the Droop quota. The whole count is deterministic: candidates are
// always visited in sorted answer-ID order, and ties are broken by earlier
// round counts (most recent first), then by ascending answer ID. Iteration
// order of storage never decides anything.
func RunSTV(e *model.Election, ballots []model.Ballot) *model.TallyResult {
	candidates := answerIDs(e)

	var states []*ballotState
	for i := range ballots {
		prefs := ballots[i].Preferences()
		if len(prefs) == 0 {
			continue
		}
		states = append(states, &ballotState{prefs: prefs, weight: 1.0})
	}

	valid := len(states)
	quota := valid/(e.Seats+1) + 1 // Droop

	result := &model.TallyResult{
		ElectionID:   e.ID,
		IsRanked:     true,
		Seats:        e.Seats,
		Quota:        quota,
		ValidBallots: valid,
		Winners:      []string{},
		ComputedAt:   time.Now().UTC(),
	}

	elected := make(map[string]bool)
	eliminated := make(map[string]bool)
	var history []map[string]float64

	continuing := func() []string {
		var out []string
		for _, c := range candidates {
			if !elected[c] && !eliminated[c] {
				out = append(out, c)
			}
		}
		return out
	}

	for round := 1; len(result.Winners) < e.Seats; round++ {
		remaining := continuing()
		if len(remaining) == 0 {
			break
		}

		// All remaining candidates fit in the open seats: elect them outright.
		if len(remaining) <= e.Seats-len(result.Winners) {
			counts, exhausted := countPreferences(states, elected, eliminated)
			for _, c := range remaining {
				elected[c] = true
			}
			result.Winners = append(result.Winners, remaining...)
			result.Rounds = append(result.Rounds, model.TallyRound{
				Number:      round,
				Counts:      counts,
				Action:      model.RoundActionElectRemaining,
				Candidates:  remaining,
				ExhaustedWt: exhausted,
			})
			break
		}

		counts, exhausted := countPreferences(states, elected, eliminated)
		history = append(history, counts)

		// Candidates at or above quota, highest count first.
		var reached []string
		for _, c := range remaining {
			if counts[c] >= float64(quota) {
				reached = append(reached, c)
			}
		}

		if len(reached) > 0 {
			sort.SliceStable(reached, func(i, j int) bool {
				if counts[reached[i]] != counts[reached[j]] {
					return counts[reached[i]] > counts[reached[j]]
				}
				return breakTie(reached[i], reached[j], history)
			})

			winner := reached[0]
			total := counts[winner]
			surplus := total - float64(quota)
			transferValue := 0.0
			if surplus > 0 && total > 0 {
				transferValue = surplus / total
			}

			elected[winner] = true
			result.Winners = append(result.Winners, winner)

			// Transfer the surplus: every ballot currently with the winner
			// moves onward at reduced weight. Exactly-at-quota means a
			// transfer value of zero, which consumes those ballots.
			transferBallots(states, winner, transferValue, elected, eliminated)

			result.Rounds = append(result.Rounds, model.TallyRound{
				Number:        round,
				Counts:        counts,
				Action:        model.RoundActionElect,
				Candidates:    []string{winner},
				TransferValue: transferValue,
				ExhaustedWt:   exhausted,
			})
			continue
		}

		// Nobody reached quota: eliminate the lowest candidate and
		// redistribute their ballots at full current weight.
		loser := lowestCandidate(remaining, counts, history)
		eliminated[loser] = true
		transferBallots(states, loser, 1.0, elected, eliminated)

		result.Rounds = append(result.Rounds, model.TallyRound{
			Number:      round,
			Counts:      counts,
			Action:      model.RoundActionEliminate,
			Candidates:  []string{loser},
			ExhaustedWt: exhausted,
		})
	}

	return result
}

// RunPlurality counts a non-ranked election: top `seats` answers by count,
// with the same deterministic tie-break as STV.
func RunPlurality(e *model.Election, ballots []model.Ballot) *model.TallyResult {
	counts := make(map[string]float64)
	for _, c := range answerIDs(e) {
		counts[c] = 0
	}

	valid := 0
	for i := range ballots {
		prefs := ballots[i].Preferences()
		if len(prefs) == 0 {
			continue
		}
		if _, ok := counts[prefs[0]]; !ok {
			continue
		}
		counts[prefs[0]]++
		valid++
	}

	ranked := answerIDs(e)
	sort.SliceStable(ranked, func(i, j int) bool {
		if counts[ranked[i]] != counts[ranked[j]] {
			return counts[ranked[i]] > counts[ranked[j]]
		}
		return ranked[i] < ranked[j]
	})

	seats := e.Seats
	if seats > len(ranked) {
		seats = len(ranked)
	}
	winners := append([]string{}, ranked[:seats]...)

	return &model.TallyResult{
		ElectionID:   e.ID,
		IsRanked:     false,
		Seats:        e.Seats,
		ValidBallots: valid,
		Winners:      winners,
		Rounds: []model.TallyRound{{
			Number:     1,
			Counts:     counts,
			Action:     model.RoundActionElect,
			Candidates: winners,
		}},
		ComputedAt: time.Now().UTC(),
	}
}

// countPreferences tallies each ballot's current weight toward its highest
// continuing preference. Ballots with no continuing preference contribute to
// the exhausted pool.
func countPreferences(states []*ballotState, elected, eliminated map[string]bool) (map[string]float64, float64) {
	counts := make(map[string]float64)
	exhausted := 0.0
	for _, bs := range states {
		if bs.weight == 0 {
			continue
		}
		c := currentPreference(bs, elected, eliminated)
		if c == "" {
			exhausted += bs.weight
			continue
		}
		counts[c] += bs.weight
	}
	return counts, exhausted
}

func currentPreference(bs *ballotState, elected, eliminated map[string]bool) string {
	for _, p := range bs.prefs {
		if !elected[p] && !eliminated[p] {
			return p
		}
	}
	return ""
}

// transferBallots moves every ballot currently assigned to `from` onward,
// scaling its weight by the transfer value. `from` must already be marked
// elected or eliminated so currentPreference skips past it. Ballots with no
// further preference keep their scaled weight and show up in the exhausted
// pool of subsequent rounds.
func transferBallots(states []*ballotState, from string, transferValue float64, elected, eliminated map[string]bool) {
	for _, bs := range states {
		if bs.weight == 0 {
			continue
		}
		if holdsPreference(bs, from, elected, eliminated) {
			bs.weight *= transferValue
		}
	}
}

// holdsPreference reports whether `from` was the ballot's current preference
// before `from` was marked elected/eliminated this round.
func holdsPreference(bs *ballotState, from string, elected, eliminated map[string]bool) bool {
	for _, p := range bs.prefs {
		if p == from {
			return true
		}
		if !elected[p] && !eliminated[p] {
			return false
		}
	}
	return false
}

// lowestCandidate picks the elimination target: fewest current votes, ties
// broken by breakTie.
func lowestCandidate(remaining []string, counts map[string]float64, history []map[string]float64) string {
	lowest := remaining[0]
	for _, c := range remaining[1:] {
		if counts[c] < counts[lowest] {
			lowest = c
		} else if counts[c] == counts[lowest] && breakTie(lowest, c, history) {
			// The current target is preferred (kept), so c is eliminated.
			lowest = c
		}
	}
	return lowest
}

// breakTie reports whether a should be preferred over b (kept longer, or
// elected first). It compares counts in previous rounds from most recent
// backwards; the candidate that was ahead in the most recent differing round
// wins. If tied through all history, the lexicographically smaller answer ID
// wins — a stable rule that never depends on storage iteration order.
func breakTie(a, b string, history []map[string]float64) bool {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i][a] != history[i][b] {
			return history[i][a] > history[i][b]
		}
	}
	return a < b
}

func answerIDs(e *model.Election) []string {
	ids := make([]string, len(e.Answers))
	for i, a := range e.Answers {
		ids[i] = a.ID
	}
	sort.Strings(ids)
	return ids
}
