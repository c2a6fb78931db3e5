package voting

import "sort"

// CandidateCount is one candidate's effective first-preference total within
// a round.
type CandidateCount struct {
	GuestID uint `json:"guest_id"`
	Votes   int  `json:"votes"`
}

// Round records one elimination round for auditability. Counts are ordered
// by descending votes, ascending guest id.
type Round struct {
	Number     int              `json:"number"`
	Counts     []CandidateCount `json:"counts"`
	Eliminated []uint           `json:"eliminated"`
	WinnerID   *uint            `json:"winner_id,omitempty"`
}

// Result is the outcome of a ranked-choice tally: the winner, if any, and
// the full round-by-round elimination trace.
type Result struct {
	WinnerID *uint   `json:"winner_id"`
	Rounds   []Round `json:"rounds"`
}

// ComputeTally runs standard ranked-choice elimination over the ballots.
//
// Candidates are the guests appearing as a choice on any ballot. Each round
// counts every non-exhausted ballot toward its highest-ranked still-active
// choice. A candidate holding a strict majority of non-exhausted ballots
// wins. Otherwise every candidate tied at the minimum count is eliminated;
// all orderings break ties by ascending guest id, which makes the trace
// deterministic for a fixed ballot set. Ballots whose three choices are all
// eliminated become exhausted and leave the majority denominator.
func ComputeTally(ballots []Vote) Result {
	active := make(map[uint]bool)
	for _, ballot := range ballots {
		for _, choice := range ballot.choices() {
			active[choice] = true
		}
	}
	if len(active) == 0 {
		return Result{}
	}

	remaining := make([]Vote, len(ballots))
	copy(remaining, ballots)

	var rounds []Round
	for number := 1; len(active) > 0; number++ {
		counts := make(map[uint]int, len(active))
		for candidate := range active {
			counts[candidate] = 0
		}
		for _, ballot := range remaining {
			for _, choice := range ballot.choices() {
				if active[choice] {
					counts[choice]++
					break
				}
			}
		}

		ordered := make([]CandidateCount, 0, len(counts))
		for candidate, votes := range counts {
			ordered = append(ordered, CandidateCount{GuestID: candidate, Votes: votes})
		}
		sort.Slice(ordered, func(i, j int) bool {
			if ordered[i].Votes != ordered[j].Votes {
				return ordered[i].Votes > ordered[j].Votes
			}
			return ordered[i].GuestID < ordered[j].GuestID
		})

		round := Round{Number: number, Counts: ordered}

		top := ordered[0]
		if top.Votes*2 > len(remaining) {
			winnerID := top.GuestID
			round.WinnerID = &winnerID
			rounds = append(rounds, round)
			return Result{WinnerID: &winnerID, Rounds: rounds}
		}

		// Ties at the minimum are eliminated together; ordered already breaks
		// equal counts by ascending guest id.
		minVotes := ordered[len(ordered)-1].Votes
		for _, count := range ordered {
			if count.Votes == minVotes {
				round.Eliminated = append(round.Eliminated, count.GuestID)
				delete(active, count.GuestID)
			}
		}
		rounds = append(rounds, round)

		kept := remaining[:0]
		for _, ballot := range remaining {
			for _, choice := range ballot.choices() {
				if active[choice] {
					kept = append(kept, ballot)
					break
				}
			}
		}
		remaining = kept
	}

	return Result{Rounds: rounds}
}
