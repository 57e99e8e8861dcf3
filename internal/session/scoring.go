// internal/session/scoring.go
package session

import "fmt"

// ScoreRound computes per-team score deltas for a completed round. It is a
// pure function of its inputs: it never mutates teams and calling it twice
// with the same arguments yields identical deltas.
//
// Rules:
//   - If everyone or no one voted for the storyteller's card, every
//     non-storyteller team gains 2 and the storyteller gains nothing.
//   - Otherwise the storyteller gains 3, as does every team that voted
//     for the storyteller's card.
//   - Independently, every non-storyteller team gains 1 per vote its own
//     card received. Votes on the storyteller's card never earn this bonus.
//
// "Everyone" means teamCount-1 votes, even if the storyteller disconnected
// after submitting; with the storyteller gone that threshold may be
// unreachable, which is preserved as observed behavior.
func ScoreRound(played []PlayedCard, votes map[string]int, teams map[string]*Team, storyteller string) (map[string]int, error) {
	storytellerIdx := -1
	for i, pc := range played {
		if pc.TeamName == storyteller {
			storytellerIdx = i
			break
		}
	}
	if storytellerIdx == -1 {
		return nil, fmt.Errorf("storyteller %q has no card in the played list", storyteller)
	}

	deltas := make(map[string]int, len(teams))
	for name := range teams {
		deltas[name] = 0
	}

	votesForStoryteller := 0
	for _, idx := range votes {
		if idx == storytellerIdx {
			votesForStoryteller++
		}
	}
	total := len(teams)

	if votesForStoryteller == 0 || votesForStoryteller == total-1 {
		// Everyone or no one found it: storyteller 0, the rest +2.
		for name := range teams {
			if name != storyteller {
				deltas[name] += 2
			}
		}
	} else {
		if _, ok := teams[storyteller]; ok {
			deltas[storyteller] += 3
		}
		for voter, idx := range votes {
			if idx == storytellerIdx && voter != storyteller {
				if _, ok := teams[voter]; ok {
					deltas[voter] += 3
				}
			}
		}
	}

	// Flat bonus: one point per vote received on a non-storyteller card.
	for _, idx := range votes {
		if idx == storytellerIdx || idx < 0 || idx >= len(played) {
			continue
		}
		owner := played[idx].TeamName
		if _, ok := teams[owner]; ok {
			deltas[owner]++
		}
	}

	return deltas, nil
}
