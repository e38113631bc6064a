package aggregator

import (
	"context"
	"sort"
	"time"

	"github.com/Verdenroz/champion-recap/internal/constants"
	"github.com/Verdenroz/champion-recap/internal/domain"
	"github.com/Verdenroz/champion-recap/internal/errors"
	"github.com/Verdenroz/champion-recap/internal/repository"

	"github.com/rs/zerolog"
)

// Aggregator recomputes a player's recap snapshot from the full set of stat
// rows stored for a year. Every run reads everything and rebuilds from
// scratch, so the result is identical no matter what order matches finished
// processing in.
type Aggregator struct {
	stats     *repository.StatsRepository
	snapshots *repository.SnapshotRepository
	logger    zerolog.Logger
}

func New(stats *repository.StatsRepository, snapshots *repository.SnapshotRepository, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		stats:     stats,
		snapshots: snapshots,
		logger:    logger,
	}
}

type tally struct {
	games  int
	wins   int
	losses int
}

type roleChampionKey struct {
	role     string
	champion string
}

// Recompute builds and stores a new snapshot for the player and year. When no
// stat rows exist yet it returns an AGGREGATION_INPUT_MISSING error and
// writes nothing.
func (a *Aggregator) Recompute(ctx context.Context, puuid string, year int) (*domain.ChampionStatsSnapshot, error) {
	start := time.Now()

	rows, err := a.stats.ListSeasonRows(ctx, puuid, year)
	if err != nil {
		return nil, err
	}

	// Pass 1: group participant rows by match and locate the player's own row.
	type matchGroup struct {
		own    *domain.MatchStat
		others []domain.MatchStat
	}
	groups := make(map[string]*matchGroup)
	for i := range rows {
		row := rows[i]
		g := groups[row.MatchID]
		if g == nil {
			g = &matchGroup{}
			groups[row.MatchID] = g
		}
		if row.Puuid == puuid {
			g.own = &rows[i]
		} else {
			g.others = append(g.others, row)
		}
	}

	// Pass 2: accumulate tallies from each match the player appeared in.
	championTally := make(map[string]*tally)
	favoriteTally := make(map[roleChampionKey]*tally)
	nemesisTally := make(map[string]*tally)
	hatedTally := make(map[roleChampionKey]*tally)

	totalGames, totalWins, totalLosses := 0, 0, 0

	for _, g := range groups {
		if g.own == nil {
			continue
		}
		own := g.own

		totalGames++
		if own.Win {
			totalWins++
		} else {
			totalLosses++
		}

		ct := championTally[own.ChampionName]
		if ct == nil {
			ct = &tally{}
			championTally[own.ChampionName] = ct
		}
		ct.games++
		if own.Win {
			ct.wins++
		}

		for _, p := range g.others {
			if p.TeamID == own.TeamID {
				if own.Role == "UNKNOWN" {
					continue
				}
				key := roleChampionKey{role: own.Role, champion: p.ChampionName}
				t := favoriteTally[key]
				if t == nil {
					t = &tally{}
					favoriteTally[key] = t
				}
				t.games++
				if own.Win {
					t.wins++
				}
				continue
			}

			// enemy participant
			if own.Role != "UNKNOWN" {
				key := roleChampionKey{role: own.Role, champion: p.ChampionName}
				t := hatedTally[key]
				if t == nil {
					t = &tally{}
					hatedTally[key] = t
				}
				t.games++
				if !own.Win {
					t.losses++
				}

				if p.Role == own.Role {
					nt := nemesisTally[p.ChampionName]
					if nt == nil {
						nt = &tally{}
						nemesisTally[p.ChampionName] = nt
					}
					nt.games++
					if !own.Win {
						nt.losses++
					}
				}
			}
		}
	}

	if totalGames == 0 {
		return nil, errors.NewAggregationNotReadyError(puuid)
	}

	// Pass 3: roll tallies up into the snapshot with deterministic ordering.
	now := time.Now().UTC()
	snapshot := &domain.ChampionStatsSnapshot{
		Puuid:          puuid,
		Year:           year,
		Generation:     now.UnixNano(),
		TotalGames:     totalGames,
		TotalWins:      totalWins,
		TotalLosses:    totalLosses,
		TopChampions:   topChampions(championTally),
		FavoriteByRole: favoriteByRole(favoriteTally),
		Nemeses:        nemeses(nemesisTally),
		HatedByRole:    hatedByRole(hatedTally),
		ComputedAt:     now,
		ExpiresAt:      now.Add(constants.SnapshotTTL),
	}

	if err := a.snapshots.Upsert(ctx, snapshot); err != nil {
		return nil, err
	}

	a.logger.Info().
		Str("puuid", puuid).
		Int("year", year).
		Int("games", totalGames).
		Dur("duration", time.Since(start)).
		Msg("recomputed champion snapshot")

	return snapshot, nil
}

// topChampions sorts the player's champions by game count descending, name
// ascending on ties, and keeps the configured top N.
func topChampions(tallies map[string]*tally) []domain.ChampionGames {
	out := make([]domain.ChampionGames, 0, len(tallies))
	for name, t := range tallies {
		out = append(out, domain.ChampionGames{
			ChampionName: name,
			Games:        t.games,
			Wins:         t.wins,
			WinRate:      float64(t.wins) / float64(t.games),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Games != out[j].Games {
			return out[i].Games > out[j].Games
		}
		return out[i].ChampionName < out[j].ChampionName
	})
	if len(out) > constants.TopChampionCount {
		out = out[:constants.TopChampionCount]
	}
	return out
}

// favoriteByRole picks, per role, the teammate champion with the best win
// rate among pairings with enough games. Win rates compare exactly via cross
// multiplication; ties fall to more games, then champion name.
func favoriteByRole(tallies map[roleChampionKey]*tally) map[string]domain.TeammatePairing {
	type candidate struct {
		champion string
		t        *tally
	}
	byRole := make(map[string][]candidate)
	for key, t := range tallies {
		if t.games < constants.MinPairingGames {
			continue
		}
		byRole[key.role] = append(byRole[key.role], candidate{champion: key.champion, t: t})
	}

	out := make(map[string]domain.TeammatePairing, len(byRole))
	for role, candidates := range byRole {
		sort.Slice(candidates, func(i, j int) bool {
			ci, cj := candidates[i], candidates[j]
			// wins_i/games_i > wins_j/games_j without float drift
			lhs := ci.t.wins * cj.t.games
			rhs := cj.t.wins * ci.t.games
			if lhs != rhs {
				return lhs > rhs
			}
			if ci.t.games != cj.t.games {
				return ci.t.games > cj.t.games
			}
			return ci.champion < cj.champion
		})
		best := candidates[0]
		out[role] = domain.TeammatePairing{
			ChampionName: best.champion,
			Games:        best.t.games,
			Wins:         best.t.wins,
			WinRate:      float64(best.t.wins) / float64(best.t.games),
		}
	}
	return out
}

// nemeses lists lane opponents with enough encounters and at least one loss,
// most losses first, name ascending on ties.
func nemeses(tallies map[string]*tally) []domain.OpponentPairing {
	out := make([]domain.OpponentPairing, 0, len(tallies))
	for name, t := range tallies {
		if t.games < constants.MinPairingGames || t.losses == 0 {
			continue
		}
		out = append(out, domain.OpponentPairing{
			ChampionName: name,
			Games:        t.games,
			Losses:       t.losses,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Losses != out[j].Losses {
			return out[i].Losses > out[j].Losses
		}
		return out[i].ChampionName < out[j].ChampionName
	})
	return out
}

// hatedByRole picks, per role, the enemy champion the player lost to most
// among pairings with enough games and at least one loss.
func hatedByRole(tallies map[roleChampionKey]*tally) map[string]domain.OpponentPairing {
	type candidate struct {
		champion string
		t        *tally
	}
	byRole := make(map[string][]candidate)
	for key, t := range tallies {
		if t.games < constants.MinPairingGames || t.losses == 0 {
			continue
		}
		byRole[key.role] = append(byRole[key.role], candidate{champion: key.champion, t: t})
	}

	out := make(map[string]domain.OpponentPairing, len(byRole))
	for role, candidates := range byRole {
		sort.Slice(candidates, func(i, j int) bool {
			ci, cj := candidates[i], candidates[j]
			if ci.t.losses != cj.t.losses {
				return ci.t.losses > cj.t.losses
			}
			if ci.t.games != cj.t.games {
				return ci.t.games > cj.t.games
			}
			return ci.champion < cj.champion
		})
		best := candidates[0]
		out[role] = domain.OpponentPairing{
			ChampionName: best.champion,
			Games:        best.t.games,
			Losses:       best.t.losses,
		}
	}
	return out
}
