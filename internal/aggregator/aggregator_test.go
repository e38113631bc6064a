package aggregator_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/Verdenroz/champion-recap/internal/aggregator"
	"github.com/Verdenroz/champion-recap/internal/domain"
	"github.com/Verdenroz/champion-recap/internal/errors"
	"github.com/Verdenroz/champion-recap/internal/repository"
	"github.com/Verdenroz/champion-recap/internal/testutil"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"
)

type AggregatorSuite struct {
	suite.Suite
	db        *sql.DB
	stats     *repository.StatsRepository
	snapshots *repository.SnapshotRepository
	agg       *aggregator.Aggregator
}

func (s *AggregatorSuite) SetupTest() {
	s.db = testutil.NewTestDB(s.T())
	s.stats = repository.NewStatsRepository(s.db, zerolog.Nop())
	s.snapshots = repository.NewSnapshotRepository(s.db, zerolog.Nop())
	s.agg = aggregator.New(s.stats, s.snapshots, zerolog.Nop())
}

func (s *AggregatorSuite) TearDownTest() {
	testutil.MustClose(s.T(), s.db)
}

type enemy struct {
	champion string
	role     string
}

// seasonMatch describes one game from the tracked player's point of view.
type seasonMatch struct {
	id        string
	champion  string
	role      string
	win       bool
	teammates []string
	enemies   []enemy
}

// season is the fixture the assertions below are hand computed from:
//   - top champions: Ahri 3, Jinx 3, Annie 2, Lux 2, Brand/Corki/Diana 1 each
//   - Jarvan IV and Lee Sin tie at 3 wins in 4 games as MIDDLE teammates,
//     Nocturne sits at 3 in 6, Vi has too few games
//   - Yasuo is faced 6 times from MIDDLE with 4 losses but only 3 of those
//     games are mirror matchups; Zed mirrors 5 times with 2 losses
//   - Malzahar is faced 3 times without a single loss, Talon and Draven too
//     few times to count
//   - the two UNKNOWN-role games still count for champions and totals
func season() []seasonMatch {
	return []seasonMatch{
		{id: "NA1_1", champion: "Ahri", role: "MIDDLE", win: true,
			teammates: []string{"Jarvan IV", "Lee Sin", "Nocturne"},
			enemies:   []enemy{{"Zed", "MIDDLE"}, {"Yasuo", "TOP"}, {"Malzahar", "UTILITY"}}},
		{id: "NA1_2", champion: "Ahri", role: "MIDDLE", win: true,
			teammates: []string{"Jarvan IV", "Lee Sin", "Nocturne"},
			enemies:   []enemy{{"Zed", "MIDDLE"}, {"Malzahar", "UTILITY"}}},
		{id: "NA1_3", champion: "Ahri", role: "MIDDLE", win: false,
			teammates: []string{"Jarvan IV", "Lee Sin", "Nocturne"},
			enemies:   []enemy{{"Zed", "MIDDLE"}, {"Yasuo", "TOP"}}},
		{id: "NA1_4", champion: "Lux", role: "MIDDLE", win: true,
			teammates: []string{"Jarvan IV", "Lee Sin", "Nocturne"},
			enemies:   []enemy{{"Zed", "MIDDLE"}, {"Malzahar", "UTILITY"}}},
		{id: "NA1_5", champion: "Lux", role: "MIDDLE", win: false,
			teammates: []string{"Nocturne"},
			enemies:   []enemy{{"Zed", "MIDDLE"}, {"Yasuo", "TOP"}}},
		{id: "NA1_6", champion: "Annie", role: "MIDDLE", win: false,
			teammates: []string{"Nocturne"},
			enemies:   []enemy{{"Yasuo", "MIDDLE"}, {"Talon", "MIDDLE"}}},
		{id: "NA1_7", champion: "Annie", role: "MIDDLE", win: false,
			teammates: []string{"Vi"},
			enemies:   []enemy{{"Yasuo", "MIDDLE"}}},
		{id: "NA1_8", champion: "Brand", role: "MIDDLE", win: true,
			teammates: []string{"Vi"},
			enemies:   []enemy{{"Yasuo", "MIDDLE"}}},
		{id: "NA1_9", champion: "Corki", role: "UNKNOWN", win: true,
			teammates: []string{"Lee Sin"},
			enemies:   []enemy{{"Zed", "MIDDLE"}}},
		{id: "NA1_10", champion: "Diana", role: "UNKNOWN", win: false,
			teammates: []string{"Nocturne"},
			enemies:   []enemy{{"Zed", "MIDDLE"}}},
		{id: "NA1_11", champion: "Jinx", role: "BOTTOM", win: true,
			teammates: []string{"Thresh"},
			enemies:   []enemy{{"Draven", "BOTTOM"}}},
		{id: "NA1_12", champion: "Jinx", role: "BOTTOM", win: false,
			teammates: []string{"Thresh"}},
		{id: "NA1_13", champion: "Jinx", role: "BOTTOM", win: true,
			teammates: []string{"Thresh"}},
	}
}

func participantRow(matchID, puuid, champion string, teamID int, role string, win bool, created time.Time) domain.MatchStat {
	return domain.MatchStat{
		MatchID:      matchID,
		Puuid:        puuid,
		ChampionID:   1,
		ChampionName: champion,
		TeamID:       teamID,
		Role:         role,
		Win:          win,
		Kills:        4,
		Deaths:       4,
		Assists:      6,
		DamageDealt:  16000,
		GoldEarned:   10500,
		CS:           170,
		VisionScore:  18,
		GameCreation: created,
		GameDuration: 1750,
	}
}

func (s *AggregatorSuite) insertSeason(stats *repository.StatsRepository, matches []seasonMatch) {
	base := time.Date(2025, time.February, 1, 19, 0, 0, 0, time.UTC)
	var rows []domain.MatchStat
	for i, m := range matches {
		created := base.Add(time.Duration(i) * 24 * time.Hour)
		rows = append(rows, participantRow(m.id, "me", m.champion, 100, m.role, m.win, created))
		for _, champ := range m.teammates {
			rows = append(rows, participantRow(m.id, "ally-"+champ, champ, 100, "JUNGLE", m.win, created))
		}
		for _, e := range m.enemies {
			rows = append(rows, participantRow(m.id, "enemy-"+e.champion, e.champion, 200, e.role, !m.win, created))
		}
	}
	s.Require().NoError(stats.InsertBatch(context.Background(), rows))
}

func (s *AggregatorSuite) TestRecompute_Totals() {
	s.insertSeason(s.stats, season())

	snapshot, err := s.agg.Recompute(context.Background(), "me", 2025)
	s.Require().NoError(err)
	s.Require().NotNil(snapshot)

	s.Assert().Equal("me", snapshot.Puuid)
	s.Assert().Equal(2025, snapshot.Year)
	s.Assert().Equal(13, snapshot.TotalGames)
	s.Assert().Equal(7, snapshot.TotalWins)
	s.Assert().Equal(6, snapshot.TotalLosses)
	s.Assert().Positive(snapshot.Generation)
	s.Assert().True(snapshot.ExpiresAt.After(snapshot.ComputedAt))
}

func (s *AggregatorSuite) TestRecompute_TopChampions() {
	s.insertSeason(s.stats, season())

	snapshot, err := s.agg.Recompute(context.Background(), "me", 2025)
	s.Require().NoError(err)

	// five entries, games descending, champion name breaks ties
	s.Assert().Equal([]domain.ChampionGames{
		{ChampionName: "Ahri", Games: 3, Wins: 2, WinRate: 2.0 / 3.0},
		{ChampionName: "Jinx", Games: 3, Wins: 2, WinRate: 2.0 / 3.0},
		{ChampionName: "Annie", Games: 2, Wins: 0, WinRate: 0},
		{ChampionName: "Lux", Games: 2, Wins: 1, WinRate: 0.5},
		{ChampionName: "Brand", Games: 1, Wins: 1, WinRate: 1},
	}, snapshot.TopChampions)
}

func (s *AggregatorSuite) TestRecompute_FavoriteByRole() {
	s.insertSeason(s.stats, season())

	snapshot, err := s.agg.Recompute(context.Background(), "me", 2025)
	s.Require().NoError(err)

	// Jarvan IV and Lee Sin share 3 wins in 4 games; the name decides. The
	// Lee Sin game played without a role stays out, or he would sit at 4/5.
	s.Assert().Equal(map[string]domain.TeammatePairing{
		"MIDDLE": {ChampionName: "Jarvan IV", Games: 4, Wins: 3, WinRate: 0.75},
		"BOTTOM": {ChampionName: "Thresh", Games: 3, Wins: 2, WinRate: 2.0 / 3.0},
	}, snapshot.FavoriteByRole)
}

func (s *AggregatorSuite) TestRecompute_Nemeses() {
	s.insertSeason(s.stats, season())

	snapshot, err := s.agg.Recompute(context.Background(), "me", 2025)
	s.Require().NoError(err)

	// only mirror-role encounters count: Yasuo's three TOP games are out, as
	// are Talon and Draven with too few games and the games played roleless
	s.Assert().Equal([]domain.OpponentPairing{
		{ChampionName: "Yasuo", Games: 3, Losses: 2},
		{ChampionName: "Zed", Games: 5, Losses: 2},
	}, snapshot.Nemeses)
}

func (s *AggregatorSuite) TestRecompute_HatedByRole() {
	s.insertSeason(s.stats, season())

	snapshot, err := s.agg.Recompute(context.Background(), "me", 2025)
	s.Require().NoError(err)

	// Malzahar was faced three times without a loss and never shows up;
	// Draven leaves BOTTOM with no qualifying enemy at all
	s.Assert().Equal(map[string]domain.OpponentPairing{
		"MIDDLE": {ChampionName: "Yasuo", Games: 6, Losses: 4},
	}, snapshot.HatedByRole)
}

func (s *AggregatorSuite) TestRecompute_StoresSnapshot() {
	s.insertSeason(s.stats, season())

	computed, err := s.agg.Recompute(context.Background(), "me", 2025)
	s.Require().NoError(err)

	stored, err := s.snapshots.GetLatest(context.Background(), "me", 2025)
	s.Require().NoError(err)
	s.Require().NotNil(stored)
	s.Assert().Equal(computed.Generation, stored.Generation)
	s.Assert().Equal(computed.TotalGames, stored.TotalGames)
	s.Assert().Equal(computed.TopChampions, stored.TopChampions)
}

func (s *AggregatorSuite) TestRecompute_InsertionOrderIrrelevant() {
	s.insertSeason(s.stats, season())
	forward, err := s.agg.Recompute(context.Background(), "me", 2025)
	s.Require().NoError(err)

	otherDB := testutil.NewTestDB(s.T())
	defer testutil.MustClose(s.T(), otherDB)
	otherStats := repository.NewStatsRepository(otherDB, zerolog.Nop())
	otherAgg := aggregator.New(otherStats, repository.NewSnapshotRepository(otherDB, zerolog.Nop()), zerolog.Nop())

	matches := season()
	for i, j := 0, len(matches)-1; i < j; i, j = i+1, j-1 {
		matches[i], matches[j] = matches[j], matches[i]
	}
	s.insertSeason(otherStats, matches)

	backward, err := otherAgg.Recompute(context.Background(), "me", 2025)
	s.Require().NoError(err)

	s.Assert().Equal(forward.TotalGames, backward.TotalGames)
	s.Assert().Equal(forward.TotalWins, backward.TotalWins)
	s.Assert().Equal(forward.TopChampions, backward.TopChampions)
	s.Assert().Equal(forward.FavoriteByRole, backward.FavoriteByRole)
	s.Assert().Equal(forward.Nemeses, backward.Nemeses)
	s.Assert().Equal(forward.HatedByRole, backward.HatedByRole)
}

func (s *AggregatorSuite) TestRecompute_NoRowsYet() {
	snapshot, err := s.agg.Recompute(context.Background(), "me", 2025)
	s.Require().Error(err)
	s.Assert().Nil(snapshot)
	s.Assert().True(errors.IsAggregationNotReady(err))

	stored, err := s.snapshots.GetLatest(context.Background(), "me", 2025)
	s.Require().NoError(err)
	s.Assert().Nil(stored)
}

func TestAggregatorSuite(t *testing.T) {
	suite.Run(t, new(AggregatorSuite))
}
