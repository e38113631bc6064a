package repository_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/Verdenroz/champion-recap/internal/domain"
	"github.com/Verdenroz/champion-recap/internal/repository"
	"github.com/Verdenroz/champion-recap/internal/testutil"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"
)

type PlayerSuite struct {
	suite.Suite
	db   *sql.DB
	repo *repository.PlayerRepository
}

func (s *PlayerSuite) SetupTest() {
	s.db = testutil.NewTestDB(s.T())
	s.repo = repository.NewPlayerRepository(s.db, zerolog.Nop())
}

func (s *PlayerSuite) TearDownTest() {
	testutil.MustClose(s.T(), s.db)
}

func playerFixture(puuid string) *domain.PlayerProfile {
	now := time.Now()
	return &domain.PlayerProfile{
		Puuid:         puuid,
		GameName:      "Faker",
		TagLine:       "KR1",
		Platform:      "kr",
		Region:        "asia",
		SummonerLevel: 742,
		ProfileIconID: 6,
		LastRefreshAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (s *PlayerSuite) TestUpsertAndLookups() {
	ctx := context.Background()
	s.Require().NoError(s.repo.Upsert(ctx, playerFixture("p1")))

	byPuuid, err := s.repo.GetByPuuid(ctx, "p1")
	s.Require().NoError(err)
	s.Require().NotNil(byPuuid)
	s.Assert().Equal("Faker", byPuuid.GameName)
	s.Assert().Equal("KR1", byPuuid.TagLine)
	s.Assert().Equal("kr", byPuuid.Platform)
	s.Assert().Equal("asia", byPuuid.Region)
	s.Assert().Equal(742, byPuuid.SummonerLevel)

	byRiotID, err := s.repo.GetByRiotID(ctx, "Faker", "KR1")
	s.Require().NoError(err)
	s.Require().NotNil(byRiotID)
	s.Assert().Equal("p1", byRiotID.Puuid)
}

func (s *PlayerSuite) TestUpsert_UpdatesExistingRow() {
	ctx := context.Background()
	s.Require().NoError(s.repo.Upsert(ctx, playerFixture("p1")))

	renamed := playerFixture("p1")
	renamed.GameName = "Hide on bush"
	renamed.SummonerLevel = 743
	s.Require().NoError(s.repo.Upsert(ctx, renamed))

	got, err := s.repo.GetByPuuid(ctx, "p1")
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Assert().Equal("Hide on bush", got.GameName)
	s.Assert().Equal(743, got.SummonerLevel)

	// the old riot id no longer resolves
	stale, err := s.repo.GetByRiotID(ctx, "Faker", "KR1")
	s.Require().NoError(err)
	s.Assert().Nil(stale)
}

func (s *PlayerSuite) TestLookups_UnknownPlayer() {
	ctx := context.Background()

	byPuuid, err := s.repo.GetByPuuid(ctx, "nobody")
	s.Require().NoError(err)
	s.Assert().Nil(byPuuid)

	byRiotID, err := s.repo.GetByRiotID(ctx, "Nobody", "NA1")
	s.Require().NoError(err)
	s.Assert().Nil(byRiotID)
}

func (s *PlayerSuite) TestShouldRefresh() {
	ctx := context.Background()

	// unknown players always refresh
	should, err := s.repo.ShouldRefresh(ctx, "nobody", 5*time.Minute)
	s.Require().NoError(err)
	s.Assert().True(should)

	fresh := playerFixture("p1")
	s.Require().NoError(s.repo.Upsert(ctx, fresh))

	should, err = s.repo.ShouldRefresh(ctx, "p1", 5*time.Minute)
	s.Require().NoError(err)
	s.Assert().False(should)

	stale := playerFixture("p2")
	stale.LastRefreshAt = time.Now().Add(-time.Hour)
	s.Require().NoError(s.repo.Upsert(ctx, stale))

	should, err = s.repo.ShouldRefresh(ctx, "p2", 5*time.Minute)
	s.Require().NoError(err)
	s.Assert().True(should)
}

func TestPlayerSuite(t *testing.T) {
	suite.Run(t, new(PlayerSuite))
}
