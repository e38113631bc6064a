package domain

import (
	"time"
)

type PlayerProfile struct {
	Puuid         string
	GameName      string
	TagLine       string
	Platform      string
	Region        string
	SummonerLevel int
	ProfileIconID int
	LastRefreshAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MatchIDRecord is one unit of ingestion work for one tracked player. Year is
// the season window the id was discovered for. The cached flag flips exactly
// once, when the processor finishes storing the match; the failed flag flips
// once for permanently-failed fetches.
type MatchIDRecord struct {
	MatchID    string
	Puuid      string
	Year       int
	Cached     bool
	Failed     bool
	InsertedAt time.Time
}

// CachedMatch is the write-once raw match record. Payload is the opaque
// upstream JSON; the aggregator never reads it, only the derived stat rows.
type CachedMatch struct {
	MatchID      string
	CacheKey     string // {playerId}/{matchId}
	Region       string
	Payload      []byte
	GameCreation time.Time
	GameDuration int64 // seconds
	GameMode     string
	CachedAt     time.Time
}

// MatchStat is the denormalized per-participant row derived from a cached
// match at processing time, one row per participant per match.
type MatchStat struct {
	MatchID      string
	Puuid        string
	ChampionID   int
	ChampionName string
	TeamID       int
	Role         string // TOP, JUNGLE, MIDDLE, BOTTOM, UTILITY
	Win          bool
	Kills        int
	Deaths       int
	Assists      int
	DamageDealt  int
	GoldEarned   int
	CS           int // minions + neutral minions
	VisionScore  int
	GameCreation time.Time
	GameDuration int64
}

type ProgressStatus string

const (
	StatusProcessing ProgressStatus = "PROCESSING"
	StatusComplete   ProgressStatus = "COMPLETE"
	StatusError      ProgressStatus = "ERROR"
)

// ProgressRecord tracks one player's ingestion run, scoped to the year the
// run was triggered for. Counters move only via atomic increments; COMPLETE
// requires processed == total.
type ProgressRecord struct {
	Puuid            string
	Year             int
	TotalMatches     int
	ProcessedMatches int
	CachedMatches    int
	SkippedMatches   int
	Status           ProgressStatus
	Reason           string
	UpdatedAt        time.Time
}

func (p *ProgressRecord) Terminal() bool {
	return p.Status == StatusComplete || p.Status == StatusError
}

type ChampionGames struct {
	ChampionName string  `json:"championName"`
	Games        int     `json:"games"`
	Wins         int     `json:"wins"`
	WinRate      float64 `json:"winRate"`
}

type TeammatePairing struct {
	ChampionName string  `json:"championName"`
	Games        int     `json:"games"`
	Wins         int     `json:"wins"`
	WinRate      float64 `json:"winRate"`
}

type OpponentPairing struct {
	ChampionName string `json:"championName"`
	Games        int    `json:"games"`
	Losses       int    `json:"losses"`
}

// ChampionStatsSnapshot is an immutable recompute result for (player, year).
// A later recompute supersedes it with a higher generation.
type ChampionStatsSnapshot struct {
	Puuid          string                     `json:"puuid"`
	Year           int                        `json:"year"`
	Generation     int64                      `json:"generation"`
	TotalGames     int                        `json:"totalGames"`
	TotalWins      int                        `json:"totalWins"`
	TotalLosses    int                        `json:"totalLosses"`
	TopChampions   []ChampionGames            `json:"topChampions"`
	FavoriteByRole map[string]TeammatePairing `json:"favoriteByRole"`
	Nemeses        []OpponentPairing          `json:"nemeses"`
	HatedByRole    map[string]OpponentPairing `json:"hatedByRole"`
	ComputedAt     time.Time                  `json:"computedAt"`
	ExpiresAt      time.Time                  `json:"expiresAt"`
}

// CacheKey builds the {playerId}/{matchId} storage key convention.
func CacheKey(puuid, matchID string) string {
	return puuid + "/" + matchID
}
