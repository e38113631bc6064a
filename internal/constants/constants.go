package constants

import "time"

const (
	ProfileRefreshTTL = 5 * time.Minute
	SnapshotTTL       = 24 * time.Hour
	SnapshotSweep     = 1 * time.Hour
)

const (
	ExternalAPITimeout = 10 * time.Second
	DatabaseTimeout    = 5 * time.Second
	RequestTimeout     = 30 * time.Second
	BatchTimeout       = 60 * time.Second
	AggregationTimeout = 30 * time.Second
)

const (
	DBMaxOpenConns    = 100
	DBMaxIdleConns    = 10
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
	DBBatchSize       = 100
)

const (
	QueueBatchSize   = 5
	QueueMaxAttempts = 3
	QueueDedupWindow = 5 * time.Minute
)

const (
	UpstreamMaxRetries  = 3
	UpstreamBaseBackoff = 500 * time.Millisecond
)

const (
	MatchIDPageSize  = 100
	TopChampionCount = 5
	MinPairingGames  = 3
)

const (
	DefaultAggregationThreshold = 20
	DefaultWorkerCount          = 4
)

const (
	ShutdownTimeout = 5 * time.Second
)
