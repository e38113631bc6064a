package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Verdenroz/champion-recap/internal/config"
	"github.com/Verdenroz/champion-recap/internal/constants"
	"github.com/Verdenroz/champion-recap/internal/errors"
	"github.com/sethvargo/go-retry"
	"github.com/valyala/fasthttp"
)

// ClientInterface defines the Riot API operations the pipeline depends on.
// This interface enables testability by allowing mock implementations.
type ClientInterface interface {
	ResolveAccount(ctx context.Context, platform, gameName, tagLine string) (*AccountDto, error)
	GetSummoner(ctx context.Context, platform, puuid string) (*SummonerDto, error)
	ListMatchIDs(ctx context.Context, platform, puuid string, startTime, endTime int64, start, count int) ([]string, error)
	FetchMatch(ctx context.Context, platform, matchID string) (*MatchDto, []byte, error)
}

type RiotClient struct {
	apiKey      string
	client      *fasthttp.Client
	rateLimitMu sync.RWMutex
	rateLimit   RateLimitInfo

	// baseURL replaces the riotgames.com hosts when set, used by tests
	baseURL string
}

// Ensure RiotClient implements the interface
var _ ClientInterface = (*RiotClient)(nil)

type RateLimitInfo struct {
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`

	// seconds in the smallest application bucket
	Window int `json:"window"`

	UpdatedAt time.Time `json:"updated_at"`
}

func NewRiotClient(cfg *config.Config) *RiotClient {
	return &RiotClient{
		apiKey: cfg.RiotAPIKey,
		client: &fasthttp.Client{
			MaxConnsPerHost:     100,
			ReadTimeout:         constants.ExternalAPITimeout,
			WriteTimeout:        constants.ExternalAPITimeout,
			MaxIdleConnDuration: 1 * time.Minute,
		},
		rateLimit: RateLimitInfo{
			Limit:     100,
			Remaining: 100,
			Window:    120,
			UpdatedAt: time.Now(),
		},
	}
}

func (c *RiotClient) GetRateLimitInfo() RateLimitInfo {
	c.rateLimitMu.RLock()
	defer c.rateLimitMu.RUnlock()
	return c.rateLimit
}

func (c *RiotClient) updateRateLimit(resp *fasthttp.Response) {
	c.rateLimitMu.Lock()
	defer c.rateLimitMu.Unlock()

	if limits := string(resp.Header.Peek("X-App-Rate-Limit")); limits != "" {
		if calls, window, ok := parseRateBucket(limits); ok {
			c.rateLimit.Limit = calls
			c.rateLimit.Window = window
		}
	}
	if counts := string(resp.Header.Peek("X-App-Rate-Limit-Count")); counts != "" {
		if calls, _, ok := parseRateBucket(counts); ok {
			c.rateLimit.Remaining = c.rateLimit.Limit - calls
		}
	}
	c.rateLimit.UpdatedAt = time.Now()
}

// parseRateBucket reads the first "calls:windowSeconds" pair from a Riot rate
// limit header such as "20:1,100:120".
func parseRateBucket(header string) (int, int, bool) {
	first := header
	if idx := strings.IndexByte(first, ','); idx >= 0 {
		first = first[:idx]
	}
	parts := strings.SplitN(first, ":", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	calls, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, false
	}
	window, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, false
	}
	return calls, window, true
}

var knownPlatforms = map[string]struct{}{
	"br1": {}, "eun1": {}, "euw1": {}, "jp1": {}, "kr": {}, "la1": {}, "la2": {},
	"na1": {}, "oc1": {}, "ph2": {}, "ru": {}, "sg2": {}, "th2": {}, "tr1": {},
	"tw2": {}, "vn2": {},
}

// ValidPlatform reports whether the platform id is one Riot actually routes.
func ValidPlatform(platform string) bool {
	_, ok := knownPlatforms[platform]
	return ok
}

// RegionRouting maps a platform id (na1, euw1, kr, ...) onto the regional
// routing value used by account-v1 and match-v5.
func RegionRouting(platform string) string {
	p := strings.ToLower(platform)
	switch {
	case strings.HasPrefix(p, "na"), strings.HasPrefix(p, "br"),
		strings.HasPrefix(p, "lan"), strings.HasPrefix(p, "las"),
		strings.HasPrefix(p, "oce"):
		return "americas"
	case strings.HasPrefix(p, "kr"), strings.HasPrefix(p, "jp"):
		return "asia"
	case strings.HasPrefix(p, "eun"), strings.HasPrefix(p, "euw"),
		strings.HasPrefix(p, "tr"), strings.HasPrefix(p, "ru"):
		return "europe"
	case strings.HasPrefix(p, "sg"), strings.HasPrefix(p, "ph"),
		strings.HasPrefix(p, "th"), strings.HasPrefix(p, "vn"),
		strings.HasPrefix(p, "tw"):
		return "sea"
	default:
		return "americas"
	}
}

// NormalizeRole folds the teamPosition and lane fields of a participant into
// one of the five canonical roles, UNKNOWN when neither is usable.
func NormalizeRole(teamPosition, lane string) string {
	role := strings.ToUpper(strings.TrimSpace(teamPosition))
	if role == "" {
		role = strings.ToUpper(strings.TrimSpace(lane))
	}
	switch role {
	case "TOP":
		return "TOP"
	case "JUNGLE":
		return "JUNGLE"
	case "MIDDLE", "MID":
		return "MIDDLE"
	case "BOTTOM", "BOT":
		return "BOTTOM"
	case "UTILITY", "SUPPORT":
		return "UTILITY"
	default:
		return "UNKNOWN"
	}
}

func (c *RiotClient) regionalHost(platform string) string {
	if c.baseURL != "" {
		return c.baseURL
	}
	return fmt.Sprintf("https://%s.api.riotgames.com", RegionRouting(platform))
}

func (c *RiotClient) platformHost(platform string) string {
	if c.baseURL != "" {
		return c.baseURL
	}
	return fmt.Sprintf("https://%s.api.riotgames.com", strings.ToLower(platform))
}

func (c *RiotClient) ResolveAccount(ctx context.Context, platform, gameName, tagLine string) (*AccountDto, error) {
	uri := fmt.Sprintf("%s/riot/account/v1/accounts/by-riot-id/%s/%s",
		c.regionalHost(platform), url.PathEscape(gameName), url.PathEscape(tagLine))
	return doRequest[AccountDto](ctx, c, "account", gameName+"#"+tagLine, uri)
}

func (c *RiotClient) GetSummoner(ctx context.Context, platform, puuid string) (*SummonerDto, error) {
	uri := fmt.Sprintf("%s/lol/summoner/v4/summoners/by-puuid/%s", c.platformHost(platform), puuid)
	return doRequest[SummonerDto](ctx, c, "summoner", puuid, uri)
}

func (c *RiotClient) ListMatchIDs(ctx context.Context, platform, puuid string, startTime, endTime int64, start, count int) ([]string, error) {
	uri := fmt.Sprintf("%s/lol/match/v5/matches/by-puuid/%s/ids?startTime=%d&endTime=%d&start=%d&count=%d",
		c.regionalHost(platform), puuid, startTime, endTime, start, count)
	ids, err := doRequest[[]string](ctx, c, "match ids", puuid, uri)
	if err != nil {
		return nil, err
	}
	return *ids, nil
}

// FetchMatch retrieves a full match, retrying transient failures with
// exponential backoff. A Retry-After hint from the upstream raises the next
// delay above the exponential schedule. The raw response body is returned
// alongside the parsed match so callers can store the payload verbatim.
func (c *RiotClient) FetchMatch(ctx context.Context, platform, matchID string) (*MatchDto, []byte, error) {
	uri := fmt.Sprintf("%s/lol/match/v5/matches/%s", c.regionalHost(platform), matchID)

	var raw []byte
	var hint time.Duration

	base := retry.WithMaxRetries(constants.UpstreamMaxRetries, retry.NewExponential(constants.UpstreamBaseBackoff))
	backoff := retry.BackoffFunc(func() (time.Duration, bool) {
		delay, stop := base.Next()
		if stop {
			return 0, true
		}
		if hint > delay {
			delay = hint
		}
		return delay, false
	})

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		body, err := doRaw(ctx, c, "match", matchID, uri)
		if err != nil {
			hint = errors.RetryAfterHint(err)
			if errors.IsTransient(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		raw = body
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	var match MatchDto
	if err := json.Unmarshal(raw, &match); err != nil {
		return nil, nil, errors.NewMalformedError(err)
	}
	return &match, raw, nil
}

func doRequest[T any](ctx context.Context, client *RiotClient, resource, id, uri string) (*T, error) {
	body, err := doRaw(ctx, client, resource, id, uri)
	if err != nil {
		return nil, err
	}

	var result T
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, errors.NewMalformedError(err)
	}
	return &result, nil
}

// doRaw performs a GET and returns a copy of the response body, with the
// status already classified into the pipeline error taxonomy.
func doRaw(ctx context.Context, client *RiotClient, resource, id, uri string) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(uri)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("X-Riot-Token", client.apiKey)

	deadline, ok := ctx.Deadline()
	if ok {
		if err := client.client.DoDeadline(req, resp, deadline); err != nil {
			return nil, errors.NewTransportError(err)
		}
	} else {
		if err := client.client.Do(req, resp); err != nil {
			return nil, errors.NewTransportError(err)
		}
	}

	client.updateRateLimit(resp)

	if err := classifyStatus(resp, resource, id); err != nil {
		return nil, err
	}

	// the response object goes back to the pool, keep our own copy
	return append([]byte(nil), resp.Body()...), nil
}

func classifyStatus(resp *fasthttp.Response, resource, id string) error {
	status := resp.StatusCode()
	switch status {
	case fasthttp.StatusOK:
		return nil
	case fasthttp.StatusNotFound:
		return errors.NewNotFoundError(resource, id)
	case fasthttp.StatusTooManyRequests:
		return errors.NewRateLimitedError(retryAfter(resp))
	default:
		return errors.NewUpstreamError(status, fmt.Errorf("riot API error: %d", status))
	}
}

func retryAfter(resp *fasthttp.Response) time.Duration {
	raw := string(resp.Header.Peek("Retry-After"))
	if raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

type AccountDto struct {
	Puuid    string `json:"puuid"`
	GameName string `json:"gameName"`
	TagLine  string `json:"tagLine"`
}

type SummonerDto struct {
	ID            string `json:"id"`
	AccountID     string `json:"accountId"`
	Puuid         string `json:"puuid"`
	ProfileIconID int    `json:"profileIconId"`
	RevisionDate  int64  `json:"revisionDate"`
	SummonerLevel int64  `json:"summonerLevel"`
}

type MatchDto struct {
	Metadata MatchMetadataDto `json:"metadata"`
	Info     MatchInfoDto     `json:"info"`
}

type MatchMetadataDto struct {
	MatchID      string   `json:"matchId"`
	Participants []string `json:"participants"`
}

type MatchInfoDto struct {
	GameCreation int64            `json:"gameCreation"`
	GameDuration int64            `json:"gameDuration"`
	GameMode     string           `json:"gameMode"`
	GameVersion  string           `json:"gameVersion"`
	QueueID      int              `json:"queueId"`
	Participants []ParticipantDto `json:"participants"`
}

type ParticipantDto struct {
	Puuid                       string `json:"puuid"`
	RiotIDGameName              string `json:"riotIdGameName,omitempty"`
	RiotIDTagline               string `json:"riotIdTagline,omitempty"`
	ChampionID                  int    `json:"championId"`
	ChampionName                string `json:"championName"`
	TeamID                      int    `json:"teamId"`
	Win                         bool   `json:"win"`
	Kills                       int    `json:"kills"`
	Deaths                      int    `json:"deaths"`
	Assists                     int    `json:"assists"`
	TotalMinionsKilled          int    `json:"totalMinionsKilled"`
	NeutralMinionsKilled        int    `json:"neutralMinionsKilled"`
	VisionScore                 int    `json:"visionScore"`
	GoldEarned                  int    `json:"goldEarned"`
	TotalDamageDealtToChampions int    `json:"totalDamageDealtToChampions"`
	TeamPosition                string `json:"teamPosition"`
	Lane                        string `json:"lane"`
}
