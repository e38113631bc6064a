package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Verdenroz/champion-recap/internal/domain"
	"github.com/Verdenroz/champion-recap/internal/errors"
	"github.com/Verdenroz/champion-recap/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

type RecapServer struct {
	recapSvc *service.RecapService
	logger   zerolog.Logger
}

func NewRecapServer(recapSvc *service.RecapService, logger zerolog.Logger) *RecapServer {
	return &RecapServer{recapSvc: recapSvc, logger: logger}
}

func (s *RecapServer) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/api/v1/recaps", s.handleStartRecap)
	r.Get("/api/v1/recaps/{playerID}", s.handleStatus)
	r.Get("/api/v1/matches/{matchID}", s.handleMatch)
	r.Get("/healthz", s.handleHealth)
	return r
}

type startRecapRequest struct {
	GameName string `json:"gameName"`
	TagLine  string `json:"tagLine"`
	Platform string `json:"platform"`
	Year     int    `json:"year"`
}

type playerResponse struct {
	Puuid         string `json:"puuid"`
	GameName      string `json:"gameName"`
	TagLine       string `json:"tagLine"`
	Platform      string `json:"platform"`
	Region        string `json:"region"`
	SummonerLevel int    `json:"summonerLevel"`
	ProfileIconID int    `json:"profileIconId"`
}

type progressResponse struct {
	Puuid            string    `json:"puuid"`
	Year             int       `json:"year"`
	TotalMatches     int       `json:"totalMatches"`
	ProcessedMatches int       `json:"processedMatches"`
	CachedMatches    int       `json:"cachedMatches"`
	SkippedMatches   int       `json:"skippedMatches"`
	Status           string    `json:"status"`
	Reason           string    `json:"reason,omitempty"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

type startRecapResponse struct {
	Player   *playerResponse   `json:"player,omitempty"`
	Progress *progressResponse `json:"progress"`
}

type statusResponse struct {
	Progress *progressResponse             `json:"progress,omitempty"`
	Snapshot *domain.ChampionStatsSnapshot `json:"snapshot,omitempty"`
}

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// handleStartRecap triggers ingestion for a riot id and season. The response
// is the run's progress record; processing continues in the background.
func (s *RecapServer) handleStartRecap(w http.ResponseWriter, r *http.Request) {
	var req startRecapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, errors.NewValidationError("body", "invalid json"))
		return
	}
	if req.Year == 0 {
		req.Year = time.Now().UTC().Year()
	}
	req.GameName = strings.TrimSpace(req.GameName)
	req.TagLine = strings.TrimSpace(req.TagLine)
	req.Platform = strings.ToLower(strings.TrimSpace(req.Platform))

	result, err := s.recapSvc.StartRecap(r.Context(), req.GameName, req.TagLine, req.Platform, req.Year)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := startRecapResponse{Progress: toProgressResponse(result.Progress)}
	if result.Player != nil {
		resp.Player = toPlayerResponse(result.Player)
	}
	s.writeJSON(w, http.StatusAccepted, resp)
}

func (s *RecapServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")

	year := time.Now().UTC().Year()
	if raw := r.URL.Query().Get("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, r, errors.NewValidationError("year", "must be an integer"))
			return
		}
		year = parsed
	}

	status, err := s.recapSvc.Status(r.Context(), playerID, year)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := statusResponse{Snapshot: status.Snapshot}
	if status.Progress != nil {
		resp.Progress = toProgressResponse(status.Progress)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleMatch serves the raw upstream payload of one cached match.
func (s *RecapServer) handleMatch(w http.ResponseWriter, r *http.Request) {
	match, err := s.recapSvc.GetMatch(r.Context(), chi.URLParam(r, "matchID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(match.Payload); err != nil {
		s.logger.Error().Err(err).Str("match_id", match.MatchID).Msg("failed to write match payload")
	}
}

func (s *RecapServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *RecapServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *RecapServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := errors.From(err)
	if appErr.Status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	} else {
		s.logger.Debug().Err(err).Str("path", r.URL.Path).Msg("request rejected")
	}
	if appErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(appErr.RetryAfter.Seconds())))
	}
	s.writeJSON(w, appErr.Status, errorResponse{Code: appErr.Code, Error: appErr.Message})
}

func toPlayerResponse(p *domain.PlayerProfile) *playerResponse {
	return &playerResponse{
		Puuid:         p.Puuid,
		GameName:      p.GameName,
		TagLine:       p.TagLine,
		Platform:      p.Platform,
		Region:        p.Region,
		SummonerLevel: p.SummonerLevel,
		ProfileIconID: p.ProfileIconID,
	}
}

func toProgressResponse(p *domain.ProgressRecord) *progressResponse {
	return &progressResponse{
		Puuid:            p.Puuid,
		Year:             p.Year,
		TotalMatches:     p.TotalMatches,
		ProcessedMatches: p.ProcessedMatches,
		CachedMatches:    p.CachedMatches,
		SkippedMatches:   p.SkippedMatches,
		Status:           string(p.Status),
		Reason:           p.Reason,
		UpdatedAt:        p.UpdatedAt,
	}
}
