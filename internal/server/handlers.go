package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nartya-app/nartya/internal/analyzer"
	"github.com/nartya-app/nartya/internal/cache"
	"github.com/nartya-app/nartya/internal/extractor"
	"github.com/nartya-app/nartya/internal/playback"
	"github.com/nartya-app/nartya/internal/probe"
	"github.com/nartya-app/nartya/internal/version"
)

type ExtractRequest struct {
	URL string `json:"url" binding:"required"`
}

// ExtractResponse flattens an extractor.Result.
type ExtractResponse struct {
	Success     bool           `json:"success"`
	VideoURL    string         `json:"videoUrl,omitempty"`
	Note        string         `json:"note,omitempty"`
	ErrorCode   extractor.Code `json:"errorCode,omitempty"`
	Error       string         `json:"error,omitempty"`
	UserMessage string         `json:"userMessage,omitempty"`
}

func toExtractResponse(r extractor.Result) ExtractResponse {
	switch v := r.(type) {
	case extractor.Success:
		return ExtractResponse{Success: true, VideoURL: v.VideoURL, Note: v.Note}
	case extractor.Failure:
		return ExtractResponse{ErrorCode: v.Code, Error: v.RawError, UserMessage: v.UserMessage}
	default:
		return ExtractResponse{ErrorCode: extractor.CodeUnknownError, UserMessage: extractor.UserMessage(extractor.CodeUnknownError)}
	}
}

type BatchRequest struct {
	URLs []string `json:"urls" binding:"required"`
}

type AnalyzeRequest struct {
	Listing  analyzer.Listing `json:"listing" binding:"required"`
	Language string           `json:"language" binding:"required"`
}

type AnalyzeResponse struct {
	Report   analyzer.SourceReport `json:"report"`
	Analyses analyzer.Analyses     `json:"analyses"`
}

type SeasonRequest struct {
	SeasonID string           `json:"seasonId" binding:"required"`
	Listing  analyzer.Listing `json:"listing" binding:"required"`
	Language string           `json:"language" binding:"required"`
}

type LanguageRequest struct {
	Language string `json:"language" binding:"required"`
}

type SourceRequest struct {
	Mirror string `json:"mirror" binding:"required"`
}

type PlayRequest struct {
	// Index is zero-based. A pointer so that episode 0 passes binding.
	Index *int `json:"index" binding:"required"`
}

type ProbeRequest struct {
	URL string `json:"url" binding:"required"`
}

func (s *Server) handleHealth(c *gin.Context) {
	ok(c, gin.H{"status": "ok", "version": version.Version})
}

func (s *Server) handleExtract(c *gin.Context) {
	var req ExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	ok(c, toExtractResponse(s.deps.Engine.Extract(c.Request.Context(), req.URL)))
}

func (s *Server) handleExtractBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	ok(c, s.deps.Engine.ExtractMany(c.Request.Context(), req.URLs))
}

func (s *Server) handleAnalyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	analyses := analyzer.AnalyzeAll(req.Listing, req.Language)
	ok(c, AnalyzeResponse{Report: analyzer.Report(analyses), Analyses: analyses})
}

func (s *Server) handleProbe(c *gin.Context) {
	if s.deps.Prober == nil {
		fail(c, http.StatusNotImplemented, "probe disabled")
		return
	}
	var req ProbeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	report, err := s.deps.Prober.Probe(c.Request.Context(), req.URL)
	if err != nil {
		c.JSON(http.StatusBadGateway, Response{Code: http.StatusBadGateway, Data: report, Message: err.Error()})
		return
	}
	ok(c, report)
}

func (s *Server) handleLoadSeason(c *gin.Context) {
	var req SeasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	mirror, err := s.deps.Navigator.Load(req.SeasonID, req.Listing, req.Language)
	if err != nil {
		s.navigationError(c, err)
		return
	}
	ok(c, gin.H{"mirror": mirror, "report": analyzer.Report(s.deps.Navigator.Analyses())})
}

func (s *Server) handleSwitchLanguage(c *gin.Context) {
	var req LanguageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	mirror, err := s.deps.Navigator.SwitchLanguage(req.Language)
	if err != nil {
		s.navigationError(c, err)
		return
	}
	ok(c, gin.H{"language": req.Language, "mirror": mirror})
}

func (s *Server) handleSwitchSource(c *gin.Context) {
	var req SourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.deps.Navigator.SwitchSource(req.Mirror); err != nil {
		s.navigationError(c, err)
		return
	}
	ok(c, gin.H{"mirror": req.Mirror})
}

func (s *Server) handlePlay(c *gin.Context) {
	var req PlayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	pb, err := s.deps.Navigator.Play(c.Request.Context(), *req.Index)
	if err != nil {
		s.navigationError(c, err)
		return
	}
	ok(c, pb)
}

func (s *Server) navigationError(c *gin.Context, err error) {
	var extErr *playback.ExtractionError
	switch {
	case errors.As(err, &extErr):
		c.JSON(http.StatusBadGateway, Response{
			Code:    http.StatusBadGateway,
			Data:    toExtractResponse(extErr.Failure),
			Message: extErr.Failure.UserMessage,
		})
	case errors.Is(err, cache.ErrForegroundBusy):
		fail(c, http.StatusConflict, err.Error())
	case errors.Is(err, playback.ErrNotLoaded):
		fail(c, http.StatusPreconditionFailed, err.Error())
	case errors.Is(err, playback.ErrUnknownLanguage),
		errors.Is(err, playback.ErrUnknownMirror),
		errors.Is(err, playback.ErrEpisodeOutOfRange):
		fail(c, http.StatusNotFound, err.Error())
	default:
		fail(c, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleGetCache(c *gin.Context) {
	ok(c, gin.H{"entries": s.deps.Cache.Entries(), "count": s.deps.Cache.Len()})
}

func (s *Server) handleClearCache(c *gin.Context) {
	if err := s.deps.Cache.Clear(); err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	ok(c, nil)
}

var _ Prober = (*probe.Prober)(nil)
