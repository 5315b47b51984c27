package command

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	v1 "github.com/aevon-lab/tally/internal/api/v1"
	httperr "github.com/aevon-lab/tally/internal/core/errors"
	"github.com/gin-gonic/gin"
)

// response is a successful command reply: the structured result plus the
// rendered chat text.
type response struct {
	Result
	Text string `json:"text"`
}

// RegisterRoutes registers the command and query routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/commands", s.requireToken, s.HandleCommand)
	r.GET("/v1/leaderboard", s.HandleLeaderboard)
	r.GET("/v1/stats/:user_id", s.HandleStats)
	r.GET("/v1/periods", s.HandlePeriods)
}

// HandleCommand handles POST /v1/commands.
func (s *Service) HandleCommand(c *gin.Context) {
	var req v1.CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidJsonError,
			Message:   "Invalid JSON body",
		})
		return
	}

	writeResult(c, s.Handle(c.Request.Context(), req))
}

// requireToken rejects command requests without the configured bearer token.
// It is a no-op when no token is configured.
func (s *Service) requireToken(c *gin.Context) {
	if s.apiToken == "" {
		c.Next()
		return
	}

	token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.apiToken)) != 1 {
		slog.Warn("[Command] Rejected unauthenticated command request", "client_ip", c.ClientIP())
		c.AbortWithStatusJSON(http.StatusUnauthorized, httperr.ErrorResponse{
			ErrorType: httperr.HttpUnauthenticatedError,
			Message:   "Missing or invalid API token",
		})
		return
	}
	c.Next()
}

// HandleLeaderboard handles GET /v1/leaderboard
// Query parameters: scope, period, top
func (s *Service) HandleLeaderboard(c *gin.Context) {
	var query struct {
		Scope  string `form:"scope"`
		Period string `form:"period"`
		Top    *int   `form:"top"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidArgumentError,
			Message:   "Invalid query parameters",
			Details:   err.Error(),
		})
		return
	}

	writeResult(c, s.dispatch(c.Request.Context(), v1.CommandRequest{
		Command: v1.CommandLeaderboard,
		Scope:   query.Scope,
		Period:  query.Period,
		Top:     query.Top,
	}))
}

// HandleStats handles GET /v1/stats/:user_id
func (s *Service) HandleStats(c *gin.Context) {
	var uri struct {
		UserID string `uri:"user_id" binding:"required"`
	}
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidArgumentError,
			Message:   "Invalid path parameters",
			Details:   err.Error(),
		})
		return
	}

	writeResult(c, s.dispatch(c.Request.Context(), v1.CommandRequest{
		Command:   v1.CommandStats,
		InvokerID: uri.UserID,
		UserID:    uri.UserID,
	}))
}

// HandlePeriods handles GET /v1/periods
func (s *Service) HandlePeriods(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"current": s.engine.CurrentPeriod(),
		"periods": s.engine.Periods(),
	})
}

func writeResult(c *gin.Context, res Result) {
	if res.Kind != KindError {
		c.JSON(http.StatusOK, response{Result: res, Text: Render(res)})
		return
	}

	status, errorType := http.StatusInternalServerError, httperr.HttpInternalError
	switch res.Error.Kind {
	case ErrorPermissionDenied:
		status, errorType = http.StatusForbidden, httperr.HttpPermissionDeniedError
	case ErrorInvalidArgument:
		status, errorType = http.StatusBadRequest, httperr.HttpInvalidArgumentError
	case ErrorUnknownCommand:
		status, errorType = http.StatusNotFound, httperr.HttpUnknownCommandError
	case ErrorStorageFailure:
		status, errorType = http.StatusInternalServerError, httperr.HttpStorageError
	}

	c.JSON(status, httperr.ErrorResponse{
		ErrorType: errorType,
		Message:   res.Error.Message,
		Details:   gin.H{"text": Render(res)},
	})
}
