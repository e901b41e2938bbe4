package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/moogar0880/problems"
	"go.uber.org/zap"

	"github.com/guidepath/guidepath/pkg/apiserver/middleware"
	"github.com/guidepath/guidepath/pkg/apperr"
	"github.com/guidepath/guidepath/pkg/logging"
)

var kindStatus = map[apperr.Kind]int{
	apperr.KindValidation:        http.StatusBadRequest,
	apperr.KindNotFound:          http.StatusNotFound,
	apperr.KindInvalidTransition: http.StatusConflict,
	apperr.KindConflict:          http.StatusConflict,
	apperr.KindConfiguration:     http.StatusInternalServerError,
	apperr.KindPersistence:       http.StatusInternalServerError,
	apperr.KindUpstream:          http.StatusBadGateway,
	apperr.KindUpstreamTimeout:   http.StatusGatewayTimeout,
	apperr.KindInternal:          http.StatusInternalServerError,
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind apperr.Kind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// respondError writes err as a problem document typed by its kind. Server-side failures are logged
// and their detail is withheld.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	kind := apperr.KindOf(err)
	status := StatusFor(kind)

	detail := err.Error()
	var appErr *apperr.Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		detail = appErr.Message
	}
	if status >= http.StatusInternalServerError {
		logging.From(c.Request.Context(), logger).Error("request failed",
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		if kind == apperr.KindPersistence || kind == apperr.KindInternal {
			detail = http.StatusText(status)
			if id := logging.RequestID(c.Request.Context()); id != "" {
				detail += " (request " + id + ")"
			}
		}
	}
	_ = c.Error(err)
	writeProblem(c, status, string(kind), detail)
}

func badRequest(c *gin.Context, detail string) {
	writeProblem(c, http.StatusBadRequest, string(apperr.KindValidation), detail)
}

func writeProblem(c *gin.Context, status int, kind, detail string) {
	problem := problems.NewStatusProblem(status).
		WithInstance(c.Request.URL.Path).
		WithType(kind).
		WithDetail(detail)
	c.Header("Content-Type", middleware.ProblemMediaType)
	c.AbortWithStatusJSON(status, problem)
}

func success(c *gin.Context, status int, body gin.H) {
	if body == nil {
		body = gin.H{}
	}
	body["success"] = true
	c.JSON(status, body)
}
