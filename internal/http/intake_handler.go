package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"voice-match/internal/domain"
	"voice-match/internal/service"
)

// IntakeHandler expone el recorrido del cuestionario de intake.
type IntakeHandler struct {
	logger *zap.Logger
	intake *service.IntakeService
}

func NewIntakeHandler(logger *zap.Logger, intake *service.IntakeService) *IntakeHandler {
	return &IntakeHandler{logger: logger, intake: intake}
}

// ListQuestions maneja GET /intake/questions.
func (h *IntakeHandler) ListQuestions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"questions": h.intake.Questions()})
}

// BeginSession maneja POST /intake/sessions.
func (h *IntakeHandler) BeginSession(c *gin.Context) {
	var req struct {
		SubjectID string `json:"subject_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid begin session request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	subjectID := strings.TrimSpace(req.SubjectID)
	if claims, ok := GetAuthClaims(c); ok {
		subjectID = claims.SubjectID
	}
	if subjectID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "subject_id is required"})
		return
	}

	session, err := h.intake.BeginSession(c.Request.Context(), subjectID)
	if err != nil {
		writeError(c, h.logger, "begin session", err)
		return
	}
	q := h.intake.Questions()[session.CurrentIndex]
	c.JSON(http.StatusCreated, gin.H{"session": session, "question": q})
}

// GetSession maneja GET /intake/sessions/:id.
func (h *IntakeHandler) GetSession(c *gin.Context) {
	session, ok := h.loadOwned(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

// CurrentQuestion maneja GET /intake/sessions/:id/question.
func (h *IntakeHandler) CurrentQuestion(c *gin.Context) {
	if _, ok := h.loadOwned(c); !ok {
		return
	}
	q, err := h.intake.CurrentQuestion(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, "current question", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"question": q})
}

// StartRecording maneja POST /intake/sessions/:id/recording.
func (h *IntakeHandler) StartRecording(c *gin.Context) {
	if _, ok := h.loadOwned(c); !ok {
		return
	}
	q, err := h.intake.StartCapture(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, "start recording", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"recording": true, "question": q})
}

// CaptureResponse maneja POST /intake/sessions/:id/responses.
// Con "transcript" en el body escribe una respuesta tipeada; sin body cierra la grabacion.
func (h *IntakeHandler) CaptureResponse(c *gin.Context) {
	if _, ok := h.loadOwned(c); !ok {
		return
	}
	var req struct {
		Transcript *string `json:"transcript"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.logger.Warn("invalid capture request", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
	}

	var (
		resp domain.Response
		err  error
	)
	if req.Transcript != nil {
		resp, err = h.intake.SubmitTranscript(c.Request.Context(), c.Param("id"), *req.Transcript)
	} else {
		resp, err = h.intake.CaptureResponse(c.Request.Context(), c.Param("id"))
	}
	if err != nil {
		writeError(c, h.logger, "capture response", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"response": resp})
}

// Advance maneja POST /intake/sessions/:id/advance.
func (h *IntakeHandler) Advance(c *gin.Context) {
	if _, ok := h.loadOwned(c); !ok {
		return
	}
	session, err := h.intake.Advance(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, "advance", err)
		return
	}
	c.JSON(http.StatusOK, h.walkPayload(session))
}

// Retreat maneja POST /intake/sessions/:id/retreat.
func (h *IntakeHandler) Retreat(c *gin.Context) {
	if _, ok := h.loadOwned(c); !ok {
		return
	}
	session, err := h.intake.Retreat(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, "retreat", err)
		return
	}
	c.JSON(http.StatusOK, h.walkPayload(session))
}

// Finalize maneja POST /intake/sessions/:id/finalize.
func (h *IntakeHandler) Finalize(c *gin.Context) {
	if _, ok := h.loadOwned(c); !ok {
		return
	}
	profile, err := h.intake.Finalize(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, "finalize", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": profile})
}

func (h *IntakeHandler) walkPayload(session domain.IntakeSession) gin.H {
	payload := gin.H{"session": session}
	if !session.Complete {
		payload["question"] = h.intake.Questions()[session.CurrentIndex]
	}
	return payload
}

// loadOwned carga la sesion y, con auth activa, oculta las sesiones de otros sujetos.
func (h *IntakeHandler) loadOwned(c *gin.Context) (domain.IntakeSession, bool) {
	session, err := h.intake.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, "load session", err)
		return domain.IntakeSession{}, false
	}
	if claims, ok := GetAuthClaims(c); ok && claims.SubjectID != session.SubjectID {
		c.JSON(http.StatusNotFound, gin.H{"error": domain.ErrSessionNotFound.Error()})
		return domain.IntakeSession{}, false
	}
	return session, true
}
