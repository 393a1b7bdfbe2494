package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"voice-match/internal/domain"
	"voice-match/internal/service"
)

type MatchHandler struct {
	logger  *zap.Logger
	intake  *service.IntakeService
	matches *service.MatchService
}

func NewMatchHandler(logger *zap.Logger, intake *service.IntakeService, matches *service.MatchService) *MatchHandler {
	return &MatchHandler{logger: logger, intake: intake, matches: matches}
}

type candidateRequest struct {
	ID               string   `json:"id"`
	FirstName        string   `json:"first_name"`
	Age              int      `json:"age"`
	Locality         string   `json:"locality"`
	LifestyleTags    []string `json:"lifestyle_tags"`
	EmotionalTraits  []string `json:"emotional_traits"`
	AvailabilityDate string   `json:"availability_date"`
	SafetyVerified   bool     `json:"safety_verified"`
}

type rankRequest struct {
	Profile       *domain.SubjectProfile `json:"profile"`
	SessionID     string                 `json:"session_id"`
	Candidates    *[]candidateRequest    `json:"candidates"`
	ReferenceDate string                 `json:"reference_date"`
	MinScore      *int                   `json:"min_score"`
}

// Rank maneja POST /matches. El perfil llega inline o se deriva de una sesion finalizada.
func (h *MatchHandler) Rank(c *gin.Context) {
	var req rankRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid rank request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	var profile domain.SubjectProfile
	switch {
	case req.Profile != nil:
		profile = *req.Profile
	case strings.TrimSpace(req.SessionID) != "":
		p, err := h.intake.Profile(c.Request.Context(), strings.TrimSpace(req.SessionID))
		if err != nil {
			writeError(c, h.logger, "load profile", err)
			return
		}
		profile = p
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "profile or session_id is required"})
		return
	}
	if claims, ok := GetAuthClaims(c); ok {
		if profile.SubjectID != "" && profile.SubjectID != claims.SubjectID {
			c.JSON(http.StatusNotFound, gin.H{"error": domain.ErrProfileNotFound.Error()})
			return
		}
		profile.SubjectID = claims.SubjectID
	}

	rank := service.RankRequest{Profile: profile, MinScore: req.MinScore}
	if req.Candidates != nil {
		candidates, err := toCandidates(*req.Candidates)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		rank.Candidates = candidates
	}
	if req.ReferenceDate != "" {
		ref, err := domain.ParseDate(req.ReferenceDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		rank.ReferenceDate = ref
	}

	set, err := h.matches.Rank(c.Request.Context(), rank)
	if err != nil {
		writeError(c, h.logger, "rank", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"matches": set})
}

// ListMatches maneja GET /matches?subject_id=.
func (h *MatchHandler) ListMatches(c *gin.Context) {
	subjectID := strings.TrimSpace(c.Query("subject_id"))
	if claims, ok := GetAuthClaims(c); ok {
		subjectID = claims.SubjectID
	}
	if subjectID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "subject_id is required"})
		return
	}

	set, err := h.matches.ListMatches(c.Request.Context(), subjectID)
	if err != nil {
		writeError(c, h.logger, "list matches", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"matches": set})
}

func toCandidates(in []candidateRequest) ([]domain.CandidateProfile, error) {
	out := make([]domain.CandidateProfile, 0, len(in))
	for _, r := range in {
		var available time.Time
		if r.AvailabilityDate != "" {
			t, err := domain.ParseDate(r.AvailabilityDate)
			if err != nil {
				return nil, err
			}
			available = t
		}
		out = append(out, domain.CandidateProfile{
			ID:              r.ID,
			FirstName:       r.FirstName,
			Age:             r.Age,
			Locality:        r.Locality,
			LifestyleTags:   r.LifestyleTags,
			EmotionalTraits: r.EmotionalTraits,
			AvailableFrom:   available,
			SafetyVerified:  r.SafetyVerified,
		})
	}
	return out, nil
}
