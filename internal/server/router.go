package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fenwicklabs/gala/internal/crossword"
	"github.com/fenwicklabs/gala/internal/party"
	"github.com/fenwicklabs/gala/internal/scoring"
	"github.com/fenwicklabs/gala/internal/voting"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const guestIDContextKey = "gala_guest_id"

var (
	errMissingPartyService   = errors.New("party service dependency required")
	errMissingLedger         = errors.New("ledger dependency required")
	errMissingAggregator     = errors.New("aggregator dependency required")
	errMissingVotingService  = errors.New("voting service dependency required")
	errMissingTracker        = errors.New("crossword tracker dependency required")
	errMissingTokenValidator = errors.New("token validator dependency required")
	errInvalidAuthorization  = errors.New("authorization header missing or invalid")
)

// TokenValidator checks guest session tokens issued at registration.
type TokenValidator interface {
	Validate(token string) (uint, error)
}

// Dependencies wires the core services into the HTTP layer.
type Dependencies struct {
	Party     *party.Service
	Ledger    *scoring.Ledger
	Scores    *scoring.Aggregator
	Voting    *voting.Service
	Crossword *crossword.Tracker
	Tokens    TokenValidator
	Logger    *zap.Logger
}

// NewHTTPHandler builds the gin router exposing the core operations.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Party == nil {
		return nil, errMissingPartyService
	}
	if deps.Ledger == nil {
		return nil, errMissingLedger
	}
	if deps.Scores == nil {
		return nil, errMissingAggregator
	}
	if deps.Voting == nil {
		return nil, errMissingVotingService
	}
	if deps.Crossword == nil {
		return nil, errMissingTracker
	}
	if deps.Tokens == nil {
		return nil, errMissingTokenValidator
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		party:     deps.Party,
		ledger:    deps.Ledger,
		scores:    deps.Scores,
		voting:    deps.Voting,
		crossword: deps.Crossword,
		tokens:    deps.Tokens,
		logger:    logger,
	}

	router.POST("/guests/register", handler.handleRegister)
	router.GET("/guests/:id/score", handler.handleGuestScore)
	router.GET("/houses", handler.handleHouses)
	router.POST("/awards", handler.handleAward)
	router.GET("/awards/log", handler.handleAwardLog)
	router.POST("/voting/open", handler.handleOpenVoting)
	router.POST("/voting/close", handler.handleCloseVoting)
	router.GET("/voting/result", handler.handleVotingResult)
	router.GET("/crossword/progress", handler.handleCrosswordProgress)
	router.POST("/crossword/completions", handler.handleRecordCompletion)

	protected := router.Group("/")
	protected.Use(handler.authorizeGuest)
	protected.POST("/votes", handler.handleCastVote)
	protected.GET("/votes/mine", handler.handleMyVote)
	protected.POST("/crossword/state", handler.handleSyncCrosswordState)

	return router, nil
}

type httpHandler struct {
	party     *party.Service
	ledger    *scoring.Ledger
	scores    *scoring.Aggregator
	voting    *voting.Service
	crossword *crossword.Tracker
	tokens    TokenValidator
	logger    *zap.Logger
}

type registerRequestPayload struct {
	GuestID   uint   `json:"guest_id"`
	HouseID   uint   `json:"house_id"`
	Character string `json:"character"`
}

type registerResponsePayload struct {
	GuestID   uint   `json:"guest_id"`
	Name      string `json:"name"`
	HouseID   uint   `json:"house_id"`
	Character string `json:"character,omitempty"`
	Token     string `json:"token"`
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request registerRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.GuestID == 0 || request.HouseID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	guest, token, err := h.party.Register(c.Request.Context(), request.GuestID, request.HouseID, request.Character)
	if err != nil {
		h.respondError(c, err, "registration failed")
		return
	}

	response := registerResponsePayload{
		GuestID: guest.ID,
		Name:    guest.Name,
		Token:   token,
	}
	if guest.HouseID != nil {
		response.HouseID = *guest.HouseID
	}
	if guest.Character != nil {
		response.Character = *guest.Character
	}
	c.JSON(http.StatusCreated, response)
}

func (h *httpHandler) handleGuestScore(c *gin.Context) {
	guestID, ok := parseIDParam(c)
	if !ok {
		return
	}

	score, err := h.scores.GuestScore(c.Request.Context(), guestID)
	if err != nil {
		h.respondError(c, err, "guest score lookup failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"guest_id": guestID, "score": score})
}

type housePayload struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Score int    `json:"score"`
}

func (h *httpHandler) handleHouses(c *gin.Context) {
	houses, err := h.party.Houses(c.Request.Context())
	if err != nil {
		h.respondError(c, err, "house listing failed")
		return
	}

	payload := make([]housePayload, 0, len(houses))
	for _, house := range houses {
		score, err := h.scores.HouseScore(c.Request.Context(), house.ID)
		if err != nil {
			h.respondError(c, err, "house score derivation failed")
			return
		}
		payload = append(payload, housePayload{ID: house.ID, Name: house.Name, Score: score})
	}
	c.JSON(http.StatusOK, gin.H{"houses": payload})
}

type awardRequestPayload struct {
	GuestID *uint  `json:"guest_id"`
	HouseID *uint  `json:"house_id"`
	Amount  int    `json:"amount"`
	Reason  string `json:"reason"`
}

func (h *httpHandler) handleAward(c *gin.Context) {
	var request awardRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	var subject scoring.AwardSubject
	switch {
	case request.GuestID != nil && request.HouseID == nil:
		subject = scoring.GuestSubject(*request.GuestID)
	case request.HouseID != nil && request.GuestID == nil:
		subject = scoring.HouseSubject(*request.HouseID)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_subject"})
		return
	}

	award, err := h.ledger.Award(c.Request.Context(), subject, request.Amount, request.Reason)
	if err != nil {
		h.respondError(c, err, "award failed")
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"award_id":   award.ID,
		"amount":     award.Amount,
		"reason":     award.Reason,
		"awarded_at": award.AwardedAt,
	})
}

func (h *httpHandler) handleAwardLog(c *gin.Context) {
	entries, err := h.ledger.Log(c.Request.Context())
	if err != nil {
		h.respondError(c, err, "award log failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"awards": entries})
}

func (h *httpHandler) handleOpenVoting(c *gin.Context) {
	if err := h.voting.OpenSession(c.Request.Context()); err != nil {
		h.respondError(c, err, "open voting failed")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleCloseVoting(c *gin.Context) {
	if err := h.voting.CloseSession(c.Request.Context()); err != nil {
		h.respondError(c, err, "close voting failed")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleVotingResult(c *gin.Context) {
	result, err := h.voting.Tally(c.Request.Context())
	if err != nil {
		h.respondError(c, err, "tally failed")
		return
	}
	c.JSON(http.StatusOK, result)
}

type castRequestPayload struct {
	First  uint `json:"first"`
	Second uint `json:"second"`
	Third  uint `json:"third"`
}

func (h *httpHandler) handleCastVote(c *gin.Context) {
	voterID := c.GetUint(guestIDContextKey)
	if voterID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var request castRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	ballot, err := h.voting.Cast(c.Request.Context(), voterID, request.First, request.Second, request.Third)
	if err != nil {
		h.respondError(c, err, "cast failed")
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"ballot_id":    ballot.ID,
		"submitted_at": ballot.SubmittedAt,
	})
}

func (h *httpHandler) handleMyVote(c *gin.Context) {
	voterID := c.GetUint(guestIDContextKey)
	ballot, ok, err := h.voting.BallotOf(c.Request.Context(), voterID)
	if err != nil {
		h.respondError(c, err, "ballot lookup failed")
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no_ballot"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"first":        ballot.FirstChoiceID,
		"second":       ballot.SecondChoiceID,
		"third":        ballot.ThirdChoiceID,
		"submitted_at": ballot.SubmittedAt,
	})
}

func (h *httpHandler) handleCrosswordProgress(c *gin.Context) {
	progress, err := h.crossword.Progress(c.Request.Context())
	if err != nil {
		h.respondError(c, err, "crossword progress failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"progress": progress})
}

type completionRequestPayload struct {
	HouseID   uint `json:"house_id"`
	WordIndex *int `json:"word_index"`
}

func (h *httpHandler) handleRecordCompletion(c *gin.Context) {
	var request completionRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.HouseID == 0 || request.WordIndex == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	completion, err := h.crossword.RecordCompletion(c.Request.Context(), request.HouseID, *request.WordIndex)
	if err != nil {
		h.respondError(c, err, "record completion failed")
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"house_id":     completion.HouseID,
		"word_index":   completion.WordIndex,
		"completed_at": completion.CompletedAt,
	})
}

func (h *httpHandler) handleSyncCrosswordState(c *gin.Context) {
	guestID := c.GetUint(guestIDContextKey)
	raw, err := c.GetRawData()
	if err != nil || len(raw) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	if err := h.crossword.SyncGuestState(c.Request.Context(), guestID, string(raw)); err != nil {
		h.respondError(c, err, "crossword sync failed")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) authorizeGuest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	guestID, err := h.tokens.Validate(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(guestIDContextKey, guestID)
	c.Next()
}

// respondError maps domain errors onto HTTP statuses; anything unmapped is a
// logged 500.
func (h *httpHandler) respondError(c *gin.Context, err error, logMessage string) {
	type mapping struct {
		target error
		status int
		code   string
	}
	mappings := []mapping{
		{party.ErrGuestNotFound, http.StatusNotFound, "guest_not_found"},
		{party.ErrHouseNotFound, http.StatusNotFound, "house_not_found"},
		{party.ErrGuestAlreadyActive, http.StatusConflict, "guest_already_active"},
		{scoring.ErrInvalidSubject, http.StatusBadRequest, "invalid_subject"},
		{scoring.ErrInvalidReason, http.StatusBadRequest, "invalid_reason"},
		{scoring.ErrZeroAmount, http.StatusBadRequest, "zero_amount"},
		{voting.ErrAlreadyOpen, http.StatusConflict, "voting_already_open"},
		{voting.ErrAlreadyClosed, http.StatusConflict, "voting_already_closed"},
		{voting.ErrSessionClosed, http.StatusConflict, "voting_closed"},
		{voting.ErrNeverOpened, http.StatusConflict, "voting_never_opened"},
		{voting.ErrDuplicateBallot, http.StatusConflict, "duplicate_ballot"},
		{voting.ErrSelfVote, http.StatusBadRequest, "self_vote"},
		{voting.ErrDuplicateChoice, http.StatusBadRequest, "duplicate_choice"},
		{voting.ErrUnknownGuest, http.StatusBadRequest, "unknown_guest"},
		{crossword.ErrInvalidWordIndex, http.StatusBadRequest, "invalid_word_index"},
		{crossword.ErrAlreadyCompleted, http.StatusConflict, "already_completed"},
		{crossword.ErrUnknownHouse, http.StatusNotFound, "house_not_found"},
		{crossword.ErrUnknownGuest, http.StatusNotFound, "guest_not_found"},
		{crossword.ErrMalformedState, http.StatusBadRequest, "malformed_state"},
	}
	for _, m := range mappings {
		if errors.Is(err, m.target) {
			c.JSON(m.status, gin.H{"error": m.code})
			return
		}
	}

	h.logger.Error(logMessage, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
}

func parseIDParam(c *gin.Context) (uint, bool) {
	raw := c.Param("id")
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || value == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_id"})
		return 0, false
	}
	return uint(value), true
}
