package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"settlementsam/internal/logger"
	"settlementsam/internal/middleware"
	"settlementsam/internal/models"
	"settlementsam/internal/scoring"
	"settlementsam/internal/services"
)

type LeadHandler struct {
	Service     *services.LeadService
	Distributor *services.Distributor
	log         *zap.Logger
}

func NewLeadHandler(service *services.LeadService, distributor *services.Distributor, log *zap.Logger) *LeadHandler {
	return &LeadHandler{Service: service, Distributor: distributor, log: logger.OrNop(log)}
}

// Create
// @Summary      Submit a verified lead
// @Description  Requires the session token returned by /api/otp/verify. A repeat submission from the same phone within the dedupe window returns the existing lead.
// @Tags         Leads
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      services.LeadSubmission  true  "contact details and quiz answers"
// @Success      201   {object}  models.Lead
// @Success      200   {object}  models.Lead
// @Failure      400   {object}  map[string]interface{}
// @Failure      401   {object}  map[string]interface{}
// @Router       /api/leads [post]
func (h *LeadHandler) Create(c *gin.Context) {
	var sub services.LeadSubmission
	if err := c.ShouldBindJSON(&sub); err != nil {
		bindError(c, err)
		return
	}
	lead, created, err := h.Service.CreateVerifiedLead(c.Request.Context(), middleware.VerifiedPhone(c), sub)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, lead)
}

// List
// @Summary      List leads
// @Tags         Leads
// @Produce      json
// @Security     BearerAuth
// @Param        tier       query  string  false  "HOT, WARM or COLD (effective tier)"
// @Param        verified   query  bool    false  "verified filter"
// @Param        delivered  query  bool    false  "delivered filter"
// @Param        disputed   query  bool    false  "disputed filter"
// @Param        client_id  query  string  false  "delivered to client"
// @Param        limit      query  int     false  "page size (max 200)"
// @Param        offset     query  int     false  "offset"
// @Success      200  {array}   models.Lead
// @Router       /admin/leads [get]
func (h *LeadHandler) List(c *gin.Context) {
	limit, offset := pageParams(c)
	f := models.LeadFilter{
		Tier:      scoring.Tier(strings.ToUpper(strings.TrimSpace(c.Query("tier")))),
		Verified:  boolQuery(c, "verified"),
		Delivered: boolQuery(c, "delivered"),
		Disputed:  boolQuery(c, "disputed"),
		ClientID:  c.Query("client_id"),
		Limit:     limit,
		Offset:    offset,
	}
	leads, err := h.Service.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, leads)
}

// GetByID
// @Summary      Get a lead with its delivery history
// @Tags         Leads
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "lead id"
// @Success      200  {object}  services.LeadDetail
// @Failure      404  {object}  map[string]interface{}
// @Router       /admin/leads/{id} [get]
func (h *LeadHandler) GetByID(c *gin.Context) {
	detail, err := h.Service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

type tierRequest struct {
	Tier string `json:"tier"`
}

// OverrideTier
// @Summary      Override a lead's tier
// @Description  An empty tier clears the override.
// @Tags         Leads
// @Accept       json
// @Security     BearerAuth
// @Param        id    path  string       true  "lead id"
// @Param        body  body  tierRequest  true  "tier"
// @Success      204
// @Router       /admin/leads/{id}/tier [put]
func (h *LeadHandler) OverrideTier(c *gin.Context) {
	var req tierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	if err := h.Service.OverrideTier(c.Request.Context(), c.Param("id"), req.Tier); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type disputeRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// Dispute
// @Summary      Mark a lead disputed
// @Tags         Leads
// @Accept       json
// @Security     BearerAuth
// @Param        id    path  string          true  "lead id"
// @Param        body  body  disputeRequest  true  "reason"
// @Success      204
// @Router       /admin/leads/{id}/dispute [post]
func (h *LeadHandler) Dispute(c *gin.Context) {
	var req disputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	if err := h.Service.Dispute(c.Request.Context(), c.Param("id"), req.Reason); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Replace
// @Summary      Mark a delivered lead replaced
// @Description  Credits the client one replacement lead.
// @Tags         Leads
// @Security     BearerAuth
// @Param        id  path  string  true  "lead id"
// @Success      204
// @Router       /admin/leads/{id}/replace [post]
func (h *LeadHandler) Replace(c *gin.Context) {
	if err := h.Service.Replace(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type deliverRequest struct {
	ClientID string `json:"client_id"`
	Method   string `json:"method"`
}

// Deliver
// @Summary      Deliver a lead to a client
// @Description  Method is email, sheets or both. Returns 409 throttle_exceeded when the client's daily target is reached.
// @Tags         Leads
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string          true  "lead id"
// @Param        body  body      deliverRequest  false "client and method"
// @Success      200   {object}  services.DeliveryResult
// @Failure      409   {object}  map[string]interface{}
// @Failure      500   {object}  map[string]interface{}
// @Router       /admin/leads/{id}/deliver [post]
func (h *LeadHandler) Deliver(c *gin.Context) {
	// an empty body picks the default client and method
	var req deliverRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		bindError(c, err)
		return
	}
	res, err := h.Distributor.Deliver(c.Request.Context(), services.DeliverRequest{
		LeadID:   c.Param("id"),
		ClientID: req.ClientID,
		Method:   models.DeliveryMethod(strings.ToLower(strings.TrimSpace(req.Method))),
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	h.log.Info("[lead][deliver]", zap.String("lead", c.Param("id")), zap.String("by", middleware.Username(c)))
	c.JSON(http.StatusOK, res)
}
