package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"settlementsam/internal/logger"
	"settlementsam/internal/services"
	"settlementsam/internal/utils"
)

type OTPHandler struct {
	OTP   *services.OTPService
	Leads *services.LeadService
	log   *zap.Logger
}

func NewOTPHandler(otp *services.OTPService, leads *services.LeadService, log *zap.Logger) *OTPHandler {
	return &OTPHandler{OTP: otp, Leads: leads, log: logger.OrNop(log)}
}

type sendCodeRequest struct {
	Phone   string `json:"phone" binding:"required"`
	Carrier string `json:"carrier"`
}

type sendCodeResponse struct {
	Phone     string    `json:"phone"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Send
// @Summary      Send a verification code
// @Description  Texts a one-time code through the carrier's email-to-SMS gateway. At most 3 sends per phone per hour.
// @Tags         OTP
// @Accept       json
// @Produce      json
// @Param        body  body      sendCodeRequest  true  "phone and carrier"
// @Success      202   {object}  sendCodeResponse
// @Failure      400   {object}  map[string]interface{}
// @Failure      429   {object}  map[string]interface{}
// @Failure      502   {object}  map[string]interface{}
// @Router       /api/otp/send [post]
func (h *OTPHandler) Send(c *gin.Context) {
	var req sendCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	issued, err := h.OTP.Issue(c.Request.Context(), req.Phone, req.Carrier)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusAccepted, sendCodeResponse{Phone: utils.MaskPhone(issued.Phone), ExpiresAt: issued.ExpiresAt})
}

type verifyCodeRequest struct {
	Phone string                   `json:"phone" binding:"required"`
	Code  string                   `json:"code" binding:"required"`
	Lead  *services.LeadSubmission `json:"lead"`
}

type verifyCodeResponse struct {
	SessionToken string    `json:"session_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	LeadID       string    `json:"lead_id,omitempty"`
	Created      bool      `json:"created,omitempty"`
}

// Verify
// @Summary      Verify a code
// @Description  Checks the code and returns a session token. When the quiz answers are included the lead is created in the same call.
// @Tags         OTP
// @Accept       json
// @Produce      json
// @Param        body  body      verifyCodeRequest  true  "phone, code and optional lead"
// @Success      200   {object}  verifyCodeResponse
// @Failure      400   {object}  map[string]interface{}
// @Failure      410   {object}  map[string]interface{}
// @Failure      429   {object}  map[string]interface{}
// @Router       /api/otp/verify [post]
func (h *OTPHandler) Verify(c *gin.Context) {
	var req verifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	ctx := c.Request.Context()
	v, err := h.OTP.Verify(ctx, req.Phone, req.Code)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	resp := verifyCodeResponse{SessionToken: v.SessionToken, ExpiresAt: v.ExpiresAt}
	if req.Lead != nil {
		lead, created, err := h.Leads.CreateVerifiedLead(ctx, v.Phone, *req.Lead)
		if err != nil {
			// the code is spent; the session token still lets the widget retry POST /api/leads
			h.log.Warn("[otp][verify] lead not created", zap.Error(err))
			c.JSON(http.StatusOK, gin.H{
				"session_token": v.SessionToken,
				"expires_at":    v.ExpiresAt,
				"lead_error":    err.Error(),
			})
			return
		}
		resp.LeadID = lead.ID
		resp.Created = created
	}
	c.JSON(http.StatusOK, resp)
}
