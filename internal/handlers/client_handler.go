package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"settlementsam/internal/logger"
	"settlementsam/internal/models"
	"settlementsam/internal/services"
)

type ClientHandler struct {
	Service *services.ClientService
	Billing *services.BillingService
	log     *zap.Logger
}

func NewClientHandler(service *services.ClientService, billing *services.BillingService, log *zap.Logger) *ClientHandler {
	return &ClientHandler{Service: service, Billing: billing, log: logger.OrNop(log)}
}

type clientRequest struct {
	Name          string `json:"name" binding:"required"`
	ContactEmail  string `json:"contact_email" binding:"required"`
	DeliveryEmail string `json:"delivery_email"`
	Phone         string `json:"phone"`
	SheetsID      string `json:"sheets_id"`
	ThrottleMode  string `json:"throttle_mode"`
	Active        *bool  `json:"active"`
}

func (r clientRequest) apply(c *models.Client) {
	c.Name = r.Name
	c.ContactEmail = r.ContactEmail
	c.DeliveryEmail = r.DeliveryEmail
	c.Phone = r.Phone
	c.SheetsID = r.SheetsID
	c.ThrottleMode = r.ThrottleMode
	if r.Active != nil {
		c.Active = *r.Active
	}
}

// Create
// @Summary      Create a client
// @Tags         Clients
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      clientRequest  true  "client"
// @Success      201   {object}  models.Client
// @Failure      400   {object}  map[string]interface{}
// @Router       /admin/clients [post]
func (h *ClientHandler) Create(c *gin.Context) {
	var req clientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	var client models.Client
	req.apply(&client)
	if err := h.Service.Create(c.Request.Context(), &client); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, client)
}

// Update
// @Summary      Update a client's profile
// @Tags         Clients
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string         true  "client id"
// @Param        body  body      clientRequest  true  "client"
// @Success      200   {object}  models.Client
// @Failure      404   {object}  map[string]interface{}
// @Router       /admin/clients/{id} [put]
func (h *ClientHandler) Update(c *gin.Context) {
	var req clientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	ctx := c.Request.Context()
	client, err := h.Service.Get(ctx, c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	req.apply(client)
	if err := h.Service.Update(ctx, client); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, client)
}

// GetByID
// @Summary      Get a client
// @Tags         Clients
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "client id"
// @Success      200  {object}  models.Client
// @Failure      404  {object}  map[string]interface{}
// @Router       /admin/clients/{id} [get]
func (h *ClientHandler) GetByID(c *gin.Context) {
	client, err := h.Service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, client)
}

// List
// @Summary      List clients
// @Tags         Clients
// @Produce      json
// @Security     BearerAuth
// @Param        limit   query  int  false  "page size"
// @Param        offset  query  int  false  "offset"
// @Success      200  {array}  models.Client
// @Router       /admin/clients [get]
func (h *ClientHandler) List(c *gin.Context) {
	limit, offset := pageParams(c)
	clients, err := h.Service.List(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, clients)
}

type packageRequest struct {
	Quantity    int    `json:"quantity" binding:"required,gt=0"`
	AmountCents int64  `json:"amount_cents" binding:"gte=0"`
	Mode        string `json:"mode"`
	StartDate   string `json:"start_date"`
}

// AddPackage
// @Summary      Record a manual lead package purchase
// @Description  Credits the client and generates a delivery schedule. Stripe purchases arrive through the webhook instead.
// @Tags         Clients
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string          true  "client id"
// @Param        body  body      packageRequest  true  "package"
// @Success      201   {object}  services.PurchaseResult
// @Failure      400   {object}  map[string]interface{}
// @Failure      404   {object}  map[string]interface{}
// @Router       /admin/clients/{id}/packages [post]
func (h *ClientHandler) AddPackage(c *gin.Context) {
	var req packageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	res, err := h.Billing.ApplyPurchase(c.Request.Context(), services.Purchase{
		ClientID:    c.Param("id"),
		Quantity:    req.Quantity,
		AmountCents: req.AmountCents,
		Mode:        req.Mode,
		StartDate:   req.StartDate,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// Schedule
// @Summary      Current delivery schedule and today's throttle state
// @Tags         Clients
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "client id"
// @Success      200  {object}  services.ScheduleStatus
// @Failure      404  {object}  map[string]interface{}
// @Router       /admin/clients/{id}/schedule [get]
func (h *ClientHandler) Schedule(c *gin.Context) {
	st, err := h.Billing.ScheduleStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
