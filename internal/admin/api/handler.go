package api

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"ms-blindbox/internal/auth"
	"ms-blindbox/internal/catalog"
	catalogdb "ms-blindbox/internal/catalog/db"
	"ms-blindbox/internal/config"
	"ms-blindbox/internal/fulfillment"
	"ms-blindbox/internal/logger"
	"ms-blindbox/internal/models"
	"ms-blindbox/internal/utils"
)

type Handler struct {
	Catalog *catalog.Service
	Stats   *catalogdb.DB
	Admin   config.AdminConfig
	Logger  *logger.Logger
}

func NewHandler(catalogService *catalog.Service, statsDB *catalogdb.DB, adminCfg config.AdminConfig, log *logger.Logger) *Handler {
	return &Handler{
		Catalog: catalogService,
		Stats:   statsDB,
		Admin:   adminCfg,
		Logger:  log,
	}
}

// Routes mounts the admin surface. Everything except login sits behind
// the bearer-token middleware.
func (h *Handler) Routes(r *gin.RouterGroup) {
	r.POST("/login", h.Login)

	guarded := r.Group("", auth.Middleware(h.Admin.JWTSecret))
	guarded.GET("/universes", h.ListUniverses)
	guarded.POST("/universes", h.CreateUniverse)
	guarded.PUT("/universes/:id", h.UpdateUniverse)
	guarded.DELETE("/universes/:id", h.DeleteUniverse)
	guarded.GET("/universes/:id/boxes", h.ListBoxes)
	guarded.POST("/universes/:id/boxes", h.CreateBox)
	guarded.PUT("/boxes/:id", h.UpdateBox)
	guarded.DELETE("/boxes/:id", h.DeleteBox)
	guarded.GET("/boxes/:id/items", h.ListItems)
	guarded.POST("/boxes/:id/items", h.CreateItem)
	guarded.PUT("/items/:id", h.UpdateItem)
	guarded.DELETE("/items/:id", h.DeleteItem)
	guarded.GET("/orders", h.ListOrders)
	guarded.PUT("/orders/:id/status", h.UpdateOrderStatus)
	guarded.GET("/orders/:id/packing-slip", h.PackingSlip)
	guarded.GET("/stats", h.GetStats)
}

type loginRequest struct {
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", err.Error()))
		return
	}

	if h.Admin.Password == "" ||
		subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.Admin.Password)) != 1 {
		c.JSON(http.StatusUnauthorized, utils.ErrorResponse("Unauthorized", "invalid credentials"))
		return
	}

	token, err := auth.GenerateAdminToken(h.Admin.JWTSecret, h.Admin.TokenTTL)
	if err != nil {
		h.Logger.Error("AUTH", fmt.Sprintf("Failed to mint admin token: %v", err))
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Login failed", "internal error"))
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Logged in", gin.H{"token": token}))
}

// ---------------- UNIVERSES ----------------

type universeRequest struct {
	Slug     string `json:"slug"`
	Name     string `json:"name" binding:"required"`
	Emoji    string `json:"emoji"`
	Color    string `json:"color"`
	Gradient string `json:"gradient"`
}

func (h *Handler) ListUniverses(c *gin.Context) {
	universes, err := h.Catalog.ListUniverses(c.Request.Context())
	if err != nil {
		h.respondError(c, "ListUniverses", err)
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse("Universes", gin.H{"universes": universes}))
}

func (h *Handler) CreateUniverse(c *gin.Context) {
	var req universeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", err.Error()))
		return
	}

	universe, err := h.Catalog.CreateUniverse(c.Request.Context(), req.Slug, req.Name, req.Emoji, req.Color, req.Gradient)
	if err != nil {
		h.respondError(c, "CreateUniverse", err)
		return
	}
	c.JSON(http.StatusCreated, utils.SuccessResponse("Universe created", universe))
}

func (h *Handler) UpdateUniverse(c *gin.Context) {
	var req universeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", err.Error()))
		return
	}

	universe, err := h.Catalog.UpdateUniverse(c.Request.Context(), c.Param("id"), req.Name, req.Emoji, req.Color, req.Gradient)
	if err != nil {
		h.respondError(c, "UpdateUniverse", err)
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse("Universe updated", universe))
}

func (h *Handler) DeleteUniverse(c *gin.Context) {
	if err := h.Catalog.DeleteUniverse(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, "DeleteUniverse", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ---------------- BOXES ----------------

type boxRequest struct {
	Name string `json:"name" binding:"required"`
	Img  string `json:"img"`
}

func (h *Handler) ListBoxes(c *gin.Context) {
	boxes, err := h.Catalog.ListBoxes(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "ListBoxes", err)
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse("Boxes", gin.H{"boxes": boxes}))
}

func (h *Handler) CreateBox(c *gin.Context) {
	var req boxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", err.Error()))
		return
	}

	box, err := h.Catalog.CreateBox(c.Request.Context(), c.Param("id"), req.Name, req.Img)
	if err != nil {
		h.respondError(c, "CreateBox", err)
		return
	}
	c.JSON(http.StatusCreated, utils.SuccessResponse("Box created", box))
}

func (h *Handler) UpdateBox(c *gin.Context) {
	var req boxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", err.Error()))
		return
	}

	box, err := h.Catalog.UpdateBox(c.Request.Context(), c.Param("id"), req.Name, req.Img)
	if err != nil {
		h.respondError(c, "UpdateBox", err)
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse("Box updated", box))
}

func (h *Handler) DeleteBox(c *gin.Context) {
	if err := h.Catalog.DeleteBox(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, "DeleteBox", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ---------------- ITEMS ----------------

type itemRequest struct {
	Name string `json:"name" binding:"required"`
	Img  string `json:"img"`
}

func (h *Handler) ListItems(c *gin.Context) {
	items, err := h.Catalog.ListItems(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "ListItems", err)
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse("Items", gin.H{"items": items}))
}

func (h *Handler) CreateItem(c *gin.Context) {
	var req itemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", err.Error()))
		return
	}

	item, err := h.Catalog.CreateItem(c.Request.Context(), c.Param("id"), req.Name, req.Img)
	if err != nil {
		h.respondError(c, "CreateItem", err)
		return
	}
	c.JSON(http.StatusCreated, utils.SuccessResponse("Item created", item))
}

func (h *Handler) UpdateItem(c *gin.Context) {
	var req itemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", err.Error()))
		return
	}

	item, err := h.Catalog.UpdateItem(c.Request.Context(), c.Param("id"), req.Name, req.Img)
	if err != nil {
		h.respondError(c, "UpdateItem", err)
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse("Item updated", item))
}

func (h *Handler) DeleteItem(c *gin.Context) {
	if err := h.Catalog.DeleteItem(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, "DeleteItem", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ---------------- ORDERS ----------------

func (h *Handler) ListOrders(c *gin.Context) {
	orders, err := h.Catalog.ListOrders(c.Request.Context())
	if err != nil {
		h.respondError(c, "ListOrders", err)
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse("Orders", gin.H{"orders": orders}))
}

type orderStatusRequest struct {
	Status models.OrderStatus `json:"status" binding:"required"`
}

func (h *Handler) UpdateOrderStatus(c *gin.Context) {
	var req orderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", err.Error()))
		return
	}

	order, err := h.Catalog.UpdateOrderStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		h.respondError(c, "UpdateOrderStatus", err)
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse("Order updated", order))
}

func (h *Handler) PackingSlip(c *gin.Context) {
	order, err := h.Catalog.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "PackingSlip", err)
		return
	}

	png, err := fulfillment.PackingSlipQR(order)
	if err != nil {
		h.Logger.Error("FULFILLMENT", fmt.Sprintf("Failed to render packing slip for %s: %v", order.ID, err))
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Failed to render packing slip", "internal error"))
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// ---------------- STATS ----------------

func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.Stats.GetStats(c.Request.Context())
	if err != nil {
		h.respondError(c, "GetStats", err)
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse("Stats", stats))
}

func (h *Handler) respondError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, catalogdb.ErrNotFound):
		c.JSON(http.StatusNotFound, utils.ErrorResponse("Not found", err.Error()))
	case errors.Is(err, catalogdb.ErrSlugTaken),
		errors.Is(err, catalog.ErrStatusNotAdvancable):
		c.JSON(http.StatusConflict, utils.ErrorResponse("Conflict", err.Error()))
	case errors.Is(err, catalog.ErrInvalidSlug),
		errors.Is(err, catalog.ErrInvalidOrderStatus),
		errors.Is(err, catalog.ErrUniverseMissing),
		errors.Is(err, catalog.ErrBoxMissing):
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Validation failed", err.Error()))
	default:
		h.Logger.Error("ADMIN", fmt.Sprintf("%s: %v", op, err))
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Request failed", "internal error"))
	}
}
