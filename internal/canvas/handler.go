package canvas

import (
	"collaborative-canvas/internal/errors"
	"collaborative-canvas/internal/middleware"
	"collaborative-canvas/internal/utils"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

type CreateRequest struct {
	Name string `json:"name" binding:"omitempty,max=200"`
}

type UpdateRequest struct {
	Name      *string         `json:"name" binding:"omitempty,max=200"`
	Content   json.RawMessage `json:"content"`
	Thumbnail *string         `json:"thumbnail"`
}

func (h *Handler) Create(c *gin.Context) {
	var form CreateRequest
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	caller, _ := middleware.IdentityFrom(c)

	canvas, err := h.service.Create(c.Request.Context(), caller, form.Name)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, canvas)
}

func (h *Handler) List(c *gin.Context) {
	caller, _ := middleware.IdentityFrom(c)

	page, pageSize := utils.GetPaginationParams(c)
	result, err := h.service.List(c.Request.Context(), caller, page, pageSize)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) Show(c *gin.Context) {
	caller, _ := middleware.IdentityFrom(c)

	canvas, err := h.service.Get(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, canvas)
}

func (h *Handler) Update(c *gin.Context) {
	var form UpdateRequest
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	caller, _ := middleware.IdentityFrom(c)

	fields := UpdateFields{
		Name:      form.Name,
		Content:   form.Content,
		Thumbnail: form.Thumbnail,
	}
	if err := h.service.Update(c.Request.Context(), caller, c.Param("id"), fields); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "canvas updated"})
}

func (h *Handler) Delete(c *gin.Context) {
	caller, _ := middleware.IdentityFrom(c)

	if err := h.service.Delete(c.Request.Context(), caller, c.Param("id")); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) Duplicate(c *gin.Context) {
	caller, _ := middleware.IdentityFrom(c)

	canvas, err := h.service.Duplicate(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, canvas)
}
