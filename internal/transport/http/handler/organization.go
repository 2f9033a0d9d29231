package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"orgrag/internal/app"
	"orgrag/internal/transport/http/middleware"
	"orgrag/internal/transport/http/response"
)

type OrganizationHandler struct {
	orgService *app.OrganizationService
}

type UpdateOrganizationRequest struct {
	Name string `json:"name" binding:"required,max=128"`
}

func NewOrganizationHandler(orgService *app.OrganizationService) *OrganizationHandler {
	return &OrganizationHandler{orgService: orgService}
}

// Get returns the caller's own organization.
func (h *OrganizationHandler) Get(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	org, err := h.orgService.Get(identity.OrganizationID)
	if err != nil {
		writeAuthError(c, err, "get organization failed")
		return
	}
	response.OK(c, org)
}

func (h *OrganizationHandler) Update(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	var req UpdateOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	org, err := h.orgService.Rename(identity.OrganizationID, req.Name)
	if err != nil {
		writeAuthError(c, err, "update organization failed")
		return
	}
	response.OK(c, org)
}
