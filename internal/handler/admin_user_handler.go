package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/tricol-console/internal/model"
	"github.com/stemsi/tricol-console/internal/response"
	"github.com/stemsi/tricol-console/internal/service"
	"github.com/stemsi/tricol-console/internal/validator"
)

type AdminUserHandler struct {
	service *service.AdminUserService
}

func NewAdminUserHandler(service *service.AdminUserService) *AdminUserHandler {
	return &AdminUserHandler{service: service}
}

type adminUserView struct {
	model.AdminUser
	FullName  string `json:"fullName"`
	RoleLabel string `json:"roleLabel"`
	Status    string `json:"status"`
}

func newAdminUserView(u model.AdminUser) adminUserView {
	return adminUserView{
		AdminUser: u,
		FullName:  u.FullName(),
		RoleLabel: model.PrimaryRoleLabel(u.Roles),
		Status:    u.Status(),
	}
}

// permissionRow is one line of the permission editor.
type permissionRow struct {
	Name        model.Permission `json:"name"`
	ID          int              `json:"id"`
	Category    string           `json:"category"`
	RoleDefault bool             `json:"roleDefault"`
	Explicit    bool             `json:"explicit"`
	Granted     bool             `json:"granted"`
}

// ListUsers godoc
// GET /api/admin/users?search=&role=
func (h *AdminUserHandler) ListUsers(c *gin.Context) {
	users, err := h.service.ListUsers(c.Request.Context(), service.UserFilter{
		Search: c.Query("search"),
		Role:   c.DefaultQuery("role", service.RoleFilterAll),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}

	views := make([]adminUserView, 0, len(users))
	for _, u := range users {
		views = append(views, newAdminUserView(u))
	}
	response.Success(c, http.StatusOK, views)
}

// GetUser godoc
// GET /api/admin/users/:id
// Returns the user with the permission editor rows.
func (h *AdminUserHandler) GetUser(c *gin.Context) {
	id, ok := parseUserID(c)
	if !ok {
		return
	}

	user, err := h.service.GetUser(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	catalog := h.service.Catalog()
	rows := make([]permissionRow, 0, len(catalog.Permissions()))
	for _, p := range catalog.Permissions() {
		pid, _ := catalog.ID(p)
		row := permissionRow{
			Name:     p,
			ID:       pid,
			Category: catalog.Category(p),
		}
		for _, d := range user.RoleDefaultPermissions {
			row.RoleDefault = row.RoleDefault || d == p
		}
		for _, e := range user.Permissions {
			row.Explicit = row.Explicit || e == p
		}
		row.Granted = row.RoleDefault || row.Explicit
		rows = append(rows, row)
	}

	response.Success(c, http.StatusOK, gin.H{
		"user":        newAdminUserView(*user),
		"permissions": rows,
	})
}

// Catalog godoc
// GET /api/admin/permissions
func (h *AdminUserHandler) Catalog(c *gin.Context) {
	response.Success(c, http.StatusOK, h.service.Catalog().Categories)
}

// SavePermissionsRequest carries the desired state of each toggled permission.
type SavePermissionsRequest struct {
	Permissions map[model.Permission]bool `json:"permissions" binding:"required,min=1"`
}

// SavePermissions godoc
// PUT /api/admin/users/:id/permissions
// Applies a batch of toggles. Each toggle is reported on its own.
func (h *AdminUserHandler) SavePermissions(c *gin.Context) {
	id, ok := parseUserID(c)
	if !ok {
		return
	}

	var req SavePermissionsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	results, err := h.service.ApplyToggles(c.Request.Context(), id, req.Permissions)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	payload := gin.H{"results": results, "failed": service.CountFailed(results)}
	if service.CountFailed(results) > 0 {
		response.FailWithData(c, http.StatusMultiStatus, response.ErrPartialFailure, payload)
		return
	}
	response.Success(c, http.StatusOK, payload)
}

// GrantPermission godoc
// POST /api/admin/users/:id/permissions/:permission
func (h *AdminUserHandler) GrantPermission(c *gin.Context) {
	h.toggle(c, true)
}

// RevokePermission godoc
// DELETE /api/admin/users/:id/permissions/:permission
func (h *AdminUserHandler) RevokePermission(c *gin.Context) {
	h.toggle(c, false)
}

func (h *AdminUserHandler) toggle(c *gin.Context, on bool) {
	id, ok := parseUserID(c)
	if !ok {
		return
	}
	p := model.Permission(c.Param("permission"))

	var (
		result service.ToggleResult
		err    error
	)
	if on {
		result, err = h.service.GrantExplicit(c.Request.Context(), id, p)
	} else {
		result, err = h.service.RevokeExplicit(c.Request.Context(), id, p)
	}
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// AssignRoleRequest payload
type AssignRoleRequest struct {
	Role model.Role `json:"role" binding:"required,role"`
}

// AssignRole godoc
// POST /api/admin/users/:id/role
// Replaces the user's role. Explicit permissions are kept.
func (h *AdminUserHandler) AssignRole(c *gin.Context) {
	id, ok := parseUserID(c)
	if !ok {
		return
	}

	var req AssignRoleRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	text, err := h.service.AssignRole(c.Request.Context(), id, req.Role)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": text})
}

func parseUserID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return 0, false
	}
	return id, true
}
