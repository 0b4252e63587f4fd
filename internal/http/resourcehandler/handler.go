package resourcehandler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"docshub/internal/services/collab"
	"docshub/internal/services/permission"
	"docshub/internal/services/resource"
	"docshub/internal/services/version"
	"docshub/internal/ws"
)

type Handler struct {
	resSvc    resource.IResourceService
	permSvc   permission.IPermissionService
	collabSvc collab.ICollabService
	verSvc    version.IVersionService
	hub       *ws.Hub
}

func New(resSvc resource.IResourceService, permSvc permission.IPermissionService,
	collabSvc collab.ICollabService, verSvc version.IVersionService, hub *ws.Hub) *Handler {
	return &Handler{resSvc: resSvc, permSvc: permSvc, collabSvc: collabSvc, verSvc: verSvc, hub: hub}
}

func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/resources/:kind", h.list)
	r.POST("/resources/:kind/:id", h.create)
	r.GET("/resources/:kind/:id", h.get)
	r.POST("/resources/:kind/:id/update", h.update)
	r.POST("/resources/:kind/:id/delete", h.delete)

	r.GET("/resources/:kind/:id/permissions", h.listPermissions)
	r.POST("/resources/:kind/:id/permissions", h.grant)
	r.POST("/resources/:kind/:id/permissions/remove", h.revoke)

	r.GET("/resources/:kind/:id/versions", h.listVersions)
	r.POST("/resources/:kind/:id/versions", h.snapshot)
	r.GET("/resources/:kind/:id/versions/:num", h.getVersion)
	r.POST("/resources/:kind/:id/versions/:num/restore", h.restore)
}

func (h *Handler) ref(c *gin.Context) (resource.Ref, bool) {
	kind, err := resource.ParseKind(c.Param("kind"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return resource.Ref{}, false
	}
	return resource.Ref{Kind: kind, ID: c.Param("id")}, true
}

// authorized loads the resource and checks min role for the user; writes
// the response itself when access fails.
func (h *Handler) authorized(c *gin.Context, ref resource.Ref, userID string,
	min permission.Role) (*resource.ResourceDTO, bool) {

	res, err := h.resSvc.Get(c.Request.Context(), ref)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, resource.ErrNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: err.Error()})
		return nil, false
	}
	ok, err := h.permSvc.Authorize(c.Request.Context(), res, userID, min)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return nil, false
	}
	if !ok {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "permission denied"})
		return nil, false
	}
	return res, true
}

// @Summary		List resources
// @Description	Lists resources of one kind owned by the requesting user.
// @Tags			Resources
// @Param			kind	path	string	true	"Resource kind"	Enums(document,spreadsheet)
// @Param			user_id	query	string	true	"Requesting user"
// @Param			limit	query	int		false	"Max results (0-100)"	default(10)
// @Param			offset	query	int		false	"Offset for pagination"	default(0)
// @Success		200	{array}		resource.ResourceDTO
// @Failure		400	{object}	ErrorResponse
// @Router			/resources/{kind} [get]
func (h *Handler) list(c *gin.Context) {
	kind, err := resource.ParseKind(c.Param("kind"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	var q ListResourcesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	out, err := h.resSvc.List(c.Request.Context(), kind, q.UserID, q.Limit, q.Offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, out)
}

// @Summary		Create a resource
// @Tags			Resources
// @Param			kind	path	string				true	"Resource kind"	Enums(document,spreadsheet)
// @Param			id		path	string				true	"Resource ID"
// @Param			body	body	CreateResourceBody	true	"Create payload"
// @Success		201	{object}	resource.ResourceDTO
// @Failure		409	{object}	ErrorResponse
// @Router			/resources/{kind}/{id} [post]
func (h *Handler) create(c *gin.Context) {
	ref, ok := h.ref(c)
	if !ok {
		return
	}
	var body CreateResourceBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	content := body.Content
	if content == "" && ref.Kind == resource.KindSpreadsheet {
		content = `{"sheets":[{"name":"Sheet1","data":[[]]}]}`
	}
	dto, err := h.resSvc.Create(c.Request.Context(), ref, body.UserID, body.Title, content)
	if err != nil {
		if errors.Is(err, resource.ErrAlreadyExists) {
			c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusCreated, dto)
}

// @Summary		Get a resource
// @Tags			Resources
// @Param			kind	path	string	true	"Resource kind"	Enums(document,spreadsheet)
// @Param			id		path	string	true	"Resource ID"
// @Param			user_id	query	string	true	"Requesting user"
// @Success		200	{object}	resource.ResourceDTO
// @Failure		403	{object}	ErrorResponse
// @Failure		404	{object}	ErrorResponse
// @Router			/resources/{kind}/{id} [get]
func (h *Handler) get(c *gin.Context) {
	ref, ok := h.ref(c)
	if !ok {
		return
	}
	res, ok := h.authorized(c, ref, c.Query("user_id"), permission.RoleViewer)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary		Update a resource
// @Description	Direct durable write; requires editor role.
// @Tags			Resources
// @Param			kind	path	string				true	"Resource kind"	Enums(document,spreadsheet)
// @Param			id		path	string				true	"Resource ID"
// @Param			body	body	UpdateResourceBody	true	"Fields to update"
// @Success		200
// @Failure		403	{object}	ErrorResponse
// @Router			/resources/{kind}/{id}/update [post]
func (h *Handler) update(c *gin.Context) {
	ref, ok := h.ref(c)
	if !ok {
		return
	}
	var body UpdateResourceBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if _, ok := h.authorized(c, ref, body.UserID, permission.RoleEditor); !ok {
		return
	}
	err := h.resSvc.Update(c.Request.Context(), ref, resource.Fields{
		Title:        body.Title,
		Content:      body.Content,
		LastEditedBy: &body.UserID,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

// @Summary		Delete a resource
// @Description	Owner only. Staged live edits are purged and the active room, if any, is closed.
// @Tags			Resources
// @Param			kind	path	string		true	"Resource kind"	Enums(document,spreadsheet)
// @Param			id		path	string		true	"Resource ID"
// @Param			body	body	UserBody	true	"Requesting user"
// @Success		200
// @Failure		403	{object}	ErrorResponse
// @Router			/resources/{kind}/{id}/delete [post]
func (h *Handler) delete(c *gin.Context) {
	ref, ok := h.ref(c)
	if !ok {
		return
	}
	var body UserBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if _, ok := h.authorized(c, ref, body.UserID, permission.RoleOwner); !ok {
		return
	}
	if err := h.resSvc.Delete(c.Request.Context(), ref); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	h.hub.CloseRoom(ref.Key())
	c.Status(http.StatusOK)
}

// @Summary		List permissions
// @Tags			Sharing
// @Param			kind	path	string	true	"Resource kind"	Enums(document,spreadsheet)
// @Param			id		path	string	true	"Resource ID"
// @Param			user_id	query	string	true	"Requesting user (owner)"
// @Success		200	{array}		permission.PermissionDTO
// @Failure		403	{object}	ErrorResponse
// @Router			/resources/{kind}/{id}/permissions [get]
func (h *Handler) listPermissions(c *gin.Context) {
	ref, ok := h.ref(c)
	if !ok {
		return
	}
	if _, ok := h.authorized(c, ref, c.Query("user_id"), permission.RoleOwner); !ok {
		return
	}
	out, err := h.permSvc.List(c.Request.Context(), ref)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, out)
}

// @Summary		Grant or update a permission
// @Description	Owner only. Conflicting concurrent grants are retried; 503 when retries are exhausted.
// @Tags			Sharing
// @Param			kind	path	string				true	"Resource kind"	Enums(document,spreadsheet)
// @Param			id		path	string				true	"Resource ID"
// @Param			body	body	GrantPermissionBody	true	"Grant payload"
// @Success		200
// @Failure		403	{object}	ErrorResponse
// @Failure		503	{object}	ErrorResponse
// @Router			/resources/{kind}/{id}/permissions [post]
func (h *Handler) grant(c *gin.Context) {
	ref, ok := h.ref(c)
	if !ok {
		return
	}
	var body GrantPermissionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	res, err := h.resSvc.Get(c.Request.Context(), ref)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}
	role, err := permission.ParseRole(body.Role)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	err = h.permSvc.Grant(c.Request.Context(), res, body.UserID, body.GranteeID, role)
	switch {
	case err == nil:
		c.Status(http.StatusOK)
	case errors.Is(err, permission.ErrServiceBusy):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
	case errors.Is(err, permission.ErrNotPermitted):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: err.Error()})
	case errors.Is(err, permission.ErrSelfShare):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
}

// @Summary		Revoke a permission
// @Tags			Sharing
// @Param			kind	path	string					true	"Resource kind"	Enums(document,spreadsheet)
// @Param			id		path	string					true	"Resource ID"
// @Param			body	body	RevokePermissionBody	true	"Revoke payload"
// @Success		200
// @Failure		403	{object}	ErrorResponse
// @Router			/resources/{kind}/{id}/permissions/remove [post]
func (h *Handler) revoke(c *gin.Context) {
	ref, ok := h.ref(c)
	if !ok {
		return
	}
	var body RevokePermissionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	res, err := h.resSvc.Get(c.Request.Context(), ref)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}
	err = h.permSvc.Revoke(c.Request.Context(), res, body.UserID, body.GranteeID)
	if errors.Is(err, permission.ErrNotPermitted) {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

// @Summary		List versions
// @Tags			Versions
// @Param			kind	path	string	true	"Resource kind"	Enums(document,spreadsheet)
// @Param			id		path	string	true	"Resource ID"
// @Param			user_id	query	string	true	"Requesting user"
// @Success		200	{array}		version.VersionDTO
// @Failure		403	{object}	ErrorResponse
// @Router			/resources/{kind}/{id}/versions [get]
func (h *Handler) listVersions(c *gin.Context) {
	ref, ok := h.ref(c)
	if !ok {
		return
	}
	if _, ok := h.authorized(c, ref, c.Query("user_id"), permission.RoleViewer); !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	out, err := h.verSvc.List(c.Request.Context(), ref, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, out)
}

// @Summary		Create a version snapshot
// @Tags			Versions
// @Param			kind	path	string			true	"Resource kind"	Enums(document,spreadsheet)
// @Param			id		path	string			true	"Resource ID"
// @Param			body	body	SnapshotBody	true	"Snapshot payload"
// @Success		201	{object}	SnapshotResponse
// @Failure		403	{object}	ErrorResponse
// @Router			/resources/{kind}/{id}/versions [post]
func (h *Handler) snapshot(c *gin.Context) {
	ref, ok := h.ref(c)
	if !ok {
		return
	}
	var body SnapshotBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if body.Description == "" {
		body.Description = "Manual save"
	}
	n, err := h.collabSvc.Snapshot(c.Request.Context(), ref, body.UserID, body.Description)
	if err != nil {
		h.writeCollabError(c, err)
		return
	}
	c.JSON(http.StatusCreated, SnapshotResponse{VersionNumber: n})
}

// @Summary		Get one version
// @Tags			Versions
// @Param			kind	path	string	true	"Resource kind"	Enums(document,spreadsheet)
// @Param			id		path	string	true	"Resource ID"
// @Param			num		path	int		true	"Version number"
// @Param			user_id	query	string	true	"Requesting user"
// @Success		200	{object}	version.VersionDTO
// @Failure		404	{object}	ErrorResponse
// @Router			/resources/{kind}/{id}/versions/{num} [get]
func (h *Handler) getVersion(c *gin.Context) {
	ref, ok := h.ref(c)
	if !ok {
		return
	}
	if _, ok := h.authorized(c, ref, c.Query("user_id"), permission.RoleViewer); !ok {
		return
	}
	num, err := strconv.Atoi(c.Param("num"))
	if err != nil || num < 1 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid version number"})
		return
	}
	v, err := h.verSvc.Get(c.Request.Context(), ref, num)
	if errors.Is(err, version.ErrVersionNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, v)
}

// @Summary		Restore a version
// @Description	Snapshots current content first, then copies the target version back.
// @Tags			Versions
// @Param			kind	path	string		true	"Resource kind"	Enums(document,spreadsheet)
// @Param			id		path	string		true	"Resource ID"
// @Param			num		path	int			true	"Version number"
// @Param			body	body	UserBody	true	"Requesting user"
// @Success		200
// @Failure		403	{object}	ErrorResponse
// @Failure		404	{object}	ErrorResponse
// @Router			/resources/{kind}/{id}/versions/{num}/restore [post]
func (h *Handler) restore(c *gin.Context) {
	ref, ok := h.ref(c)
	if !ok {
		return
	}
	var body UserBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	num, err := strconv.Atoi(c.Param("num"))
	if err != nil || num < 1 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid version number"})
		return
	}
	if err := h.collabSvc.Restore(c.Request.Context(), ref, body.UserID, num); err != nil {
		h.writeCollabError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handler) writeCollabError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, resource.ErrNotFound), errors.Is(err, version.ErrVersionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, permission.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
}
