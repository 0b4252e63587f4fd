package resourcehandler

type CreateResourceBody struct {
	UserID  string `json:"user_id" binding:"required" example:"alice"`
	Title   string `json:"title"   binding:"required" example:"Untitled Document"`
	Content string `json:"content" example:"<p></p>"`
} // @name CreateResourceRequest

type UpdateResourceBody struct {
	UserID  string  `json:"user_id" binding:"required" example:"alice"`
	Title   *string `json:"title,omitempty"`
	Content *string `json:"content,omitempty"`
} // @name UpdateResourceRequest

type UserBody struct {
	UserID string `json:"user_id" binding:"required" example:"alice"`
} // @name UserRequest

type GrantPermissionBody struct {
	UserID    string `json:"user_id"    binding:"required" example:"alice"`
	GranteeID string `json:"grantee_id" binding:"required" example:"bob"`
	Role      string `json:"role"       binding:"required,oneof=viewer commenter editor owner" example:"editor"`
} // @name GrantPermissionRequest

type RevokePermissionBody struct {
	UserID    string `json:"user_id"    binding:"required"`
	GranteeID string `json:"grantee_id" binding:"required"`
} // @name RevokePermissionRequest

type SnapshotBody struct {
	UserID      string `json:"user_id" binding:"required"`
	Description string `json:"description" example:"Manual save"`
} // @name SnapshotRequest

type SnapshotResponse struct {
	VersionNumber int `json:"version_number"`
} // @name SnapshotResponse

type ErrorResponse struct {
	Error string `json:"error"`
} // @name ErrorResponse

type ListResourcesQuery struct {
	UserID string `form:"user_id" binding:"required"`
	Limit  int    `form:"limit,default=10"  binding:"gte=0,lte=100"`
	Offset int    `form:"offset,default=0"  binding:"gte=0"`
} // @name ListResourcesQuery
