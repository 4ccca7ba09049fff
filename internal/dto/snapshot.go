package dto

// CreateSnapshotRequest names a new roster snapshot, e.g. "End of SY2024-2025".
type CreateSnapshotRequest struct {
	Name string `json:"name" validate:"required,min=3,max=120"`
}
