package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/kbtree/internal/models"
	"github.com/starford/kbtree/internal/reconcile"
	"github.com/starford/kbtree/internal/treeservice"
)

// DirectoryDetail is a directory header (aliased from the domain layer).
type DirectoryDetail = treeservice.DirectoryDetail

// DocumentDetail is the full document response type (aliased from the domain layer).
type DocumentDetail = treeservice.DocumentDetail

// SyncReport is the result of one reconciliation pass.
type SyncReport = reconcile.Report

// TreeResponse is one level of the sidebar tree.
type TreeResponse struct {
	Directory *DirectoryDetail `json:"directory" validate:"required"`
	Entries   []models.Entry   `json:"entries" validate:"required"`
}

// SyncFailedResponse is returned when a pass rolled back.
type SyncFailedResponse struct {
	Error  string      `json:"error" example:"storage conflict" validate:"required"`
	Report *SyncReport `json:"report,omitempty"`
}

// MoveDirectoryRequest is the request body for moving or renaming a directory.
type MoveDirectoryRequest struct {
	Parent string `json:"parent" example:"6f1c..."`
	Name   string `json:"name" example:"guides" validate:"required"`
}

// Validate checks the request fields.
func (r MoveDirectoryRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 255)),
	)
}
