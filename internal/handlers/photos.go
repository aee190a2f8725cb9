package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/opslink-dev/fieldsync/internal/models"
	"github.com/opslink-dev/fieldsync/internal/utils"
)

// PhotoIntakeRequest registers a captured photo for sync
type PhotoIntakeRequest struct {
	WorkOrderLocalID string `json:"workOrderLocalId"`
	FilePath         string `json:"filePath"`
	CapturedBy       string `json:"capturedBy,omitempty"`
}

// registerPhoto stores the photo metadata row and queues the binary for
// upload. The file must already exist on the device filesystem.
func (r *Router) registerPhoto(w http.ResponseWriter, req *http.Request) {
	var intake PhotoIntakeRequest
	if err := json.NewDecoder(req.Body).Decode(&intake); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if intake.WorkOrderLocalID == "" || intake.FilePath == "" {
		respondError(w, http.StatusBadRequest, "workOrderLocalId and filePath are required")
		return
	}

	info, err := os.Stat(intake.FilePath)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Photo file not found")
		return
	}

	contentHash, err := utils.HashFile(intake.FilePath)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to hash photo")
		return
	}

	var workOrder models.WorkOrder
	if err := r.db.DB.Where("local_id = ?", intake.WorkOrderLocalID).First(&workOrder).Error; err != nil {
		respondError(w, http.StatusNotFound, "Work order not found")
		return
	}

	now := time.Now().UnixMilli()
	photo := models.Photo{
		Syncable: models.Syncable{
			LocalID:         uuid.New().String(),
			SyncStatus:      models.SyncStatusPending,
			LocalModifiedAt: now,
		},
		WorkOrderLocalID: workOrder.LocalID,
		FilePath:         intake.FilePath,
		ContentHash:      contentHash,
		SizeBytes:        info.Size(),
		CapturedAt:       now,
		CapturedBy:       intake.CapturedBy,
	}
	if err := r.db.DB.Create(&photo).Error; err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to store photo")
		return
	}

	if _, err := r.uploads.Track(photo.LocalID, photo.FilePath, contentHash, info.Size()); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to queue upload")
		return
	}

	respondJSON(w, http.StatusCreated, photo)
}
