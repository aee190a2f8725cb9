package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/skip2/go-qrcode"

	"github.com/opslink-dev/fieldsync/internal/models"
	"github.com/opslink-dev/fieldsync/internal/report"
)

// getAssetTagPNG renders one asset's tag code as a QR image
func (r *Router) getAssetTagPNG(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)

	var asset models.Asset
	if err := r.db.DB.Where("local_id = ?", vars["id"]).First(&asset).Error; err != nil {
		respondError(w, http.StatusNotFound, "Asset not found")
		return
	}

	png, err := qrcode.Encode(asset.TagCode, qrcode.Medium, 256)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to encode tag")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

// TagSheetRequest selects assets and layout for a printed label sheet
type TagSheetRequest struct {
	AssetIDs []string              `json:"assetIds"`
	Layout   report.TagSheetConfig `json:"layout"`
}

// getAssetTagSheet renders a printable QR label sheet for the selected
// assets, or for every asset when no ids are given
func (r *Router) getAssetTagSheet(w http.ResponseWriter, req *http.Request) {
	var sheetReq TagSheetRequest
	if err := json.NewDecoder(req.Body).Decode(&sheetReq); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	var assets []models.Asset
	query := r.db.DB
	if len(sheetReq.AssetIDs) > 0 {
		query = query.Where("local_id IN ?", sheetReq.AssetIDs)
	}
	if err := query.Find(&assets).Error; err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load assets")
		return
	}
	if len(assets) == 0 {
		respondError(w, http.StatusNotFound, "No assets matched")
		return
	}

	tags := make([]report.AssetTag, 0, len(assets))
	for _, a := range assets {
		tags = append(tags, report.AssetTag{TagCode: a.TagCode, Name: a.Name})
	}

	pdf, err := report.AssetTagSheet(tags, sheetReq.Layout)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to render tag sheet")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename=asset-tags.pdf")
	w.Write(pdf)
}
