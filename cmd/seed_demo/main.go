package main

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/opslink-dev/fieldsync/internal/config"
	"github.com/opslink-dev/fieldsync/internal/database"
	"github.com/opslink-dev/fieldsync/internal/models"
	"github.com/opslink-dev/fieldsync/internal/utils"
)

func main() {
	fmt.Println("🌱 FieldSync Demo Data Seeder")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()

	fmt.Println("✅ Connected to database")

	fmt.Println("🔨 Running database migrations...")
	err = db.AutoMigrate(
		&models.ReviewerAuth{},
		&models.Asset{},
		&models.WorkOrder{},
		&models.MeterReading{},
		&models.Photo{},
		&models.RetryOp{},
		&models.Upload{},
		&models.Collection{},
		&models.SyncState{},
	)
	if err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}
	fmt.Println("✅ Migrations complete")

	now := time.Now().UnixMilli()

	// Reviewer account for escalated conflicts
	hash, err := utils.HashPassword("demo1234")
	if err != nil {
		log.Fatalf("❌ Failed to hash password: %v", err)
	}
	reviewer := models.ReviewerAuth{
		Username: "supervisor",
		Password: hash,
		Name:     "Demo Supervisor",
		Role:     "reviewer",
		IsActive: true,
	}
	if err := db.DB.Where("username = ?", reviewer.Username).FirstOrCreate(&reviewer).Error; err != nil {
		log.Fatalf("❌ Failed to seed reviewer: %v", err)
	}
	fmt.Println("✅ Reviewer account: supervisor / demo1234")

	// A small set of assets with open work against them
	assets := []models.Asset{
		{
			Syncable:    models.Syncable{LocalID: uuid.New().String(), SyncStatus: models.SyncStatusPending, LocalModifiedAt: now},
			Name:        "Compressor A-101",
			TagCode:     "CMP-A-101",
			Location:    "Plant 1 / Utility Room",
			Category:    "compressor",
			Criticality: 1,
		},
		{
			Syncable:    models.Syncable{LocalID: uuid.New().String(), SyncStatus: models.SyncStatusPending, LocalModifiedAt: now},
			Name:        "Conveyor Line 3",
			TagCode:     "CNV-L3",
			Location:    "Plant 1 / Packaging",
			Category:    "conveyor",
			Criticality: 2,
		},
		{
			Syncable:    models.Syncable{LocalID: uuid.New().String(), SyncStatus: models.SyncStatusPending, LocalModifiedAt: now},
			Name:        "HVAC Rooftop Unit 2",
			TagCode:     "HVAC-RTU-2",
			Location:    "Roof / East Wing",
			Category:    "hvac",
			Criticality: 3,
			Notes:       "Filter change every 90 days",
		},
	}
	for i := range assets {
		if err := db.DB.Where("tag_code = ?", assets[i].TagCode).FirstOrCreate(&assets[i]).Error; err != nil {
			log.Fatalf("❌ Failed to seed asset %s: %v", assets[i].TagCode, err)
		}
	}
	fmt.Printf("✅ Seeded %d assets\n", len(assets))

	dueSoon := now + 3*24*60*60*1000
	workOrders := []models.WorkOrder{
		{
			Syncable:     models.Syncable{LocalID: uuid.New().String(), SyncStatus: models.SyncStatusPending, LocalModifiedAt: now},
			Title:        "Quarterly compressor inspection",
			Description:  "Check oil level, belt tension and intake filter.",
			Status:       models.WorkOrderOpen,
			Priority:     2,
			AssetLocalID: &assets[0].LocalID,
			AssignedTo:   "tech.jordan",
			DueAt:        &dueSoon,
		},
		{
			Syncable:     models.Syncable{LocalID: uuid.New().String(), SyncStatus: models.SyncStatusPending, LocalModifiedAt: now},
			Title:        "Conveyor belt misalignment",
			Description:  "Belt tracking off-center at the discharge end.",
			Status:       models.WorkOrderInProgress,
			Priority:     1,
			AssetLocalID: &assets[1].LocalID,
			AssignedTo:   "tech.sam",
		},
	}
	for i := range workOrders {
		if err := db.DB.Where("title = ?", workOrders[i].Title).FirstOrCreate(&workOrders[i]).Error; err != nil {
			log.Fatalf("❌ Failed to seed work order: %v", err)
		}
	}
	fmt.Printf("✅ Seeded %d work orders\n", len(workOrders))

	reading := models.MeterReading{
		Syncable:     models.Syncable{LocalID: uuid.New().String(), SyncStatus: models.SyncStatusPending, LocalModifiedAt: now},
		AssetLocalID: assets[0].LocalID,
		MeterName:    "run_hours",
		Value:        12480,
		Unit:         "h",
		ReadAt:       now,
		ReadBy:       "tech.jordan",
	}
	if err := db.DB.Where("asset_local_id = ? AND meter_name = ?", reading.AssetLocalID, reading.MeterName).FirstOrCreate(&reading).Error; err != nil {
		log.Fatalf("❌ Failed to seed meter reading: %v", err)
	}
	fmt.Println("✅ Seeded 1 meter reading")

	fmt.Println()
	fmt.Println("🌱 Demo data ready. Start the server with cmd/api and trigger POST /api/sync/full.")
}
