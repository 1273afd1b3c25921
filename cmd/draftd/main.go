package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/opencoder/opencoder/backend/go-services/internal/classroom"
	"github.com/opencoder/opencoder/backend/go-services/internal/database"
	drafthandler "github.com/opencoder/opencoder/backend/go-services/internal/draft/handler"
	draftrepo "github.com/opencoder/opencoder/backend/go-services/internal/draft/repository"
	draftservice "github.com/opencoder/opencoder/backend/go-services/internal/draft/service"
	"github.com/opencoder/opencoder/backend/go-services/internal/generation"
	"github.com/opencoder/opencoder/backend/go-services/internal/render"
	"github.com/opencoder/opencoder/backend/go-services/internal/storage"
)

// Standalone draft service for local development. Auth is header-based
// (X-User-Id / X-Google-Token) instead of the session-backed flow the main
// binary uses, so it must never be exposed publicly.
func main() {
	port := os.Getenv("DRAFT_SERVICE_PORT")
	if port == "" {
		port = "5010"
	}

	r := gin.New()
	r.Use(gin.Recovery())

	// Prefer Mongo-backed repos when MONGODB_URI is provided; fall back to
	// memory on failure so the service still comes up.
	var repo draftrepo.Repository
	var clsRepo classroom.Repository
	if mongoURI := os.Getenv("MONGODB_URI"); mongoURI != "" {
		client, err := database.ConnectMongo(context.Background(), mongoURI, 10*time.Second)
		if err != nil {
			log.Printf("warning: cannot connect to MongoDB (%v) — using memory-backed repos", err)
		} else {
			db := client.Database(os.Getenv("MONGODB_DATABASE"))
			repo = draftrepo.NewMongoRepo(db.Collection("drafts"))
			clsRepo = classroom.NewMongoRepository(db.Collection("courses"), db.Collection("assignments"))
		}
	}
	if repo == nil {
		repo = draftrepo.NewMemoryRepo()
	}
	if clsRepo == nil {
		clsRepo = classroom.NewMemoryRepository()
	}

	clsSvc := classroom.NewService(classroom.NewClient(classroom.ClientConfig{
		ClassroomBaseURL: os.Getenv("GOOGLE_CLASSROOM_BASE_URL"),
		DriveUploadURL:   os.Getenv("GOOGLE_DRIVE_UPLOAD_URL"),
	}), clsRepo)

	var gen generation.Provider = generation.Disabled{}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		genClient, err := generation.NewClient(generation.ClientConfig{
			APIKey:  key,
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
			Model:   os.Getenv("OPENAI_MODEL"),
		})
		if err != nil {
			log.Printf("warning: generation client not available: %v", err)
		} else {
			gen = genClient
		}
	}

	var opts []draftservice.Option
	if mc := storage.LoadMinIOConfig(); mc.Endpoint != "" {
		archive, err := storage.NewMinIOStorage(mc)
		if err != nil {
			log.Printf("warning: archive not available: %v", err)
		} else {
			opts = append(opts, draftservice.WithArchive(archive))
		}
	}

	svc := draftservice.NewService(repo, clsSvc, gen, render.NewPDFRenderer(), opts...)
	go svc.RunSweeper(context.Background())

	drafthandler.RegisterDraftRoutes(r, svc, func(c *gin.Context) (draftservice.Actor, error) {
		uid := c.GetHeader("X-User-Id")
		if uid == "" {
			return draftservice.Actor{}, fmt.Errorf("missing X-User-Id header")
		}
		return draftservice.Actor{
			UserID:      uid,
			Name:        c.GetHeader("X-User-Name"),
			GoogleToken: c.GetHeader("X-Google-Token"),
		}, nil
	})

	log.Printf("draft service listening on :%s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatal(err)
	}
}
