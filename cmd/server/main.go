package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"minerva-backend/internal/agent"
	"minerva-backend/internal/config"
	"minerva-backend/internal/database"
	"minerva-backend/internal/handlers"
	"minerva-backend/internal/middleware"
	"minerva-backend/internal/models"
	"minerva-backend/internal/rag"
	"minerva-backend/internal/repository"
	"minerva-backend/internal/router"
	"minerva-backend/internal/services"
	"minerva-backend/internal/vectorstore"
	"minerva-backend/internal/websocket"
	"minerva-backend/internal/worker"
)

// embeddingDimension matches the text-embedding-004 output size the vector
// collection is created with.
const embeddingDimension = 768

func main() {
	log.Println("🚀 Starting Minerva Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	agentUserID, err := uuid.Parse(cfg.AgentUserID)
	if err != nil {
		log.Fatalf("✗ AGENT_USER_ID is not a valid UUID: %v", err)
	}

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	log.Println("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClients.Close()
	log.Println("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, "migrations"); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Initialize Repositories ────
	userRepo := repository.NewUserRepo(pool)
	messageRepo := repository.NewMessageRepo(pool)
	documentRepo := repository.NewDocumentRepo(pool)
	jobRepo := repository.NewJobRepo(pool)

	// The assistant posts messages under its own user row.
	if err := userRepo.EnsureAgent(context.Background(), agentUserID); err != nil {
		log.Fatalf("✗ Failed to seed agent user: %v", err)
	}
	log.Println("✓ Agent user ensured")

	// ──── Step 5: Initialize Vector Index ────
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	vectorIndex, err := vectorstore.NewQdrant(ctx, vectorstore.QdrantConfig{
		URL:        cfg.QdrantURL,
		Collection: cfg.QdrantCollection,
		APIKey:     cfg.QdrantAPIKey,
		Dimension:  embeddingDimension,
	})
	cancel()
	if err != nil {
		log.Fatalf("✗ Qdrant initialization failed: %v", err)
	}
	defer vectorIndex.Close()
	log.Println("✓ Qdrant vector index ready")

	// ──── Step 6: Initialize Gemini Client ────
	geminiService, err := services.NewGeminiService(
		cfg.GeminiAPIKey,
		cfg.GeminiModel,
		cfg.GeminiEmbedModel,
		cfg.GeminiConcurrentReqs,
	)
	if err != nil {
		log.Fatalf("✗ Gemini client initialization failed: %v", err)
	}
	defer geminiService.Close()
	log.Println("✓ Gemini client initialized")

	// ──── Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	emailService := services.NewEmailService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.Env)
	youtubeService := services.NewYouTubeService()
	fileExtractService := services.NewFileExtractService()

	calendarService, err := services.NewCalendarService(cfg.GoogleCredentialsJSON, cfg.GoogleCalendarID)
	if err != nil {
		log.Fatalf("✗ Calendar client initialization failed: %v", err)
	}

	speechService, err := services.NewSpeechService(cfg.GoogleTTSAPIKey, cfg.TTSVoice)
	if err != nil {
		log.Fatalf("✗ Text-to-speech client initialization failed: %v", err)
	}

	fileStore, err := services.NewFileStore(cfg.StoragePath, cfg.PublicURL)
	if err != nil {
		log.Fatalf("✗ File store initialization failed: %v", err)
	}

	ragEngine := rag.NewEngine(vectorIndex, geminiService, geminiService, fileExtractService)

	// ──── Step 7: Assemble the Agent ────
	tools := []agent.Tool{
		agent.NewEmailTool(emailService),
		agent.NewCreateEventTool(calendarService),
		agent.NewQueryCalendarTool(calendarService),
		agent.NewSearchDocumentsTool(ragEngine, 5),
	}
	orchestrator := agent.NewOrchestrator(geminiService, tools, cfg.AgentMaxIterations, cfg.AgentTimezoneOffset)
	log.Printf("✓ Agent assembled (%d tools, max %d model calls per turn)", len(tools), cfg.AgentMaxIterations)

	chatService := services.NewChatService(messageRepo, orchestrator, geminiService, speechService, fileStore, agentUserID)

	// ──── Initialize Handlers ────
	enqueue := func(ctx context.Context, job *models.Job) error {
		return worker.Enqueue(ctx, redisClients.Queue, job)
	}
	chatHandler := handlers.NewChatHandler(chatService)
	conversationHandler := handlers.NewConversationHandler(messageRepo)
	documentHandler := handlers.NewDocumentHandler(documentRepo, jobRepo, ragEngine, fileStore, youtubeService, enqueue)
	jobHandler := handlers.NewJobHandler(jobRepo)

	// ──── Step 8: Start Ingestion Worker Pool ────
	workerPool := worker.NewPool(
		redisClients.Queue,
		redisClients.PubSub,
		ragEngine,
		youtubeService,
		fileStore,
		jobRepo,
		documentRepo,
		3,
	)
	workerPool.Start()
	log.Println("✓ Ingestion worker pool started (3 goroutines)")

	// ──── Step 9: Start WebSocket Hub ────
	wsHub := websocket.NewHub(redisClients.PubSub, cfg.JWTSecret)
	log.Println("✓ WebSocket hub started")

	// ──── Step 10: Start HTTP Server ────
	r := router.New(
		jwtAuth,
		chatHandler,
		conversationHandler,
		documentHandler,
		jobHandler,
		wsHub,
		cfg.StoragePath,
		cfg.FrontendURL,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		workerPool.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ Minerva Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
