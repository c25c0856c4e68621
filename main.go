package main

import (
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"characterlab/internal/api"
	"characterlab/internal/auth"
	"characterlab/internal/config"
	"characterlab/internal/engine"
	"characterlab/internal/repo"
	"characterlab/internal/simulator"
	"characterlab/internal/store"
)

func main() {
	// Optional .env for local overrides; absence is not an error.
	_ = godotenv.Load()

	cfgPath := os.Getenv("CHARACTERLAB_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	backend := os.Getenv("CHARACTERLAB_STORE")
	if backend == "" {
		backend = cfg.BasicConfig.StoreBackend
	}
	log.Printf("store backend: %s\n", backend)
	kv, err := store.Open(backend, cfg)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer kv.Close()

	users := repo.NewUsers(kv)
	characters := repo.NewCharacters(kv)
	rooms := repo.NewRooms(kv)
	chats := repo.NewChats(kv)

	sim := simulator.New(simulator.FromAppConfig(cfg.Simulator), simulator.SystemClock(), simulator.NewRand())
	eng := engine.New(characters, rooms, chats, sim, engine.TimerScheduler(), simulator.SystemClock())

	tokenTTL := time.Duration(cfg.BasicConfig.AuthTokenTTLMinutes) * time.Minute
	authService := auth.NewService(kv, tokenTTL)

	handlers := api.NewHandler(users, characters, rooms, chats, eng, authService)

	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}

	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
