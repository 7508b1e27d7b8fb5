package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"teamwire/internal/app"
	"teamwire/internal/config"
	"teamwire/pkg/types"
)

// FUNCTIONAL DISCOVERY: Main entry point with comprehensive error handling
// and signal management; graceful shutdown on SIGINT/SIGTERM
func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

// ARCHITECTURAL DISCOVERY: Separate run function enables testing and error
// handling; signal handling ensures graceful shutdown
func run() error {
	var (
		username = flag.String("username", "", "account to log in as (optional when a session is stored)")
		password = flag.String("password", "", "password for -username")
		room     = flag.String("room", "general", "room to join after connecting")
	)
	flag.Parse()

	// STEP 1: Load configuration with precedence (file > env > defaults)
	configPath := os.Getenv("TEAMWIRE_CONFIG_FILE")
	cfg := config.LoadConfigWithPrecedence(configPath)

	// STEP 2: Create client with configuration
	client, err := app.NewClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	// STEP 3: Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	client.OnSessionExpired(func() {
		log.Printf("Session expired, log in again with -username/-password")
	})

	// STEP 4: Surface channel and presence activity on the console
	client.Channel().OnStatus(func(status types.ChannelStatus) {
		log.Printf("Channel status: %s", status)
	})
	client.Channel().Subscribe(types.EventNewMessage, func(ev types.Event) {
		var msg types.NewMessage
		if err := json.Unmarshal(ev.Payload, &msg); err != nil {
			return
		}
		log.Printf("[%s] %s: %s", msg.Room, msg.SenderUsername, msg.Content)
	})
	client.Presence().OnChange(func() {
		typing := client.Presence().Typing()
		if len(typing) > 0 {
			log.Printf("Typing: %v", typing)
		}
	})

	// STEP 5: Start the client, logging in first when credentials were given
	if *username != "" {
		if err := client.Login(ctx, *username, *password); err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
	} else if err := client.Start(ctx); err != nil {
		return fmt.Errorf("failed to start client: %w", err)
	}

	if err := client.Channel().Join(*room); err != nil {
		log.Printf("Failed to join room %s: %v", *room, err)
	}

	// STEP 6: Wait for shutdown signal
	sig := <-signalCh
	log.Printf("Received signal %v, shutting down gracefully", sig)

	// FUNCTIONAL DISCOVERY: Timeout context prevents hanging shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := client.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}
