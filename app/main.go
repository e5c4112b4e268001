package main

// PROPRIETARY AND CONFIDENTIAL
// This code contains trade secrets and confidential material of Orion Messenger.
// Any unauthorized use, disclosure, or duplication is strictly prohibited.
// © 2025 Orion Messenger. All rights reserved.

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	container, err := NewContainer()
	if err != nil {
		log.Fatal(err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		container.Logger.Info("server starting", "addr", container.Server.Addr)
		if err := container.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v\n", err)
		}
	}()

	<-quit
	container.Logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := container.Server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	if err := container.Close(); err != nil {
		container.Logger.Error("shutdown cleanup failed", "error", err)
	}

	container.Logger.Info("server exiting")
}
