package handler

import (
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/initify/flakie/internal/app"
)

var (
	once    sync.Once
	router  http.Handler
	initErr error
)

// Handler is the Vercel serverless function entrypoint for GitHub webhooks.
func Handler(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		logger, err := zap.NewProduction()
		if err != nil {
			initErr = err
			return
		}
		router, initErr = app.RouterFromEnv(logger)
	})
	if initErr != nil {
		http.Error(w, "config error", http.StatusInternalServerError)
		return
	}
	router.ServeHTTP(w, r)
}
