// ratepulse-server runs the HTTP API: persisted transmission, stress, alert
// and baseline views plus the per-date compute trigger.
package main

import (
	"log/slog"
	"os"

	"ratepulse/internal/app"
)

func main() {
	application, err := app.NewApplication()
	if err != nil {
		slog.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		application.Logger.Error("application exited with error", "error", err)
		os.Exit(1)
	}
}
