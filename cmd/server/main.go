package main

import (
	"os"

	"timeline-ai/backend/internal/app"
)

// @title           Timeline AI API
// @version         1.0
// @description     Streams model-generated timelines of historical events.
// @host            localhost:8000
// @BasePath        /
func main() {
	os.Exit(app.Run())
}
