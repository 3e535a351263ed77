package main

import (
	"github.com/yf-chau/news-summary/cmd/handlers"
	"github.com/yf-chau/news-summary/internal/logger"
)

func main() {
	logger.Init() // Initialize the logger
	handlers.Execute()
}
