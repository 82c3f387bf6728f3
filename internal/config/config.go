package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress     string
	OrchestratorURL string
	SpeechWSURL     string
	SpeechAPIKey    string
	TranscribeURL   string
	ExtractURL      string
	VisionURL       string
	VisionAPIKey    string
	MaxPDFPages     int
	UserID          string
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("Error loading .env file")
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":8080"
	}

	orchURL := os.Getenv("ORCHESTRATOR_URL")
	if orchURL == "" {
		orchURL = "http://localhost:10007"
	}

	speechWS := os.Getenv("SPEECH_WS_URL")
	speechKey := os.Getenv("SPEECH_API_KEY")
	if speechKey == "" {
		log.Println("Warning: SPEECH_API_KEY not set - live transcription will not work")
	}

	transcribeURL := os.Getenv("TRANSCRIBE_URL")
	extractURL := os.Getenv("EXTRACT_URL")
	if extractURL == "" {
		log.Println("Warning: EXTRACT_URL not set - PDF extraction will not work")
	}

	visionURL := os.Getenv("VISION_URL")
	visionKey := os.Getenv("VISION_API_KEY")
	if visionKey == "" {
		log.Println("Warning: VISION_API_KEY not set - image description will not work")
	}

	maxPages := 10
	if v := os.Getenv("MAX_PDF_PAGES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			log.Printf("Warning: invalid MAX_PDF_PAGES=%q, using default %d", v, maxPages)
		} else {
			maxPages = n
		}
	}

	log.Printf("config: HTTP_ADDRESS=%s ORCHESTRATOR_URL=%s", addr, orchURL)
	return Config{
		HTTPAddress:     addr,
		OrchestratorURL: orchURL,
		SpeechWSURL:     speechWS,
		SpeechAPIKey:    speechKey,
		TranscribeURL:   transcribeURL,
		ExtractURL:      extractURL,
		VisionURL:       visionURL,
		VisionAPIKey:    visionKey,
		MaxPDFPages:     maxPages,
		UserID:          os.Getenv("USER_ID"),
	}
}
