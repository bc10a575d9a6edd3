package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Logger is global since we will need it everywhere
var Logger = slog.Default()

// ServerConfig contains all of the converter and server settings
type ServerConfig struct {
	ListenAddrIP   string
	ListenAddrPort string
	BaseURL        string
	Backend        string
	PDFiumMinIdle  int
	PDFiumMaxIdle  int
	PDFiumMaxTotal int
	// InstanceTimeout bounds the wait for a PDFium instance from the pool
	InstanceTimeout     time.Duration
	HandleTTL           time.Duration
	HandleSweepInterval int //minutes
	MaxUploadMB         int
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolVal
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intVal
}

// loadEnvFiles loads .env files (silently ignore if they don't exist)
func loadEnvFiles() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("config.env")
}

// SetupServer loads configuration and returns ServerConfig and Logger
func SetupServer() (ServerConfig, *slog.Logger) {
	loadEnvFiles()

	logger := setupLogging("file")
	Logger = logger

	serverConfigLive := loadConfig()

	fmt.Println("\n========================================")
	fmt.Println("   pdf2img - PDF to PNG conversion")
	fmt.Println("========================================")
	fmt.Printf("Server will start on: %s:%s\n", serverConfigLive.ListenAddrIP, serverConfigLive.ListenAddrPort)
	if serverConfigLive.ListenAddrIP == "" {
		fmt.Println("(Listening on all network interfaces)")
	}
	fmt.Printf("Detailed logs: %s\n", getEnv("LOG_FILE", "pdf2img.log"))
	fmt.Println("Initializing...")

	logger.Info("Converter configuration loaded",
		"backend", serverConfigLive.Backend,
		"handleTTL", serverConfigLive.HandleTTL,
		"maxUploadMB", serverConfigLive.MaxUploadMB)

	return serverConfigLive, logger
}

// SetupCLI loads configuration for the command line tool, which logs to stderr by default
func SetupCLI() (ServerConfig, *slog.Logger) {
	loadEnvFiles()

	logger := setupLogging("stderr")
	Logger = logger

	return loadConfig(), logger
}

func loadConfig() ServerConfig {
	serverConfigLive := ServerConfig{}

	// Server configuration
	serverConfigLive.ListenAddrPort = getEnv("SERVER_PORT", "8000")
	serverConfigLive.ListenAddrIP = getEnv("SERVER_ADDR", "")
	serverConfigLive.BaseURL = getEnv("BASE_URL", "")
	serverConfigLive.MaxUploadMB = getEnvInt("MAX_UPLOAD_MB", 32)

	// Engine configuration
	serverConfigLive.Backend = getEnv("PDF_BACKEND", "pdfium")
	serverConfigLive.PDFiumMinIdle = getEnvInt("PDFIUM_MIN_IDLE", 1)
	serverConfigLive.PDFiumMaxIdle = getEnvInt("PDFIUM_MAX_IDLE", 1)
	serverConfigLive.PDFiumMaxTotal = getEnvInt("PDFIUM_MAX_TOTAL", 2)
	serverConfigLive.InstanceTimeout = time.Duration(getEnvInt("PDFIUM_INSTANCE_TIMEOUT", 30)) * time.Second

	// Display handles (0 keeps them until revoked)
	serverConfigLive.HandleTTL = time.Duration(getEnvInt("HANDLE_TTL", 60)) * time.Minute
	serverConfigLive.HandleSweepInterval = getEnvInt("HANDLE_SWEEP_INTERVAL", 5)

	return serverConfigLive
}

// setupLogging configures the application logger
func setupLogging(defaultOutput string) *slog.Logger {
	logLevel := getEnv("LOG_LEVEL", "debug")
	var level slog.Level

	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelDebug
	}

	handlerOptions := &slog.HandlerOptions{Level: level}
	if getEnvBool("LOG_SOURCE", false) {
		handlerOptions.AddSource = true
	}

	logOutput := getEnv("LOG_OUTPUT", defaultOutput)
	var logWriter io.Writer

	switch logOutput {
	case "stdout":
		logWriter = os.Stdout
	case "stderr":
		logWriter = os.Stderr
	default:
		logPath, err := filepath.Abs(filepath.ToSlash(getEnv("LOG_FILE", "pdf2img.log")))
		if err != nil {
			fmt.Printf("Error creating log file path: %v\n", err)
			logWriter = os.Stdout
		} else {
			logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
			if err != nil {
				fmt.Printf("Failed to open log file: %v\n", err)
				logWriter = os.Stdout
			} else {
				logWriter = logFile
				fmt.Println("Logging to file: ", logPath)
			}
		}
	}

	handler := slog.NewTextHandler(logWriter, handlerOptions)
	return slog.New(handler)
}
