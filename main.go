package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	config "github.com/drummonds/pdf2img/config"
	engine "github.com/drummonds/pdf2img/engine"
	"github.com/drummonds/pdf2img/engine/pdfrenderer"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// injectGlobals injects all of our globals into their packages
func injectGlobals(logger *slog.Logger) {
	Logger = logger
	config.Logger = Logger
	engine.Logger = Logger
	pdfrenderer.Logger = Logger
}

// poolConfig maps the server settings onto the PDFium pool
func poolConfig(serverConfig config.ServerConfig) pdfrenderer.PoolConfig {
	pool := pdfrenderer.DefaultPoolConfig()
	pool.MinIdle = serverConfig.PDFiumMinIdle
	pool.MaxIdle = serverConfig.PDFiumMaxIdle
	pool.MaxTotal = serverConfig.PDFiumMaxTotal
	if serverConfig.InstanceTimeout > 0 {
		pool.InstanceTimeout = serverConfig.InstanceTimeout
	}
	return pool
}

// newServer builds the echo instance and the handler behind it
func newServer(serverConfig config.ServerConfig) (*engine.ServerHandler, error) {
	runtime, err := pdfrenderer.NewRuntime(serverConfig.Backend, poolConfig(serverConfig))
	if err != nil {
		return nil, err
	}
	loader := engine.NewLoader(runtime)
	images := engine.NewImageStore(serverConfig.BaseURL, serverConfig.HandleTTL)

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
		}
		if code == http.StatusNotFound {
			c.JSON(http.StatusNotFound, map[string]string{
				"error":   "Not Found",
				"message": "The requested endpoint does not exist",
				"path":    c.Request().URL.Path,
			})
			return
		}
		e.DefaultHTTPErrorHandler(err, c)
	}
	e.Use(middleware.CORSWithConfig(middleware.DefaultCORSConfig))
	e.Use(middleware.Recover())

	serverHandler := &engine.ServerHandler{
		Converter:    engine.NewConverter(loader, images),
		Loader:       loader,
		Images:       images,
		Echo:         e,
		ServerConfig: serverConfig,
	}
	serverHandler.AddRoutes()
	return serverHandler, nil
}

// @title pdf2img API
// @version 1.0
// @description Renders the first page of a PDF document to a PNG image

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8000
// @BasePath /api
// @schemes http https

// @tag.name Conversion
// @tag.description PDF to PNG conversion

// @tag.name Images
// @tag.description Display handles for converted images

// @tag.name Health
// @tag.description Service health
func main() {
	serverConfig, logger := config.SetupServer()
	injectGlobals(logger) //inject the logger into all of the packages

	serverHandler, err := newServer(serverConfig)
	if err != nil {
		Logger.Error("Unable to configure rendering backend", "backend", serverConfig.Backend, "error", err)
		fmt.Fprintf(os.Stderr, "Unable to configure rendering backend: %v\n", err)
		os.Exit(1)
	}
	defer serverHandler.Loader.Close()
	Logger.Info("Echo created", "backend", serverHandler.Loader.Backend())

	scheduler := engine.InitializeSchedules(serverHandler.Images, serverConfig.HandleSweepInterval) //initialize all the cron jobs
	defer scheduler.Stop()
	serverHandler.StartupChecks() //warm the engine off the request path

	if serverConfig.ListenAddrIP == "" {
		Logger.Info("No Ip Addr set, binding on ALL addresses")
	}

	Logger.Info("Starting HTTP server")

	// Try to start server with automatic port increment if port is in use
	maxRetries := 5
	startPort := serverConfig.ListenAddrPort
	var startErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		addr := fmt.Sprintf("%s:%s", serverConfig.ListenAddrIP, serverConfig.ListenAddrPort)
		Logger.Info("Attempting to start server", "address", addr, "attempt", attempt+1)

		startErr = serverHandler.Echo.Start(addr)

		if startErr != nil && isAddressInUse(startErr) {
			Logger.Warn("Port already in use, trying next port",
				"port", serverConfig.ListenAddrPort,
				"attempt", attempt+1,
				"max_attempts", maxRetries)

			portNum := 0
			fmt.Sscanf(serverConfig.ListenAddrPort, "%d", &portNum)
			portNum++
			serverConfig.ListenAddrPort = fmt.Sprintf("%d", portNum)

			if attempt == maxRetries-1 {
				Logger.Error("Failed to find available port after maximum retries",
					"start_port", startPort,
					"end_port", serverConfig.ListenAddrPort,
					"max_retries", maxRetries)
				os.Exit(1)
			}
		} else if startErr != nil && startErr != http.ErrServerClosed {
			Logger.Error("Failed to start server", "error", startErr)
			os.Exit(1)
		} else {
			break
		}
	}

	if serverConfig.ListenAddrPort != startPort {
		Logger.Warn("Server started on alternative port due to conflicts",
			"requested_port", startPort,
			"actual_port", serverConfig.ListenAddrPort)
	}
}

// isAddressInUse checks if the error is due to address already in use
func isAddressInUse(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "address already in use")
}
