package engine

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/drummonds/pdf2img/config"
)

// ServerHandler will inject the variables needed into routes
type ServerHandler struct {
	Converter    *Converter
	Loader       *Loader
	Images       *ImageStore
	Echo         *echo.Echo
	ServerConfig config.ServerConfig
}

type convertResponse struct {
	ImageURL    string `json:"imageUrl"`
	FileName    string `json:"fileName,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Size        int    `json:"size,omitempty"`
	Error       string `json:"error,omitempty"`
}

type healthResponse struct {
	Status    string `json:"status"`
	Engine    string `json:"engine"`
	Backend   string `json:"backend"`
	Isolated  bool   `json:"isolated"`
	Images    int    `json:"images"`
	Timestamp string `json:"timestamp"`
}

// AddRoutes registers all of the handlers on the echo instance
func (serverHandler *ServerHandler) AddRoutes() {
	e := serverHandler.Echo
	e.POST("/api/convert", serverHandler.ConvertDocument, middleware.BodyLimit(strconv.FormatInt(serverHandler.bodyLimit(), 10)))
	e.GET("/api/health", serverHandler.Health)
	e.GET(ImagePathPrefix+":id", serverHandler.GetImage)
	e.DELETE(ImagePathPrefix+":id", serverHandler.RevokeImage)
}

func (serverHandler *ServerHandler) uploadLimit() int64 {
	mb := serverHandler.ServerConfig.MaxUploadMB
	if mb <= 0 {
		mb = 32
	}
	return int64(mb) << 20
}

// multipartOverhead is room for the form boundaries and part headers around the file
const multipartOverhead = 64 << 10

// bodyLimit caps the whole request body before the multipart form is parsed
func (serverHandler *ServerHandler) bodyLimit() int64 {
	return serverHandler.uploadLimit() + multipartOverhead
}

// ConvertDocument rasterizes the first page of an uploaded PDF
// @Summary Convert a PDF to a PNG image
// @Description Renders the first page of the uploaded document and returns a display URL for the PNG
// @Tags Conversion
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "PDF document"
// @Success 200 {object} convertResponse "Converted image"
// @Failure 400 {object} map[string]interface{} "No file provided"
// @Failure 413 {object} map[string]interface{} "File too large"
// @Failure 422 {object} convertResponse "Conversion failed"
// @Router /convert [post]
func (serverHandler *ServerHandler) ConvertDocument(c echo.Context) error {
	limit := serverHandler.uploadLimit()
	file, fileHeader, err := c.Request().FormFile("file")
	if errors.Is(err, echo.ErrStatusRequestEntityTooLarge) {
		return c.JSON(http.StatusRequestEntityTooLarge, map[string]interface{}{
			"error": "File too large",
			"limit": limit,
		})
	}
	if err != nil {
		Logger.Warn("No file in conversion request", "error", err)
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "No PDF file provided",
		})
	}
	defer file.Close()

	if fileHeader.Size > limit {
		return c.JSON(http.StatusRequestEntityTooLarge, map[string]interface{}{
			"error": "File too large",
			"limit": limit,
		})
	}

	body, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		Logger.Error("Unable to read uploaded file", "name", fileHeader.Filename, "error", err)
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "Failed to read PDF file",
		})
	}
	if int64(len(body)) > limit {
		return c.JSON(http.StatusRequestEntityTooLarge, map[string]interface{}{
			"error": "File too large",
			"limit": limit,
		})
	}

	result := serverHandler.Converter.RasterizeFirstPage(c.Request().Context(), body, fileHeader.Filename)
	if !result.Succeeded() {
		return c.JSON(http.StatusUnprocessableEntity, convertResponse{Error: result.Error})
	}
	return c.JSON(http.StatusOK, convertResponse{
		ImageURL:    result.ImageURL,
		FileName:    result.File.Name,
		ContentType: result.File.ContentType,
		Size:        result.File.Size(),
	})
}

// GetImage serves the bytes behind a display handle
// @Summary Get a converted image
// @Tags Images
// @Produce png
// @Param id path string true "Image ULID"
// @Success 200 {file} binary "PNG image"
// @Failure 404 {object} map[string]interface{} "Image not found"
// @Router /images/{id} [get]
func (serverHandler *ServerHandler) GetImage(c echo.Context) error {
	data, contentType, err := serverHandler.Images.Get(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]interface{}{
			"error": "Image not found",
		})
	}
	return c.Blob(http.StatusOK, contentType, data)
}

// RevokeImage drops a display handle
// @Summary Revoke a converted image
// @Tags Images
// @Produce json
// @Param id path string true "Image ULID"
// @Success 200 {string} string "Image Revoked"
// @Failure 404 {object} map[string]interface{} "Image not found"
// @Router /images/{id} [delete]
func (serverHandler *ServerHandler) RevokeImage(c echo.Context) error {
	if !serverHandler.Images.Revoke(c.Param("id")) {
		return c.JSON(http.StatusNotFound, map[string]interface{}{
			"error": "Image not found",
		})
	}
	return c.JSON(http.StatusOK, "Image Revoked")
}

// Health reports the engine state
// @Summary Service health check
// @Tags Health
// @Produce json
// @Success 200 {object} healthResponse
// @Router /health [get]
func (serverHandler *ServerHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status:    "healthy",
		Engine:    serverHandler.Loader.State().String(),
		Backend:   serverHandler.Loader.Backend(),
		Isolated:  serverHandler.Loader.Isolated(),
		Images:    serverHandler.Images.Len(),
		Timestamp: time.Now().Format(time.RFC3339),
	})
}
