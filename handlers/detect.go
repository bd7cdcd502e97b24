package handlers

import (
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"ecowing/models"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
)

var errNotFinite = errors.New("not a finite number")

// optionalFloat parses a form value that may be absent or empty.
func optionalFloat(c *gin.Context, key string) (*float64, error) {
	s := strings.TrimSpace(c.PostForm(key))
	if s == "" || s == "null" || s == "undefined" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, errNotFinite
	}
	return &v, nil
}

// Detect handles POST /api/detect: a multipart upload with a "file" part
// and optional lat, lng and locationName fields.
func (h *Handlers) Detect(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing file"})
		return
	}

	lat, err := optionalFloat(c, "lat")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'lat' parameter"})
		return
	}
	lng, err := optionalFloat(c, "lng")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'lng' parameter"})
		return
	}

	f, err := fh.Open()
	if err != nil {
		writeError(c, err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		writeError(c, err)
		return
	}

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}

	upload := &models.Upload{
		Data:         data,
		ContentType:  contentType,
		Filename:     fh.Filename,
		Lat:          lat,
		Lng:          lng,
		LocationName: c.PostForm("locationName"),
	}

	log.WithFields(log.Fields{
		"filename": fh.Filename,
		"size":     len(data),
		"type":     contentType,
	}).Info("detect request")

	det, _, err := h.svc.Detect(c.Request.Context(), upload)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, det)
}
