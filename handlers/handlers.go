package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ecowing/charts"
	"ecowing/database"
	"ecowing/geocode"
	"ecowing/i18n"
	"ecowing/layers"
	"ecowing/mapaggr"
	"ecowing/middleware"
	"ecowing/models"
	"ecowing/service"
	ws "ecowing/websocket"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
)

// MaxSitesLimit caps the limit query parameter of the sites endpoint.
const MaxSitesLimit = 100

// Handlers contains all HTTP handlers
type Handlers struct {
	svc            *service.Service
	hub            *ws.Hub
	auth           *middleware.Authenticator
	maxUploadBytes int64
}

func NewHandlers(svc *service.Service, hub *ws.Hub, auth *middleware.Authenticator, maxUploadBytes int64) *Handlers {
	return &Handlers{
		svc:            svc,
		hub:            hub,
		auth:           auth,
		maxUploadBytes: maxUploadBytes,
	}
}

var upgrader = gorilla.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// writeError maps service errors to HTTP statuses.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, database.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrEmptyUpload), errors.Is(err, layers.ErrUnknownLayer):
		status = http.StatusBadRequest
	case errors.Is(err, geocode.ErrNoCoordinates), errors.Is(err, service.ErrNotAnnotatable):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		log.WithError(err).WithField("path", c.Request.URL.Path).Error("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func bindFilter(c *gin.Context) (models.Filter, bool) {
	var f models.Filter
	if err := c.ShouldBindQuery(&f); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filter: " + err.Error()})
		return f, false
	}
	return f, true
}

// labels picks the display language from ?lang, then Accept-Language.
func labels(c *gin.Context) i18n.Labels {
	accept := c.Query("lang")
	if accept == "" {
		accept = c.GetHeader("Accept-Language")
	}
	return i18n.For(i18n.Match(accept))
}

func queryFloat(c *gin.Context, key string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(c.Query(key)), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid '" + key + "' parameter"})
		return 0, false
	}
	return v, true
}

// HealthCheck returns the service health status
func (h *Handlers) HealthCheck(c *gin.Context) {
	resp := gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}
	if h.hub != nil {
		clients, lastBroadcast := h.hub.GetStats()
		resp["connected_clients"] = clients
		if !lastBroadcast.IsZero() {
			resp["last_broadcast"] = lastBroadcast.Format(time.RFC3339)
		}
	}
	c.JSON(http.StatusOK, resp)
}

// GetHistory returns every stored report that passes the filter.
func (h *Handlers) GetHistory(c *gin.Context) {
	f, ok := bindFilter(c)
	if !ok {
		return
	}
	reports, err := h.svc.History(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, reports)
}

func (h *Handlers) ExpandURL(c *gin.Context) {
	u := strings.TrimSpace(c.Query("url"))
	if u == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing url parameter"})
		return
	}
	expanded, err := h.svc.ExpandURL(c.Request.Context(), u)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": expanded})
}

func (h *Handlers) GetCoordinates(c *gin.Context) {
	u := strings.TrimSpace(c.Query("url"))
	if u == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing url parameter"})
		return
	}
	lat, lng, err := h.svc.ResolveCoordinates(c.Request.Context(), u)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lat": lat, "lng": lng})
}

func (h *Handlers) ReverseGeocode(c *gin.Context) {
	lat, ok := queryFloat(c, "lat")
	if !ok {
		return
	}
	lng, ok := queryFloat(c, "lng")
	if !ok {
		return
	}
	address, err := h.svc.ReverseGeocode(c.Request.Context(), lat, lng)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": address})
}

// GetSites returns the ranked top sites for the filter.
func (h *Handlers) GetSites(c *gin.Context) {
	f, ok := bindFilter(c)
	if !ok {
		return
	}
	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'limit' parameter. Must be a positive integer."})
			return
		}
		limit = n
	}
	if limit > MaxSitesLimit {
		limit = MaxSitesLimit
	}
	views, err := h.svc.Sites(c.Request.Context(), f, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

func (h *Handlers) GetSiteDetails(c *gin.Context) {
	location := c.Query("location")
	if location == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing location parameter"})
		return
	}
	details, ok, err := h.svc.Site(c.Request.Context(), location)
	if err != nil {
		writeError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Site not found"})
		return
	}
	c.JSON(http.StatusOK, details)
}

func (h *Handlers) GetDashboard(c *gin.Context) {
	f, ok := bindFilter(c)
	if !ok {
		return
	}
	summary, err := h.svc.Dashboard(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handlers) GetDrillDown(c *gin.Context) {
	f, ok := bindFilter(c)
	if !ok {
		return
	}
	category := c.Query("category")
	if category == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing category parameter"})
		return
	}
	l := labels(c)
	data, err := h.svc.DrillDown(c.Request.Context(), f, category, l.Unspecified)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"category": category, "lang": l.Lang, "data": data})
}

func (h *Handlers) GetMapLayer(c *gin.Context) {
	f, ok := bindFilter(c)
	if !ok {
		return
	}
	fc, err := h.svc.MapLayer(c.Request.Context(), c.Param("layer"), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, fc)
}

// GetClusters aggregates the reports visible in the requested viewport.
func (h *Handlers) GetClusters(c *gin.Context) {
	f, ok := bindFilter(c)
	if !ok {
		return
	}
	var vp mapaggr.ViewPort
	var valid bool
	if vp.LatMax, valid = queryFloat(c, "lat_top"); !valid {
		return
	}
	if vp.LngMin, valid = queryFloat(c, "lng_left"); !valid {
		return
	}
	if vp.LatMin, valid = queryFloat(c, "lat_bottom"); !valid {
		return
	}
	if vp.LngMax, valid = queryFloat(c, "lng_right"); !valid {
		return
	}
	if vp.LatMin > vp.LatMax {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat_bottom must not exceed lat_top"})
		return
	}
	clusters, err := h.svc.Clusters(c.Request.Context(), vp, f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, clusters)
}

// GetAnnotatedImage returns the stored photo with the detection boxes drawn.
func (h *Handlers) GetAnnotatedImage(c *gin.Context) {
	img, err := h.svc.Annotated(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/jpeg", img)
}

func (h *Handlers) GetLabels(c *gin.Context) {
	c.JSON(http.StatusOK, labels(c))
}

// GetCharts renders the dashboard as an HTML page of charts.
func (h *Handlers) GetCharts(c *gin.Context) {
	f, ok := bindFilter(c)
	if !ok {
		return
	}
	summary, err := h.svc.Dashboard(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := charts.Render(c.Writer, summary, labels(c)); err != nil {
		log.WithError(err).Error("failed to render charts")
	}
}

// ListenReports upgrades to a websocket that streams new reports and site
// rankings.
func (h *Handlers) ListenReports(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Errorf("Failed to upgrade connection to WebSocket: %v", err)
		return
	}

	client := ws.NewClient(h.hub, conn)
	if !h.hub.Add(client) {
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()

	log.Info("WebSocket connection established")
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}
	token, expiresAt, err := h.auth.Login(req.Username, req.Password)
	switch {
	case errors.Is(err, middleware.ErrAuthDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	case errors.Is(err, middleware.ErrInvalidCredentials):
		log.WithField("username", req.Username).Warn("failed login")
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	case err != nil:
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"token_type": "Bearer",
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	})
}

type verifyRequest struct {
	Verified *bool `json:"verified" binding:"required"`
}

func (h *Handlers) VerifyReport(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "verified flag required"})
		return
	}
	r, err := h.svc.Verify(c.Request.Context(), c.Param("id"), *req.Verified)
	if err != nil {
		writeError(c, err)
		return
	}
	log.WithFields(log.Fields{"report_id": r.ID, "verified": r.Verified, "by": c.GetString("user_id")}).Info("report verification changed")
	c.JSON(http.StatusOK, r)
}

func (h *Handlers) DeleteReport(c *gin.Context) {
	id := c.Param("id")
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	log.WithFields(log.Fields{"report_id": id, "by": c.GetString("user_id")}).Info("report deleted")
	c.Status(http.StatusNoContent)
}
