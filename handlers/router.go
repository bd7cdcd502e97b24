package handlers

import (
	"net/http"
	"time"

	"ecowing/config"
	"ecowing/middleware"

	"github.com/apex/log"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	EndPointHealth        = "/health"
	EndPointDetect        = "/api/detect"
	EndPointHistory       = "/api/history"
	EndPointExpandURL     = "/api/expand-url"
	EndPointCoords        = "/api/coords"
	EndPointReverse       = "/api/geocode/reverse"
	EndPointSites         = "/api/sites"
	EndPointSiteDetails   = "/api/sites/details"
	EndPointDashboard     = "/api/dashboard"
	EndPointDrillDown     = "/api/dashboard/drilldown"
	EndPointMapLayer      = "/api/map/layers/:layer"
	EndPointClusters      = "/api/map/clusters"
	EndPointAnnotated     = "/api/reports/:id/annotated"
	EndPointLabels        = "/api/i18n/labels"
	EndPointLogin         = "/api/login"
	EndPointVerifyReport  = "/api/reports/:id/verify"
	EndPointDeleteReport  = "/api/reports/:id"
	EndPointCharts        = "/charts"
	EndPointListenReports = "/ws"
	EndPointMetrics       = "/metrics"
)

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
			"encoding": c.Writer.Header().Get("Content-Encoding"),
		}).Debug("request")
	}
}

// NewRouter wires every endpoint with gzip, request logging, CORS and the
// per-IP rate limit.
func NewRouter(h *Handlers, cfg *config.Config) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{EndPointListenReports})))
	router.Use(requestLogger())
	router.Use(cors.New(cors.Config{
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowOrigins:     cfg.CORSOrigins,
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(middleware.RateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst))

	router.GET(EndPointHealth, h.HealthCheck)
	router.GET(EndPointMetrics, gin.WrapH(promhttp.Handler()))
	router.GET(EndPointCharts, h.GetCharts)
	router.GET(EndPointListenReports, h.ListenReports)

	router.POST(EndPointDetect, h.Detect)
	router.GET(EndPointHistory, h.GetHistory)
	router.GET(EndPointExpandURL, h.ExpandURL)
	router.GET(EndPointCoords, h.GetCoordinates)
	router.GET(EndPointReverse, h.ReverseGeocode)
	router.GET(EndPointSites, h.GetSites)
	router.GET(EndPointSiteDetails, h.GetSiteDetails)
	router.GET(EndPointDashboard, h.GetDashboard)
	router.GET(EndPointDrillDown, h.GetDrillDown)
	router.GET(EndPointMapLayer, h.GetMapLayer)
	router.GET(EndPointClusters, h.GetClusters)
	router.GET(EndPointAnnotated, h.GetAnnotatedImage)
	router.GET(EndPointLabels, h.GetLabels)
	router.POST(EndPointLogin, h.Login)

	protected := router.Group("")
	protected.Use(middleware.AuthMiddleware(h.auth))
	{
		protected.PATCH(EndPointVerifyReport, h.VerifyReport)
		protected.DELETE(EndPointDeleteReport, h.DeleteReport)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return router
}
