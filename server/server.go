// Package server assembles the HTTP surface over the venue catalog: the
// resolve endpoint the schedule pipeline calls, the discovery intake, bulk
// import, and the review-queue admin API.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"venueatlas/database"
	"venueatlas/geocode"
	"venueatlas/internal/config"
	"venueatlas/server/handlers"
	"venueatlas/server/middleware"
	"venueatlas/server/services"
)

// Server is the assembled application.
type Server struct {
	cfg        *config.Config
	store      *database.VenueStore
	router     *gin.Engine
	httpServer *http.Server
	log        *logrus.Logger

	Resolver  *services.ResolverService
	Discovery *services.DiscoveryService
	Review    *services.ReviewService
	Imports   *services.ImportService
}

// New wires the store, services, and router. The geocoding client is only
// built when an API key is configured; without one discovery is disabled and
// the rest of the API still works.
func New(cfg *config.Config, store *database.VenueStore, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}

	resolver := services.NewResolverService(store, services.ResolverConfig{
		AutoThreshold:   cfg.AutoThreshold,
		ReviewThreshold: cfg.ReviewThreshold,
		TieEpsilon:      cfg.TieEpsilon,
	}, log)
	review := services.NewReviewService(store, cfg.AutoApproveCeiling, log)
	imports := services.NewImportService(store, log)

	s := &Server{
		cfg:      cfg,
		store:    store,
		log:      log,
		Resolver: resolver,
		Review:   review,
		Imports:  imports,
	}

	var geocoder *geocode.Client
	if cfg.GeocodeAPIKey != "" {
		geocoder = geocode.NewClient(geocode.Config{
			BaseURL:           cfg.GeocodeBaseURL,
			APIKey:            cfg.GeocodeAPIKey,
			Timeout:           cfg.GeocodeTimeout,
			RequestsPerMinute: cfg.GeocodeRPM,
			CacheTTL:          cfg.GeocodeCacheTTL,
		}, log)
		s.Discovery = services.NewDiscoveryService(store, resolver, geocoder, s.dedupCache(), services.DiscoveryConfig{
			Bias: geocode.Region{
				Latitude:     cfg.BiasLatitude,
				Longitude:    cfg.BiasLongitude,
				RadiusMeters: cfg.BiasRadiusMeters,
			},
			BatchSize:  cfg.BatchSize,
			BatchDelay: cfg.BatchDelay,
			AutoCreate: cfg.GeocodeAutoCreate,
		}, log)
	} else {
		log.Warn("no geocoding API key configured; discovery endpoint disabled")
	}

	s.router = s.buildRouter(geocoder)
	return s
}

// dedupCache prefers redis when configured so multiple hosts share the
// seen-set; otherwise the per-process cache is enough.
func (s *Server) dedupCache() services.DedupCache {
	if s.cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: s.cfg.RedisAddr})
		if err := client.Ping(context.Background()).Err(); err != nil {
			s.log.WithError(err).Warn("redis unreachable, falling back to in-memory dedup")
			return services.NewMemoryDedup(s.cfg.DedupTTL)
		}
		return services.NewRedisDedup(client, s.cfg.DedupTTL)
	}
	return services.NewMemoryDedup(s.cfg.DedupTTL)
}

func (s *Server) buildRouter(geocoder *geocode.Client) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(s.log))

	var cacheStats handlers.GeocodeCacheStats
	if geocoder != nil {
		cacheStats = geocoder
	}
	monitoring := handlers.NewMonitoringHandler(s.store, cacheStats)
	router.GET("/health", monitoring.HandleHealth)

	api := router.Group("/api/v1")
	{
		api.GET("/stats", monitoring.HandleStats)

		resolve := handlers.NewResolveHandler(s.Resolver)
		api.POST("/resolve", resolve.HandleResolve)

		venues := handlers.NewVenueHandler(s.store, s.Imports)
		api.GET("/venues/:id", venues.HandleGetVenue)
		api.POST("/import", venues.HandleImport)

		if s.Discovery != nil {
			discovery := handlers.NewDiscoveryHandler(s.Discovery)
			api.POST("/discover", discovery.HandleDiscover)
		}

		reviewHandler := handlers.NewReviewHandler(s.Review)
		review := api.Group("/review")
		{
			review.GET("", reviewHandler.HandleList)
			review.POST("/:id/approve", reviewHandler.HandleApprove)
			review.POST("/:id/reject", reviewHandler.HandleReject)
			review.POST("/:id/create-venue", reviewHandler.HandleCreateVenue)
			review.POST("/auto-approve", reviewHandler.HandleAutoApprove)
		}
	}

	return router
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start serves until the context is cancelled, then drains in-flight
// requests for up to ten seconds.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("port", s.cfg.Port).Info("server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
