package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"market-feed/src/logger"
	"market-feed/src/models"
	"market-feed/src/stream"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// FeedServer
// -----------------------------------------------------------------------------

type FeedServer struct {
	Config *models.MConfig
	Logger *logger.Logger
	engine *gin.Engine
	hub    *stream.StreamHub
	http   *http.Server
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewFeedServer(cfg *models.MConfig, hub *stream.StreamHub, logger *logger.Logger) *FeedServer {
	// Set Gin mode
	if cfg.LogLevel != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &FeedServer{
		Config: cfg,
		Logger: logger,
		engine: gin.Default(),
		hub:    hub,
	}

	// Add CORS Middleware
	s.engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") || strings.HasPrefix(origin, "http://localhost:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// setup web routes
	s.setupRoutes()
	return s
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *FeedServer) setupRoutes() {
	// REST API endpoints
	s.engine.GET("/api/health", s.getHealth)
	s.engine.GET("/api/config", s.getConfig)
	s.engine.GET("/api/symbols", s.getSymbols)
	s.engine.GET("/api/history", s.getHistory)
	s.engine.GET("/api/orderbook", s.getOrderBook)
	s.engine.GET("/api/preload", s.getPreload)
	s.engine.GET("/api/volume-profile", s.getVolumeProfile)

	// WebSocket endpoint
	s.engine.GET("/ws", s.handleWebSocket)
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

func (s *FeedServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Host, s.Config.Port)
	s.Logger.Info("Starting server on %s", addr)

	s.http = &http.Server{Addr: addr, Handler: s.engine}

	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------

func (s *FeedServer) Stop() error {
	if s.http == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.http.Shutdown(ctx)
}

// -----------------------------------------------------------------------------
// WebSocket Handler
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

func (s *FeedServer) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	client := newClient(s, conn)

	// Start goroutines for reading/writing before the greeting frames so
	// the send buffer drains from the first moment.
	go client.writePump()
	go client.readPump()

	s.hub.AddConnection(client)
}

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

func (s *FeedServer) getHealth(c *gin.Context) {
	c.JSON(200, gin.H{
		"status":       "ok",
		"connections":  s.hub.ConnectionCount(),
		"update_loops": s.hub.LoopCount(),
	})
}

// -----------------------------------------------------------------------------

func (s *FeedServer) getConfig(c *gin.Context) {
	c.JSON(200, gin.H{
		"symbols":      s.hub.Symbols(),
		"intervals":    s.hub.Intervals(),
		"depth_levels": s.Config.Feed.DepthLevels,
	})
}

// -----------------------------------------------------------------------------

func (s *FeedServer) getSymbols(c *gin.Context) {
	c.JSON(200, gin.H{"symbols": s.Config.Symbols})
}

// -----------------------------------------------------------------------------

func (s *FeedServer) getHistory(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(400, gin.H{"error": "symbol is required"})
		return
	}
	interval := c.DefaultQuery("interval", "1m")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	candles := s.hub.GetHistoricalData(symbol, interval, limit)
	c.JSON(200, models.MHistoricalDataFrame{
		Type:     models.FrameHistoricalData,
		Symbol:   symbol,
		Interval: interval,
		Data:     candles,
	})
}

// -----------------------------------------------------------------------------

func (s *FeedServer) getOrderBook(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(400, gin.H{"error": "symbol is required"})
		return
	}

	book := s.hub.GetOrderBook(symbol)
	c.JSON(200, models.MOrderBookUpdateFrame{
		Type:   models.FrameOrderBookUpdate,
		Symbol: symbol,
		Data:   book,
	})
}

// -----------------------------------------------------------------------------

func (s *FeedServer) getPreload(c *gin.Context) {
	symbol := c.Query("symbol")
	from, errFrom := strconv.ParseInt(c.Query("from"), 10, 64)
	to, errTo := strconv.ParseInt(c.Query("to"), 10, 64)
	if symbol == "" || errFrom != nil || errTo != nil || to <= from {
		c.JSON(400, gin.H{"error": "symbol, from and to (epoch seconds, from < to) are required"})
		return
	}
	interval := c.DefaultQuery("interval", "1m")

	candles := s.hub.PreloadRange(symbol, interval, from, to)
	c.JSON(200, gin.H{
		"symbol":   symbol,
		"interval": interval,
		"candles":  candles,
	})
}

// -----------------------------------------------------------------------------

func (s *FeedServer) getVolumeProfile(c *gin.Context) {
	symbol := c.Query("symbol")
	from, errFrom := strconv.ParseInt(c.Query("from"), 10, 64)
	to, errTo := strconv.ParseInt(c.Query("to"), 10, 64)
	if symbol == "" || errFrom != nil || errTo != nil || to <= from {
		c.JSON(400, gin.H{"error": "symbol, from and to (epoch seconds, from < to) are required"})
		return
	}
	interval := c.DefaultQuery("interval", "1m")
	levels, _ := strconv.Atoi(c.DefaultQuery("levels", "50"))

	profile := s.hub.VolumeProfileRange(symbol, interval, from, to, levels)
	c.JSON(200, gin.H{
		"symbol": symbol,
		"levels": profile,
	})
}
