package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"presence/internal/attendance"
	"presence/internal/auth"
	"presence/internal/config"
	"presence/internal/httpmiddleware"
	"presence/internal/model"
	"presence/internal/notify"
	"presence/internal/otp"
	"presence/internal/queue"
	"presence/internal/store"
	"presence/internal/store/memory"
	"presence/internal/store/postgres"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	var (
		st      store.Store
		pg      *postgres.Store
		healthy func() bool
	)
	if cfg.StoreBackend == "memory" {
		st = memory.NewStore()
		healthy = func() bool { return true }
		log.Println("using in-memory store (data is not durable)")
	} else {
		var err error
		pg, err = postgres.NewStore(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pg.Close()
		st = pg
		healthy = pg.Healthy
	}

	redisClient := queue.NewRedisClient(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient, "presence:notifications")
	}

	svc := attendance.NewService(st, notify.NewPublisher(q), attendance.Cutoff{
		Location: cfg.CutoffLocation(),
		Hour:     cfg.CutoffHour,
		Minute:   cfg.CutoffMinute,
	}, cfg.ClassCloseHour)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := queue.RedisHealthy(c.Request.Context(), redisClient)
		dbHealthy := healthy()
		status := http.StatusOK
		// Redis only gates health when it actually backs the queue.
		if !dbHealthy || (cfg.QueueBackend != "memory" && !redisHealthy) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	// Stub for the external authentication collaborator: issues a signed
	// identity the rest of the API trusts completely.
	r.POST("/v1/auth/token", func(c *gin.Context) {
		var req struct {
			Subject string `json:"subject" binding:"required"`
			Role    string `json:"role" binding:"required,oneof=student staff instructor"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		tokens, err := auth.Issue(req.Subject, model.Role(req.Role), cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	authGroup := r.Group("/v1", auth.RequireAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	authGroup.GET("/office/session", func(c *gin.Context) {
		caller := callerFrom(c)
		if !caller.Role.Staff() {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		sess, err := svc.OfficeSession(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		scan, err := otp.EncodeToken(otp.OfficeToken{Secret: sess.Secret, Session: sess.SessionToken})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"date_key":     sess.DateKey,
			"code":         sess.Code,
			"display_code": otp.FormatCode(sess.Code),
			"scan_token":   scan,
		})
	})

	authGroup.POST("/office/signin", func(c *gin.Context) {
		var req struct {
			Code      string `json:"code"`
			Secret    string `json:"secret"`
			Session   string `json:"session"`
			ScanToken string `json:"scan_token"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		in := attendance.SignInInput{Code: req.Code, Secret: req.Secret, Session: req.Session}
		if req.ScanToken != "" {
			var tok otp.OfficeToken
			if err := otp.DecodeToken(req.ScanToken, &tok); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "malformed scan token"})
				return
			}
			in.Secret, in.Session = tok.Secret, tok.Session
		}
		evt, err := svc.SignIn(c.Request.Context(), callerFrom(c), in)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"event": evt})
	})

	authGroup.GET("/office/events", func(c *gin.Context) {
		limit, offset := 50, 0
		if v := c.Query("limit"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				limit = parsed
			}
		}
		if v := c.Query("offset"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				offset = parsed
			}
		}
		events, err := svc.ListEvents(c.Request.Context(), callerFrom(c), c.Query("user_id"), limit, offset)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"events": events})
	})

	authGroup.POST("/classes/:id/session", func(c *gin.Context) {
		sess, err := svc.RotateClassSession(c.Request.Context(), callerFrom(c), c.Param("id"))
		if err != nil {
			respondErr(c, err)
			return
		}
		scan, err := otp.EncodeToken(otp.ClassToken{ClassID: sess.ClassID, Barcode: sess.Barcode, DateKey: sess.DateKey})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"session":    sess,
			"scan_token": scan,
		})
	})

	authGroup.GET("/classes/:id/session", func(c *gin.Context) {
		sess, err := svc.ClassSessionToday(c.Request.Context(), callerFrom(c), c.Param("id"))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"session": sess})
	})

	authGroup.POST("/classes/:id/attendance", func(c *gin.Context) {
		var req struct {
			StudentID string `json:"student_id" binding:"required"`
			Date      string `json:"date"`
			Status    string `json:"status" binding:"required,oneof=present absent"`
			Method    string `json:"method" binding:"required,oneof=pin barcode manual"`
			PIN       string `json:"pin"`
			Barcode   string `json:"barcode"`
			ScanToken string `json:"scan_token"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		in := attendance.RecordInput{
			StudentID: req.StudentID,
			ClassID:   c.Param("id"),
			Status:    model.ClassStatus(req.Status),
			Method:    model.Method(req.Method),
			PIN:       req.PIN,
			Barcode:   req.Barcode,
		}
		if req.Date != "" {
			date, err := time.Parse(time.RFC3339, req.Date)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "date must be RFC3339"})
				return
			}
			in.Date = date
		}
		if req.ScanToken != "" {
			var tok otp.ClassToken
			if err := otp.DecodeToken(req.ScanToken, &tok); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "malformed scan token"})
				return
			}
			in.Barcode = tok.Barcode
		}
		rec, err := svc.RecordClassAttendance(c.Request.Context(), callerFrom(c), in)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"record": rec})
	})

	// Directory management, staff only. Backs the enrollment/class
	// directory the decision procedures consult.
	authGroup.PUT("/classes/:id", func(c *gin.Context) {
		if !callerFrom(c).Role.Staff() {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		var req struct {
			Name   string `json:"name"`
			Status string `json:"status" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := st.UpsertClass(c.Request.Context(), model.Class{ID: c.Param("id"), Name: req.Name, Status: req.Status}); err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authGroup.PUT("/classes/:id/enrollments/:studentId", func(c *gin.Context) {
		if !callerFrom(c).Role.Staff() {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		var req struct {
			Status string `json:"status" binding:"required,oneof=active inactive dropped"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		e := model.Enrollment{
			StudentID: c.Param("studentId"),
			ClassID:   c.Param("id"),
			Status:    model.EnrollmentStatus(req.Status),
		}
		if err := st.UpsertEnrollment(c.Request.Context(), e); err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// callerFrom converts parsed JWT claims into the service's caller identity.
func callerFrom(c *gin.Context) attendance.Caller {
	claims, ok := auth.ClaimsFrom(c)
	if !ok {
		return attendance.Caller{}
	}
	return attendance.Caller{ID: claims.Subject, Role: claims.Role}
}

// respondErr maps decision-procedure errors onto HTTP statuses.
func respondErr(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, attendance.ErrUnauthenticated), errors.Is(err, attendance.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, attendance.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, attendance.ErrNotEnrolled),
		errors.Is(err, attendance.ErrEnrollmentInactive),
		errors.Is(err, attendance.ErrClassInactive):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, attendance.ErrNoActiveSession), errors.Is(err, attendance.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, attendance.ErrSessionExpired):
		status = http.StatusGone
	case errors.Is(err, attendance.ErrInvalidCode):
		status = http.StatusBadRequest
	case errors.Is(err, attendance.ErrConflict):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		log.Printf("internal error: %v", err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
