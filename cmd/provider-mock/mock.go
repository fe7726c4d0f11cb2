package main

import (
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// SendEmailRequest mirrors what the gateway's email API client posts.
type SendEmailRequest struct {
	ID      string   `json:"id" binding:"required"`
	From    string   `json:"from" binding:"required"`
	To      []string `json:"to" binding:"required,min=1"`
	Subject string   `json:"subject" binding:"required"`
	HTML    string   `json:"html"`
	Text    string   `json:"text"`
	Tag     string   `json:"tag"`
}

type SendEmailResponse struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	Provider   string    `json:"provider"`
	AcceptedAt time.Time `json:"accepted_at"`
}

type HealthResponse struct {
	Status      string    `json:"status"`
	ProviderID  string    `json:"provider_id"`
	Timestamp   time.Time `json:"timestamp"`
	SuccessRate float64   `json:"success_rate"`
}

type pushRecord struct {
	Endpoint   string    `json:"endpoint"`
	TTL        string    `json:"ttl"`
	Urgency    string    `json:"urgency"`
	Bytes      int       `json:"bytes"`
	ReceivedAt time.Time `json:"received_at"`
}

// MockProvider simulates the transactional email API and a Web Push service.
// Push endpoints whose id starts with "gone-" answer 410 like an expired
// browser subscription.
type MockProvider struct {
	mu          sync.Mutex
	successRate float64
	minDelay    time.Duration
	maxDelay    time.Duration
	providerID  string
	rng         *rand.Rand
	emails      []SendEmailRequest
	pushes      []pushRecord
}

func NewMockProvider(successRate float64, minDelay, maxDelay time.Duration) *MockProvider {
	return &MockProvider{
		successRate: successRate,
		minDelay:    minDelay,
		maxDelay:    maxDelay,
		providerID:  "MOCK_PROVIDER_" + uuid.New().String()[:8],
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (m *MockProvider) delay() {
	m.mu.Lock()
	d := m.minDelay
	if delta := m.maxDelay - m.minDelay; delta > 0 {
		d += time.Duration(m.rng.Int63n(int64(delta)))
	}
	m.mu.Unlock()
	time.Sleep(d)
}

func (m *MockProvider) succeed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rng.Float64() < m.successRate
}

func (m *MockProvider) SendEmail(c *gin.Context) {
	var req SendEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	m.delay()
	if !m.succeed() {
		log.Warn().Str("id", req.ID).Strs("to", req.To).Msg("email rejected")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "provider temporarily unavailable"})
		return
	}

	m.mu.Lock()
	m.emails = append(m.emails, req)
	m.mu.Unlock()

	log.Info().Str("id", req.ID).Strs("to", req.To).Str("subject", req.Subject).Msg("email accepted")
	c.JSON(http.StatusAccepted, SendEmailResponse{
		ID:         req.ID,
		Status:     "queued",
		Provider:   m.providerID,
		AcceptedAt: time.Now().UTC(),
	})
}

func (m *MockProvider) ListEmails(c *gin.Context) {
	m.mu.Lock()
	out := append([]SendEmailRequest(nil), m.emails...)
	m.mu.Unlock()
	c.JSON(http.StatusOK, out)
}

func (m *MockProvider) ReceivePush(c *gin.Context) {
	id := c.Param("id")
	body, _ := c.GetRawData()

	if strings.HasPrefix(id, "gone-") {
		log.Info().Str("subscription", id).Msg("push subscription expired")
		c.Status(http.StatusGone)
		return
	}
	if c.GetHeader("Content-Encoding") != "aes128gcm" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payload must be aes128gcm encrypted"})
		return
	}
	if !m.succeed() {
		c.Status(http.StatusTooManyRequests)
		return
	}

	rec := pushRecord{
		Endpoint:   c.Request.URL.Path,
		TTL:        c.GetHeader("TTL"),
		Urgency:    c.GetHeader("Urgency"),
		Bytes:      len(body),
		ReceivedAt: time.Now().UTC(),
	}
	m.mu.Lock()
	m.pushes = append(m.pushes, rec)
	m.mu.Unlock()

	log.Info().Str("subscription", id).Str("urgency", rec.Urgency).Int("bytes", rec.Bytes).Msg("push received")
	c.Header("Location", "/push/messages/"+uuid.NewString())
	c.Status(http.StatusCreated)
}

func (m *MockProvider) ListPushes(c *gin.Context) {
	m.mu.Lock()
	out := append([]pushRecord(nil), m.pushes...)
	m.mu.Unlock()
	c.JSON(http.StatusOK, out)
}

func (m *MockProvider) HealthCheck(c *gin.Context) {
	m.mu.Lock()
	rate := m.successRate
	m.mu.Unlock()
	c.JSON(http.StatusOK, HealthResponse{
		Status:      "healthy",
		ProviderID:  m.providerID,
		Timestamp:   time.Now().UTC(),
		SuccessRate: rate,
	})
}

// UpdateConfig changes the simulated success rate at runtime.
func (m *MockProvider) UpdateConfig(c *gin.Context) {
	var cfg struct {
		SuccessRate *float64 `json:"success_rate"`
	}
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}
	m.mu.Lock()
	if cfg.SuccessRate != nil && *cfg.SuccessRate >= 0 && *cfg.SuccessRate <= 1 {
		m.successRate = *cfg.SuccessRate
		log.Info().Float64("rate", m.successRate).Msg("updated success rate")
	}
	rate := m.successRate
	m.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"message": "Configuration updated", "success_rate": rate})
}

func SetupRouter(m *MockProvider) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request processed")
	})

	v1 := router.Group("/api/v1")
	{
		v1.POST("/emails", m.SendEmail)
		v1.GET("/emails", m.ListEmails)
		v1.PUT("/config", m.UpdateConfig)
	}
	router.POST("/push/:id", m.ReceivePush)
	router.GET("/push", m.ListPushes)
	router.GET("/health", m.HealthCheck)
	return router
}
