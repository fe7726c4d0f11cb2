package handlers

import (
	"context"
	"errors"
	"testing"

	xhttp "github.com/nimasrn/studio-gateway/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockHealthService struct {
	mock.Mock
}

func (m *MockHealthService) Check(ctx context.Context) (map[string]string, error) {
	args := m.Called(ctx)
	return args.Get(0).(map[string]string), args.Error(1)
}

func TestHealthHandler_GetHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		svc := new(MockHealthService)
		svc.On("Check", mock.Anything).Return(map[string]string{"postgres": "ok", "redis": "ok"}, nil)

		ctx := setupTestContext("GET", "/health", nil)
		NewHealthHandler(svc).GetHealth(ctx)

		assert.Equal(t, xhttp.StatusOK, ctx.Response.StatusCode())
		body := decode(t, ctx)
		assert.Equal(t, "ok", body["status"])
	})

	t.Run("dependency down", func(t *testing.T) {
		svc := new(MockHealthService)
		svc.On("Check", mock.Anything).Return(map[string]string{"postgres": "ok", "redis": "dial tcp: refused"}, errors.New("redis: dial tcp: refused"))

		ctx := setupTestContext("GET", "/health", nil)
		NewHealthHandler(svc).GetHealth(ctx)

		assert.Equal(t, xhttp.StatusServiceUnavailable, ctx.Response.StatusCode())
		body := decode(t, ctx)
		assert.Equal(t, "degraded", body["status"])
		assert.Equal(t, "dial tcp: refused", body["checks"].(map[string]any)["redis"])
	})
}
