package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/preschool-homework-api/internal/handler"
	"github.com/noah-isme/preschool-homework-api/internal/models"
	"github.com/noah-isme/preschool-homework-api/internal/service"
	"github.com/noah-isme/preschool-homework-api/pkg/config"
)

func TestRouterRoleGates(t *testing.T) {
	gin.SetMode(gin.TestMode)

	auth := service.NewAuthService(nil, service.AuthConfig{AccessTokenSecret: "secret", AccessTokenExpiry: time.Hour})
	cfg := &config.Config{Env: config.EnvProduction, APIPrefix: "/api/v1"}
	r := newRouter(cfg, zap.NewNop(), routerDeps{
		auth:         auth,
		homework:     handler.NewHomeworkHandler(nil, nil),
		submissions:  handler.NewSubmissionHandler(nil),
		notification: handler.NewNotificationHandler(nil),
		maintenance:  handler.NewMaintenanceHandler(nil),
		health:       handler.NewMetricsHandler(nil, nil),
	})

	token := func(role models.UserRole) string {
		signed, _, err := auth.IssueToken("user-1", role, "", 0)
		require.NoError(t, err)
		return "Bearer " + signed
	}

	cases := []struct {
		name   string
		method string
		path   string
		auth   string
		status int
	}{
		{name: "health is public", method: http.MethodGet, path: "/health", status: http.StatusOK},
		{name: "missing token", method: http.MethodGet, path: "/api/v1/teacher/homework", status: http.StatusUnauthorized},
		{name: "parent cannot create", method: http.MethodPost, path: "/api/v1/homework", auth: token(models.RoleParent), status: http.StatusForbidden},
		{name: "teacher cannot submit", method: http.MethodPost, path: "/api/v1/homework/hw-1/submissions", auth: token(models.RoleTeacher), status: http.StatusForbidden},
		{name: "teacher cannot delete", method: http.MethodDelete, path: "/api/v1/homework/hw-1", auth: token(models.RoleTeacher), status: http.StatusForbidden},
		{name: "parent cannot review", method: http.MethodGet, path: "/api/v1/homework/hw-1/submissions", auth: token(models.RoleParent), status: http.StatusForbidden},
		{name: "teacher cannot repair", method: http.MethodPost, path: "/api/v1/admin/homework/repair-classes", auth: token(models.RoleTeacher), status: http.StatusForbidden},
		{name: "docs hidden in production", method: http.MethodGet, path: "/docs/index.html", status: http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			if tc.auth != "" {
				req.Header.Set("Authorization", tc.auth)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}
