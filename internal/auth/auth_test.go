package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	password := "testpassword123"

	hash, err := HashPassword(password)
	require.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.NotEqual(t, password, hash)
}

func TestCheckPassword(t *testing.T) {
	password := "testpassword123"
	hash, err := HashPassword(password)
	require.NoError(t, err)

	assert.True(t, CheckPassword(password, hash))
	assert.False(t, CheckPassword("wrongpassword", hash))
}

func TestGenerateAndValidate(t *testing.T) {
	tokens := NewTokens("test-secret", 0)

	token, err := tokens.Generate("test-user-id", "testuser")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := tokens.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "test-user-id", claims.UserID())
	assert.Equal(t, "testuser", claims.Username)
	assert.WithinDuration(t, time.Now().Add(DefaultTokenTTL), claims.ExpiresAt.Time, time.Minute)
}

func TestValidate_Invalid(t *testing.T) {
	tokens := NewTokens("test-secret", 0)

	_, err := tokens.Validate("invalid-token")
	assert.Equal(t, ErrInvalidToken, err)
}

func TestValidate_WrongSecret(t *testing.T) {
	token, err := NewTokens("secret-a", 0).Generate("u", "name")
	require.NoError(t, err)

	_, err = NewTokens("secret-b", 0).Validate(token)
	assert.Equal(t, ErrInvalidToken, err)
}

func TestValidate_Expired(t *testing.T) {
	tokens := NewTokens("test-secret", time.Nanosecond)
	token, err := tokens.Generate("u", "name")
	require.NoError(t, err)

	time.Sleep(1100 * time.Millisecond)
	_, err = tokens.Validate(token)
	assert.Equal(t, ErrExpiredToken, err)
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens := NewTokens("test-secret", 0)

	r := gin.New()
	r.GET("/me", Middleware(tokens), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": GetUserID(c), "username": GetUsername(c)})
	})

	token, err := tokens.Generate("user-1", "reader")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusOK},
		{"lowercase scheme", "bearer " + token, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.Contains(t, w.Body.String(), "user-1")
			}
		})
	}
}
