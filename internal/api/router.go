package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/justyntemme/bookhaven/internal/auth"
)

// NewRouter wires every route onto a gin engine
func NewRouter(handler *Handler, authHandler *AuthHandler, tokens *auth.Tokens) *gin.Engine {
	r := gin.Default()

	r.Use(corsMiddleware())

	r.GET("/health", handler.HealthCheck)
	r.GET("/uploads/:file", handler.ServeUpload)

	apiGroup := r.Group("/api")
	{
		// Auth routes (public)
		authGroup := apiGroup.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
		}

		protected := apiGroup.Group("")
		protected.Use(auth.Middleware(tokens), authHandler.RequireUser())
		{
			protected.GET("/auth/me", authHandler.GetCurrentUser)

			// Books
			protected.GET("/books", handler.ListBooks)
			protected.POST("/books", handler.UploadBook)
			protected.GET("/books/:id", handler.GetBook)
			protected.DELETE("/books/:id", handler.DeleteBook)
			protected.GET("/books/:id/extract-text", handler.ExtractText)

			// Reading progress
			protected.GET("/reading/progress/:book_id", handler.GetProgress)
			protected.PUT("/reading/progress/:book_id", handler.UpdateProgress)
			protected.GET("/reading/stats", handler.GetReadingStats)

			// Bookmarks
			protected.GET("/bookmarks/:book_id", handler.ListBookmarks)
			protected.POST("/bookmarks", handler.CreateBookmark)
			protected.DELETE("/bookmarks/:bookmark_id", handler.DeleteBookmark)

			// Annotations
			protected.GET("/annotations/:book_id", handler.ListAnnotations)
			protected.POST("/annotations", handler.CreateAnnotation)
			protected.DELETE("/annotations/:annotation_id", handler.DeleteAnnotation)

			// Preferences
			protected.GET("/preferences", handler.GetPreferences)
			protected.PUT("/preferences", handler.UpdatePreferences)
		}
	}

	return r
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
