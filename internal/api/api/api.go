package api

import (
	"net/http"

	"eventreg/cmd/middleware"
	"eventreg/internal/service"

	"github.com/gin-contrib/cors"
	"github.com/wb-go/wbf/ginext"
)

type Routers struct {
	Service service.Service
	Mode    string
}

func NewRouters(r *Routers) *ginext.Engine {
	mode := r.Mode
	if mode == "" {
		mode = "release"
	}
	app := ginext.New(mode)

	app.Use(middleware.LoggingMiddleware())
	app.Use(cors.Default())

	app.GET("/healthz", r.Service.Health)
	app.StaticFS("/static", service.StaticFS())

	pages := app.Group("/")
	pages.Use(r.Service.Sessions)
	pages.GET("/", func(c *ginext.Context) {
		c.Redirect(http.StatusSeeOther, "/events")
	})
	pages.GET("/events", r.Service.ListEvents)
	pages.GET("/events/:id/register", r.Service.RegisterPage)
	pages.POST("/events/:id/register", r.Service.Register)
	pages.GET("/login", r.Service.LoginPage)
	pages.POST("/login", r.Service.Login)
	pages.POST("/logout", r.Service.Logout)

	apiGroup := app.Group("/api/v1")
	apiGroup.Use(r.Service.Sessions)
	apiGroup.GET("/session", r.Service.SessionInfo)
	apiGroup.POST("/events/:id/register", r.Service.RegisterJSON)

	return app
}
