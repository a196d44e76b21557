package handlers

import (
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
)

// Router builds the gin engine with every route mounted.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.SetHTMLTemplate(templates)

	r.Use(
		requestid.New(),
		RequestLogger(h.log),
		gin.CustomRecovery(h.Recover),
		NoCache(),
	)
	r.NoRoute(h.NotFound)
	r.NoMethod(h.MethodNotAllowed)

	r.GET("/health", h.Health)

	r.GET("/login", h.Login)
	r.POST("/login", h.Login)
	r.GET("/logout", h.Logout)
	r.GET("/register", h.RegisterForm)
	r.POST("/register", h.Register)

	authed := r.Group("/", h.RequireLogin())
	{
		authed.GET("/", h.Index)
		authed.GET("/history", h.History)
		authed.GET("/quote", h.QuoteForm)
		authed.POST("/quote", h.Quote)
		authed.GET("/buy", h.BuyForm)
		authed.POST("/buy", h.Buy)
		authed.GET("/sell", h.SellForm)
		authed.POST("/sell", h.Sell)
		authed.GET("/ws/prices", h.PriceStream)
	}

	return r
}
