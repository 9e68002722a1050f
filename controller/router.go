package controller

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"trust-fund-service/conf"
	"trust-fund-service/controller/handler"
	"trust-fund-service/controller/respond"
	"trust-fund-service/docs"
	"trust-fund-service/service/dashboard_service"
	"trust-fund-service/service/identity_service"
	"trust-fund-service/service/ledger_service"
	"trust-fund-service/service/mirror_service"
	"trust-fund-service/service/project_service"
	"trust-fund-service/service/storage_service"
)

// Services everything the HTTP surface calls into
type Services struct {
	Identity  *identity_service.IdentityService
	Ledger    *ledger_service.LedgerService
	Projects  *project_service.ProjectService
	Dashboard *dashboard_service.DashboardService
	Mirror    *mirror_service.MirrorService
	Storage   *storage_service.StorageService
}

// SetupRouter setup trust fund service router
func SetupRouter(cfg *conf.Config, s *Services) *gin.Engine {
	// Set Swagger host from config
	if cfg.Server.SwaggerBaseUrl != "" {
		docs.SwaggerInfo.Host = cfg.Server.SwaggerBaseUrl
	}

	r := gin.Default()
	r.MaxMultipartMemory = int64(cfg.Server.MaxUploadMB) << 20

	origins := cfg.Server.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH", "HEAD"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", "Accept-Encoding", "Authorization", "Accept", "Cache-Control", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * 3600, // 12 hours
	}))

	r.Use(respond.TimingMiddleware())

	auth := handler.NewAuthMiddleware(s.Identity, cfg.Auth.CookieName)
	authHandler := handler.NewAuthHandler(s.Identity, s.Dashboard, handler.CookieOptions{
		Name:   cfg.Auth.CookieName,
		Secure: cfg.Auth.CookieSecure,
	})
	projectHandler := handler.NewProjectHandler(s.Projects, s.Ledger, s.Mirror)
	milestoneHandler := handler.NewMilestoneHandler(s.Projects, s.Mirror)
	chainHandler := handler.NewChainHandler(s.Mirror)
	uploadHandler := handler.NewUploadHandler(s.Storage)

	v1 := r.Group(cfg.Server.PathPrefix + "/api/v1")
	{
		v1.POST("/auth/web3", authHandler.LoginWeb3)
		v1.POST("/auth/logout", authHandler.Logout)
		v1.GET("/me", auth.Required(), authHandler.Me)
		v1.GET("/me/dashboard", auth.Required(), authHandler.Dashboard)
		v1.POST("/users/info", auth.Required(), authHandler.UpdateProfile)

		projects := v1.Group("/projects")
		{
			projects.GET("", projectHandler.ListProjects)
			projects.POST("", auth.Required(), projectHandler.CreateProject)
			projects.GET("/:id", auth.Optional(), projectHandler.GetProject)
			projects.PUT("/:id", auth.Required(), projectHandler.UpdateProject)
			projects.DELETE("/:id", auth.Required(), projectHandler.DeleteProject)
			projects.POST("/:id/chain-link", auth.Required(), projectHandler.LinkChain)

			projects.GET("/:id/contributions", projectHandler.ListContributions)
			projects.POST("/:id/contributions", auth.Required(), projectHandler.Contribute)

			milestones := projects.Group("/:id/milestones/:milestoneId")
			{
				milestones.POST("/request", auth.Required(), milestoneHandler.RequestCompletion)
				milestones.GET("/completion-info", milestoneHandler.CompletionInfo)
				milestones.GET("/tally", auth.Optional(), milestoneHandler.Tally)
				milestones.POST("/vote", auth.Required(), milestoneHandler.Vote)
				milestones.POST("/resolve", auth.Required(), milestoneHandler.Resolve)
			}
		}

		v1.GET("/mirror/:txRef", chainHandler.GetMirrorWrite)
		v1.GET("/chain/status", chainHandler.GetChainStatus)
		v1.POST("/upload/image", auth.Required(), uploadHandler.UploadImage)
	}

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "trust-fund",
		})
	})

	// Swagger documentation
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler,
		ginSwagger.InstanceName("swagger")))

	return r
}
