package main

import (
	"log"
	"net/http"

	controller "github.com/visaeagle/VisaEagle-backend/controller"
	"github.com/visaeagle/VisaEagle-backend/initializers"
	middleware "github.com/visaeagle/VisaEagle-backend/middleware"
	service "github.com/visaeagle/VisaEagle-backend/service"

	"github.com/gin-gonic/gin"
)

func init() {
	if err := initializers.LoadEnv(); err != nil {
		log.Printf("[WARN] No .env file loaded: %s", err)
	}
	if err := initializers.ConnectDB(); err != nil {
		log.Fatalf("[CRITICAL] Failed to initialize database connection: %s", err)
	}
	if err := initializers.Migrate(); err != nil {
		log.Fatalf("[CRITICAL] Failed to run migrations: %s", err)
	}
}

func main() {
	provider := service.NewGormStudentProvider(initializers.DB)
	search := service.NewSearchService()

	sources := []service.RuleSource{
		service.NewEmbeddedRuleSource(),
		service.NewDatabaseRuleSource(initializers.DB),
	}
	if s3Source, err := service.NewS3RuleSourceFromEnv(); err != nil {
		log.Printf("[WARN] S3 rule source disabled: %s", err)
	} else {
		sources = append(sources, s3Source)
	}

	loader := service.NewRuleLoader(service.DefaultEngineConfig().CacheTTL, sources...)
	defs, err := loader.LoadAll()
	if err != nil {
		log.Fatalf("[CRITICAL] Failed to load rules: %s", err)
	}

	engine := service.NewRuleEngine(
		service.DefaultEngineConfig(),
		service.NewContextBuilder(provider),
		service.NewRuleEvaluator(),
		service.NewDateCalculator(),
		service.NewTemplateRenderer(),
		service.NewDependencyResolver(),
		nil,
		search,
	)
	if err := engine.LoadRules(defs); err != nil {
		log.Fatalf("[CRITICAL] Failed to install rules: %s", err)
	}

	engineController := controller.NewEngineController(engine, loader, provider, search)
	ruleController := controller.NewRuleController(initializers.DB)

	router := gin.Default()
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.GlobalRateLimiter.Limit())

	// Evaluation endpoints with stricter rate limiting
	router.POST("/evaluate/:id",
		middleware.StrictRateLimiter.Limit(),
		engineController.EvaluateStudent)
	router.GET("/tasks/:id", engineController.GetTasks)
	router.PUT("/cache/:id/invalidate", engineController.InvalidateCache)

	// Rule management endpoints
	router.POST("/rules",
		middleware.StrictRateLimiter.Limit(),
		ruleController.AddRule)
	router.GET("/rules", ruleController.GetAllRules)
	router.GET("/rules/:id", ruleController.GetRule)
	router.POST("/rules/reload",
		middleware.StrictRateLimiter.Limit(),
		engineController.ReloadRules)

	router.GET("/search", engineController.SearchRules)

	// Healthcheck endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "rules": engine.GetRulesCount()})
	})

	router.Run(":8080")
}
