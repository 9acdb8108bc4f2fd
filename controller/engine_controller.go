package controller

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	service "github.com/visaeagle/VisaEagle-backend/service"
)

// EngineController manages HTTP requests around rule evaluation.
type EngineController struct {
	engine   *service.RuleEngine
	loader   *service.RuleLoader
	provider service.StudentDataProvider
	search   *service.SearchService
}

func NewEngineController(engine *service.RuleEngine, loader *service.RuleLoader, provider service.StudentDataProvider, search *service.SearchService) *EngineController {
	return &EngineController{engine: engine, loader: loader, provider: provider, search: search}
}

// EvaluateStudent runs a full evaluation pass for one student and returns
// the result, optionally persisting the generated tasks.
func (c *EngineController) EvaluateStudent(ctx *gin.Context) {
	studentID := ctx.Param("id")
	if studentID == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Student ID required"})
		return
	}

	result, err := c.engine.EvaluateForStudent(studentID)
	if err != nil {
		log.Printf("[EvaluateStudent] Evaluation failed for %s: %v", studentID, err)
		ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	if ctx.Query("persist") == "true" {
		if err := c.provider.SaveTasks(studentID, result.GeneratedTasks); err != nil {
			log.Printf("[EvaluateStudent] Failed to persist tasks for %s: %v", studentID, err)
			ctx.JSON(http.StatusOK, gin.H{
				"result":  result,
				"warning": "evaluation succeeded but tasks could not be persisted",
			})
			return
		}
	}

	ctx.JSON(http.StatusOK, result)
}

// GetTasks evaluates and returns only the generated task list.
func (c *EngineController) GetTasks(ctx *gin.Context) {
	studentID := ctx.Param("id")
	if studentID == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Student ID required"})
		return
	}

	result, err := c.engine.EvaluateForStudent(studentID)
	if err != nil {
		ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"message": "Tasks generated successfully",
		"tasks":   result.GeneratedTasks,
		"errors":  result.Errors,
	})
}

// InvalidateCache drops a student's cached evaluation.
func (c *EngineController) InvalidateCache(ctx *gin.Context) {
	studentID := ctx.Param("id")
	if studentID == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Student ID required"})
		return
	}
	c.engine.InvalidateCache(studentID)
	ctx.JSON(http.StatusOK, gin.H{"message": "Cache invalidated"})
}

// ReloadRules clears the loader cache, reloads every source and swaps the
// engine's rule set.
func (c *EngineController) ReloadRules(ctx *gin.Context) {
	defs, err := c.loader.Reload()
	if err != nil {
		log.Printf("[ReloadRules] Reload failed: %v", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := c.engine.LoadRules(defs); err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"message": "Rules reloaded successfully",
		"count":   c.engine.GetRulesCount(),
	})
}

// SearchRules proxies a full-text rule search to Elasticsearch.
func (c *EngineController) SearchRules(ctx *gin.Context) {
	query := ctx.Query("q")
	if query == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Query parameter 'q' required"})
		return
	}
	rules, err := c.search.SearchRules(query)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"results": rules})
}
