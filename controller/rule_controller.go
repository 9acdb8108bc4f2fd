package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/visaeagle/VisaEagle-backend/models"
	service "github.com/visaeagle/VisaEagle-backend/service"
	"gorm.io/gorm"
)

// RuleController manages CRUD over persisted compliance rules. Changes only
// reach the engine after a reload.
type RuleController struct {
	db *gorm.DB
}

func NewRuleController(db *gorm.DB) *RuleController {
	return &RuleController{db: db}
}

// AddRule validates and persists a rule definition.
func (c *RuleController) AddRule(ctx *gin.Context) {
	var def models.RuleDefinition
	if err := ctx.ShouldBindJSON(&def); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := service.ValidateRuleDefinition(&def); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	row, err := models.FromDefinition(def)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := c.db.Create(&row).Error; err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusCreated, row)
}

// GetAllRules returns every persisted rule definition.
func (c *RuleController) GetAllRules(ctx *gin.Context) {
	var rows []models.ComplianceRule
	if err := c.db.Find(&rows).Error; err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	defs := make([]models.RuleDefinition, 0, len(rows))
	for _, row := range rows {
		def, err := row.ToDefinition()
		if err != nil {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		defs = append(defs, def)
	}
	ctx.JSON(http.StatusOK, defs)
}

// GetRule returns one persisted rule by its rule ID.
func (c *RuleController) GetRule(ctx *gin.Context) {
	ruleID := ctx.Param("id")
	if ruleID == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Rule ID required"})
		return
	}

	var row models.ComplianceRule
	if err := c.db.First(&row, "rule_id = ?", ruleID).Error; err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Rule not found"})
		return
	}
	def, err := row.ToDefinition()
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, def)
}
