package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"catalogserver/server/middleware"
	"catalogserver/server/types"
)

// handleHealth проверка живости сервера
func (s *Server) handleHealth(c *gin.Context) {
	view := s.snapshots.Current()

	status := gin.H{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	}
	if view != nil {
		status["snapshot_run_id"] = view.RunID
		status["masters"] = len(view.Masters)
	} else {
		status["snapshot_run_id"] = nil
	}

	c.JSON(http.StatusOK, status)
}

// handleImport принимает прайс-лист (multipart) и запускает прогон
func (s *Server) handleImport(c *gin.Context) {
	supplierID, err := strconv.ParseInt(c.PostForm("supplier_id"), 10, 64)
	if err != nil || supplierID <= 0 {
		middleware.AbortWithValidationError(c, "supplier_id обязателен и должен быть положительным числом", err)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		middleware.AbortWithValidationError(c, "файл прайс-листа обязателен (поле file)", err)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		middleware.AbortWithValidationError(c, "не удалось открыть загруженный файл", err)
		return
	}
	defer file.Close()

	resp, err := s.pipelineService.ImportPriceList(c.Request.Context(), file, fileHeader.Filename, supplierID)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// handleResolve точечный запрос: самая дешевая допустимая замена
func (s *Server) handleResolve(c *gin.Context) {
	var req types.ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortWithValidationError(c, "некорректное тело запроса", err)
		return
	}

	resp, err := s.matchingService.Resolve(&req)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// handleSearch быстрый поиск по каталогу
func (s *Server) handleSearch(c *gin.Context) {
	query := c.Query("q")
	limit := 50
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	resp, err := s.searchService.Search(query, limit)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// handleListRuns журнал прогонов
func (s *Server) handleListRuns(c *gin.Context) {
	limit := 20
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	runs, err := s.pipelineService.ListRuns(limit)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"total": len(runs), "runs": runs})
}

// handleGetRun одна запись журнала прогонов
func (s *Server) handleGetRun(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		middleware.AbortWithValidationError(c, "идентификатор прогона должен быть числом", err)
		return
	}

	run, err := s.pipelineService.GetRun(id)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, run)
}

// handleListRulesets список версий наборов правил
func (s *Server) handleListRulesets(c *gin.Context) {
	infos, err := s.rulesetService.ListRulesets()
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"total": len(infos), "rulesets": infos})
}

// handleActiveRuleset активный набор правил целиком
func (s *Server) handleActiveRuleset(c *gin.Context) {
	rs, err := s.rulesetService.ActiveRuleset()
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, rs)
}

// handleGetRuleset содержимое версии набора правил
func (s *Server) handleGetRuleset(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		middleware.AbortWithValidationError(c, "идентификатор набора правил должен быть числом", err)
		return
	}

	rs, err := s.rulesetService.GetRuleset(id)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, rs)
}

// handleExportMarket выгрузка текущего среза рынка в XLSX
func (s *Server) handleExportMarket(c *gin.Context) {
	f, err := s.reportService.ExportMarketSnapshot()
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	defer f.Close()

	c.Header("Content-Disposition", `attachment; filename="`+s.reportService.ReportFilename()+`"`)
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")

	if err := f.Write(c.Writer); err != nil {
		s.logger.Error("Не удалось записать XLSX в ответ", "error", err)
	}
}
