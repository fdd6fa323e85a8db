package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rezonia/nfe-auditor/internal/model"
	"github.com/rezonia/nfe-auditor/internal/normalize"
	"github.com/rezonia/nfe-auditor/internal/processor"
	"github.com/rezonia/nfe-auditor/internal/report"
	"github.com/rezonia/nfe-auditor/internal/rules"
)

func (s *Server) handleAudit(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "failed to read request body"})
		return
	}

	if len(body) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "empty request body"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.config.AuditTimeout)
	defer cancel()

	result, err := s.pipeline.Audit(ctx, body)
	if err != nil {
		c.JSON(statusFor(err), ErrorResponse{Error: "audit failed", Details: err.Error()})
		return
	}

	if f := c.Query("format"); f == "markdown" || f == "md" {
		parts := make([]string, 0, len(result.Audits))
		for _, a := range result.Audits {
			parts = append(parts, report.RenderMarkdown(a.Summary))
		}
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(strings.Join(parts, "\n---\n\n")))
		return
	}

	resp := AuditResponse{
		Format:        result.Format.String(),
		Invoices:      len(result.Audits),
		TotalFindings: result.TotalFindings(),
		DurationMS:    result.Duration.Milliseconds(),
		Reports:       result.Summaries(),
	}

	if c.Query("advise") == "true" {
		if s.advisor == nil {
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "advisor not configured"})
			return
		}
		resp.Advice = make(map[string][]string, len(result.Audits))
		for _, a := range result.Audits {
			actions, err := s.advisor.Advise(ctx, a.Summary)
			if err != nil {
				s.logger.Warn("advisor failed", zap.String("chave", a.Invoice.AccessKey), zap.Error(err))
				resp.Warnings = append(resp.Warnings, "advisor failed for "+a.Invoice.AccessKey)
				continue
			}
			resp.Advice[a.Invoice.AccessKey] = actions
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleValidate(c *gin.Context) {
	var inv model.Invoice
	if err := c.ShouldBindJSON(&inv); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid invoice JSON", Details: err.Error()})
		return
	}
	if inv.AccessKey == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "chave_acesso is required"})
		return
	}

	processor.Normalize(&inv)
	inv.ValidationErrors = nil

	errs, err := s.engine.Validate(&inv)
	if err != nil {
		c.JSON(statusFor(err), ErrorResponse{Error: "validation failed", Details: err.Error()})
		return
	}
	if errs == nil {
		errs = []model.ValidationError{}
	}

	counts := model.CountBySeverity(errs)
	c.JSON(http.StatusOK, ValidationResponse{
		AccessKey: inv.AccessKey,
		Valid:     len(errs) == 0,
		Errors:    errs,
		BySeverity: report.SeverityCounts{
			Critical: counts[model.SeverityCritical],
			Error:    counts[model.SeverityError],
			Warning:  counts[model.SeverityWarning],
		},
	})
}

func (s *Server) handleRuleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.rules.Statistics())
}

func (s *Server) handleNcm(c *gin.Context) {
	code := normalize.NCM(c.Param("code"))
	rule, ok := s.rules.NcmRule(code)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "NCM not found", Details: code})
		return
	}
	c.JSON(http.StatusOK, NcmResponse{NcmRule: rule, Formatted: normalize.FormatNCM(rule.Code)})
}

func (s *Server) handleCst(c *gin.Context) {
	cst := normalize.CST(c.Param("cst"))
	rule, ok := s.rules.PisCofinsRule(cst)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "CST not found", Details: cst})
		return
	}

	resp := CstResponse{PisCofinsRule: rule}
	if q := c.Query("regime"); q != "" {
		regime, err := model.ParseRegime(q)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid regime", Details: err.Error()})
			return
		}
		if rates, err := s.rules.PisCofinsRates(cst, regime); err == nil {
			resp.Regime = regime
			resp.Rates = &rates
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleCfop(c *gin.Context) {
	code := normalize.CFOP(c.Param("code"))
	rule, ok := s.rules.CfopRule(code)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "CFOP not found", Details: code})
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (s *Server) handleLegal(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	refs := s.rules.AllLegalReferences()
	if q != "" {
		refs = s.rules.SearchLegalReferences(q)
	}
	if refs == nil {
		refs = []rules.LegalReference{}
	}
	c.JSON(http.StatusOK, LegalResponse{Query: q, Count: len(refs), References: refs})
}

func (s *Server) handleCheck(c *gin.Context) {
	var req CheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request", Details: err.Error()})
		return
	}

	c.JSON(http.StatusOK, s.rules.ValidateTaxConfiguration(req.NCM, req.PisCST, req.CofinsCST, req.CFOP))
}

// statusFor maps pipeline errors to HTTP statuses
func statusFor(err error) int {
	var parseErr *model.ParseError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	case errors.Is(err, model.ErrUnsupportedRegime), errors.As(err, &parseErr):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
