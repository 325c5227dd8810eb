package api

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pbaille/qabot/internal/domain"
	"github.com/pbaille/qabot/internal/ledger"
	"github.com/pbaille/qabot/internal/manual"
	"github.com/pbaille/qabot/internal/provider"
	"github.com/pbaille/qabot/internal/qa"
	"github.com/pbaille/qabot/internal/store"
	"go.uber.org/zap"
)

// SessionResponse describes the caller's session
type SessionResponse struct {
	ID       string                `json:"id"`
	Admin    bool                  `json:"admin"`
	Warnings []string              `json:"warnings"`
	History  []domain.HistoryEntry `json:"history"`
}

func (s *Server) getSession(c *gin.Context) {
	sess := currentSession(c)
	c.JSON(http.StatusOK, SessionResponse{
		ID:       sess.ID,
		Admin:    sess.Admin,
		Warnings: nonNil(sess.Warnings),
		History:  sess.Ledger.Entries(),
	})
}

// AskRequest is the request body for asking a question
type AskRequest struct {
	Question string `json:"question"`
}

// AskResponse is the response for an answered question
type AskResponse struct {
	Entry    domain.HistoryEntry `json:"entry"`
	Score    float64             `json:"score,omitempty"`
	Warnings []string            `json:"warnings,omitempty"`
}

func (s *Server) ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	ans, err := s.opts.QA.Ask(c.Request.Context(), currentSession(c), req.Question)
	switch {
	case errors.Is(err, qa.ErrEmptyQuestion):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"warning": "please enter a question"})
		return
	case provider.IsError(err):
		c.Error(err)
		writeError(c, http.StatusBadGateway, "the answer service failed: "+err.Error())
		return
	case err != nil:
		c.Error(err)
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, AskResponse{
		Entry:    ans.Entry,
		Score:    ans.Resolution.Score,
		Warnings: ans.Warnings,
	})
}

// FeedbackRequest is the request body for rating an answer
type FeedbackRequest struct {
	Value string `json:"value" binding:"required"`
}

func (s *Server) feedback(c *gin.Context) {
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "value is required")
		return
	}

	sess := currentSession(c)
	id := c.Param("id")
	changed, warnings, err := s.opts.QA.Feedback(c.Request.Context(), sess, id, req.Value)
	switch {
	case errors.Is(err, ledger.ErrEntryNotFound):
		writeError(c, http.StatusNotFound, "history entry not found")
		return
	case errors.Is(err, ledger.ErrInvalidFeedback):
		writeError(c, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}

	entry, _ := sess.Ledger.Get(id)
	c.JSON(http.StatusOK, gin.H{
		"changed":  changed,
		"entry":    entry,
		"warnings": nonNil(warnings),
	})
}

func (s *Server) deleteHistory(c *gin.Context) {
	sess := currentSession(c)
	warnings, err := s.opts.QA.Remove(c.Request.Context(), sess, c.Param("id"))
	if errors.Is(err, ledger.ErrEntryNotFound) {
		writeError(c, http.StatusNotFound, "history entry not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"warnings": nonNil(warnings)})
}

// LoginRequest is the request body for the admin gate
type LoginRequest struct {
	Password string `json:"password" binding:"required"`
}

func (s *Server) adminLogin(c *gin.Context) {
	if s.opts.AdminPassword == "" {
		writeError(c, http.StatusServiceUnavailable, "admin is disabled: ADMIN_PASSWORD is not set")
		return
	}
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "password is required")
		return
	}

	sess := currentSession(c)
	if req.Password != s.opts.AdminPassword {
		writeError(c, http.StatusUnauthorized, "wrong password")
		return
	}
	sess.Admin = true
	s.logger.Info("admin login", zap.String("session", sess.ID))
	c.JSON(http.StatusOK, gin.H{"admin": true})
}

func (s *Server) adminLogout(c *gin.Context) {
	currentSession(c).Admin = false
	c.JSON(http.StatusOK, gin.H{"admin": false})
}

// IndexedEntry is a manual entry with its table position
type IndexedEntry struct {
	Index int `json:"index"`
	domain.ManualEntry
}

func (s *Server) listManual(c *gin.Context) {
	entries := currentSession(c).Manual.Entries()
	out := make([]IndexedEntry, len(entries))
	for i, e := range entries {
		out[i] = IndexedEntry{Index: i, ManualEntry: e}
	}
	c.JSON(http.StatusOK, gin.H{"entries": out})
}

// ManualEntryRequest is the request body for adding or updating an entry
type ManualEntryRequest struct {
	Question string `json:"question" binding:"required"`
	Answer   string `json:"answer" binding:"required"`
	Priority *int   `json:"priority"`
}

func (s *Server) addManual(c *gin.Context) {
	var req ManualEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "question and answer are required")
		return
	}
	sess := currentSession(c)
	err := sess.Manual.Add(c.Request.Context(), req.Question, req.Answer, req.Priority)
	s.manualResult(c, http.StatusCreated, err)
}

func (s *Server) updateManual(c *gin.Context) {
	index, ok := indexParam(c)
	if !ok {
		return
	}
	var req ManualEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "question and answer are required")
		return
	}
	sess := currentSession(c)
	err := sess.Manual.Update(c.Request.Context(), index, req.Question, req.Answer, req.Priority)
	s.manualResult(c, http.StatusOK, err)
}

func (s *Server) deleteManual(c *gin.Context) {
	index, ok := indexParam(c)
	if !ok {
		return
	}
	err := currentSession(c).Manual.Delete(c.Request.Context(), index)
	s.manualResult(c, http.StatusOK, err)
}

func (s *Server) reloadManual(c *gin.Context) {
	sess := currentSession(c)
	var warnings []string
	if err := sess.Manual.Reload(c.Request.Context()); err != nil {
		if !store.Degraded(err) {
			writeError(c, http.StatusInternalServerError, err.Error())
			return
		}
		warnings = append(warnings, err.Error())
	}
	c.JSON(http.StatusOK, gin.H{"entries": sess.Manual.Len(), "warnings": nonNil(warnings)})
}

// manualResult maps a manual mutation error to a response. Sync failures
// still count as success since the local table was written.
func (s *Server) manualResult(c *gin.Context, okStatus int, err error) {
	var warnings []string
	switch {
	case errors.Is(err, manual.ErrIndexOutOfRange):
		writeError(c, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, manual.ErrInvalidEntry):
		writeError(c, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, store.ErrMalformedResource):
		writeError(c, http.StatusConflict, err.Error())
		return
	case manual.IsSyncError(err):
		warnings = append(warnings, "saved locally but not synced: "+err.Error())
	case err != nil:
		c.Error(err)
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}

	// other sessions pick the edit up on their next request
	s.opts.Registry.InvalidateManual()

	c.JSON(okStatus, gin.H{
		"entries":  currentSession(c).Manual.Len(),
		"warnings": nonNil(warnings),
	})
}

func (s *Server) listLedger(c *gin.Context) {
	rows, err := s.opts.Tables.LoadLedger(c.Request.Context())
	var warnings []string
	if err != nil {
		if !store.Degraded(err) {
			writeError(c, http.StatusInternalServerError, err.Error())
			return
		}
		warnings = append(warnings, err.Error())
	}

	if f := c.Query("feedback"); f != "" {
		rows = ledger.FilterByFeedback(rows, f)
	}
	if rows == nil {
		rows = []domain.LedgerRow{}
	}
	c.JSON(http.StatusOK, gin.H{"rows": rows, "warnings": nonNil(warnings)})
}

func (s *Server) downloadLedger(c *gin.Context) {
	path := s.opts.Tables.Path(store.TableLedger)
	if !strings.EqualFold(filepath.Ext(path), ".csv") {
		writeError(c, http.StatusNotFound, "ledger download needs the csv tables backend")
		return
	}
	if _, err := s.opts.Tables.LoadLedger(c.Request.Context()); errors.Is(err, store.ErrMissingResource) {
		writeError(c, http.StatusNotFound, "no questions recorded yet")
		return
	}
	c.FileAttachment(path, filepath.Base(path))
}

func (s *Server) save(c *gin.Context) {
	n, warnings := s.opts.QA.Save(c.Request.Context(), currentSession(c))
	c.JSON(http.StatusOK, gin.H{"written": n, "warnings": nonNil(warnings)})
}

func indexParam(c *gin.Context) (int, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "index must be an integer")
		return 0, false
	}
	return index, true
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
