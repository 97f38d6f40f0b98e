package main

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/theimaginaryfoundation/upcycle-o-bot/fabric"
	"github.com/theimaginaryfoundation/upcycle-o-bot/fabric/logging"
	"github.com/theimaginaryfoundation/upcycle-o-bot/fabric/store"
)

// catalogSource yields the current normalized catalog. Sources are read on every request so the
// server picks up a fresh normalizer run without a restart.
type catalogSource interface {
	Fabrics(ctx context.Context) ([]fabric.FabricRecord, error)
}

type jsonCatalog struct {
	path string
}

func (s jsonCatalog) Fabrics(ctx context.Context) ([]fabric.FabricRecord, error) {
	return fabric.LoadNormalizedCatalog(s.path)
}

type sqliteCatalog struct {
	db *store.DB
}

func (s sqliteCatalog) Fabrics(ctx context.Context) ([]fabric.FabricRecord, error) {
	return s.db.ListFabrics()
}

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func respondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{Error: APIError{Message: msg, Code: code}})
}

type catalogHandler struct {
	source      catalogSource
	rules       fabric.Rules
	maxBodySize int64
	log         *logging.Logger
}

func newRouter(h *catalogHandler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(h.requestLog())

	r.GET("/healthcheck", h.healthCheck)

	api := r.Group("/api")
	{
		api.GET("/fabrics", h.listFabrics)
		api.GET("/groups", h.listGroups)
		api.GET("/groups/:key", h.getGroup)
		api.POST("/extract", h.extract)
		api.POST("/directives", h.directives)
	}
	return r
}

func (h *catalogHandler) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		h.log.Debug("request", "method", c.Request.Method, "path", c.Request.URL.Path, "status", c.Writer.Status())
	}
}

func (h *catalogHandler) healthCheck(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (h *catalogHandler) loadGroups(c *gin.Context) (fabric.Groups, bool) {
	records, err := h.source.Fabrics(c.Request.Context())
	if err != nil {
		h.log.Error("load catalog", "error", err)
		respondError(c, http.StatusInternalServerError, "catalog_unavailable", err)
		return fabric.Groups{}, false
	}
	return fabric.GroupRecords(records, h.rules.GroupSuffixes), true
}

func (h *catalogHandler) listFabrics(c *gin.Context) {
	records, err := h.source.Fabrics(c.Request.Context())
	if err != nil {
		h.log.Error("load catalog", "error", err)
		respondError(c, http.StatusInternalServerError, "catalog_unavailable", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(records), "fabrics": records})
}

// listGroups returns every group, or with ?q= the groups matching a key or keyword.
func (h *catalogHandler) listGroups(c *gin.Context) {
	groups, ok := h.loadGroups(c)
	if !ok {
		return
	}
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		matched := groups.Match(q)
		if matched == nil {
			matched = []fabric.Group{}
		}
		c.JSON(http.StatusOK, gin.H{"count": len(matched), "groups": matched})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": groups.Len(), "groups": groups})
}

func (h *catalogHandler) getGroup(c *gin.Context) {
	groups, ok := h.loadGroups(c)
	if !ok {
		return
	}
	key := c.Param("key")
	g, found := groups.Lookup(key)
	if !found {
		respondError(c, http.StatusNotFound, "group_not_found", errors.New("no group with key "+key))
		return
	}
	c.JSON(http.StatusOK, g)
}

type extractResponse struct {
	fabric.Extraction
	Error string `json:"error,omitempty"`
}

func (h *catalogHandler) extract(c *gin.Context) {
	body, ok := h.readBody(c)
	if !ok {
		return
	}
	ex := fabric.ExtractRecord(body)
	resp := extractResponse{Extraction: ex}
	if ex.Err != nil {
		resp.Error = ex.Err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *catalogHandler) directives(c *gin.Context) {
	body, ok := h.readBody(c)
	if !ok {
		return
	}
	ds := fabric.ExtractDirectives(body)
	c.JSON(http.StatusOK, gin.H{"count": len(ds), "directives": ds})
}

func (h *catalogHandler) readBody(c *gin.Context) (string, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodySize)
	b, err := c.GetRawData()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, http.StatusRequestEntityTooLarge, "body_too_large", err)
			return "", false
		}
		respondError(c, http.StatusBadRequest, "bad_body", err)
		return "", false
	}
	return string(b), true
}
