package hub

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/roach88/ledgersync/internal/remote"
)

const tableKey = "table"

func (s *Server) resolveTable(c *gin.Context) {
	table, err := remote.ParseTable(c.Param("table"))
	if err != nil {
		resp := failure(http.StatusNotFound, err.Error())
		resp.Code = CodeUnknownTable
		c.AbortWithStatusJSON(http.StatusNotFound, resp)
		return
	}
	c.Set(tableKey, table)
	c.Next()
}

func tableOf(c *gin.Context) remote.Table {
	return c.MustGet(tableKey).(remote.Table)
}

func (s *Server) selectRows(c *gin.Context) {
	table := tableOf(c)
	var filter *remote.Filter
	if column := c.Query("column"); column != "" {
		filter = &remote.Filter{Column: column, Values: c.QueryArray("value")}
	}

	rows, err := s.store.Select(c.Request.Context(), table, filter)
	if err != nil {
		s.storeError(c, err)
		return
	}
	if rows == nil {
		rows = []remote.Row{}
	}
	c.JSON(http.StatusOK, success(http.StatusOK, rows))
}

func (s *Server) upsertRows(c *gin.Context) {
	table := tableOf(c)
	var req UpsertRequest
	if err := decodeBody(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, failure(http.StatusBadRequest, err.Error()))
		return
	}
	rows := make([]remote.Row, len(req.Rows))
	for i, r := range req.Rows {
		rows[i] = r
	}
	if err := s.store.Upsert(c.Request.Context(), table, rows); err != nil {
		s.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, success(http.StatusOK, gin.H{"rows": len(rows)}))
}

func (s *Server) deleteRows(c *gin.Context) {
	table := tableOf(c)
	var filter remote.Filter
	if err := decodeBody(c, &filter); err != nil {
		c.JSON(http.StatusBadRequest, failure(http.StatusBadRequest, err.Error()))
		return
	}
	if filter.Column == "" {
		c.JSON(http.StatusBadRequest, failure(http.StatusBadRequest, "filter column is required"))
		return
	}
	if err := s.store.Delete(c.Request.Context(), table, filter); err != nil {
		s.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, success(http.StatusOK, nil))
}

func (s *Server) serveChanges(c *gin.Context) {
	table := tableOf(c)
	h, ok := s.hub(table)
	if !ok {
		c.JSON(http.StatusServiceUnavailable, failure(http.StatusServiceUnavailable, "changefeed not started"))
		return
	}

	// Join before the handshake completes so every write the peer makes
	// after connecting is relayed to it.
	cl := newClient(h)
	if !h.join(cl) {
		c.JSON(http.StatusServiceUnavailable, failure(http.StatusServiceUnavailable, "changefeed stopped"))
		return
	}
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.leave(cl)
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	cl.conn = conn
	go cl.writePump()
	go cl.readPump()
}

// decodeBody reads a JSON body keeping numbers exact.
func decodeBody(c *gin.Context, v any) error {
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()
	return dec.Decode(v)
}

func (s *Server) storeError(c *gin.Context, err error) {
	if mc, ok := remote.AsMissingColumn(err); ok {
		resp := failure(http.StatusUnprocessableEntity, err.Error())
		resp.Code = CodeMissingColumn
		resp.Column = mc.Column
		c.JSON(http.StatusUnprocessableEntity, resp)
		return
	}
	if errors.Is(err, remote.ErrUnknownTable) {
		c.JSON(http.StatusNotFound, failure(http.StatusNotFound, err.Error()))
		return
	}
	s.log.Error().Err(err).Str("table", string(tableOf(c))).Msg("backend store error")
	c.JSON(http.StatusBadGateway, failure(http.StatusBadGateway, err.Error()))
}
