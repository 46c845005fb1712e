package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"trolley/internal/api"
	"trolley/internal/backend"
)

func (s *Server) handleListItems(c *gin.Context) {
	id := c.Param("id")
	if !s.requireMember(c, id) {
		return
	}
	rows, err := s.repo.ItemsOf(c.Request.Context(), id)
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.ItemsResponse{Data: wireItems(rows)})
}

func (s *Server) handleCreateItem(c *gin.Context) {
	listID := c.Param("id")
	if !s.requireMember(c, listID) {
		return
	}
	var in api.CreateItemRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		abortError(c, http.StatusBadRequest, api.CodeInvalidRequest, err.Error())
		return
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		abortError(c, http.StatusBadRequest, api.CodeInvalidRequest, "text required")
		return
	}
	creator := accountID(c)
	it := &Item{
		ID:        uuid.NewString(),
		ListID:    listID,
		Text:      text,
		CreatedBy: &creator,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateItem(c.Request.Context(), it); err != nil {
		internalError(c, err)
		return
	}
	s.publishToMembers(c, backend.TableItems, listID)
	c.JSON(http.StatusCreated, api.ItemResponse{Data: wireItem(*it)})
}

func (s *Server) handleUpdateItem(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	it, err := s.repo.ItemByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		abortError(c, http.StatusNotFound, api.CodeNotFound, "item not found")
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}
	if !s.requireMember(c, it.ListID) {
		return
	}
	var in api.PatchRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		abortError(c, http.StatusBadRequest, api.CodeInvalidRequest, err.Error())
		return
	}
	columns, err := patchColumns(itemPatchColumns, in.Fields)
	if err != nil {
		abortError(c, http.StatusBadRequest, api.CodeInvalidRequest, err.Error())
		return
	}
	updated, err := s.repo.UpdateItemFields(ctx, id, columns)
	if err != nil {
		internalError(c, err)
		return
	}
	s.publishToMembers(c, backend.TableItems, it.ListID)
	c.JSON(http.StatusOK, api.ItemResponse{Data: wireItem(*updated)})
}

func (s *Server) handleDeleteItems(c *gin.Context) {
	var in api.DeleteItemsRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		abortError(c, http.StatusBadRequest, api.CodeInvalidRequest, err.Error())
		return
	}
	if len(in.IDs) == 0 {
		c.Status(http.StatusNoContent)
		return
	}
	ctx := c.Request.Context()

	byID, err := s.repo.ListIDsOfItems(ctx, in.IDs)
	if err != nil {
		internalError(c, err)
		return
	}
	lists := make(map[string]bool)
	for _, id := range in.IDs {
		listID, ok := byID[id]
		if !ok {
			abortError(c, http.StatusNotFound, api.CodeNotFound, "item not found")
			return
		}
		lists[listID] = true
	}
	for listID := range lists {
		if !s.requireMember(c, listID) {
			return
		}
	}
	if err := s.repo.DeleteItems(ctx, in.IDs); err != nil {
		internalError(c, err)
		return
	}
	for listID := range lists {
		s.publishToMembers(c, backend.TableItems, listID)
	}
	c.Status(http.StatusNoContent)
}

// handlePositions applies a whole-partition renumber in one transaction.
// Every row in the batch must belong to a list the caller is a member of;
// one foreign row fails the lot.
func (s *Server) handlePositions(c *gin.Context) {
	var in api.PositionsRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		abortError(c, http.StatusBadRequest, api.CodeInvalidRequest, err.Error())
		return
	}
	if len(in.Writes) == 0 {
		c.Status(http.StatusNoContent)
		return
	}
	ctx := c.Request.Context()
	table := backend.Table(in.Table)

	lists := make(map[string]bool)
	switch table {
	case backend.TableLists:
		for _, w := range in.Writes {
			lists[w.ID] = true
		}
	case backend.TableItems:
		ids := make([]string, 0, len(in.Writes))
		for _, w := range in.Writes {
			ids = append(ids, w.ID)
		}
		byID, err := s.repo.ListIDsOfItems(ctx, ids)
		if err != nil {
			internalError(c, err)
			return
		}
		for _, id := range ids {
			listID, ok := byID[id]
			if !ok {
				abortError(c, http.StatusNotFound, api.CodeNotFound, "item not found")
				return
			}
			lists[listID] = true
		}
	default:
		abortError(c, http.StatusBadRequest, api.CodeInvalidRequest, "unsupported table")
		return
	}
	for listID := range lists {
		if !s.requireMember(c, listID) {
			return
		}
	}
	if err := s.repo.UpsertPositions(ctx, table, in.Writes); err != nil {
		internalError(c, err)
		return
	}
	for listID := range lists {
		s.publishToMembers(c, table, listID)
	}
	c.Status(http.StatusNoContent)
}
