package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"trolley/internal/api"
	"trolley/internal/backend"
	"trolley/internal/model"
)

var listPatchColumns = map[string]string{
	backend.FieldName:            "name",
	backend.FieldIcon:            "icon",
	backend.FieldIconImage:       "icon_image_url",
	backend.FieldBackgroundImage: "background_image_url",
}

var itemPatchColumns = map[string]string{
	backend.FieldText:    "text",
	backend.FieldURL:     "url",
	backend.FieldChecked: "checked",
}

// patchColumns translates a wire field patch into column assignments,
// rejecting unknown fields. A nil value clears a nullable column.
func patchColumns(allowed map[string]string, fields map[string]any) (map[string]any, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty patch")
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		col, ok := allowed[k]
		if !ok {
			return nil, fmt.Errorf("unknown field %q", k)
		}
		out[col] = v
	}
	return out, nil
}

func (s *Server) handleLists(c *gin.Context) {
	rows, err := s.repo.ListsFor(c.Request.Context(), accountID(c))
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.ListsResponse{Data: wireLists(rows)})
}

func (s *Server) handleUpdateList(c *gin.Context) {
	id := c.Param("id")
	if !s.requireMember(c, id) {
		return
	}
	var in api.PatchRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		abortError(c, http.StatusBadRequest, api.CodeInvalidRequest, err.Error())
		return
	}
	columns, err := patchColumns(listPatchColumns, in.Fields)
	if err != nil {
		abortError(c, http.StatusBadRequest, api.CodeInvalidRequest, err.Error())
		return
	}
	l, err := s.repo.UpdateListFields(c.Request.Context(), id, columns)
	if err != nil {
		internalError(c, err)
		return
	}
	s.publishToMembers(c, backend.TableLists, id)
	c.JSON(http.StatusOK, api.ListResponse{Data: wireList(*l)})
}

func (s *Server) handleDeleteList(c *gin.Context) {
	id := c.Param("id")
	if !s.requireMember(c, id) {
		return
	}
	ctx := c.Request.Context()

	// Audience snapshot before the rows go away: former members still
	// hear about the delete.
	aud, err := s.repo.MemberIDs(ctx, id)
	if err != nil {
		internalError(c, err)
		return
	}
	if err := s.repo.DeleteList(ctx, id); err != nil {
		internalError(c, err)
		return
	}
	s.publish(ctx, backend.TableLists, id, aud)
	s.publish(ctx, backend.TableMemberships, id, aud)
	s.publish(ctx, backend.TableItems, id, aud)
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListCounts(c *gin.Context) {
	id := c.Param("id")
	if !s.requireMember(c, id) {
		return
	}
	total, unchecked, err := s.repo.CountItems(c.Request.Context(), id)
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.CountsResponse{Data: model.ListCounts{
		ListID:    id,
		Total:     int(total),
		Unchecked: int(unchecked),
	}})
}

func (s *Server) handleCreateList(c *gin.Context) {
	var in api.CreateListRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		abortError(c, http.StatusBadRequest, api.CodeInvalidRequest, err.Error())
		return
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		abortError(c, http.StatusBadRequest, api.CodeInvalidRequest, "name required")
		return
	}
	l := &List{
		ID:        uuid.NewString(),
		Name:      name,
		Icon:      in.Icon,
		CreatedBy: accountID(c),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateListWithOwner(c.Request.Context(), l, accountID(c)); err != nil {
		internalError(c, err)
		return
	}
	s.publishToMembers(c, backend.TableLists, l.ID)
	s.publishToMembers(c, backend.TableMemberships, l.ID)
	c.JSON(http.StatusCreated, api.ListResponse{Data: wireList(*l)})
}

func (s *Server) handleShareList(c *gin.Context) {
	var in api.ShareListRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		abortError(c, http.StatusBadRequest, api.CodeInvalidRequest, err.Error())
		return
	}
	if !s.requireMember(c, in.ListID) {
		return
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	ctx := c.Request.Context()

	acc, err := s.repo.AccountByEmail(ctx, email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		abortError(c, http.StatusNotFound, api.CodeAccountNotFound, "no account registered under that email")
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}
	added, err := s.repo.AddMember(ctx, in.ListID, acc.ID, time.Now().UTC())
	if err != nil {
		internalError(c, err)
		return
	}
	if added {
		s.publishToMembers(c, backend.TableMemberships, in.ListID)
	}
	c.Status(http.StatusNoContent)
}
