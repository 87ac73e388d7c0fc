package pubsync

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

type messageResponse struct {
	Message string `json:"message"`
}

func jsonMessage(c echo.Context, code int, msg string) error {
	return c.JSON(code, messageResponse{Message: msg})
}

// parseIsDraft maps the isDraft query value to a filter; anything other
// than "true" or "false" means no filter.
func parseIsDraft(v string) *bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true":
		t := true
		return &t
	case "false":
		f := false
		return &f
	default:
		return nil
	}
}

func (a *App) handleListBlogs(c echo.Context) error {
	blogs, err := a.Cache.ListBlogs(c.Request().Context(), parseIsDraft(c.QueryParam("isDraft")))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, blogs)
}

func (a *App) handleGetBlog(c echo.Context) error {
	b, err := a.Cache.GetBlog(c.Request().Context(), c.Param("id"))
	if errors.Is(err, ErrNotFound) {
		return jsonMessage(c, http.StatusNotFound, "Blog not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b)
}

func (a *App) handleCreateBlog(c echo.Context) error {
	var p BlogPatch
	if err := c.Bind(&p); err != nil {
		return jsonMessage(c, http.StatusBadRequest, "Invalid request body")
	}
	if p.Title == nil || strings.TrimSpace(*p.Title) == "" || p.Content == nil || *p.Content == "" {
		return jsonMessage(c, http.StatusBadRequest, "Title and content are required")
	}
	b, err := a.Store.CreateBlog(c.Request().Context(), p)
	if err != nil {
		return err
	}
	a.Cache.Invalidate()
	return c.JSON(http.StatusCreated, b)
}

func (a *App) handleUpdateBlog(c echo.Context) error {
	var p BlogPatch
	if err := c.Bind(&p); err != nil {
		return jsonMessage(c, http.StatusBadRequest, "Invalid request body")
	}
	b, err := a.Store.UpdateBlog(c.Request().Context(), c.Param("id"), p)
	if errors.Is(err, ErrNotFound) {
		return jsonMessage(c, http.StatusNotFound, "Blog not found")
	}
	if err != nil {
		return err
	}
	a.Cache.Invalidate()
	return c.JSON(http.StatusOK, b)
}

func (a *App) handleDeleteBlog(c echo.Context) error {
	if err := a.Store.DeleteBlog(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	a.Cache.Invalidate()
	return jsonMessage(c, http.StatusOK, "Blog deleted")
}

func (a *App) handlePublishBlog(c echo.Context) error {
	b, err := a.Store.PublishBlog(c.Request().Context(), c.Param("id"))
	if errors.Is(err, ErrNotFound) {
		return jsonMessage(c, http.StatusNotFound, "Blog not found")
	}
	if err != nil {
		return err
	}
	a.Cache.Invalidate()
	return c.JSON(http.StatusOK, b)
}

type batchOrderRequest struct {
	Updates []OrderUpdate `json:"updates"`
}

func (a *App) handleBatchUpdateOrder(c echo.Context) error {
	var req batchOrderRequest
	if err := c.Bind(&req); err != nil || req.Updates == nil {
		return jsonMessage(c, http.StatusBadRequest, "Invalid updates data")
	}
	for _, u := range req.Updates {
		if u.ID == "" {
			return jsonMessage(c, http.StatusBadRequest, "Invalid updates data")
		}
	}
	if err := a.Store.UpdateOrders(c.Request().Context(), req.Updates); err != nil {
		return err
	}
	a.Cache.Invalidate()
	return jsonMessage(c, http.StatusOK, "Blog orders updated successfully")
}

func (a *App) handleHealth(c echo.Context) error {
	return jsonMessage(c, http.StatusOK, "ok")
}
