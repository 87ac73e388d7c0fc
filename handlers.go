package pubsync

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

func (a *App) handleHome(c echo.Context) error {
	blogs, err := a.Cache.Published(c.Request().Context())
	if err != nil {
		return err
	}
	return Render(c, HomePage(a.Config, blogs))
}

func (a *App) handlePost(c echo.Context) error {
	b, err := a.Cache.GetBlog(c.Request().Context(), c.Param("id"))
	if errors.Is(err, ErrNotFound) || (err == nil && b.IsDraft) {
		return RenderStatus(c, http.StatusNotFound, NotFoundPage(a.Config))
	}
	if err != nil {
		return err
	}
	return Render(c, PostPage(a.Config, b))
}

func handleBlogRedirect(c echo.Context) error {
	return c.Redirect(http.StatusMovedPermanently, "/")
}

func (a *App) handleSitemap(c echo.Context) error {
	blogs, err := a.Cache.Published(c.Request().Context())
	if err != nil {
		return err
	}
	return a.renderSitemap(c, blogs)
}

func (a *App) handleFeed(c echo.Context) error {
	blogs, err := a.Cache.Published(c.Request().Context())
	if err != nil {
		return err
	}
	return a.renderRSS(c, blogs)
}

// httpErrorHandler answers API routes with {"message"} JSON and pages with
// HTML.
func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	msg := "Internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(code)
		}
	}
	if code >= 500 {
		a.Log.Error().Err(err).Str("uri", c.Request().RequestURI).Msg("server error")
		msg = "Internal server error"
	}

	if strings.HasPrefix(c.Request().URL.Path, "/api/") {
		_ = jsonMessage(c, code, msg)
		return
	}
	switch {
	case code == http.StatusNotFound:
		_ = RenderStatus(c, code, NotFoundPage(a.Config))
	case code >= 500:
		_ = RenderStatus(c, code, ServerErrorPage(a.Config))
	default:
		_ = c.String(code, msg)
	}
}
