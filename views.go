package pubsync

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
)

// Render writes a templ component as an HTTP 200 HTML response.
func Render(c echo.Context, cmp templ.Component) error {
	return RenderStatus(c, http.StatusOK, cmp)
}

// RenderStatus writes a templ component with a specific HTTP status code.
func RenderStatus(c echo.Context, code int, cmp templ.Component) error {
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(code)
	return cmp.Render(c.Request().Context(), c.Response().Writer)
}

// layout wraps body in the shared page shell.
func layout(cfg SiteConfig, meta PageMeta, jsonLD string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		title := meta.Title
		if title == "" {
			title = cfg.Name
		} else {
			title += " | " + cfg.Name
		}
		if _, err := fmt.Fprintf(w, `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`+
			`<meta name="viewport" content="width=device-width, initial-scale=1">`+
			`<title>%s</title><meta name="description" content="%s">`+
			`<link rel="canonical" href="%s"><meta property="og:type" content="%s">`+
			`<link rel="alternate" type="application/rss+xml" href="%s">`,
			html.EscapeString(title), html.EscapeString(meta.Description),
			html.EscapeString(meta.URL), html.EscapeString(meta.OGType),
			html.EscapeString(BuildURL(cfg.URL, "feed.xml"))); err != nil {
			return err
		}
		if jsonLD != "" {
			if _, err := fmt.Fprintf(w, `<script type="application/ld+json">%s</script>`, jsonLD); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, `</head><body><header><a href="%s">%s</a></header><main>`,
			html.EscapeString(BuildURL(cfg.URL)), html.EscapeString(cfg.Name)); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</main></body></html>`)
		return err
	})
}

// HomePage lists the published posts in display order.
func HomePage(cfg SiteConfig, blogs []Blog) templ.Component {
	body := templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		if len(blogs) == 0 {
			_, err := io.WriteString(w, `<p>No posts yet.</p>`)
			return err
		}
		if _, err := io.WriteString(w, `<ul class="posts">`); err != nil {
			return err
		}
		for _, b := range blogs {
			if _, err := fmt.Fprintf(w, `<li><a href="%s">%s</a> <time datetime="%s">%s</time></li>`,
				html.EscapeString(BuildURL(cfg.URL, "blog", b.ID)), html.EscapeString(b.Title),
				b.CreatedAt.Format("2006-01-02"), b.CreatedAt.Format("Jan 2, 2006")); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</ul>`)
		return err
	})
	meta := PageMeta{Description: cfg.Description, URL: BuildURL(cfg.URL), OGType: "website"}
	return layout(cfg, meta, WebsiteJsonLD(cfg), body)
}

// PostPage renders one published post. Content is stored as HTML produced
// by the editor and is written as is.
func PostPage(cfg SiteConfig, b Blog) templ.Component {
	body := templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, `<article><h1>%s</h1><time datetime="%s">%s</time>`,
			html.EscapeString(b.Title), b.CreatedAt.Format("2006-01-02"), b.CreatedAt.Format("Jan 2, 2006")); err != nil {
			return err
		}
		for _, img := range b.Images {
			if _, err := fmt.Fprintf(w, `<img src="%s" alt="">`, html.EscapeString(img)); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, `<div class="content">%s</div></article>`, b.Content); err != nil {
			return err
		}
		return nil
	})
	meta := PageMeta{
		Title:       b.Title,
		Description: Excerpt(b.Content, 160),
		URL:         BuildURL(cfg.URL, "blog", b.ID),
		OGType:      "article",
	}
	return layout(cfg, meta, BlogPostingJsonLD(b, cfg), body)
}

// NotFoundPage is rendered for unknown pages and unpublished posts.
func NotFoundPage(cfg SiteConfig) templ.Component {
	body := templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<h1>Not found</h1><p>The page you are looking for does not exist.</p>`)
		return err
	})
	return layout(cfg, PageMeta{Title: "Not found"}, "", body)
}

// ServerErrorPage is rendered for 5xx errors on HTML routes.
func ServerErrorPage(cfg SiteConfig) templ.Component {
	body := templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<h1>Something went wrong</h1>`)
		return err
	})
	return layout(cfg, PageMeta{Title: "Error"}, "", body)
}
