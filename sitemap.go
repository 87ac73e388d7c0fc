package pubsync

import (
	"encoding/xml"
	"net/http"

	"github.com/labstack/echo/v4"
)

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

func (a *App) renderSitemap(c echo.Context, blogs []Blog) error {
	base := a.Config.URL
	urls := make([]sitemapURL, 0, len(blogs)+1)
	urls = append(urls, sitemapURL{Loc: BuildURL(base)})
	for _, b := range blogs {
		urls = append(urls, sitemapURL{
			Loc:     BuildURL(base, "blog", b.ID),
			LastMod: b.UpdatedAt.Format("2006-01-02"),
		})
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/xml; charset=utf-8")
	c.Response().WriteHeader(http.StatusOK)
	if _, err := c.Response().Write([]byte(xml.Header)); err != nil {
		return err
	}
	return xml.NewEncoder(c.Response()).Encode(sitemapURLSet{
		XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9",
		URLs:  urls,
	})
}
