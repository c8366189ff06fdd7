package directory

import (
	"net/url"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/rotisserie/eris"
	"golang.org/x/net/html"

	"github.com/joelkehle/telecom-radar/internal/config"
	"github.com/joelkehle/telecom-radar/internal/countrycode"
)

// Listing is one data-center card.
type Listing struct {
	Name    string
	Type    string
	Address string
	Link    string
}

type compiledSelectors struct {
	card, name, meta, link cascadia.Selector
}

func compileSelectors(s config.Selectors) (compiledSelectors, error) {
	var (
		c   compiledSelectors
		err error
	)
	if c.card, err = cascadia.Compile(s.Card); err != nil {
		return c, eris.Wrapf(err, "card selector %q", s.Card)
	}
	if c.name, err = cascadia.Compile(s.Name); err != nil {
		return c, eris.Wrapf(err, "name selector %q", s.Name)
	}
	if c.meta, err = cascadia.Compile(s.Meta); err != nil {
		return c, eris.Wrapf(err, "meta selector %q", s.Meta)
	}
	link := s.Link
	if strings.TrimSpace(link) == "" {
		link = "a[href]"
	}
	if c.link, err = cascadia.Compile(link); err != nil {
		return c, eris.Wrapf(err, "link selector %q", link)
	}
	return c, nil
}

// ParseListings extracts cards from doc. Links are resolved against pageURL.
func ParseListings(doc, pageURL string, sel config.Selectors) ([]Listing, error) {
	cs, err := compileSelectors(sel)
	if err != nil {
		return nil, err
	}
	return parseWith(doc, pageURL, cs)
}

func parseWith(doc, pageURL string, cs compiledSelectors) ([]Listing, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return nil, eris.Wrap(err, "parse directory html")
	}
	base, _ := url.Parse(pageURL)

	var out []Listing
	for _, card := range cs.card.MatchAll(root) {
		l := Listing{}
		if n := cs.name.MatchFirst(card); n != nil {
			l.Name = text(n)
		}
		metas := cs.meta.MatchAll(card)
		if len(metas) > 0 {
			l.Type = text(metas[0])
		}
		if len(metas) > 1 {
			l.Address = text(metas[1])
		}
		href := attr(card, "href")
		if href == "" {
			if a := cs.link.MatchFirst(card); a != nil {
				href = attr(a, "href")
			}
		}
		l.Link = resolve(base, href)
		out = append(out, l)
	}
	return out, nil
}

// MatchesCountry reports whether the trailing comma-separated token of
// address names country.
func MatchesCountry(address, country string) bool {
	parts := strings.Split(address, ",")
	token := strings.ToLower(strings.TrimSpace(parts[len(parts)-1]))
	want := strings.ToLower(strings.TrimSpace(country))
	if token == "" || want == "" {
		return false
	}
	if token == want {
		return true
	}
	a, ok1 := countrycode.ToAlpha2(token)
	b, ok2 := countrycode.ToAlpha2(want)
	return ok1 && ok2 && a == b
}

func text(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func resolve(base *url.URL, href string) string {
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil || base == nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
