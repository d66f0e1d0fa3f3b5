// Package extractor picks headline candidates out of a rendered page.
//
// Extraction runs in two passes. The anchor scan walks every link in
// document order and keeps those whose text length is within bounds and
// whose host belongs to the target site. When that yields fewer than the
// requested number of items, the heading fallback walks h1-h3 elements
// wrapped in a link and takes the heading text. Both passes share one
// seen-set, so a (text, url) pair is reported once.
package extractor

import (
	"news_bot/internal/models"
	"news_bot/internal/urlutil"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
)

const (
	DefaultMinTextLen = 15
	DefaultMaxTextLen = 300

	anchorSelector  = "a"
	headingSelector = "h1, h2, h3"
)

type Input struct {
	TargetURL string
	// PageURL is the final document URL; relative hrefs resolve against it.
	PageURL  string
	MaxItems int
}

type Result struct {
	Headlines []models.HeadlineCandidate
	// FromAnchors and FromHeadings count what each pass contributed.
	FromAnchors  int
	FromHeadings int
	// HeadingPassRan is false when the anchor scan alone filled the quota.
	HeadingPassRan bool
	Skipped        map[SkipReason]int
}

type Extractor struct {
	minTextLen int
	maxTextLen int
	log        *logrus.Entry
}

type Option func(*Extractor)

func WithTextBounds(min, max int) Option {
	return func(e *Extractor) {
		e.minTextLen = min
		e.maxTextLen = max
	}
}

func WithLogger(log *logrus.Entry) Option {
	return func(e *Extractor) {
		if log != nil {
			e.log = log
		}
	}
}

func New(opts ...Option) *Extractor {
	e := &Extractor{
		minTextLen: DefaultMinTextLen,
		maxTextLen: DefaultMaxTextLen,
		log:        logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract never fails: elements that cannot be inspected are skipped and
// an empty Headlines slice means nothing qualified.
func (e *Extractor) Extract(doc *goquery.Document, in Input) Result {
	res := Result{
		Headlines: make([]models.HeadlineCandidate, 0, max(in.MaxItems, 0)),
		Skipped:   make(map[SkipReason]int),
	}
	if doc == nil || in.MaxItems <= 0 {
		return res
	}

	scan := &scan{
		input:      in,
		targetHost: urlutil.Host(in.TargetURL),
		seen:       make(map[models.HeadlineCandidate]struct{}),
		result:     &res,
	}

	doc.Find(anchorSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if scan.accept(e.inspectAnchor(s, scan)) {
			res.FromAnchors++
		}
		return !scan.full()
	})

	if !scan.full() {
		res.HeadingPassRan = true
		doc.Find(headingSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if scan.accept(e.inspectHeading(s, scan)) {
				res.FromHeadings++
			}
			return !scan.full()
		})
	}

	if len(res.Headlines) > in.MaxItems {
		res.Headlines = res.Headlines[:in.MaxItems]
	}

	e.log.WithFields(logrus.Fields{
		"url":           in.TargetURL,
		"count":         len(res.Headlines),
		"from_anchors":  res.FromAnchors,
		"from_headings": res.FromHeadings,
		"skipped":       res.Skipped,
	}).Debug("извлечение заголовков завершено")

	return res
}

func (e *Extractor) inspectAnchor(s *goquery.Selection, sc *scan) outcome {
	href, _ := s.Attr("href")
	text := VisibleText(s)
	if isBlank(href) || text == "" {
		return skip(SkipEmpty)
	}

	link, reason := sc.resolve(href, false)
	if reason != "" {
		return skip(reason)
	}

	if n := textLen(text); n < e.minTextLen || n > e.maxTextLen {
		return skip(SkipLength)
	}

	return keep(models.HeadlineCandidate{Text: text, URL: link})
}

func (e *Extractor) inspectHeading(s *goquery.Selection, sc *scan) outcome {
	anchor := s.Closest(anchorSelector)
	if anchor.Length() == 0 {
		return skip(SkipNoAnchor)
	}

	href, _ := anchor.Attr("href")
	text := VisibleText(s)
	if isBlank(href) || text == "" {
		return skip(SkipEmpty)
	}

	link, reason := sc.resolve(href, true)
	if reason != "" {
		return skip(reason)
	}

	return keep(models.HeadlineCandidate{Text: text, URL: link})
}

// scan is the state shared by both passes of one Extract call.
type scan struct {
	input      Input
	targetHost string
	seen       map[models.HeadlineCandidate]struct{}
	result     *Result
}

// resolve makes href absolute and applies the host filter. The heading
// pass is strict: a link must have a host to belong to the target site.
func (sc *scan) resolve(href string, strict bool) (string, SkipReason) {
	link, err := urlutil.ResolveLink(href, sc.input.TargetURL, sc.input.PageURL)
	if err != nil {
		return "", SkipMalformed
	}
	sameSite := urlutil.SameSite
	if strict {
		sameSite = urlutil.SameSiteStrict
	}
	if !sameSite(urlutil.Host(link), sc.targetHost) {
		return "", SkipForeignHost
	}
	return link, ""
}

func (sc *scan) accept(o outcome) bool {
	if !o.ok {
		sc.result.Skipped[o.reason]++
		return false
	}
	if _, dup := sc.seen[o.candidate]; dup {
		sc.result.Skipped[SkipDuplicate]++
		return false
	}
	sc.seen[o.candidate] = struct{}{}
	sc.result.Headlines = append(sc.result.Headlines, o.candidate)
	return true
}

func (sc *scan) full() bool {
	return len(sc.result.Headlines) >= sc.input.MaxItems
}
