package extractor

import "news_bot/internal/models"

type SkipReason string

const (
	SkipEmpty       SkipReason = "empty"
	SkipMalformed   SkipReason = "malformed_url"
	SkipForeignHost SkipReason = "foreign_host"
	SkipLength      SkipReason = "text_length"
	SkipNoAnchor    SkipReason = "no_anchor"
	SkipDuplicate   SkipReason = "duplicate"
)

// outcome is the result of inspecting one element: either a candidate or
// the reason it was skipped.
type outcome struct {
	candidate models.HeadlineCandidate
	reason    SkipReason
	ok        bool
}

func keep(c models.HeadlineCandidate) outcome {
	return outcome{candidate: c, ok: true}
}

func skip(reason SkipReason) outcome {
	return outcome{reason: reason}
}
