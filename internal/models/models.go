package models

import "time"

// HeadlineCandidate is a visible text / absolute link pair found on a page.
// Two candidates are the same only if both fields match.
type HeadlineCandidate struct {
	Text string `bson:"text" json:"text"`
	URL  string `bson:"url" json:"url"`
}

type ExtractionConfig struct {
	TargetURL                string
	MaxItems                 int
	NavigationTimeoutSeconds int
}

func (c ExtractionConfig) NavigationTimeout() time.Duration {
	return time.Duration(c.NavigationTimeoutSeconds) * time.Second
}

type ExtractedArticle struct {
	Title    string
	Byline   string
	SiteName string
	Excerpt  string
	Text     string
	URL      string
}

type ArchivedHeadline struct {
	ID            string    `bson:"_id"`
	ChatID        int64     `bson:"chat_id"`
	Source        string    `bson:"source"`
	NormalizedURL string    `bson:"normalized_url"`
	Text          string    `bson:"text"`
	URL           string    `bson:"url"`
	Position      int       `bson:"position"`
	DeliveredAt   time.Time `bson:"delivered_at"`
	DeliveryCount int       `bson:"delivery_count"`
}
