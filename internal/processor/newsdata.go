package processor

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

type newsDataRecord struct {
	ArticleID      string          `json:"article_id"`
	Title          string          `json:"title"`
	Link           string          `json:"link"`
	Keywords       stringList      `json:"keywords"`
	Creator        stringList      `json:"creator"`
	VideoURL       *string         `json:"video_url"`
	Description    string          `json:"description"`
	Content        string          `json:"content"`
	PubDate        string          `json:"pubDate"`
	PubDateTZ      json.RawMessage `json:"pubDateTZ"`
	ImageURL       *string         `json:"image_url"`
	SourceID       string          `json:"source_id"`
	SourcePriority json.RawMessage `json:"source_priority"`
	SourceName     string          `json:"source_name"`
	SourceURL      string          `json:"source_url"`
	SourceIcon     json.RawMessage `json:"source_icon"`
	Language       string          `json:"language"`
	Country        stringList      `json:"country"`
	Category       stringList      `json:"category"`
	AITag          json.RawMessage `json:"ai_tag"`
	Sentiment      *string         `json:"sentiment"`
	SentimentStats json.RawMessage `json:"sentiment_stats"`
	AIRegion       json.RawMessage `json:"ai_region"`
	AIOrg          json.RawMessage `json:"ai_org"`
	Duplicate      json.RawMessage `json:"duplicate"`
}

func mapNewsData(raw json.RawMessage) (Article, []string, error) {
	var r newsDataRecord
	if err := json.Unmarshal(raw, &r); err != nil {
		return Article{}, nil, err
	}
	if strings.TrimSpace(r.ArticleID) == "" {
		return Article{}, nil, errors.New("missing article_id")
	}

	published, warnings := parseTime("pubDate", r.PubDate, TimeLayout, time.RFC3339)
	return Article{
		NativeID:    strings.TrimSpace(r.ArticleID),
		Title:       orDefault(r.Title, NoTitle),
		Link:        orDefault(r.Link, NoLink),
		Description: strings.TrimSpace(r.Description),
		Content:     strings.TrimSpace(r.Content),
		Author:      joinComma(r.Creator),
		PublishedAt: published,
		SourceID:    strings.TrimSpace(r.SourceID),
		SourceName:  orDefault(r.SourceName, UnknownSource),
		SourceURL:   strings.TrimSpace(r.SourceURL),
		Language:    strings.TrimSpace(r.Language),
		Country:     joinComma(r.Country),
		Category:    joinComma(r.Category),
		Keywords:    jsonList(r.Keywords),
		Creator:     jsonList(r.Creator),
		ImageURL:    optional(r.ImageURL),
		VideoURL:    optional(r.VideoURL),
		Sentiment:   optional(r.Sentiment),
		Extra: extra(map[string]json.RawMessage{
			"pub_date_tz":     r.PubDateTZ,
			"source_priority": r.SourcePriority,
			"source_icon":     r.SourceIcon,
			"ai_tag":          r.AITag,
			"sentiment_stats": r.SentimentStats,
			"ai_region":       r.AIRegion,
			"ai_org":          r.AIOrg,
			"duplicate":       r.Duplicate,
		}),
	}, warnings, nil
}
