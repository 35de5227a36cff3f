package processor

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

type mediaStackRecord struct {
	Author      *string    `json:"author"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	URL         string     `json:"url"`
	Source      string     `json:"source"`
	Image       *string    `json:"image"`
	Category    stringList `json:"category"`
	Language    string     `json:"language"`
	Country     stringList `json:"country"`
	PublishedAt string     `json:"published_at"`
}

func mapMediaStack(raw json.RawMessage) (Article, []string, error) {
	var r mediaStackRecord
	if err := json.Unmarshal(raw, &r); err != nil {
		return Article{}, nil, err
	}
	if strings.TrimSpace(r.Title) == "" {
		return Article{}, nil, errors.New("missing title")
	}

	published, warnings := parseTime("published_at", r.PublishedAt, time.RFC3339, "2006-01-02T15:04:05-0700")
	var author []string
	if a := optional(r.Author); a != nil {
		author = []string{*a}
	}
	return Article{
		Title:       strings.TrimSpace(r.Title),
		Link:        orDefault(r.URL, NoLink),
		Description: strings.TrimSpace(r.Description),
		Author:      joinComma(author),
		PublishedAt: published,
		SourceID:    strings.TrimSpace(r.Source),
		SourceName:  orDefault(r.Source, UnknownSource),
		Language:    strings.TrimSpace(r.Language),
		Country:     joinComma(r.Country),
		Category:    joinComma(r.Category),
		Keywords:    jsonList(nil),
		Creator:     jsonList(author),
		ImageURL:    optional(r.Image),
	}, warnings, nil
}
