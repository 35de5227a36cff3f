package processor

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

type gnewsRecord struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Content     string  `json:"content"`
	URL         string  `json:"url"`
	Image       *string `json:"image"`
	PublishedAt string  `json:"publishedAt"`
	Source      struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"source"`
}

func mapGNews(raw json.RawMessage) (Article, []string, error) {
	var r gnewsRecord
	if err := json.Unmarshal(raw, &r); err != nil {
		return Article{}, nil, err
	}
	if strings.TrimSpace(r.Title) == "" {
		return Article{}, nil, errors.New("missing title")
	}

	published, warnings := parseTime("publishedAt", r.PublishedAt, time.RFC3339)
	return Article{
		Title:       strings.TrimSpace(r.Title),
		Link:        orDefault(r.URL, NoLink),
		Description: strings.TrimSpace(r.Description),
		Content:     strings.TrimSpace(r.Content),
		PublishedAt: published,
		SourceName:  orDefault(r.Source.Name, UnknownSource),
		SourceURL:   strings.TrimSpace(r.Source.URL),
		Keywords:    jsonList(nil),
		Creator:     jsonList(nil),
		ImageURL:    optional(r.Image),
	}, warnings, nil
}
