package processor

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// newsapi 对被下架的文章返回标题为 [Removed] 的占位记录
const newsAPIRemoved = "[Removed]"

type newsAPIRecord struct {
	Source struct {
		ID   *string `json:"id"`
		Name string  `json:"name"`
	} `json:"source"`
	Author      *string `json:"author"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	URL         string  `json:"url"`
	URLToImage  *string `json:"urlToImage"`
	PublishedAt string  `json:"publishedAt"`
	Content     string  `json:"content"`
}

func mapNewsAPI(raw json.RawMessage) (Article, []string, error) {
	var r newsAPIRecord
	if err := json.Unmarshal(raw, &r); err != nil {
		return Article{}, nil, err
	}
	title := strings.TrimSpace(r.Title)
	if title == "" {
		return Article{}, nil, errors.New("missing title")
	}
	if title == newsAPIRemoved {
		return Article{}, nil, errors.New("removed article placeholder")
	}

	published, warnings := parseTime("publishedAt", r.PublishedAt, time.RFC3339)
	var author []string
	if a := optional(r.Author); a != nil {
		author = []string{*a}
	}
	var sourceID string
	if id := optional(r.Source.ID); id != nil {
		sourceID = *id
	}
	return Article{
		Title:       title,
		Link:        orDefault(r.URL, NoLink),
		Description: strings.TrimSpace(r.Description),
		Content:     strings.TrimSpace(r.Content),
		Author:      joinComma(author),
		PublishedAt: published,
		SourceID:    sourceID,
		SourceName:  orDefault(r.Source.Name, UnknownSource),
		Keywords:    jsonList(nil),
		Creator:     jsonList(author),
		ImageURL:    optional(r.URLToImage),
	}, warnings, nil
}
