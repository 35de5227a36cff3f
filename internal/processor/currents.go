package processor

import (
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"time"
)

const currentsTimeLayout = "2006-01-02 15:04:05 -0700"

type currentsRecord struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	URL         string     `json:"url"`
	Author      *string    `json:"author"`
	Image       *string    `json:"image"`
	Language    string     `json:"language"`
	Category    stringList `json:"category"`
	Published   string     `json:"published"`
}

func mapCurrents(raw json.RawMessage) (Article, []string, error) {
	var r currentsRecord
	if err := json.Unmarshal(raw, &r); err != nil {
		return Article{}, nil, err
	}
	if strings.TrimSpace(r.ID) == "" {
		return Article{}, nil, errors.New("missing id")
	}

	published, warnings := parseTime("published", r.Published, currentsTimeLayout, time.RFC3339, TimeLayout)
	var author []string
	if a := optional(r.Author); a != nil {
		author = []string{*a}
	}
	// currents 在没有图片时返回字符串 "None"
	image := optional(r.Image)
	if image != nil && *image == "None" {
		image = nil
	}
	return Article{
		NativeID:    strings.TrimSpace(r.ID),
		Title:       orDefault(r.Title, NoTitle),
		Link:        orDefault(r.URL, NoLink),
		Description: strings.TrimSpace(r.Description),
		Author:      joinComma(author),
		PublishedAt: published,
		SourceName:  orDefault(hostOf(r.URL), UnknownSource),
		Language:    strings.TrimSpace(r.Language),
		Category:    joinComma(r.Category),
		Keywords:    jsonList(nil),
		Creator:     jsonList(author),
		ImageURL:    image,
	}, warnings, nil
}

// hostOf currents 不返回来源名，用链接的域名代替
func hostOf(link string) string {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
