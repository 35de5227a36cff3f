package processor

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/LJTian/NewsHub/internal/collector"
)

// TimeLayout 统一的发布时间格式（UTC）
const TimeLayout = "2006-01-02 15:04:05"

// 字段缺失时的默认值
const (
	NoTitle       = "No Title"
	NoLink        = "No Link"
	UnknownSource = "Unknown Source"
)

// Article 是写入存储层前的统一结构
type Article struct {
	Provider    collector.Provider `json:"provider"`
	NativeID    string             `json:"native_id,omitempty"`
	Interest    string             `json:"interest,omitempty"`
	Title       string             `json:"title"`
	Link        string             `json:"link"`
	Description string             `json:"description"`
	Content     string             `json:"content"`
	Author      string             `json:"author"`
	PublishedAt *time.Time         `json:"published_at"`
	SourceID    string             `json:"source_id"`
	SourceName  string             `json:"source_name"`
	SourceURL   string             `json:"source_url"`
	Language    string             `json:"language"`
	// Country / Category 逗号拼接
	Country  string `json:"country"`
	Category string `json:"category"`
	// Keywords / Creator 为 JSON 数组字符串
	Keywords  string         `json:"keywords"`
	Creator   string         `json:"creator"`
	ImageURL  *string        `json:"image_url"`
	VideoURL  *string        `json:"video_url"`
	Sentiment *string        `json:"sentiment"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// MaxNaturalKeyLen 去重键的最大字节数，与文章表 natural_key 列宽一致
const MaxNaturalKeyLen = 200

// NaturalKey 去重键：优先使用数据源自己的 ID，否则用标题+来源的归一化哈希。
// 超长的 ID 改用其哈希，保证不超过 MaxNaturalKeyLen；无法生成时返回空串。
func (a Article) NaturalKey() string {
	if id := strings.TrimSpace(a.NativeID); id != "" {
		key := a.Provider.String() + ":id:" + id
		if len(key) <= MaxNaturalKeyLen {
			return key
		}
		sum := sha1.Sum([]byte(id))
		return a.Provider.String() + ":idsha1:" + hex.EncodeToString(sum[:])
	}
	title := normalizeText(a.Title)
	if title == "" || a.Title == NoTitle {
		return ""
	}
	sum := sha1.Sum([]byte(title + "|" + normalizeText(a.SourceName)))
	return a.Provider.String() + ":title:" + hex.EncodeToString(sum[:])
}

func (a Article) PublishedAtString() string {
	if a.PublishedAt == nil {
		return ""
	}
	return a.PublishedAt.UTC().Format(TimeLayout)
}

// normalizeText NFKC、小写并折叠空白，避免全角/大小写/多空格导致同一标题产生不同的键
func normalizeText(s string) string {
	s = strings.ToLower(norm.NFKC.String(s))
	return strings.Join(strings.Fields(s), " ")
}
