// Package archive 把每次抓取的原始响应按日期目录落盘，便于排查与回放。
package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	dayLayout  = "20060102"
	timeLayout = "150405"
	indent     = "    "
)

// Sink 写入 <root>/YYYYMMDD/<provider>_HHMMSS.json
type Sink struct {
	root string
}

func NewSink(root string) *Sink {
	return &Sink{root: root}
}

func (s *Sink) Root() string { return s.root }

// Archive payload 为 nil 时写入 null，表示该数据源本次没有数据
func (s *Sink) Archive(provider string, payload any, ts time.Time) (string, error) {
	provider = strings.TrimSpace(provider)
	if provider == "" || strings.ContainsAny(provider, `/\`) {
		return "", fmt.Errorf("invalid provider name %q", provider)
	}
	ts = ts.UTC()
	dir := filepath.Join(s.root, ts.Format(dayLayout))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}

	bs, err := json.MarshalIndent(payload, "", indent)
	if err != nil {
		return "", fmt.Errorf("encode %s payload: %w", provider, err)
	}

	base := fmt.Sprintf("%s_%s", provider, ts.Format(timeLayout))
	for i := 0; ; i++ {
		name := base + ".json"
		if i > 0 {
			name = fmt.Sprintf("%s_%d.json", base, i)
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create %s: %w", path, err)
		}
		_, werr := f.Write(append(bs, '\n'))
		cerr := f.Close()
		if werr != nil {
			return "", fmt.Errorf("write %s: %w", path, werr)
		}
		if cerr != nil {
			return "", fmt.Errorf("close %s: %w", path, cerr)
		}
		return path, nil
	}
}

// ArchiveAll 每个数据源一个文件，返回数据源到文件路径的映射
func (s *Sink) ArchiveAll(payloads map[string]json.RawMessage, ts time.Time) (map[string]string, error) {
	names := make([]string, 0, len(payloads))
	for name := range payloads {
		names = append(names, name)
	}
	sort.Strings(names)

	paths := make(map[string]string, len(payloads))
	var errs []error
	for _, name := range names {
		var payload any
		if raw := payloads[name]; len(raw) > 0 {
			payload = raw
		}
		path, err := s.Archive(name, payload, ts)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		paths[name] = path
	}
	return paths, errors.Join(errs...)
}

// Entry 一个归档文件
type Entry struct {
	Provider string
	Path     string
	Time     time.Time
	Payload  json.RawMessage
}

// ReadDir 读取目录（可以是根目录或某一天的目录）下的全部归档，按时间排序；null 归档被忽略
func ReadDir(dir string) ([]Entry, error) {
	var out []Entry
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}
		e, ok, err := readEntry(path)
		if err != nil {
			return err
		}
		if ok {
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Time.Equal(out[j].Time) {
			return out[i].Path < out[j].Path
		}
		return out[i].Time.Before(out[j].Time)
	})
	return out, nil
}

func readEntry(path string) (Entry, bool, error) {
	name := strings.TrimSuffix(filepath.Base(path), ".json")
	parts := strings.Split(name, "_")
	if len(parts) < 2 {
		return Entry{}, false, nil
	}
	day := filepath.Base(filepath.Dir(path))
	ts, err := time.Parse(dayLayout+timeLayout, day+parts[1])
	if err != nil {
		return Entry{}, false, nil
	}

	bs, err := os.ReadFile(path)
	if err != nil {
		return Entry{}, false, err
	}
	raw := json.RawMessage(strings.TrimSpace(string(bs)))
	if len(raw) == 0 || string(raw) == "null" {
		return Entry{}, false, nil
	}
	return Entry{Provider: parts[0], Path: path, Time: ts, Payload: raw}, true, nil
}

// Responses 把归档内容拆成原始响应：单次响应直接返回，按主题归档的 {topicID: 响应} 逐个返回
func (e Entry) Responses(resultsKey string) ([]json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(e.Payload, &obj); err != nil {
		return nil, fmt.Errorf("%s: %w", e.Path, err)
	}
	if _, ok := obj[resultsKey]; ok {
		return []json.RawMessage{e.Payload}, nil
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]json.RawMessage, 0, len(obj))
	for _, k := range keys {
		v := obj[k]
		if s := strings.TrimSpace(string(v)); s == "" || s == "null" {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}
