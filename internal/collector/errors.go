package collector

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrMissingCredential = errors.New("missing api credential")

// UnknownProviderError 名称不在固定数据源集合中
type UnknownProviderError struct {
	Name string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("unknown provider %q", e.Name)
}

// ValidationError 参数组合不合法，发生在任何网络请求之前，不重试
type ValidationError struct {
	Provider Provider
	Problems []Problem
}

type Problem struct {
	Params  []string `json:"params"`
	Message string   `json:"message"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		parts = append(parts, fmt.Sprintf("%s: %s", strings.Join(p.Params, ","), p.Message))
	}
	return fmt.Sprintf("%s: invalid parameters: %s", e.Provider, strings.Join(parts, "; "))
}

// Params 返回所有出问题的参数名（去重、排序）
func (e *ValidationError) Params() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range e.Problems {
		for _, name := range p.Params {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// FetchError 重试耗尽后的网络/HTTP 失败
type FetchError struct {
	Provider   Provider
	Attempts   int
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: fetch failed after %d attempts (last status %d): %v", e.Provider, e.Attempts, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: fetch failed after %d attempts: %v", e.Provider, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsValidation 判断是否为调用方参数错误
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) || errors.Is(err, ErrMissingCredential)
}
