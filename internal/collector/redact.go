package collector

import (
	"net/url"
	"strings"
)

const Redacted = "**REDACTED**"

// 各数据源使用过的密钥参数名，比较时忽略大小写（apiKey / apikey / APIKEY 等）
var credentialParams = map[string]struct{}{
	"apikey":     {},
	"api_key":    {},
	"access_key": {},
	"token":      {},
	"key":        {},
	"x-api-key":  {},
}

func IsCredentialParam(name string) bool {
	_, ok := credentialParams[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// Redact 返回一份脱敏副本，原参数保持不变用于真实请求
func Redact(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		if IsCredentialParam(k) {
			out[k] = []string{Redacted}
			continue
		}
		out[k] = append([]string(nil), vals...)
	}
	return out
}

// RedactURL 对完整 URL 的查询串脱敏，无法解析时整体替换
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return Redacted
	}
	u.RawQuery = Redact(u.Query()).Encode()
	return u.String()
}
