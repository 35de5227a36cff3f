package collector

// NewAdapters 为每个数据源构造 Adapter，缺少密钥的数据源仍会被构造，调用时返回 ErrMissingCredential
func NewAdapters(keys map[string]string, paidNewsData bool, client *RetryClient) map[Provider]Adapter {
	return map[Provider]Adapter{
		NewsData:   NewNewsDataAdapter(keys[NewsData.String()], paidNewsData, client),
		NewsAPI:    NewNewsAPIAdapter(keys[NewsAPI.String()], client),
		GNews:      NewGNewsAdapter(keys[GNews.String()], client),
		MediaStack: NewMediaStackAdapter(keys[MediaStack.String()], client),
		Currents:   NewCurrentsAdapter(keys[Currents.String()], client),
	}
}
