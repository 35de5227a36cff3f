package app

import (
	"testing"

	"github.com/LJTian/NewsHub/internal/collector"
	"github.com/LJTian/NewsHub/internal/config"
)

func TestEnabledProviders(t *testing.T) {
	// 未配置时启用全部数据源
	got, err := EnabledProviders(&config.Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != len(collector.All()) {
		t.Fatalf("expected all providers, got %v", got)
	}

	got, err = EnabledProviders(&config.Config{EnabledProviders: []string{"currents", "newsapi"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != collector.Currents || got[1] != collector.NewsAPI {
		t.Fatalf("unexpected providers: %v", got)
	}

	if _, err := EnabledProviders(&config.Config{EnabledProviders: []string{"bing"}}); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}
