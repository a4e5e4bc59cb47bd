package gateway

import (
	"context"
	"net/http"

	"github.com/pampang/federation/federation/graph"
	"go.uber.org/zap"
)

func FetchSDLForTest(ctx context.Context, host string, httpClient *http.Client, retry RetryOption) (string, error) {
	return fetchSDL(ctx, host, httpClient, retry)
}

func BuildEngineForTest(order []string, sdls, hosts map[string]string, logger *zap.Logger) (*graph.SuperGraph, error) {
	engine, err := buildEngine(order, sdls, hosts, logger)
	if err != nil {
		return nil, err
	}
	return engine.superGraph, nil
}

func CopyMapForTest(m map[string]string) map[string]string {
	return copyMap(m)
}
