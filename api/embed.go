// Package api 嵌入 HTTP API 的 OpenAPI 文档
//
// 文档随二进制发布，API Server 在 GET /openapi.yaml 提供下载。
package api

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

// OpenAPISpec 付款门户 OpenAPI 3 文档（YAML）
//
//go:embed openapi/portal.yaml
var OpenAPISpec []byte

// LoadSpec 解析并校验嵌入的文档
func LoadSpec(ctx context.Context) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx
	doc, err := loader.LoadFromData(OpenAPISpec)
	if err != nil {
		return nil, fmt.Errorf("load openapi spec: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate openapi spec: %w", err)
	}
	return doc, nil
}
