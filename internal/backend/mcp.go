package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"allin1/orchestrator/pkg/logger"
)

// MCPProvider 通过 MCP 协议访问一个外部动作服务
//
// The connection is established lazily on first use and reused for the
// lifetime of the provider.
type MCPProvider struct {
	baseURL string

	mu     sync.Mutex
	client *client.Client
}

// NewMCPProvider creates a provider for the MCP server at baseURL.
func NewMCPProvider(baseURL string) *MCPProvider {
	return &MCPProvider{baseURL: strings.TrimRight(baseURL, "/")}
}

func (p *MCPProvider) ensureClient(ctx context.Context) (*client.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return p.client, nil
	}

	c, err := client.NewStreamableHttpClient(p.baseURL)
	if err != nil {
		return nil, fmt.Errorf("创建 MCP 客户端失败: %w", err)
	}
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("连接 MCP 服务失败: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "allin1-orchestrator",
		Version: "0.1.0",
	}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		return nil, fmt.Errorf("初始化 MCP 会话失败: %w", err)
	}

	logger.Debug("mcp: connected to %s", p.baseURL)
	p.client = c
	return c, nil
}

// ListOperations implements Provider by listing the server's tools.
func (p *MCPProvider) ListOperations(ctx context.Context) ([]Operation, error) {
	c, err := p.ensureClient(ctx)
	if err != nil {
		return nil, err
	}

	res, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("获取 MCP 工具列表失败: %w", err)
	}

	ops := make([]Operation, 0, len(res.Tools))
	for _, tool := range res.Tools {
		schema, err := json.Marshal(tool.InputSchema)
		if err != nil {
			schema = nil
		}
		ops = append(ops, Operation{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schema,
		})
	}
	return ops, nil
}

// Invoke implements Provider by calling the named tool.
func (p *MCPProvider) Invoke(ctx context.Context, operation string, payload map[string]any) (map[string]any, error) {
	c, err := p.ensureClient(ctx)
	if err != nil {
		return nil, err
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = operation
	req.Params.Arguments = payload

	res, err := c.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("MCP 工具调用失败: %w", err)
	}

	text := flattenContent(res.Content)
	if res.IsError {
		return nil, fmt.Errorf("MCP 工具 %s 返回错误: %s", operation, text)
	}
	return decodeResult(text), nil
}

// flattenContent joins the text parts of a tool result.
func flattenContent(content []mcp.Content) string {
	var parts []string
	for _, item := range content {
		switch c := item.(type) {
		case mcp.TextContent:
			parts = append(parts, c.Text)
		case *mcp.TextContent:
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// decodeResult exposes a structured result when the tool returned a JSON
// object, falling back to a single "content" key for plain text. The
// structured form is what RESULT references resolve against.
func decodeResult(text string) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err == nil {
		return obj
	}
	return map[string]any{"content": text}
}
