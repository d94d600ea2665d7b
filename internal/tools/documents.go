package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dusk-indust/formcrew/internal/config"
	"github.com/dusk-indust/formcrew/internal/llm"
)

// DocumentSearch queries the document retrieval service.
type DocumentSearch struct {
	endpoint string
	http     *http.Client
}

// NewDocumentSearch creates a client for cfg.Endpoint.
func NewDocumentSearch(cfg config.DocumentsConfig) *DocumentSearch {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &DocumentSearch{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		http:     &http.Client{Timeout: timeout},
	}
}

// For returns the document search tool scoped to tenantID.
func (d *DocumentSearch) For(tenantID string) *TenantDocuments {
	if tenantID == "" {
		tenantID = "localhost"
	}
	return &TenantDocuments{search: d, tenantID: tenantID}
}

type retrieveRequest struct {
	Query   string          `json:"query"`
	Options retrieveOptions `json:"options"`
}

type retrieveOptions struct {
	TenantID string `json:"tenant_id"`
}

type retrieveResponse struct {
	Response []retrievedChunk `json:"response"`
}

type retrievedChunk struct {
	PageContent string `json:"page_content"`
	Metadata    struct {
		FileName   string `json:"file_name"`
		ChunkIndex any    `json:"chunk_index"`
	} `json:"metadata"`
}

// TenantDocuments is the memento tool bound to one tenant.
type TenantDocuments struct {
	search   *DocumentSearch
	tenantID string
}

var _ llm.Tool = (*TenantDocuments)(nil)

func (t *TenantDocuments) Name() string        { return DocumentToolName }
func (t *TenantDocuments) Description() string { return "사내 문서 검색을 위한 도구" }

func (t *TenantDocuments) Call(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrEmptyQuery
	}
	if t.search.endpoint == "" {
		return "사내 문서 검색이 구성되지 않았습니다.", nil
	}

	body, err := json.Marshal(retrieveRequest{Query: query, Options: retrieveOptions{TenantID: t.tenantID}})
	if err != nil {
		return "", fmt.Errorf("tools: marshal retrieve request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.search.endpoint+"/retrieve", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("tools: create retrieve request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.search.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("tools: document search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Sprintf("API 오류: %d", resp.StatusCode), nil
	}
	var data retrieveResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", fmt.Errorf("tools: decode retrieve response: %w", err)
	}
	if len(data.Response) == 0 {
		return fmt.Sprintf("테넌트 '%s'에서 '%s' 검색 결과가 없습니다.", t.tenantID, query), nil
	}

	results := make([]string, len(data.Response))
	for i, doc := range data.Response {
		name := doc.Metadata.FileName
		if name == "" {
			name = "unknown"
		}
		idx := "unknown"
		if doc.Metadata.ChunkIndex != nil {
			idx = fmt.Sprint(doc.Metadata.ChunkIndex)
		}
		results[i] = fmt.Sprintf("📄 파일: %s (청크 #%s)\n내용: %s\n---", name, idx, doc.PageContent)
	}
	return fmt.Sprintf("테넌트 '%s'에서 '%s' 검색 결과:\n\n", t.tenantID, query) + strings.Join(results, "\n"), nil
}
