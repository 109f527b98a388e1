package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shaiso/assetsched/internal/api"
	"github.com/shaiso/assetsched/internal/mq"
)

// --- Response types (общие с internal/api) ---

// AssetResponse — asset из API.
type AssetResponse = api.AssetResponse

// ConditionResponse — узел дерева условий из API.
type ConditionResponse = api.ConditionResponse

// EvaluationResponse — результат последнего тика из API.
type EvaluationResponse = api.EvaluationResponse

// --- Request types ---

// ReportEventRequest — регистрация события asset.
type ReportEventRequest = api.ReportEventRequest

// ReportRunStatusRequest — обновление статуса run.
type ReportRunStatusRequest = api.ReportRunStatusRequest

// ReportedEvent — событие, принятое API к публикации.
type ReportedEvent = mq.AssetEventPayload

// ReportedRunStatus — статус run, принятый API к публикации.
type ReportedRunStatus = mq.RunStatusPayload

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для API демона.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Assets ---

// ListAssets возвращает все asset графа.
func (c *Client) ListAssets() ([]AssetResponse, error) {
	var assets []AssetResponse
	err := c.list("/api/v1/assets", &assets)
	return assets, err
}

// GetAsset возвращает asset по ключу.
func (c *Client) GetAsset(key string) (*AssetResponse, error) {
	var asset AssetResponse
	err := c.get("/api/v1/assets/"+escapeKey(key), &asset)
	return &asset, err
}

// GetEvaluation возвращает дерево результатов последнего тика для asset.
func (c *Client) GetEvaluation(key string) (*EvaluationResponse, error) {
	var eval EvaluationResponse
	err := c.get("/api/v1/evaluations/"+escapeKey(key), &eval)
	return &eval, err
}

// --- Events ---

// ReportEvent регистрирует материализацию или наблюдение партиции.
func (c *Client) ReportEvent(req ReportEventRequest) (*ReportedEvent, error) {
	var ev ReportedEvent
	err := c.post("/api/v1/events", req, &ev)
	return &ev, err
}

// ReportRunStatus обновляет статус run.
func (c *Client) ReportRunStatus(runID string, req ReportRunStatusRequest) (*ReportedRunStatus, error) {
	var st ReportedRunStatus
	err := c.post("/api/v1/runs/"+url.PathEscape(runID)+"/status", req, &st)
	return &st, err
}

// escapeKey экранирует сегменты ключа asset, сохраняя разделитель "/".
func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, result any) error {
	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
