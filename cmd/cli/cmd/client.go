package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"layerplane/pkg/api"
)

// LayerClient handles API calls to the layerplane server.
type LayerClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewLayerClient creates a new client with the given base URL and token.
// Builds can take many minutes, so the timeout only guards against a dead server.
func NewLayerClient(baseURL, token string) *LayerClient {
	return &LayerClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Minute,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
	// Details holds every violation of a rejected layer request.
	Details []string
}

func (e *APIError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("API error (%d): %s", e.StatusCode, strings.Join(e.Details, "; "))
	}
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// GenerateRequest is the input of GenerateLayer.
type GenerateRequest struct {
	PythonVersion string
	LayerName     string
	Requirements  []string
}

// Layer is a downloaded layer archive.
type Layer struct {
	Filename string
	Data     []byte
}

// GenerateLayer sends POST /generate_layer/ as a multipart form and returns the archive.
func (c *LayerClient) GenerateLayer(req GenerateRequest) (*Layer, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := [][2]string{
		{api.FieldPythonVersion, req.PythonVersion},
		{api.FieldLayerName, req.LayerName},
	}
	for _, r := range req.Requirements {
		fields = append(fields, [2]string{api.FieldRequirements, r})
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("failed to encode form: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode form: %w", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, c.BaseURL+"/generate_layer/", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	c.authorize(httpReq)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp.StatusCode, respBody)
	}

	filename := attachmentName(resp.Header.Get("Content-Disposition"), req.LayerName+".zip")
	return &Layer{Filename: filename, Data: respBody}, nil
}

// attachmentName returns the bare file name from a Content-Disposition
// header. Directory parts are dropped so the download stays where the user
// asked for it.
func attachmentName(header, fallback string) string {
	if _, params, err := mime.ParseMediaType(header); err == nil {
		if name := baseName(params["filename"]); name != "" {
			return name
		}
	}
	if name := baseName(fallback); name != "" {
		return name
	}
	return "layer.zip"
}

func baseName(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	switch name {
	case ".", "..", "/":
		return ""
	}
	return name
}

// ListVersions sends GET /versions.
func (c *LayerClient) ListVersions() ([]string, error) {
	var result api.VersionsResponse
	if err := c.getJSON("/versions", &result); err != nil {
		return nil, err
	}
	return result.Versions, nil
}

// ListBuilds sends GET /builds to retrieve the build history.
func (c *LayerClient) ListBuilds(limit, offset int) (*api.ListBuildsResponse, error) {
	q := url.Values{}
	q.Set("limit", fmt.Sprint(limit))
	q.Set("offset", fmt.Sprint(offset))

	var result api.ListBuildsResponse
	if err := c.getJSON("/builds?"+q.Encode(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *LayerClient) getJSON(endpoint string, out any) error {
	httpReq, err := http.NewRequest(http.MethodGet, c.BaseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.authorize(httpReq)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return decodeError(resp.StatusCode, respBody)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (c *LayerClient) authorize(req *http.Request) {
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
}

// decodeError maps both error bodies of the API onto APIError.
func decodeError(status int, body []byte) error {
	apiErr := &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}

	var list api.ValidationErrorResponse
	if err := json.Unmarshal(body, &list); err == nil && len(list.Detail) > 0 {
		apiErr.Details = list.Detail
		return apiErr
	}
	var single api.ErrorResponse
	if err := json.Unmarshal(body, &single); err == nil && single.Detail != "" {
		apiErr.Message = single.Detail
	}
	return apiErr
}
