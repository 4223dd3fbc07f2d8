package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"clinicrx/internal/shared/telemetry"
	"clinicrx/prescription/render"
)

const maxResponseBytes = 1 << 20

// Config configures the upload endpoint client.
type Config struct {
	Endpoint     string
	UploadPreset string
	// Folder, when set, is sent as the public_id prefix.
	Folder  string
	Timeout time.Duration
	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
}

// Client posts artifacts to an unsigned media upload endpoint. Each Archive
// call makes exactly one request.
type Client struct {
	endpoint string
	preset   string
	folder   string
	http     *http.Client
}

// NewClient validates cfg and returns a Client.
func NewClient(cfg Config) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("upload endpoint is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		endpoint: endpoint,
		preset:   strings.TrimSpace(cfg.UploadPreset),
		folder:   cfg.Folder,
		http:     httpClient,
	}, nil
}

type uploadResponse struct {
	SecureURL string `json:"secure_url"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Archive uploads art under fileName and returns the attachment URL.
func (c *Client) Archive(ctx context.Context, art render.Artifact, fileName string) (string, error) {
	name := NormalizeFileName(fileName, art.Format)

	body, contentType, err := c.form(art, name)
	if err != nil {
		return "", uploadErrorf(0, err, "build upload form: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return "", uploadErrorf(0, err, "build upload request: %v", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		telemetry.Error("archive upload transport error", map[string]any{"file_name": name, "error": err})
		return "", uploadErrorf(0, err, "%v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", uploadErrorf(resp.StatusCode, err, "read upload response: %v", err)
	}

	var parsed uploadResponse
	decodeErr := json.Unmarshal(raw, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := fmt.Sprintf("upload failed with status %d", resp.StatusCode)
		if decodeErr == nil && parsed.Error != nil && strings.TrimSpace(parsed.Error.Message) != "" {
			message = parsed.Error.Message
		}
		telemetry.Error("archive upload rejected", map[string]any{
			"file_name": name,
			"status":    resp.StatusCode,
			"message":   message,
		})
		return "", &UploadError{StatusCode: resp.StatusCode, Message: message}
	}
	if decodeErr != nil {
		return "", uploadErrorf(resp.StatusCode, decodeErr, "decode upload response: %v", decodeErr)
	}
	if strings.TrimSpace(parsed.SecureURL) == "" {
		return "", uploadErrorf(resp.StatusCode, nil, "upload response has no secure_url")
	}

	url := ForceAttachment(parsed.SecureURL)
	telemetry.Info("archive uploaded", map[string]any{
		"file_name":   name,
		"bytes":       len(art.Data),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return url, nil
}

func (c *Client) form(art render.Artifact, name string) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	contentType := art.ContentType
	if contentType == "" {
		contentType = art.Format.ContentType()
	}
	header.Set("Content-Type", contentType)
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(art.Data); err != nil {
		return nil, "", err
	}

	fields := [][2]string{
		{"upload_preset", c.preset},
		{"resource_type", resourceType(art.Format)},
	}
	if id := publicID(c.folder, name); id != "" {
		fields = append(fields, [2]string{"public_id", id})
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

var _ Archiver = (*Client)(nil)
