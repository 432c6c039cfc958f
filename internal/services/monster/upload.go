package monster

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
)

// UploadTicket pairs a presigned upload target with the public location the
// file will be readable from. It is obtained per upload and then discarded.
type UploadTicket struct {
	UploadURL   string `json:"upload_url"`
	DownloadURL string `json:"download_url"`
}

// PresignRequest is the body sent to the presign endpoint.
type PresignRequest struct {
	Model    string `json:"model"`
	Filename string `json:"filename"`
	Filetype string `json:"filetype"`
	UUID     string `json:"uuid"`
}

// URLResponse represents an API response carrying a single URL
type URLResponse struct {
	URL string `json:"url"`
}

// readUploadFile enforces the size ceiling and reads the whole file before
// any network call is made.
func (c *Client) readUploadFile(path string) (string, []byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", nil, &Error{Kind: KindIO, Op: "error reading file", Err: err}
	}
	if info.IsDir() {
		return "", nil, &Error{Kind: KindIO, Op: "error reading file", Err: fmt.Errorf("%s is a directory", path)}
	}
	if c.maxUploadSize > 0 && info.Size() > c.maxUploadSize {
		return "", nil, &Error{
			Kind: KindFileTooLarge,
			Op:   "file too large",
			Err:  fmt.Errorf("%s is %d bytes, limit is %d bytes", filepath.Base(path), info.Size(), c.maxUploadSize),
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, &Error{Kind: KindIO, Op: "error reading file", Err: err}
	}
	return filepath.Base(path), data, nil
}

// putObject sends data to a presigned URL. Presigned targets carry their own
// authorization, so no bearer token is attached.
func (c *Client) putObject(ctx context.Context, target string, data []byte) error {
	const op = "failed to upload file"

	resp, err := c.doRequest(ctx, http.MethodPut, target, bytes.NewReader(data), "application/octet-stream", false)
	if err != nil {
		return &Error{Kind: KindTransport, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return statusError(op, resp.StatusCode)
	}
	return nil
}

// postJSON sends body to target and decodes the JSON response into out.
func (c *Client) postJSON(ctx context.Context, op, target string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &Error{Kind: KindDecode, Op: op, Err: err}
	}

	resp, err := c.doRequest(ctx, http.MethodPost, target, bytes.NewReader(payload), "application/json", true)
	if err != nil {
		return &Error{Kind: KindTransport, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return statusError(op, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: KindDecode, Op: op, Err: err}
	}
	return nil
}

// requestTicket asks the API for an upload/download URL pair for filename.
func (c *Client) requestTicket(ctx context.Context, filename string) (*UploadTicket, error) {
	const op = "failed to obtain upload and download URLs"

	endpoint := fmt.Sprintf("%s/upload?%s", c.baseURL, url.Values{"filename": {filename}}.Encode())
	resp, err := c.doRequest(ctx, http.MethodGet, endpoint, nil, "", true)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return nil, statusError(op, resp.StatusCode)
	}

	var ticket UploadTicket
	if err := json.NewDecoder(resp.Body).Decode(&ticket); err != nil {
		return nil, &Error{Kind: KindDecode, Op: op, Err: err}
	}
	if ticket.UploadURL == "" || ticket.DownloadURL == "" {
		return nil, &Error{Kind: KindDecode, Op: op, Err: errors.New("response is missing upload_url or download_url")}
	}
	return &ticket, nil
}

// Upload sends a local file through the upload ticket handshake and returns
// the public download URL.
func (c *Client) Upload(ctx context.Context, path string) (string, error) {
	const op = "error uploading file"

	filename, data, err := c.readUploadFile(path)
	if err != nil {
		return "", wrapError(op, err)
	}

	ticket, err := c.requestTicket(ctx, filename)
	if err != nil {
		return "", wrapError(op, err)
	}

	if err := c.putObject(ctx, ticket.UploadURL, data); err != nil {
		return "", wrapError(op, err)
	}

	c.logger.Debugf("[%s]: uploaded %d bytes", filename, len(data))
	return ticket.DownloadURL, nil
}

// UploadModelInput uploads a file as input for model through the presigned
// URL flow: the file is stored under a freshly generated id and the storage
// path is exchanged for a public URL.
func (c *Client) UploadModelInput(ctx context.Context, model, filetype, path string) (string, error) {
	const op = "error uploading file"

	filename, data, err := c.readUploadFile(path)
	if err != nil {
		return "", wrapError(op, err)
	}

	id := c.newID()

	var presigned URLResponse
	if err := c.postJSON(ctx, "failed to get presigned URL", c.presignURL, PresignRequest{
		Model:    model,
		Filename: filename,
		Filetype: filetype,
		UUID:     id,
	}, &presigned); err != nil {
		return "", wrapError(op, err)
	}
	if presigned.URL == "" {
		return "", wrapError(op, &Error{Kind: KindDecode, Op: "failed to get presigned URL", Err: errors.New("response has no url")})
	}

	if err := c.putObject(ctx, presigned.URL, data); err != nil {
		return "", wrapError(op, err)
	}

	var file URLResponse
	if err := c.postJSON(ctx, "failed to get file URL", c.fileURLURL, map[string]string{
		"s3Url": c.storagePath(model, id, filename),
	}, &file); err != nil {
		return "", wrapError(op, err)
	}
	if file.URL == "" {
		return "", wrapError(op, &Error{Kind: KindDecode, Op: "failed to get file URL", Err: errors.New("response has no url")})
	}

	c.logger.Debugf("[%s]: uploaded %d bytes as %s input", filename, len(data), model)
	return file.URL, nil
}

func (c *Client) storagePath(model, id, filename string) string {
	return fmt.Sprintf("s3://%s/%s/%s_%s", c.uploadBucket, model, id, filename)
}
