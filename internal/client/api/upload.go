package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
)

// Upload streams r to the upload endpoint as the multipart field "file" and
// returns the URL the server stored it under.
func (c *Client) Upload(ctx context.Context, filename, mediaType string, r io.Reader) (string, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(filename)))
		if mediaType == "" {
			mediaType = "application/octet-stream"
		}
		header.Set("Content-Type", mediaType)

		part, err := mw.CreatePart(header)
		if err == nil {
			_, err = io.Copy(part, r)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := c.newRequest(ctx, http.MethodPost, pathUpload, nil, pr)
	if err != nil {
		pr.CloseWithError(err)
		return "", &UploadError{Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		pr.CloseWithError(err)
		return "", &UploadError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &UploadError{StatusCode: resp.StatusCode, Err: statusError(resp.StatusCode, data)}
	}

	var out struct {
		FileURL string `json:"fileUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &UploadError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if out.FileURL == "" {
		return "", &UploadError{StatusCode: resp.StatusCode, Err: errors.New("response has no fileUrl")}
	}
	c.log.Debug("uploaded", "file", filename, "url", out.FileURL)
	return out.FileURL, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
