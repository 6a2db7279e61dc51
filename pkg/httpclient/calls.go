package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/luxsim/helio/pkg/errdefs"
	"github.com/luxsim/helio/pkg/observability"
)

// PostJSON posts the payload as application/json and decodes the JSON
// response into out when out is non-nil.
func (c *Client) PostJSON(ctx context.Context, url string, payload interface{}, out interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return c.annotate(errdefs.Wrap(errdefs.KindInternal, err, "failed to encode request"), url)
	}
	body, _, err := c.post(ctx, url, "application/json", raw)
	if err != nil {
		return err
	}
	return c.decodeJSON(url, body, out)
}

// PostMultipart uploads one file field plus optional form fields and
// decodes the JSON response into out when out is non-nil.
func (c *Client) PostMultipart(ctx context.Context, url, fileField, filename string, file []byte, fields map[string]string, out interface{}) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(fileField, filename)
	if err != nil {
		return c.annotate(errdefs.Wrap(errdefs.KindInternal, err, "failed to build multipart body"), url)
	}
	if _, err := part.Write(file); err != nil {
		return c.annotate(errdefs.Wrap(errdefs.KindInternal, err, "failed to build multipart body"), url)
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return c.annotate(errdefs.Wrap(errdefs.KindInternal, err, "failed to build multipart body"), url)
		}
	}
	if err := writer.Close(); err != nil {
		return c.annotate(errdefs.Wrap(errdefs.KindInternal, err, "failed to build multipart body"), url)
	}

	body, _, err := c.post(ctx, url, writer.FormDataContentType(), buf.Bytes())
	if err != nil {
		return err
	}
	return c.decodeJSON(url, body, out)
}

// PostBinary posts the payload as application/json and returns the raw
// response bytes with their content type. A JSON response where bytes were
// expected is the downstream error convention and surfaces as a Response
// error.
func (c *Client) PostBinary(ctx context.Context, url string, payload interface{}) ([]byte, string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, "", c.annotate(errdefs.Wrap(errdefs.KindInternal, err, "failed to encode request"), url)
	}
	body, contentType, err := c.post(ctx, url, "application/json", raw)
	if err != nil {
		return nil, "", err
	}
	if strings.Contains(contentType, "application/json") {
		if envErr := errorEnvelope(body); envErr != nil {
			return nil, "", c.annotate(envErr, url)
		}
		return nil, "", c.annotate(errdefs.New(errdefs.KindResponse,
			"expected binary response, got JSON"), url)
	}
	return body, contentType, nil
}

// Get probes a URL, returning nil on any 2xx response.
func (c *Client) Get(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return c.annotate(errdefs.Wrap(errdefs.KindInternal, err, "failed to build request"), url)
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.do(req)
	if err != nil {
		return c.annotate(err, url)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.annotate(errorFromStatus(resp.StatusCode, raw), url)
	}
	return nil
}

// post runs one traced, measured POST through the retry loop and returns
// the response body and content type. Non-2xx responses come back as
// classified errors.
func (c *Client) post(ctx context.Context, url, contentType string, payload []byte) (body []byte, respContentType string, err error) {
	start := time.Now()
	path := pathOf(url)

	ctx, span := c.tracer.Start(ctx, observability.SpanServiceCall,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(observability.AttrService, c.service),
			attribute.String(observability.AttrServicePath, path),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if c.metrics != nil {
			c.metrics.RecordServiceCall(ctx, c.service, path, time.Since(start), err)
		}
	}()

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if reqErr != nil {
		err = c.annotate(errdefs.Wrap(errdefs.KindInternal, reqErr, "failed to build request"), url)
		return nil, "", err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json, application/octet-stream, image/png")
	c.authorize(req)

	resp, doErr := c.do(req)
	if doErr != nil {
		err = c.annotate(doErr, url)
		return nil, "", err
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		err = c.annotate(c.classifyTransport(readErr), url)
		return nil, "", err
	}
	span.SetAttributes(attribute.Int(observability.AttrStatusCode, resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err = c.annotate(errorFromStatus(resp.StatusCode, raw), url)
		return nil, "", err
	}
	return raw, resp.Header.Get("Content-Type"), nil
}

// decodeJSON surfaces the downstream error convention before decoding the
// payload into out.
func (c *Client) decodeJSON(url string, body []byte, out interface{}) error {
	if envErr := errorEnvelope(body); envErr != nil {
		return c.annotate(envErr, url)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return c.annotate(errdefs.Wrap(errdefs.KindInternal, err, "invalid JSON response"), url)
	}
	return nil
}

// errorEnvelope detects the downstream error convention
// {"status":"error","error":...} inside an otherwise successful response.
func errorEnvelope(body []byte) *errdefs.Error {
	var envelope struct {
		Status string          `json:"status"`
		Error  json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Status != "error" {
		return nil
	}
	msg := "downstream reported an error"
	if len(envelope.Error) > 0 {
		var s string
		if json.Unmarshal(envelope.Error, &s) == nil && s != "" {
			msg = s
		} else {
			msg = string(envelope.Error)
		}
	}
	return errdefs.New(errdefs.KindResponse, "%s", msg)
}

// errorFromStatus converts a non-2xx response into a classified error
// carrying the downstream status and the leading bytes of the body.
func errorFromStatus(status int, body []byte) *errdefs.Error {
	snippet := strings.TrimSpace(string(body))
	if len(snippet) > maxErrorBodyBytes {
		snippet = snippet[:maxErrorBodyBytes]
	}
	if snippet == "" {
		snippet = http.StatusText(status)
	}
	if status == http.StatusForbidden {
		return errdefs.New(errdefs.KindAuthorization, "%s", snippet)
	}
	e := errdefs.New(errdefs.KindResponse, "HTTP %d: %s", status, snippet)
	e.StatusCode = status
	return e
}

func (c *Client) annotate(err error, url string) error {
	return errdefs.WithCall(errdefs.AsError(err), c.service, pathOf(url))
}

func pathOf(rawURL string) string {
	if u, err := neturl.Parse(rawURL); err == nil && u.Path != "" {
		return u.Path
	}
	return rawURL
}
