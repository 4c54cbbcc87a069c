package scoreapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"

	"github.com/okian/crediscout/internal/domain/model"
)

const (
	uploadField  = "file"
	fullProgress = 100
)

// Upload streams one statement file as a multipart form. size is the length
// of r, or negative when unknown; a known size yields an exact
// Content-Length and percentage progress. progress, when non-nil, receives
// the share of the body sent; successive values never decrease.
func (c *Client) Upload(ctx context.Context, token, name string, size int64, r io.Reader, progress func(percent int)) (model.UploadReceipt, error) {
	head, tail, contentType, err := multipartFrame(name)
	if err != nil {
		return model.UploadReceipt{}, err
	}

	total := int64(-1)
	if size >= 0 {
		total = int64(len(head)) + size + int64(len(tail))
	}
	body := io.MultiReader(bytes.NewReader(head), r, bytes.NewReader(tail))
	pr := &progressReader{r: body, total: total, report: progress}

	req, err := c.newRequest(ctx, http.MethodPost, uploadPath, token, pr)
	if err != nil {
		return model.UploadReceipt{}, err
	}
	req.ContentLength = total
	req.Header.Set("Content-Type", contentType)

	respBody, err := c.do(req, "upload", c.jsonLimit)
	if err != nil {
		return model.UploadReceipt{}, err
	}
	pr.finish()

	var wire uploadResponse
	if len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, &wire); err != nil {
			return model.UploadReceipt{}, fmt.Errorf("%w: decode upload: %v", ErrInvalidPayload, err)
		}
	}
	return wire.receipt(), nil
}

// multipartFrame returns the bytes written before and after the file part
// of a single-field form, so the file itself can be streamed between them.
func multipartFrame(name string) (head, tail []byte, contentType string, err error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if _, err := mw.CreateFormFile(uploadField, name); err != nil {
		return nil, nil, "", fmt.Errorf("create form file: %w", err)
	}
	head = bytes.Clone(buf.Bytes())
	buf.Reset()
	if err := mw.Close(); err != nil {
		return nil, nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	tail = bytes.Clone(buf.Bytes())
	return head, tail, mw.FormDataContentType(), nil
}

// progressReader reports how much of the request body has been read.
type progressReader struct {
	r      io.Reader
	total  int64
	report func(percent int)

	mu   sync.Mutex
	read int64
	last int
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.advance(int64(n))
	}
	return n, err
}

func (p *progressReader) advance(n int64) {
	if p.report == nil || p.total <= 0 {
		return
	}
	p.mu.Lock()
	p.read += n
	pct := int(p.read * fullProgress / p.total)
	if pct > fullProgress {
		pct = fullProgress
	}
	if pct <= p.last {
		p.mu.Unlock()
		return
	}
	p.last = pct
	p.mu.Unlock()
	p.report(pct)
}

// finish reports completion if the transport did not surface the final read.
func (p *progressReader) finish() {
	if p.report == nil {
		return
	}
	p.mu.Lock()
	done := p.last >= fullProgress
	p.last = fullProgress
	p.mu.Unlock()
	if !done {
		p.report(fullProgress)
	}
}
