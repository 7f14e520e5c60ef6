package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/AgentOS/memmgr/internal/api/wire"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/domain/upload"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/shared/id"
)

const (
	contentTypeOctetStream = "application/octet-stream"

	// sniffLen is how much of an image is read to detect its type.
	sniffLen = 3072
)

func uploadID(c *gin.Context) (id.UploadID, error) {
	uid, err := id.ParseUploadID(c.Param("id"))
	if err != nil {
		return "", fmt.Errorf("%w: %w", wire.ErrBadRequest, err)
	}
	return uid, nil
}

// CreateUpload streams the request body into frames. The body may be
// zstd or gzip compressed as announced by Content-Encoding.
func (h *Handlers) CreateUpload(c *gin.Context) {
	timer := monitoring.NewTimer(h.metrics, "upload")

	enc, err := upload.ParseEncoding(c.GetHeader("Content-Encoding"))
	var img upload.Image
	if err == nil {
		img, err = h.uploads.Receive(c.Request.Body, enc)
	}
	timer.Stop(monitoring.Result(err, wire.Code))
	if err != nil {
		h.fail(c, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordUpload(img.Length)
		h.metrics.SetUploadsStored(h.uploads.Len())
	}
	c.Header("Location", "/v1/uploads/"+img.ID.String())
	c.Header(wire.TableHeader, wire.FormatTable(img.Bundle.Table))
	respond(c, http.StatusCreated, wire.FromImage(img))
}

// ListUploads lists stored images
func (h *Handlers) ListUploads(c *gin.Context) {
	imgs := h.uploads.List()
	out := wire.UploadList{Uploads: make([]wire.Upload, len(imgs)), Count: len(imgs)}
	for i, img := range imgs {
		out.Uploads[i] = wire.FromImage(img)
	}
	respond(c, http.StatusOK, out)
}

// GetUpload returns the image metadata, or its bytes when ?raw is set or
// the client accepts only application/octet-stream. Raw responses carry
// the detected content type of the image.
func (h *Handlers) GetUpload(c *gin.Context) {
	uid, err := uploadID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	img, err := h.uploads.Get(uid)
	if err != nil {
		h.fail(c, err)
		return
	}

	_, raw := c.GetQuery("raw")
	if !raw && c.GetHeader("Accept") != contentTypeOctetStream {
		c.Header(wire.TableHeader, wire.FormatTable(img.Bundle.Table))
		respond(c, http.StatusOK, wire.FromImage(img))
		return
	}

	rc, err := h.uploads.Open(uid)
	if err != nil {
		h.fail(c, err)
		return
	}
	defer rc.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(rc, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		h.fail(c, err)
		return
	}
	head = head[:n]
	ctype := mimetype.Detect(head).String()

	c.DataFromReader(http.StatusOK, img.Length, ctype, io.MultiReader(bytes.NewReader(head), rc), map[string]string{
		"Content-Disposition": `attachment; filename="` + uid.String() + `.img"`,
		"X-Upload-Length":     strconv.FormatInt(img.Length, 10),
	})
}

// DeleteUpload frees a stored image
func (h *Handlers) DeleteUpload(c *gin.Context) {
	timer := monitoring.NewTimer(h.metrics, "delete_upload")

	uid, err := uploadID(c)
	if err == nil {
		err = h.uploads.Delete(uid)
	}
	timer.Stop(monitoring.Result(err, wire.Code))
	if err != nil {
		h.fail(c, err)
		return
	}

	if h.metrics != nil {
		h.metrics.SetUploadsStored(h.uploads.Len())
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"id":      uid.String(),
	})
}
