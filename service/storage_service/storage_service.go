package storage_service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/imroc/req"
	"github.com/tidwall/gjson"

	"trust-fund-service/apperr"
)

// Options Pinata settings
type Options struct {
	PinURL   string // pinFileToIPFS endpoint
	Gateway  string // Public gateway prefix, ends with "/"
	JWT      string
	MaxBytes int64
	Timeout  time.Duration
}

// Pinned content address of an uploaded file
type Pinned struct {
	CID  string `json:"cid"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

// StorageService pins images to IPFS through Pinata
type StorageService struct {
	opts Options
	r    *req.Req
}

// NewStorageService create storage service
func NewStorageService(opts Options) *StorageService {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Gateway != "" && !strings.HasSuffix(opts.Gateway, "/") {
		opts.Gateway += "/"
	}
	r := req.New()
	r.SetTimeout(opts.Timeout)
	return &StorageService{opts: opts, r: r}
}

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true, ".svg": true,
}

// CheckImage validates an upload before it is sent anywhere.
func (s *StorageService) CheckImage(fileName string, size int64) error {
	if fileName == "" || size <= 0 {
		return apperr.New(apperr.CodeValidation, "file is required")
	}
	if !imageExts[strings.ToLower(path.Ext(fileName))] {
		return apperr.Newf(apperr.CodeValidation, "unsupported image type %q", path.Ext(fileName))
	}
	if s.opts.MaxBytes > 0 && size > s.opts.MaxBytes {
		return apperr.Newf(apperr.CodeValidation, "file exceeds %d MB", s.opts.MaxBytes>>20)
	}
	return nil
}

// PinImage uploads an image and returns its CID and gateway URL. file is
// closed.
func (s *StorageService) PinImage(ctx context.Context, fileName string, size int64, file io.ReadCloser) (*Pinned, error) {
	defer file.Close()
	if err := s.CheckImage(fileName, size); err != nil {
		return nil, err
	}
	if s.opts.JWT == "" {
		log.Errorf("Pinata JWT is not configured")
		return nil, apperr.New(apperr.CodeUpstreamFailure, "image storage is not configured")
	}

	log.Debugf("Pinning %s (%d bytes)", fileName, size)
	header := req.Header{"Authorization": "Bearer " + s.opts.JWT}
	meta := req.Param{"pinataMetadata": fmt.Sprintf(`{"name":%q}`, path.Base(fileName))}
	resp, err := s.r.Post(s.opts.PinURL, header, meta, req.FileUpload{
		FileName:  path.Base(fileName),
		FieldName: "file",
		File:      file,
	}, ctx)
	if err != nil {
		log.Warnf("Pinata upload of %s: %v", fileName, err)
		return nil, apperr.Wrap(apperr.CodeUpstreamFailure, "image upload failed", err)
	}
	body := resp.Bytes()
	if code := resp.Response().StatusCode; code != http.StatusOK {
		log.Warnf("Pinata answered HTTP %d: %s", code, gjson.GetBytes(body, "error").String())
		return nil, apperr.Newf(apperr.CodeUpstreamFailure, "image upload failed with HTTP %d", code)
	}
	cid := gjson.GetBytes(body, "IpfsHash").String()
	if cid == "" {
		return nil, apperr.New(apperr.CodeUpstreamFailure, "image storage returned no content id")
	}
	p := &Pinned{CID: cid, URL: s.opts.Gateway + cid, Size: gjson.GetBytes(body, "PinSize").Int()}
	log.Infof("Pinned %s as %s", fileName, cid)
	return p, nil
}
