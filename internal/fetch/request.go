// Package fetch contains the download request lifecycle and the bounded
// parallelism scheduler that drives the transfer engine.
package fetch

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rwtk/fetchr/internal/engine"
	"github.com/rwtk/fetchr/internal/headerparse"
	"github.com/rwtk/fetchr/internal/utils"
)

// Request is one URL fetch. It is created by the scheduler, handed to the
// transfer engine, and mutated only through the engine's two callback
// entry points until its completion is processed.
type Request struct {
	id           string
	url          string
	effectiveURL string
	outputDir    string
	status       int
	mediaType    *headerparse.MediaType
	disposition  *headerparse.Disposition
	file         *os.File
	filename     string
	written      int64
	discarding   bool // body is being dropped after a non-2xx status
	log          zerolog.Logger
}

func NewRequest(url, outputDir string) *Request {
	id := uuid.New().String()[:8]
	return &Request{
		id:        id,
		url:       url,
		outputDir: outputDir,
		log:       utils.GetLogger("fetch").With().Str("id", id).Logger(),
	}
}

func (r *Request) ID() string  { return r.id }
func (r *Request) URL() string { return r.url }

// EffectiveURL is the final URL after redirects, known once the transfer
// completes.
func (r *Request) EffectiveURL() string { return r.effectiveURL }

// Written is the number of body bytes written to the output file.
func (r *Request) Written() int64 { return r.written }

// OnBody handles one body chunk. The first chunk after a successful
// status parses the response headers, resolves the output name and opens
// the file; later chunks append. A non-2xx status discards the body by
// accepting zero bytes, which tells the engine to abort the transfer.
func (r *Request) OnBody(meta *engine.ResponseMeta, chunk []byte) int {
	if len(chunk) == 0 {
		return 0
	}
	r.status = meta.StatusCode
	if r.status < 200 || r.status > 299 {
		r.reportStatusFailure()
		return 0
	}
	if r.file == nil {
		r.parseHeaders(meta)
		name := ResolveFilename(r.disposition, meta.Location, r.url)
		if r.outputDir != "" {
			name = filepath.Join(r.outputDir, name)
		}
		file, err := os.OpenFile(name, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
		if err != nil {
			r.log.Error().Err(err).Str("file", name).Msg("Cannot create output file")
			utils.PrintError(fmt.Sprintf("FAILED: %s (%v)", r.url, err))
			r.discarding = true
			return 0
		}
		r.file = file
		r.filename = name
		utils.PrintInfo(fmt.Sprintf("Downloading %s %s %s", r.url, utils.StyleSymbols["arrow"], name))
	}
	written, err := r.file.Write(chunk)
	r.written += int64(written)
	if err != nil {
		r.log.Error().Err(err).Str("file", r.filename).Msg("Write failed")
		return written
	}
	return written
}

// OnComplete finalizes the request. The output file, if one was opened,
// is closed exactly once; a partial file from a failed transfer is left
// in place.
func (r *Request) OnComplete(meta *engine.ResponseMeta, transferErr error) {
	if meta != nil {
		if meta.EffectiveURL != "" {
			r.effectiveURL = meta.EffectiveURL
		}
		if meta.StatusCode != 0 {
			r.status = meta.StatusCode
		}
	}
	if r.file != nil {
		if err := r.file.Close(); err != nil {
			r.log.Warn().Err(err).Str("file", r.filename).Msg("Close failed")
		}
		r.file = nil
	}
	switch {
	case r.discarding:
		// already reported from OnBody
	case transferErr != nil:
		utils.PrintError(fmt.Sprintf("FAILED: %s (%v)", r.url, transferErr))
	case r.status < 200 || r.status > 299:
		r.reportStatusFailure()
	default:
		utils.PrintSuccess(fmt.Sprintf("%s %s (%s)", utils.StyleSymbols["pass"], r.displayName(), humanize.Bytes(uint64(r.written))))
	}
}

func (r *Request) parseHeaders(meta *engine.ResponseMeta) {
	if meta.ContentType != "" {
		mediaType, err := headerparse.ParseMediaType(meta.ContentType)
		if err != nil {
			r.log.Warn().Str("value", meta.ContentType).Msg("Failed to parse content type")
		} else {
			r.mediaType = mediaType
		}
	}
	if meta.ContentDisposition != "" {
		r.disposition = headerparse.ParseContentDisposition(meta.ContentDisposition)
	}
}

func (r *Request) reportStatusFailure() {
	if r.discarding {
		return
	}
	r.discarding = true
	utils.PrintError(fmt.Sprintf("FAILED: %d %s", r.status, r.url))
}

func (r *Request) displayName() string {
	if r.filename != "" {
		return r.filename
	}
	return r.url
}
