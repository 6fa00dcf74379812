// Package storage wraps the content-addressed storage network behind a
// gateway that transparently encrypts on the way in and decrypts on the way
// out. Objects are immutable once written; the handle returned by the
// network is the only durable reference.
package storage

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/vitwit/databox/codec"
	"github.com/vitwit/databox/logger"
	"github.com/vitwit/databox/metrics"
	"github.com/vitwit/databox/types"
)

// Format classifications reported by Retrieve.
const (
	FormatText   = "text"
	FormatBinary = "binary"
)

// Gateway stores and retrieves resource bytes. Stateless per call; safe for
// concurrent use.
type Gateway struct {
	client  Client
	codec   *codec.Codec
	log     logger.Logger
	metrics metrics.Recorder
}

// NewGateway wires the codec in front of the storage network client.
func NewGateway(client Client, c *codec.Codec, log logger.Logger, rec metrics.Recorder) *Gateway {
	if log == nil {
		log = logger.NoopLogger{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Gateway{client: client, codec: c, log: log, metrics: rec}
}

// Store encrypts data and uploads it, returning the network-assigned record.
func (g *Gateway) Store(ctx context.Context, data []byte, mimeHint string) (*types.StorageRecord, error) {
	start := time.Now()

	encrypted, err := g.codec.Encrypt(data)
	if err != nil {
		return nil, err
	}

	handle, size, err := g.client.Upload(ctx, encrypted)
	if err != nil {
		g.log.Error("storage upload failed", map[string]any{"error": err.Error()})
		return nil, err
	}

	g.metrics.IncCounter("store", map[string]string{"network": "storage"})
	g.metrics.ObserveLatency("store", time.Since(start), map[string]string{"network": "storage"})
	g.log.Info("stored blob", map[string]any{"handle": handle, "size": size})

	return &types.StorageRecord{Handle: handle, ByteLength: size, MimeHint: mimeHint}, nil
}

// Retrieve downloads and decrypts a blob, then classifies it: valid UTF-8
// comes back as format "text" with the decoded string, everything else as
// format "binary" with a base64 payload. Classification never fails the
// call, it only changes the reported format.
func (g *Gateway) Retrieve(ctx context.Context, handle string) (*types.RetrievedContent, error) {
	start := time.Now()

	raw, err := g.client.Download(ctx, handle)
	if err != nil {
		g.log.Error("storage download failed", map[string]any{"handle": handle, "error": err.Error()})
		return nil, err
	}

	plaintext, legacy := g.codec.Decrypt(raw)
	if legacy {
		g.log.Warn("blob failed authentication, serving as legacy", map[string]any{"handle": handle})
		return &types.RetrievedContent{
			Handle:  handle,
			Size:    len(plaintext),
			Format:  FormatBinary,
			Content: base64.StdEncoding.EncodeToString(plaintext),
			Legacy:  true,
			Message: "Failed to decrypt. Data might be unencrypted or corrupted.",
		}, nil
	}

	g.metrics.IncCounter("retrieve", map[string]string{"network": "storage"})
	g.metrics.ObserveLatency("retrieve", time.Since(start), map[string]string{"network": "storage"})

	if utf8.Valid(plaintext) {
		return &types.RetrievedContent{
			Handle:  handle,
			Size:    len(plaintext),
			Format:  FormatText,
			Content: string(plaintext),
		}, nil
	}

	return &types.RetrievedContent{
		Handle:  handle,
		Size:    len(plaintext),
		Format:  FormatBinary,
		Content: base64.StdEncoding.EncodeToString(plaintext),
		Message: fmt.Sprintf("Content is binary, returned as base64 (%d bytes). Decode to get original bytes.", len(plaintext)),
	}, nil
}
