package storage

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/databox/codec"
	"github.com/vitwit/databox/types"
)

const testSigningKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

// memClient is a content-addressed in-memory storage network.
type memClient struct {
	mu      sync.Mutex
	objects map[string][]byte
	fail    bool
}

func newMemClient() *memClient {
	return &memClient{objects: make(map[string][]byte)}
}

func (m *memClient) Upload(_ context.Context, data []byte) (string, int, error) {
	if m.fail {
		return "", 0, types.NewStorageUnavailable("network down")
	}
	sum := sha256.Sum256(data)
	handle := "bafy" + hex.EncodeToString(sum[:8])
	m.mu.Lock()
	m.objects[handle] = append([]byte(nil), data...)
	m.mu.Unlock()
	return handle, len(data), nil
}

func (m *memClient) Download(_ context.Context, handle string) ([]byte, error) {
	if m.fail {
		return nil, types.NewStorageUnavailable("network down")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[handle]
	if !ok {
		return nil, types.NewStorageUnavailable("object not found")
	}
	return data, nil
}

func newTestGateway(t *testing.T) (*Gateway, *memClient) {
	t.Helper()
	c, err := codec.New(testSigningKey)
	require.NoError(t, err)
	client := newMemClient()
	return NewGateway(client, c, nil, nil), client
}

func TestGateway_StoreRetrieveText(t *testing.T) {
	g, _ := newTestGateway(t)
	ctx := context.Background()

	rec, err := g.Store(ctx, []byte("hello"), "text/plain")
	require.NoError(t, err)
	assert.NotEmpty(t, rec.Handle)
	assert.Equal(t, codec.MinObjectSize, rec.ByteLength)

	got, err := g.Retrieve(ctx, rec.Handle)
	require.NoError(t, err)
	assert.Equal(t, FormatText, got.Format)
	assert.Equal(t, "hello", got.Content)
	assert.Equal(t, 5, got.Size)
	assert.False(t, got.Legacy)
}

func TestGateway_StoreRetrieveBinary(t *testing.T) {
	g, _ := newTestGateway(t)
	ctx := context.Background()

	payload := []byte{0xff, 0xfe, 0x00, 0x01, 0x80, 0x81}
	rec, err := g.Store(ctx, payload, "")
	require.NoError(t, err)

	got, err := g.Retrieve(ctx, rec.Handle)
	require.NoError(t, err)
	assert.Equal(t, FormatBinary, got.Format)

	decoded, err := base64.StdEncoding.DecodeString(got.Content)
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)
}

func TestGateway_RetrieveLegacyObject(t *testing.T) {
	g, client := newTestGateway(t)
	ctx := context.Background()

	// Written to the network before encryption existed.
	raw := []byte("unencrypted legacy object written long ago, well over header size")
	handle, _, err := client.Upload(ctx, raw)
	require.NoError(t, err)

	got, err := g.Retrieve(ctx, handle)
	require.NoError(t, err)
	assert.True(t, got.Legacy)
	assert.Equal(t, FormatBinary, got.Format)
	decoded, err := base64.StdEncoding.DecodeString(got.Content)
	require.NoError(t, err)
	assert.Equal(t, raw, decoded)
}

func TestGateway_NetworkErrors(t *testing.T) {
	g, client := newTestGateway(t)
	ctx := context.Background()
	client.fail = true

	_, err := g.Store(ctx, []byte("x"), "")
	require.Error(t, err)
	assert.Equal(t, types.ErrStorageUnavailable, types.CodeOf(err))

	_, err = g.Retrieve(ctx, "bafymissing")
	require.Error(t, err)
	assert.Equal(t, types.ErrStorageUnavailable, types.CodeOf(err))

	var dbErr *types.Error
	require.True(t, errors.As(err, &dbErr))
}
