package server

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/databox/codec"
	"github.com/vitwit/databox/storage"
	"github.com/vitwit/databox/types"
	"github.com/vitwit/databox/verify"
)

const (
	testSigningKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testPayTo      = "0x384Aa214be0B279cbf211e9b2C992d8633F77848"
	testAsset      = "0x036CbD53842c5426634e7929541eC2318f3dCF7e"
	goodTxHash     = "0x4e3a3754410177e6937ef1f84bba68ea139e8d1a2258c5f85db9f1cd715a1bdd"
)

// memStore is an in-memory storage network.
type memStore struct {
	objects map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (m *memStore) Upload(_ context.Context, data []byte) (string, int, error) {
	sum := sha256.Sum256(data)
	handle := "bafy" + hex.EncodeToString(sum[:8])
	m.objects[handle] = data
	return handle, len(data), nil
}

func (m *memStore) Download(_ context.Context, handle string) ([]byte, error) {
	data, ok := m.objects[handle]
	if !ok {
		return nil, types.NewStorageUnavailable(fmt.Sprintf("no object %s", handle))
	}
	return data, nil
}

// hashVerifier accepts exactly one transaction hash.
type hashVerifier struct {
	accept string
}

func (v *hashVerifier) Verify(_ context.Context, proof *types.PaymentProof, _ *types.PaymentOption) (*verify.Result, error) {
	if proof.Payload.TransactionHash == v.accept {
		return verify.Accept("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"), nil
	}
	return verify.Reject(verify.ReasonNotFound), nil
}

func testPrice() types.PriceSpec {
	return types.PriceSpec{
		Amount:       "10000",
		AssetAddress: testAsset,
		Network:      types.NetworkBaseSepolia,
		PayToAddress: testPayTo,
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	c, err := codec.New(testSigningKey)
	require.NoError(t, err)
	gateway := storage.NewGateway(newMemStore(), c, nil, nil)

	s := New(gateway, &hashVerifier{accept: goodTxHash}, testPrice())
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return srv
}

func proofHeader(t *testing.T, txHash string) string {
	t.Helper()
	proof := &types.PaymentProof{
		X402Version: types.ProtocolVersion,
		Scheme:      types.SchemeExact,
		Payload: types.ProofPayload{
			TransactionHash: txHash,
			Network:         types.NetworkBaseSepolia,
		},
	}
	header, err := proof.EncodeHeader()
	require.NoError(t, err)
	return header
}

func doPaid(t *testing.T, method, url string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(types.PaymentHeader, proofHeader(t, goodTxHash))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func uploadMessageBody(name, price string) []byte {
	body, _ := json.Marshal(map[string]any{
		"message":     "hello",
		"name":        name,
		"description": "a greeting message",
		"priceUSDC":   price,
		"payAddress":  testPayTo,
	})
	return body
}

func TestHelloIsFree(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/hello")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "world", body["hello"])
}

func TestUnpaidDownloadGetsChallenge(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/download?id=bafywhatever")
	require.NoError(t, err)
	require.Equal(t, http.StatusPaymentRequired, resp.StatusCode)

	var challenge types.PaymentChallenge
	decodeBody(t, resp, &challenge)
	require.NoError(t, challenge.Validate())
	assert.Equal(t, types.ProtocolVersion, challenge.X402Version)
	assert.Equal(t, "10000", challenge.Accepts[0].MaxAmountRequired)
	assert.Equal(t, testPayTo, challenge.Accepts[0].PayTo)
	assert.Equal(t, testAsset, challenge.Accepts[0].Asset)
}

func TestUploadThenDownloadRoundTrip(t *testing.T) {
	srv := newTestServer(t)

	resp := doPaid(t, http.MethodPost, srv.URL+"/upload", uploadMessageBody("greeting", "10000"))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var uploaded uploadResponse
	decodeBody(t, resp, &uploaded)
	assert.True(t, uploaded.Success)
	assert.NotEmpty(t, uploaded.Handle)
	assert.Equal(t, "message", uploaded.Type)
	assert.Equal(t, "text/plain", uploaded.Filetype)

	resp = doPaid(t, http.MethodGet, srv.URL+"/download?id="+uploaded.Handle, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var downloaded downloadResponse
	decodeBody(t, resp, &downloaded)
	assert.Equal(t, "text", downloaded.Format)
	assert.Equal(t, "hello", downloaded.Content)
	assert.Equal(t, "greeting", downloaded.Name)

	// path-parameter form serves the same object
	resp = doPaid(t, http.MethodGet, srv.URL+"/download/"+uploaded.Handle, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &downloaded)
	assert.Equal(t, "hello", downloaded.Content)
}

func TestDownloadChallengeQuotesDatasetPrice(t *testing.T) {
	srv := newTestServer(t)

	resp := doPaid(t, http.MethodPost, srv.URL+"/upload", uploadMessageBody("pricy", "250000"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var uploaded uploadResponse
	decodeBody(t, resp, &uploaded)

	resp, err := http.Get(srv.URL + "/download?id=" + uploaded.Handle)
	require.NoError(t, err)
	require.Equal(t, http.StatusPaymentRequired, resp.StatusCode)

	var challenge types.PaymentChallenge
	decodeBody(t, resp, &challenge)
	assert.Equal(t, "250000", challenge.Accepts[0].MaxAmountRequired)
}

func TestRejectedProofGets402WithReason(t *testing.T) {
	srv := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/download?id=bafywhatever", nil)
	require.NoError(t, err)
	req.Header.Set(types.PaymentHeader, proofHeader(t, "0x1111111111111111111111111111111111111111111111111111111111111111"))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusPaymentRequired, resp.StatusCode)

	var body errorBody
	decodeBody(t, resp, &body)
	assert.Equal(t, kindPaymentRejected, body.Kind)
	assert.Equal(t, verify.ReasonNotFound, body.Details["reason"])
}

func TestMalformedProofHeaderGets402(t *testing.T) {
	srv := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/download?id=x", nil)
	require.NoError(t, err)
	req.Header.Set(types.PaymentHeader, "not base64 at all!!")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusPaymentRequired, resp.StatusCode)

	var body errorBody
	decodeBody(t, resp, &body)
	assert.Equal(t, kindProtocolError, body.Kind)
}

func TestDownloadMissingHandleIs400(t *testing.T) {
	srv := newTestServer(t)

	resp := doPaid(t, http.MethodGet, srv.URL+"/download", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body errorBody
	decodeBody(t, resp, &body)
	assert.Equal(t, kindBadRequest, body.Kind)
}

func TestDownloadUnknownHandleIsStorageError(t *testing.T) {
	srv := newTestServer(t)

	resp := doPaid(t, http.MethodGet, srv.URL+"/download?id=bafymissing", nil)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)

	var body errorBody
	decodeBody(t, resp, &body)
	assert.Equal(t, kindStorageUnavailable, body.Kind)
}

func TestUploadValidation(t *testing.T) {
	srv := newTestServer(t)

	cases := map[string]map[string]any{
		"missing name": {
			"message": "hi", "description": "d", "priceUSDC": "1", "payAddress": testPayTo,
		},
		"missing description": {
			"message": "hi", "name": "n", "priceUSDC": "1", "payAddress": testPayTo,
		},
		"missing price": {
			"message": "hi", "name": "n", "description": "d", "payAddress": testPayTo,
		},
		"missing pay address": {
			"message": "hi", "name": "n", "description": "d", "priceUSDC": "1",
		},
		"no content source": {
			"name": "n", "description": "d", "priceUSDC": "1", "payAddress": testPayTo,
		},
		"file without filename": {
			"file": base64.StdEncoding.EncodeToString([]byte("x")),
			"name": "n", "description": "d", "priceUSDC": "1", "payAddress": testPayTo,
		},
	}

	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			body, _ := json.Marshal(payload)
			resp := doPaid(t, http.MethodPost, srv.URL+"/upload", body)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestUploadBinaryFile(t *testing.T) {
	srv := newTestServer(t)

	payload := []byte{0x01, 0x02, 0xfe, 0xff, 0x81}
	body, _ := json.Marshal(map[string]any{
		"file":        base64.StdEncoding.EncodeToString(payload),
		"filename":    "blob.zip",
		"name":        "archive",
		"description": "a binary archive",
		"priceUSDC":   "5000",
		"payAddress":  testPayTo,
	})

	resp := doPaid(t, http.MethodPost, srv.URL+"/upload", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var uploaded uploadResponse
	decodeBody(t, resp, &uploaded)
	assert.Equal(t, "application/zip", uploaded.Filetype)
	assert.Equal(t, "application/zip", uploaded.Type)

	resp = doPaid(t, http.MethodGet, srv.URL+"/download?id="+uploaded.Handle, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var downloaded downloadResponse
	decodeBody(t, resp, &downloaded)
	assert.Equal(t, "binary", downloaded.Format)

	decoded, err := base64.StdEncoding.DecodeString(downloaded.Content)
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)
}

func TestDiscovery(t *testing.T) {
	srv := newTestServer(t)

	resp := doPaid(t, http.MethodPost, srv.URL+"/upload", uploadMessageBody("weather-report", "10000"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err := http.Get(srv.URL + "/discover_all")
	require.NoError(t, err)
	var all struct {
		Success bool            `json:"success"`
		Count   int             `json:"count"`
		Results []types.Dataset `json:"results"`
	}
	decodeBody(t, resp, &all)
	assert.True(t, all.Success)
	require.Equal(t, 1, all.Count)
	assert.Equal(t, "weather-report", all.Results[0].Name)

	resp, err = http.Get(srv.URL + "/discover_query?q=weather")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var found struct {
		Success bool          `json:"success"`
		Result  types.Dataset `json:"result"`
	}
	decodeBody(t, resp, &found)
	assert.Equal(t, "weather-report", found.Result.Name)

	resp, err = http.Get(srv.URL + "/discover_query?q=zzzzqqqq")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/discover_query")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestUploadFromURL(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4 fake"))
	}))
	defer origin.Close()

	c, err := codec.New(testSigningKey)
	require.NoError(t, err)
	gateway := storage.NewGateway(newMemStore(), c, nil, nil)
	s := New(gateway, &hashVerifier{accept: goodTxHash}, testPrice())
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	body, _ := json.Marshal(map[string]any{
		"url":         origin.URL + "/paper.pdf",
		"name":        "paper",
		"description": "a research paper",
		"priceUSDC":   "5000000",
		"payAddress":  testPayTo,
	})

	resp := doPaid(t, http.MethodPost, srv.URL+"/upload", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var uploaded uploadResponse
	decodeBody(t, resp, &uploaded)
	assert.Equal(t, "application/pdf", uploaded.Filetype)
	assert.Equal(t, "paper.pdf", uploaded.Filename)
}
