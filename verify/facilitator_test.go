package verify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbtypes "github.com/vitwit/databox/types"
)

func TestFacilitatorVerifier(t *testing.T) {
	var got facilitatorRequest
	answer := facilitatorResponse{IsValid: true, Payer: "0xpayer"}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/verify", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(answer)
	}))
	defer srv.Close()

	v := NewFacilitatorVerifier(srv.URL, time.Second)
	proof := proofFor("0xfacilitated")
	option := nativeOption("1000")

	res, err := v.Verify(context.Background(), proof, option)
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, "0xpayer", res.Payer)
	assert.Equal(t, dbtypes.ProtocolVersion, got.X402Version)
	assert.Equal(t, "0xfacilitated", got.PaymentProof.Payload.TransactionHash)

	answer = facilitatorResponse{IsValid: false, InvalidReason: ReasonReplay}
	res, err = v.Verify(context.Background(), proof, option)
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, ReasonReplay, res.Reason)

	// invalid with no stated reason defaults to insufficient
	answer = facilitatorResponse{IsValid: false}
	res, err = v.Verify(context.Background(), proof, option)
	require.NoError(t, err)
	assert.Equal(t, ReasonInsufficient, res.Reason)
}

func TestFacilitatorVerifierUnreachable(t *testing.T) {
	v := NewFacilitatorVerifier("http://127.0.0.1:1", 200*time.Millisecond)

	_, err := v.Verify(context.Background(), proofFor("0x1"), nativeOption("1"))
	assert.Error(t, err)
}
