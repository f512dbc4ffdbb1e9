package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talkincode/packflow/internal/client"
	"github.com/talkincode/packflow/internal/workflow"
)

func TestSubmitDisabledOrderMakesNoRequest(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	store := client.NewMemoryStore()
	require.NoError(t, store.Disable(42))
	cli := client.New(srv.URL, store)

	for _, args := range [][]string{
		{"-atomic", "-y", "42"},
		{"-y", "42"},
	} {
		err := cmdSubmit(context.Background(), cli, store, args)
		assert.ErrorIs(t, err, workflow.ErrAlreadySubmitted, "%v", args)
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))
}
