package common

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/phayes/freeport"
	"github.com/stretchr/testify/require"
)

const testCsv = "algo;size\nPnS1;64\n"

func TestLoadFile(t *testing.T) {
	r := require.New(t)
	p := filepath.Join(t.TempDir(), "classes.csv")
	r.NoError(os.WriteFile(p, []byte(testCsv), 0644))

	b, err := LoadFromFileOrHttpUrl(context.Background(), p)
	r.NoError(err)
	r.Equal(testCsv, string(b))

	b, err = LoadFromFileOrHttpUrl(context.Background(), "file://"+p)
	r.NoError(err)
	r.Equal(testCsv, string(b))

	_, err = LoadFromFileOrHttpUrl(context.Background(), "gopher://x/y")
	r.Error(err)
}

func TestLoadHttpRetries(t *testing.T) {
	r := require.New(t)
	port, err := freeport.GetFreePort()
	r.NoError(err)
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/classes.csv", func(w http.ResponseWriter, req *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(testCsv))
	})
	mux.HandleFunc("/missing.csv", func(w http.ResponseWriter, req *http.Request) {
		http.NotFound(w, req)
	})
	l, err := net.Listen("tcp", addr)
	r.NoError(err)
	srv := &http.Server{Handler: mux}
	go srv.Serve(l)
	t.Cleanup(func() { srv.Close() })

	b, err := LoadFromFileOrHttpUrl(context.Background(), "http://"+addr+"/classes.csv")
	r.NoError(err)
	r.Equal(testCsv, string(b))
	r.EqualValues(2, hits.Load())

	_, err = LoadFromFileOrHttpUrl(context.Background(), "http://"+addr+"/missing.csv")
	var fe *FetchError
	r.ErrorAs(err, &fe)
	r.Equal(http.StatusNotFound, fe.Status)
	r.False(fe.Transient())
	r.Contains(fe.Error(), "/missing.csv: http status 404")
}

func TestRowError(t *testing.T) {
	r := require.New(t)
	sentinel := errors.New("boom")
	err := WrapRow(7, "PnSn", sentinel)
	r.ErrorIs(err, sentinel)
	r.Equal("row 7 (PnSn): boom", err.Error())

	// already attributed errors keep their original row
	r.Same(err, WrapRow(9, "unit", err))
	r.Nil(WrapRow(1, "x", nil))
	r.Equal("synthetic unit class: boom", WrapRow(0, "unit", sentinel).Error())
}

func TestTrunc(t *testing.T) {
	r := require.New(t)
	r.EqualValues(255, TruncU8(255))
	r.Panics(func() { TruncU8(256) })
	r.Panics(func() { TruncU8(-1) })
	r.EqualValues(1<<32-1, TruncU32(uint64(1<<32-1)))
	r.Panics(func() { TruncU32(uint64(1 << 32)) })
	r.EqualValues(-1, TruncI32(-1))
}
