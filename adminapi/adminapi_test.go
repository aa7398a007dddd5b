package adminapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"netkit/cluster"
)

type fakeNodeLister struct {
	nodes []cluster.Node
}

func (f fakeNodeLister) AllNodes() []cluster.Node { return f.nodes }

func TestHealthzMetricsAndClusterNodes(t *testing.T) {
	reg := prometheus.NewRegistry()
	nodes := fakeNodeLister{nodes: []cluster.Node{
		{ID: "n1", Addr: "127.0.0.1", Port: 9001, Active: true},
	}}

	srv, err := New("127.0.0.1:18099", reg, nodes)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)

	resp, err := http.Get("http://127.0.0.1:18099/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "ok" {
		t.Fatalf("healthz body = %q, want ok", body)
	}

	resp, err = http.Get("http://127.0.0.1:18099/cluster/nodes")
	if err != nil {
		t.Fatalf("get cluster/nodes: %v", err)
	}
	var got []cluster.Node
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if len(got) != 1 || got[0].ID != "n1" {
		t.Fatalf("cluster nodes = %+v, want one n1 entry", got)
	}

	resp, err = http.Get("http://127.0.0.1:18099/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d, want 200", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}
