package node

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"trust-fund-service/apperr"
)

// fakeNode answers JSON-RPC calls with canned results keyed by method.
func fakeNode(t *testing.T, results map[string]string) (*httptest.Server, *[]http.Header) {
	t.Helper()
	var headers []http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = append(headers, r.Header.Clone())
		var body struct {
			ID     int64         `json:"id"`
			Method string        `json:"method"`
			Params []interface{} `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		res, ok := results[body.Method]
		if !ok {
			fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"error":{"code":-32601,"message":"method not found"}}`, body.ID)
			return
		}
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"result":%s}`, body.ID, res)
	}))
	t.Cleanup(srv.Close)
	return srv, &headers
}

func TestBlockNumber(t *testing.T) {
	srv, headers := fakeNode(t, map[string]string{"eth_blockNumber": `"0x1b4"`})
	c := NewClient(srv.URL, "tok", time.Second)

	n, err := c.BlockNumber(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 436 {
		t.Fatalf("got %d", n)
	}
	if got := (*headers)[0].Get("Authorization"); got != "Bearer tok" {
		t.Fatalf("authorization header %q", got)
	}
}

func TestTransactionReceipt(t *testing.T) {
	tests := []struct {
		name   string
		result string
		want   ReceiptStatus
	}{
		{"success", `{"transactionHash":"0xAB","status":"0x1","blockNumber":"0x10","from":"0xF","to":"0xC"}`, ReceiptSuccess},
		{"reverted", `{"transactionHash":"0xab","status":"0x0","blockNumber":"0x10"}`, ReceiptReverted},
		{"pending", `null`, ReceiptNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv, _ := fakeNode(t, map[string]string{"eth_getTransactionReceipt": tc.result})
			rc, err := NewClient(srv.URL, "", time.Second).TransactionReceipt(context.Background(), "0xab")
			if err != nil {
				t.Fatal(err)
			}
			if rc.Status != tc.want {
				t.Fatalf("got %v, want %v", rc.Status, tc.want)
			}
			if tc.want == ReceiptSuccess && (rc.BlockNumber != 16 || rc.TxHash != "0xab") {
				t.Fatalf("receipt %+v", rc)
			}
		})
	}
}

func TestRPCErrorsAreUpstreamFailures(t *testing.T) {
	srv, _ := fakeNode(t, map[string]string{})
	_, err := NewClient(srv.URL, "", time.Second).BlockNumber(context.Background())
	if !apperr.IsCategory(err, apperr.CategoryUpstreamFailure) {
		t.Fatalf("got %v", err)
	}

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer down.Close()
	_, err = NewClient(down.URL, "", time.Second).TransactionReceipt(context.Background(), "0x1")
	if !apperr.IsCategory(err, apperr.CategoryUpstreamFailure) {
		t.Fatalf("got %v", err)
	}
}

func TestInitClientReadsChain(t *testing.T) {
	srv, headers := fakeNode(t, map[string]string{"eth_blockNumber": `"0x10"`})
	var chain ChainReader = InitClient(srv.URL, "tok", time.Second)

	n, err := chain.BlockNumber(context.Background())
	if err != nil || n != 16 {
		t.Fatalf("got %d, %v", n, err)
	}
	if got := (*headers)[0].Get("Authorization"); got != "Bearer tok" {
		t.Fatalf("authorization header %q", got)
	}
}
