package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// stateCmd prints the server's admin state, or its public status with -status.
func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	status := fs.Bool("status", false, "fetch /v1/status instead of /admin/v1/state")
	_ = fs.Parse(args)

	path := "/admin/v1/state"
	if *status {
		path = "/v1/status"
	}
	out, err := fetchJSON(&http.Client{Timeout: 5 * time.Second}, *baseURL, path)
	if out != "" {
		fmt.Println(out)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
}

// fetchJSON GETs path from baseURL and returns the body indented. Non-2xx
// responses return the raw body alongside an error.
func fetchJSON(cl *http.Client, baseURL, path string) (string, error) {
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/") + path
	resp, err := cl.Get(u)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode/100 != 2 {
		return strings.TrimSpace(string(b)), fmt.Errorf("%s: %s", u, resp.Status)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, b, "", "  "); err != nil {
		return string(b), nil
	}
	return buf.String(), nil
}
