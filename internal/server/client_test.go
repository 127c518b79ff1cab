package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type httptestClient struct {
	base string
}

func (c *httptestClient) getJSON(path string, v any) error {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(c.base + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
