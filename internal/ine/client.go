package ine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zerotwo/ine-collector/internal/models"
)

// maxBodyBytes caps a single table payload.
const maxBodyBytes = 256 << 20

// Client fetches table payloads from the INE JSON API.
type Client struct {
	http    *http.Client
	baseURL string
}

// NewClient builds a client with an explicit request timeout. The default
// redirect policy of net/http is kept.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return NewClientWithHTTP(&http.Client{Timeout: timeout}, baseURL)
}

// NewClientWithHTTP wraps an existing http.Client.
func NewClientWithHTTP(client *http.Client, baseURL string) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{http: client, baseURL: strings.TrimRight(baseURL, "/")}
}

// TableURL returns the DATOS_TABLA url for a remote table id.
func (c *Client) TableURL(externalID string) string {
	return c.baseURL + "/DATOS_TABLA/" + url.PathEscape(externalID)
}

// Fetch retrieves the series list of one table. It performs a single attempt.
func (c *Client) Fetch(ctx context.Context, externalID string) (models.SeriesList, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.TableURL(externalID), nil)
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, ExternalID: externalID, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, ExternalID: externalID, Err: fmt.Errorf("request table: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &FetchError{
			Kind:       KindNetwork,
			ExternalID: externalID,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, ExternalID: externalID, Err: fmt.Errorf("read body: %w", err)}
	}

	list, err := decodeSeriesList(body)
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			fe.ExternalID = externalID
			return nil, fe
		}
		return nil, err
	}
	return list, nil
}

// Ping checks that the API root answers 200.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request api root: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return nil
}

// decodeSeriesList accepts either a top-level array or an object carrying
// the array under "Data" or "datos".
func decodeSeriesList(body []byte) (models.SeriesList, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return nil, &FetchError{Kind: KindDecode, Err: errors.New("response body is not valid JSON")}
	}

	switch trimmed[0] {
	case '[':
		var list models.SeriesList
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, &FetchError{Kind: KindDecode, Err: fmt.Errorf("decode payload: %w", err)}
		}
		return list, nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, &FetchError{Kind: KindDecode, Err: fmt.Errorf("decode payload: %w", err)}
		}
		for _, key := range []string{"Data", "datos"} {
			inner, ok := obj[key]
			if !ok {
				continue
			}
			var list models.SeriesList
			if err := json.Unmarshal(inner, &list); err != nil {
				return nil, &FetchError{Kind: KindShape, Err: fmt.Errorf("field %q is not an array", key)}
			}
			return list, nil
		}
		return nil, &FetchError{Kind: KindShape, Err: errors.New("object payload without Data or datos array")}
	default:
		return nil, &FetchError{Kind: KindShape, Err: errors.New("payload is neither an array nor an object")}
	}
}
