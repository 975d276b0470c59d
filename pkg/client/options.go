package client

import "net/http"

// Option configures the Client.
type Option interface {
	apply(*Client)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*Client)

func (f optionFunc) apply(c *Client) { f(c) }

// WithAPIKey sends the key as a Bearer token with every request.
func WithAPIKey(key string) Option {
	return optionFunc(func(c *Client) {
		c.apiKey = key
	})
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return optionFunc(func(c *Client) {
		if h != nil {
			c.httpc = h
		}
	})
}
