package lookup

import (
	"context"
	"fmt"
	"net"
	"strings"
)

// AddressClient asks an external service for the caller's public address.
type AddressClient struct {
	url string
	c   caller
}

func NewAddressClient(url string, opts Options) *AddressClient {
	return &AddressClient{url: url, c: newCaller("address", opts)}
}

// Detect returns the detected address. An empty or unparseable address is a
// ServiceError.
func (a *AddressClient) Detect(ctx context.Context) (string, error) {
	var body struct {
		IP string `json:"ip"`
	}
	if err := a.c.getJSON(ctx, a.url, &body); err != nil {
		return "", err
	}

	ip := strings.TrimSpace(body.IP)
	if net.ParseIP(ip) == nil {
		return "", &ServiceError{Service: a.c.service, Err: fmt.Errorf("invalid address %q", body.IP)}
	}
	return ip, nil
}
