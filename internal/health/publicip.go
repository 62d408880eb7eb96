package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// IPResolver returns this host's public address.
type IPResolver func(ctx context.Context) (netip.Addr, error)

// DefaultIPServices answer a GET with the caller's address as plain text.
var DefaultIPServices = []string{
	"https://api.ipify.org",
	"https://ifconfig.me/ip",
	"https://icanhazip.com",
}

// ErrNoPublicIP is returned when no service produced a usable address.
var ErrNoPublicIP = errors.New("no public IP service answered")

// HTTPResolver queries urls in order and returns the first IPv4 answer.
// A nil client uses a 5 second timeout.
func HTTPResolver(client *http.Client, urls ...string) IPResolver {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if len(urls) == 0 {
		urls = DefaultIPServices
	}
	return func(ctx context.Context) (netip.Addr, error) {
		for _, u := range urls {
			addr, err := fetchIP(ctx, client, u)
			if err != nil {
				log.Debug().Err(err).Str("url", u).Msg("public IP fetch failed")
				continue
			}
			return addr, nil
		}
		return netip.Addr{}, ErrNoPublicIP
	}
}

func fetchIP(ctx context.Context, client *http.Client, url string) (netip.Addr, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return netip.Addr{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return netip.Addr{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return netip.Addr{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return netip.Addr{}, err
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(string(body)))
	if err != nil {
		return netip.Addr{}, err
	}
	if !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("not an IPv4 address: %s", addr)
	}
	return addr, nil
}
