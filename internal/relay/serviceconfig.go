package relay

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	jsoniter "github.com/json-iterator/go"
)

// ServiceConfigDoc is the service locator document game clients and game
// servers read to find the relay.
type ServiceConfigDoc struct {
	APIServiceHost         string `json:"apiservice_host"`
	ConfigServiceHost      string `json:"configservice_host"`
	LoginServiceHost       string `json:"loginservice_host"`
	MatchingServiceHost    string `json:"matchingservice_host"`
	ServerDBHost           string `json:"serverdb_host,omitempty"`
	TransactionServiceHost string `json:"transactionservice_host"`
	PublisherLock          string `json:"publisher_lock"`
	ServerPlugin           string `json:"server_plugin,omitempty"`
}

// DefaultPublisherLock is the publisher lock written into generated configs.
const DefaultPublisherLock = "rad15_live"

// ServiceConfig builds the locator document for host. The serverdb entry
// is only included for game server configs and carries the API key when
// one is set.
func (r *Relay) ServiceConfig(host string, forGameServer bool) ServiceConfigDoc {
	snap := r.cfg.Snapshot()
	addr := net.JoinHostPort(host, strconv.Itoa(snap.Server.Port))
	scheme, apiScheme := "ws", "http"
	if snap.Server.TLSEnabled {
		scheme, apiScheme = "wss", "https"
	}
	ws := func(path string) string { return fmt.Sprintf("%s://%s%s", scheme, addr, path) }

	sc := ServiceConfigDoc{
		APIServiceHost:         fmt.Sprintf("%s://%s/api", apiScheme, addr),
		ConfigServiceHost:      ws(snap.Server.Paths.Config),
		LoginServiceHost:       ws(snap.Server.Paths.Login) + "?auth=AccountPassword&displayname=AccountName",
		MatchingServiceHost:    ws(snap.Server.Paths.Matching),
		TransactionServiceHost: ws(snap.Server.Paths.Transaction),
		PublisherLock:          DefaultPublisherLock,
	}
	if forGameServer {
		sc.ServerDBHost = ws(snap.Server.Paths.ServerDB)
		if snap.ServerDB.APIKey != "" {
			sc.ServerDBHost += "?api_key=" + url.QueryEscape(snap.ServerDB.APIKey)
		}
	}
	return sc
}

// AdvertisedHost picks the host written into service configs: the
// configured public host, the detected public IP, or the loopback address.
func (r *Relay) AdvertisedHost() string {
	if h := r.cfg.Snapshot().Server.PublicHost; h != "" {
		return h
	}
	if ip := r.registry.PublicIP(); ip.IsValid() {
		return ip.String()
	}
	return "127.0.0.1"
}

// WriteServiceConfig writes the game server locator document to path.
func (r *Relay) WriteServiceConfig(path string) error {
	sc := r.ServiceConfig(r.AdvertisedHost(), true)
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(sc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode service config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write service config: %w", err)
	}
	r.logger.Info().Str("path", path).Msg("service config written")
	return nil
}
