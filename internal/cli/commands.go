// Package cli implements the interactive operator console.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"

	"github.com/echorelay-project/echorelay/internal/api"
	"github.com/echorelay-project/echorelay/internal/config"
	"github.com/echorelay-project/echorelay/internal/events"
	"github.com/echorelay-project/echorelay/internal/protocol"
	"github.com/echorelay-project/echorelay/internal/relay"
	"github.com/echorelay-project/echorelay/internal/serverdb"
)

// CLI reads commands from in and writes results to out.
type CLI struct {
	cfg   *config.Config
	relay *relay.Relay
	in    io.Reader
	out   io.Writer
}

// NewCLI creates a console bound to r.
func NewCLI(cfg *config.Config, r *relay.Relay, in io.Reader, out io.Writer) *CLI {
	return &CLI{cfg: cfg, relay: r, in: in, out: out}
}

// Start runs the command loop until ctx is cancelled or input ends.
func (c *CLI) Start(ctx context.Context) {
	fmt.Fprintln(c.out, "\nEchoRelay console ready. Type 'help' for available commands.")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(c.out, "echorelay> ")
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if err := c.Execute(ctx, line); err != nil {
				fmt.Fprintf(c.out, "Error: %v\n", err)
			}
		}
	}
}

// Execute runs one command line.
func (c *CLI) Execute(ctx context.Context, line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(parts[0]), parts[1:]

	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "status", "s":
		c.printStatus()
	case "servers":
		return c.printServers(ctx, args)
	case "peers":
		return c.printPeers(args)
	case "sessions":
		c.printSessions()
	case "account":
		return c.cmdAccount(ctx, args)
	case "ban":
		return c.cmdBan(ctx, args)
	case "unban":
		return c.cmdUnban(ctx, args)
	case "kick":
		return c.cmdKick(ctx, args)
	case "mod":
		return c.cmdModerator(ctx, args)
	case "setconfig":
		return c.cmdSetConfig(args)
	case "serviceconfig":
		return c.cmdServiceConfig(args)
	case "token":
		return c.cmdToken(args)
	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Shutting down EchoRelay...")
		c.relay.EventBus().Emit(ctx, events.Event{Type: events.EventShutdown, Source: "cli"})
	default:
		fmt.Fprintf(c.out, "Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return nil
}

func (c *CLI) printHelp() {
	tw := c.table("Command", "Description")
	tw.AppendBulk([][]string{
		{"status", "Peer, game server and session counts"},
		{"servers [id]", "List game servers or show one in detail"},
		{"peers [service]", "List connected peers"},
		{"sessions", "Lobby, login and matchmaking counters"},
		{"account <user>", "Show an account"},
		{"ban <user> <minutes>", "Ban an account and kick it from game servers"},
		{"unban <user>", "Lift a ban"},
		{"kick <user>", "Kick a user from every game server"},
		{"mod <user> on|off", "Grant or revoke moderator rights"},
		{"setconfig <section.key> <v>", "Update and save a configuration value"},
		{"serviceconfig [server]", "Print the client or game server service config"},
		{"token <perm>... ", "Issue a 24h admin API token"},
		{"quit", "Shut down EchoRelay"},
	})
	tw.Render()
}

func (c *CLI) table(header ...string) *tablewriter.Table {
	tw := tablewriter.NewWriter(c.out)
	tw.SetHeader(header)
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)
	return tw
}

func (c *CLI) printStatus() {
	stats := c.relay.Stats()
	tw := c.table("Metric", "Value")
	tw.Append([]string{"Uptime", (time.Duration(stats.UptimeSec) * time.Second).String()})
	for _, name := range relay.ServiceNames {
		tw.Append([]string{"Peers: " + name, strconv.Itoa(stats.Peers[name])})
	}
	tw.Append([]string{"Game servers", strconv.Itoa(stats.GameServers)})
	tw.Append([]string{"Lobby sessions", strconv.Itoa(stats.Sessions)})
	tw.Append([]string{"Players", strconv.Itoa(stats.Players)})
	tw.Append([]string{"Login sessions", strconv.Itoa(stats.LoginSessions)})
	if stats.PublicIP != "" {
		tw.Append([]string{"Public IP", stats.PublicIP})
	}
	tw.Render()
}

func (c *CLI) printServers(ctx context.Context, args []string) error {
	servers := c.relay.Registry().GetAllInfo(ctx)

	if len(args) > 0 {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid server id: %s", args[0])
		}
		for _, info := range servers {
			if info.ServerID == id {
				c.printServerDetail(info)
				return nil
			}
		}
		return fmt.Errorf("no game server with id %d", id)
	}

	tw := c.table("ID", "Address", "Region", "Lobby", "Players", "Locked", "Session")
	for _, info := range servers {
		tw.Append([]string{
			strconv.FormatUint(info.ServerID, 10),
			fmt.Sprintf("%s:%d", info.Address, info.Port),
			info.Region,
			info.LobbyType,
			fmt.Sprintf("%d/%d", info.PlayerCount, info.PlayerLimit),
			strconv.FormatBool(info.Locked),
			info.SessionID,
		})
	}
	tw.Render()
	return nil
}

func (c *CLI) printServerDetail(info serverdb.Info) {
	fmt.Fprintf(c.out, "\n  Server ID:    %d\n", info.ServerID)
	fmt.Fprintf(c.out, "  Address:      %s:%d (internal %s)\n", info.Address, info.Port, info.Internal)
	fmt.Fprintf(c.out, "  Region:       %s\n", info.Region)
	fmt.Fprintf(c.out, "  Version lock: %d\n", info.VersionLock)
	fmt.Fprintf(c.out, "  Lobby:        %s %s %s\n", info.LobbyType, info.GameType, info.Level)
	fmt.Fprintf(c.out, "  Players:      %d/%d\n", info.PlayerCount, info.PlayerLimit)

	if len(info.Players) > 0 {
		tw := c.table("User", "Name", "Team", "Accepted")
		for _, p := range info.Players {
			tw.Append([]string{p.UserID, p.DisplayName, p.Team, strconv.FormatBool(p.Accepted)})
		}
		tw.Render()
	}
	fmt.Fprintln(c.out)
}

func (c *CLI) printPeers(args []string) error {
	service := ""
	if len(args) > 0 {
		service = args[0]
		if _, ok := c.relay.Service(service); !ok {
			return fmt.Errorf("unknown service %q", service)
		}
	}

	tw := c.table("Service", "ID", "Remote", "User", "Name", "Session", "Connected")
	for _, p := range c.relay.Peers(service) {
		tw.Append([]string{
			p.Service,
			strconv.FormatUint(p.ID, 10),
			p.RemoteAddr,
			p.UserID,
			p.DisplayName,
			p.Session,
			time.Since(p.ConnectedAt).Truncate(time.Second).String(),
		})
	}
	tw.Render()
	return nil
}

func (c *CLI) printSessions() {
	registry := c.relay.Registry()
	mm := c.relay.Matching().Stats()
	tw := c.table("Metric", "Value")
	tw.AppendBulk([][]string{
		{"Lobby sessions", strconv.Itoa(registry.SessionCount())},
		{"Players", strconv.Itoa(registry.PlayerCount())},
		{"Login sessions", strconv.Itoa(c.relay.Login().Sessions().Len())},
		{"Match attempts", strconv.FormatUint(mm.Attempts, 10)},
		{"Ping probes", strconv.FormatUint(mm.Probes, 10)},
		{"Matched", strconv.FormatUint(mm.Succeeded, 10)},
		{"Failed", strconv.FormatUint(mm.Failed, 10)},
	})
	tw.Render()
}

func userArg(args []string, usage string) (string, error) {
	if len(args) < 1 {
		return "", fmt.Errorf("usage: %s", usage)
	}
	return args[0], nil
}

func (c *CLI) cmdAccount(ctx context.Context, args []string) error {
	user, err := userArg(args, "account <user>")
	if err != nil {
		return err
	}
	account, err := c.relay.Account(ctx, user)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "  %s %q moderator=%v", account.ID, account.DisplayName(), account.IsModerator)
	if account.Banned(time.Now()) {
		fmt.Fprintf(c.out, " %s", account.BanMessage())
	}
	fmt.Fprintln(c.out)
	return nil
}

func (c *CLI) cmdBan(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: ban <user> <minutes>")
	}
	minutes, err := strconv.Atoi(args[1])
	if err != nil || minutes < 1 {
		return fmt.Errorf("invalid minutes: %s", args[1])
	}
	account, err := c.relay.Ban(ctx, args[0], time.Now().Add(time.Duration(minutes)*time.Minute))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s %s\n", account.ID, account.BanMessage())
	return nil
}

func (c *CLI) cmdUnban(ctx context.Context, args []string) error {
	user, err := userArg(args, "unban <user>")
	if err != nil {
		return err
	}
	if _, err := c.relay.Unban(ctx, user); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s unbanned\n", user)
	return nil
}

func (c *CLI) cmdKick(ctx context.Context, args []string) error {
	user, err := userArg(args, "kick <user>")
	if err != nil {
		return err
	}
	id, err := protocol.ParseXPlatformID(user)
	if err != nil {
		return err
	}
	n := c.relay.Registry().KickUser(ctx, id)
	fmt.Fprintf(c.out, "Kicked %s from %d sessions\n", user, n)
	return nil
}

func (c *CLI) cmdModerator(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: mod <user> on|off")
	}
	var on bool
	switch strings.ToLower(args[1]) {
	case "on", "yes", "true":
		on = true
	case "off", "no", "false":
	default:
		return fmt.Errorf("expected on or off, got %q", args[1])
	}
	if _, err := c.relay.SetModerator(ctx, args[0], on); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s moderator=%v\n", args[0], on)
	return nil
}

func (c *CLI) cmdSetConfig(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: setconfig <section.key> <value>")
	}
	section, key, ok := strings.Cut(args[0], ".")
	if !ok {
		return fmt.Errorf("expected section.key, got %q", args[0])
	}
	value := strings.Join(args[1:], " ")

	previous := c.cfg.Snapshot()
	if err := c.cfg.UpdateField(section, key, config.ParseValue(value)); err != nil {
		return err
	}
	if result := config.Validate(c.cfg); !result.IsValid() {
		c.cfg.Restore(previous)
		return result.Errors[0]
	}
	if err := c.cfg.Save(); err != nil {
		return err
	}
	log.Info().Str("section", section).Str("key", key).Msg("config updated from console")
	fmt.Fprintf(c.out, "Config updated: %s = %s (restart to apply)\n", args[0], value)
	return nil
}

func (c *CLI) cmdServiceConfig(args []string) error {
	forServer := len(args) > 0 && args[0] == "server"
	sc := c.relay.ServiceConfig(c.relay.AdvertisedHost(), forServer)
	tw := c.table("Key", "Value")
	tw.AppendBulk([][]string{
		{"apiservice_host", sc.APIServiceHost},
		{"configservice_host", sc.ConfigServiceHost},
		{"loginservice_host", sc.LoginServiceHost},
		{"matchingservice_host", sc.MatchingServiceHost},
		{"transactionservice_host", sc.TransactionServiceHost},
		{"publisher_lock", sc.PublisherLock},
	})
	if forServer {
		tw.Append([]string{"serverdb_host", sc.ServerDBHost})
	}
	tw.Render()
	return nil
}

func (c *CLI) cmdToken(args []string) error {
	perms := args
	if len(perms) == 0 {
		perms = api.AllPermissions
	}
	token, err := api.IssueToken(c.cfg.Snapshot().API.JWTSecret, "console", perms, 24*time.Hour)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, token)
	return nil
}
