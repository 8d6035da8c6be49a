package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"udpnat/internal/config"
	"udpnat/internal/dispatch"
	"udpnat/internal/metrics"
	"udpnat/internal/udpnat"
)

var version = "dev"

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "udpnatd",
	Short: "A UDP NAT session manager relay",
	Long: `udpnatd terminates client UDP traffic on a single listening socket,
multiplexes it across per-flow outbound sockets via the configured
dispatcher, and reaps flows that go idle.`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the relay",
	RunE:  runRelay,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(version)
		return nil
	},
}

func main() {
	runCmd.Flags().StringVarP(&cfgPath, "config", "c", "udpnatd.yaml", "config file path")
	rootCmd.AddCommand(runCmd, versionCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runRelay(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	log, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher, err := buildDispatcher(cfg)
	if err != nil {
		return err
	}

	reg := metrics.NewRegistry()
	if cfg.Metrics.Enable {
		go func() {
			if err := reg.StartServer(ctx, cfg.Metrics.Addr); err != nil {
				log.Error("metrics server stopped", zap.Error(err))
			}
		}()
		log.Info("metrics listening", zap.String("addr", cfg.Metrics.Addr))
	}

	mgr := udpnat.NewManager(ctx, dispatcher,
		udpnat.WithIdleTimeout(cfg.Table.IdleTimeout),
		udpnat.WithSweepInterval(cfg.Table.SweepInterval),
		udpnat.WithUplinkQueueDepth(cfg.Table.UplinkQueueDepth),
		udpnat.WithMetrics(reg),
		udpnat.WithLogger(log),
	)
	defer mgr.Close()

	laddr, err := net.ResolveUDPAddr("udp", cfg.Listen.Addr)
	if err != nil {
		return fmt.Errorf("resolve listen addr %s: %w", cfg.Listen.Addr, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return fmt.Errorf("listen udp %s: %w", cfg.Listen.Addr, err)
	}
	defer conn.Close()
	log.Info("listening", zap.String("addr", conn.LocalAddr().String()))

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigc
		log.Info("shutting down")
		cancel()
		_ = conn.Close()
	}()

	serve(ctx, conn, mgr, cfg.Listen.Addr)
	return nil
}

// serve reads client datagrams off conn and admits each onto the manager,
// synthesizing a flow key from the listening address and the client's
// observed source address.
func serve(ctx context.Context, conn *net.UDPConn, mgr *udpnat.Manager, listener string) {
	buf := make([]byte, udpnat.MaxPayloadSize)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				continue
			}
		}

		payload := append([]byte(nil), buf[:n]...)
		client := udpnat.NewEndpoint(from.IP.String(), uint16(from.Port))
		key := udpnat.FlowKey{Client: client, Listener: listener}
		sink := &udpClientSink{conn: conn, client: from}

		// Destination is learned from the caller out of band in a real
		// transparent-proxy deployment (e.g. SO_ORIGINAL_DST); here the
		// demo relay synthesizes a placeholder and relies on
		// fixedTargetDispatcher (plain mode) or the configured Outline
		// endpoint (outline mode) to supply the real one per packet.
		pkt, err := udpnat.NewPacket(payload, client, client)
		if err != nil {
			continue
		}
		mgr.Send(ctx, nil, key, sink, pkt)
	}
}

func buildDispatcher(cfg *config.Config) (udpnat.Dispatcher, error) {
	switch cfg.Upstream.Kind {
	case "plain":
		target, err := net.ResolveUDPAddr("udp", cfg.Upstream.Target)
		if err != nil {
			return nil, fmt.Errorf("resolve upstream.target %s: %w", cfg.Upstream.Target, err)
		}
		return &fixedTargetDispatcher{
			target: udpnat.NewEndpoint(target.IP.String(), uint16(target.Port)),
			inner:  &dispatch.PlainUDP{Fwmark: cfg.Fwmark},
		}, nil
	case "outline":
		return &dispatch.OutlineWS{
			Endpoint:    cfg.Upstream.Endpoint,
			Cipher:      cfg.Upstream.Cipher,
			Secret:      cfg.Upstream.Secret,
			Fwmark:      cfg.Fwmark,
			DialLimiter: dispatch.NewDialLimiter(cfg.Upstream.DialRatePerSecond, cfg.Upstream.DialBurst),
		}, nil
	default:
		return nil, fmt.Errorf("unknown upstream.kind %q", cfg.Upstream.Kind)
	}
}

// fixedTargetDispatcher forces every packet's destination to a statically
// configured upstream, for the "plain" relay mode where the listener
// doesn't learn a real per-flow destination. It overrides the destination
// on every SendTo call rather than just the session handed to the inner
// dispatcher, because a Dispatcher's SendHalf is contractually free to
// honor a different destination per packet (see dispatch.PlainUDP).
type fixedTargetDispatcher struct {
	target udpnat.Endpoint
	inner  udpnat.Dispatcher
}

func (d *fixedTargetDispatcher) DispatchDatagram(ctx context.Context, session *udpnat.Session) (udpnat.Socket, error) {
	fixed := *session
	fixed.Destination = d.target
	sock, err := d.inner.DispatchDatagram(ctx, &fixed)
	if err != nil {
		return nil, err
	}
	return &fixedTargetSocket{inner: sock, target: d.target}, nil
}

type fixedTargetSocket struct {
	inner  udpnat.Socket
	target udpnat.Endpoint
}

func (s *fixedTargetSocket) Split() (udpnat.SendHalf, udpnat.RecvHalf, error) {
	send, recv, err := s.inner.Split()
	if err != nil {
		return nil, nil, err
	}
	return &fixedTargetSendHalf{inner: send, target: s.target}, recv, nil
}

type fixedTargetSendHalf struct {
	inner  udpnat.SendHalf
	target udpnat.Endpoint
}

func (h *fixedTargetSendHalf) SendTo(payload []byte, _ udpnat.Endpoint) error {
	return h.inner.SendTo(payload, h.target)
}

func (h *fixedTargetSendHalf) Close() error { return h.inner.Close() }
