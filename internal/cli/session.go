package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dkeye/p2pcall/internal/adapters/rtc"
	"github.com/dkeye/p2pcall/internal/adapters/wsclient"
	"github.com/dkeye/p2pcall/internal/app/call"
	"github.com/dkeye/p2pcall/internal/app/negotiate"
	"github.com/dkeye/p2pcall/internal/app/peer"
	"github.com/dkeye/p2pcall/internal/config"
	"github.com/dkeye/p2pcall/internal/domain"
	"github.com/dkeye/p2pcall/internal/logging"
	"github.com/dkeye/p2pcall/internal/ui"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	errQuit       = errors.New("quit")
	errServerGone = errors.New("signaling server closed the connection")
)

func runSession(cmd *cobra.Command) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	logging.SetLevel(cfg.LogLevel)

	mode, err := domain.ParseCallMode(cfg.Client.Mode)
	if err != nil {
		return err
	}
	room, err := domain.ParseRoomName(cfg.Client.Room)
	if err != nil {
		return fmt.Errorf("room %q: %w", cfg.Client.Room, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api, err := rtc.NewAPI()
	if err != nil {
		return fmt.Errorf("webrtc api: %w", err)
	}
	peers := peer.NewManager(rtc.NewTransportFactory(api, rtc.ICEConfiguration(cfg.ICEServers)))

	ws := wsclient.New(cfg.Client.ServerURL)
	if err := ws.Connect(ctx); err != nil {
		return err
	}
	defer ws.Close()

	ctl := call.New(room, ws, rtc.FileSource{
		AudioFile: cfg.Client.AudioFile,
		VideoFile: cfg.Client.VideoFile,
	}, negotiate.New(peers, ws))

	ctl.OnChat(func(from domain.SessionID, text string) {
		fmt.Println(ui.ChatLine(time.Now(), from == ctl.Self(), string(from), text))
	})
	ctl.OnServerError(func(code string) {
		ui.PrintWarning("server: " + code)
	})
	ctl.OnRemoteTrack(func(remote domain.SessionID, track *webrtc.TrackRemote) {
		ui.PrintInfo(fmt.Sprintf("receiving %s from %s", track.Kind(), remote))
		go rtc.DrainTrack(remote, track)
	})

	fmt.Println(ui.Banner(string(room), string(mode), cfg.Client.ServerURL))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := ctl.Run(gctx, ws.Incoming()); err != nil {
			return err
		}
		return errServerGone
	})
	g.Go(func() error {
		return readInput(gctx, os.Stdin, ctl, peers, mode)
	})

	if err := ctl.StartCall(ctx, mode); err != nil {
		ws.Close()
		_ = g.Wait()
		return err
	}
	ui.PrintSuccess("call started")

	err = g.Wait()
	if endErr := ctl.EndCall(); endErr != nil {
		log.Warn().Err(endErr).Str("module", "cli").Msg("end call on exit")
	}
	// flushes end-call before the close frame
	ws.Close()

	if errors.Is(err, errQuit) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// readInput turns stdin lines into chat messages and slash commands.
func readInput(ctx context.Context, in io.Reader, ctl *call.Controller, peers *peer.Manager, mode domain.CallMode) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				// stdin closed; keep the call up until a signal arrives
				<-ctx.Done()
				return ctx.Err()
			}
			if err := handleLine(ctx, strings.TrimSpace(line), ctl, peers, mode); err != nil {
				if errors.Is(err, errQuit) {
					return err
				}
				ui.PrintError(err.Error())
			}
		}
	}
}

func handleLine(ctx context.Context, line string, ctl *call.Controller, peers *peer.Manager, mode domain.CallMode) error {
	switch line {
	case "":
		return nil
	case "/quit":
		return errQuit
	case "/end":
		if err := ctl.EndCall(); err != nil {
			return err
		}
		ui.PrintInfo("call ended")
		return nil
	case "/start":
		if err := ctl.StartCall(ctx, mode); err != nil {
			return err
		}
		ui.PrintSuccess("call started")
		return nil
	case "/peers":
		ids := peers.IDs()
		if len(ids) == 0 {
			ui.PrintInfo("no peers")
		}
		for _, id := range ids {
			if e, ok := peers.Get(id); ok {
				ui.PrintInfo(fmt.Sprintf("%s  %s  %s", id, e.Role(), e.State()))
			}
		}
		return nil
	}
	return ctl.SendChat(line)
}
