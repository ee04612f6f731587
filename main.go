package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lvaillant/cadenza/internal/bridge"
	"github.com/lvaillant/cadenza/internal/bus"
	"github.com/lvaillant/cadenza/internal/config"
	"github.com/lvaillant/cadenza/internal/errmsg"
	"github.com/lvaillant/cadenza/internal/logging"
	"github.com/lvaillant/cadenza/internal/mpris"
	"github.com/lvaillant/cadenza/internal/paths"
	"github.com/lvaillant/cadenza/internal/playback"
	"github.com/lvaillant/cadenza/internal/player"
	"github.com/lvaillant/cadenza/internal/poscache"
	"github.com/lvaillant/cadenza/internal/runtime"
	"github.com/lvaillant/cadenza/internal/scrobble"
	"github.com/lvaillant/cadenza/internal/session"
	"github.com/lvaillant/cadenza/internal/store"
)

func main() {
	var (
		lastfmAuth = flag.Bool("lastfm-auth", false, "link a Last.fm account, then exit")
		observe    = flag.Bool("observe", false, "validate and mirror events without committing or driving the player")
	)
	flag.Parse()

	if err := run(*lastfmAuth, *observe); err != nil {
		fmt.Fprintf(os.Stderr, "cadenza: %v\n", err)
		os.Exit(1)
	}
}

func run(lastfmAuth, observe bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	dbPath, err := paths.Database()
	if err != nil {
		return err
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if lastfmAuth {
		return linkLastfm(cfg, st)
	}

	log, err := logging.New(logging.Options{
		Level:    cfg.Logging.Level,
		JSON:     cfg.Logging.Format == "json",
		Dir:      paths.Logs(),
		ToStderr: cfg.Logging.Stderr,
	})
	if err != nil {
		return err
	}

	playerCfg := cfg.GetPlayerConfig()
	mpv := player.NewMPV(player.Options{
		Binary:     playerCfg.Path,
		SocketPath: playerCfg.Socket,
		Log:        logging.ForComponent(log, "player"),
	})
	if err := mpv.Start(); err != nil {
		return err
	}
	defer mpv.Close()

	b := bus.New(logging.ForComponent(log, "bus"))

	res := cfg.GetResolutionConfig()
	coord := playback.New(playback.Options{
		Runtime: runtime.Context{Kind: runtime.Background, UserID: cfg.UserID},
		Player:  mpv,
		Sources: store.NewPositionSource(st, cfg.UserID),
		Local:   poscache.New(paths.PositionCache()),
		Resolution: playback.ResolutionConfig{
			MinPlausible:     res.MinPlausibleSeconds,
			LargeDiscrepancy: res.LargeDiscrepancySeconds,
		},
		Log: logging.ForComponent(log, "coordinator"),
	})
	defer coord.Close()
	if observe {
		coord.SetObserverMode(true)
	}

	// Everything the bus carries lands on the coordinator's queue. Its
	// serialized loop decides what commits.
	unsubscribe := b.Subscribe(coord.Dispatch)
	defer unsubscribe()

	bridgeCfg := cfg.GetBridgeConfig()
	bridgeLog := logging.ForComponent(log, "bridge")
	transport, err := bridge.Listen(bridgeCfg.Socket, bridgeLog)
	if err != nil {
		return fmt.Errorf("listen on bridge socket: %w", err)
	}
	integrator, err := bridge.NewIntegrator(b, transport, bridgeLog)
	if err != nil {
		_ = transport.Close()
		return err
	}
	defer integrator.Close()

	listener := player.NewListener(playerCfg.Socket, b, logging.ForComponent(log, "player"))
	if err := listener.Start(); err != nil {
		return fmt.Errorf("attach to player events: %w", err)
	}
	defer listener.Close()

	// MPRIS needs a session bus; a headless host simply goes without.
	if adapter, err := mpris.New(b, coord); err != nil {
		log.Warnf("media key integration unavailable: %v", err)
	} else {
		defer adapter.Close()
	}

	if cfg.HasLastfmConfig() {
		scrobbler, err := startScrobbler(cfg, st, coord, log)
		if err != nil {
			log.Warn(errmsg.Format(errmsg.OpInitialize, err))
		} else if scrobbler != nil {
			defer scrobbler.Close()
		}
	}

	tracker := session.New(session.Options{
		Coordinator: coord,
		Bus:         b,
		Store:       st,
		UserID:      cfg.UserID,
		Interval:    cfg.GetSessionConfig().UpdateInterval(),
		Log:         logging.ForComponent(log, "session"),
	})
	tracker.Start()
	defer tracker.Close()

	restoreLastPlayed(st, coord, logging.ForComponent(log, "coordinator"))

	log.WithField("socket", bridgeCfg.Socket).Info("cadenza daemon ready")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	s := <-sig
	log.WithField("signal", s.String()).Info("shutting down")
	return nil
}

// startScrobbler wires the Last.fm worker when an account has been
// linked. Configured-but-unlinked is not an error; the daemon just says
// how to finish the job.
func startScrobbler(cfg *config.Config, st *store.Manager, coord *playback.Coordinator, log *logrus.Logger) (*scrobble.Worker, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := st.LastfmSession(ctx)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		log.Info("lastfm configured but no account linked; run cadenza -lastfm-auth")
		return nil, nil
	}

	client := scrobble.New(cfg.Lastfm.APIKey, cfg.Lastfm.APISecret)
	client.SetSessionKey(sess.SessionKey)

	worker := scrobble.NewWorker(scrobble.Options{
		Coordinator: coord,
		Client:      client,
		Log:         logging.ForComponent(log, "scrobble"),
	})
	worker.Start()
	log.WithField("user", sess.Username).Info("scrobbling enabled")
	return worker, nil
}

// restoreLastPlayed rehydrates the coordinator with the most recently
// played item so a restarted daemon resumes where the previous one
// stopped. Nothing to restore is the common first-boot case.
func restoreLastPlayed(st *store.Manager, coord *playback.Coordinator, log *logrus.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	track, err := st.Items().LastPlayed(ctx)
	if err != nil {
		log.Warn(errmsg.Format(errmsg.OpRestoreState, err))
		return
	}
	if track == nil {
		return
	}

	info := coord.ResolveCanonicalPosition(ctx, track.LibraryItemID)
	coord.Dispatch(playback.RestoreState{State: playback.RestoredState{
		Track:    track,
		Position: info.Position,
		Duration: track.Duration,
	}})
	log.WithFields(logrus.Fields{
		"title":    track.Title,
		"position": info.Position,
		"source":   string(info.Source),
	}).Info("restored last played item")
}

// linkLastfm walks the desktop authorization flow: request a token, have
// the user grant it in a browser, then trade it for a session key.
func linkLastfm(cfg *config.Config, st *store.Manager) error {
	if !cfg.HasLastfmConfig() {
		return fmt.Errorf("lastfm api_key and api_secret must be set in the config file")
	}

	client := scrobble.New(cfg.Lastfm.APIKey, cfg.Lastfm.APISecret)
	token, err := client.GetToken()
	if err != nil {
		return fmt.Errorf("request auth token: %w", err)
	}

	fmt.Printf("Authorize cadenza in your browser:\n\n  %s\n\nPress Enter once access is granted. ", client.GetAuthURL(token))
	if _, err := bufio.NewReader(os.Stdin).ReadString('\n'); err != nil {
		return err
	}

	username, sessionKey, err := client.GetSession(token)
	if err != nil {
		return fmt.Errorf("exchange token for session: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := st.SaveLastfmSession(ctx, username, sessionKey); err != nil {
		return err
	}

	fmt.Printf("Linked Last.fm account %s.\n", username)
	return nil
}
