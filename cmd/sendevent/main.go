// Sendevent injects a single playback event into a running cadenza
// daemon through its bridge socket. Useful for scripting and for
// poking at a daemon without an attached interface.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"

	"github.com/lvaillant/cadenza/internal/bridge"
	"github.com/lvaillant/cadenza/internal/paths"
	"github.com/lvaillant/cadenza/internal/playback"
)

func main() {
	socket := flag.String("socket", paths.BridgeSocket(), "bridge socket of the running daemon")
	flag.Usage = usage
	flag.Parse()

	ev, err := parseEvent(flag.Args())
	if err != nil {
		log.Fatalf("Failed to parse command: %v", err)
	}

	t, payload, err := playback.EncodeEvent(ev)
	if err != nil {
		log.Fatalf("Failed to encode %s: %v", ev.Type(), err)
	}

	transport, err := bridge.Dial(*socket, nil)
	if err != nil {
		log.Fatalf("Failed to reach daemon: %v", err)
	}
	defer transport.Close()

	msg := bridge.Message{Type: string(t), Payload: payload, ContextID: uuid.NewString()}
	if err := transport.Send(msg); err != nil {
		log.Fatalf("Failed to send %s: %v", t, err)
	}
	fmt.Printf("sent %s\n", t)
}

func parseEvent(args []string) (playback.Event, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("no command given")
	}
	switch args[0] {
	case "play":
		return playback.Play{}, nil
	case "pause":
		return playback.Pause{}, nil
	case "stop":
		return playback.Stop{}, nil
	case "seek":
		pos, err := floatArg(args, "position")
		if err != nil {
			return nil, err
		}
		return playback.Seek{Position: pos}, nil
	case "rate":
		rate, err := floatArg(args, "rate")
		if err != nil {
			return nil, err
		}
		return playback.SetRate{Rate: rate}, nil
	case "volume":
		vol, err := floatArg(args, "volume")
		if err != nil {
			return nil, err
		}
		return playback.SetVolume{Volume: vol}, nil
	case "load":
		if len(args) < 2 {
			return nil, fmt.Errorf("load needs a library item id")
		}
		track := playback.Track{
			LibraryItemID: args[1],
			Title:         filepath.Base(args[1]),
		}
		if len(args) > 2 {
			track.EpisodeID = args[2]
		}
		return playback.LoadTrack{Track: track}, nil
	default:
		return nil, fmt.Errorf("unknown command %q", args[0])
	}
}

func floatArg(args []string, name string) (float64, error) {
	if len(args) < 2 {
		return 0, fmt.Errorf("missing %s", name)
	}
	v, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return 0, fmt.Errorf("bad %s %q: %v", name, args[1], err)
	}
	return v, nil
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: sendevent [-socket path] <command> [args]

Commands:
  play                      resume playback
  pause                     pause playback
  stop                      stop and unload
  seek <seconds>            jump to an absolute position
  rate <multiplier>         set the playback speed
  volume <0..1>             set the volume
  load <item-id> [episode]  load a playable unit

Flags:
`)
	flag.PrintDefaults()
}
