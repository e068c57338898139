// Command ws_bridge exposes an ACP agent running on stdin/stdout to browser
// clients over a WebSocket. Each connection gets its own agent process.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"io"
	"net/http"
	"os"
	"os/exec"
	"sync"

	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

var defaultCommand = []string{"storyblok-agent", "-acp"}

// frame wraps one line of agent output.
type frame struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

func main() {
	ancli.SetupSlog()
	addr := flag.String("addr", ":8080", "Address to listen on")
	flag.Parse()

	cmdArgs := flag.Args()
	if len(cmdArgs) == 0 {
		cmdArgs = defaultCommand
	}
	http.HandleFunc("/ws", handleWS(cmdArgs))

	ancli.Okf("WebSocket server running on ws://%s/ws, bridging to %v\n", *addr, cmdArgs)
	if err := http.ListenAndServe(*addr, nil); err != nil {
		ancli.Errf("server stopped: %v\n", err)
		os.Exit(1)
	}
}

func handleWS(cmdArgs []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			ancli.Warnf("upgrade error: %v\n", err)
			return
		}
		defer conn.Close()

		cmd := exec.Command(cmdArgs[0], cmdArgs[1:]...)
		stdin, err := cmd.StdinPipe()
		if err != nil {
			ancli.Warnf("error getting stdin: %v\n", err)
			return
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			ancli.Warnf("error getting stdout: %v\n", err)
			return
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			ancli.Warnf("error getting stderr: %v\n", err)
			return
		}
		if err := cmd.Start(); err != nil {
			ancli.Warnf("error starting agent: %v\n", err)
			return
		}
		defer func() {
			stdin.Close()
			cmd.Process.Kill()
			cmd.Wait()
		}()

		// gorilla connections allow a single concurrent writer.
		var writeMu sync.Mutex
		go pipe(conn, &writeMu, "stdout", stdout)
		go pipe(conn, &writeMu, "stderr", stderr)

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					ancli.Warnf("ws read error: %v\n", err)
				}
				return
			}
			if _, err := stdin.Write(append(msg, '\n')); err != nil {
				ancli.Warnf("stdin write error: %v\n", err)
				return
			}
		}
	}
}

func pipe(conn *websocket.Conn, mu *sync.Mutex, kind string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		msg, err := json.Marshal(frame{Type: kind, Data: scanner.Text()})
		if err != nil {
			continue
		}
		mu.Lock()
		err = conn.WriteMessage(websocket.TextMessage, msg)
		mu.Unlock()
		if err != nil {
			ancli.Warnf("ws write error: %v\n", err)
			return
		}
	}
}
