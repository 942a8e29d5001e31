// Package main is a terminal client for the Dungeon Master table server.
//
// Typed lines are sent as actions on your turn. Commands:
//
//	/chat <message>   talk to the table
//	/inv              show your character and inventory
//	/log              show the session log
//	/quit             leave the table
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"time"

	"github.com/cory-johannsen/dungeonmaster/internal/protocol"
)

// defaultMaxFrameBytes bounds one server message. Character portraits and map
// updates carry base64 images, so it is far above the server's request limit.
const defaultMaxFrameBytes = 16 << 20

func main() {
	addr := flag.String("addr", "127.0.0.1:65432", "server address")
	name := flag.String("name", "", "player name")
	character := flag.String("character", "", "character description")
	rejoin := flag.Int("rejoin", 0, "rejoin as an existing player id instead of registering")
	maxFrame := flag.Int("max-frame", defaultMaxFrameBytes, "largest server message accepted, in bytes")
	flag.Parse()

	if *name == "" && *rejoin == 0 {
		log.Fatalf("either -name or -rejoin is required")
	}

	conn, err := net.DialTimeout("tcp", *addr, 5*time.Second)
	if err != nil {
		log.Fatalf("connecting to %s: %v", *addr, err)
	}
	defer conn.Close()

	hello := protocol.Outgoing{Action: protocol.ActionRegister, Name: *name, Character: *character}
	if *rejoin != 0 {
		hello = protocol.Outgoing{Action: protocol.ActionRejoin, PlayerID: *rejoin}
	}
	if err := send(conn, hello); err != nil {
		log.Fatalf("registering: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- receive(conn, os.Stdout, *maxFrame)
	}()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case err := <-done:
			if err != nil {
				log.Fatalf("connection lost: %v", err)
			}
			fmt.Println("server closed the connection")
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			req, quit, ok := parseLine(line, *name)
			if quit {
				return
			}
			if !ok {
				continue
			}
			if err := send(conn, req); err != nil {
				log.Fatalf("sending: %v", err)
			}
		}
	}
}

func send(w io.Writer, req protocol.Outgoing) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// receive frames server output and prints each message until the stream ends.
// A message larger than maxFrame bytes ends the stream with an error.
func receive(r io.Reader, out io.Writer, maxFrame int) error {
	framer := protocol.NewFramer(maxFrame)
	buf := make([]byte, 64*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			msgs, ferr := framer.Feed(buf[:n])
			for _, m := range msgs {
				if text := render(m); text != "" {
					fmt.Fprintln(out, text)
				}
			}
			if ferr != nil {
				return ferr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
