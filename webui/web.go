// Package webui serves a websocket feed of achievement notifications and
// accepts session commands from a browser.
package webui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

const socketQueue = 32

// CommandHandler executes a named command and returns the view update
// to send back to the requesting socket.
type CommandHandler interface {
	HandleCommand(command string, args json.RawMessage) (Update, error)
	// InitialViews are sent to every socket right after it connects.
	InitialViews() []Update
}

// Update is one view model pushed to the browser.
type Update struct {
	View  string      `json:"v"`
	Model interface{} `json:"m"`
}

// CommandRequest is what the browser sends.
type CommandRequest struct {
	Command string          `json:"c"`
	Args    json.RawMessage `json:"a"`
}

type errorView struct {
	Command string `json:"command"`
	Error   string `json:"error"`
}

type WebServer struct {
	handler CommandHandler

	mux *http.ServeMux

	socketsRw sync.RWMutex
	sockets   []*Socket

	// broadcast channel to all sockets:
	q         chan Update
	done      chan struct{}
	closeOnce sync.Once
}

type Socket struct {
	ws   *WebServer
	conn net.Conn

	// write channel, closed once the socket is removed:
	q chan Update
}

// NewWebServer builds the websocket endpoint at /ws/ and starts the
// broadcast loop.
func NewWebServer(handler CommandHandler) *WebServer {
	s := &WebServer{
		handler: handler,
		mux:     http.NewServeMux(),
		sockets: make([]*Socket, 0, 2),
		q:       make(chan Update, socketQueue),
		done:    make(chan struct{}),
	}

	s.mux.Handle("/ws/", http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(req, rw)
		if err != nil {
			log.Printf("[webui] upgrade: %v", err)
			return
		}

		socket := newSocket(s, conn)
		for _, u := range s.handler.InitialViews() {
			socket.send(u)
		}
		s.appendSocket(socket)

		go socket.readHandler()
		go socket.writeHandler()
	}))

	go s.handleBroadcast()

	return s
}

// Handler exposes the mux, mainly for httptest.
func (s *WebServer) Handler() http.Handler {
	return s.mux
}

// Serve listens on addr until ctx is cancelled.
func (s *WebServer) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.mux}

	errc := make(chan error, 1)
	go func() {
		log.Printf("[webui] listening on %s", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		s.Close()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close disconnects every socket and stops the broadcast loop.
func (s *WebServer) Close() {
	s.closeOnce.Do(func() {
		close(s.done)

		s.socketsRw.RLock()
		sockets := append([]*Socket(nil), s.sockets...)
		s.socketsRw.RUnlock()
		for _, k := range sockets {
			_ = k.conn.Close()
		}
	})
}

// Notify sends an update to every connected socket. Updates are dropped
// when the broadcast queue is full.
func (s *WebServer) Notify(view string, model interface{}) {
	select {
	case s.q <- Update{View: view, Model: model}:
	case <-s.done:
	default:
		log.Printf("[webui] broadcast queue full, dropping %s", view)
	}
}

func (s *WebServer) appendSocket(socket *Socket) {
	s.socketsRw.Lock()
	defer s.socketsRw.Unlock()
	s.sockets = append(s.sockets, socket)
}

func (s *WebServer) removeSocket(k *Socket) {
	s.socketsRw.Lock()
	defer s.socketsRw.Unlock()

	for i, sk := range s.sockets {
		if sk == k {
			s.sockets = append(s.sockets[:i], s.sockets[i+1:]...)
			close(k.q)
			break
		}
	}
}

// SocketCount returns the number of connected sockets.
func (s *WebServer) SocketCount() int {
	s.socketsRw.RLock()
	defer s.socketsRw.RUnlock()
	return len(s.sockets)
}

func (s *WebServer) handleBroadcast() {
	for {
		select {
		case <-s.done:
			return
		case u := <-s.q:
			// held for reading so removeSocket cannot close a queue mid-send
			s.socketsRw.RLock()
			for _, k := range s.sockets {
				k.send(u)
			}
			s.socketsRw.RUnlock()
		}
	}
}

func newSocket(s *WebServer, conn net.Conn) *Socket {
	return &Socket{
		ws:   s,
		conn: conn,
		q:    make(chan Update, socketQueue),
	}
}

func (k *Socket) send(u Update) {
	select {
	case k.q <- u:
	default:
		log.Printf("[webui] socket queue full, dropping %s", u.View)
	}
}

func (k *Socket) readHandler() {
	// the reader is in control of the lifetime of the socket:
	defer func() {
		_ = k.conn.Close()
		k.ws.removeSocket(k)
	}()

	r := wsutil.NewReader(k.conn, ws.StateServerSide)

	for {
		hdr, err := r.NextFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Printf("[webui] error reading next websocket frame: %v", err)
			}
			return
		}
		if hdr.OpCode == ws.OpClose {
			return
		}
		if hdr.OpCode != ws.OpText {
			if err := r.Discard(); err != nil {
				log.Printf("[webui] discard: %v", err)
				return
			}
			continue
		}

		payload, err := io.ReadAll(r)
		if err != nil {
			log.Printf("[webui] error reading command: %v", err)
			return
		}

		var creq CommandRequest
		if err := json.Unmarshal(payload, &creq); err != nil {
			k.send(Update{View: "error", Model: errorView{Error: fmt.Sprintf("bad request: %v", err)}})
			continue
		}

		u, err := k.ws.handler.HandleCommand(creq.Command, creq.Args)
		if err != nil {
			k.send(Update{View: "error", Model: errorView{Command: creq.Command, Error: err.Error()}})
			continue
		}
		k.send(u)
	}
}

func (k *Socket) writeHandler() {
	var (
		w       = wsutil.NewWriter(k.conn, ws.StateServerSide, ws.OpText)
		encoder = json.NewEncoder(w)
	)

	for u := range k.q {
		if err := encoder.Encode(&u); err != nil {
			log.Printf("[webui] encode %s: %v", u.View, err)
			continue
		}
		if err := w.Flush(); err != nil {
			log.Printf("[webui] flush: %v", err)
			_ = k.conn.Close()
			return
		}
	}
}
