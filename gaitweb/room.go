package gaitweb

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

type message struct {
	from *client
	data []byte
}

type Room struct {
	// forward is a channel that holds incoming messages
	// that should be forwarded to the other clients.
	forward chan message
	// join is a channel for clients wishing to join the room.
	join chan *client
	// leave is a channel for clients wishing to leave the room.
	leave chan *client
	// count answers requests for the number of clients.
	count chan chan int
	// clients holds all current clients in this room.
	clients map[*client]bool
	// done is closed when Run returns.
	done chan struct{}
}

// NewRoom makes a new room that is ready to go.
func NewRoom() *Room {
	return &Room{
		forward: make(chan message),
		join:    make(chan *client),
		leave:   make(chan *client),
		count:   make(chan chan int),
		clients: make(map[*client]bool),
		done:    make(chan struct{}),
	}
}

// Run relays messages until ctx is done, then disconnects every client.
func (r *Room) Run(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			for c := range r.clients {
				delete(r.clients, c)
				close(c.send)
			}
			log.Debug("gaitweb: room closed")
			return
		case c := <-r.join:
			r.clients[c] = true
			log.WithField("clients", len(r.clients)).Info("gaitweb: new client joined")
		case c := <-r.leave:
			if r.clients[c] {
				delete(r.clients, c)
				close(c.send)
			}
			log.WithField("clients", len(r.clients)).Info("gaitweb: client left")
		case reply := <-r.count:
			reply <- len(r.clients)
		case msg := <-r.forward:
			// forward message to all other clients
			for c := range r.clients {
				if c == msg.from {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					log.Debug("gaitweb: client too slow, message dropped")
				}
			}
		}
	}
}

// Clients returns the number of connected clients, zero once the room has
// stopped.
func (r *Room) Clients() int {
	reply := make(chan int)
	select {
	case r.count <- reply:
		return <-reply
	case <-r.done:
		return 0
	}
}

const (
	socketBufferSize  = 1024
	messageBufferSize = 64
)

var upgrader = &websocket.Upgrader{ReadBufferSize: socketBufferSize, WriteBufferSize: socketBufferSize}

func (r *Room) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	socket, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.WithError(err).Warn("gaitweb: websocket upgrade failed")
		return
	}
	c := &client{
		socket: socket,
		send:   make(chan []byte, messageBufferSize),
		room:   r,
	}
	select {
	case r.join <- c:
	case <-r.done:
		socket.Close()
		return
	}
	defer func() {
		select {
		case r.leave <- c:
		case <-r.done:
		}
	}()
	go c.write()
	c.read()
}
