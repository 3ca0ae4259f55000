package gaitweb

import (
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// Publisher sends GaitData to a room as a websocket client.
type Publisher struct {
	url string
	c   *websocket.Conn
}

// DefaultURL is the room address on this host at Port.
func DefaultURL() string {
	return fmt.Sprintf("ws://localhost:%d%s", Port, Path)
}

// NewPublisher connects to the room at url, e.g. DefaultURL().
func NewPublisher(url string) (*Publisher, error) {
	p := &Publisher{url: url}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Publisher) connect() (err error) {
	p.c, _, err = websocket.DefaultDialer.Dial(p.url, nil)
	if err != nil {
		return fmt.Errorf("gaitweb: dialing %s: %w", p.url, err)
	}
	return nil
}

// Send publishes d. On a write error the message is dropped and the
// connection is redialed for the next one.
func (p *Publisher) Send(d *GaitData) error {
	msg, err := json.Marshal(d)
	if err != nil {
		log.WithError(err).WithField("data", d).Warn("gaitweb: error marshalling json data")
		return err
	}
	if p.c == nil {
		if err := p.connect(); err != nil {
			return err
		}
	}
	if err := p.c.WriteMessage(websocket.TextMessage, msg); err != nil {
		log.WithError(err).Warn("gaitweb: error writing to websocket")
		p.c.Close()
		p.c = nil
		if err2 := p.connect(); err2 != nil {
			return fmt.Errorf("gaitweb: %v: %w", err, err2)
		}
		return fmt.Errorf("gaitweb: message dropped: %w", err)
	}
	return nil
}

// Close says goodbye to the room and closes the connection.
func (p *Publisher) Close() error {
	if p.c == nil {
		return nil
	}
	defer func() { p.c = nil }()
	err := p.c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if cerr := p.c.Close(); err == nil {
		err = cerr
	}
	return err
}
