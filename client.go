package main

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Client is one websocket connection. Its id is the connection identity that
// roster entries bind to; a reconnecting player gets a fresh one.
type Client struct {
	id      string
	conn    *websocket.Conn
	send    chan any
	done    chan struct{}
	once    sync.Once
	limiter *rate.Limiter
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		id:      uuid.NewString(),
		conn:    conn,
		send:    make(chan any, 32),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(10), 20),
	}
}

// deliver queues a message without ever blocking room processing. A client
// whose buffer is full gets disconnected instead.
func (c *Client) deliver(msg any) {
	select {
	case c.send <- msg:
	case <-c.done:
	default:
		c.close()
	}
}

func (c *Client) close() {
	c.once.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

func (c *Client) readPump(rt *Router) {
	defer func() {
		c.close()
		rt.disconnect(c)
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		if !c.limiter.Allow() {
			continue
		}

		rt.dispatch(c, msg)
	}
}

func (c *Client) writePump() {
	defer c.close()

	for {
		select {
		case msg := <-c.send:
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}
