// Package directory implements the directory service client (spec §6): a
// line-oriented TCP client speaking REGISTER/QUERY/LIST_USERS over a
// short-lived connection to a fixed host, each connection closed with a
// trailing QUIT. Query results are cached briefly to avoid hammering the
// directory when a peer is dialed repeatedly in a short window.
package directory

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"videocall/internal/errs"
	"videocall/internal/peer"
)

// queryCacheTTL bounds how long a successful QUERY result is reused before
// the directory is asked again.
const queryCacheTTL = 5 * time.Second

// dialTimeout bounds connecting to the directory host.
const dialTimeout = 10 * time.Second

// Client talks to the directory service at Addr ("host:port").
type Client struct {
	Addr string
	Dial func(network, addr string) (net.Conn, error)

	cache *cache.Cache
}

// New builds a directory Client for addr.
func New(addr string) *Client {
	return &Client{
		Addr:  addr,
		Dial:  func(network, a string) (net.Conn, error) { return net.DialTimeout(network, a, dialTimeout) },
		cache: cache.New(queryCacheTTL, 2*queryCacheTTL),
	}
}

func (c *Client) connect() (net.Conn, error) {
	conn, err := c.Dial("tcp", c.Addr)
	if err != nil {
		return nil, &errs.TransportError{Op: "dial directory", Err: err}
	}
	return conn, nil
}

// quit sends the trailing QUIT and closes the connection, best-effort.
func quit(conn net.Conn) {
	conn.Write([]byte("QUIT\n"))
	conn.Close()
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", &errs.TransportError{Op: "read directory response", Err: err}
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Register registers the local peer with the directory.
// Returns a *errs.DirectoryError{Kind: RegisterFailed} on NOK.
func (c *Client) Register(local peer.Local) error {
	conn, err := c.connect()
	if err != nil {
		return err
	}
	defer quit(conn)

	protocols := strings.Join(local.Protocols, ",")
	cmd := strings.Join([]string{
		"REGISTER", local.Nickname, local.Addr,
		strconv.Itoa(local.ReliablePort), local.Password, protocols,
	}, " ") + "\n"
	if _, err := conn.Write([]byte(cmd)); err != nil {
		return &errs.TransportError{Op: "write REGISTER", Err: err}
	}

	r := bufio.NewReader(conn)
	resp, err := readLine(r)
	if err != nil {
		return err
	}
	if resp != "OK" {
		return &errs.DirectoryError{Kind: errs.RegisterFailed, Nick: local.Nickname}
	}
	return nil
}

// Query resolves nick to a peer.Identity, consulting the short-lived cache
// first. Returns a *errs.DirectoryError{Kind: UserUnknown} on NOK.
func (c *Client) Query(nick string) (peer.Identity, error) {
	if cached, ok := c.cache.Get(nick); ok {
		return cached.(peer.Identity), nil
	}

	conn, err := c.connect()
	if err != nil {
		return peer.Identity{}, err
	}
	defer quit(conn)

	if _, err := conn.Write([]byte("QUERY " + nick + "\n")); err != nil {
		return peer.Identity{}, &errs.TransportError{Op: "write QUERY", Err: err}
	}

	r := bufio.NewReader(conn)
	resp, err := readLine(r)
	if err != nil {
		return peer.Identity{}, err
	}

	fields := strings.Fields(resp)
	if len(fields) == 0 || fields[0] == "NOK" {
		return peer.Identity{}, &errs.DirectoryError{Kind: errs.UserUnknown, Nick: nick}
	}
	// OK <ts> <nick> <ip> <tcp_port> <protocols>
	if len(fields) != 6 || fields[0] != "OK" {
		return peer.Identity{}, &errs.ProtocolError{Reason: "malformed QUERY response: " + resp}
	}
	port, err := strconv.Atoi(fields[4])
	if err != nil {
		return peer.Identity{}, &errs.ProtocolError{Reason: "non-numeric tcp_port in QUERY response"}
	}
	id := peer.Identity{
		Nickname:     fields[2],
		Addr:         fields[3],
		ReliablePort: port,
		Protocols:    strings.Split(fields[5], ","),
	}
	c.cache.Set(nick, id, cache.DefaultExpiration)
	return id, nil
}

// ListUsers returns every currently registered peer. The response header
// ("OK USERS_LIST <N>") arrives space-delimited; each of the N user entries
// that follows is itself terminated by '#', the last one being the trailing
// terminator spec §6 requires readers to loop until they observe — so this
// reads exactly N '#'-delimited chunks after the header, never assuming the
// whole response landed in one TCP read.
func (c *Client) ListUsers() ([]peer.Identity, error) {
	conn, err := c.connect()
	if err != nil {
		return nil, err
	}
	defer quit(conn)

	if _, err := conn.Write([]byte("LIST_USERS\n")); err != nil {
		return nil, &errs.TransportError{Op: "write LIST_USERS", Err: err}
	}

	r := bufio.NewReader(conn)
	verb, err := readToken(r)
	if err != nil {
		return nil, err
	}
	kind, err := readToken(r)
	if err != nil {
		return nil, err
	}
	if verb != "OK" || kind != "USERS_LIST" {
		return nil, &errs.ProtocolError{Reason: "malformed LIST_USERS response: " + verb + " " + kind}
	}
	countTok, err := readToken(r)
	if err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(countTok)
	if err != nil {
		return nil, &errs.ProtocolError{Reason: "non-numeric user count in LIST_USERS response"}
	}

	users := make([]peer.Identity, 0, n)
	for i := 0; i < n; i++ {
		entry, err := r.ReadString('#')
		if err != nil && !(errors.Is(err, io.EOF) && entry != "") {
			return nil, &errs.TransportError{Op: "read LIST_USERS entry", Err: err}
		}
		entry = strings.TrimSuffix(strings.TrimSpace(entry), "#")
		parts := strings.Fields(entry)
		if len(parts) != 4 {
			continue // malformed entry: skip rather than fail the whole list
		}
		port, err := strconv.Atoi(parts[2])
		if err != nil {
			continue
		}
		users = append(users, peer.Identity{
			Nickname:     parts[0],
			Addr:         parts[1],
			ReliablePort: port,
			Protocols:    strings.Split(parts[3], ","),
		})
	}
	return users, nil
}

// readToken reads one space-delimited token, trimming the trailing space.
func readToken(r *bufio.Reader) (string, error) {
	tok, err := r.ReadString(' ')
	if err != nil {
		return "", &errs.TransportError{Op: "read directory response", Err: err}
	}
	return strings.TrimSpace(tok), nil
}
