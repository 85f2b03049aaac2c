package nodes

import (
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/petrijr/wireflow/pkg/api"
	"github.com/petrijr/wireflow/pkg/variant"
)

type udpOutConfig struct {
	Addr      string `json:"addr"`
	Port      text   `json:"port"`
	Iface     string `json:"iface"`
	OutPort   text   `json:"outport"`
	IPV       string `json:"ipv"`
	Multicast text   `json:"multicast"`
	Base64    flag   `json:"base64"`
}

// udpOutNode sends each payload as one datagram. Without a configured
// address the destination comes from msg.ip and msg.port.
type udpOutNode struct {
	*api.BaseNode

	network string
	local   *net.UDPAddr
	addr    string
	port    int
	base64  bool
}

func newUDPOut(_ api.Flow, base *api.BaseNode, cfg *api.NodeConfig) (api.Node, error) {
	var c udpOutConfig
	if err := cfg.Decode(&c); err != nil {
		return nil, fmt.Errorf("udp out config: %w", err)
	}

	n := &udpOutNode{BaseNode: base, addr: strings.TrimSpace(c.Addr), base64: bool(c.Base64)}

	switch c.IPV {
	case "", "udp4":
		n.network = "udp4"
	case "udp6":
		n.network = "udp6"
	default:
		return nil, fmt.Errorf("%w: udp ip version %q", api.ErrNotSupported, c.IPV)
	}

	switch m := string(c.Multicast); m {
	case "", "false":
	default:
		return nil, fmt.Errorf("%w: udp multicast mode %q", api.ErrNotSupported, m)
	}

	if p, ok, err := udpPort(c.Port); err != nil {
		return nil, fmt.Errorf("udp out port: %w", err)
	} else if ok {
		n.port = p
	}

	lport, hasLocal, err := udpPort(c.OutPort)
	if err != nil {
		return nil, fmt.Errorf("udp out outport: %w", err)
	}
	if hasLocal || c.Iface != "" {
		var ip net.IP
		if c.Iface != "" {
			if ip = net.ParseIP(c.Iface); ip == nil {
				return nil, fmt.Errorf("%w: udp out iface %q is not an IP address", api.ErrBadFlowsJSON, c.Iface)
			}
		}
		n.local = &net.UDPAddr{IP: ip, Port: lport}
	}
	return n, nil
}

func udpPort(s text) (int, bool, error) {
	str := strings.TrimSpace(string(s))
	if str == "" {
		return 0, false, nil
	}
	p, err := strconv.Atoi(str)
	if err != nil || p < 0 || p > 65535 {
		return 0, false, fmt.Errorf("%w: invalid port %q", api.ErrBadFlowsJSON, str)
	}
	return p, true, nil
}

func (n *udpOutNode) Run(ctx context.Context) {
	conn, err := net.ListenUDP(n.network, n.local)
	if err != nil {
		n.ReportError(ctx, fmt.Errorf("udp out bind: %w", err))
		return
	}
	defer conn.Close()

	serve(ctx, n.BaseNode, func(ctx context.Context, msg *api.Msg) error {
		return n.send(conn, msg)
	})
}

func (n *udpOutNode) send(conn *net.UDPConn, msg *api.Msg) error {
	data, err := datagram(msg.Payload())
	if err != nil {
		return err
	}
	if n.base64 {
		data = []byte(base64.StdEncoding.EncodeToString(data))
	}

	host, port := n.addr, n.port
	if host == "" {
		if v, ok := msg.Get("ip"); ok {
			host, _ = variant.AsString(v)
		}
	}
	if port == 0 {
		if v, ok := msg.Get("port"); ok {
			if p, ok := variant.AsInt(v); ok {
				port = int(p)
			} else if s, ok := variant.AsString(v); ok {
				port, _ = strconv.Atoi(s)
			}
		}
	}
	if host == "" || port <= 0 {
		return fmt.Errorf("%w: udp out has no destination address", api.ErrInvalidOperation)
	}

	raddr, err := net.ResolveUDPAddr(n.network, net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("udp out resolve: %w", err)
	}
	if _, err := conn.WriteToUDP(data, raddr); err != nil {
		return fmt.Errorf("udp out send: %w", err)
	}
	return nil
}

// datagram converts a payload into bytes. Numbers and booleans are sent in
// their text form.
func datagram(v variant.Variant) ([]byte, error) {
	if b, ok := variant.ToBytes(v); ok {
		return b, nil
	}
	switch v.(type) {
	case variant.Number, variant.Bool:
		return []byte(variant.Format(v)), nil
	}
	return nil, fmt.Errorf("udp out cannot send a payload of type %s", variant.TypeName(v))
}
